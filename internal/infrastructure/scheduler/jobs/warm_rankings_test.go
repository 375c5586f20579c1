package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamifyx/gradehub/internal/domain/leaderboard"
)

type fakeSource struct {
	calls []leaderboard.Window
	fail  leaderboard.Window
}

func (f *fakeSource) Ranking(_ context.Context, w leaderboard.Window) (*leaderboard.Ranking, error) {
	f.calls = append(f.calls, w)
	if w == f.fail {
		return nil, errors.New("connection refused")
	}
	return leaderboard.Build([]leaderboard.Standing{
		{UserID: "a", DisplayName: "Ann", TotalXP: 20},
		{UserID: "b", DisplayName: "Bo", TotalXP: 10},
	}), nil
}

func TestWarmRankingsJob_ComputesEveryWindow(t *testing.T) {
	src := &fakeSource{}
	job := NewWarmRankingsJob(src, 0, nil)
	assert.Nil(t, job.LastStats())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, leaderboard.AllWindows, src.calls)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, len(leaderboard.AllWindows), stats.Windows)
	assert.Equal(t, 2*len(leaderboard.AllWindows), stats.Entries)
	assert.Zero(t, stats.Failed)
}

func TestWarmRankingsJob_FailedWindowDoesNotStopOthers(t *testing.T) {
	src := &fakeSource{fail: leaderboard.WindowDaily}
	job := NewWarmRankingsJob(src, 0, nil)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window daily")
	assert.Len(t, src.calls, len(leaderboard.AllWindows))
	assert.Equal(t, 1, job.LastStats().Failed)
}
