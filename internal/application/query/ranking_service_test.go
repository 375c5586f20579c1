package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamifyx/gradehub/config"
	"github.com/gamifyx/gradehub/internal/domain/leaderboard"
	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/internal/infrastructure/persistence/memory"
	"github.com/gamifyx/gradehub/pkg/circuitbreaker"
)

type fakeStandings struct {
	rows  []leaderboard.Standing
	calls int
	err   error
}

func (f *fakeStandings) Standings(context.Context) ([]leaderboard.Standing, error) {
	f.calls++
	return f.rows, f.err
}

func (f *fakeStandings) UserRank(_ context.Context, userID string) (int, error) {
	return leaderboard.Build(f.rows).RankOf(userID).Int(), f.err
}

type brokenCache struct{ gets int }

func (c *brokenCache) Get(context.Context, leaderboard.Window) ([]leaderboard.Entry, error) {
	c.gets++
	return nil, errors.New("connection refused")
}
func (c *brokenCache) Set(context.Context, leaderboard.Window, []leaderboard.Entry) error {
	return errors.New("connection refused")
}
func (c *brokenCache) DeleteAll(context.Context, []leaderboard.Window) error {
	return errors.New("connection refused")
}

func standings() *fakeStandings {
	return &fakeStandings{rows: []leaderboard.Standing{
		{UserID: "c", DisplayName: "Cy", TotalXP: 50},
		{UserID: "a", DisplayName: "Ann", TotalXP: 250},
		{UserID: "b", DisplayName: "Bo", TotalXP: 250},
	}}
}

func TestRankingService_MissRecomputesThenHits(t *testing.T) {
	repo := standings()
	svc := NewRankingService(repo, memory.NewRankingCache(0), nil, nil)
	ctx := context.Background()

	r, err := svc.Ranking(ctx, leaderboard.WindowWeekly)
	require.NoError(t, err)
	require.Equal(t, 3, r.Count())
	assert.Equal(t, []string{"a", "b", "c"}, ids(r.Entries()))
	assert.Equal(t, []int{1, 2, 3}, ranks(r.Entries()))
	assert.Equal(t, 2, r.Entries()[0].Level)

	_, err = svc.Ranking(ctx, leaderboard.WindowWeekly)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)

	_, err = svc.Ranking(ctx, leaderboard.WindowDaily)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestRankingService_InvalidateClearsAllWindows(t *testing.T) {
	repo := standings()
	svc := NewRankingService(repo, memory.NewRankingCache(0), nil, nil)
	ctx := context.Background()

	for _, w := range leaderboard.AllWindows {
		_, err := svc.Ranking(ctx, w)
		require.NoError(t, err)
	}
	require.Equal(t, 3, repo.calls)

	require.NoError(t, svc.Invalidate(ctx))
	for _, w := range leaderboard.AllWindows {
		_, err := svc.Ranking(ctx, w)
		require.NoError(t, err)
	}
	assert.Equal(t, 6, repo.calls)
}

func TestRankingService_BrokenCacheFallsBackAndTripsBreaker(t *testing.T) {
	repo := standings()
	cache := &brokenCache{}
	svc := NewRankingService(repo, cache, nil, nil)
	ctx := context.Background()

	for range 5 {
		r, err := svc.Ranking(ctx, leaderboard.WindowMonthly)
		require.NoError(t, err)
		assert.Equal(t, 3, r.Count())
	}
	assert.Equal(t, circuitbreaker.StateOpen, svc.BreakerState())
	assert.Less(t, cache.gets, 5)

	err := svc.Invalidate(ctx)
	assert.True(t, shared.IsRetryable(err))
}

func TestRankingService_CacheFlagOff(t *testing.T) {
	flags := config.NewFeatureFlags()
	require.NoError(t, flags.DisableFeature(config.FeatureRankingCache))
	repo := standings()
	svc := NewRankingService(repo, memory.NewRankingCache(0), flags, nil)

	for range 2 {
		_, err := svc.Ranking(context.Background(), leaderboard.WindowDaily)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, repo.calls)
}

func TestGetLeaderboardHandler(t *testing.T) {
	svc := NewRankingService(standings(), nil, nil, nil)
	h := NewGetLeaderboardHandler(svc, 2)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{Window: "Weekly"})
	require.NoError(t, err)
	assert.Equal(t, "weekly", res.Window)
	assert.Len(t, res.Entries, 2)
	assert.Equal(t, 3, res.TotalCount)
	assert.True(t, res.HasMore)

	res, err = h.Handle(context.Background(), GetLeaderboardQuery{Window: "daily", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 3)
	assert.False(t, res.HasMore)

	_, err = h.Handle(context.Background(), GetLeaderboardQuery{Window: "yearly"})
	assert.True(t, shared.IsMalformed(err))
}

func TestGetLeaderboardHandler_EmptyStore(t *testing.T) {
	h := NewGetLeaderboardHandler(NewRankingService(&fakeStandings{}, nil, nil, nil), 10)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{Window: "daily"})
	require.NoError(t, err)
	assert.NotNil(t, res.Entries)
	assert.Empty(t, res.Entries)
}

func ids(entries []leaderboard.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.UserID
	}
	return out
}

func ranks(entries []leaderboard.Entry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Rank
	}
	return out
}
