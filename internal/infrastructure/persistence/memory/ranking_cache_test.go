package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamifyx/gradehub/internal/domain/leaderboard"
)

func TestRankingCache_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewRankingCache(time.Hour)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, leaderboard.WindowWeekly, []leaderboard.Entry{{Rank: 1, UserID: "u"}}))

	got, err := c.Get(ctx, leaderboard.WindowWeekly)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	now = now.Add(time.Hour)
	_, err = c.Get(ctx, leaderboard.WindowWeekly)
	assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)
}

func TestRankingCache_DeleteAll(t *testing.T) {
	c := NewRankingCache(0)
	ctx := context.Background()

	for _, w := range leaderboard.AllWindows {
		require.NoError(t, c.Set(ctx, w, nil))
	}
	require.NoError(t, c.DeleteAll(ctx, leaderboard.AllWindows))

	for _, w := range leaderboard.AllWindows {
		_, err := c.Get(ctx, w)
		assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)
	}
}

func TestRankingCache_ReturnsCopies(t *testing.T) {
	c := NewRankingCache(time.Minute)
	ctx := context.Background()

	in := []leaderboard.Entry{{Rank: 1, UserID: "a"}}
	require.NoError(t, c.Set(ctx, leaderboard.WindowDaily, in))
	in[0].UserID = "mutated"

	got, err := c.Get(ctx, leaderboard.WindowDaily)
	require.NoError(t, err)
	assert.Equal(t, "a", got[0].UserID)
}
