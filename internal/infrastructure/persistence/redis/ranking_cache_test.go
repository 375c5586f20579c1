package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamifyx/gradehub/internal/domain/leaderboard"
	"github.com/gamifyx/gradehub/internal/infrastructure/messaging"
)

// newTestCache connects to REDIS_TEST_URL or skips.
func newTestCache(t *testing.T) *Cache {
	t.Helper()

	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	cache, err := NewCache(context.Background(), Config{URL: url, DialTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestRankingKey(t *testing.T) {
	assert.Equal(t, "ranking:weekly", RankingKey("weekly"))
}

func TestConfigOptions(t *testing.T) {
	opts, err := Config{URL: "redis://:pw@cache:6380/2", PoolSize: 7}.options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	opts, err = DefaultConfig().options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	_, err = Config{URL: "not a url"}.options()
	assert.Error(t, err)
}

func TestRankingCache_RoundTripAndInvalidate(t *testing.T) {
	cache := newTestCache(t)
	rc := NewRankingCache(cache, time.Minute)
	ctx := context.Background()

	require.NoError(t, rc.DeleteAll(ctx, leaderboard.AllWindows))

	_, err := rc.Get(ctx, leaderboard.WindowDaily)
	assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)

	entries := []leaderboard.Entry{{Rank: 1, UserID: "u1", XP: 300, Level: 3}}
	require.NoError(t, rc.Set(ctx, leaderboard.WindowDaily, entries))
	require.NoError(t, rc.Set(ctx, leaderboard.WindowWeekly, entries))

	got, err := rc.Get(ctx, leaderboard.WindowDaily)
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	require.NoError(t, rc.DeleteAll(ctx, leaderboard.AllWindows))
	for _, w := range leaderboard.AllWindows {
		_, err := rc.Get(ctx, w)
		assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)
	}
}

func TestPubSubClient_DeliversToSubscriber(t *testing.T) {
	cache := newTestCache(t)
	ps := NewPubSubClient(cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := "gradehub:test:" + t.Name()
	msgs, err := ps.Subscribe(ctx, channel)
	require.NoError(t, err)

	require.NoError(t, ps.Publish(ctx, channel, []byte(`{"hello":"world"}`)))

	select {
	case msg := <-msgs:
		assert.Equal(t, messaging.RedisMessage{Channel: channel, Payload: `{"hello":"world"}`}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
