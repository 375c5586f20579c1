package redis

import (
	"context"
	"errors"
	"time"

	"github.com/gamifyx/gradehub/internal/domain/leaderboard"
)

// DefaultRankingTTL bounds how stale a cached ranking may get.
const DefaultRankingTTL = time.Hour

// RankingCache implements leaderboard.Cache with one JSON list per window.
type RankingCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewRankingCache creates a RankingCache. A non-positive ttl uses DefaultRankingTTL.
func NewRankingCache(cache *Cache, ttl time.Duration) *RankingCache {
	if ttl <= 0 {
		ttl = DefaultRankingTTL
	}
	return &RankingCache{cache: cache, ttl: ttl}
}

// Get returns leaderboard.ErrCacheMiss when the window key is absent.
func (r *RankingCache) Get(ctx context.Context, window leaderboard.Window) ([]leaderboard.Entry, error) {
	var entries []leaderboard.Entry
	if err := r.cache.GetJSON(ctx, RankingKey(window.String()), &entries); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, leaderboard.ErrCacheMiss
		}
		return nil, err
	}
	return entries, nil
}

// Set overwrites the window with entries. Last writer wins.
func (r *RankingCache) Set(ctx context.Context, window leaderboard.Window, entries []leaderboard.Entry) error {
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	return r.cache.SetJSON(ctx, RankingKey(window.String()), entries, r.ttl)
}

// DeleteAll removes every window in one DEL.
func (r *RankingCache) DeleteAll(ctx context.Context, windows []leaderboard.Window) error {
	keys := make([]string, 0, len(windows))
	for _, w := range windows {
		keys = append(keys, RankingKey(w.String()))
	}
	return r.cache.Delete(ctx, keys...)
}

var _ leaderboard.Cache = (*RankingCache)(nil)
