// Package memory provides in-process stand-ins for the Redis-backed stores,
// used when Redis is disabled and in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gamifyx/gradehub/internal/domain/leaderboard"
)

type rankingItem struct {
	entries   []leaderboard.Entry
	expiresAt time.Time
}

// RankingCache is a TTL map implementing leaderboard.Cache.
type RankingCache struct {
	mu    sync.RWMutex
	items map[leaderboard.Window]rankingItem
	ttl   time.Duration
	now   func() time.Time
}

// NewRankingCache creates a RankingCache with the given ttl (one hour when non-positive).
func NewRankingCache(ttl time.Duration) *RankingCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RankingCache{
		items: make(map[leaderboard.Window]rankingItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns leaderboard.ErrCacheMiss for absent or expired windows.
func (c *RankingCache) Get(_ context.Context, window leaderboard.Window) ([]leaderboard.Entry, error) {
	c.mu.RLock()
	item, ok := c.items[window]
	c.mu.RUnlock()

	if !ok || !c.now().Before(item.expiresAt) {
		return nil, leaderboard.ErrCacheMiss
	}

	out := make([]leaderboard.Entry, len(item.entries))
	copy(out, item.entries)
	return out, nil
}

func (c *RankingCache) Set(_ context.Context, window leaderboard.Window, entries []leaderboard.Entry) error {
	stored := make([]leaderboard.Entry, len(entries))
	copy(stored, entries)

	c.mu.Lock()
	c.items[window] = rankingItem{entries: stored, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *RankingCache) DeleteAll(_ context.Context, windows []leaderboard.Window) error {
	c.mu.Lock()
	for _, w := range windows {
		delete(c.items, w)
	}
	c.mu.Unlock()
	return nil
}

var _ leaderboard.Cache = (*RankingCache)(nil)
