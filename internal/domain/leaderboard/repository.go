package leaderboard

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by Cache.Get when the window is not cached.
var ErrCacheMiss = errors.New("leaderboard: cache miss")

// Repository reads the ranking inputs from the system of record.
type Repository interface {
	// Standings returns every eligible user with their total XP.
	Standings(ctx context.Context) ([]Standing, error)

	// UserRank computes one user's position without building the full list.
	// Unknown users get shared.Unranked.
	UserRank(ctx context.Context, userID string) (int, error)
}

// Cache stores ranked lists per window.
type Cache interface {
	// Get returns ErrCacheMiss when the window is absent or expired.
	Get(ctx context.Context, window Window) ([]Entry, error)
	Set(ctx context.Context, window Window, entries []Entry) error
	// DeleteAll removes every window key.
	DeleteAll(ctx context.Context, windows []Window) error
}
