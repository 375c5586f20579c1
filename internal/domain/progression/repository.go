package progression

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository mutates user progression. Every write is safe to retry.
type Repository interface {
	// Get returns shared.ErrUserNotFound when the user is unknown.
	Get(ctx context.Context, userID string) (*Progression, error)

	// IncrementXP atomically adds award.Amount to the user's total unless
	// award.IdempotencyKey was already applied. The current total is returned
	// in both cases.
	IncrementXP(ctx context.Context, award XPAward) (IncrementResult, error)

	// SetLevel raises the stored level to level. It never lowers it.
	SetLevel(ctx context.Context, userID string, level int) error
}

// BadgeRepository reads the catalog and records grants.
type BadgeRepository interface {
	// ListBadges returns the full catalog with parsed criteria.
	ListBadges(ctx context.Context) ([]Badge, error)

	// HeldBadgeIDs returns the ids of badges the user already holds.
	HeldBadgeIDs(ctx context.Context, userID string) (map[string]struct{}, error)

	// Grant inserts the (user, badge) pair if absent. inserted is true only
	// when this call created the row.
	Grant(ctx context.Context, grant Grant) (inserted bool, err error)

	// UpsertCatalog seeds or refreshes the catalog by slug.
	UpsertCatalog(ctx context.Context, badges []Badge) error
}
