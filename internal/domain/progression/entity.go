// Package progression holds a user's cumulative XP, level and badges.
package progression

import (
	"github.com/gamifyx/gradehub/internal/domain/shared"
)

// Progression is a user's current standing.
type Progression struct {
	UserID      string
	DisplayName string
	TotalXP     shared.XP
	Level       shared.Level
}

// DerivedLevel is the level TotalXP implies. Stored Level may briefly lag it
// between the XP write and the level write.
func (p Progression) DerivedLevel() shared.Level {
	return p.TotalXP.Level()
}

// XPAward is one keyed increment of a user's XP.
type XPAward struct {
	// IdempotencyKey makes the increment apply at most once.
	IdempotencyKey string
	UserID         string
	SubmissionID   string
	Amount         int
}

// IncrementResult reports the outcome of IncrementXP.
type IncrementResult struct {
	NewTotal shared.XP
	// Applied is false when the idempotency key had already been used.
	Applied bool
}
