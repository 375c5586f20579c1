package shared

// ═══════════════════════════════════════════════════════════════════════════
// XP VALUE OBJECT
// ═══════════════════════════════════════════════════════════════════════════

// XP is a user's cumulative experience. It never decreases.
type XP int

// XPPerLevel is the fixed width of every level band.
const XPPerLevel = 100

func (x XP) Int() int { return int(x) }

// Add returns x+amount. Negative amounts are ignored.
func (x XP) Add(amount int) XP {
	if amount <= 0 {
		return x
	}
	return x + XP(amount)
}

// Level is floor(x / 100). Negative totals clamp to level 0.
func (x XP) Level() Level {
	if x <= 0 {
		return 0
	}
	return Level(int(x) / XPPerLevel)
}

// ProgressToNextLevel returns the percent (0-99) of the current band filled.
func (x XP) ProgressToNextLevel() int {
	if x <= 0 {
		return 0
	}
	return int(x) % XPPerLevel
}

// ═══════════════════════════════════════════════════════════════════════════
// LEVEL VALUE OBJECT
// ═══════════════════════════════════════════════════════════════════════════

// Level is derived from XP and starts at 0.
type Level int

func (l Level) Int() int { return int(l) }

// CrossedLevel reports whether adding amount to a total that ended at
// newTotal moved the user into a higher level.
func CrossedLevel(newTotal, amount int) (oldLevel, newLevel Level, crossed bool) {
	before := newTotal - amount
	if before < 0 {
		before = 0
	}
	oldLevel = XP(before).Level()
	newLevel = XP(newTotal).Level()
	return oldLevel, newLevel, newLevel > oldLevel
}

// ═══════════════════════════════════════════════════════════════════════════
// RANK VALUE OBJECT
// ═══════════════════════════════════════════════════════════════════════════

// Rank is a 1-based leaderboard position. Zero means unranked.
type Rank int

const Unranked Rank = 0

func (r Rank) Int() int         { return int(r) }
func (r Rank) IsUnranked() bool { return r <= Unranked }
func (r Rank) IsTop(n int) bool { return r > Unranked && int(r) <= n }

// ═══════════════════════════════════════════════════════════════════════════
// PAGINATION
// ═══════════════════════════════════════════════════════════════════════════

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// ClampLimit normalizes a caller-supplied page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageLimit
	case limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return limit
	}
}
