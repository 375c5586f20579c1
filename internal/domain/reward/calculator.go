// Package reward converts quality scores into XP.
package reward

import "github.com/gamifyx/gradehub/internal/domain/submission"

// Multipliers are kept in tenths so the formula stays in integer arithmetic.
var multiplierTenths = map[submission.Difficulty]int{
	submission.DifficultyEasy:   10,
	submission.DifficultyMedium: 11,
	submission.DifficultyHard:   12,
}

// Multiplier returns the difficulty multiplier as a float for display.
func Multiplier(d submission.Difficulty) float64 {
	return float64(tenths(d)) / 10
}

func tenths(d submission.Difficulty) int {
	if m, ok := multiplierTenths[d]; ok {
		return m
	}
	return multiplierTenths[submission.DifficultyEasy]
}

// Calculate returns floor(baseXP * multiplier * score/100).
// A zero score earns nothing. Any positive score earns at least 1.
func Calculate(score, baseXP int, difficulty submission.Difficulty) int {
	if score <= 0 {
		return 0
	}
	score = min(score, 100)
	baseXP = max(baseXP, 0)

	xp := baseXP * tenths(difficulty) * score / 1000
	return max(xp, 1)
}

const (
	// FocusFloor is the minimum award for any completed focus interval.
	FocusFloor = 5
	// streakStepPct is the bonus per consecutive day.
	streakStepPct = 10
	// streakCapPct bounds the streak bonus.
	streakCapPct = 50
)

// FocusSession rewards a timed focus interval. The score is the share of
// the target completed, the multiplier is fixed at 1.0 and a streak adds up
// to +50%.
func FocusSession(minutes, targetMinutes, baseXP, streakDays int) int {
	if minutes <= 0 {
		return 0
	}

	score := 100
	if targetMinutes > 0 {
		score = min(minutes*100/targetMinutes, 100)
	}

	base := Calculate(score, baseXP, submission.DifficultyEasy)
	bonusPct := min(max(streakDays, 0)*streakStepPct, streakCapPct)
	total := base + base*bonusPct/100

	return max(total, FocusFloor)
}
