package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gamifyx/gradehub/internal/domain/submission"
)

var tiers = []submission.Difficulty{
	submission.DifficultyEasy,
	submission.DifficultyMedium,
	submission.DifficultyHard,
}

func TestCalculate_Examples(t *testing.T) {
	tests := []struct {
		name   string
		score  int
		base   int
		diff   submission.Difficulty
		expect int
	}{
		{"hard perfect", 100, 100, submission.DifficultyHard, 120},
		{"medium perfect", 100, 100, submission.DifficultyMedium, 110},
		{"easy half", 50, 100, submission.DifficultyEasy, 50},
		{"floors fraction", 33, 10, submission.DifficultyMedium, 3},
		{"minimum one", 1, 10, submission.DifficultyEasy, 1},
		{"zero score", 0, 1000, submission.DifficultyHard, 0},
		{"negative score", -5, 1000, submission.DifficultyHard, 0},
		{"zero base still one", 80, 0, submission.DifficultyHard, 1},
		{"unknown tier is easy", 100, 100, submission.Difficulty("EPIC"), 100},
		{"score clamped", 150, 100, submission.DifficultyEasy, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Calculate(tt.score, tt.base, tt.diff))
		})
	}
}

func TestCalculate_Properties(t *testing.T) {
	for _, base := range []int{0, 1, 7, 100, 250} {
		for _, d := range tiers {
			prev := 0
			for score := 0; score <= 100; score++ {
				r := Calculate(score, base, d)
				assert.GreaterOrEqual(t, r, 0)
				assert.Equal(t, score == 0, r == 0, "zero iff score zero")
				assert.GreaterOrEqual(t, r, prev, "monotone in score")
				assert.LessOrEqual(t, r, max(base*12/10, 1))
				prev = r
			}
		}
	}
}

func TestCalculate_MonotoneInDifficulty(t *testing.T) {
	for score := 0; score <= 100; score += 5 {
		e := Calculate(score, 100, submission.DifficultyEasy)
		m := Calculate(score, 100, submission.DifficultyMedium)
		h := Calculate(score, 100, submission.DifficultyHard)
		assert.LessOrEqual(t, e, m)
		assert.LessOrEqual(t, m, h)
	}
}

func TestMultiplier(t *testing.T) {
	assert.InDelta(t, 1.2, Multiplier(submission.DifficultyHard), 1e-9)
	assert.InDelta(t, 1.0, Multiplier("nope"), 1e-9)
}

func TestFocusSession(t *testing.T) {
	tests := []struct {
		name                         string
		minutes, target, base, streak int
		want                         int
	}{
		{"full no streak", 25, 25, 20, 0, 20},
		{"full with streak", 25, 25, 20, 3, 26},
		{"streak capped", 25, 25, 20, 30, 30},
		{"half interval", 10, 20, 40, 0, 20},
		{"floor applies", 1, 60, 10, 0, FocusFloor},
		{"overtime capped", 90, 30, 20, 0, 20},
		{"no target", 5, 0, 20, 0, 20},
		{"not completed", 0, 25, 20, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FocusSession(tt.minutes, tt.target, tt.base, tt.streak))
		})
	}
}
