package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXP_LevelInvariant(t *testing.T) {
	for total := 0; total <= 10000; total++ {
		require.Equal(t, Level(total/100), XP(total).Level(), "total=%d", total)
	}
	assert.Equal(t, Level(0), XP(-5).Level())
}

func TestXP_Add(t *testing.T) {
	assert.Equal(t, XP(105), XP(95).Add(10))
	assert.Equal(t, XP(95), XP(95).Add(-10))
	assert.Equal(t, 5, XP(105).ProgressToNextLevel())
}

func TestCrossedLevel(t *testing.T) {
	tests := []struct {
		name            string
		newTotal, added int
		oldL, newL      Level
		crossed         bool
	}{
		{"95 plus 10", 105, 10, 0, 1, true},
		{"within band", 150, 20, 1, 1, false},
		{"exact boundary", 200, 1, 1, 2, true},
		{"multiple levels", 350, 300, 0, 3, true},
		{"zero amount", 100, 0, 1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, n, c := CrossedLevel(tt.newTotal, tt.added)
			assert.Equal(t, tt.oldL, o)
			assert.Equal(t, tt.newL, n)
			assert.Equal(t, tt.crossed, c)
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", ErrSubmissionNotFound)
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsUnauthorized(wrapped))

	cause := errors.New("conn reset")
	err := WrapError("progression", "IncrementXP", ErrTransientStore, "increment failed", cause)
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "progression.IncrementXP")

	assert.True(t, IsMalformed(ErrMalformedPayload))
	assert.True(t, IsValidation(ErrMalformedPayload))
	assert.True(t, IsUnauthorized(ErrSignatureMismatch))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultPageLimit, ClampLimit(0))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxPageLimit, ClampLimit(10_000))
}

func TestRank(t *testing.T) {
	assert.True(t, Unranked.IsUnranked())
	assert.True(t, Rank(3).IsTop(10))
	assert.False(t, Rank(11).IsTop(10))
}
