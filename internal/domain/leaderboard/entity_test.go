package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamifyx/gradehub/internal/domain/shared"
)

func TestBuild_OrdersAndRanksSequentially(t *testing.T) {
	r := Build([]Standing{
		{UserID: "u3", DisplayName: "Cleo", TotalXP: 250},
		{UserID: "u1", DisplayName: "Ari", TotalXP: 400},
		{UserID: "u4", DisplayName: "Dev", TotalXP: 250},
		{UserID: "u2", DisplayName: "Bo", TotalXP: 90},
	})

	entries := r.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, []string{"u1", "u3", "u4", "u2"}, []string{entries[0].UserID, entries[1].UserID, entries[2].UserID, entries[3].UserID})
	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
		if i > 0 {
			assert.LessOrEqual(t, e.XP, entries[i-1].XP)
		}
	}
	assert.Equal(t, 4, entries[0].Level)
	assert.Equal(t, 0, entries[3].Level)
}

func TestRanking_TopAndRankOf(t *testing.T) {
	r := Build([]Standing{{UserID: "a", TotalXP: 1}, {UserID: "b", TotalXP: 2}, {UserID: "c", TotalXP: 3}})

	assert.Len(t, r.Top(2), 2)
	assert.Len(t, r.Top(0), 3)
	assert.Equal(t, shared.Rank(1), r.RankOf("c"))
	assert.Equal(t, shared.Unranked, r.RankOf("zzz"))
}

func TestFromEntries(t *testing.T) {
	r := FromEntries([]Entry{{Rank: 1, UserID: "x"}, {Rank: 2, UserID: "y"}})
	assert.Equal(t, shared.Rank(2), r.RankOf("y"))
	assert.Equal(t, 2, r.Count())
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("Weekly")
	require.NoError(t, err)
	assert.Equal(t, WindowWeekly, w)

	_, err = ParseWindow("yearly")
	assert.True(t, shared.IsMalformed(err))
}
