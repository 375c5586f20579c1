// Package leaderboard builds ranked views of user progression.
// Rankings are always recomputable from stored XP. Caches only hold copies.
package leaderboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gamifyx/gradehub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WINDOW
// ══════════════════════════════════════════════════════════════════════════════

// Window names a ranking period.
type Window string

const (
	WindowDaily   Window = "daily"
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
)

// AllWindows lists every window. Invalidation clears all of them.
var AllWindows = []Window{WindowDaily, WindowWeekly, WindowMonthly}

// ParseWindow validates a caller-supplied window name.
func ParseWindow(v string) (Window, error) {
	w := Window(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range AllWindows {
		if w == known {
			return w, nil
		}
	}
	return "", fmt.Errorf("%w: %q", shared.ErrInvalidWindow, v)
}

func (w Window) String() string { return string(w) }

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one row of a ranking.
type Entry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	XP          int    `json:"xp"`
	Level       int    `json:"level"`
}

// Standing is the raw store row a ranking is built from.
type Standing struct {
	UserID      string
	DisplayName string
	TotalXP     int
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Ranking is a full ordered list of users.
type Ranking struct {
	entries []Entry
	byID    map[string]int
}

// Build orders standings by XP descending, then user id ascending, and assigns
// sequential ranks starting at 1. Ties never share a rank.
func Build(standings []Standing) *Ranking {
	entries := make([]Entry, 0, len(standings))
	for _, s := range standings {
		entries = append(entries, Entry{
			UserID:      s.UserID,
			DisplayName: s.DisplayName,
			XP:          max(s.TotalXP, 0),
			Level:       shared.XP(s.TotalXP).Level().Int(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].XP != entries[j].XP {
			return entries[i].XP > entries[j].XP
		}
		return entries[i].UserID < entries[j].UserID
	})

	r := &Ranking{entries: entries, byID: make(map[string]int, len(entries))}
	for i := range r.entries {
		r.entries[i].Rank = i + 1
		r.byID[r.entries[i].UserID] = i
	}
	return r
}

// FromEntries wraps an already ranked list, e.g. one read back from cache.
func FromEntries(entries []Entry) *Ranking {
	r := &Ranking{entries: entries, byID: make(map[string]int, len(entries))}
	for i, e := range entries {
		r.byID[e.UserID] = i
	}
	return r
}

// Entries returns the full list.
func (r *Ranking) Entries() []Entry { return r.entries }

func (r *Ranking) Count() int { return len(r.entries) }

// Top returns at most n entries from the head.
func (r *Ranking) Top(n int) []Entry {
	if n <= 0 || n >= len(r.entries) {
		return r.entries
	}
	return r.entries[:n]
}

// RankOf returns the user's rank, or shared.Unranked.
func (r *Ranking) RankOf(userID string) shared.Rank {
	if i, ok := r.byID[userID]; ok {
		return shared.Rank(r.entries[i].Rank)
	}
	return shared.Unranked
}
