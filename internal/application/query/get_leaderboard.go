package query

import (
	"context"
	"time"

	"github.com/gamifyx/gradehub/internal/domain/leaderboard"
	"github.com/gamifyx/gradehub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery selects a window and page size.
type GetLeaderboardQuery struct {
	Window string
	// Limit is clamped to [1, shared.MaxPageLimit]; zero means the default.
	Limit int
}

// GetLeaderboardResult is the response body for the leaderboard endpoint.
type GetLeaderboardResult struct {
	Window      string              `json:"window"`
	Entries     []leaderboard.Entry `json:"entries"`
	TotalCount  int                 `json:"total_count"`
	HasMore     bool                `json:"has_more"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// GetLeaderboardHandler serves leaderboard reads.
type GetLeaderboardHandler struct {
	rankings     *RankingService
	defaultLimit int
}

// NewGetLeaderboardHandler creates the handler. defaultLimit applies when a
// query omits the limit.
func NewGetLeaderboardHandler(rankings *RankingService, defaultLimit int) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{rankings: rankings, defaultLimit: defaultLimit}
}

// Handle returns the top of the requested window.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	window, err := leaderboard.ParseWindow(q.Window)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit == 0 {
		limit = h.defaultLimit
	}
	limit = shared.ClampLimit(limit)

	ranking, err := h.rankings.Ranking(ctx, window)
	if err != nil {
		return nil, err
	}

	entries := ranking.Top(limit)
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	return &GetLeaderboardResult{
		Window:      window.String(),
		Entries:     entries,
		TotalCount:  ranking.Count(),
		HasMore:     ranking.Count() > len(entries),
		GeneratedAt: time.Now().UTC(),
	}, nil
}
