package postgres

import (
	"context"

	"github.com/gamifyx/gradehub/internal/domain/leaderboard"
	"github.com/gamifyx/gradehub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRepository implements leaderboard.Repository for PostgreSQL.
// Rankings are derived from users.total_xp on every call.
type LeaderboardRepository struct {
	conn *Connection
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(conn *Connection) *LeaderboardRepository {
	return &LeaderboardRepository{conn: conn}
}

// Ties break on the id's byte order, matching the in-memory ranking, whatever
// the database's default collation.
const (
	standingsSQL = `
		SELECT id, display_name, total_xp
		FROM users
		ORDER BY total_xp DESC, id COLLATE "C" ASC
	`
	userRankSQL = `
		SELECT 1 + COUNT(*)
		FROM users u, (SELECT total_xp FROM users WHERE id = $1) me
		WHERE u.total_xp > me.total_xp
		   OR (u.total_xp = me.total_xp AND u.id COLLATE "C" < $1 COLLATE "C")
	`
)

// Standings returns every user in ranking order.
func (r *LeaderboardRepository) Standings(ctx context.Context) ([]leaderboard.Standing, error) {
	rows, err := r.conn.Query(ctx, standingsSQL)
	if err != nil {
		return nil, mapError("leaderboard", "Standings", err, nil)
	}
	defer rows.Close()

	var out []leaderboard.Standing
	for rows.Next() {
		var s leaderboard.Standing
		if err := rows.Scan(&s.UserID, &s.DisplayName, &s.TotalXP); err != nil {
			return nil, mapError("leaderboard", "Standings", err, nil)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("leaderboard", "Standings", err, nil)
	}
	return out, nil
}

// UserRank counts the users ordered ahead of userID using the same ordering
// as Standings.
func (r *LeaderboardRepository) UserRank(ctx context.Context, userID string) (int, error) {
	var rank int
	err := r.conn.QueryRow(ctx, userRankSQL, userID).Scan(&rank)
	if err != nil {
		return int(shared.Unranked), mapError("leaderboard", "UserRank", err, nil)
	}

	// With no "me" row the cross join is empty and COUNT(*) is 0, so an
	// unknown user would read as rank 1. Check existence separately.
	if rank == 1 {
		var exists bool
		if err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return int(shared.Unranked), mapError("leaderboard", "UserRank", err, nil)
		}
		if !exists {
			return int(shared.Unranked), nil
		}
	}
	return rank, nil
}

var _ leaderboard.Repository = (*LeaderboardRepository)(nil)
