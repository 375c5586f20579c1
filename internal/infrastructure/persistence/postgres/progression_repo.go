package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gamifyx/gradehub/internal/domain/progression"
	"github.com/gamifyx/gradehub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionRepository implements progression.Repository for PostgreSQL.
type ProgressionRepository struct {
	conn *Connection
}

// NewProgressionRepository creates a new ProgressionRepository.
func NewProgressionRepository(conn *Connection) *ProgressionRepository {
	return &ProgressionRepository{conn: conn}
}

// Get returns the user's current progression.
func (r *ProgressionRepository) Get(ctx context.Context, userID string) (*progression.Progression, error) {
	var (
		p       progression.Progression
		totalXP int
		level   int
	)
	err := r.conn.QueryRow(ctx,
		`SELECT id, display_name, total_xp, level FROM users WHERE id = $1`,
		userID,
	).Scan(&p.UserID, &p.DisplayName, &totalXP, &level)
	if err != nil {
		return nil, mapError("progression", "Get", err, shared.ErrUserNotFound)
	}

	p.TotalXP = shared.XP(totalXP)
	p.Level = shared.Level(level)
	return &p, nil
}

// IncrementXP records the award in the xp_awards ledger and bumps the user's
// total in the same transaction. A reused idempotency key changes nothing.
func (r *ProgressionRepository) IncrementXP(ctx context.Context, award progression.XPAward) (progression.IncrementResult, error) {
	if award.Amount < 0 {
		return progression.IncrementResult{}, shared.ErrNegativeXP
	}

	var result progression.IncrementResult
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO xp_awards (idempotency_key, user_id, submission_id, amount, awarded_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (idempotency_key) DO NOTHING
		`, award.IdempotencyKey, award.UserID, award.SubmissionID, award.Amount, time.Now().UTC())
		if err != nil {
			return err
		}

		var total int
		if tag.RowsAffected() == 1 {
			err = tx.QueryRow(ctx, `
				UPDATE users SET total_xp = total_xp + $2, updated_at = NOW()
				WHERE id = $1
				RETURNING total_xp
			`, award.UserID, award.Amount).Scan(&total)
			result.Applied = true
		} else {
			err = tx.QueryRow(ctx, `SELECT total_xp FROM users WHERE id = $1`, award.UserID).Scan(&total)
		}
		if err != nil {
			return err
		}

		result.NewTotal = shared.XP(total)
		return nil
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return progression.IncrementResult{}, shared.ErrUserNotFound
		}
		return progression.IncrementResult{}, mapError("progression", "IncrementXP", err, shared.ErrUserNotFound)
	}
	return result, nil
}

// SetLevel raises the stored level. A lower value leaves it untouched.
func (r *ProgressionRepository) SetLevel(ctx context.Context, userID string, level int) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE users SET level = GREATEST(level, $2), updated_at = NOW() WHERE id = $1`,
		userID, level,
	)
	if err != nil {
		return mapError("progression", "SetLevel", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

func isForeignKeyViolation(err error) bool { return pgCode(err) == "23503" }

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepository implements progression.BadgeRepository.
type BadgeRepository struct {
	conn *Connection
}

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

// ListBadges returns the catalog with criteria parsed into their variants.
func (r *BadgeRepository) ListBadges(ctx context.Context) ([]progression.Badge, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, slug, name, description, criterion_kind, criterion_count, criterion_days
		FROM badges
		ORDER BY slug
	`)
	if err != nil {
		return nil, mapError("badge", "ListBadges", err, nil)
	}
	defer rows.Close()

	var badges []progression.Badge
	for rows.Next() {
		var (
			b    progression.Badge
			spec progression.CriterionSpec
		)
		if err := rows.Scan(&b.ID, &b.Slug, &b.Name, &b.Description, &spec.Kind, &spec.Count, &spec.Days); err != nil {
			return nil, mapError("badge", "ListBadges", err, nil)
		}

		b.Criterion, err = progression.ParseCriterion(spec)
		if err != nil {
			return nil, fmt.Errorf("badge %s: %w", b.Slug, err)
		}
		badges = append(badges, b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("badge", "ListBadges", err, nil)
	}
	return badges, nil
}

// HeldBadgeIDs returns the ids of badges the user already holds.
func (r *BadgeRepository) HeldBadgeIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := r.conn.Query(ctx, `SELECT badge_id FROM user_badges WHERE user_id = $1`, userID)
	if err != nil {
		return nil, mapError("badge", "HeldBadgeIDs", err, nil)
	}
	defer rows.Close()

	held := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError("badge", "HeldBadgeIDs", err, nil)
		}
		held[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("badge", "HeldBadgeIDs", err, nil)
	}
	return held, nil
}

// Grant inserts the pair if absent. Only a fresh insert reports true.
func (r *BadgeRepository) Grant(ctx context.Context, grant progression.Grant) (bool, error) {
	earnedAt := grant.EarnedAt
	if earnedAt.IsZero() {
		earnedAt = time.Now().UTC()
	}

	tag, err := r.conn.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, grant.UserID, grant.BadgeID, earnedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, shared.ErrBadgeNotFound
		}
		return false, mapError("badge", "Grant", err, nil)
	}
	return tag.RowsAffected() == 1, nil
}

// UpsertCatalog inserts new badges and refreshes existing ones by slug.
// Existing ids are preserved so prior grants stay attached.
func (r *BadgeRepository) UpsertCatalog(ctx context.Context, badges []progression.Badge) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, b := range badges {
			id := b.ID
			if id == "" {
				id = uuid.NewString()
			}
			spec := progression.SpecOf(b.Criterion)
			batch.Queue(`
				INSERT INTO badges (id, slug, name, description, criterion_kind, criterion_count, criterion_days)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (slug) DO UPDATE SET
					name = EXCLUDED.name,
					description = EXCLUDED.description,
					criterion_kind = EXCLUDED.criterion_kind,
					criterion_count = EXCLUDED.criterion_count,
					criterion_days = EXCLUDED.criterion_days
			`, id, b.Slug, b.Name, b.Description, spec.Kind, spec.Count, spec.Days)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return mapError("badge", "UpsertCatalog", err, nil)
		}
		return nil
	})
}
