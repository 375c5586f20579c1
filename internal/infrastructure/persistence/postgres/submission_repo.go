package postgres

import (
	"context"
	"time"

	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/internal/domain/submission"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// SubmissionRepository implements submission.Repository for PostgreSQL.
type SubmissionRepository struct {
	conn *Connection
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(conn *Connection) *SubmissionRepository {
	return &SubmissionRepository{conn: conn}
}

// GetByID returns a submission by ID.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*submission.Submission, error) {
	query := `
		SELECT id, user_id, assignment_id, status, score, xp_earned, repo_url, branch,
			   created_at, submitted_at, graded_at, updated_at
		FROM submissions
		WHERE id = $1
	`

	var (
		s      submission.Submission
		status string
	)
	err := r.conn.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.AssignmentID,
		&status,
		&s.Score,
		&s.XPEarned,
		&s.RepoURL,
		&s.Branch,
		&s.CreatedAt,
		&s.SubmittedAt,
		&s.GradedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, mapError("submission", "GetByID", err, shared.ErrSubmissionNotFound)
	}

	s.Status, err = submission.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveGrade writes the grading outcome in one statement.
func (r *SubmissionRepository) SaveGrade(ctx context.Context, s *submission.Submission) error {
	query := `
		UPDATE submissions SET
			score = $1,
			status = $2,
			xp_earned = $3,
			graded_at = $4,
			submitted_at = COALESCE(submitted_at, $5),
			updated_at = $6
		WHERE id = $7
	`

	tag, err := r.conn.Exec(ctx, query,
		s.Score,
		string(s.Status),
		s.XPEarned,
		s.GradedAt,
		s.SubmittedAt,
		s.UpdatedAt,
		s.ID,
	)
	if err != nil {
		return mapError("submission", "SaveGrade", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSubmissionNotFound
	}
	return nil
}

// History returns the user's graded submissions, newest first.
func (r *SubmissionRepository) History(ctx context.Context, userID string) ([]submission.HistoryItem, error) {
	query := `
		SELECT id, status, COALESCE(score, 0), COALESCE(submitted_at, graded_at, created_at)
		FROM submissions
		WHERE user_id = $1 AND graded_at IS NOT NULL
		ORDER BY COALESCE(submitted_at, graded_at, created_at) DESC
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError("submission", "History", err, nil)
	}
	defer rows.Close()

	var items []submission.HistoryItem
	for rows.Next() {
		var (
			item   submission.HistoryItem
			status string
		)
		if err := rows.Scan(&item.SubmissionID, &status, &item.Score, &item.SubmittedAt); err != nil {
			return nil, mapError("submission", "History", err, nil)
		}
		item.Status = submission.Status(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("submission", "History", err, nil)
	}
	return items, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// AssignmentRepository implements submission.AssignmentRepository.
type AssignmentRepository struct {
	conn *Connection
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(conn *Connection) *AssignmentRepository {
	return &AssignmentRepository{conn: conn}
}

// GetByID returns an assignment by ID.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*submission.Assignment, error) {
	query := `
		SELECT id, title, required_files, folder_structure, difficulty, base_xp
		FROM assignments
		WHERE id = $1
	`

	var (
		a          submission.Assignment
		difficulty string
	)
	err := r.conn.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.Title,
		&a.RequiredFiles,
		&a.FolderStructure,
		&difficulty,
		&a.BaseXP,
	)
	if err != nil {
		return nil, mapError("assignment", "GetByID", err, shared.ErrAssignmentNotFound)
	}
	a.Difficulty = submission.ParseDifficulty(difficulty)
	return &a, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PUSH AUDIT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// AuditRepository implements submission.AuditRepository.
type AuditRepository struct {
	conn *Connection
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(conn *Connection) *AuditRepository {
	return &AuditRepository{conn: conn}
}

// Exists reports whether (submissionID, headCommit) was already processed.
func (r *AuditRepository) Exists(ctx context.Context, submissionID, headCommit string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM push_audit WHERE submission_id = $1 AND head_commit = $2)`,
		submissionID, headCommit,
	).Scan(&exists)
	if err != nil {
		return false, mapError("audit", "Exists", err, nil)
	}
	return exists, nil
}

// Record inserts the audit row. Duplicates are ignored.
func (r *AuditRepository) Record(ctx context.Context, audit submission.PushAudit) error {
	processedAt := audit.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	_, err := r.conn.Exec(ctx, `
		INSERT INTO push_audit (submission_id, repository_id, head_commit, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (submission_id, head_commit) DO NOTHING
	`, audit.SubmissionID, audit.RepositoryID, audit.HeadCommit, processedAt)
	if err != nil {
		return mapError("audit", "Record", err, nil)
	}
	return nil
}
