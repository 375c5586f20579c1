package submission

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository reads submissions and persists grading outcomes.
type Repository interface {
	// GetByID returns shared.ErrSubmissionNotFound when absent.
	GetByID(ctx context.Context, id string) (*Submission, error)

	// SaveGrade persists score, status, xp_earned and timestamps in a single write.
	SaveGrade(ctx context.Context, s *Submission) error

	// History returns the user's submissions that have been graded at least once,
	// newest first.
	History(ctx context.Context, userID string) ([]HistoryItem, error)
}

// AssignmentRepository is read-only.
type AssignmentRepository interface {
	// GetByID returns shared.ErrAssignmentNotFound when absent.
	GetByID(ctx context.Context, id string) (*Assignment, error)
}

// AuditRepository tracks processed pushes for replay detection.
type AuditRepository interface {
	// Exists reports whether the pair was already processed.
	Exists(ctx context.Context, submissionID, headCommit string) (bool, error)

	// Record inserts the audit row. A duplicate pair is not an error.
	Record(ctx context.Context, audit PushAudit) error
}
