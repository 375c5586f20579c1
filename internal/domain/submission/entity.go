// Package submission models a student's attempt at an assignment and the
// rubric that assignment is graded against.
package submission

import (
	"strings"
	"time"

	"github.com/gamifyx/gradehub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
	StatusPass       Status = "PASS"
	StatusReview     Status = "REVIEW"
	StatusFail       Status = "FAIL"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusInProgress, StatusSubmitted, StatusPass, StatusReview, StatusFail:
		return true
	}
	return false
}

// IsTerminal reports whether s is a grading outcome.
// Terminal states can still be overwritten by a later push.
func (s Status) IsTerminal() bool {
	return s == StatusPass || s == StatusReview || s == StatusFail
}

func (s Status) String() string { return string(s) }

// ParseStatus validates a stored status value.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", shared.ErrInvalidStatus
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DIFFICULTY
// ══════════════════════════════════════════════════════════════════════════════

// Difficulty is the assignment's tier. It scales the XP reward.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// ParseDifficulty normalizes v. Unknown tiers fall back to EASY.
func ParseDifficulty(v string) Difficulty {
	switch d := Difficulty(strings.ToUpper(strings.TrimSpace(v))); d {
	case DifficultyMedium, DifficultyHard:
		return d
	default:
		return DifficultyEasy
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Assignment is the grading rubric input. This service never writes it.
type Assignment struct {
	ID            string
	Title         string
	RequiredFiles []string
	// FolderStructure is a comma separated list of expected path prefixes.
	FolderStructure string
	Difficulty      Difficulty
	BaseXP          int
}

// ExpectedFolders splits FolderStructure into trimmed, non-empty tokens.
func (a Assignment) ExpectedFolders() []string {
	if strings.TrimSpace(a.FolderStructure) == "" {
		return nil
	}
	parts := strings.Split(a.FolderStructure, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Submission is one student-assignment pairing under evaluation.
type Submission struct {
	ID           string
	UserID       string
	AssignmentID string
	Status       Status
	// Score is nil until the submission has been graded.
	Score       *int
	XPEarned    int
	RepoURL     string
	Branch      string
	CreatedAt   time.Time
	SubmittedAt *time.Time
	GradedAt    *time.Time
	UpdatedAt   time.Time
}

// ScoreValue returns the score, or 0 when ungraded.
func (s *Submission) ScoreValue() int {
	if s.Score == nil {
		return 0
	}
	return *s.Score
}

// IsPassed reports whether the latest grading was a pass.
func (s *Submission) IsPassed() bool {
	return s.Status == StatusPass
}

// ApplyGrade records a grading outcome. Any prior status is overwritten.
func (s *Submission) ApplyGrade(score int, status Status, xpEarned int, at time.Time) error {
	if score < 0 || score > 100 {
		return shared.ErrInvalidScore
	}
	if !status.Valid() {
		return shared.ErrInvalidStatus
	}
	if xpEarned < 0 {
		xpEarned = 0
	}
	s.Score = &score
	s.Status = status
	s.XPEarned = xpEarned
	s.GradedAt = &at
	if s.SubmittedAt == nil {
		s.SubmittedAt = &at
	}
	s.UpdatedAt = at
	return nil
}

// HistoryItem is the slim projection badge criteria evaluate over.
type HistoryItem struct {
	SubmissionID string
	Status       Status
	Score        int
	SubmittedAt  time.Time
}

// PushAudit records that a (submission, head commit) pair has been processed.
type PushAudit struct {
	SubmissionID string
	RepositoryID string
	HeadCommit   string
	ProcessedAt  time.Time
}
