// Package memory holds in-process implementations of the domain repositories.
// They back local development when no DATABASE_URL is configured and the
// application-level tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gamifyx/gradehub/internal/domain/leaderboard"
	"github.com/gamifyx/gradehub/internal/domain/progression"
	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/internal/domain/submission"
)

// Store keeps every table in maps guarded by one mutex. Each method is atomic
// with respect to the others, which mirrors the single-statement guarantees of
// the PostgreSQL repositories.
type Store struct {
	mu          sync.RWMutex
	users       map[string]*progression.Progression
	assignments map[string]*submission.Assignment
	submissions map[string]*submission.Submission
	badges      map[string]progression.Badge
	grants      map[string]map[string]time.Time
	awards      map[string]progression.XPAward
	audits      map[auditKey]submission.PushAudit
}

type auditKey struct{ submissionID, headCommit string }

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:       make(map[string]*progression.Progression),
		assignments: make(map[string]*submission.Assignment),
		submissions: make(map[string]*submission.Submission),
		badges:      make(map[string]progression.Badge),
		grants:      make(map[string]map[string]time.Time),
		awards:      make(map[string]progression.XPAward),
		audits:      make(map[auditKey]submission.PushAudit),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

// PutUser inserts or replaces a user.
func (s *Store) PutUser(userID, displayName string, totalXP int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	xp := shared.XP(max(totalXP, 0))
	s.users[userID] = &progression.Progression{
		UserID:      userID,
		DisplayName: displayName,
		TotalXP:     xp,
		Level:       xp.Level(),
	}
}

// PutAssignment inserts or replaces an assignment.
func (s *Store) PutAssignment(a submission.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	cp.RequiredFiles = append([]string(nil), a.RequiredFiles...)
	s.assignments[a.ID] = &cp
}

// PutSubmission inserts or replaces a submission.
func (s *Store) PutSubmission(sub submission.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sub
	s.submissions[sub.ID] = &cp
}

// GrantCount returns how many grant rows exist for the pair. Tests use it to
// check the at-most-one invariant.
func (s *Store) GrantCount(userID, badgeID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.grants[userID][badgeID]; ok {
		return 1
	}
	return 0
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) Get(_ context.Context, userID string) (*progression.Progression, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[userID]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) IncrementXP(_ context.Context, award progression.XPAward) (progression.IncrementResult, error) {
	if award.Amount < 0 {
		return progression.IncrementResult{}, shared.ErrNegativeXP
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.users[award.UserID]
	if !ok {
		return progression.IncrementResult{}, shared.ErrUserNotFound
	}
	if _, seen := s.awards[award.IdempotencyKey]; seen {
		return progression.IncrementResult{NewTotal: p.TotalXP}, nil
	}
	s.awards[award.IdempotencyKey] = award
	p.TotalXP = p.TotalXP.Add(award.Amount)
	return progression.IncrementResult{NewTotal: p.TotalXP, Applied: true}, nil
}

func (s *Store) SetLevel(_ context.Context, userID string, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[userID]
	if !ok {
		return shared.ErrUserNotFound
	}
	p.Level = max(p.Level, shared.Level(level))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) ListBadges(context.Context) ([]progression.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]progression.Badge, 0, len(s.badges))
	for _, b := range s.badges {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *Store) HeldBadgeIDs(_ context.Context, userID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	held := make(map[string]struct{}, len(s.grants[userID]))
	for id := range s.grants[userID] {
		held[id] = struct{}{}
	}
	return held, nil
}

func (s *Store) Grant(_ context.Context, g progression.Grant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[g.UserID]; !ok {
		return false, shared.ErrUserNotFound
	}
	if _, ok := s.badges[g.BadgeID]; !ok {
		return false, shared.ErrBadgeNotFound
	}
	set, ok := s.grants[g.UserID]
	if !ok {
		set = make(map[string]time.Time)
		s.grants[g.UserID] = set
	}
	if _, exists := set[g.BadgeID]; exists {
		return false, nil
	}
	set[g.BadgeID] = g.EarnedAt
	return true, nil
}

// UpsertCatalog matches by slug and keeps the existing id.
func (s *Store) UpsertCatalog(_ context.Context, badges []progression.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySlug := make(map[string]string, len(s.badges))
	for id, b := range s.badges {
		bySlug[b.Slug] = id
	}
	for _, b := range badges {
		if id, ok := bySlug[b.Slug]; ok {
			b.ID = id
		} else if b.ID == "" {
			b.ID = uuid.NewString()
		}
		s.badges[b.ID] = b
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSIONS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) GetByID(_ context.Context, id string) (*submission.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil, shared.ErrSubmissionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *Store) SaveGrade(_ context.Context, sub *submission.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.submissions[sub.ID]
	if !ok {
		return shared.ErrSubmissionNotFound
	}
	cur.Status = sub.Status
	cur.Score = sub.Score
	cur.XPEarned = sub.XPEarned
	cur.GradedAt = sub.GradedAt
	if cur.SubmittedAt == nil {
		cur.SubmittedAt = sub.SubmittedAt
	}
	cur.UpdatedAt = sub.UpdatedAt
	return nil
}

func (s *Store) History(_ context.Context, userID string) ([]submission.HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []submission.HistoryItem
	for _, sub := range s.submissions {
		if sub.UserID != userID || sub.GradedAt == nil {
			continue
		}
		at := *sub.GradedAt
		if sub.SubmittedAt != nil {
			at = *sub.SubmittedAt
		}
		items = append(items, submission.HistoryItem{
			SubmissionID: sub.ID,
			Status:       sub.Status,
			Score:        sub.ScoreValue(),
			SubmittedAt:  at,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SubmittedAt.After(items[j].SubmittedAt) })
	return items, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) Exists(_ context.Context, submissionID, headCommit string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.audits[auditKey{submissionID, headCommit}]
	return ok, nil
}

func (s *Store) Record(_ context.Context, a submission.PushAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := auditKey{a.SubmissionID, a.HeadCommit}
	if _, ok := s.audits[k]; !ok {
		s.audits[k] = a
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) Standings(context.Context) ([]leaderboard.Standing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]leaderboard.Standing, 0, len(s.users))
	for _, p := range s.users {
		out = append(out, leaderboard.Standing{UserID: p.UserID, DisplayName: p.DisplayName, TotalXP: p.TotalXP.Int()})
	}
	return out, nil
}

func (s *Store) UserRank(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	me, ok := s.users[userID]
	if !ok {
		return shared.Unranked.Int(), nil
	}
	rank := 1
	for _, p := range s.users {
		if p.TotalXP > me.TotalXP || (p.TotalXP == me.TotalXP && p.UserID < me.UserID) {
			rank++
		}
	}
	return rank, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENTS
// ══════════════════════════════════════════════════════════════════════════════

// Assignments returns the read-only assignment view of the store.
func (s *Store) Assignments() submission.AssignmentRepository { return assignmentView{s} }

type assignmentView struct{ s *Store }

func (v assignmentView) GetByID(_ context.Context, id string) (*submission.Assignment, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	a, ok := v.s.assignments[id]
	if !ok {
		return nil, shared.ErrAssignmentNotFound
	}
	cp := *a
	return &cp, nil
}

var (
	_ progression.Repository          = (*Store)(nil)
	_ progression.BadgeRepository     = (*Store)(nil)
	_ submission.Repository           = (*Store)(nil)
	_ submission.AuditRepository      = (*Store)(nil)
	_ leaderboard.Repository          = (*Store)(nil)
	_ submission.AssignmentRepository = assignmentView{}
)
