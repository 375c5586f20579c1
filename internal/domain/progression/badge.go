package progression

import (
	"fmt"
	"strings"
	"time"

	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/internal/domain/submission"
	"github.com/gamifyx/gradehub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE
// ══════════════════════════════════════════════════════════════════════════════

// Badge is a catalog entry with a parsed unlock rule.
type Badge struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Criterion   Criterion
}

// Grant records that a user holds a badge.
type Grant struct {
	UserID   string
	BadgeID  string
	EarnedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// CRITERIA
// Closed set: every variant lives in this file and ParseCriterion is the only
// constructor from catalog data.
// ══════════════════════════════════════════════════════════════════════════════

// EvaluationContext is what a criterion may look at.
type EvaluationContext struct {
	UserID string
	// History is every graded submission of the user, including the trigger.
	History []submission.HistoryItem
	// TriggerID is the submission whose grading started this evaluation.
	TriggerID string
	Now       time.Time
}

func (c EvaluationContext) trigger() (submission.HistoryItem, bool) {
	for _, h := range c.History {
		if h.SubmissionID == c.TriggerID {
			return h, true
		}
	}
	return submission.HistoryItem{}, false
}

// Criterion is a pure unlock predicate.
type Criterion interface {
	Satisfied(ctx EvaluationContext) bool
	// Kind is the catalog name of the variant.
	Kind() string
	criterion()
}

const (
	KindFirstPass           = "first_pass"
	KindJustPassed          = "just_passed"
	KindTotalSubmissions    = "total_submissions"
	KindSubmissionsInWindow = "submissions_in_window"
	KindPerfectScore        = "perfect_score"
)

// FirstPass holds when the trigger passed and no other submission had.
type FirstPass struct{}

func (FirstPass) Kind() string { return KindFirstPass }
func (FirstPass) criterion()   {}

func (FirstPass) Satisfied(ctx EvaluationContext) bool {
	t, ok := ctx.trigger()
	if !ok || t.Status != submission.StatusPass {
		return false
	}
	for _, h := range ctx.History {
		if h.SubmissionID != ctx.TriggerID && h.Status == submission.StatusPass {
			return false
		}
	}
	return true
}

// JustPassed holds when the triggering submission passed.
type JustPassed struct{}

func (JustPassed) Kind() string { return KindJustPassed }
func (JustPassed) criterion()   {}

func (JustPassed) Satisfied(ctx EvaluationContext) bool {
	t, ok := ctx.trigger()
	return ok && t.Status == submission.StatusPass
}

// TotalSubmissions holds once the user has at least Count graded submissions.
type TotalSubmissions struct {
	Count int
}

func (TotalSubmissions) Kind() string { return KindTotalSubmissions }
func (TotalSubmissions) criterion()   {}

func (c TotalSubmissions) Satisfied(ctx EvaluationContext) bool {
	return len(ctx.History) >= c.Count
}

// SubmissionsInWindow holds when Count submissions landed in the trailing Days.
type SubmissionsInWindow struct {
	Count int
	Days  int
}

func (SubmissionsInWindow) Kind() string { return KindSubmissionsInWindow }
func (SubmissionsInWindow) criterion()   {}

func (c SubmissionsInWindow) Satisfied(ctx EvaluationContext) bool {
	since := timeutil.TrailingDays(ctx.Now, c.Days)
	n := 0
	for _, h := range ctx.History {
		if timeutil.Within(h.SubmittedAt, since, ctx.Now) {
			n++
		}
	}
	return n >= c.Count
}

// PerfectScore holds when the triggering submission scored 100.
type PerfectScore struct{}

func (PerfectScore) Kind() string { return KindPerfectScore }
func (PerfectScore) criterion()   {}

func (PerfectScore) Satisfied(ctx EvaluationContext) bool {
	t, ok := ctx.trigger()
	return ok && t.Score >= 100
}

// CriterionSpec is the serialized form stored in the catalog and database.
type CriterionSpec struct {
	Kind  string `yaml:"kind" json:"kind"`
	Count int    `yaml:"count,omitempty" json:"count,omitempty"`
	Days  int    `yaml:"days,omitempty" json:"days,omitempty"`
}

// DefaultWindowDays applies when a windowed criterion omits days.
const DefaultWindowDays = 7

// ParseCriterion builds a variant from its serialized form.
func ParseCriterion(spec CriterionSpec) (Criterion, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
	case KindFirstPass:
		return FirstPass{}, nil
	case KindJustPassed:
		return JustPassed{}, nil
	case KindPerfectScore:
		return PerfectScore{}, nil
	case KindTotalSubmissions:
		if spec.Count <= 0 {
			return nil, shared.WrapError("badge", "ParseCriterion", shared.ErrValidation, "count must be positive", fmt.Errorf("kind %q", spec.Kind))
		}
		return TotalSubmissions{Count: spec.Count}, nil
	case KindSubmissionsInWindow:
		if spec.Count <= 0 {
			return nil, shared.WrapError("badge", "ParseCriterion", shared.ErrValidation, "count must be positive", fmt.Errorf("kind %q", spec.Kind))
		}
		days := spec.Days
		if days <= 0 {
			days = DefaultWindowDays
		}
		return SubmissionsInWindow{Count: spec.Count, Days: days}, nil
	default:
		return nil, fmt.Errorf("%w: kind %q", shared.ErrUnknownCriterion, spec.Kind)
	}
}

// SpecOf serializes a criterion back to its catalog form.
func SpecOf(c Criterion) CriterionSpec {
	switch v := c.(type) {
	case TotalSubmissions:
		return CriterionSpec{Kind: v.Kind(), Count: v.Count}
	case SubmissionsInWindow:
		return CriterionSpec{Kind: v.Kind(), Count: v.Count, Days: v.Days}
	default:
		return CriterionSpec{Kind: c.Kind()}
	}
}

// Eligible returns the badges whose criterion holds and which the user does
// not already hold.
func Eligible(catalog []Badge, held map[string]struct{}, ctx EvaluationContext) []Badge {
	var out []Badge
	for _, b := range catalog {
		if _, ok := held[b.ID]; ok {
			continue
		}
		if b.Criterion != nil && b.Criterion.Satisfied(ctx) {
			out = append(out, b)
		}
	}
	return out
}
