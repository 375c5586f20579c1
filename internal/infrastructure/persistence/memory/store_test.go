package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamifyx/gradehub/internal/domain/progression"
	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/internal/domain/submission"
)

func TestStore_IncrementXPIsKeyed(t *testing.T) {
	s := NewStore()
	s.PutUser("u1", "Ada", 40)
	ctx := context.Background()
	award := progression.XPAward{IdempotencyKey: "k1", UserID: "u1", SubmissionID: "s1", Amount: 25}

	res, err := s.IncrementXP(ctx, award)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, shared.XP(65), res.NewTotal)

	res, err = s.IncrementXP(ctx, award)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, shared.XP(65), res.NewTotal)

	_, err = s.IncrementXP(ctx, progression.XPAward{IdempotencyKey: "k2", UserID: "u1", Amount: -1})
	assert.ErrorIs(t, err, shared.ErrNegativeXP)

	_, err = s.IncrementXP(ctx, progression.XPAward{IdempotencyKey: "k3", UserID: "ghost", Amount: 1})
	assert.True(t, shared.IsNotFound(err))
}

func TestStore_SetLevelNeverLowers(t *testing.T) {
	s := NewStore()
	s.PutUser("u1", "Ada", 250)
	ctx := context.Background()

	require.NoError(t, s.SetLevel(ctx, "u1", 1))
	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, shared.Level(2), p.Level)

	require.NoError(t, s.SetLevel(ctx, "u1", 4))
	p, _ = s.Get(ctx, "u1")
	assert.Equal(t, shared.Level(4), p.Level)
}

func TestStore_GrantIsAtMostOnce(t *testing.T) {
	s := NewStore()
	s.PutUser("u1", "Ada", 0)
	ctx := context.Background()
	require.NoError(t, s.UpsertCatalog(ctx, []progression.Badge{
		{ID: "b1", Slug: "first-pass", Criterion: progression.FirstPass{}},
	}))

	g := progression.Grant{UserID: "u1", BadgeID: "b1", EarnedAt: time.Now()}
	inserted, err := s.Grant(ctx, g)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Grant(ctx, g)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, 1, s.GrantCount("u1", "b1"))

	held, err := s.HeldBadgeIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, held, "b1")

	_, err = s.Grant(ctx, progression.Grant{UserID: "u1", BadgeID: "nope"})
	assert.ErrorIs(t, err, shared.ErrBadgeNotFound)
	_, err = s.Grant(ctx, progression.Grant{UserID: "ghost", BadgeID: "b1"})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestStore_UpsertCatalogKeepsIDs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertCatalog(ctx, []progression.Badge{
		{Slug: "flawless", Name: "Flawless", Criterion: progression.PerfectScore{}},
	}))
	first, err := s.ListBadges(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.NotEmpty(t, first[0].ID)

	require.NoError(t, s.UpsertCatalog(ctx, []progression.Badge{
		{Slug: "flawless", Name: "Perfect", Criterion: progression.PerfectScore{}},
		{Slug: "first-pass", Name: "First", Criterion: progression.FirstPass{}},
	}))
	all, err := s.ListBadges(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first-pass", all[0].Slug)
	assert.Equal(t, first[0].ID, all[1].ID)
	assert.Equal(t, "Perfect", all[1].Name)
}

func TestStore_HistoryNewestFirst(t *testing.T) {
	s := NewStore()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"s1", "s2", "s3"} {
		at := base.Add(time.Duration(i) * time.Hour)
		sub := submission.Submission{ID: id, UserID: "u1", Status: submission.StatusInProgress}
		require.NoError(t, sub.ApplyGrade(50+i*10, submission.StatusReview, 0, at))
		s.PutSubmission(sub)
	}
	s.PutSubmission(submission.Submission{ID: "ungraded", UserID: "u1", Status: submission.StatusInProgress})
	s.PutSubmission(submission.Submission{ID: "other", UserID: "u2", Status: submission.StatusInProgress})

	items, err := s.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "s3", items[0].SubmissionID)
	assert.Equal(t, 70, items[0].Score)
	assert.Equal(t, "s1", items[2].SubmissionID)
}

func TestStore_SaveGradeOverwrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	s.PutSubmission(submission.Submission{ID: "s1", UserID: "u1", Status: submission.StatusPass})

	sub, err := s.GetByID(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, sub.ApplyGrade(40, submission.StatusFail, 0, time.Now()))
	require.NoError(t, s.SaveGrade(ctx, sub))

	got, err := s.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, submission.StatusFail, got.Status)
	assert.Equal(t, 40, got.ScoreValue())

	assert.ErrorIs(t, s.SaveGrade(ctx, &submission.Submission{ID: "missing"}), shared.ErrSubmissionNotFound)
}

func TestStore_UserRank(t *testing.T) {
	s := NewStore()
	s.PutUser("a", "Ann", 300)
	s.PutUser("b", "Bo", 300)
	s.PutUser("c", "Cy", 100)
	ctx := context.Background()

	for id, want := range map[string]int{"a": 1, "b": 2, "c": 3, "ghost": shared.Unranked.Int()} {
		got, err := s.UserRank(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}

	rows, err := s.Standings(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestStore_AuditAndAssignments(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	ok, err := s.Exists(ctx, "s1", "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Record(ctx, submission.PushAudit{SubmissionID: "s1", HeadCommit: "abc"}))
	ok, _ = s.Exists(ctx, "s1", "abc")
	assert.True(t, ok)

	s.PutAssignment(submission.Assignment{ID: "a1", Title: "Hello", RequiredFiles: []string{"main.go"}})
	a, err := s.Assignments().GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, a.RequiredFiles)

	_, err = s.Assignments().GetByID(ctx, "a2")
	assert.ErrorIs(t, err, shared.ErrAssignmentNotFound)
}
