package handlers

import (
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gamifyx/gradehub/internal/application/command"
	"github.com/gamifyx/gradehub/internal/domain/grading"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUSH WEBHOOK
// ══════════════════════════════════════════════════════════════════════════════

// Webhook request headers.
const (
	HeaderSignature    = "X-Hub-Signature-256"
	HeaderEvent        = "X-GitHub-Event"
	HeaderDelivery     = "X-GitHub-Delivery"
	HeaderSubmissionID = "X-Submission-ID"
)

// Delivery event kinds.
const (
	EventPush = "push"
	EventPing = "ping"
)

// EventKind returns the lower-cased event header.
func EventKind(c *gin.Context) string {
	return strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderEvent)))
}

// ReadPushCommand builds the command from the request. The body is read in
// full so the signature can be checked over the exact bytes.
func ReadPushCommand(c *gin.Context) (command.ProcessPushCommand, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return command.ProcessPushCommand{}, err
	}

	submissionID := c.GetHeader(HeaderSubmissionID)
	if submissionID == "" {
		submissionID = c.Query("submission_id")
	}

	return command.ProcessPushCommand{
		SubmissionID:  strings.TrimSpace(submissionID),
		EventType:     EventKind(c),
		DeliveryID:    c.GetHeader(HeaderDelivery),
		Signature:     c.GetHeader(HeaderSignature),
		Body:          body,
		CorrelationID: RequestIDFrom(c),
	}, nil
}

// PushResponse is the body returned for a graded push.
type PushResponse struct {
	SubmissionID     string             `json:"submission_id"`
	Status           string             `json:"status"`
	Score            int                `json:"score"`
	XPEarned         int                `json:"xp_earned"`
	Duplicate        bool               `json:"duplicate"`
	Breakdown        *grading.Breakdown `json:"breakdown,omitempty"`
	Progression      *ProgressionView   `json:"progression,omitempty"`
	ProgressionError string             `json:"progression_error,omitempty"`
}

// ProgressionView summarizes the XP award.
type ProgressionView struct {
	Applied   bool     `json:"applied"`
	TotalXP   int      `json:"total_xp"`
	Level     int      `json:"level"`
	LeveledUp bool     `json:"leveled_up"`
	Badges    []string `json:"badges,omitempty"`
}

// NewPushResponse flattens the command result.
func NewPushResponse(res *command.ProcessPushResult) PushResponse {
	sub := res.Submission
	out := PushResponse{
		SubmissionID: sub.ID,
		Status:       sub.Status.String(),
		Score:        sub.ScoreValue(),
		XPEarned:     sub.XPEarned,
		Duplicate:    res.Duplicate,
	}
	if !res.Duplicate {
		b := res.Grade.Breakdown
		out.Breakdown = &b
	}
	if p := res.Progression; p != nil {
		view := &ProgressionView{
			Applied:   p.Applied,
			TotalXP:   p.NewTotalXP,
			Level:     p.NewLevel,
			LeveledUp: p.LeveledUp,
		}
		for _, b := range p.NewBadges {
			view.Badges = append(view.Badges, b.Slug)
		}
		out.Progression = view
	}
	if res.ProgressionErr != nil {
		out.ProgressionError = res.ProgressionErr.Error()
	}
	return out
}
