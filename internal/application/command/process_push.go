// Package command contains write operations.
// Each command validates its input, changes state through domain repositories
// and reports what happened in a result struct.
package command

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gamifyx/gradehub/config"
	"github.com/gamifyx/gradehub/internal/application/saga"
	"github.com/gamifyx/gradehub/internal/domain/grading"
	"github.com/gamifyx/gradehub/internal/domain/reward"
	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/internal/domain/submission"
	"github.com/gamifyx/gradehub/pkg/logger"
	"github.com/gamifyx/gradehub/pkg/signature"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS PUSH COMMAND
// Grades a repository push and applies the reward.
// Flow: Verify → Decode → Replay Check → Load → Grade → Reward → Persist →
// Emit → Progression → Audit
// ══════════════════════════════════════════════════════════════════════════════

// ProcessPushCommand carries one webhook delivery.
type ProcessPushCommand struct {
	// SubmissionID routes the push to a submission.
	SubmissionID string

	// EventType is the delivery's event header, kept for logging.
	EventType string

	// DeliveryID keys the XP award when the push has no head commit.
	DeliveryID string

	// Signature is the raw "sha256=<hex>" header value.
	Signature string

	// Body is the exact request body the signature was computed over.
	Body []byte

	// CorrelationID for tracing across services.
	CorrelationID string
}

// Validate checks the fields needed before the body is touched.
func (c ProcessPushCommand) Validate() error {
	if c.SubmissionID == "" {
		return shared.ErrMissingSubmission
	}
	return nil
}

// ProcessPushResult contains the outcome of one push.
type ProcessPushResult struct {
	// Submission is the submission after grading, or as stored for a duplicate.
	Submission *submission.Submission

	// Grade is the grader's output. Zero for a duplicate.
	Grade grading.Result

	// Reward is the XP the grade is worth.
	Reward int

	// Duplicate is set when the head commit had already been processed.
	Duplicate bool

	// Progression is nil when no reward was due or the saga failed.
	Progression *saga.ProgressionResult

	// ProgressionErr is set when the saga failed. Grading is still committed.
	ProgressionErr error
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionRunner applies an XP award.
type ProgressionRunner interface {
	Execute(ctx context.Context, input saga.ProgressionInput) (*saga.ProgressionResult, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ProcessPushHandler handles the ProcessPushCommand.
type ProcessPushHandler struct {
	submissions submission.Repository
	assignments submission.AssignmentRepository
	audits      submission.AuditRepository
	progression ProgressionRunner
	events      shared.EventPublisher
	flags       *config.FeatureFlags
	log         *logger.Logger

	secret string
	tracer trace.Tracer
	now    func() time.Time
}

// ProcessPushHandlerConfig contains configuration for the handler.
type ProcessPushHandlerConfig struct {
	// WebhookSecret is the shared HMAC key.
	WebhookSecret string
}

// NewProcessPushHandler creates a new ProcessPushHandler.
func NewProcessPushHandler(
	submissions submission.Repository,
	assignments submission.AssignmentRepository,
	audits submission.AuditRepository,
	progression ProgressionRunner,
	events shared.EventPublisher,
	flags *config.FeatureFlags,
	log *logger.Logger,
	cfg ProcessPushHandlerConfig,
) *ProcessPushHandler {
	if log == nil {
		log = logger.Nop()
	}
	if flags == nil {
		flags = config.NewFeatureFlags()
	}
	return &ProcessPushHandler{
		submissions: submissions,
		assignments: assignments,
		audits:      audits,
		progression: progression,
		events:      events,
		flags:       flags,
		log:         log.With(logger.Component("process_push")),
		secret:      cfg.WebhookSecret,
		tracer:      otel.Tracer("github.com/gamifyx/gradehub/command"),
		now:         time.Now,
	}
}

// Handle executes the command.
func (h *ProcessPushHandler) Handle(ctx context.Context, cmd ProcessPushCommand) (*ProcessPushResult, error) {
	ctx, span := h.tracer.Start(ctx, "process_push", trace.WithAttributes(
		attribute.String("submission.id", cmd.SubmissionID),
		attribute.String("webhook.event", cmd.EventType),
	))
	defer span.End()

	res, err := h.handle(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("push.duplicate", res.Duplicate),
		attribute.Int("grade.score", res.Grade.Score),
		attribute.Int("xp.reward", res.Reward),
	)
	return res, nil
}

func (h *ProcessPushHandler) handle(ctx context.Context, cmd ProcessPushCommand) (*ProcessPushResult, error) {
	log := h.log.With(logger.SubmissionID(cmd.SubmissionID))

	// Step 1: Verify before anything is parsed
	if !signature.Verify(cmd.Body, cmd.Signature, h.secret) {
		log.Warn("push rejected: signature mismatch")
		return nil, shared.ErrSignatureMismatch
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	// Step 2: Decode
	payload, err := DecodePushPayload(cmd.Body)
	if err != nil {
		log.Warn("push rejected: malformed payload", logger.Err(err))
		return nil, err
	}
	head := payload.HeadCommitID()

	// Step 3: Replay check
	if head != "" && h.flags.IsEnabled(config.FeatureWebhookReplayDedup, nil) {
		seen, err := h.audits.Exists(ctx, cmd.SubmissionID, head)
		if err != nil {
			return nil, transient("check push audit", err)
		}
		if seen {
			sub, err := h.submissions.GetByID(ctx, cmd.SubmissionID)
			if err != nil {
				return nil, storeErr("load submission", err)
			}
			log.Info("duplicate push ignored", logger.String("head_commit", head))
			return &ProcessPushResult{Submission: sub, Duplicate: true}, nil
		}
	}

	// Step 4: Load
	sub, err := h.submissions.GetByID(ctx, cmd.SubmissionID)
	if err != nil {
		return nil, storeErr("load submission", err)
	}
	assignment, err := h.assignments.GetByID(ctx, sub.AssignmentID)
	if err != nil {
		return nil, storeErr("load assignment", err)
	}
	log = log.With(logger.UserID(sub.UserID), logger.AssignmentID(assignment.ID))

	// Step 5: Grade
	result := grading.Grade(grading.Input{
		Commits:         payload.GradingCommits(),
		RequiredFiles:   assignment.RequiredFiles,
		ExpectedFolders: assignment.ExpectedFolders(),
	})

	// Step 6: Reward
	xp := reward.Calculate(result.Score, assignment.BaseXP, assignment.Difficulty)

	// Step 7: Persist
	now := h.now().UTC()
	if err := sub.ApplyGrade(result.Score, result.Status, xp, now); err != nil {
		return nil, err
	}
	if err := h.submissions.SaveGrade(ctx, sub); err != nil {
		return nil, storeErr("save grade", err)
	}
	log.Info("submission graded",
		logger.Score(result.Score),
		logger.String("status", result.Status.String()),
		logger.XPAmount(xp),
	)

	// Step 8: Emit
	graded := shared.NewSubmissionGradedEvent(sub.ID, sub.UserID, sub.AssignmentID, result.Status.String(), result.Score, xp)
	if cmd.CorrelationID != "" {
		graded.BaseEvent = graded.WithCorrelationID(cmd.CorrelationID)
	}
	h.publish(log, graded)

	out := &ProcessPushResult{Submission: sub, Grade: result, Reward: xp}

	// Step 9: Progression
	if xp > 0 && h.progression != nil {
		prog, err := h.progression.Execute(ctx, saga.ProgressionInput{
			UserID:         sub.UserID,
			SubmissionID:   sub.ID,
			Amount:         xp,
			IdempotencyKey: progressionKey(sub.ID, head, cmd.DeliveryID, cmd.Body),
			CorrelationID:  cmd.CorrelationID,
		})
		if err != nil {
			log.Error("progression failed after grading", logger.Err(err))
			out.ProgressionErr = err
		} else {
			out.Progression = prog
		}
	}

	// Step 10: Audit
	// A push whose reward was not applied stays unaudited so a redelivery retries it.
	if head != "" && out.ProgressionErr == nil {
		audit := submission.PushAudit{
			SubmissionID: sub.ID,
			RepositoryID: fmt.Sprint(payload.Repository.ID),
			HeadCommit:   head,
			ProcessedAt:  now,
		}
		if err := h.audits.Record(ctx, audit); err != nil {
			return nil, transient("record push audit", err)
		}
	}

	return out, nil
}

// progressionKey identifies one reward application. Without a head commit or
// delivery id the raw body digest stands in, so distinct pushes never share a key.
func progressionKey(submissionID, head, deliveryID string, body []byte) string {
	switch {
	case head != "":
		return submissionID + ":" + head
	case deliveryID != "":
		return submissionID + ":" + deliveryID
	}
	sum := sha256.Sum256(body)
	return submissionID + ":body-" + hex.EncodeToString(sum[:])
}

// publish is best effort: grading is already committed.
func (h *ProcessPushHandler) publish(log *logger.Logger, e shared.Event) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(e); err != nil {
		log.Warn("failed to publish event",
			logger.EventName(string(e.EventType())),
			logger.Err(err),
		)
	}
}

// storeErr keeps NotFound and other classified errors as they are and marks
// the rest as transient store failures.
func storeErr(op string, err error) error {
	if shared.IsNotFound(err) || shared.IsRetryable(err) || shared.IsValidation(err) {
		return err
	}
	return transient(op, err)
}

func transient(op string, err error) error {
	if shared.IsRetryable(err) {
		return err
	}
	return shared.WrapError("webhook", op, shared.ErrTransientStore, op+" failed", err)
}
