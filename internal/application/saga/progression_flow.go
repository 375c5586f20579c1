// Package saga contains multi-step business processes that coordinate several
// stores. Every step is idempotent, so a failed run can simply be repeated.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/gamifyx/gradehub/config"
	"github.com/gamifyx/gradehub/internal/domain/progression"
	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/internal/domain/submission"
	"github.com/gamifyx/gradehub/pkg/logger"
	"github.com/gamifyx/gradehub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION FLOW SAGA
// Flow: Load Progression → Apply XP → Recompute Level → Evaluate Badges →
// Grant Badges → Invalidate Rankings → Publish Events
//
// There is no compensation: XP never decreases, so a failed run is recovered
// by running forward again. The keyed increment makes that safe.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionInput describes one XP award.
type ProgressionInput struct {
	UserID       string
	SubmissionID string
	Amount       int
	// IdempotencyKey makes the increment apply at most once.
	IdempotencyKey string
	CorrelationID  string
}

// Validate checks the input before any store is touched.
func (i ProgressionInput) Validate() error {
	switch {
	case i.UserID == "":
		return shared.NewDomainError("progression", "Validate", shared.ErrInvalidID, "user id is required")
	case i.SubmissionID == "":
		return shared.NewDomainError("progression", "Validate", shared.ErrInvalidID, "submission id is required")
	case i.IdempotencyKey == "":
		return shared.NewDomainError("progression", "Validate", shared.ErrValidation, "idempotency key is required")
	case i.Amount < 0:
		return shared.ErrNegativeXP
	}
	return nil
}

// ProgressionResult reports what a run changed.
type ProgressionResult struct {
	UserID string
	// Applied is false when the idempotency key had already been used.
	Applied    bool
	XPAwarded  int
	PreviousXP int
	NewTotalXP int
	OldLevel   int
	NewLevel   int
	LeveledUp  bool
	NewBadges  []progression.Badge
	OldRank    shared.Rank
	NewRank    shared.Rank
	// EventsPublished counts events the bus accepted.
	EventsPublished int
	CompletedAt     time.Time
}

// RankChanged reports a known position that moved.
func (r *ProgressionResult) RankChanged() bool {
	return !r.OldRank.IsUnranked() && !r.NewRank.IsUnranked() && r.OldRank != r.NewRank
}

// ProgressionStep names a saga step.
type ProgressionStep string

const (
	StepValidateInput      ProgressionStep = "validate_input"
	StepLoadProgression    ProgressionStep = "load_progression"
	StepLoadRankBefore     ProgressionStep = "load_rank_before"
	StepApplyXP            ProgressionStep = "apply_xp"
	StepRecomputeLevel     ProgressionStep = "recompute_level"
	StepEvaluateBadges     ProgressionStep = "evaluate_badges"
	StepGrantBadges        ProgressionStep = "grant_badges"
	StepInvalidateRankings ProgressionStep = "invalidate_rankings"
	StepLoadRankAfter      ProgressionStep = "load_rank_after"
	StepPublishEvents      ProgressionStep = "publish_events"
	StepComplete           ProgressionStep = "complete"
)

// progressionState is the saga's working memory for one run.
type progressionState struct {
	CurrentStep ProgressionStep
	FailedStep  ProgressionStep
	Input       ProgressionInput
	Progression *progression.Progression
	Increment   progression.IncrementResult
	Eligible    []progression.Badge
	Result      ProgressionResult
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// RankingStore is the slice of the ranking service the saga needs.
type RankingStore interface {
	Invalidate(ctx context.Context) error
	UserRank(ctx context.Context, userID string) (shared.Rank, error)
}

// ProgressionFlowConfig tunes retries.
type ProgressionFlowConfig struct {
	// MaxAttempts per critical step, counting the first attempt.
	MaxAttempts int
	// StepTimeout bounds each critical step attempt. Zero disables it.
	StepTimeout time.Duration
}

// DefaultProgressionFlowConfig returns three attempts and no step timeout.
func DefaultProgressionFlowConfig() ProgressionFlowConfig {
	return ProgressionFlowConfig{MaxAttempts: 3}
}

// ProgressionFlowSaga applies an XP award and everything that follows from it.
type ProgressionFlowSaga struct {
	progress progression.Repository
	badges   progression.BadgeRepository
	history  submission.Repository
	rankings RankingStore
	events   shared.EventPublisher
	flags    *config.FeatureFlags
	log      *logger.Logger

	retrier     *retry.Retrier
	stepTimeout time.Duration
	tracer      trace.Tracer
	now         func() time.Time
}

// NewProgressionFlowSaga wires the saga.
func NewProgressionFlowSaga(
	progress progression.Repository,
	badges progression.BadgeRepository,
	history submission.Repository,
	rankings RankingStore,
	events shared.EventPublisher,
	flags *config.FeatureFlags,
	log *logger.Logger,
	cfg ProgressionFlowConfig,
) *ProgressionFlowSaga {
	if log == nil {
		log = logger.Nop()
	}
	if flags == nil {
		flags = config.NewFeatureFlags()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultProgressionFlowConfig().MaxAttempts
	}
	return &ProgressionFlowSaga{
		progress:    progress,
		badges:      badges,
		history:     history,
		rankings:    rankings,
		events:      events,
		flags:       flags,
		log:         log.With(logger.Component("progression_flow")),
		retrier:     retry.StoreRetrier(cfg.MaxAttempts, shared.IsRetryable),
		stepTimeout: cfg.StepTimeout,
		tracer:      otel.Tracer("github.com/gamifyx/gradehub/saga"),
		now:         time.Now,
	}
}

// Execute runs the saga. A non-nil error is always a *ProgressionFlowError.
func (s *ProgressionFlowSaga) Execute(ctx context.Context, input ProgressionInput) (*ProgressionResult, error) {
	ctx, span := s.tracer.Start(ctx, "progression_flow", trace.WithAttributes(
		attribute.String("user.id", input.UserID),
		attribute.String("submission.id", input.SubmissionID),
		attribute.Int("xp.amount", input.Amount),
	))
	defer span.End()

	state := &progressionState{
		CurrentStep: StepValidateInput,
		Input:       input,
		Result:      ProgressionResult{UserID: input.UserID},
	}
	log := s.log.With(logger.UserID(input.UserID), logger.SubmissionID(input.SubmissionID))

	if err := input.Validate(); err != nil {
		state.FailedStep = StepValidateInput
		return nil, s.fail(span, state, err)
	}

	critical := []struct {
		step ProgressionStep
		fn   func(context.Context, *progressionState) error
	}{
		{StepLoadProgression, s.stepLoadProgression},
		{StepApplyXP, s.stepApplyXP},
		{StepRecomputeLevel, s.stepRecomputeLevel},
		{StepEvaluateBadges, s.stepEvaluateBadges},
		{StepGrantBadges, s.stepGrantBadges},
		{StepInvalidateRankings, s.stepInvalidateRankings},
	}

	trackRank := s.rankings != nil && s.flags.IsEnabled(config.FeatureRankingChangeEvents, nil)

	for _, c := range critical {
		if c.step == StepApplyXP && trackRank {
			s.runOptional(ctx, state, StepLoadRankBefore, log, func(ctx context.Context) error {
				rank, err := s.rankings.UserRank(ctx, input.UserID)
				state.Result.OldRank = rank
				return err
			})
		}
		if err := s.runStep(ctx, state, c.step, c.fn); err != nil {
			return nil, s.fail(span, state, err)
		}
	}

	if trackRank {
		s.runOptional(ctx, state, StepLoadRankAfter, log, func(ctx context.Context) error {
			rank, err := s.rankings.UserRank(ctx, input.UserID)
			state.Result.NewRank = rank
			return err
		})
		if state.Result.RankChanged() {
			log.Info("rank changed",
				logger.Int("old_rank", state.Result.OldRank.Int()),
				logger.RankPosition(state.Result.NewRank.Int()),
			)
		}
	}

	s.runOptional(ctx, state, StepPublishEvents, log, func(context.Context) error {
		return s.publishEvents(state)
	})

	state.CurrentStep = StepComplete
	state.Result.CompletedAt = s.now().UTC()

	span.SetAttributes(
		attribute.Bool("xp.applied", state.Result.Applied),
		attribute.Bool("level.up", state.Result.LeveledUp),
		attribute.Int("badges.granted", len(state.Result.NewBadges)),
	)
	log.Info("progression applied",
		logger.XPAmount(state.Result.XPAwarded),
		logger.Int("total_xp", state.Result.NewTotalXP),
		logger.Int("level", state.Result.NewLevel),
		logger.Bool("applied", state.Result.Applied),
		logger.Int("badges", len(state.Result.NewBadges)),
	)

	res := state.Result
	return &res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STEP RUNNERS
// ══════════════════════════════════════════════════════════════════════════════

// runStep retries fn while the failure is transient.
func (s *ProgressionFlowSaga) runStep(ctx context.Context, state *progressionState, step ProgressionStep, fn func(context.Context, *progressionState) error) error {
	ctx, span := s.tracer.Start(ctx, "progression."+string(step))
	defer span.End()

	state.CurrentStep = step
	attempts := 0
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		attempts++
		if s.stepTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.stepTimeout)
			defer cancel()
		}
		return fn(ctx, state)
	})
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		state.FailedStep = step
		return err
	}
	return nil
}

// runOptional runs a step whose failure is logged and otherwise ignored.
func (s *ProgressionFlowSaga) runOptional(ctx context.Context, state *progressionState, step ProgressionStep, log *logger.Logger, fn func(context.Context) error) {
	ctx, span := s.tracer.Start(ctx, "progression."+string(step))
	defer span.End()

	state.CurrentStep = step
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		log.Warn("non-critical progression step failed",
			logger.Operation(string(step)),
			logger.Err(err),
		)
	}
}

func (s *ProgressionFlowSaga) fail(span trace.Span, state *progressionState, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.log.Error("progression flow failed",
		logger.UserID(state.Input.UserID),
		logger.SubmissionID(state.Input.SubmissionID),
		logger.Operation(string(state.FailedStep)),
		logger.Err(err),
	)
	return &ProgressionFlowError{
		Step:    state.FailedStep,
		UserID:  state.Input.UserID,
		Cause:   err,
		Message: fmt.Sprintf("progression flow failed at step '%s': %v", state.FailedStep, err),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

func (s *ProgressionFlowSaga) stepLoadProgression(ctx context.Context, state *progressionState) error {
	p, err := s.progress.Get(ctx, state.Input.UserID)
	if err != nil {
		return fmt.Errorf("load progression: %w", err)
	}
	state.Progression = p
	state.Result.PreviousXP = p.TotalXP.Int()
	state.Result.OldLevel = max(p.Level, p.DerivedLevel()).Int()
	return nil
}

func (s *ProgressionFlowSaga) stepApplyXP(ctx context.Context, state *progressionState) error {
	res, err := s.progress.IncrementXP(ctx, progression.XPAward{
		IdempotencyKey: state.Input.IdempotencyKey,
		UserID:         state.Input.UserID,
		SubmissionID:   state.Input.SubmissionID,
		Amount:         state.Input.Amount,
	})
	if err != nil {
		return fmt.Errorf("increment xp: %w", err)
	}
	state.Increment = res
	state.Result.Applied = res.Applied
	state.Result.NewTotalXP = res.NewTotal.Int()
	if res.Applied {
		state.Result.XPAwarded = state.Input.Amount
	}
	return nil
}

// stepRecomputeLevel sets level = floor(total/100). The pre-award level is
// taken from newTotal-amount, not from the loaded row.
func (s *ProgressionFlowSaga) stepRecomputeLevel(ctx context.Context, state *progressionState) error {
	newLevel := state.Increment.NewTotal.Level()
	if err := s.progress.SetLevel(ctx, state.Input.UserID, newLevel.Int()); err != nil {
		return fmt.Errorf("set level: %w", err)
	}

	state.Result.NewLevel = newLevel.Int()
	if state.Increment.Applied {
		oldLevel, _, crossed := shared.CrossedLevel(state.Increment.NewTotal.Int(), state.Input.Amount)
		state.Result.OldLevel = oldLevel.Int()
		state.Result.LeveledUp = crossed
	} else {
		state.Result.OldLevel = newLevel.Int()
	}
	return nil
}

func (s *ProgressionFlowSaga) stepEvaluateBadges(ctx context.Context, state *progressionState) error {
	if !s.flags.IsEnabled(config.FeatureProgressionBadges, config.ForUser(state.Input.UserID)) {
		state.Eligible = nil
		return nil
	}

	var (
		catalog []progression.Badge
		held    map[string]struct{}
		history []submission.HistoryItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catalog, err = s.badges.ListBadges(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		held, err = s.badges.HeldBadgeIDs(gctx, state.Input.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.history.History(gctx, state.Input.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load badge inputs: %w", err)
	}

	state.Eligible = progression.Eligible(catalog, held, progression.EvaluationContext{
		UserID:    state.Input.UserID,
		History:   history,
		TriggerID: state.Input.SubmissionID,
		Now:       s.now().UTC(),
	})
	return nil
}

// stepGrantBadges is retried as a whole. Grants inserted by an earlier
// attempt come back as not inserted, so they are remembered across attempts.
func (s *ProgressionFlowSaga) stepGrantBadges(ctx context.Context, state *progressionState) error {
	granted := make(map[string]struct{}, len(state.Result.NewBadges))
	for _, b := range state.Result.NewBadges {
		granted[b.ID] = struct{}{}
	}

	for _, b := range state.Eligible {
		if _, done := granted[b.ID]; done {
			continue
		}
		inserted, err := s.badges.Grant(ctx, progression.Grant{
			UserID:   state.Input.UserID,
			BadgeID:  b.ID,
			EarnedAt: s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("grant badge %s: %w", b.Slug, err)
		}
		if inserted {
			state.Result.NewBadges = append(state.Result.NewBadges, b)
			granted[b.ID] = struct{}{}
		}
	}
	return nil
}

func (s *ProgressionFlowSaga) stepInvalidateRankings(ctx context.Context, _ *progressionState) error {
	if s.rankings == nil {
		return nil
	}
	return s.rankings.Invalidate(ctx)
}

// publishEvents emits every event it can and reports the first failure.
func (s *ProgressionFlowSaga) publishEvents(state *progressionState) error {
	if s.events == nil {
		return nil
	}

	in, r := state.Input, &state.Result
	var events []shared.Event

	if r.Applied {
		displayName := ""
		if state.Progression != nil {
			displayName = state.Progression.DisplayName
		}
		events = append(events, shared.NewXPAwardedEvent(in.UserID, displayName, r.XPAwarded, r.NewTotalXP, r.NewLevel, in.SubmissionID))
		if r.LeveledUp {
			events = append(events, shared.NewLevelUpEvent(in.UserID, r.OldLevel, r.NewLevel, r.NewTotalXP))
		}
	}
	for _, b := range r.NewBadges {
		events = append(events, shared.NewBadgeEarnedEvent(in.UserID, b.ID, b.Slug, b.Name, b.Description))
	}
	if r.Applied || len(r.NewBadges) > 0 {
		events = append(events, shared.NewLeaderboardUpdatedEvent(in.UserID, "xp_awarded"))
	}
	if r.RankChanged() {
		events = append(events, shared.NewRankChangedEvent(in.UserID, r.OldRank.Int(), r.NewRank.Int()))
	}

	var errs []error
	for _, e := range events {
		if err := s.events.Publish(withCorrelation(e, in.CorrelationID)); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", e.EventType(), err))
			continue
		}
		r.EventsPublished++
	}
	return errors.Join(errs...)
}

// withCorrelation stamps the correlation id on the built-in event types.
func withCorrelation(e shared.Event, id string) shared.Event {
	if id == "" {
		return e
	}
	switch v := e.(type) {
	case shared.XPAwardedEvent:
		v.BaseEvent = v.WithCorrelationID(id)
		return v
	case shared.LevelUpEvent:
		v.BaseEvent = v.WithCorrelationID(id)
		return v
	case shared.BadgeEarnedEvent:
		v.BaseEvent = v.WithCorrelationID(id)
		return v
	case shared.LeaderboardUpdatedEvent:
		v.BaseEvent = v.WithCorrelationID(id)
		return v
	case shared.RankChangedEvent:
		v.BaseEvent = v.WithCorrelationID(id)
		return v
	default:
		return e
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionFlowError names the step a run stopped at.
type ProgressionFlowError struct {
	Step    ProgressionStep
	UserID  string
	Cause   error
	Message string
}

func (e *ProgressionFlowError) Error() string { return e.Message }

func (e *ProgressionFlowError) Unwrap() error { return e.Cause }

// IsRetryable reports whether running the saga again may succeed.
func (e *ProgressionFlowError) IsRetryable() bool {
	return e.Step != StepValidateInput && shared.IsRetryable(e.Cause)
}
