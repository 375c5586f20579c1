package shared

import "time"

// EventType represents the type of domain event.
type EventType string

// Domain event types produced by the grading and progression pipeline.
const (
	// Submission events
	EventSubmissionGraded EventType = "submission.graded"

	// Progression events
	EventXPAwarded   EventType = "progression.xp_awarded"
	EventLevelUp     EventType = "progression.level_up"
	EventBadgeEarned EventType = "progression.badge_earned"

	// Leaderboard events
	EventRankChanged        EventType = "leaderboard.rank_changed"
	EventLeaderboardUpdated EventType = "leaderboard.updated"
)

// Event is the base interface for all domain events.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	// AggregateID is the user or submission the event is about.
	AggregateID() string
	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// SUBMISSION EVENTS
// ═══════════════════════════════════════════════════════════════════════════

// SubmissionGradedEvent is emitted after a submission receives a new status.
type SubmissionGradedEvent struct {
	BaseEvent
	SubmissionID string `json:"submission_id"`
	UserID       string `json:"user_id"`
	AssignmentID string `json:"assignment_id"`
	Status       string `json:"status"`
	Score        int    `json:"score"`
	XPEarned     int    `json:"xp_earned"`
}

func (e SubmissionGradedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"submission_id": e.SubmissionID,
		"user_id":       e.UserID,
		"assignment_id": e.AssignmentID,
		"status":        e.Status,
		"score":         e.Score,
		"xp_earned":     e.XPEarned,
	}
}

func NewSubmissionGradedEvent(submissionID, userID, assignmentID, status string, score, xpEarned int) SubmissionGradedEvent {
	return SubmissionGradedEvent{
		BaseEvent:    NewBaseEvent(EventSubmissionGraded, submissionID),
		SubmissionID: submissionID,
		UserID:       userID,
		AssignmentID: assignmentID,
		Status:       status,
		Score:        score,
		XPEarned:     xpEarned,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// PROGRESSION EVENTS
// ═══════════════════════════════════════════════════════════════════════════

// XPAwardedEvent is emitted when XP is applied to a user.
type XPAwardedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	Amount       int    `json:"amount"`
	NewTotal     int    `json:"new_total"`
	Level        int    `json:"level"`
	SubmissionID string `json:"submission_id"`
}

func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"display_name":  e.DisplayName,
		"amount":        e.Amount,
		"new_total":     e.NewTotal,
		"level":         e.Level,
		"submission_id": e.SubmissionID,
	}
}

func NewXPAwardedEvent(userID, displayName string, amount, newTotal, level int, submissionID string) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent:    NewBaseEvent(EventXPAwarded, userID),
		UserID:       userID,
		DisplayName:  displayName,
		Amount:       amount,
		NewTotal:     newTotal,
		Level:        level,
		SubmissionID: submissionID,
	}
}

// LevelUpEvent is emitted when a level boundary is crossed.
type LevelUpEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	TotalXP  int    `json:"total_xp"`
}

func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"total_xp":  e.TotalXP,
	}
}

func NewLevelUpEvent(userID string, oldLevel, newLevel, totalXP int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		TotalXP:   totalXP,
	}
}

// BadgeEarnedEvent is emitted once per newly granted badge.
type BadgeEarnedEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	BadgeID     string `json:"badge_id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"badge_id":    e.BadgeID,
		"slug":        e.Slug,
		"name":        e.Name,
		"description": e.Description,
	}
}

func NewBadgeEarnedEvent(userID, badgeID, slug, name, description string) BadgeEarnedEvent {
	return BadgeEarnedEvent{
		BaseEvent:   NewBaseEvent(EventBadgeEarned, userID),
		UserID:      userID,
		BadgeID:     badgeID,
		Slug:        slug,
		Name:        name,
		Description: description,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// LEADERBOARD EVENTS
// ═══════════════════════════════════════════════════════════════════════════

// RankChangedEvent is emitted when a user's position moves.
type RankChangedEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	OldRank int    `json:"old_rank"`
	NewRank int    `json:"new_rank"`
}

func (e RankChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":  e.UserID,
		"old_rank": e.OldRank,
		"new_rank": e.NewRank,
	}
}

func NewRankChangedEvent(userID string, oldRank, newRank int) RankChangedEvent {
	return RankChangedEvent{
		BaseEvent: NewBaseEvent(EventRankChanged, userID),
		UserID:    userID,
		OldRank:   oldRank,
		NewRank:   newRank,
	}
}

// LeaderboardUpdatedEvent tells observers the cached ranking was invalidated.
type LeaderboardUpdatedEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

func (e LeaderboardUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.AggregateId,
		"reason":  e.Reason,
	}
}

func NewLeaderboardUpdatedEvent(userID, reason string) LeaderboardUpdatedEvent {
	return LeaderboardUpdatedEvent{
		BaseEvent: NewBaseEvent(EventLeaderboardUpdated, userID),
		Reason:    reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
