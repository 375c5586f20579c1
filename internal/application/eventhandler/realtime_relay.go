// Package eventhandler contains reactions to domain events.
// Handlers run after the state change has been committed and only produce
// side effects such as observer notifications.
package eventhandler

import (
	"github.com/gamifyx/gradehub/config"
	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/internal/domain/submission"
	"github.com/gamifyx/gradehub/internal/infrastructure/realtime"
	"github.com/gamifyx/gradehub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// REALTIME RELAY
// Maps committed domain events onto observer messages. Events may come from
// this process or, through the Redis bus, from another instance; only the
// payload map is relied on.
// ═══════════════════════════════════════════════════════════════════════════

// Notifier delivers observer messages.
type Notifier interface {
	Broadcast(event string, payload any) int
	SendToUser(userID, event string, payload any) int
}

// RealtimeRelay forwards domain events to connected observers.
type RealtimeRelay struct {
	notifier Notifier
	flags    *config.FeatureFlags
	logger   *logger.Logger
}

// NewRealtimeRelay creates the relay.
func NewRealtimeRelay(notifier Notifier, flags *config.FeatureFlags, log *logger.Logger) *RealtimeRelay {
	if log == nil {
		log = logger.Nop()
	}
	if flags == nil {
		flags = config.NewFeatureFlags()
	}
	return &RealtimeRelay{
		notifier: notifier,
		flags:    flags,
		logger:   log.With(logger.Component("realtime_relay")),
	}
}

// relayedEvents is every event type the relay reacts to.
var relayedEvents = []shared.EventType{
	shared.EventSubmissionGraded,
	shared.EventXPAwarded,
	shared.EventLevelUp,
	shared.EventBadgeEarned,
	shared.EventRankChanged,
	shared.EventLeaderboardUpdated,
}

// Register subscribes the relay to bus.
func (r *RealtimeRelay) Register(bus shared.EventSubscriber) error {
	for _, t := range relayedEvents {
		if err := bus.Subscribe(t, r.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle implements shared.EventHandler. It never fails: an undeliverable
// message is dropped by the broadcaster.
func (r *RealtimeRelay) Handle(event shared.Event) error {
	if !r.flags.IsEnabled(config.FeatureRealtimeBroadcast, nil) {
		return nil
	}

	payload := event.Payload()
	userID := stringField(payload, "user_id")

	switch event.EventType() {
	case shared.EventSubmissionGraded:
		r.notifier.Broadcast(realtime.EventSubmissionStatusChanged, payload)
		r.toUser(userID, realtime.EventSubmissionStatusUpdated, payload)
		if submission.Status(stringField(payload, "status")) == submission.StatusReview {
			r.toUser(userID, realtime.EventFeedbackAvailable, map[string]any{
				"submission_id": payload["submission_id"],
				"score":         intField(payload, "score"),
			})
		}

	case shared.EventXPAwarded:
		r.notifier.Broadcast(realtime.EventXPEarned, map[string]any{
			"user_id":      userID,
			"display_name": payload["display_name"],
			"amount":       intField(payload, "amount"),
		})
		r.toUser(userID, realtime.EventXPUpdate, map[string]any{
			"amount":        intField(payload, "amount"),
			"total_xp":      intField(payload, "new_total"),
			"level":         intField(payload, "level"),
			"submission_id": payload["submission_id"],
		})

	case shared.EventLevelUp:
		r.toUser(userID, realtime.EventLevelUp, map[string]any{
			"old_level": intField(payload, "old_level"),
			"new_level": intField(payload, "new_level"),
			"total_xp":  intField(payload, "total_xp"),
		})

	case shared.EventBadgeEarned:
		r.toUser(userID, realtime.EventBadgeEarned, payload)

	case shared.EventRankChanged:
		r.notifier.Broadcast(realtime.EventRankChanged, map[string]any{
			"user_id":  userID,
			"old_rank": intField(payload, "old_rank"),
			"new_rank": intField(payload, "new_rank"),
		})

	case shared.EventLeaderboardUpdated:
		r.notifier.Broadcast(realtime.EventLeaderboardUpdated, payload)

	default:
		r.logger.Debug("event not relayed", logger.EventName(string(event.EventType())))
	}
	return nil
}

func (r *RealtimeRelay) toUser(userID, event string, payload any) {
	if userID == "" {
		r.logger.Warn("targeted event without user id", logger.EventName(event))
		return
	}
	r.notifier.SendToUser(userID, event, payload)
}

func stringField(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}

// intField reads a number that may have passed through JSON as a float64.
func intField(payload map[string]interface{}, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
