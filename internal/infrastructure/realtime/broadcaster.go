package realtime

import (
	"sync/atomic"

	"github.com/gamifyx/gradehub/pkg/logger"
)

// Observer event names. Broadcast events go to everyone; the rest target one user.
const (
	EventXPEarned                = "xp_earned"
	EventLeaderboardUpdated      = "leaderboard_updated"
	EventRankChanged             = "rank_changed"
	EventSubmissionStatusChanged = "submission_status_changed"

	EventXPUpdate                = "xp_update"
	EventBadgeEarned             = "badge_earned"
	EventLevelUp                 = "level_up"
	EventFeedbackAvailable       = "feedback_available"
	EventSubmissionStatusUpdated = "submission_status_updated"
)

// Broadcaster fans messages out over a SessionRegistry. Sends never block:
// a full channel buffer drops the message.
type Broadcaster struct {
	registry SessionRegistry
	log      *logger.Logger
	dropped  atomic.Int64
}

// NewBroadcaster creates a Broadcaster over registry.
func NewBroadcaster(registry SessionRegistry, log *logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.Nop()
	}
	return &Broadcaster{
		registry: registry,
		log:      log.With(logger.Component("broadcaster")),
	}
}

// Broadcast delivers to every connected channel and returns how many accepted it.
func (b *Broadcaster) Broadcast(event string, payload any) int {
	return b.deliver(b.registry.All(), Message{Event: event, Data: payload})
}

// SendToUser delivers to userID's channels only. A user with no channels is
// not an error; the message is dropped.
func (b *Broadcaster) SendToUser(userID, event string, payload any) int {
	channels := b.registry.ChannelsFor(userID)
	if len(channels) == 0 {
		b.log.Debug("no channels for user", logger.UserID(userID), logger.EventName(event))
		return 0
	}
	return b.deliver(channels, Message{Event: event, Data: payload})
}

// Dropped is the number of messages discarded because a buffer was full.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }

func (b *Broadcaster) deliver(channels []*Channel, msg Message) int {
	delivered := 0
	for _, ch := range channels {
		if ch.Deliver(msg) {
			delivered++
			continue
		}
		b.dropped.Add(1)
		b.log.Warn("dropping realtime message; outbound buffer full",
			logger.ChannelID(ch.ID),
			logger.EventName(msg.Event),
		)
	}
	return delivered
}
