package eventhandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamifyx/gradehub/config"
	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/internal/infrastructure/messaging"
	"github.com/gamifyx/gradehub/internal/infrastructure/realtime"
)

type sent struct {
	userID string // empty for broadcasts
	event  string
	data   any
}

type recordingNotifier struct{ sent []sent }

func (n *recordingNotifier) Broadcast(event string, payload any) int {
	n.sent = append(n.sent, sent{event: event, data: payload})
	return 1
}

func (n *recordingNotifier) SendToUser(userID, event string, payload any) int {
	n.sent = append(n.sent, sent{userID: userID, event: event, data: payload})
	return 1
}

func (n *recordingNotifier) events() []string {
	out := make([]string, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.event
	}
	return out
}

// remoteEvent mimics an event decoded from another instance: numbers are float64.
type remoteEvent struct {
	kind    shared.EventType
	payload map[string]interface{}
}

func (e remoteEvent) EventType() shared.EventType     { return e.kind }
func (e remoteEvent) AggregateID() string             { return "" }
func (e remoteEvent) OccurredAt() time.Time           { return time.Time{} }
func (e remoteEvent) Payload() map[string]interface{} { return e.payload }

type recordingSubscriber struct{ types []shared.EventType }

func (s *recordingSubscriber) Subscribe(t shared.EventType, _ shared.EventHandler) error {
	s.types = append(s.types, t)
	return nil
}

func (s *recordingSubscriber) SubscribeAll(shared.EventHandler) error { return nil }

func TestRealtimeRelay_Mapping(t *testing.T) {
	tests := []struct {
		name  string
		event shared.Event
		want  []sent
	}{
		{
			name:  "graded pass",
			event: shared.NewSubmissionGradedEvent("s1", "u1", "a1", "PASS", 90, 50),
			want: []sent{
				{event: realtime.EventSubmissionStatusChanged},
				{userID: "u1", event: realtime.EventSubmissionStatusUpdated},
			},
		},
		{
			name:  "graded review adds feedback",
			event: shared.NewSubmissionGradedEvent("s1", "u1", "a1", "REVIEW", 60, 30),
			want: []sent{
				{event: realtime.EventSubmissionStatusChanged},
				{userID: "u1", event: realtime.EventSubmissionStatusUpdated},
				{userID: "u1", event: realtime.EventFeedbackAvailable},
			},
		},
		{
			name:  "xp awarded",
			event: shared.NewXPAwardedEvent("u1", "Ada", 10, 105, 1, "s1"),
			want: []sent{
				{event: realtime.EventXPEarned},
				{userID: "u1", event: realtime.EventXPUpdate},
			},
		},
		{
			name:  "level up",
			event: shared.NewLevelUpEvent("u1", 0, 1, 105),
			want:  []sent{{userID: "u1", event: realtime.EventLevelUp}},
		},
		{
			name:  "badge",
			event: shared.NewBadgeEarnedEvent("u1", "b1", "first-pass", "First Pass", ""),
			want:  []sent{{userID: "u1", event: realtime.EventBadgeEarned}},
		},
		{
			name:  "rank changed",
			event: shared.NewRankChangedEvent("u1", 3, 1),
			want:  []sent{{event: realtime.EventRankChanged}},
		},
		{
			name:  "leaderboard updated",
			event: shared.NewLeaderboardUpdatedEvent("u1", "xp_awarded"),
			want:  []sent{{event: realtime.EventLeaderboardUpdated}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{}
			require.NoError(t, NewRealtimeRelay(n, nil, nil).Handle(tt.event))

			require.Len(t, n.sent, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w.event, n.sent[i].event)
				assert.Equal(t, w.userID, n.sent[i].userID)
			}
		})
	}
}

func TestRealtimeRelay_RemotePayloadNumbers(t *testing.T) {
	n := &recordingNotifier{}
	relay := NewRealtimeRelay(n, nil, nil)

	err := relay.Handle(remoteEvent{kind: shared.EventXPAwarded, payload: map[string]interface{}{
		"user_id":   "u1",
		"amount":    float64(10),
		"new_total": float64(105),
		"level":     float64(1),
	}})
	require.NoError(t, err)

	require.Len(t, n.sent, 2)
	update, ok := n.sent[1].data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 105, update["total_xp"])
	assert.Equal(t, 1, update["level"])
}

func TestRealtimeRelay_FlagOff(t *testing.T) {
	flags := config.NewFeatureFlags()
	require.NoError(t, flags.DisableFeature(config.FeatureRealtimeBroadcast))
	n := &recordingNotifier{}

	require.NoError(t, NewRealtimeRelay(n, flags, nil).Handle(shared.NewRankChangedEvent("u1", 2, 1)))
	assert.Empty(t, n.sent)
}

func TestRealtimeRelay_TargetedWithoutUserIsSkipped(t *testing.T) {
	n := &recordingNotifier{}

	err := NewRealtimeRelay(n, nil, nil).Handle(remoteEvent{kind: shared.EventLevelUp, payload: map[string]interface{}{}})
	require.NoError(t, err)
	assert.Empty(t, n.events())
}

func TestRealtimeRelay_Register(t *testing.T) {
	sub := &recordingSubscriber{}
	require.NoError(t, NewRealtimeRelay(&recordingNotifier{}, nil, nil).Register(sub))
	assert.ElementsMatch(t, relayedEvents, sub.types)
}

func TestRealtimeRelay_ThroughBroadcaster(t *testing.T) {
	registry := realtime.NewMemoryRegistry()
	owner, other := realtime.NewChannel(8), realtime.NewChannel(8)
	registry.Connect(owner)
	registry.Connect(other)
	require.NoError(t, registry.Authenticate(owner.ID, "u1"))

	relay := NewRealtimeRelay(realtime.NewBroadcaster(registry, nil), nil, nil)
	require.NoError(t, relay.Handle(shared.NewLevelUpEvent("u1", 1, 2, 210)))
	require.NoError(t, relay.Handle(shared.NewLeaderboardUpdatedEvent("u1", "xp_awarded")))

	assert.Equal(t, realtime.EventLevelUp, (<-owner.Outbound()).Event)
	assert.Equal(t, realtime.EventLeaderboardUpdated, (<-owner.Outbound()).Event)
	assert.Equal(t, realtime.EventLeaderboardUpdated, (<-other.Outbound()).Event)
	assert.Empty(t, other.Outbound())
}

func TestRealtimeRelay_AsyncBusKeepsOrder(t *testing.T) {
	registry := realtime.NewMemoryRegistry()
	ch := realtime.NewChannel(16)
	registry.Connect(ch)
	require.NoError(t, registry.Authenticate(ch.ID, "u1"))

	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	relay := NewRealtimeRelay(realtime.NewBroadcaster(registry, nil), nil, nil)
	require.NoError(t, relay.Register(bus))

	require.NoError(t, bus.Publish(shared.NewXPAwardedEvent("u1", "Ada", 120, 215, 2, "s1")))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", 0, 2, 215)))
	require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent("u1", "b1", "first-pass", "First Pass", "desc")))
	require.NoError(t, bus.Close())

	var got []string
	for len(ch.Outbound()) > 0 {
		got = append(got, (<-ch.Outbound()).Event)
	}
	assert.Equal(t, []string{
		realtime.EventXPEarned,
		realtime.EventXPUpdate,
		realtime.EventLevelUp,
		realtime.EventBadgeEarned,
	}, got)
}
