package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/pkg/logger"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false, Logger: logger.Nop()})
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := syncBus()

	var levelUps, all int
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { levelUps++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", 0, 1, 105)))
	require.NoError(t, bus.Publish(shared.NewLeaderboardUpdatedEvent("u1", "xp")))

	assert.Equal(t, 1, levelUps)
	assert.Equal(t, 2, all)
}

func TestInMemoryEventBus_HandlerErrorDoesNotFailPublish(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))

	assert.NoError(t, bus.Publish(shared.NewLeaderboardUpdatedEvent("u1", "xp")))
}

func TestInMemoryEventBus_AsyncDrainsOnClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, QueueSize: 2})

	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for range 5 {
		require.NoError(t, bus.Publish(shared.NewLeaderboardUpdatedEvent("u", "xp")))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, 5, count)
	assert.ErrorIs(t, bus.Publish(shared.NewLeaderboardUpdatedEvent("u", "xp")), ErrEventBusClosed)
}

func TestInMemoryEventBus_AsyncKeepsPublishOrder(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, QueueSize: 4})

	// Typed and wildcard handlers both observe the same sequence.
	var mu sync.Mutex
	var typed, all []string
	require.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(e shared.Event) error {
		mu.Lock()
		typed = append(typed, e.AggregateID())
		mu.Unlock()
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(e shared.Event) error {
		mu.Lock()
		typed = append(typed, e.AggregateID())
		mu.Unlock()
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		if e.EventType() == shared.EventXPAwarded {
			time.Sleep(time.Millisecond)
		}
		mu.Lock()
		all = append(all, e.AggregateID())
		mu.Unlock()
		return nil
	}))

	var want []string
	for i := range 40 {
		id := fmt.Sprintf("u%02d", i)
		want = append(want, id)
		if i%2 == 0 {
			require.NoError(t, bus.Publish(shared.NewXPAwardedEvent(id, "", 10, 10*i, 1, "s")))
		} else {
			require.NoError(t, bus.Publish(shared.NewLevelUpEvent(id, 0, 1, 10*i)))
		}
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, want, typed)
	assert.Equal(t, want, all)
}

func TestInMemoryEventBus_PanickingHandlerIsContained(t *testing.T) {
	bus := syncBus()

	reached := false
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { reached = true; return nil }))

	assert.NotPanics(t, func() {
		assert.NoError(t, bus.Publish(shared.NewLeaderboardUpdatedEvent("u", "xp")))
	})
	assert.True(t, reached)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Chain(func(shared.Event) error { panic("bad") }, RecoveryMiddleware(logger.Nop()), LoggingMiddleware(logger.Nop(), 0))

	err := h(shared.NewLeaderboardUpdatedEvent("u", "xp"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic")
}

// ── Redis bus ────────────────────────────────────────────────────────────────

type fakeRedis struct {
	mu        sync.Mutex
	published [][]byte
	failures  int // Publish fails this many times first
	ch        chan RedisMessage
}

func newFakeRedis() *fakeRedis { return &fakeRedis{ch: make(chan RedisMessage, 8)} }

func (f *fakeRedis) Publish(_ context.Context, _ string, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	f.published = append(f.published, message)
	return nil
}

func (f *fakeRedis) Subscribe(context.Context, ...string) (<-chan RedisMessage, error) {
	return f.ch, nil
}

func TestRedisEventBus_PublishesEnvelopeAndDeliversLocally(t *testing.T) {
	client := newFakeRedis()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		InstanceID:     "me",
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
	})
	require.NoError(t, err)
	defer bus.Close()

	var got []shared.Event
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error { got = append(got, e); return nil }))

	require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent("u1", "b1", "first-pass", "First Pass", "desc")))

	require.Len(t, got, 1)
	require.Len(t, client.published, 1)

	var env eventEnvelope
	require.NoError(t, json.Unmarshal(client.published[0], &env))
	assert.Equal(t, "me", env.InstanceID)
	assert.Equal(t, shared.EventBadgeEarned, env.EventType)
	assert.Equal(t, "first-pass", env.Payload["slug"])
}

func TestRedisEventBus_RetriesTransientPublishFailure(t *testing.T) {
	client := newFakeRedis()
	client.failures = 1
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
	})
	require.NoError(t, err)
	defer bus.Close()

	delivered := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { delivered++; return nil }))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", 1, 2, 210)))
	assert.Len(t, client.published, 1)
	assert.Equal(t, 1, delivered)
}

func TestRedisEventBus_PublishFailureStillDeliversLocally(t *testing.T) {
	client := newFakeRedis()
	client.failures = 10
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
	})
	require.NoError(t, err)
	defer bus.Close()

	delivered := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { delivered++; return nil }))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", 1, 2, 210)))
	assert.Empty(t, client.published)
	assert.Equal(t, 7, client.failures)
	assert.Equal(t, 1, delivered)
}

func TestRedisEventBus_ReplaysRemoteEventsOnly(t *testing.T) {
	client := newFakeRedis()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		InstanceID:     "me",
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
	})
	require.NoError(t, err)
	defer bus.Close()

	received := make(chan shared.Event, 2)
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error { received <- e; return nil }))

	own, _ := json.Marshal(eventEnvelope{InstanceID: "me", EventType: shared.EventLevelUp})
	remote, _ := json.Marshal(eventEnvelope{
		InstanceID:  "other",
		EventType:   shared.EventLevelUp,
		AggregateID: "u9",
		Payload:     map[string]interface{}{"user_id": "u9", "new_level": 2},
	})
	client.ch <- RedisMessage{Payload: string(own)}
	client.ch <- RedisMessage{Payload: string(remote)}

	select {
	case e := <-received:
		assert.Equal(t, "u9", e.AggregateID())
		assert.Equal(t, shared.EventLevelUp, e.EventType())
	case <-time.After(time.Second):
		t.Fatal("remote event not delivered")
	}

	select {
	case e := <-received:
		t.Fatalf("unexpected second delivery: %v", e.EventType())
	case <-time.After(50 * time.Millisecond):
	}
}
