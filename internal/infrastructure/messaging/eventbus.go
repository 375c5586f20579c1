// Package messaging carries domain events from the progression pipeline to
// their subscribers, either within one process or across instances via Redis.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/pkg/logger"
	"github.com/gamifyx/gradehub/pkg/retry"
)

// ErrEventBusClosed is returned by operations on a closed bus.
var ErrEventBusClosed = errors.New("messaging: event bus is closed")

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps an event handler.
type Middleware func(shared.EventHandler) shared.EventHandler

// Chain applies middlewares so the first one listed runs outermost.
func Chain(handler shared.EventHandler, middlewares ...Middleware) shared.EventHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// RecoveryMiddleware turns a handler panic into an error.
func RecoveryMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("event handler panic",
						logger.EventName(string(event.EventType())),
						logger.Any("panic", r),
						logger.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs failures and slow handlers.
func LoggingMiddleware(log *logger.Logger, slow time.Duration) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			elapsed := time.Since(start)

			switch {
			case err != nil:
				log.Warn("event handler failed",
					logger.EventName(string(event.EventType())),
					logger.Latency(elapsed),
					logger.Err(err),
				)
			case slow > 0 && elapsed > slow:
				log.Info("slow event handler",
					logger.EventName(string(event.EventType())),
					logger.Latency(elapsed),
				)
			}
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus delivers events to handlers registered in this process.
// Every handler is wrapped with panic recovery and failure logging.
//
// Handlers see events in publish order. In async mode a single queue is
// drained by one goroutine, so an observer never receives level_up before the
// xp_awarded that caused it.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	wrap     []Middleware

	// sendMu guards closed and sends on queue; it is never held while handlers run.
	sendMu sync.RWMutex
	closed bool
	queue  chan shared.Event // nil runs handlers inline
	wg     sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode delivers from a background goroutine instead of the publisher's.
	AsyncMode bool
	// QueueSize bounds pending events; Publish blocks while the queue is full.
	QueueSize int

	// SlowHandler is logged when a handler takes longer. Zero disables it.
	SlowHandler time.Duration
	Logger      *logger.Logger
}

// DefaultInMemoryEventBusConfig queues up to 256 events.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{AsyncMode: true, QueueSize: 256, SlowHandler: time.Second}
}

func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("eventbus"))

	b := &InMemoryEventBus{
		byType: make(map[shared.EventType][]shared.EventHandler),
		wrap:   []Middleware{RecoveryMiddleware(log), LoggingMiddleware(log, config.SlowHandler)},
	}
	if config.AsyncMode {
		size := config.QueueSize
		if size <= 0 {
			size = 256
		}
		b.queue = make(chan shared.Event, size)
		b.wg.Add(1)
		go b.drain()
	}
	return b
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.add(handler, func(h shared.EventHandler) {
		b.byType[eventType] = append(b.byType[eventType], h)
	})
}

// SubscribeAll registers a handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.add(handler, func(h shared.EventHandler) {
		b.wildcard = append(b.wildcard, h)
	})
}

func (b *InMemoryEventBus) add(handler shared.EventHandler, register func(shared.EventHandler)) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	if b.isClosed() {
		return ErrEventBusClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	register(Chain(handler, b.wrap...))
	return nil
}

func (b *InMemoryEventBus) isClosed() bool {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	return b.closed
}

// Publish hands the event to every matching handler. Handler errors are
// logged by the middleware and never reach the publisher.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.sendMu.RLock()
	if b.closed {
		b.sendMu.RUnlock()
		return ErrEventBusClosed
	}
	if b.queue != nil {
		b.queue <- event
		b.sendMu.RUnlock()
		return nil
	}
	b.sendMu.RUnlock()

	b.deliver(event)
	return nil
}

func (b *InMemoryEventBus) drain() {
	defer b.wg.Done()
	for event := range b.queue {
		b.deliver(event)
	}
}

func (b *InMemoryEventBus) deliver(event shared.Event) {
	b.mu.RLock()
	targets := append(append([]shared.EventHandler(nil), b.byType[event.EventType()]...), b.wildcard...)
	b.mu.RUnlock()

	for _, h := range targets {
		_ = h(event)
	}
}

// Close delivers every queued event, then rejects further use.
func (b *InMemoryEventBus) Close() error {
	b.sendMu.Lock()
	if b.closed {
		b.sendMu.Unlock()
		return nil
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.sendMu.Unlock()

	b.wg.Wait()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisClient is the pub/sub surface the bus needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
}

// RedisMessage represents a message received from Redis Pub/Sub.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName defaults to "gradehub:events".
	ChannelName string

	// InstanceID filters out this instance's own messages. Generated when empty.
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig

	Logger *logger.Logger
}

// RedisEventBus publishes every event to a Redis channel and to local
// handlers. Events from other instances are replayed to local handlers, so
// each instance can fan out to its own realtime observers.
type RedisEventBus struct {
	client      RedisClient
	localBus    *InMemoryEventBus
	channelName string
	instanceID  string
	retrier     *retry.Retrier
	log         *logger.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

// NewRedisEventBus subscribes to the channel and starts the listener.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = "gradehub:events"
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	bus := &RedisEventBus{
		client:      config.Client,
		localBus:    NewInMemoryEventBus(config.LocalBusConfig),
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		retrier:     retry.CacheRetrier(func(err error) bool { return !errors.Is(err, context.Canceled) }),
		log:         config.Logger.With(logger.Component("redis_eventbus")),
		ctx:         ctx,
		cancel:      cancel,
	}

	messages, err := bus.client.Subscribe(ctx, bus.channelName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start subscriber: %w", err)
	}

	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.subscriptionLoop(messages)
	}()

	return bus, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish sends the event to Redis, then to local handlers. A Redis failure
// is retried briefly, then logged; local delivery still happens.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	data, err := json.Marshal(eventEnvelope{
		InstanceID:  b.instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = b.retrier.Do(b.ctx, func(ctx context.Context) error {
		return b.client.Publish(ctx, b.channelName, data)
	})
	if err != nil {
		b.log.Error("failed to publish to redis", logger.EventName(string(event.EventType())), logger.Err(err))
	}

	return b.localBus.Publish(event)
}

func (b *RedisEventBus) subscriptionLoop(messages <-chan RedisMessage) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.log.Error("redis subscription error", logger.Err(msg.Err))
				continue
			}
			b.handleRedisMessage(msg)
		}
	}
}

func (b *RedisEventBus) handleRedisMessage(msg RedisMessage) {
	var envelope eventEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
		b.log.Error("failed to unmarshal event", logger.Err(err))
		return
	}

	// Own events were already delivered locally by Publish.
	if envelope.InstanceID == b.instanceID {
		return
	}

	event := &reconstructedEvent{
		eventType:   envelope.EventType,
		aggregateID: envelope.AggregateID,
		occurredAt:  envelope.OccurredAt,
		payload:     envelope.Payload,
	}
	if err := b.localBus.Publish(event); err != nil {
		b.log.Error("failed to process remote event", logger.Err(err))
	}
}

// Close stops the listener and drains local handlers.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.localBus.Close()
}

// InstanceID returns the id stamped on this instance's messages.
func (b *RedisEventBus) InstanceID() string { return b.instanceID }

// ══════════════════════════════════════════════════════════════════════════════
// EVENT ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

type eventEnvelope struct {
	InstanceID  string                 `json:"instance_id"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// reconstructedEvent is an event decoded from another instance.
// Its payload numbers are float64 after the JSON round trip.
type reconstructedEvent struct {
	eventType   shared.EventType
	aggregateID string
	occurredAt  time.Time
	payload     map[string]interface{}
}

func (e *reconstructedEvent) EventType() shared.EventType     { return e.eventType }
func (e *reconstructedEvent) AggregateID() string             { return e.aggregateID }
func (e *reconstructedEvent) OccurredAt() time.Time           { return e.occurredAt }
func (e *reconstructedEvent) Payload() map[string]interface{} { return e.payload }

var (
	_ shared.EventBus = (*InMemoryEventBus)(nil)
	_ shared.EventBus = (*RedisEventBus)(nil)
)
