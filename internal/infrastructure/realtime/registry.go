// Package realtime pushes progression events to connected observers over
// Server-Sent Events.
package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gamifyx/gradehub/internal/domain/shared"
)

// ErrChannelNotFound is returned when authenticating an unknown channel.
var ErrChannelNotFound = shared.NewDomainError("realtime", "Authenticate", shared.ErrNotFound, "channel not connected")

// Message is one event queued for an observer.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Channel is one live observer connection.
type Channel struct {
	ID          string
	ConnectedAt time.Time

	outbound chan Message
	done     chan struct{}
	once     sync.Once

	mu     sync.RWMutex
	userID string
}

// NewChannel creates an anonymous channel with a bounded outbound buffer.
func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = 64
	}
	return &Channel{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now().UTC(),
		outbound:    make(chan Message, buffer),
		done:        make(chan struct{}),
	}
}

// UserID is empty until the channel authenticates.
func (c *Channel) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Channel) setUser(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// Outbound is the FIFO the stream writer drains.
func (c *Channel) Outbound() <-chan Message { return c.outbound }

// Done is closed when the channel is disconnected.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Deliver enqueues msg without blocking. It reports false when the buffer is
// full or the channel is closed.
func (c *Channel) Deliver(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.outbound <- msg:
		return true
	default:
		return false
	}
}

func (c *Channel) close() {
	c.once.Do(func() { close(c.done) })
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// SessionRegistry tracks live channels and which user each belongs to.
type SessionRegistry interface {
	Connect(ch *Channel)
	// Authenticate binds a connected channel to userID, replacing any prior binding.
	Authenticate(channelID, userID string) error
	Disconnect(channelID string)
	ChannelsFor(userID string) []*Channel
	All() []*Channel
}

// MemoryRegistry is the in-process SessionRegistry.
type MemoryRegistry struct {
	mu     sync.RWMutex
	byID   map[string]*Channel
	byUser map[string]map[string]*Channel
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byID:   make(map[string]*Channel),
		byUser: make(map[string]map[string]*Channel),
	}
}

func (r *MemoryRegistry) Connect(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[ch.ID] = ch
	if uid := ch.UserID(); uid != "" {
		r.bindLocked(ch, uid)
	}
}

func (r *MemoryRegistry) Authenticate(channelID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.byID[channelID]
	if !ok {
		return ErrChannelNotFound
	}
	if prev := ch.UserID(); prev != "" && prev != userID {
		r.unbindLocked(ch, prev)
	}
	ch.setUser(userID)
	r.bindLocked(ch, userID)
	return nil
}

func (r *MemoryRegistry) Disconnect(channelID string) {
	r.mu.Lock()
	ch, ok := r.byID[channelID]
	if ok {
		delete(r.byID, channelID)
		if uid := ch.UserID(); uid != "" {
			r.unbindLocked(ch, uid)
		}
	}
	r.mu.Unlock()

	if ok {
		ch.close()
	}
}

func (r *MemoryRegistry) ChannelsFor(userID string) []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	out := make([]*Channel, 0, len(set))
	for _, ch := range set {
		out = append(out, ch)
	}
	return out
}

func (r *MemoryRegistry) All() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Channel, 0, len(r.byID))
	for _, ch := range r.byID {
		out = append(out, ch)
	}
	return out
}

// Count returns the number of connected channels.
func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *MemoryRegistry) bindLocked(ch *Channel, userID string) {
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]*Channel)
		r.byUser[userID] = set
	}
	set[ch.ID] = ch
}

func (r *MemoryRegistry) unbindLocked(ch *Channel, userID string) {
	if set, ok := r.byUser[userID]; ok {
		delete(set, ch.ID)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

var _ SessionRegistry = (*MemoryRegistry)(nil)
