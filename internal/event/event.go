// Package event provides the in-process pub/sub bus, backed by
// watermill's gochannel transport.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/smancode/sman-sub006/internal/logging"
)

// Type identifies the kind of event.
type Type string

const (
	SessionCreated   Type = "session.created"
	SessionCompleted Type = "session.completed"
	RoundStarted     Type = "round.started"
	RoundFinished    Type = "round.finished"
	MessageCreated   Type = "message.created"
	PartUpdated      Type = "part.updated"
	ToolForwarded    Type = "tool.forwarded"
	ToolResolved     Type = "tool.resolved"
	ToolTimedOut     Type = "tool.timed_out"
	ConnOpened       Type = "conn.opened"
	ConnClosed       Type = "conn.closed"
)

// topic is the single watermill topic all events flow through.
const topic = "sman.events"

// Event is a bus message.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data,omitempty"`
}

// Subscriber receives events.
type Subscriber func(Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus fans events out to typed subscribers. Watermill carries the
// serialized form so external consumers can be attached to the same
// topic later; typed delivery stays in-process to preserve Data types.
type Bus struct {
	mu sync.RWMutex

	pubsub      *gochannel.GoChannel
	subscribers map[Type][]subscriberEntry
	global      []subscriberEntry
	nextID      uint64
	closed      bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100},
			watermill.NopLogger{},
		),
		subscribers: make(map[Type][]subscriberEntry),
	}
}

// Subscribe registers a subscriber for one event type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.subscribers[t] = append(b.subscribers[t], subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(t, id) }
}

// SubscribeAll registers a subscriber for every event type and returns
// an unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.subscribers[t]
	for i, e := range entries {
		if e.id == id {
			b.subscribers[t] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.global {
		if e.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to all matching subscribers and mirrors it
// onto the watermill topic.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	entries := make([]subscriberEntry, 0, len(b.subscribers[ev.Type])+len(b.global))
	entries = append(entries, b.subscribers[ev.Type]...)
	entries = append(entries, b.global...)
	b.mu.RUnlock()

	for _, e := range entries {
		e.fn(ev)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		logging.Warn().Err(err).Str("type", string(ev.Type)).Msg("event not serializable")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		logging.Warn().Err(err).Str("type", string(ev.Type)).Msg("event publish failed")
	}
}

// Messages exposes the raw watermill subscription for the event topic.
func (b *Bus) Messages(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down; further publishes are dropped.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.subscribers = make(map[Type][]subscriberEntry)
	b.global = nil
	return b.pubsub.Close()
}
