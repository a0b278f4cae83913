// Package messaging implements cross-agent communication: a per-session
// event bus, per-agent inbox queues, channels with streaming support,
// meeting fan-out, and per-human delivery preferences.
package messaging

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one item published on the bus: AgentsChanged, PlaybookStart,
// PlaybookEnd, StepExecuted, LineExecuted, VariableUpdate,
// CallStackPush, CallStackPop, ArtifactCreated, MessageSent,
// MeetingCreated, MeetingJoined, StreamStart, StreamChunk,
// StreamComplete, and anything else a subscriber cares about. Class is
// the event's type name; subscribers register against a class or "*"
// for everything. Seq is a per-session monotonically increasing
// sequence number stamped by the bus that published it, letting a
// consumer order events even when they arrive out of publish order
// across goroutines.
type Event struct {
	Class     string
	SessionID string
	Seq       int64
	Payload   any
	CreatedAt time.Time
}

// Subscriber receives published events on its registered class(es).
// Implementations must not block significantly — EventBus calls them
// synchronously during Publish.
type Subscriber func(Event)

// EventBus is the one-per-session publish/subscribe hub. Subscriptions
// can be added while a publish is in flight: Publish snapshots the
// subscriber list first, so a subscriber registered mid-publish never
// receives the event currently being delivered, and no deadlock is
// possible.
type EventBus struct {
	mu          sync.RWMutex
	sessionID   string
	subscribers map[string][]Subscriber
	onError     func(class string, err any)
	seq         int64
}

// NewEventBus returns a bus stamping every published event with
// sessionID. onError, if non-nil, is called when a subscriber panics;
// the panic is always recovered so one bad subscriber can't take down
// the publisher.
func NewEventBus(sessionID string, onError func(class string, err any)) *EventBus {
	return &EventBus{
		sessionID:   sessionID,
		subscribers: make(map[string][]Subscriber),
		onError:     onError,
	}
}

// Subscribe registers fn for events of the given class, or "*" for
// every class.
func (b *EventBus) Subscribe(class string, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[class] = append(b.subscribers[class], fn)
}

// Publish stamps the event's session id and invokes every matching
// subscriber (class-specific, then wildcard), each shielded from the
// others by panic recovery.
func (b *EventBus) Publish(evt Event) {
	evt.SessionID = b.sessionID
	evt.Seq = atomic.AddInt64(&b.seq, 1)
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now()
	}

	b.mu.RLock()
	targets := append(append([]Subscriber{}, b.subscribers[evt.Class]...), b.subscribers["*"]...)
	b.mu.RUnlock()

	for _, fn := range targets {
		b.invoke(evt, fn)
	}
}

func (b *EventBus) invoke(evt Event, fn Subscriber) {
	defer func() {
		if r := recover(); r != nil && b.onError != nil {
			b.onError(evt.Class, r)
		}
	}()
	fn(evt)
}
