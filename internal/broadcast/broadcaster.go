package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/netreachhq/reachmon/pkg/types"
)

const defaultSubscriberBuffer = 16

// DropRecorder counts notifications discarded because a subscriber's channel
// was full.
type DropRecorder interface {
	IncSubscriberDrops()
}

// Broadcaster holds the last known connectivity status and fans out
// change-only notifications to live subscribers. Subscribers never receive a
// replay of the current value; callers needing it read Last.
type Broadcaster struct {
	mu     sync.Mutex
	last   types.Status
	known  bool
	subs   map[uuid.UUID]chan types.StatusEvent
	closed bool

	buffer int
	drops  DropRecorder
	now    func() time.Time
}

type Option func(*Broadcaster)

// WithBuffer overrides the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithDropRecorder wires a metrics recorder for discarded notifications.
func WithDropRecorder(rec DropRecorder) Option {
	return func(b *Broadcaster) {
		if rec != nil {
			b.drops = rec
		}
	}
}

// WithNow overrides the clock used to stamp events.
func WithNow(now func() time.Time) Option {
	return func(b *Broadcaster) {
		if now != nil {
			b.now = now
		}
	}
}

func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subs:   make(map[uuid.UUID]chan types.StatusEvent),
		buffer: defaultSubscriberBuffer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is a cancellable handle on the broadcast channel.
type Subscription struct {
	id uuid.UUID
	ch chan types.StatusEvent
	b  *Broadcaster
}

// ID identifies the subscription.
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Events returns the receive-only notification channel. It is closed when
// the subscription is cancelled or the broadcaster is closed.
func (s *Subscription) Events() <-chan types.StatusEvent {
	return s.ch
}

// Cancel detaches the subscription without affecting other subscribers.
// Cancelling twice, or after the broadcaster closed, is a no-op.
func (s *Subscription) Cancel() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.b.closed {
		return
	}
	if ch, ok := s.b.subs[s.id]; ok {
		delete(s.b.subs, s.id)
		close(ch)
	}
}

// Subscribe registers a new live subscriber. Subscribing after Close yields
// a handle whose channel is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id: uuid.New(),
		ch: make(chan types.StatusEvent, b.buffer),
		b:  b,
	}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub.ch
	return sub
}

// Publish applies change-only emission: an unchanged status is dropped
// silently, a changed one updates the last known value and notifies every
// live subscriber. It reports whether an emission happened. Publishing
// after Close is a no-op.
func (b *Broadcaster) Publish(status types.Status) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	if b.known && b.last == status {
		return false
	}
	b.last = status
	b.known = true
	b.emitLocked(types.StatusEvent{Status: status, Timestamp: b.now().UTC()})
	return true
}

// PublishError surfaces a machinery fault on the subscriber channel. Faults
// are never deduplicated and do not touch the last known status.
func (b *Broadcaster) PublishError(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.emitLocked(types.StatusEvent{Status: types.StatusUnknown, Timestamp: b.now().UTC(), Err: err})
}

// Last returns the last known status; ok is false before the first publish.
func (b *Broadcaster) Last() (types.Status, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.known {
		return types.StatusUnknown, false
	}
	return b.last, true
}

// SubscriberCount reports the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close terminates every subscriber channel. Further publishes are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *Broadcaster) emitLocked(event types.StatusEvent) {
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			if b.drops != nil {
				b.drops.IncSubscriberDrops()
			}
		}
	}
}
