// Package events provides the broadcast bus that carries orchestrator
// responses and fired alarms to every open session. The bus is
// nil-safe: Publish on a nil *Bus is a no-op.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Sources.
const (
	// SourceOrchestrator marks interim messages emitted while a chat
	// request is in flight.
	SourceOrchestrator = "orchestrator"
	// SourceAlarm marks events from the alarm scheduler.
	SourceAlarm = "alarm"
)

// Kinds.
const (
	// KindInterim is an out-of-band message published before actions run.
	// Data: conversation_id, session_id, content.
	KindInterim = "interim"
	// KindAlarmFired carries an alarm snapshot.
	// Data: id, time, message.
	KindAlarmFired = "alarm_fired"
)

// Event is a single published occurrence.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// String returns the value of a string field in Data, or "".
func (e Event) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Bus is a non-blocking broadcast bus. Each subscriber gets its own
// buffered channel; a full subscriber misses the event instead of
// stalling the publisher. Misses are counted per subscriber so the
// consumer can report them.
type Bus struct {
	mu   sync.RWMutex
	subs map[<-chan Event]*subscription

	dropped atomic.Uint64
}

type subscription struct {
	ch      chan Event
	dropped atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[<-chan Event]*subscription)}
}

// Publish delivers e to every subscriber. A zero Timestamp is set to now.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscriber with a buffer of bufSize events.
// Callers must Unsubscribe when done.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	b.subs[ch] = &subscription{ch: ch}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscription and closes its channel. Repeated
// calls are no-ops.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[ch]
	if !ok {
		return
	}
	delete(b.subs, ch)
	close(sub.ch)
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// DroppedFor returns how many events the subscription ch missed because
// its buffer was full. It is zero once ch is unsubscribed.
func (b *Bus) DroppedFor(ch <-chan Event) uint64 {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub, ok := b.subs[ch]; ok {
		return sub.dropped.Load()
	}
	return 0
}
