// Package telemetry implements TelemetryBus (spec.md §4.J): a pub/sub fan-out
// of MotionAnalyzer and ObjectTracker output to any number of subscribers,
// each with its own bounded channel.
//
// Grounded on orbo's internal/pipeline/event_bus.go EventBus: map-of-pointer
// subscriptions guarded by sync.RWMutex, a drop-on-full Publish (never
// blocks the publishing goroutine), and Close draining/closing every
// subscriber channel.
package telemetry

import "sync"

// EventKind distinguishes what a telemetry Event carries.
type EventKind string

const (
	EventMotion   EventKind = "motion"
	EventTracking EventKind = "tracking"
	EventAlert    EventKind = "alert"
)

// Event is one telemetry message, carrying whichever payload matches Kind.
type Event struct {
	Kind     EventKind
	FrameSeq uint64
	Motion   any // *frame.Delta when Kind == EventMotion
	Tracking any // *frame.Result when Kind == EventTracking
	Alert    any // *frame.Observation when Kind == EventAlert
}

// defaultBufferSize matches spec.md §4.J's "bounded per-subscriber channel
// (default 100)".
const defaultBufferSize = 100

type subscription struct {
	ch chan Event
}

// Bus fans out Events to any number of subscribers without blocking the
// publisher: a full subscriber channel drops the event rather than stall
// the pipeline, exactly as EventBus.Publish does.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscription]bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[*subscription]bool)}
}

// Subscribe returns a receive-only channel of bufferSize (or the default if
// <= 0) and an unsubscribe function that closes it.
func (b *Bus) Subscribe(bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	sub := &subscription{ch: make(chan Event, bufferSize)}

	b.mu.Lock()
	b.subs[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, unsubscribe
}

// Publish delivers ev to every current subscriber, dropping it for any
// subscriber whose channel is full.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}
