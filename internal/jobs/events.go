package jobs

import (
	"sync"
	"time"

	"voicescribe/internal/domain"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
	EventTypeRemoved  EventType = "removed"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq       int64            `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	JobID     string           `json:"jobId"`
	Type      EventType        `json:"type"`
	Status    domain.JobStatus `json:"status,omitempty"`
	Stage     string           `json:"stage,omitempty"`
	Progress  float64          `json:"progress,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// EventBus stores recent events, provides incremental reads, and fans out
// to channel subscribers. Delivery to subscribers never blocks a publisher:
// progress events are dropped when a subscriber is full, every other event
// type displaces the oldest buffered event instead, so terminal status
// changes are always delivered to a live subscriber.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	subs      map[chan Event]struct{}
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      make(map[chan Event]struct{}),
	}
}

// Publish appends one event, assigns sequence and timestamp, and fans out.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	for ch := range b.subs {
		b.deliverLocked(ch, event)
	}
	return event
}

// deliverLocked pushes one event without blocking. Progress updates are
// droppable; anything else evicts the oldest pending event to make room.
func (b *EventBus) deliverLocked(ch chan Event, event Event) {
	select {
	case ch <- event:
		return
	default:
	}

	if event.Type == EventTypeProgress {
		return
	}

	select {
	case <-ch:
	default:
	}
	select {
	case ch <- event:
	default:
	}
}

// Subscribe registers a buffered channel observer.
func (b *EventBus) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel observer and closes it.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
