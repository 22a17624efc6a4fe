package jobs

import (
	"testing"

	"voicescribe/internal/domain"
)

// TestEventBusSequencing verifies monotonically increasing sequence numbers
// and incremental reads.
func TestEventBusSequencing(t *testing.T) {
	bus := NewEventBus(10)

	first := bus.Publish(Event{JobID: "a", Type: EventTypeStatus})
	second := bus.Publish(Event{JobID: "a", Type: EventTypeProgress})
	if first.Seq >= second.Seq {
		t.Fatalf("sequence not increasing: %d then %d", first.Seq, second.Seq)
	}
	if first.Timestamp.IsZero() || second.Timestamp.IsZero() {
		t.Fatal("published events must carry timestamps")
	}

	since := bus.Since(first.Seq)
	if len(since) != 1 || since[0].Seq != second.Seq {
		t.Fatalf("since(%d) = %+v, want only the second event", first.Seq, since)
	}
	if got := bus.Since(second.Seq); len(got) != 0 {
		t.Fatalf("since(latest) = %+v, want empty", got)
	}
}

// TestEventBusTrimsHistory keeps only the newest maxEvents entries.
func TestEventBusTrimsHistory(t *testing.T) {
	bus := NewEventBus(3)
	for i := 0; i < 5; i++ {
		bus.Publish(Event{JobID: "a", Type: EventTypeProgress})
	}

	events := bus.Since(0)
	if len(events) != 3 {
		t.Fatalf("history length = %d, want 3", len(events))
	}
	if events[0].Seq != 3 || events[2].Seq != 5 {
		t.Fatalf("trimmed to wrong window: %d..%d", events[0].Seq, events[2].Seq)
	}
}

// TestEventBusDropsProgressForSlowSubscriber verifies progress events are
// droppable when a subscriber's buffer is full.
func TestEventBusDropsProgressForSlowSubscriber(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.Subscribe(1)
	defer bus.Unsubscribe(ch)

	bus.Publish(Event{JobID: "a", Type: EventTypeProgress, Progress: 0.1})
	bus.Publish(Event{JobID: "a", Type: EventTypeProgress, Progress: 0.2})

	got := <-ch
	if got.Progress != 0.1 {
		t.Fatalf("delivered progress = %v, want the buffered first event", got.Progress)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra delivery: %+v", extra)
	default:
	}
}

// TestEventBusTerminalEventEvictsOldest verifies a status event displaces a
// buffered event instead of being dropped.
func TestEventBusTerminalEventEvictsOldest(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.Subscribe(1)
	defer bus.Unsubscribe(ch)

	bus.Publish(Event{JobID: "a", Type: EventTypeProgress, Progress: 0.5})
	bus.Publish(Event{JobID: "a", Type: EventTypeStatus, Status: domain.JobStatusCompleted})

	got := <-ch
	if got.Type != EventTypeStatus || got.Status != domain.JobStatusCompleted {
		t.Fatalf("delivered event = %+v, want terminal status", got)
	}
}

// TestEventBusUnsubscribeCloses verifies unsubscribe closes the channel and
// a second unsubscribe is harmless.
func TestEventBusUnsubscribeCloses(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.Subscribe(1)

	bus.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("channel should be closed after unsubscribe")
	}
	bus.Unsubscribe(ch)
}
