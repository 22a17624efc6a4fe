package jobs

import "sync"

// Activity is the process-wide observable telling the UI whether any
// capture or transcription is in progress. It is created at startup; only
// the orchestrator and the live session controller write their respective
// sources, any component may read or watch the combined value.
type Activity struct {
	mu       sync.Mutex
	sources  map[string]bool
	watchers map[chan bool]struct{}
}

// NewActivity creates an inactive observable.
func NewActivity() *Activity {
	return &Activity{
		sources:  make(map[string]bool),
		watchers: make(map[chan bool]struct{}),
	}
}

// SetSource publishes one writer's activity. The observable is active when
// any source is. Watchers that cannot keep up see only the latest value.
func (a *Activity) SetSource(name string, active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	before := a.anyActiveLocked()
	if active {
		a.sources[name] = true
	} else {
		delete(a.sources, name)
	}
	after := a.anyActiveLocked()
	if before == after {
		return
	}

	for ch := range a.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- after:
		default:
		}
	}
}

// Get returns the combined value.
func (a *Activity) Get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.anyActiveLocked()
}

func (a *Activity) anyActiveLocked() bool {
	return len(a.sources) > 0
}

// Watch registers a watcher channel carrying the latest combined value.
func (a *Activity) Watch() chan bool {
	ch := make(chan bool, 1)
	a.mu.Lock()
	a.watchers[ch] = struct{}{}
	a.mu.Unlock()
	return ch
}

// Unwatch removes a watcher and closes its channel.
func (a *Activity) Unwatch(ch chan bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.watchers[ch]; !ok {
		return
	}
	delete(a.watchers, ch)
	close(ch)
}
