package jobs

import "testing"

// TestActivityCombinesSources verifies the observable stays active while
// any source is active.
func TestActivityCombinesSources(t *testing.T) {
	activity := NewActivity()
	if activity.Get() {
		t.Fatal("new observable should be inactive")
	}

	activity.SetSource("jobs", true)
	activity.SetSource("live", true)
	if !activity.Get() {
		t.Fatal("expected active with two sources")
	}

	activity.SetSource("jobs", false)
	if !activity.Get() {
		t.Fatal("expected active while live source remains")
	}

	activity.SetSource("live", false)
	if activity.Get() {
		t.Fatal("expected inactive after all sources cleared")
	}
}

// TestActivityWatcherSeesLatestValue verifies a slow watcher is coalesced
// to the newest combined value rather than blocking writers.
func TestActivityWatcherSeesLatestValue(t *testing.T) {
	activity := NewActivity()
	ch := activity.Watch()
	defer activity.Unwatch(ch)

	activity.SetSource("jobs", true)
	activity.SetSource("jobs", false)

	if got := <-ch; got {
		t.Fatal("watcher should observe the latest value (inactive)")
	}
}

// TestActivityNoNotificationWithoutChange verifies redundant writes do not
// wake watchers.
func TestActivityNoNotificationWithoutChange(t *testing.T) {
	activity := NewActivity()
	activity.SetSource("jobs", true)

	ch := activity.Watch()
	defer activity.Unwatch(ch)

	// Already active; another active source does not change the value.
	activity.SetSource("live", true)
	select {
	case v := <-ch:
		t.Fatalf("unexpected notification: %v", v)
	default:
	}
}
