package live

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voicescribe/internal/jobs"
)

const activitySource = "live"

// State tracks the live session lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateStopped   State = "stopped"
)

var (
	// ErrNoEngine is returned when starting without a configured engine.
	ErrNoEngine = errors.New("no streaming engine configured")

	// ErrSessionActive rejects operations that are only legal while
	// idle, such as swapping the engine mid-stream. The two engines
	// share no internal state; a mid-stream swap would corrupt the
	// transcript, so this fails loudly instead of being absorbed.
	ErrSessionActive = errors.New("live session is active")

	// ErrNotStreaming is returned when stopping an idle session.
	ErrNotStreaming = errors.New("live session is not streaming")

	// ErrSaveThrottled is returned when saves arrive faster than the
	// minimum interval allows.
	ErrSaveThrottled = errors.New("transcript save throttled")
)

// Controller is the streaming counterpart of the job orchestrator. While
// streaming it maintains two buffers: committed final text (append-only)
// and the in-flight partial hypothesis (replaced on every update,
// discarded on each commit).
type Controller struct {
	activity *jobs.Activity
	onUpdate func(final, partial string)
	minSave  time.Duration
	now      func() time.Time

	mu       sync.Mutex
	state    State
	engine   Engine
	final    strings.Builder
	partial  string
	lastSave time.Time
	cancel   context.CancelFunc
}

// Options wires the controller's collaborators.
type Options struct {
	Activity *jobs.Activity

	// OnUpdate is notified after each buffer change with copies of both
	// buffers. It is invoked outside the controller lock and must not
	// block for long.
	OnUpdate func(final, partial string)

	// MinSaveInterval rate-limits Save while text is arriving rapidly.
	MinSaveInterval time.Duration

	Now func() time.Time
}

// NewController creates an idle controller.
func NewController(opts Options) *Controller {
	if opts.Activity == nil {
		opts.Activity = jobs.NewActivity()
	}
	if opts.MinSaveInterval <= 0 {
		opts.MinSaveInterval = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Controller{
		activity: opts.Activity,
		onUpdate: opts.OnUpdate,
		minSave:  opts.MinSaveInterval,
		now:      opts.Now,
		state:    StateIdle,
	}
}

// SetEngine swaps the streaming backend. Only legal while idle.
func (c *Controller) SetEngine(engine Engine) error {
	if engine == nil {
		return ErrNoEngine
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStreaming {
		return ErrSessionActive
	}
	c.engine = engine
	return nil
}

// Start begins a streaming session, clearing both buffers.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state == StateStreaming {
		c.mu.Unlock()
		return ErrSessionActive
	}
	if c.engine == nil {
		c.mu.Unlock()
		return ErrNoEngine
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateStreaming
	c.final.Reset()
	c.partial = ""
	engine := c.engine
	c.mu.Unlock()

	if err := engine.Start(ctx, c.handlePartial, c.handleFinal); err != nil {
		cancel()
		c.mu.Lock()
		c.state = StateIdle
		c.cancel = nil
		c.mu.Unlock()
		return err
	}

	c.activity.SetSource(activitySource, true)
	return nil
}

// Stop finalizes the session: the engine flushes outstanding text, any
// remaining partial hypothesis is folded into the final buffer, the audio
// tap is released, and the controller returns to idle.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return ErrNotStreaming
	}
	c.state = StateStopped
	engine := c.engine
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	stopErr := engine.Stop()
	if cancel != nil {
		cancel()
	}

	c.mu.Lock()
	if c.partial != "" {
		c.appendFinalLocked(c.partial)
		c.partial = ""
	}
	c.state = StateIdle
	final, partial := c.final.String(), c.partial
	c.mu.Unlock()

	c.activity.SetSource(activitySource, false)
	c.notify(final, partial)
	return stopErr
}

// Save writes the transcript (committed text plus the open hypothesis) to
// path. Consecutive saves closer together than the minimum interval are
// rejected with ErrSaveThrottled.
func (c *Controller) Save(path string) error {
	c.mu.Lock()
	now := c.now()
	if !c.lastSave.IsZero() && now.Sub(c.lastSave) < c.minSave {
		c.mu.Unlock()
		return ErrSaveThrottled
	}

	text := c.final.String()
	if c.partial != "" {
		if text != "" {
			text += " "
		}
		text += c.partial
	}
	c.lastSave = now
	c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

// Snapshot returns copies of the current buffers and state.
func (c *Controller) Snapshot() (final, partial string, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.final.String(), c.partial, c.state
}

// EngineName reports the configured engine, empty when none is set.
func (c *Controller) EngineName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return ""
	}
	return c.engine.Name()
}

// handlePartial replaces the in-flight hypothesis.
func (c *Controller) handlePartial(text string) {
	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	c.partial = text
	final, partial := c.final.String(), c.partial
	c.mu.Unlock()

	c.notify(final, partial)
}

// handleFinal commits text and discards the hypothesis it replaces.
// Commits are also accepted while stopping, when the engine flushes its
// remaining audio.
func (c *Controller) handleFinal(text string) {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.appendFinalLocked(text)
	c.partial = ""
	final, partial := c.final.String(), c.partial
	c.mu.Unlock()

	c.notify(final, partial)
}

// appendFinalLocked appends committed text. Called with c.mu held.
func (c *Controller) appendFinalLocked(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if c.final.Len() > 0 {
		c.final.WriteByte(' ')
	}
	c.final.WriteString(text)
}

// notify forwards buffer copies outside the lock.
func (c *Controller) notify(final, partial string) {
	if c.onUpdate != nil {
		c.onUpdate(final, partial)
	}
}
