// Package orchestrator drives every transcription job through its
// lifecycle: it accepts jobs, asks the selector for an ordered candidate
// list, executes backends with retry-by-fallback, writes each transition
// through the durable ledger, and publishes progress to observers without
// ever blocking on them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicescribe/internal/domain"
	"voicescribe/internal/jobs"
	"voicescribe/internal/selector"
	"voicescribe/internal/transcribe"
)

const activitySource = "jobs"

// ErrNotCancellable is returned when cancelling a job in a terminal state.
var ErrNotCancellable = errors.New("job is not cancellable")

// ErrNoPendingCapture is returned when finishing a recording for a job
// that has no open capture.
var ErrNoPendingCapture = errors.New("no pending capture for job")

// errStaleEpoch marks a write attempt from a superseded execution context
// (cancelled or retried job). The write is discarded.
var errStaleEpoch = errors.New("stale job epoch")

// ConfigSnapshot freezes the runtime configuration for one job run.
type ConfigSnapshot struct {
	Settings    domain.Settings
	Credentials domain.Credentials
}

// BackendFactory maps strategies to backends for one configuration
// snapshot. Strategies without a backend are skipped as failed attempts.
type BackendFactory func(cfg ConfigSnapshot) map[selector.Strategy]transcribe.Backend

// Options wires the orchestrator's collaborators.
type Options struct {
	Ledger       *jobs.Ledger
	Events       *jobs.EventBus
	Activity     *jobs.Activity
	Config       func() ConfigSnapshot
	Connectivity selector.Connectivity
	Catalog      selector.ModelCatalog
	Backends     BackendFactory

	// AutoRun starts a run goroutine on enqueue and retry.
	AutoRun bool

	// CancelGrace bounds how long Cancel waits for a backend to
	// acknowledge before marking the job cancelled anyway.
	CancelGrace time.Duration

	Logf func(format string, args ...any)
}

// Orchestrator owns all mutations of job records. Backend execution runs
// on goroutines and reports back through epoch-guarded methods, so a
// cancelled or retried job's stale callbacks can never touch the ledger.
type Orchestrator struct {
	ledger   *jobs.Ledger
	bus      *jobs.EventBus
	activity *jobs.Activity
	config   func() ConfigSnapshot
	conn     selector.Connectivity
	catalog  selector.ModelCatalog
	backends BackendFactory
	autoRun  bool
	grace    time.Duration
	logf     func(format string, args ...any)

	mu       sync.Mutex
	epochs   map[string]uint64
	cancels  map[string]context.CancelFunc
	running  map[string]chan struct{}
	captures map[string]chan string
}

// New builds an orchestrator. Ledger, Events, Config, Catalog, and
// Backends are required.
func New(opts Options) *Orchestrator {
	if opts.CancelGrace <= 0 {
		opts.CancelGrace = 3 * time.Second
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	if opts.Activity == nil {
		opts.Activity = jobs.NewActivity()
	}

	return &Orchestrator{
		ledger:   opts.Ledger,
		bus:      opts.Events,
		activity: opts.Activity,
		config:   opts.Config,
		conn:     opts.Connectivity,
		catalog:  opts.Catalog,
		backends: opts.Backends,
		autoRun:  opts.AutoRun,
		grace:    opts.CancelGrace,
		logf:     opts.Logf,
		epochs:   make(map[string]uint64),
		cancels:  make(map[string]context.CancelFunc),
		running:  make(map[string]chan struct{}),
		captures: make(map[string]chan string),
	}
}

// Enqueue creates a queued job for an existing audio file and persists it.
// It never blocks on transcription; each call yields one distinct id.
func (o *Orchestrator) Enqueue(sourcePath, filename string) (domain.Job, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return domain.Job{}, fmt.Errorf("source path is required")
	}

	job := o.newJob(filename)
	job.SourcePath = sourcePath
	if err := o.ledger.Add(job); err != nil {
		return domain.Job{}, err
	}
	o.publishStatus(job)

	if o.autoRun {
		go func() { _ = o.Run(job.ID) }()
	}
	return job, nil
}

// EnqueueRecording creates a queued job whose source audio is still being
// captured. The run enters the recording status and waits until
// FinishRecording delivers the captured file (or the job is cancelled).
func (o *Orchestrator) EnqueueRecording(filename string) (domain.Job, error) {
	job := o.newJob(filename)

	o.mu.Lock()
	o.captures[job.ID] = make(chan string, 1)
	o.mu.Unlock()

	if err := o.ledger.Add(job); err != nil {
		o.mu.Lock()
		delete(o.captures, job.ID)
		o.mu.Unlock()
		return domain.Job{}, err
	}
	o.publishStatus(job)

	if o.autoRun {
		go func() { _ = o.Run(job.ID) }()
	}
	return job, nil
}

// FinishRecording hands the captured audio file to a recording job.
func (o *Orchestrator) FinishRecording(id, wavPath string) error {
	o.mu.Lock()
	capture, ok := o.captures[id]
	if ok {
		delete(o.captures, id)
	}
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingCapture, id)
	}
	capture <- wavPath
	return nil
}

// Run advances one queued job through the selector's candidate list until
// a backend succeeds, candidates are exhausted, or the job is cancelled.
// Concurrent calls for the same id are serialized: the job is promoted out
// of queued under the orchestrator lock, so a second Run is a no-op.
func (o *Orchestrator) Run(id string) error {
	o.mu.Lock()
	job, ok := o.ledger.Get(id)
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	if job.Status != domain.JobStatusQueued {
		o.mu.Unlock()
		return nil
	}

	o.epochs[id]++
	epoch := o.epochs[id]
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.cancels[id] = cancel
	o.running[id] = done
	capture := o.captures[id]
	cfg := o.config()
	o.mu.Unlock()

	defer func() {
		close(done)
		cancel()
		o.mu.Lock()
		if o.epochs[id] == epoch {
			delete(o.cancels, id)
			delete(o.running, id)
		}
		o.mu.Unlock()
		o.refreshActivity()
	}()

	if capture != nil {
		if err := o.transition(id, epoch, domain.JobStatusRecording, domain.StagePreparing); err != nil {
			return ignoreExpected(err)
		}
		select {
		case wavPath := <-capture:
			if err := o.setSourcePath(id, epoch, wavPath); err != nil {
				return ignoreExpected(err)
			}
		case <-ctx.Done():
			return nil
		}
	}

	candidates := selector.Select(
		selector.Input{SourcePath: job.SourcePath, Filename: job.Filename},
		cfg.Settings, cfg.Credentials, o.conn, o.catalog,
	)
	if len(candidates) == 0 {
		return ignoreExpected(o.fail(id, epoch, "no available transcription backend"))
	}

	backends := o.backends(cfg)
	var lastErr error
	for _, strategy := range candidates {
		if ctx.Err() != nil {
			return nil
		}

		backend := backends[strategy]
		if backend == nil {
			lastErr = fmt.Errorf("no backend registered for strategy %s", strategy)
			continue
		}

		if err := o.transition(id, epoch, domain.JobStatusTranscribing, string(strategy)); err != nil {
			return ignoreExpected(err)
		}

		sourcePath := o.currentSourcePath(id, job.SourcePath)
		result, err := backend.Transcribe(ctx, transcribe.Request{
			InputPath: sourcePath,
			Language:  cfg.Settings.Language,
			OnProgress: func(fraction float64) {
				o.reportProgress(id, epoch, fraction)
			},
		})
		if err == nil {
			return ignoreExpected(o.complete(id, epoch, result))
		}
		if ctx.Err() != nil {
			// Cancel owns the terminal transition for this job.
			return nil
		}

		var inputErr *transcribe.InputError
		if errors.As(err, &inputErr) {
			return ignoreExpected(o.fail(id, epoch, inputErr.Error()))
		}

		lastErr = err
		o.logf("job %s: %s attempt failed: %v", id, strategy, err)
	}

	message := "no available transcription backend"
	if lastErr != nil {
		message = lastErr.Error()
	}
	return ignoreExpected(o.fail(id, epoch, message))
}

// Retry re-queues a failed job, clearing its error and progress. Calling
// it for a job in any other status is a no-op.
func (o *Orchestrator) Retry(id string) error {
	o.mu.Lock()
	job, ok := o.ledger.Get(id)
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	if job.Status != domain.JobStatusFailed {
		o.mu.Unlock()
		return nil
	}

	o.epochs[id]++
	job.Status = domain.JobStatusQueued
	job.Stage = domain.StagePreparing
	job.Error = ""
	job.Progress = 0
	job.Result = nil
	o.updateLocked(job)
	o.mu.Unlock()

	o.publishStatus(job)
	if o.autoRun {
		go func() { _ = o.Run(id) }()
	}
	return nil
}

// Cancel stops a queued or in-flight job. The backend is signalled
// cooperatively; after it acknowledges or the grace period elapses, the
// job is marked cancelled and any late completion from the superseded run
// is rejected by the epoch guard.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	job, ok := o.ledger.Get(id)
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	if job.Status != domain.JobStatusQueued && !jobs.IsActive(job.Status) {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotCancellable, id, job.Status)
	}

	o.epochs[id]++
	epoch := o.epochs[id]
	cancel := o.cancels[id]
	done := o.running[id]
	delete(o.cancels, id)
	delete(o.running, id)
	delete(o.captures, id)
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(o.grace):
			o.logf("job %s: backend did not acknowledge cancellation within %s", id, o.grace)
		}
	}
	return o.markCancelled(id, epoch)
}

// RemoveJob deletes a job from the ledger, cancelling it first when it is
// still queued or in flight. Removing an unknown id is a no-op.
func (o *Orchestrator) RemoveJob(id string) error {
	job, ok := o.ledger.Get(id)
	if !ok {
		return nil
	}

	if job.Status == domain.JobStatusQueued || jobs.IsActive(job.Status) {
		if err := o.Cancel(id); err != nil && !errors.Is(err, ErrNotCancellable) {
			return err
		}
	}

	o.ledger.Remove(id)
	o.bus.Publish(jobs.Event{JobID: id, Type: jobs.EventTypeRemoved})
	o.refreshActivity()
	return nil
}

// Recover reconciles persisted records with a fresh process at startup.
// A job a previous process left in an active status has no execution
// behind it anymore: interrupted transcriptions are re-queued, and
// interrupted recordings whose audio died with the process are failed.
// With AutoRun set, every queued job is then started.
func (o *Orchestrator) Recover() {
	for _, job := range o.ledger.List() {
		switch job.Status {
		case domain.JobStatusTranscribing:
			o.requeueInterrupted(job)
		case domain.JobStatusRecording:
			if job.SourcePath == "" {
				o.failInterrupted(job, "recording interrupted before any audio was captured")
			} else {
				o.requeueInterrupted(job)
			}
		}
	}

	if !o.autoRun {
		return
	}
	for _, job := range o.ledger.Queued() {
		id := job.ID
		go func() { _ = o.Run(id) }()
	}
}

// requeueInterrupted rewinds a record a dead process left mid-flight.
// This is ledger rehydration, not a runtime status change, so it bypasses
// the transition table; the epoch bump fences out any impossible stragglers.
func (o *Orchestrator) requeueInterrupted(job domain.Job) {
	o.mu.Lock()
	o.epochs[job.ID]++
	job.Status = domain.JobStatusQueued
	job.Stage = domain.StagePreparing
	job.Error = ""
	job.Progress = 0
	job.Result = nil
	o.updateLocked(job)
	o.mu.Unlock()
	o.publishStatus(job)
}

// failInterrupted terminates a record whose input can never materialize.
func (o *Orchestrator) failInterrupted(job domain.Job, message string) {
	o.mu.Lock()
	o.epochs[job.ID]++
	job.Status = domain.JobStatusFailed
	job.Stage = domain.StageError
	job.Error = message
	job.Progress = 0
	job.Result = nil
	o.updateLocked(job)
	o.mu.Unlock()

	o.publishStatus(job)
	o.bus.Publish(jobs.Event{
		JobID:   job.ID,
		Type:    jobs.EventTypeError,
		Status:  job.Status,
		Stage:   job.Stage,
		Message: message,
	})
}

// newJob builds a fresh queued record with a unique identity.
func (o *Orchestrator) newJob(filename string) domain.Job {
	return domain.Job{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Filename:  strings.TrimSpace(filename),
		Status:    domain.JobStatusQueued,
		Stage:     domain.StagePreparing,
	}
}

// transition applies one status/stage change under the epoch guard. A
// stage-only change while the status is unchanged needs no validation; a
// status change must be a legal edge or the call fails loudly.
func (o *Orchestrator) transition(id string, epoch uint64, status domain.JobStatus, stage string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.epochs[id] != epoch {
		return errStaleEpoch
	}
	job, ok := o.ledger.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}

	if job.Status != status {
		if err := jobs.ValidateTransition(job.Status, status); err != nil {
			o.logf("job %s: %v", id, err)
			return err
		}
		job.Status = status
	}
	job.Stage = stage
	o.updateLocked(job)

	o.publishStatus(job)
	o.refreshActivityLocked()
	return nil
}

// setSourcePath records the captured audio file on a recording job.
func (o *Orchestrator) setSourcePath(id string, epoch uint64, path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.epochs[id] != epoch {
		return errStaleEpoch
	}
	job, ok := o.ledger.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}

	job.SourcePath = path
	o.updateLocked(job)
	return nil
}

// complete finalizes a successful run.
func (o *Orchestrator) complete(id string, epoch uint64, result domain.TranscriptionResult) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.epochs[id] != epoch {
		return errStaleEpoch
	}
	job, ok := o.ledger.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	if err := jobs.ValidateTransition(job.Status, domain.JobStatusCompleted); err != nil {
		o.logf("job %s: %v", id, err)
		return err
	}

	job.Status = domain.JobStatusCompleted
	job.Stage = domain.StageCompleted
	job.Progress = 1
	job.Error = ""
	job.Result = &result
	if result.DurationSec > 0 {
		job.DurationSec = result.DurationSec
	}
	o.updateLocked(job)

	o.publishStatus(job)
	o.bus.Publish(jobs.Event{
		JobID:  id,
		Type:   jobs.EventTypeResult,
		Status: job.Status,
		Stage:  job.Stage,
	})
	o.refreshActivityLocked()
	return nil
}

// fail finalizes a run whose candidates are exhausted or whose input is
// unusable. Only the last attempt's error is surfaced on the record.
func (o *Orchestrator) fail(id string, epoch uint64, message string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.epochs[id] != epoch {
		return errStaleEpoch
	}
	job, ok := o.ledger.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	if err := jobs.ValidateTransition(job.Status, domain.JobStatusFailed); err != nil {
		o.logf("job %s: %v", id, err)
		return err
	}

	job.Status = domain.JobStatusFailed
	job.Stage = domain.StageError
	job.Error = message
	job.Result = nil
	o.updateLocked(job)

	o.publishStatus(job)
	o.bus.Publish(jobs.Event{
		JobID:   id,
		Type:    jobs.EventTypeError,
		Status:  job.Status,
		Stage:   job.Stage,
		Message: message,
	})
	o.refreshActivityLocked()
	return nil
}

// markCancelled writes the cancelled terminal state for the given epoch.
func (o *Orchestrator) markCancelled(id string, epoch uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.epochs[id] != epoch {
		return errStaleEpoch
	}
	job, ok := o.ledger.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	if err := jobs.ValidateTransition(job.Status, domain.JobStatusCancelled); err != nil {
		o.logf("job %s: %v", id, err)
		return err
	}

	job.Status = domain.JobStatusCancelled
	job.Stage = domain.StageCancelled
	o.updateLocked(job)

	o.publishStatus(job)
	o.refreshActivityLocked()
	return nil
}

// reportProgress clamps and forwards backend progress. Stale epochs and
// non-active statuses are ignored; progress never decreases.
func (o *Orchestrator) reportProgress(id string, epoch uint64, fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.epochs[id] != epoch {
		return
	}
	job, ok := o.ledger.Get(id)
	if !ok || !jobs.IsActive(job.Status) {
		return
	}
	if fraction <= job.Progress {
		return
	}

	job.Progress = fraction
	o.updateLocked(job)
	o.bus.Publish(jobs.Event{
		JobID:    id,
		Type:     jobs.EventTypeProgress,
		Status:   job.Status,
		Stage:    job.Stage,
		Progress: fraction,
	})
}

// currentSourcePath re-reads the record's source path; a recording job
// gains its path only after capture finishes.
func (o *Orchestrator) currentSourcePath(id, fallback string) string {
	if job, ok := o.ledger.Get(id); ok && job.SourcePath != "" {
		return job.SourcePath
	}
	return fallback
}

// updateLocked writes a record through the ledger, reporting (not
// propagating) an update failure. Persistence is best-effort durability;
// the in-memory state machine is authoritative for the running process.
func (o *Orchestrator) updateLocked(job domain.Job) {
	if err := o.ledger.Update(job); err != nil {
		o.logf("job %s: ledger update: %v", job.ID, err)
	}
}

// publishStatus emits a status event for a record's current state.
func (o *Orchestrator) publishStatus(job domain.Job) {
	o.bus.Publish(jobs.Event{
		JobID:    job.ID,
		Type:     jobs.EventTypeStatus,
		Status:   job.Status,
		Stage:    job.Stage,
		Progress: job.Progress,
		Message:  job.Error,
	})
}

func (o *Orchestrator) refreshActivity() {
	o.activity.SetSource(activitySource, len(o.ledger.Running()) > 0)
}

// refreshActivityLocked matches refreshActivity for call sites already
// holding o.mu. The ledger has its own lock, so the read is safe here.
func (o *Orchestrator) refreshActivityLocked() {
	o.activity.SetSource(activitySource, len(o.ledger.Running()) > 0)
}

// ignoreExpected converts benign run-loop outcomes (stale epoch after a
// cancel or retry, record removed mid-processing) into a clean return.
func ignoreExpected(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errStaleEpoch) || errors.Is(err, jobs.ErrJobNotFound) {
		return nil
	}
	return err
}
