package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"voicescribe/internal/domain"
)

// ErrDuplicateJob is returned when adding a record whose id already exists.
var ErrDuplicateJob = errors.New("job id already exists")

// ErrJobNotFound is returned when updating a record that is absent, e.g.
// because the user removed the job mid-processing. Callers handle it
// gracefully; it is reported, never fatal.
var ErrJobNotFound = errors.New("job not found")

// ledgerSnapshot is the on-disk shape. Unknown fields decode to absent so
// the format tolerates schema drift in both directions.
type ledgerSnapshot struct {
	Jobs []domain.Job `json:"jobs"`
}

// Ledger is the durable, ordered store of job records. Insertion order is
// preserved for display. Every mutation rewrites the whole snapshot through
// a temp file and an atomic rename; a persistence failure is logged and the
// in-memory state stays authoritative for the running process.
type Ledger struct {
	mu    sync.RWMutex
	path  string
	order []string
	byID  map[string]domain.Job
	logf  func(format string, args ...any)
}

// NewLedger loads the ledger from path. A missing or corrupt file degrades
// to an empty ledger; it never prevents startup.
func NewLedger(path string) *Ledger {
	l := &Ledger{
		path: path,
		byID: make(map[string]domain.Job),
		logf: log.Printf,
	}
	l.load()
	return l
}

// NewLedgerForTests builds a ledger with an injectable log sink.
func NewLedgerForTests(path string, logf func(format string, args ...any)) *Ledger {
	l := &Ledger{
		path: path,
		byID: make(map[string]domain.Job),
		logf: logf,
	}
	l.load()
	return l
}

// load reads the persisted snapshot, tolerating absence and corruption.
func (l *Ledger) load() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logf("ledger: read %s: %v (starting empty)", l.path, err)
		}
		return
	}

	var snapshot ledgerSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		l.logf("ledger: decode %s: %v (starting empty)", l.path, err)
		return
	}

	for _, job := range snapshot.Jobs {
		if job.ID == "" {
			continue
		}
		if _, dup := l.byID[job.ID]; dup {
			continue
		}
		l.order = append(l.order, job.ID)
		l.byID[job.ID] = job
	}
}

// Add inserts a new record and persists immediately.
func (l *Ledger) Add(job domain.Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}

	l.order = append(l.order, job.ID)
	l.byID[job.ID] = job.Clone()
	l.persistLocked()
	return nil
}

// Update replaces the record with matching id and persists immediately.
func (l *Ledger) Update(job domain.Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[job.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}

	l.byID[job.ID] = job.Clone()
	l.persistLocked()
	return nil
}

// Remove deletes the record if present; removing an absent id is a no-op.
func (l *Ledger) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[id]; !exists {
		return
	}

	delete(l.byID, id)
	for i, existing := range l.order {
		if existing == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.persistLocked()
}

// Get returns a copy of one record.
func (l *Ledger) Get(id string) (domain.Job, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	job, ok := l.byID[id]
	if !ok {
		return domain.Job{}, false
	}
	return job.Clone(), true
}

// List returns all records in insertion order. The result is a snapshot:
// mutations after the call are not reflected in it.
func (l *Ledger) List() []domain.Job {
	return l.filtered(func(domain.Job) bool { return true })
}

// Queued returns jobs waiting for execution.
func (l *Ledger) Queued() []domain.Job {
	return l.filtered(func(j domain.Job) bool { return j.Status == domain.JobStatusQueued })
}

// Running returns jobs in an active status.
func (l *Ledger) Running() []domain.Job {
	return l.filtered(func(j domain.Job) bool { return IsActive(j.Status) })
}

// Completed returns successfully finished jobs.
func (l *Ledger) Completed() []domain.Job {
	return l.filtered(func(j domain.Job) bool { return j.Status == domain.JobStatusCompleted })
}

// Failed returns jobs that exhausted every backend candidate.
func (l *Ledger) Failed() []domain.Job {
	return l.filtered(func(j domain.Job) bool { return j.Status == domain.JobStatusFailed })
}

func (l *Ledger) filtered(keep func(domain.Job) bool) []domain.Job {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Job, 0, len(l.order))
	for _, id := range l.order {
		if job := l.byID[id]; keep(job) {
			out = append(out, job.Clone())
		}
	}
	return out
}

// persistLocked rewrites the snapshot atomically. Called with l.mu held.
func (l *Ledger) persistLocked() {
	snapshot := ledgerSnapshot{Jobs: make([]domain.Job, 0, len(l.order))}
	for _, id := range l.order {
		snapshot.Jobs = append(snapshot.Jobs, l.byID[id])
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		l.logf("ledger: encode snapshot: %v", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.logf("ledger: prepare directory: %v", err)
		return
	}

	tmpPath := l.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		l.logf("ledger: write snapshot: %v", err)
		return
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		l.logf("ledger: replace snapshot: %v", err)
		_ = os.Remove(tmpPath)
	}
}
