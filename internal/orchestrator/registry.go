package orchestrator

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/agentrun/internal/worker"
)

// ErrDuplicateTask is returned by Start when the task id already has an
// active run.
var ErrDuplicateTask = errors.New("task already has an active run")

// runEntry is the in-memory state of one active run.
type runEntry struct {
	TaskID    string
	RunID     string
	Kind      string
	StartedAt time.Time

	// mu guards everything below. The router and Cancel both take it
	// before touching the run's status, so a run is finalized once.
	mu        sync.Mutex
	handle    *worker.Handle
	cancelled bool
	finalized bool
}

// finalizeLocked marks the entry finished. It returns false if something else
// already finalized it. Caller holds e.mu.
func (e *runEntry) finalizeLocked() bool {
	if e.finalized {
		return false
	}
	e.finalized = true
	return true
}

// ActiveRun is a snapshot of one registry entry.
type ActiveRun struct {
	TaskID    string    `json:"taskId"`
	RunID     string    `json:"runId"`
	Kind      string    `json:"kind"`
	StartedAt time.Time `json:"startedAt"`
	PID       int       `json:"pid,omitempty"`
}

// Registry maps task ids to their active run.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*runEntry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*runEntry)}
}

// Register adds e under its task id, failing with ErrDuplicateTask if the
// task id is already active.
func (r *Registry) Register(e *runEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.TaskID]; ok {
		return ErrDuplicateTask
	}
	r.entries[e.TaskID] = e
	return nil
}

// Lookup returns the active entry for taskID.
func (r *Registry) Lookup(taskID string) (*runEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[taskID]
	return e, ok
}

// Unregister removes e if it is still the entry registered under its task
// id. Removing an entry twice is a no-op.
func (r *Registry) Unregister(e *runEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[e.TaskID]; ok && cur == e {
		delete(r.entries, e.TaskID)
		return true
	}
	return false
}

// Len returns the number of active runs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// snapshot returns the current entries, oldest first.
func (r *Registry) snapshot() []*runEntry {
	r.mu.Lock()
	out := make([]*runEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Active returns a snapshot of every active run, oldest first.
func (r *Registry) Active() []ActiveRun {
	entries := r.snapshot()
	out := make([]ActiveRun, 0, len(entries))
	for _, e := range entries {
		a := ActiveRun{TaskID: e.TaskID, RunID: e.RunID, Kind: e.Kind, StartedAt: e.StartedAt}
		e.mu.Lock()
		if e.handle != nil {
			a.PID = e.handle.PID()
		}
		e.mu.Unlock()
		out = append(out, a)
	}
	return out
}
