// Package orchestrator runs tasks in worker processes, tracks the lifecycle
// of each run and fans worker progress out to observers.
//
// Every task gets its own worker process. The worker receives a single job
// line on stdin and answers with NDJSON messages on stdout; stderr is
// treated as free-form diagnostics. All worker output lands in one inbox
// that a single router goroutine drains, so the status of a run only ever
// changes in one place (or in Cancel, under the same per-run lock).
//
// Example usage:
//
//	orch, err := orchestrator.New(orchestrator.RequiredConfig{
//		Store:  db,
//		Worker: worker.Spec{Command: "agentrun-worker"},
//	}, orchestrator.WithSink(broadcaster))
//	runID, err := orch.Start(models.Task{ID: "t1", Kind: "transcribe"})
package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/agentrun/internal/worker"
	"github.com/ShayCichocki/agentrun/pkg/models"
)

var (
	// ErrInvalidTask is returned by Start for a task missing its id or kind,
	// or carrying a payload that is not valid JSON.
	ErrInvalidTask = errors.New("invalid task")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("orchestrator is closed")
)

// Reasons recorded on runs the orchestrator finalizes itself.
const (
	CancelReason       = "cancelled by user"
	ShutdownReason     = "orchestrator shutting down"
	TimeoutReason      = "run exceeded max duration"
	ExitedReason       = "worker exited unexpectedly"
	WorkerFailedReason = "worker reported an error"
	WorkerCancelReason = "cancelled by worker"
)

// Environment variables added to every worker's environment.
const (
	EnvRunID  = "AGENTRUN_RUN_ID"
	EnvTaskID = "AGENTRUN_TASK_ID"
)

// Orchestrator launches one worker per task and owns the runs they produce.
type Orchestrator struct {
	store    Store
	spec     worker.Spec
	opts     orchestratorOptions
	registry *Registry

	inbox      chan inbound
	quit       chan struct{}
	routerDone chan struct{}
	watchdog   *Watchdog

	// procs counts worker processes not yet reaped.
	procs sync.WaitGroup
	// live holds handles whose process is still running, finalized or not.
	liveMu sync.Mutex
	live   map[*worker.Handle]string

	// mu is held for reading by Start and for writing by Close, so no run
	// can slip in while Close is tearing things down.
	mu     sync.RWMutex
	closed bool
}

// New creates an Orchestrator and starts its router.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if req.Store == nil {
		return nil, fmt.Errorf("orchestrator: store is required")
	}
	if strings.TrimSpace(req.Worker.Command) == "" {
		return nil, fmt.Errorf("orchestrator: worker command is required")
	}

	o := &Orchestrator{
		store:      req.Store,
		spec:       req.Worker,
		opts:       defaultOptions(),
		registry:   NewRegistry(),
		quit:       make(chan struct{}),
		routerDone: make(chan struct{}),
		live:       make(map[*worker.Handle]string),
	}
	for _, opt := range opts {
		opt(&o.opts)
	}
	o.inbox = make(chan inbound, o.opts.inboxSize)

	go o.route()
	if o.opts.maxRunDuration > 0 {
		o.watchdog = newWatchdog(o, o.opts.maxRunDuration)
		go o.watchdog.run()
	}
	return o, nil
}

// Start registers a run for task, records it, spawns the worker and hands
// it the job. It returns the new run id without waiting for the worker.
func (o *Orchestrator) Start(task models.Task) (string, error) {
	if err := validateTask(task); err != nil {
		return "", err
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return "", ErrClosed
	}

	e := &runEntry{
		TaskID:    task.ID,
		RunID:     uuid.NewString(),
		Kind:      task.Kind,
		StartedAt: o.opts.now(),
	}

	notice, err := o.launch(e, task)
	if notice != nil {
		o.enqueue(inbound{entry: e, notice: notice})
	}
	if err != nil {
		return "", err
	}
	return e.RunID, nil
}

// launch does the part of Start that runs under the entry lock. A Cancel
// for the same task waits here until the handle is attached.
func (o *Orchestrator) launch(e *runEntry, task models.Task) (*models.Observation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := o.registry.Register(e); err != nil {
		return nil, fmt.Errorf("start task %s: %w", task.ID, err)
	}

	run := &models.Run{
		ID:         e.RunID,
		TaskID:     task.ID,
		Kind:       task.Kind,
		SubjectRef: task.SubjectRef,
		Status:     models.RunRunning,
		StartedAt:  e.StartedAt,
		Input:      task.Snapshot(),
	}
	if err := o.store.CreateRun(run); err != nil {
		e.finalized = true
		o.registry.Unregister(e)
		return nil, fmt.Errorf("start task %s: %w", task.ID, err)
	}
	o.opts.metrics.runStarted(task.Kind)

	h, err := worker.Start(o.workerSpec(e), func(out worker.Output) {
		o.enqueue(inbound{entry: e, out: out})
	})
	if err != nil {
		e.finalized = true
		o.registry.Unregister(e)
		reason := fmt.Sprintf("spawn worker: %v", err)
		o.finishRun(e, models.RunError, nil, reason)
		log.Printf("[orchestrator] task %s run %s: %s", e.TaskID, e.RunID, reason)
		obs := o.observation(e, models.ObservationError, reason)
		return &obs, fmt.Errorf("start task %s: %w", task.ID, err)
	}
	e.handle = h
	o.track(h, e.TaskID)

	job, err := worker.EncodeJob(task)
	if err != nil {
		log.Printf("[orchestrator] task %s: encode job: %v", e.TaskID, err)
	} else if err := h.Send(job); err != nil {
		log.Printf("[orchestrator] task %s: send job: %v", e.TaskID, err)
	}
	if err := h.CloseInput(); err != nil {
		log.Printf("[orchestrator] task %s: %v", e.TaskID, err)
	}

	o.opts.logger.Log("started task %s run %s (kind %s, pid %d)", e.TaskID, e.RunID, e.Kind, h.PID())
	return nil, nil
}

func validateTask(task models.Task) error {
	if strings.TrimSpace(task.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTask)
	}
	if strings.TrimSpace(task.Kind) == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidTask)
	}
	if len(task.Payload) > 0 && !json.Valid(task.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrInvalidTask)
	}
	return nil
}

// workerSpec returns the launch parameters for e's worker.
func (o *Orchestrator) workerSpec(e *runEntry) worker.Spec {
	spec := o.spec
	base := spec.Env
	if base == nil {
		base = os.Environ()
	}
	env := make([]string, 0, len(base)+2)
	env = append(env, base...)
	env = append(env, EnvRunID+"="+e.RunID, EnvTaskID+"="+e.TaskID)
	spec.Env = env
	spec.Args = append([]string(nil), o.spec.Args...)
	return spec
}

// track counts h as a live process until it is reaped.
func (o *Orchestrator) track(h *worker.Handle, taskID string) {
	o.procs.Add(1)
	o.liveMu.Lock()
	o.live[h] = taskID
	o.liveMu.Unlock()

	go func() {
		<-h.Done()
		o.liveMu.Lock()
		delete(o.live, h)
		o.liveMu.Unlock()
		o.procs.Done()
	}()
}

// List returns the most recent runs first, at most limit of them.
func (o *Orchestrator) List(limit int) ([]models.Run, error) {
	runs, err := o.store.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Get returns the run with the given id, or nil if there is none.
func (o *Orchestrator) Get(runID string) (*models.Run, error) {
	r, err := o.store.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// Events returns the persisted events of a run in arrival order.
func (o *Orchestrator) Events(runID string) ([]models.Event, error) {
	events, err := o.store.ListEvents(runID)
	if err != nil {
		return nil, fmt.Errorf("list events for run %s: %w", runID, err)
	}
	return events, nil
}

// Active returns the runs currently registered, oldest first.
func (o *Orchestrator) Active() []ActiveRun {
	return o.registry.Active()
}

// Close cancels every active run, asks any worker still running to stop,
// waits up to the close grace for them to exit and stops the router.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	if o.watchdog != nil {
		o.watchdog.stop()
	}

	for _, e := range o.registry.snapshot() {
		o.cancelEntry(e, ShutdownReason)
	}

	o.liveMu.Lock()
	for h, taskID := range o.live {
		if err := h.Terminate(); err != nil {
			log.Printf("[orchestrator] task %s: %v", taskID, err)
		}
	}
	o.liveMu.Unlock()

	reaped := make(chan struct{})
	go func() {
		o.procs.Wait()
		close(reaped)
	}()

	timer := time.NewTimer(o.opts.closeGrace)
	defer timer.Stop()
	select {
	case <-reaped:
	case <-timer.C:
		log.Printf("[orchestrator] WARNING: workers still running after %s, shutting down anyway", o.opts.closeGrace)
	}

	close(o.quit)
	<-o.routerDone
	o.opts.logger.Log("orchestrator closed")
	return nil
}

// observation builds an orchestrator-originated observation for e.
func (o *Orchestrator) observation(e *runEntry, typ models.ObservationType, message string) models.Observation {
	return models.Observation{
		Type:      typ,
		TaskID:    e.TaskID,
		RunID:     e.RunID,
		Message:   message,
		Timestamp: o.opts.now(),
	}
}

// finishRun records e's terminal status. Persistence failures are logged;
// the in-memory run is already final either way.
func (o *Orchestrator) finishRun(e *runEntry, status models.RunStatus, result json.RawMessage, errMsg string) {
	if err := o.store.FinishRun(e.RunID, status, o.opts.now(), result, errMsg); err != nil {
		log.Printf("[orchestrator] task %s run %s: record %s: %v", e.TaskID, e.RunID, status, err)
		o.opts.metrics.warning(reasonPersist)
	}
	o.opts.metrics.runFinished(status)
	o.opts.logger.Log("finalized task %s run %s as %s %s", e.TaskID, e.RunID, status, errMsg)
}

// enqueue hands in to the router. After Close it is dropped.
func (o *Orchestrator) enqueue(in inbound) {
	select {
	case o.inbox <- in:
	case <-o.quit:
		o.opts.logger.Log("dropped %s from task %s after close", in.describe(), in.entry.TaskID)
	}
}
