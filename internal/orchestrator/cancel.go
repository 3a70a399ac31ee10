package orchestrator

import (
	"log"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

// Cancel stops the active run of taskID: the worker is asked to terminate,
// the run is recorded as cancelled and removed from the registry, and a
// cancelled observation is emitted. It does not wait for the worker to
// exit. Cancelling a task with no active run is a no-op.
func (o *Orchestrator) Cancel(taskID string) error {
	e, ok := o.registry.Lookup(taskID)
	if !ok {
		o.opts.logger.Log("cancel %s: no active run", taskID)
		return nil
	}
	o.cancelEntry(e, CancelReason)
	return nil
}

// Owns reports whether taskID has an active run in this orchestrator.
func (o *Orchestrator) Owns(taskID string) bool {
	_, ok := o.registry.Lookup(taskID)
	return ok
}

// cancelEntry finalizes e as cancelled with reason. It returns false if
// the run was already final.
func (o *Orchestrator) cancelEntry(e *runEntry, reason string) bool {
	e.mu.Lock()
	if !e.finalizeLocked() {
		e.mu.Unlock()
		return false
	}
	e.cancelled = true
	h := e.handle
	e.mu.Unlock()

	if h != nil {
		if err := h.Terminate(); err != nil {
			log.Printf("[orchestrator] task %s run %s: %v", e.TaskID, e.RunID, err)
		}
	}
	o.registry.Unregister(e)
	o.finishRun(e, models.RunCancelled, nil, reason)

	obs := o.observation(e, models.ObservationCancelled, reason)
	o.enqueue(inbound{entry: e, notice: &obs})
	return true
}
