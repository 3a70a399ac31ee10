package orchestrator

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/agentrun/internal/worker"
	"github.com/ShayCichocki/agentrun/pkg/models"
)

// warningStep is the step recorded for worker warnings that carry none.
const warningStep = "warning"

// Steps used on orchestrator-generated warning observations.
const (
	malformedStep = "malformed"
	stderrStep    = "stderr"
)

// inbound is one item on the router's inbox: either raw worker output or
// an observation produced elsewhere that must go out in order.
type inbound struct {
	entry  *runEntry
	out    worker.Output
	notice *models.Observation
}

func (in inbound) describe() string {
	if in.notice != nil {
		return string(in.notice.Type) + " notice"
	}
	return in.out.Kind.String()
}

// route is the router goroutine. It is the only caller of the sink.
func (o *Orchestrator) route() {
	defer close(o.routerDone)
	for {
		select {
		case in := <-o.inbox:
			o.dispatch(in)
		case <-o.quit:
			for {
				select {
				case in := <-o.inbox:
					o.dispatch(in)
				default:
					return
				}
			}
		}
	}
}

func (o *Orchestrator) dispatch(in inbound) {
	if in.notice != nil {
		o.notify(*in.notice)
		return
	}
	switch in.out.Kind {
	case worker.OutputLine:
		o.handleLine(in.entry, in.out.Line)
	case worker.OutputDiagnostic:
		o.handleDiagnostic(in.entry, in.out.Text)
	case worker.OutputExit:
		o.handleExit(in.entry, in.out)
	}
}

func (o *Orchestrator) notify(obs models.Observation) {
	o.opts.sink.Notify(obs)
}

// handleLine decodes one stdout line and applies it to the run.
func (o *Orchestrator) handleLine(e *runEntry, line []byte) {
	msg, err := worker.Decode(line)
	if err != nil {
		o.opts.metrics.warning(reasonMalformed)
		o.opts.logger.Log("task %s: %v", e.TaskID, err)
		obs := o.observation(e, models.ObservationWarning, err.Error())
		obs.Step = malformedStep
		obs.Late = o.isFinalized(e)
		o.notify(obs)
		return
	}

	f := msg.Common()
	if f.TaskID != "" && f.TaskID != e.TaskID {
		o.opts.metrics.warning(reasonUnroutable)
		log.Printf("[router] %s message from the worker of task %s names task %q, not routed", msg.Type(), e.TaskID, f.TaskID)
		obs := o.fromMessage(msg, f.TaskID, "")
		obs.Type = models.ObservationWarning
		obs.Message = unroutableMessage(msg)
		obs.Unroutable = true
		o.notify(obs)
		return
	}

	obs := o.fromMessage(msg, e.TaskID, e.RunID)

	e.mu.Lock()
	if e.finalized {
		e.mu.Unlock()
		o.opts.metrics.lateMessage()
		o.opts.logger.Log("task %s run %s: late %s message", e.TaskID, e.RunID, msg.Type())
		obs.Late = true
		o.notify(obs)
		return
	}

	switch m := msg.(type) {
	case worker.Hello:
		e.mu.Unlock()
	case worker.Progress:
		o.appendEvent(e, m.Fields, m.Step)
		e.mu.Unlock()
	case worker.Warning:
		step := m.Step
		if step == "" {
			step = warningStep
		}
		o.appendEvent(e, m.Fields, step)
		e.mu.Unlock()
		o.opts.metrics.warning(reasonWorker)
	case worker.Finished:
		e.finalized = true
		e.mu.Unlock()
		o.registry.Unregister(e)
		o.finishRun(e, models.RunOK, m.Payload, "")
	case worker.Failed:
		e.finalized = true
		e.mu.Unlock()
		reason := orDefault(m.Message, WorkerFailedReason)
		obs.Message = reason
		o.registry.Unregister(e)
		o.finishRun(e, models.RunError, nil, reason)
	case worker.Cancelled:
		e.finalized = true
		e.cancelled = true
		e.mu.Unlock()
		reason := orDefault(m.Message, WorkerCancelReason)
		obs.Message = reason
		o.registry.Unregister(e)
		o.finishRun(e, models.RunCancelled, nil, reason)
	default:
		e.mu.Unlock()
		panic(fmt.Sprintf("orchestrator: unhandled worker message %T", msg))
	}

	o.notify(obs)
}

// handleDiagnostic turns a stderr line into a warning observation.
func (o *Orchestrator) handleDiagnostic(e *runEntry, text string) {
	o.opts.metrics.warning(reasonStderr)
	o.opts.logger.Log("task %s stderr: %s", e.TaskID, text)
	obs := o.observation(e, models.ObservationWarning, text)
	obs.Step = stderrStep
	obs.Late = o.isFinalized(e)
	o.notify(obs)
}

// handleExit finalizes a run whose worker exited without a terminal message.
func (o *Orchestrator) handleExit(e *runEntry, out worker.Output) {
	e.mu.Lock()
	if e.finalized {
		e.mu.Unlock()
		o.opts.logger.Log("task %s run %s: worker exited (%s)", e.TaskID, e.RunID, out.ExitDescription())
		return
	}
	e.finalized = true
	e.mu.Unlock()

	reason := fmt.Sprintf("%s: %s", ExitedReason, out.ExitDescription())
	log.Printf("[router] task %s run %s: %s", e.TaskID, e.RunID, reason)
	o.registry.Unregister(e)
	o.finishRun(e, models.RunError, nil, reason)
	o.notify(o.observation(e, models.ObservationError, reason))
}

// appendEvent persists one event for e. Caller holds e.mu.
func (o *Orchestrator) appendEvent(e *runEntry, f worker.Fields, step string) {
	ev := &models.Event{
		ID:        uuid.NewString(),
		RunID:     e.RunID,
		Timestamp: o.timestamp(f),
		Step:      step,
		Message:   f.Message,
		Progress:  f.Progress,
	}
	if err := o.store.AppendEvent(ev); err != nil {
		log.Printf("[router] task %s run %s: %v", e.TaskID, e.RunID, err)
		o.opts.metrics.warning(reasonPersist)
		return
	}
	o.opts.metrics.eventPersisted()
}

// fromMessage converts a decoded worker message into an observation.
func (o *Orchestrator) fromMessage(msg worker.Message, taskID, runID string) models.Observation {
	f := msg.Common()
	return models.Observation{
		Type:      observationType(msg),
		TaskID:    taskID,
		RunID:     runID,
		Step:      f.Step,
		Message:   f.Message,
		Progress:  f.Progress,
		Timestamp: o.timestamp(f),
		Payload:   f.Payload,
	}
}

func (o *Orchestrator) timestamp(f worker.Fields) time.Time {
	if f.Timestamp.IsZero() {
		return o.opts.now()
	}
	return f.Timestamp
}

func (o *Orchestrator) isFinalized(e *runEntry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalized
}

func observationType(msg worker.Message) models.ObservationType {
	switch msg.(type) {
	case worker.Hello:
		return models.ObservationHello
	case worker.Progress:
		return models.ObservationEvent
	case worker.Finished:
		return models.ObservationFinished
	case worker.Failed:
		return models.ObservationError
	case worker.Cancelled:
		return models.ObservationCancelled
	case worker.Warning:
		return models.ObservationWarning
	}
	return models.ObservationType(msg.Type())
}

// unroutableMessage describes a message that named someone else's task.
// It is delivered as a warning so it never reads as that task's progress.
func unroutableMessage(msg worker.Message) string {
	text := fmt.Sprintf("unroutable %s message", msg.Type())
	if m := msg.Common().Message; m != "" {
		text += ": " + m
	}
	return text
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
