package models

import (
	"encoding/json"
	"time"
)

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	// RunRunning indicates the worker is still executing.
	RunRunning RunStatus = "running"
	// RunOK indicates the worker reported successful completion.
	RunOK RunStatus = "ok"
	// RunError indicates the worker failed or exited without finishing.
	RunError RunStatus = "error"
	// RunCancelled indicates the run was cancelled.
	RunCancelled RunStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunOK, RunError, RunCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == RunOK || s == RunError || s == RunCancelled
}

// Run is the durable record of one execution attempt of a Task.
type Run struct {
	// ID is minted by the orchestrator and is distinct from TaskID.
	ID string `json:"id"`
	// TaskID is the identifier of the task this run executes.
	TaskID string `json:"taskId"`
	// Kind is copied from the task.
	Kind string `json:"kind"`
	// SubjectRef is copied from the task.
	SubjectRef string `json:"subjectRef,omitempty"`
	// Status is the current lifecycle state.
	Status RunStatus `json:"status"`
	// StartedAt is when the run was created.
	StartedAt time.Time `json:"startedAt"`
	// FinishedAt is set if and only if Status is terminal.
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	// Input is a snapshot of the submitted task.
	Input json.RawMessage `json:"input,omitempty"`
	// Result is the payload of the worker's finished message.
	Result json.RawMessage `json:"result,omitempty"`
	// Error is set when Status is error or cancelled.
	Error string `json:"error,omitempty"`
}

// Duration returns how long the run took, or has taken so far.
func (r Run) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// Event is one persisted progress record of a run.
type Event struct {
	ID        string    `json:"id"`
	RunID     string    `json:"runId"`
	Timestamp time.Time `json:"ts"`
	Step      string    `json:"step"`
	Message   string    `json:"message,omitempty"`
	// Progress is in [0,1] when reported. It is not checked for monotonicity.
	Progress *float64 `json:"progress,omitempty"`
}
