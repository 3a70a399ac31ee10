package models

import (
	"encoding/json"
	"time"
)

// ObservationType mirrors the worker message types delivered to observers.
type ObservationType string

const (
	ObservationHello     ObservationType = "hello"
	ObservationEvent     ObservationType = "event"
	ObservationFinished  ObservationType = "finished"
	ObservationError     ObservationType = "error"
	ObservationCancelled ObservationType = "cancelled"
	ObservationWarning   ObservationType = "warning"
)

// Terminal returns true for observation types that end a run.
func (t ObservationType) Terminal() bool {
	return t == ObservationFinished || t == ObservationError || t == ObservationCancelled
}

// Observation is what live observers receive for every routed message,
// including ones that were never persisted.
type Observation struct {
	Type      ObservationType `json:"type"`
	TaskID    string          `json:"taskId"`
	RunID     string          `json:"runId,omitempty"`
	Step      string          `json:"step,omitempty"`
	Message   string          `json:"message,omitempty"`
	Progress  *float64        `json:"progress,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	// Unroutable is set when the message names no active run of its worker.
	Unroutable bool `json:"unroutable,omitempty"`
	// Late is set when the message arrived after its run was finalized.
	Late bool `json:"late,omitempty"`
}
