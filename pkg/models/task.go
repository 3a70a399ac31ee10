package models

import "encoding/json"

// Task describes a unit of work handed to a worker process.
// The orchestrator passes it through to the worker without interpreting
// Kind or Payload.
type Task struct {
	// ID is the caller-chosen task identifier. At most one run per ID may be
	// active at a time.
	ID string `json:"id" yaml:"id"`
	// Kind selects the worker behavior (e.g. "transcribe").
	Kind string `json:"kind" yaml:"kind"`
	// Payload is free-form input for the worker.
	Payload json.RawMessage `json:"payload,omitempty" yaml:"-"`
	// SubjectRef optionally references the subject of the work, such as a patient.
	SubjectRef string `json:"subjectRef,omitempty" yaml:"subject_ref"`
}

// Snapshot returns the task encoded as JSON, as stored in a run's input snapshot.
func (t Task) Snapshot() json.RawMessage {
	data, err := json.Marshal(t)
	if err != nil {
		// Payload is the only field that can fail, and only when it is not valid JSON.
		t.Payload = nil
		data, _ = json.Marshal(t)
	}
	return data
}
