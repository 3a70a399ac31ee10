package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

// ErrMalformed marks a protocol line that could not be decoded.
var ErrMalformed = errors.New("malformed worker message")

// MessageType is the "type" discriminator of a protocol line.
type MessageType string

const (
	TypeHello     MessageType = "hello"
	TypeEvent     MessageType = "event"
	TypeFinished  MessageType = "finished"
	TypeError     MessageType = "error"
	TypeCancelled MessageType = "cancelled"
	TypeWarning   MessageType = "warning"
	// TypeJob is only ever sent to the worker.
	TypeJob MessageType = "job"
)

// Fields holds the attributes shared by every worker message. All of them
// are optional on the wire.
type Fields struct {
	TaskID   string
	Step     string
	Message  string
	Progress *float64
	// Timestamp is zero when the worker did not send "ts".
	Timestamp time.Time
	Payload   json.RawMessage
}

// Common returns the shared fields of a message.
func (f Fields) Common() Fields { return f }

// Message is one decoded worker message. The concrete type is one of Hello,
// Progress, Finished, Failed, Cancelled or Warning.
type Message interface {
	Type() MessageType
	Common() Fields
	sealed()
}

// Hello acknowledges that the worker is alive.
type Hello struct{ Fields }

// Progress is a step update ("event" on the wire).
type Progress struct{ Fields }

// Finished reports success; Payload carries the result.
type Finished struct{ Fields }

// Failed reports a worker-side error ("error" on the wire).
type Failed struct{ Fields }

// Cancelled reports that the worker gave up on its own.
type Cancelled struct{ Fields }

// Warning is a non-fatal notice from the worker.
type Warning struct{ Fields }

func (Hello) Type() MessageType     { return TypeHello }
func (Progress) Type() MessageType  { return TypeEvent }
func (Finished) Type() MessageType  { return TypeFinished }
func (Failed) Type() MessageType    { return TypeError }
func (Cancelled) Type() MessageType { return TypeCancelled }
func (Warning) Type() MessageType   { return TypeWarning }

func (Hello) sealed()     {}
func (Progress) sealed()  {}
func (Finished) sealed()  {}
func (Failed) sealed()    {}
func (Cancelled) sealed() {}
func (Warning) sealed()   {}

// wireMessage is the JSON shape of a worker -> orchestrator line.
type wireMessage struct {
	Type     MessageType     `json:"type"`
	TaskID   string          `json:"taskId,omitempty"`
	Step     string          `json:"step,omitempty"`
	Message  string          `json:"message,omitempty"`
	Progress *float64        `json:"progress,omitempty"`
	TS       *float64        `json:"ts,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// jobMessage is the single line written to the worker's stdin.
type jobMessage struct {
	Type MessageType `json:"type"`
	Task models.Task `json:"task"`
}

// Decode parses one framed line. Errors wrap ErrMalformed and only concern
// this line; the stream itself stays usable.
func Decode(line []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	f := Fields{
		TaskID:   w.TaskID,
		Step:     w.Step,
		Message:  w.Message,
		Progress: w.Progress,
		Payload:  w.Payload,
	}
	if w.TS != nil && !math.IsNaN(*w.TS) {
		f.Timestamp = time.UnixMilli(int64(*w.TS))
	}

	switch w.Type {
	case TypeHello:
		return Hello{f}, nil
	case TypeEvent:
		return Progress{f}, nil
	case TypeFinished:
		return Finished{f}, nil
	case TypeError:
		return Failed{f}, nil
	case TypeCancelled:
		return Cancelled{f}, nil
	case TypeWarning:
		return Warning{f}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, w.Type)
	}
}

// Encode renders a message as one protocol line, newline included.
// Workers written in Go use it to report progress.
func Encode(m Message) ([]byte, error) {
	f := m.Common()
	w := wireMessage{
		Type:     m.Type(),
		TaskID:   f.TaskID,
		Step:     f.Step,
		Message:  f.Message,
		Progress: f.Progress,
		Payload:  f.Payload,
	}
	if !f.Timestamp.IsZero() {
		ms := float64(f.Timestamp.UnixMilli())
		w.TS = &ms
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type(), err)
	}
	return append(data, '\n'), nil
}

// EncodeJob renders the job line sent to a freshly spawned worker.
func EncodeJob(task models.Task) ([]byte, error) {
	data, err := json.Marshal(jobMessage{Type: TypeJob, Task: task})
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeJob parses the job line on the worker side.
func DecodeJob(line []byte) (models.Task, error) {
	var job jobMessage
	if err := json.Unmarshal(line, &job); err != nil {
		return models.Task{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if job.Type != TypeJob {
		return models.Task{}, fmt.Errorf("%w: expected job, got %q", ErrMalformed, job.Type)
	}
	return job.Task, nil
}
