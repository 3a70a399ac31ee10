// Package notify delivers run observations to live observers.
package notify

import "github.com/ShayCichocki/agentrun/pkg/models"

// Sink receives every observation the orchestrator produces, in order.
// Implementations must not block for long: Notify is called from the
// router goroutine.
type Sink interface {
	Notify(obs models.Observation)
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(obs models.Observation)

// Notify calls f(obs).
func (f SinkFunc) Notify(obs models.Observation) {
	f(obs)
}

// Multi tees observations to several sinks in order. Nil entries are skipped.
type Multi []Sink

// Notify forwards obs to every sink.
func (m Multi) Notify(obs models.Observation) {
	for _, s := range m {
		if s != nil {
			s.Notify(obs)
		}
	}
}

// Discard drops every observation.
var Discard Sink = SinkFunc(func(models.Observation) {})
