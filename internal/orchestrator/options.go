package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/ShayCichocki/agentrun/internal/notify"
	"github.com/ShayCichocki/agentrun/internal/worker"
	"github.com/ShayCichocki/agentrun/pkg/models"
)

// DefaultInboxSize is the capacity of the router's inbox.
const DefaultInboxSize = 1024

// DefaultCloseGrace bounds how long Close waits for workers to exit.
const DefaultCloseGrace = 5 * time.Second

// Store is the persistence gateway for runs and their events.
type Store interface {
	CreateRun(r *models.Run) error
	FinishRun(runID string, status models.RunStatus, finishedAt time.Time, result json.RawMessage, errMsg string) error
	GetRun(id string) (*models.Run, error)
	ListRuns(limit int) ([]models.Run, error)
	AppendEvent(e *models.Event) error
	ListEvents(runID string) ([]models.Event, error)
}

// RequiredConfig contains the configuration every Orchestrator needs.
type RequiredConfig struct {
	// Store records runs and events.
	Store Store
	// Worker describes the process launched for each task.
	Worker worker.Spec
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	sink           notify.Sink
	logger         *DebugLogger
	metrics        *Metrics
	inboxSize      int
	maxRunDuration time.Duration
	closeGrace     time.Duration
	now            func() time.Time
}

func defaultOptions() orchestratorOptions {
	return orchestratorOptions{
		sink:       notify.Discard,
		logger:     NopLogger(),
		inboxSize:  DefaultInboxSize,
		closeGrace: DefaultCloseGrace,
		now:        time.Now,
	}
}

// WithSink sets where observations are delivered.
func WithSink(s notify.Sink) Option {
	return func(o *orchestratorOptions) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *orchestratorOptions) { o.metrics = m }
}

// WithInboxSize sets the capacity of the router's inbox.
func WithInboxSize(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.inboxSize = n
		}
	}
}

// WithMaxRunDuration cancels runs still active after d. Zero disables it.
func WithMaxRunDuration(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.maxRunDuration = d }
}

// WithCloseGrace sets how long Close waits for workers to exit.
func WithCloseGrace(d time.Duration) Option {
	return func(o *orchestratorOptions) {
		if d > 0 {
			o.closeGrace = d
		}
	}
}

// withClock overrides the time source in tests.
func withClock(now func() time.Time) Option {
	return func(o *orchestratorOptions) { o.now = now }
}
