package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

const metricsNamespace = "agentrun"

// Warning reasons used as the "reason" label.
const (
	reasonMalformed  = "malformed"
	reasonUnroutable = "unroutable"
	reasonStderr     = "stderr"
	reasonWorker     = "worker"
	reasonPersist    = "persist"
)

// Metrics holds the orchestrator's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	runsStarted  *prometheus.CounterVec
	runsFinished *prometheus.CounterVec
	eventsStored prometheus.Counter
	warnings     *prometheus.CounterVec
	activeRuns   prometheus.Gauge
	lateMessages prometheus.Counter
	dropped      prometheus.Collector
	registerer   prometheus.Registerer
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_started_total",
			Help:      "Runs started, by task kind.",
		}, []string{"kind"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_finished_total",
			Help:      "Runs finalized, by terminal status.",
		}, []string{"status"}),
		eventsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_persisted_total",
			Help:      "Worker events appended to the run log.",
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "warnings_total",
			Help:      "Warning observations, by reason.",
		}, []string{"reason"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_runs",
			Help:      "Runs currently registered.",
		}),
		lateMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "late_messages_total",
			Help:      "Worker messages that arrived after their run was finalized.",
		}),
		registerer: reg,
	}

	for _, c := range []prometheus.Collector{
		m.runsStarted, m.runsFinished, m.eventsStored, m.warnings, m.activeRuns, m.lateMessages,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// TrackDropped exposes a running total of observations a sink dropped,
// such as notify.Broadcaster.DroppedCount.
func (m *Metrics) TrackDropped(total func() uint64) error {
	if m == nil {
		return nil
	}
	c := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "observations_dropped_total",
		Help:      "Observations dropped because a subscriber was not draining.",
	}, func() float64 { return float64(total()) })
	if err := m.registerer.Register(c); err != nil {
		return err
	}
	m.dropped = c
	return nil
}

func (m *Metrics) runStarted(kind string) {
	if m == nil {
		return
	}
	m.runsStarted.WithLabelValues(kind).Inc()
	m.activeRuns.Inc()
}

func (m *Metrics) runFinished(status models.RunStatus) {
	if m == nil {
		return
	}
	m.runsFinished.WithLabelValues(string(status)).Inc()
	m.activeRuns.Dec()
}

func (m *Metrics) eventPersisted() {
	if m == nil {
		return
	}
	m.eventsStored.Inc()
}

func (m *Metrics) warning(reason string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(reason).Inc()
}

func (m *Metrics) lateMessage() {
	if m == nil {
		return
	}
	m.lateMessages.Inc()
}
