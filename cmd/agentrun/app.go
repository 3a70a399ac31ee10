package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShayCichocki/agentrun/internal/config"
	"github.com/ShayCichocki/agentrun/internal/notify"
	"github.com/ShayCichocki/agentrun/internal/orchestrator"
	"github.com/ShayCichocki/agentrun/internal/signals"
	"github.com/ShayCichocki/agentrun/internal/state"
)

// App wires together the store, sinks, metrics and orchestrator for a
// command that runs tasks.
type App struct {
	cfg *config.Config

	db          *state.DB
	logger      *orchestrator.DebugLogger
	broadcaster *notify.Broadcaster
	natsSink    *notify.NATSSink
	metrics     *orchestrator.Metrics
	metricsSrv  *http.Server
	orch        *orchestrator.Orchestrator
	watcher     *signals.Watcher
}

// openStore opens and migrates the run database.
func openStore(cfg *config.Config) (*state.DB, error) {
	db, err := state.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// NewApp builds every component described by cfg. On error, whatever was
// already started is shut down again.
func NewApp(cfg *config.Config) (app *App, err error) {
	a := &App{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.db, err = openStore(cfg); err != nil {
		return nil, err
	}
	if cfg.State.Retention > 0 {
		n, err := a.db.PurgeOldRuns(cfg.State.Retention)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			log.Printf("[agentrun] purged %d runs older than %s", n, cfg.State.Retention)
		}
	}

	if a.logger, err = orchestrator.NewDebugLogger(cfg.Log.DebugFile); err != nil {
		return nil, err
	}

	a.broadcaster = notify.NewBroadcaster(cfg.Orchestrator.SubscriberBuffer)
	sinks := notify.Multi{a.broadcaster}

	if cfg.Notify.NATSURL != "" {
		if a.natsSink, err = notify.DialNATS(cfg.Notify.NATSURL, cfg.Notify.SubjectPrefix); err != nil {
			return nil, err
		}
		sinks = append(sinks, a.natsSink)
	}

	opts := cfg.OrchestratorOptions()
	opts = append(opts, orchestrator.WithSink(sinks), orchestrator.WithLogger(a.logger))

	if cfg.Metrics.Addr != "" {
		if err := a.startMetrics(cfg.Metrics.Addr); err != nil {
			return nil, err
		}
		opts = append(opts, orchestrator.WithMetrics(a.metrics))
	}

	if a.orch, err = orchestrator.New(orchestrator.RequiredConfig{
		Store:  a.db,
		Worker: cfg.WorkerSpec(),
	}, opts...); err != nil {
		return nil, err
	}

	if a.watcher, err = signals.Watch(cfg.SignalsDir(), a.orch); err != nil {
		return nil, err
	}
	return a, nil
}

// startMetrics serves Prometheus metrics on addr.
func (a *App) startMetrics(addr string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := orchestrator.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if err := m.TrackDropped(a.broadcaster.DroppedCount); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	a.metrics = m

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.metricsSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[agentrun] metrics server on %s: %v", addr, err)
		}
	}()
	return nil
}

// Close shuts everything down in reverse order of construction.
func (a *App) Close() {
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.orch != nil {
		a.orch.Close()
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		a.metricsSrv.Shutdown(ctx)
		cancel()
	}
	if a.natsSink != nil {
		if err := a.natsSink.Close(); err != nil {
			log.Printf("[agentrun] close NATS: %v", err)
		}
	}
	if a.broadcaster != nil {
		a.broadcaster.Close()
	}
	if a.logger != nil {
		a.logger.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
