package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// maxWatchdogInterval caps how often the watchdog scans the registry.
const maxWatchdogInterval = time.Second

// Watchdog cancels runs that stay active longer than a maximum duration.
type Watchdog struct {
	o        *Orchestrator
	maxAge   time.Duration
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func newWatchdog(o *Orchestrator, maxAge time.Duration) *Watchdog {
	interval := maxAge / 4
	if interval > maxWatchdogInterval {
		interval = maxWatchdogInterval
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Watchdog{
		o:        o,
		maxAge:   maxAge,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *Watchdog) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep cancels every entry older than maxAge and returns how many.
func (w *Watchdog) sweep() int {
	now := w.o.opts.now()
	reason := fmt.Sprintf("%s (%s)", TimeoutReason, w.maxAge)

	n := 0
	for _, e := range w.o.registry.snapshot() {
		if now.Sub(e.StartedAt) < w.maxAge {
			continue
		}
		if w.o.cancelEntry(e, reason) {
			w.o.opts.logger.Log("watchdog cancelled task %s run %s after %s", e.TaskID, e.RunID, now.Sub(e.StartedAt))
			n++
		}
	}
	return n
}

func (w *Watchdog) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done
}
