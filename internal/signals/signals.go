// Package signals lets one process ask another to cancel a run by dropping
// a file into a shared directory.
package signals

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CancelSuffix marks a cancel signal file: <escaped task id>.cancel.
const CancelSuffix = ".cancel"

const (
	// pollInterval is used when no filesystem watcher is available.
	pollInterval = 500 * time.Millisecond
	// rescanInterval re-reads the directory alongside filesystem events, so
	// a signal that arrived before its task started here is still seen.
	rescanInterval = 2 * time.Second
	// signalTTL is how long an unclaimed signal stays valid.
	signalTTL = time.Minute
)

// Canceller is what a signal file asks for. Several processes may watch
// the same directory; each only claims signals for tasks it owns.
type Canceller interface {
	Cancel(taskID string) error
	// Owns reports whether taskID is running in this process.
	Owns(taskID string) bool
}

// DefaultDir returns the per-user signals directory.
func DefaultDir() string {
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "agentrun", "signals")
}

// CancelPath returns the signal file that cancels taskID.
func CancelPath(dir, taskID string) string {
	return filepath.Join(dir, url.PathEscape(taskID)+CancelSuffix)
}

// SendCancel drops a cancel signal for taskID into dir.
func SendCancel(dir, taskID string) (string, error) {
	if taskID == "" {
		return "", fmt.Errorf("task id is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create signals directory: %w", err)
	}

	path := CancelPath(dir, taskID)
	tmp, err := os.CreateTemp(dir, ".pending-*")
	if err != nil {
		return "", fmt.Errorf("create signal file: %w", err)
	}
	if _, err := tmp.WriteString(time.Now().Format(time.RFC3339)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write signal file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write signal file: %w", err)
	}
	// The rename makes the signal appear complete to the watcher.
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish signal file: %w", err)
	}
	return path, nil
}

// taskFromPath returns the task id a signal file names.
func taskFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, CancelSuffix) {
		return "", false
	}
	taskID, err := url.PathUnescape(strings.TrimSuffix(base, CancelSuffix))
	if err != nil || taskID == "" {
		return "", false
	}
	return taskID, true
}

// Watcher consumes cancel signal files in a directory.
type Watcher struct {
	dir string
	c   Canceller

	watcher *fsnotify.Watcher
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// Watch starts consuming cancel signals in dir. Signal files already
// present are checked first. If the platform offers no filesystem
// notifications the directory is polled instead.
func Watch(dir string, c Canceller) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create signals directory: %w", err)
	}

	w := &Watcher{
		dir:     dir,
		c:       c,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
		} else {
			w.watcher = fsw
		}
	}

	w.Sweep()
	if w.watcher != nil {
		go w.watchEvents()
	} else {
		log.Printf("[signals] no filesystem watcher for %s, polling every %s", dir, pollInterval)
		go w.poll()
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

func (w *Watcher) watchEvents() {
	defer close(w.stopped)
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.Sweep()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.consume(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[signals] watch %s: %v", w.dir, err)
		}
	}
}

func (w *Watcher) poll() {
	defer close(w.stopped)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep consumes every signal file in the directory that names a task this
// process owns and returns how many it handled.
func (w *Watcher) Sweep() int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("[signals] read %s: %v", w.dir, err)
		return 0
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if w.consume(filepath.Join(w.dir, entry.Name())) {
			n++
		}
	}
	return n
}

// consume acts on one signal file if its task runs here. Signals for other
// processes are left alone; expired ones are deleted without acting on them.
func (w *Watcher) consume(path string) bool {
	taskID, ok := taskFromPath(path)
	if !ok {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > signalTTL {
		if err := os.Remove(path); err == nil {
			log.Printf("[signals] discarded expired cancel for task %s", taskID)
		}
		return false
	}
	if !w.c.Owns(taskID) {
		return false
	}
	// Only one watcher can remove the file.
	if err := os.Remove(path); err != nil {
		return false
	}
	if err := w.c.Cancel(taskID); err != nil {
		log.Printf("[signals] cancel %s: %v", taskID, err)
	}
	return true
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
		<-w.stopped
	})
	return err
}
