package worker

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrInputClosed is returned when writing to a worker whose stdin was closed.
var ErrInputClosed = errors.New("worker input closed")

// readChunkSize is the size of a single read from a worker pipe.
const readChunkSize = 32 * 1024

// exitDrainTimeout bounds how long output is read after the worker exits.
const exitDrainTimeout = 500 * time.Millisecond

// Spec holds the already-resolved launch parameters of a worker.
type Spec struct {
	Command string
	Args    []string
	Dir     string
	// Env is the complete environment. Nil inherits the orchestrator's.
	Env []string
	// KillAfter escalates Terminate to a hard kill when the worker is still
	// alive after this long. Zero never escalates.
	KillAfter time.Duration
}

// OutputKind says what an Output carries.
type OutputKind int

const (
	// OutputLine is one framed stdout line.
	OutputLine OutputKind = iota
	// OutputDiagnostic is one line of free-form stderr text.
	OutputDiagnostic
	// OutputExit is emitted exactly once, after both streams are drained
	// or, if something else holds them open, closed.
	OutputExit
)

func (k OutputKind) String() string {
	switch k {
	case OutputLine:
		return "line"
	case OutputDiagnostic:
		return "diagnostic"
	case OutputExit:
		return "exit"
	default:
		return fmt.Sprintf("OutputKind(%d)", int(k))
	}
}

// Output is one item produced by a running worker.
type Output struct {
	Kind OutputKind
	// Line is set for OutputLine.
	Line []byte
	// Text is set for OutputDiagnostic.
	Text string
	// ExitCode is set for OutputExit; -1 if the process died from a signal.
	ExitCode int
	// Err is the wait error for OutputExit, nil on a clean exit.
	Err error
}

// ExitDescription summarizes an OutputExit for humans.
func (o Output) ExitDescription() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return fmt.Sprintf("exit code %d", o.ExitCode)
}

// Handle owns one worker process and its pipes.
type Handle struct {
	spec   Spec
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File
	emit   func(Output)

	// inMu serializes stdin so a blocked write never holds up Terminate.
	inMu        sync.Mutex
	inputClosed bool

	mu         sync.Mutex
	terminated bool
	exitErr    error
	done       chan struct{}
}

// Start spawns the worker described by spec. Every stdout line, stderr line
// and finally the exit are passed to emit, from the handle's own goroutines.
// Lines of one stream arrive in the order the worker wrote them.
func Start(spec Spec, emit func(Output)) (*Handle, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return nil, fmt.Errorf("worker command is required")
	}
	if emit == nil {
		emit = func(Output) {}
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	configureProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	// stdout and stderr are plain pipes rather than StdoutPipe so the exit
	// can be observed while a grandchild still holds the write ends.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		closeAll(stdoutR, stdoutW)
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	// The child has its own copies of the write ends now.
	closeAll(stdoutW, stderrW)
	if err != nil {
		stdin.Close()
		closeAll(stdoutR, stderrR)
		return nil, fmt.Errorf("start worker %s: %w", spec.Command, err)
	}

	h := &Handle{
		spec:   spec,
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdoutR,
		stderr: stderrR,
		emit:   emit,
		done:   make(chan struct{}),
	}
	go h.run()
	return h, nil
}

// run drains both streams, reaps the process and reports the exit. The
// exit is reported even when a process the worker left behind keeps its
// stdout or stderr open: after the worker is reaped the streams get
// exitDrainTimeout to reach EOF before they are closed.
func (h *Handle) run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.pump(h.stdout, "stdout", func(line []byte) {
			h.emit(Output{Kind: OutputLine, Line: line})
		})
	}()
	go func() {
		defer wg.Done()
		h.pump(h.stderr, "stderr", func(line []byte) {
			h.emit(Output{Kind: OutputDiagnostic, Text: string(line)})
		})
	}()
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	err := h.cmd.Wait()
	_ = h.CloseInput()

	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()
	close(h.done)

	timer := time.NewTimer(exitDrainTimeout)
	select {
	case <-drained:
		timer.Stop()
	case <-timer.C:
		log.Printf("[worker] pid %d exited but its output is still held open, closing it", h.PID())
		closeAll(h.stdout, h.stderr)
		<-drained
	}
	closeAll(h.stdout, h.stderr)

	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}
	h.emit(Output{Kind: OutputExit, ExitCode: code, Err: err})
}

func closeAll(cs ...io.Closer) {
	for _, c := range cs {
		c.Close()
	}
}

// pump frames r into lines until EOF, flushing a final unterminated line.
func (h *Handle) pump(r io.Reader, name string, fn func([]byte)) {
	framer := NewLineFramer()
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range framer.Push(buf[:n]) {
				fn(line)
			}
		}
		if err != nil {
			if line, ok := framer.Flush(); ok {
				fn(line)
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Printf("[worker] pid %d: read %s: %v", h.PID(), name, err)
			}
			return
		}
	}
}

// Send writes one line to the worker's stdin.
func (h *Handle) Send(line []byte) error {
	h.inMu.Lock()
	defer h.inMu.Unlock()

	if h.inputClosed {
		return ErrInputClosed
	}
	if _, err := h.stdin.Write(line); err != nil {
		return fmt.Errorf("write worker input: %w", err)
	}
	return nil
}

// CloseInput closes the worker's stdin. It is safe to call more than once.
func (h *Handle) CloseInput() error {
	h.inMu.Lock()
	defer h.inMu.Unlock()

	if h.inputClosed {
		return nil
	}
	h.inputClosed = true
	if err := h.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close worker input: %w", err)
	}
	return nil
}

// Terminate asks the worker to shut down (SIGTERM to its process group) and
// returns without waiting for it to exit. Repeated calls are no-ops.
func (h *Handle) Terminate() error {
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return nil
	}
	h.terminated = true
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
	}

	if err := terminateProcess(h.cmd); err != nil {
		return fmt.Errorf("terminate worker pid %d: %w", h.PID(), err)
	}
	if h.spec.KillAfter > 0 {
		go h.killAfter(h.spec.KillAfter)
	}
	return nil
}

// killAfter hard-kills the worker if it outlives the grace period.
func (h *Handle) killAfter(grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.done:
	case <-timer.C:
		log.Printf("[worker] pid %d ignored SIGTERM for %s, killing", h.PID(), grace)
		if err := killProcess(h.cmd); err != nil {
			log.Printf("[worker] pid %d: kill: %v", h.PID(), err)
		}
	}
}

// Terminated reports whether Terminate was called.
func (h *Handle) Terminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process has been reaped and returns its wait error.
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// PID returns the process ID of the worker.
func (h *Handle) PID() int {
	if h.cmd != nil && h.cmd.Process != nil {
		return h.cmd.Process.Pid
	}
	return 0
}
