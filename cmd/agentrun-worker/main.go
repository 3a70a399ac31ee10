// Command agentrun-worker is a reference worker for agentrun. It reads one
// job from stdin, reports a fixed sequence of pipeline steps on stdout and
// finishes. SIGTERM makes it report cancellation and exit.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentrun/internal/worker"
	"github.com/ShayCichocki/agentrun/pkg/models"
)

var (
	stepDelay time.Duration
	failAt    string
)

// capabilities are announced in the hello payload.
var capabilities = []string{"asr", "ocr", "templater", "exporter"}

// step is one pipeline stage reported as an event.
type step struct {
	name     string
	message  string
	progress float64
}

var pipeline = []step{
	{"agent.parse_intent", "parsing request", 0.1},
	{"asr.check", "checking audio", 0.3},
	{"ocr.check", "checking documents", 0.6},
	{"templater.render", "rendering report", 0.8},
	{"exporter.write", "writing output", 0.95},
}

var rootCmd = &cobra.Command{
	Use:          "agentrun-worker",
	Short:        "Reference worker speaking the agentrun NDJSON protocol",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
		defer stop()
		return run(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.Flags().DurationVar(&stepDelay, "step-delay", 400*time.Millisecond, "Pause between pipeline steps")
	rootCmd.Flags().StringVar(&failAt, "fail-at", "", "Report an error instead of running this step")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run executes one job read from in, writing protocol lines to out.
func run(ctx context.Context, in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadBytes('\n')
	if err != nil && (err != io.EOF || len(line) == 0) {
		return fmt.Errorf("read job: %w", err)
	}
	task, err := worker.DecodeJob(line)
	if err != nil {
		return err
	}

	emit := func(m worker.Message) error {
		data, err := worker.Encode(m)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
	fields := func() worker.Fields {
		return worker.Fields{TaskID: task.ID, Timestamp: time.Now()}
	}

	hello := fields()
	hello.Payload, _ = json.Marshal(map[string]any{"capabilities": capabilities})
	if err := emit(worker.Hello{Fields: hello}); err != nil {
		return err
	}

	for _, s := range pipeline {
		select {
		case <-ctx.Done():
			c := fields()
			c.Message = "received termination signal"
			return emit(worker.Cancelled{Fields: c})
		case <-time.After(stepDelay):
		}

		if s.name == failAt {
			f := fields()
			f.Step = s.name
			f.Message = fmt.Sprintf("%s failed", s.name)
			return emit(worker.Failed{Fields: f})
		}

		p := s.progress
		ev := fields()
		ev.Step = s.name
		ev.Message = s.message
		ev.Progress = &p
		if err := emit(worker.Progress{Fields: ev}); err != nil {
			return err
		}
	}

	done := fields()
	done.Payload, err = json.Marshal(result(task))
	if err != nil {
		return err
	}
	return emit(worker.Finished{Fields: done})
}

func result(task models.Task) map[string]any {
	r := map[string]any{
		"ok":   true,
		"kind": task.Kind,
	}
	if task.SubjectRef != "" {
		r["subjectRef"] = task.SubjectRef
	}
	return r
}
