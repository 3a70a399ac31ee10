package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

var (
	runTask        taskFlags
	runMetricsAddr string
	runQuiet       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one task in a worker and follow its progress",
	Long: `Start a task in a new worker process and stream its progress until the
run finishes.

Press Ctrl-C to cancel the run. 'agentrun cancel <task-id>' from another
shell cancels it too.

Examples:
  agentrun run --id visit-17 --kind transcribe --payload '{"file":"visit-17.wav"}'
  agentrun run --task-file task.yaml
  agentrun run --task-file task.yaml --metrics-addr :9464`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTask.id, "id", "", "Task id")
	runCmd.Flags().StringVar(&runTask.kind, "kind", "", "Task kind, e.g. transcribe")
	runCmd.Flags().StringVar(&runTask.subject, "subject", "", "Reference to the record the task is about")
	runCmd.Flags().StringVar(&runTask.payload, "payload", "", "Task payload as JSON, or @file")
	runCmd.Flags().StringVarP(&runTask.taskFile, "task-file", "f", "", "YAML file describing the task")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print the final summary")
}

func runRun(cmd *cobra.Command, args []string) error {
	task, err := runTask.build()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runMetricsAddr != "" {
		cfg.Metrics.Addr = runMetricsAddr
	}

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	sub := app.broadcaster.Subscribe()
	defer app.broadcaster.Unsubscribe(sub)

	runID, err := app.orch.Start(task)
	if err != nil {
		return err
	}
	if !runQuiet {
		printStatus("●", fmt.Sprintf("started run %s for task %s (%s)", runID, task.ID, task.Kind), color.FgCyan)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := follow(ctx, app, sub.C(), task.ID); err != nil {
		return err
	}

	run, err := app.orch.Get(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s disappeared from the database", runID)
	}
	fmt.Println(runSummary(run))

	if run.Status != models.RunOK {
		return fmt.Errorf("run %s finished with status %s", run.ID, run.Status)
	}
	return nil
}

// follow prints observations for taskID until its run reaches a terminal
// state. Cancelling ctx cancels the run and keeps following until the
// cancellation is observed.
func follow(ctx context.Context, app *App, obs <-chan models.Observation, taskID string) error {
	interrupted := ctx.Done()
	for {
		select {
		case o, ok := <-obs:
			if !ok {
				return fmt.Errorf("observation stream closed before task %s finished", taskID)
			}
			if !runQuiet {
				fmt.Println(formatObservation(o))
			}
			if o.TaskID == taskID && o.Type.Terminal() && !o.Late && !o.Unroutable {
				return nil
			}
		case <-interrupted:
			interrupted = nil
			msg := "interrupted, cancelling run"
			for _, a := range app.orch.Active() {
				if a.TaskID == taskID {
					msg = fmt.Sprintf("interrupted after %s, cancelling run %s (pid %d)",
						formatDuration(time.Since(a.StartedAt)), a.RunID, a.PID)
				}
			}
			printStatus("⊘", msg, color.FgYellow)
			if err := app.orch.Cancel(taskID); err != nil {
				return err
			}
		}
	}
}
