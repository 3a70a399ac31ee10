package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentrun/internal/config"
)

var dbPathFlag string

var rootCmd = &cobra.Command{
	Use:   "agentrun",
	Short: "Run long tasks in worker processes and track their progress",
	Long: `agentrun launches an external worker process for each task, follows the
NDJSON progress stream it writes, and keeps a durable record of every run
and its events.

Workers receive one job line on stdin:
  {"type":"job","task":{"id":"t1","kind":"transcribe","payload":{...}}}

and report back on stdout with hello, event, warning, finished, error or
cancelled messages. stderr is shown as warnings.

Configuration is read from ~/.config/agentrun/config.yaml, a project
.agentrun.yaml, and AGENTRUN_* environment variables.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "Run database path (overrides state.db_path)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the layered configuration and applies global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPathFlag != "" {
		cfg.State.DBPath = dbPathFlag
	}
	return cfg, nil
}
