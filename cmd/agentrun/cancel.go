package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentrun/internal/signals"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a running task",
	Long: `Ask the agentrun process running a task to cancel it.

The request is delivered through a signal file in the shared signals
directory. Only the process running the task picks it up; a request that
nobody claims within a minute expires.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	path, err := signals.SendCancel(cfg.SignalsDir(), args[0])
	if err != nil {
		return err
	}
	printStatus("⊘", fmt.Sprintf("cancel requested for task %s", args[0]), color.FgYellow)
	fmt.Println(mutedStyle.Render(path))
	return nil
}
