package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentrun/internal/state"
)

var recoverDryRun bool

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Mark runs left running by a dead process as failed",
	Long: `Find runs still marked running whose orchestrator is gone and finish
them with an error.

Only run this when no other agentrun process is using the same database;
its live runs would be marked as interrupted too.`,
	RunE: runRecover,
}

func init() {
	recoverCmd.Flags().BoolVar(&recoverDryRun, "dry-run", false, "List interrupted runs without changing them")
}

func runRecover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rm := state.NewRecoveryManager(db)
	if recoverDryRun {
		runs, err := rm.CheckForInterrupted()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println(mutedStyle.Render("No interrupted runs."))
			return nil
		}
		for i := range runs {
			fmt.Println(formatRunRow(&runs[i]))
		}
		return nil
	}

	runs, err := rm.RecoverInterrupted()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println(mutedStyle.Render("No interrupted runs."))
		return nil
	}
	for _, r := range runs {
		printStatus("✗", fmt.Sprintf("run %s (task %s) marked as error", r.ID, r.TaskID), color.FgRed)
	}
	return nil
}
