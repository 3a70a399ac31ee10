package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var pruneOlderThan time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished runs and their events",
	Long: `Delete finished runs older than --older-than, together with their events.
Running runs are never deleted.`,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "Delete finished runs older than this")
}

func runPrune(cmd *cobra.Command, args []string) error {
	if pruneOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.PurgeOldRuns(pruneOlderThan)
	if err != nil {
		return err
	}
	printStatus("✓", fmt.Sprintf("deleted %d runs older than %s", n, pruneOlderThan), color.FgGreen)
	return nil
}
