package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

var eventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "Show a run and its recorded events",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRun(args[0])
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", args[0])
	}
	events, err := db.ListEvents(run.ID)
	if err != nil {
		return err
	}

	fmt.Println(runSummary(run))
	if len(events) == 0 {
		fmt.Println(mutedStyle.Render("No events recorded."))
		return nil
	}
	fmt.Println()
	for _, e := range events {
		fmt.Println(formatEvent(e))
	}
	return nil
}

func formatEvent(e models.Event) string {
	progress := "    "
	if e.Progress != nil {
		progress = formatProgress(*e.Progress)
	}
	line := fmt.Sprintf("%s %s %-24s", mutedStyle.Render(e.Timestamp.Local().Format("15:04:05.000")), progress, e.Step)
	if e.Message != "" {
		line += " " + e.Message
	}
	return line
}
