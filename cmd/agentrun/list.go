package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentrun/internal/state"
	"github.com/ShayCichocki/agentrun/pkg/models"
)

var (
	listLimit  int
	listStatus string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Long: `List runs recorded in the run database, most recent first.

Examples:
  agentrun list
  agentrun list --limit 10
  agentrun list --status running`,
	RunE: runList,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum number of runs to show")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Only show runs with this status (running, ok, error, cancelled)")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := queryRuns(db, listStatus, listLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println(mutedStyle.Render("No runs recorded."))
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-2s %-36s %-20s %-12s %-10s %s", "", "RUN", "TASK", "KIND", "DURATION", "STARTED")))
	for i := range runs {
		fmt.Println(formatRunRow(&runs[i]))
	}
	return nil
}

// queryRuns lists runs, optionally filtered by status. The status filter
// returns oldest first from the store, so results are reversed and cut to limit.
func queryRuns(db *state.DB, status string, limit int) ([]models.Run, error) {
	if status == "" {
		return db.ListRuns(limit)
	}

	s := models.RunStatus(status)
	if !s.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	runs, err := db.ListRunsByStatus(s)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func formatRunRow(r *models.Run) string {
	duration := formatDuration(r.Duration())
	if r.FinishedAt == nil {
		duration = formatDuration(r.Duration().Round(time.Second)) + "+"
	}
	return fmt.Sprintf("%s  %-36s %-20s %-12s %-10s %s",
		statusGlyph(r.Status),
		r.ID,
		truncate(r.TaskID, 20),
		truncate(r.Kind, 12),
		duration,
		r.StartedAt.Local().Format("2006-01-02 15:04:05"),
	)
}
