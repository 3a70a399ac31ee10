package state

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

// InterruptedReason is recorded on runs left running by a previous process.
const InterruptedReason = "orchestrator exited while the run was active"

// RecoveryManager finalizes runs that a previous orchestrator process left
// in the running state. Their workers died with it, so nothing else will
// ever finish them.
type RecoveryManager struct {
	db *DB
}

// NewRecoveryManager creates a new RecoveryManager with the given database.
func NewRecoveryManager(db *DB) *RecoveryManager {
	return &RecoveryManager{db: db}
}

// CheckForInterrupted returns the runs still marked running.
func (rm *RecoveryManager) CheckForInterrupted() ([]models.Run, error) {
	runs, err := rm.db.ListRunsByStatus(models.RunRunning)
	if err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}
	return runs, nil
}

// RecoverInterrupted marks every interrupted run as error and returns them.
// The whole batch is finalized in one transaction, so a failure leaves
// every run as it was. Call it before the orchestrator starts any new run
// on the same database.
func (rm *RecoveryManager) RecoverInterrupted() ([]models.Run, error) {
	now := time.Now()
	var recovered []models.Run

	err := rm.db.Transaction(func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT id, task_id, kind, subject_ref, status, started_at, finished_at, input, result, error
			FROM runs WHERE status = 'running' ORDER BY started_at ASC
		`)
		if err != nil {
			return fmt.Errorf("list running runs: %w", err)
		}
		var runs []models.Run
		for rows.Next() {
			r, err := scanRun(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan run: %w", err)
			}
			runs = append(runs, *r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("list running runs: %w", err)
		}

		for _, r := range runs {
			res, err := tx.Exec(`
				UPDATE runs SET status = ?, finished_at = ?, error = ?
				WHERE id = ? AND status = 'running'
			`, string(models.RunError), formatTime(now), InterruptedReason, r.ID)
			if err != nil {
				return fmt.Errorf("recover run %s: %w", r.ID, err)
			}
			if n, err := res.RowsAffected(); err != nil || n != 1 {
				continue
			}
			r.Status = models.RunError
			r.FinishedAt = &now
			r.Error = InterruptedReason
			recovered = append(recovered, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range recovered {
		log.Printf("[state] marked interrupted run %s (task %s) as error", r.ID, r.TaskID)
	}
	return recovered, nil
}
