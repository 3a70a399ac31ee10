package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

// DefaultListLimit bounds ListRuns when the caller passes no limit.
const DefaultListLimit = 50

var (
	// ErrRunNotFound is returned when updating a run that does not exist.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunFinished is returned when finishing a run that is already terminal.
	ErrRunFinished = errors.New("run already finished")
)

// Run CRUD operations

// CreateRun inserts a new run.
func (db *DB) CreateRun(r *models.Run) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, task_id, kind, subject_ref, status, started_at, finished_at, input, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.TaskID, r.Kind, nullString(r.SubjectRef), string(r.Status), formatTime(r.StartedAt),
		nullTime(r.FinishedAt), nullJSON(r.Input), nullJSON(r.Result), nullString(r.Error))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun moves a running run into a terminal status. It only ever
// succeeds once per run; later calls return ErrRunFinished.
func (db *DB) FinishRun(runID string, status models.RunStatus, finishedAt time.Time, result json.RawMessage, errMsg string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish run %s: status %q is not terminal", runID, status)
	}

	res, err := db.Exec(`
		UPDATE runs SET status = ?, finished_at = ?, result = ?, error = ?
		WHERE id = ? AND status = 'running'
	`, string(status), formatTime(finishedAt), nullJSON(result), nullString(errMsg), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	existing, err := db.GetRun(runID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return fmt.Errorf("finish run %s (%s): %w", runID, existing.Status, ErrRunFinished)
}

// GetRun retrieves a run by ID. Returns nil if it does not exist.
func (db *DB) GetRun(id string) (*models.Run, error) {
	row := db.QueryRow(`
		SELECT id, task_id, kind, subject_ref, status, started_at, finished_at, input, result, error
		FROM runs WHERE id = ?
	`, id)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first, at most limit of them.
func (db *DB) ListRuns(limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := db.Query(`
		SELECT id, task_id, kind, subject_ref, status, started_at, finished_at, input, result, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// ListRunsByStatus returns every run in the given status, oldest first.
func (db *DB) ListRunsByStatus(status models.RunStatus) ([]models.Run, error) {
	rows, err := db.Query(`
		SELECT id, task_id, kind, subject_ref, status, started_at, finished_at, input, result, error
		FROM runs WHERE status = ? ORDER BY started_at ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list runs by status: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Event operations

// AppendEvent appends an event to its run's log.
func (db *DB) AppendEvent(e *models.Event) error {
	var progress sql.NullFloat64
	if e.Progress != nil {
		progress = sql.NullFloat64{Float64: *e.Progress, Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO events (id, run_id, ts, step, message, progress)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.RunID, formatTime(e.Timestamp), e.Step, nullString(e.Message), progress)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns a run's events in the order they were appended.
func (db *DB) ListEvents(runID string) ([]models.Event, error) {
	rows, err := db.Query(`
		SELECT id, run_id, ts, step, message, progress
		FROM events WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var ts string
		var message sql.NullString
		var progress sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.RunID, &ts, &e.Step, &message, &progress); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp, _ = parseTime(ts)
		e.Message = message.String
		if progress.Valid {
			p := progress.Float64
			e.Progress = &p
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var r models.Run
	var subjectRef, finishedAt, input, result, errMsg sql.NullString
	var startedAt, status string

	err := row.Scan(&r.ID, &r.TaskID, &r.Kind, &subjectRef, &status, &startedAt,
		&finishedAt, &input, &result, &errMsg)
	if err != nil {
		return nil, err
	}

	r.Status = models.RunStatus(status)
	r.StartedAt, _ = parseTime(startedAt)
	r.FinishedAt = parseNullableTime(finishedAt)
	r.SubjectRef = subjectRef.String
	r.Error = errMsg.String
	if input.Valid {
		r.Input = json.RawMessage(input.String)
	}
	if result.Valid {
		r.Result = json.RawMessage(result.String)
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
