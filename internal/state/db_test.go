package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

const insertRunSQL = "INSERT INTO runs (id, task_id, kind, status, started_at) VALUES (?, ?, ?, ?, ?)"

func TestOpen(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}

	// The file only appears once something touches it.
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("database file does not exist at %s", path)
	}
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	path := filepath.Join(nested, "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(nested); os.IsNotExist(err) {
		t.Errorf("parent directories not created: %s", nested)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	// On Linux, we can't create files under /proc.
	_, err := Open("/proc/nonexistent/test.db")
	if err == nil {
		t.Error("expected error opening db at invalid path")
	}
}

func TestClose(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	_, err = db.Query("SELECT 1")
	if err == nil {
		t.Error("expected error after close, got nil")
	}
}

func TestMigrate(t *testing.T) {
	db := setupTestDB(t)

	tables := []string{"schema_version", "runs", "events"}
	for _, table := range tables {
		var count int
		row := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table)
		if err := row.Scan(&count); err != nil {
			t.Errorf("failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := db.Migrate(); err != nil {
			t.Fatalf("Migrate (iteration %d) failed: %v", i, err)
		}
	}

	var version int
	row := db.QueryRow("SELECT MAX(version) FROM schema_version")
	if err := row.Scan(&version); err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != 2 {
		t.Errorf("schema version = %d, want 2", version)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Exec("INSERT INTO events (id, run_id, ts, step) VALUES (?, ?, ?, ?)",
		"ev-1", "missing-run", formatTime(time.Now()), "a")
	if err == nil {
		t.Error("expected foreign key violation for event without run")
	}
}

func TestExecAndQuery(t *testing.T) {
	db := setupTestDB(t)

	result, err := db.Exec(insertRunSQL, "run-1", "task-1", "transcribe", "running", formatTime(time.Now()))
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		t.Fatalf("RowsAffected failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("RowsAffected = %d, want 1", affected)
	}

	rows, err := db.Query("SELECT id, task_id FROM runs WHERE id = ?", "run-1")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	var id, taskID string
	if !rows.Next() {
		t.Fatal("expected row, got none")
	}
	if err := rows.Scan(&id, &taskID); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if id != "run-1" || taskID != "task-1" {
		t.Errorf("got (%s, %s), want (run-1, task-1)", id, taskID)
	}
}

func TestTransaction_Success(t *testing.T) {
	db := setupTestDB(t)

	err := db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(insertRunSQL, "tx-1", "task-1", "transcribe", "running", formatTime(time.Now()))
		return err
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	var count int
	row := db.QueryRow("SELECT COUNT(*) FROM runs WHERE id = ?", "tx-1")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("failed to verify: %v", err)
	}
	if count != 1 {
		t.Error("transaction was not committed")
	}
}

func TestTransaction_Rollback(t *testing.T) {
	db := setupTestDB(t)

	err := db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(insertRunSQL, "tx-fail", "task-1", "transcribe", "running", formatTime(time.Now()))
		if err != nil {
			return err
		}
		return fmt.Errorf("simulated error")
	})
	if err == nil {
		t.Error("expected error from Transaction")
	}

	var count int
	row := db.QueryRow("SELECT COUNT(*) FROM runs WHERE id = ?", "tx-fail")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("failed to verify: %v", err)
	}
	if count != 0 {
		t.Error("transaction was not rolled back")
	}
}

func TestDefaultDBPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	path := DefaultDBPath()
	expected := "/custom/data/agentrun/agentrun.db"
	if path != expected {
		t.Errorf("DefaultDBPath() = %q, want %q", path, expected)
	}

	t.Setenv("XDG_DATA_HOME", "")
	path = DefaultDBPath()
	home, _ := os.UserHomeDir()
	expected = filepath.Join(home, ".local", "share", "agentrun", "agentrun.db")
	if path != expected {
		t.Errorf("DefaultDBPath() = %q, want %q", path, expected)
	}
}

func TestFormatAndParseTime(t *testing.T) {
	now := time.Now()
	formatted := formatTime(now)
	parsed, err := parseTime(formatted)
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}

	if !now.Equal(parsed) {
		t.Errorf("time round-trip failed: got %v, want %v", parsed, now.UTC())
	}
}

func TestFormatTime_SortsLexicographically(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	earlier := formatTime(base.Add(100 * time.Millisecond))
	later := formatTime(base.Add(900 * time.Millisecond))
	if !(earlier < later) {
		t.Errorf("%q should sort before %q", earlier, later)
	}
}

func TestParseNullableTime(t *testing.T) {
	validTime := sql.NullString{String: formatTime(time.Now()), Valid: true}
	if parseNullableTime(validTime) == nil {
		t.Error("expected non-nil time for valid input")
	}

	if parseNullableTime(sql.NullString{Valid: false}) != nil {
		t.Error("expected nil time for null input")
	}

	badFormat := sql.NullString{String: "not a time", Valid: true}
	if parseNullableTime(badFormat) != nil {
		t.Error("expected nil time for invalid format")
	}
}
