// Package state provides SQLite-based persistence for runs and their events.
package state

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

// RunStore handles run-related persistence operations.
type RunStore interface {
	CreateRun(r *models.Run) error
	FinishRun(runID string, status models.RunStatus, finishedAt time.Time, result json.RawMessage, errMsg string) error
	GetRun(id string) (*models.Run, error)
	ListRuns(limit int) ([]models.Run, error)
}

// EventStore handles the append-only event log.
type EventStore interface {
	AppendEvent(e *models.Event) error
	ListEvents(runID string) ([]models.Event, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store is everything a run database offers besides its lifecycle.
type Store interface {
	RunStore
	EventStore
}

// StateStore is a Store that also owns its connection and schema.
type StateStore interface {
	io.Closer
	Migrator
	Store
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore = (*DB)(nil)
	_ Migrator   = (*DB)(nil)
	_ RunStore   = (*DB)(nil)
	_ EventStore = (*DB)(nil)
)
