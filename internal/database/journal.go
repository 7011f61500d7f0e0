package database

import (
	"database/sql"
	"time"
)

// Operation status values recorded in the journal.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation is one row of the operations journal. A row is inserted when a
// mutating command starts and updated with a terminal status when it ends,
// so an interrupted run stays visible as a row that never finished.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// Journal is the append-only record of mutating commands. It exists for
// `pv history` and for debugging; vault contents never depend on it.
type Journal interface {
	// CreateOperation inserts a new running operation and returns it with
	// its auto-increment ID assigned.
	CreateOperation(operation, parameters string) (*Operation, error)

	// FinishOperation records the terminal status and finish time for an operation.
	FinishOperation(id int64, status string) error

	// ListOperations returns up to limit operations, most recent first.
	ListOperations(limit int) ([]*Operation, error)

	// Path returns the database file path (or ":memory:" for in-memory journals).
	Path() string

	// CheckMigrations verifies the journal schema is up-to-date.
	CheckMigrations() error

	// MigrateUp applies any pending schema migrations.
	MigrateUp() error

	// Close closes the database connection.
	Close() error
}
