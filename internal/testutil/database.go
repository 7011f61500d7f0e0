package testutil

import (
	"testing"

	"pv-go/internal/database"
)

// NewTestJournal creates a new in-memory operations journal with schema applied.
// The journal is automatically closed when the test completes.
func NewTestJournal(t *testing.T) database.Journal {
	t.Helper()

	j, err := database.NewSQLiteJournal(":memory:")
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}

	if err := j.MigrateUp(); err != nil {
		j.Close()
		t.Fatalf("failed to migrate journal: %v", err)
	}

	t.Cleanup(func() {
		j.Close()
	})

	return j
}
