package database

import (
	"fmt"
	"os"
	"path/filepath"

	"pv-go/internal/config"
)

// JournalFileName is the name of the journal database inside the data directory.
const JournalFileName = "pv.db"

// NewJournalFromConfig creates a Journal implementation based on the database config type.
// Memory journals are migrated on the spot since they always start empty; file
// journals are checked and migrated by the app so version problems surface there.
func NewJournalFromConfig(cfg config.DatabaseConfig) (Journal, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteJournal(filepath.Join(cfg.DataDir, JournalFileName))
	case "memory":
		j, err := NewSQLiteJournal(":memory:")
		if err != nil {
			return nil, err
		}
		if err := j.MigrateUp(); err != nil {
			j.Close()
			return nil, fmt.Errorf("migrating memory journal: %w", err)
		}
		return j, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
