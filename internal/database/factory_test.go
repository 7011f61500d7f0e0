package database

import (
	"os"
	"path/filepath"
	"testing"

	"pv-go/internal/config"
)

func TestNewJournalFromConfig(t *testing.T) {
	t.Run("memory journal", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "memory"}
		got, err := NewJournalFromConfig(cfg)

		if err != nil {
			t.Errorf("NewJournalFromConfig() unexpected error: %v", err)
			return
		}

		if got == nil {
			t.Fatal("NewJournalFromConfig() returned nil")
		}
		defer got.Close()

		// Memory journals come up migrated
		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() on memory journal error = %v", err)
		}
	})

	t.Run("sqlite journal", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			Type:    "sqlite",
			DataDir: t.TempDir(),
		}
		got, err := NewJournalFromConfig(cfg)

		if err != nil {
			t.Errorf("NewJournalFromConfig() unexpected error: %v", err)
			return
		}

		if got == nil {
			t.Fatal("NewJournalFromConfig() returned nil")
		}
		defer got.Close()

		want := filepath.Join(cfg.DataDir, JournalFileName)
		if got.Path() != want {
			t.Errorf("Path() = %q, want %q", got.Path(), want)
		}
	})

	t.Run("sqlite journal creates the data dir", func(t *testing.T) {
		dataDir := filepath.Join(t.TempDir(), "db")
		cfg := config.DatabaseConfig{
			Type:    "sqlite",
			DataDir: dataDir,
		}
		got, err := NewJournalFromConfig(cfg)

		if err != nil {
			t.Fatalf("NewJournalFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if _, err := os.Stat(dataDir); err != nil {
			t.Errorf("data dir not created: %v", err)
		}
	})

	t.Run("sqlite journal without data_dir", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "sqlite"}
		got, err := NewJournalFromConfig(cfg)

		if err == nil {
			t.Error("NewJournalFromConfig() expected error for missing data_dir, got nil")
		}

		if got != nil {
			t.Error("NewJournalFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "unknown"}
		got, err := NewJournalFromConfig(cfg)

		if err == nil {
			t.Error("NewJournalFromConfig() expected error for unknown type, got nil")
		}

		if got != nil {
			t.Error("NewJournalFromConfig() should return nil on error")
			got.Close()
		}
	})
}
