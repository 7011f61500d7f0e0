package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("with env vars set", func(t *testing.T) {
		t.Setenv("PV_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("PV_HOME", "/custom/pv")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if got := defaults["config_path"]; got != "/custom/config.toml" {
			t.Errorf("config_path = %q, want /custom/config.toml", got)
		}
		if got := defaults["base_dir"]; got != "/custom/pv" {
			t.Errorf("base_dir = %q, want /custom/pv", got)
		}
		if got := defaults["log_dir"]; got != filepath.Join("/custom/pv", "log") {
			t.Errorf("log_dir = %q, want /custom/pv/log", got)
		}
	})

	t.Run("without env vars", func(t *testing.T) {
		t.Setenv("PV_CONFIG_PATH", "")
		t.Setenv("PV_HOME", "")

		home, err := os.UserHomeDir()
		if err != nil {
			t.Skipf("no home directory: %v", err)
		}

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if got := defaults["config_path"]; got != filepath.Join(home, ".config", "pv.toml") {
			t.Errorf("config_path = %q, want it under %s/.config", got, home)
		}
		if got := defaults["base_dir"]; !strings.HasPrefix(got, home) {
			t.Errorf("base_dir = %q, want it under %s", got, home)
		}
	})
}
