package manifest_test

import (
	"testing"

	"pv-go/internal/config"
	"pv-go/internal/manifest"
)

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ManifestConfig
		wantErr bool
	}{
		{name: "sidecar store", cfg: config.ManifestConfig{Type: "sidecar"}},
		{name: "empty type defaults to sidecar", cfg: config.ManifestConfig{}},
		{name: "memory store", cfg: config.ManifestConfig{Type: "memory"}},
		{name: "unknown type", cfg: config.ManifestConfig{Type: "csv"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := manifest.NewStoreFromConfig(tt.cfg, t.TempDir())

			if (err != nil) != tt.wantErr {
				t.Errorf("NewStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if (got == nil) != tt.wantErr {
				t.Errorf("NewStoreFromConfig() returned nil = %v, wantErr %v", got == nil, tt.wantErr)
			}
		})
	}
}
