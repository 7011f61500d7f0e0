package manifest

import (
	"fmt"

	"pv-go/internal/config"
	"pv-go/internal/vault"
)

// NewStoreFromConfig creates a manifest store based on the configuration.
// An empty type means sidecar files under the vault root.
func NewStoreFromConfig(cfg config.ManifestConfig, rootDir string) (vault.ManifestStore, error) {
	switch cfg.Type {
	case "", "sidecar":
		return NewSidecarStore(rootDir), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown manifest type: %s", cfg.Type)
	}
}
