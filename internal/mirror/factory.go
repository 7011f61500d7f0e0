package mirror

import (
	"context"
	"fmt"

	"pv-go/internal/config"
)

// NewBackendFromConfig creates a Backend implementation based on the mirror config type.
func NewBackendFromConfig(ctx context.Context, cfg config.MirrorConfig) (Backend, error) {
	switch cfg.Type {
	case "":
		return nil, fmt.Errorf("no mirror configured")
	case "memory":
		return NewMemoryBackend(), nil
	case "filesystem":
		if cfg.FSDir == "" {
			return nil, fmt.Errorf("filesystem mirror requires fs_dir to be set")
		}
		return NewFileSystemBackend(cfg.FSDir)
	case "s3":
		return NewS3Backend(ctx, cfg)
	case "minio":
		return NewMinioBackend(cfg)
	default:
		return nil, fmt.Errorf("unknown mirror type: %s", cfg.Type)
	}
}
