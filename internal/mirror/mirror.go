package mirror

import (
	"context"
	"io"
)

// Backend is a push-only replica target. Objects are keyed by the
// slash-separated vault-relative path of the file they mirror.
type Backend interface {
	// Put uploads one object. Re-putting an existing key overwrites it.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Exists reports whether an object is already present at key.
	Exists(ctx context.Context, key string) (bool, error)

	// ValidateSetup verifies that the backend is reachable and usable.
	ValidateSetup(ctx context.Context) error
}
