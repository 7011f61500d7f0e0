package mirror

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryBackend is an in-memory implementation of the Backend interface.
// It stores all objects in a map, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryBackend struct {
	objects map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryBackend creates a new in-memory mirror backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		objects: make(map[string][]byte),
	}
}

// Put stores one object, overwriting any previous object at key.
func (m *MemoryBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = data
	return nil
}

// Exists reports whether an object is already present at key.
func (m *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[key]
	return ok, nil
}

// ValidateSetup always succeeds for the in-memory backend.
func (m *MemoryBackend) ValidateSetup(ctx context.Context) error {
	return nil
}

// Object returns the stored bytes for key.
func (m *MemoryBackend) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	return data, ok
}

// Len returns the number of stored objects.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.objects)
}

// Compile-time check that MemoryBackend implements the Backend interface
var _ Backend = (*MemoryBackend)(nil)
