package manifest

import (
	"fmt"
	"sync"

	"pv-go/internal/model"
	"pv-go/internal/vault"
)

// MemoryStore keeps encoded manifests in a map keyed by folder directory.
// It goes through the same codec as the sidecar store, so envelope and
// checksum behavior is identical. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory manifest store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

var _ vault.ManifestStore = (*MemoryStore)(nil)

// Read returns the decoded manifest for relDir, or (nil, nil) when none
// has been written.
func (m *MemoryStore) Read(relDir string) (*model.Folder, error) {
	m.mu.RLock()
	data, ok := m.data[relDir]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", relDir, err)
	}
	return f, nil
}

// Write overwrites the manifest for relDir.
func (m *MemoryStore) Write(relDir string, f *model.Folder) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[relDir] = data
	m.mu.Unlock()
	return nil
}

// RemoveChild drops the named child folder from the manifest at relDir.
func (m *MemoryStore) RemoveChild(relDir string, childName string) error {
	f, err := m.Read(relDir)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}
	if !removeChild(f, childName) {
		return nil
	}
	return m.Write(relDir, f)
}

// Corrupt overwrites the stored bytes for relDir with garbage. Tests use
// it to exercise corruption detection.
func (m *MemoryStore) Corrupt(relDir string) {
	m.mu.Lock()
	m.data[relDir] = []byte(`{"version":1,"checksum":"0000","folder":{}}`)
	m.mu.Unlock()
}
