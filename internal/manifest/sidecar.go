package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"pv-go/internal/model"
	"pv-go/internal/vault"
)

// SidecarStore persists one dataLog.json per folder directory under the
// vault root. The sidecar is the sole source of truth for folder contents;
// directory listings are never consulted at runtime.
type SidecarStore struct {
	root string
}

// NewSidecarStore creates a manifest store rooted at the vault directory.
func NewSidecarStore(root string) *SidecarStore {
	return &SidecarStore{root: root}
}

var _ vault.ManifestStore = (*SidecarStore)(nil)

func (s *SidecarStore) path(relDir string) string {
	return filepath.Join(s.root, filepath.FromSlash(relDir), FileName)
}

// Read loads the manifest for the folder directory at relDir.
// A missing sidecar reads as (nil, nil): the folder has no persisted state
// yet. A present but undecodable sidecar returns ErrCorrupt.
func (s *SidecarStore) Read(relDir string) (*model.Folder, error) {
	data, err := os.ReadFile(s.path(relDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading manifest %s: %w", relDir, err)
	}
	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", relDir, err)
	}
	return f, nil
}

// Write overwrites the manifest for relDir. The write is a temp file plus
// rename in the target directory, so readers never observe a torn sidecar.
func (s *SidecarStore) Write(relDir string, f *model.Folder) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}

	destPath := s.path(relDir)
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".dataLog-*")
	if err != nil {
		return fmt.Errorf("creating manifest temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing manifest temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("renaming manifest into place: %w", err)
	}

	success = true
	return nil
}

// RemoveChild loads the manifest at relDir, drops the named child folder
// from its items, fixes the direct folder counter, and re-serializes.
// Removing a child that is not present is a no-op.
func (s *SidecarStore) RemoveChild(relDir string, childName string) error {
	f, err := s.Read(relDir)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}
	if !removeChild(f, childName) {
		return nil
	}
	return s.Write(relDir, f)
}

// removeChild filters a named child folder out of the record. Returns true
// when an entry was removed.
func removeChild(f *model.Folder, childName string) bool {
	kept := f.Items[:0]
	removed := false
	for _, it := range f.Items {
		if it.Folder != nil && it.Folder.Name == childName {
			removed = true
			continue
		}
		kept = append(kept, it)
	}
	if !removed {
		return false
	}
	f.Items = kept
	if f.FoldersCount > 0 {
		f.FoldersCount--
	}
	return true
}
