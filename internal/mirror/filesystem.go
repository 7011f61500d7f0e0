package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// FileSystemBackend is a filesystem-based implementation of the Backend
// interface. Objects are laid out under the root exactly as they are laid
// out in the vault, so a replica on a mounted drive stays browsable.
type FileSystemBackend struct {
	root string
}

// NewFileSystemBackend creates a filesystem backend rooted at the given path.
func NewFileSystemBackend(root string) (*FileSystemBackend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}

	return &FileSystemBackend{root: root}, nil
}

// objectPath maps a slash-separated object key to a path under the root.
// Keys that would escape the root are rejected.
func (b *FileSystemBackend) objectPath(key string) (string, error) {
	if key == "" || path.Clean("/"+key) != "/"+key {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.Join(b.root, filepath.FromSlash(key)), nil
}

// Put stores one object, creating parent directories as needed.
func (b *FileSystemBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	destPath, err := b.objectPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	return b.writeFile(destPath, r, size)
}

// Exists reports whether an object is already present at key.
func (b *FileSystemBackend) Exists(ctx context.Context, key string) (bool, error) {
	destPath, err := b.objectPath(key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(destPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking object: %w", err)
	}
	return true, nil
}

// ValidateSetup verifies that the mirror root is accessible.
func (b *FileSystemBackend) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(b.root)
	if err != nil {
		return fmt.Errorf("mirror root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mirror root is not a directory: %s", b.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (b *FileSystemBackend) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Verify size
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemBackend implements the Backend interface
var _ Backend = (*FileSystemBackend)(nil)
