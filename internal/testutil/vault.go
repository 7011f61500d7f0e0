package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pv-go/internal/manifest"
	"pv-go/internal/vault"
)

// NewTestStore creates a vault store over a fresh temp directory with
// sidecar manifests, a stub synthesizer, deterministic clock and ids, and
// no encryption. Returns the store and the vault root directory.
func NewTestStore(t *testing.T) (*vault.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := vault.NewStore(dir, manifest.NewSidecarStore(dir), NewStubSynthesizer(), nil,
		vault.NewNopLogger(), FixedClock(), NewStubIDGenerator(), 4)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, dir
}

// StubSynthesizer writes fixed bundle members without touching real media.
type StubSynthesizer struct {
	Identifier string
	MakeErr    error
	ExtractErr error
}

func NewStubSynthesizer() *StubSynthesizer {
	return &StubSynthesizer{Identifier: "11111111-2222-3333-4444-555555555555"}
}

func (s *StubSynthesizer) Make(_ context.Context, stillPath, videoPath, bundleDir string, progress func(done, total int)) (string, error) {
	if s.MakeErr != nil {
		return "", s.MakeErr
	}
	still := []byte("stub still " + stillPath)
	video := []byte("stub video " + videoPath)
	if err := os.WriteFile(filepath.Join(bundleDir, "keyPhoto.jpg"), still, 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(bundleDir, "video.mov"), video, 0o644); err != nil {
		return "", err
	}
	if progress != nil {
		progress(1, 2)
		progress(2, 2)
	}
	return s.Identifier, nil
}

func (s *StubSynthesizer) Extract(_ context.Context, bundleDir, destDir string) (string, error) {
	if s.ExtractErr != nil {
		return "", s.ExtractErr
	}
	for _, name := range []string{"keyPhoto.jpg", "video.mov"} {
		data, err := os.ReadFile(filepath.Join(bundleDir, name))
		if err != nil {
			return "", errors.New("bundle member missing: " + name)
		}
		if err := os.WriteFile(filepath.Join(destDir, name), data, 0o644); err != nil {
			return "", err
		}
	}
	return s.Identifier, nil
}

var _ vault.Synthesizer = (*StubSynthesizer)(nil)
