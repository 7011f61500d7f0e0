package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pv-go/internal/model"
)

// Store is the single authority for filesystem mutation under the vault
// root. It owns the two root records for its lifetime and keeps each
// ancestor manifest and counter consistent with the directory tree.
//
// The roots are guarded by one mutex per root kind: every read-modify-write
// of a root tree happens under its lock. Batch media materialization runs
// outside the lock; only the model/manifest commit runs inside.
type Store struct {
	rootDir   string
	manifests ManifestStore
	synth     Synthesizer
	cipher    Encryptor // nil means media is stored in plaintext
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	workers   int

	mu    map[model.RootKind]*sync.Mutex
	roots map[model.RootKind]*model.Folder
}

// NewStore creates the store and bootstraps both root trees. For each root
// kind it reads the existing manifest; when none exists it creates the root
// directory plus the default subfolder and persists both records. A corrupt
// root manifest fails construction rather than silently re-initializing.
func NewStore(rootDir string, manifests ManifestStore, synth Synthesizer, cipher Encryptor, logger Logger, clock Clock, idgen IDGenerator, workers int) (*Store, error) {
	if workers < 1 {
		workers = 1
	}
	s := &Store{
		rootDir:   rootDir,
		manifests: manifests,
		synth:     synth,
		cipher:    cipher,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		workers:   workers,
		mu: map[model.RootKind]*sync.Mutex{
			model.PhotoRoot: {},
			model.FilesRoot: {},
		},
		roots: make(map[model.RootKind]*model.Folder),
	}

	for _, kind := range []model.RootKind{model.PhotoRoot, model.FilesRoot} {
		root, err := s.bootstrapRoot(kind)
		if err != nil {
			return nil, fmt.Errorf("bootstrapping %s: %w", kind, err)
		}
		s.roots[kind] = root
	}
	return s, nil
}

func (s *Store) bootstrapRoot(kind model.RootKind) (*model.Folder, error) {
	relDir := string(kind)

	existing, err := s.manifests.Read(relDir)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := os.MkdirAll(s.abs(relDir), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryCreate, err)
	}

	now := s.clock.Now()
	main := &model.Folder{
		Path:       relDir,
		Name:       model.DefaultFolderName,
		Timestamp:  now,
		IsEditable: false,
	}
	root := &model.Folder{
		Path:         "",
		Name:         relDir,
		Items:        []model.Item{model.FolderItem(main)},
		Timestamp:    now,
		FoldersCount: 1,
		IsEditable:   false,
	}

	if err := os.MkdirAll(s.abs(main.RelPath()), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryCreate, err)
	}
	if err := s.manifests.Write(main.RelPath(), main); err != nil {
		return nil, err
	}
	if err := s.manifests.Write(relDir, root); err != nil {
		return nil, err
	}

	s.logger.Info("root bootstrapped", "root", relDir)
	return root, nil
}

// Root returns a copy of the in-memory root record for the given kind.
func (s *Store) Root(kind model.RootKind) *model.Folder {
	mu := s.mu[kind]
	mu.Lock()
	defer mu.Unlock()
	return s.roots[kind].Clone()
}

// ReadFolder returns the current record for the folder at relPath, read
// from its own manifest (roots come from the held records). Returns
// ErrFolderNotFound when no record exists.
func (s *Store) ReadFolder(relPath string) (*model.Folder, error) {
	rel, err := cleanRel(relPath)
	if err != nil {
		return nil, err
	}
	kind, err := rootKindOf(rel)
	if err != nil {
		return nil, err
	}
	if rel == string(kind) {
		return s.Root(kind), nil
	}
	f, err := s.manifests.Read(rel)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, rel)
	}
	return f, nil
}

// abs maps a vault-relative slash path onto the filesystem.
func (s *Store) abs(rel string) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(rel))
}

// lockRoot acquires the mutex guarding the given root tree.
func (s *Store) lockRoot(kind model.RootKind) func() {
	mu := s.mu[kind]
	mu.Lock()
	return mu.Unlock
}

// commitRoot persists the in-memory root record and reads it back, so the
// held record reflects exactly what a later reader will decode.
func (s *Store) commitRoot(kind model.RootKind) error {
	relDir := string(kind)
	if err := s.manifests.Write(relDir, s.roots[kind]); err != nil {
		return err
	}
	fresh, err := s.manifests.Read(relDir)
	if err != nil || fresh == nil {
		s.logger.Warn("root manifest re-read failed, keeping written record", "root", relDir, "err", err)
		return nil
	}
	s.roots[kind] = fresh
	return nil
}

// cleanRel validates a caller-supplied vault-relative path and normalizes
// it to slash form. Rejects absolute paths and any traversal outside the
// vault root.
func cleanRel(relPath string) (string, error) {
	p := strings.TrimSuffix(filepath.ToSlash(relPath), "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrInvalidPath, relPath)
	}
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." {
		return "", fmt.Errorf("%w: %q escapes the vault root", ErrInvalidPath, relPath)
	}
	return cleaned, nil
}

// rootKindOf returns which root tree a vault-relative path belongs to.
func rootKindOf(rel string) (model.RootKind, error) {
	head := rel
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		head = rel[:i]
	}
	switch model.RootKind(head) {
	case model.PhotoRoot:
		return model.PhotoRoot, nil
	case model.FilesRoot:
		return model.FilesRoot, nil
	default:
		return "", fmt.Errorf("%w: %q is not under a vault root", ErrInvalidPath, rel)
	}
}

// sanitizeID keeps only characters safe for a flat filename stem. Returns
// an error when nothing survivable remains.
func sanitizeID(id string) (string, error) {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: id %q has no usable characters", ErrInvalidPath, id)
	}
	return b.String(), nil
}
