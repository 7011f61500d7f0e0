package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"pv-go/internal/livephoto"
	"pv-go/internal/manifest"
	"pv-go/internal/model"
	"pv-go/internal/vault"
)

// SyncStatus is the per-object outcome of a mirror sync.
type SyncStatus string

const (
	// SyncUploaded: the object was pushed to the backend.
	SyncUploaded SyncStatus = "uploaded"
	// SyncSkipped: the backend already had the object.
	SyncSkipped SyncStatus = "skipped"
	// SyncFailed: the object could not be read or uploaded. Err carries the cause.
	SyncFailed SyncStatus = "failed"
)

// SyncResult reports what happened to one object of a sync run.
type SyncResult struct {
	Key    string
	Status SyncStatus
	Size   int64
	Err    error
}

// Syncer pushes vault contents to a mirror backend. The object set comes
// from walking the manifests, never from listing the vault directories: a
// file on disk that no manifest references is not mirrored.
//
// Media files are immutable once written, so presence on the backend is
// enough to skip them. Manifests change with every mutation and are pushed
// on every run.
type Syncer struct {
	manifests vault.ManifestStore
	backend   Backend
	rootDir   string
	workers   int
	logger    vault.Logger
}

// NewSyncer creates a syncer over the vault rooted at rootDir.
func NewSyncer(manifests vault.ManifestStore, backend Backend, rootDir string, workers int, logger vault.Logger) *Syncer {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = vault.NewNopLogger()
	}
	return &Syncer{
		manifests: manifests,
		backend:   backend,
		rootDir:   rootDir,
		workers:   workers,
		logger:    logger,
	}
}

// object is one planned upload.
type object struct {
	key     string
	srcPath string // absolute source path; empty for re-encoded manifests
	data    []byte // manifest bytes when srcPath is empty
	size    int64
	refresh bool // upload even when the backend already has the key
}

// Sync walks both root trees and pushes every reachable object with a
// bounded worker pool. notify, when non-nil, is invoked as each object
// completes. Folders whose manifest cannot be read are reported as failed
// results and the run continues; the returned error covers only backend
// validation. Context cancellation fails objects that have not started yet.
func (s *Syncer) Sync(ctx context.Context, notify func(done, total int, res SyncResult)) ([]SyncResult, error) {
	if err := s.backend.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("validating mirror: %w", err)
	}

	objects, failures := s.plan()

	results := make([]SyncResult, len(objects))
	total := len(objects)
	done := 0
	var notifyMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, obj := range objects {
		i, obj := i, obj // per-iteration copies for the pre-1.22 toolchain
		g.Go(func() error {
			var res SyncResult
			if err := gctx.Err(); err != nil {
				res = SyncResult{Key: obj.key, Status: SyncFailed, Err: err}
			} else {
				res = s.push(gctx, obj)
			}
			results[i] = res
			if notify != nil {
				notifyMu.Lock()
				done++
				notify(done, total, res)
				notifyMu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	results = append(results, failures...)

	var uploaded, skipped, failed int
	for _, res := range results {
		switch res.Status {
		case SyncUploaded:
			uploaded++
		case SyncSkipped:
			skipped++
		case SyncFailed:
			failed++
		}
	}
	s.logger.Info("mirror sync finished", "uploaded", uploaded, "skipped", skipped, "failed", failed)

	return results, nil
}

// plan collects the object set for both root trees. Folders that cannot be
// read come back as failed results so one bad subtree does not stop the rest.
func (s *Syncer) plan() (objects []object, failures []SyncResult) {
	for _, kind := range []model.RootKind{model.PhotoRoot, model.FilesRoot} {
		s.planFolder(string(kind), &objects, &failures)
	}
	return objects, failures
}

// planFolder queues one folder's manifest, its files and its subtrees.
func (s *Syncer) planFolder(rel string, objects *[]object, failures *[]SyncResult) {
	key := rel + "/" + manifest.FileName

	folder, err := s.manifests.Read(rel)
	if err != nil {
		*failures = append(*failures, SyncResult{Key: key, Status: SyncFailed, Err: err})
		return
	}
	if folder == nil {
		*failures = append(*failures, SyncResult{Key: key, Status: SyncFailed, Err: fmt.Errorf("manifest missing for %s", rel)})
		return
	}

	data, err := manifest.Encode(folder)
	if err != nil {
		*failures = append(*failures, SyncResult{Key: key, Status: SyncFailed, Err: err})
	} else {
		*objects = append(*objects, object{key: key, data: data, size: int64(len(data)), refresh: true})
	}

	for i := range folder.Items {
		switch it := folder.Items[i]; {
		case it.File != nil:
			s.planFile(it.File, objects, failures)
		case it.Folder != nil:
			s.planFolder(it.Folder.RelPath(), objects, failures)
		}
	}
}

// planFile queues a file's backing objects: the file itself, or both bundle
// members for a live photo.
func (s *Syncer) planFile(f *model.File, objects *[]object, failures *[]SyncResult) {
	keys := []string{f.Path}
	if f.Type == model.TypeLivePhoto {
		keys = []string{
			f.Path + "/" + livephoto.KeyPhotoName,
			f.Path + "/" + livephoto.VideoName,
		}
	}

	for _, key := range keys {
		abs := filepath.Join(s.rootDir, filepath.FromSlash(key))
		info, err := os.Stat(abs)
		if err != nil {
			*failures = append(*failures, SyncResult{Key: key, Status: SyncFailed, Err: err})
			continue
		}
		*objects = append(*objects, object{key: key, srcPath: abs, size: info.Size()})
	}
}

// push uploads one object, skipping media the backend already holds.
func (s *Syncer) push(ctx context.Context, obj object) SyncResult {
	if !obj.refresh {
		ok, err := s.backend.Exists(ctx, obj.key)
		if err != nil {
			return SyncResult{Key: obj.key, Status: SyncFailed, Err: err}
		}
		if ok {
			return SyncResult{Key: obj.key, Status: SyncSkipped, Size: obj.size}
		}
	}

	var r io.Reader
	if obj.srcPath != "" {
		f, err := os.Open(obj.srcPath)
		if err != nil {
			return SyncResult{Key: obj.key, Status: SyncFailed, Err: err}
		}
		defer f.Close()
		r = f
	} else {
		r = bytes.NewReader(obj.data)
	}

	if err := s.backend.Put(ctx, obj.key, r, obj.size); err != nil {
		return SyncResult{Key: obj.key, Status: SyncFailed, Err: err}
	}
	return SyncResult{Key: obj.key, Status: SyncUploaded, Size: obj.size}
}
