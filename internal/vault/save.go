package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"pv-go/internal/model"
)

// SaveStatus is the per-item outcome of a batch save.
type SaveStatus string

const (
	// StatusCreated: the backing file was materialized and the entry was
	// committed to the folder manifest.
	StatusCreated SaveStatus = "created"
	// StatusExists: the destination already existed; filesystem and
	// manifest are unchanged for this item.
	StatusExists SaveStatus = "exists"
	// StatusFailed: materialization failed; the manifest is unchanged for
	// this item. Err carries the cause.
	StatusFailed SaveStatus = "failed"
)

// SaveResult reports what happened to one payload of a batch.
type SaveResult struct {
	Name   string
	Status SaveStatus
	File   *model.File // set when Status == StatusCreated
	Err    error       // set when Status == StatusFailed
}

// SaveItems materializes a batch of payloads into the folder at folderRel.
// Items are written concurrently with a bounded worker pool; the folder and
// root manifests are committed once, after every item has finished. The
// returned slice has one result per payload, in payload order.
//
// notify, when non-nil, is invoked from worker goroutines as each item
// completes.
//
// Counters grow only by the number of StatusCreated items. A payload whose
// destination already exists reports StatusExists and changes nothing.
// Context cancellation fails items that have not started yet; items already
// in flight run to completion.
func (s *Store) SaveItems(ctx context.Context, folderRel string, payloads []model.Payload, notify func(SaveResult)) ([]SaveResult, error) {
	rel, err := cleanRel(folderRel)
	if err != nil {
		return nil, err
	}
	kind, err := rootKindOf(rel)
	if err != nil {
		return nil, err
	}
	if _, err := s.ReadFolder(rel); err != nil {
		return nil, err
	}

	results := make([]SaveResult, len(payloads))
	var notifyMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, p := range payloads {
		i, p := i, p // per-iteration copies for the pre-1.22 toolchain
		g.Go(func() error {
			var res SaveResult
			if err := gctx.Err(); err != nil {
				res = SaveResult{Name: p.DisplayName(), Status: StatusFailed, Err: err}
			} else {
				res = s.materialize(gctx, rel, p)
			}
			results[i] = res
			if notify != nil {
				notifyMu.Lock()
				notify(res)
				notifyMu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if err := s.commitSaved(kind, rel, results); err != nil {
		return results, err
	}
	return results, nil
}

// materialize writes one payload's backing file under the folder directory
// and returns its outcome. Runs outside the root lock.
func (s *Store) materialize(ctx context.Context, folderRel string, p model.Payload) SaveResult {
	name := p.DisplayName()
	id, err := sanitizeID(s.idgen.New())
	if err != nil {
		return SaveResult{Name: name, Status: StatusFailed, Err: err}
	}

	switch v := p.(type) {
	case model.PhotoData:
		destRel := folderRel + "/" + id + "." + model.TypeImage.Extension()
		created, err := s.writeMedia(destRel, bytes.NewReader(v.Data))
		if err != nil {
			return SaveResult{Name: name, Status: StatusFailed, Err: fmt.Errorf("%w: %s: %v", ErrFileSave, name, err)}
		}
		if !created {
			return SaveResult{Name: name, Status: StatusExists}
		}
		return SaveResult{Name: name, Status: StatusCreated, File: s.newFile(id, model.TypeImage, destRel, name)}

	case model.FileSource:
		destRel := folderRel + "/" + id + "." + v.Type.Extension()
		src, err := os.Open(v.SourcePath)
		if err != nil {
			return SaveResult{Name: name, Status: StatusFailed, Err: fmt.Errorf("%w: %s: %v", ErrFileSave, name, err)}
		}
		defer src.Close()
		created, err := s.writeMedia(destRel, src)
		if err != nil {
			return SaveResult{Name: name, Status: StatusFailed, Err: fmt.Errorf("%w: %s: %v", ErrFileSave, name, err)}
		}
		if !created {
			return SaveResult{Name: name, Status: StatusExists}
		}
		return SaveResult{Name: name, Status: StatusCreated, File: s.newFile(id, v.Type, destRel, name)}

	case model.LivePhotoSource:
		bundleRel := folderRel + "/" + id
		bundleAbs := s.abs(bundleRel)
		if _, err := os.Stat(bundleAbs); err == nil {
			return SaveResult{Name: name, Status: StatusExists}
		}
		if s.synth == nil {
			return SaveResult{Name: name, Status: StatusFailed, Err: fmt.Errorf("%w: no synthesizer configured", ErrLivePhotoGenerate)}
		}
		if err := os.MkdirAll(bundleAbs, 0o755); err != nil {
			return SaveResult{Name: name, Status: StatusFailed, Err: fmt.Errorf("%w: %v", ErrDirectoryCreate, err)}
		}
		if _, err := s.synth.Make(ctx, v.PhotoPath, v.VideoPath, bundleAbs, nil); err != nil {
			os.RemoveAll(bundleAbs)
			return SaveResult{Name: name, Status: StatusFailed, Err: fmt.Errorf("%w: %s: %v", ErrLivePhotoGenerate, name, err)}
		}
		return SaveResult{Name: name, Status: StatusCreated, File: s.newFile(id, model.TypeLivePhoto, bundleRel, name)}

	default:
		return SaveResult{Name: name, Status: StatusFailed, Err: fmt.Errorf("%w: unsupported payload %T", ErrFileSave, p)}
	}
}

func (s *Store) newFile(id string, t model.FileType, destRel, name string) *model.File {
	return &model.File{
		ID:        id,
		Type:      t,
		Path:      destRel,
		Name:      name,
		Timestamp: s.clock.Now(),
	}
}

// writeMedia streams src into destRel through a same-directory temp file
// and a rename. Returns created=false without writing when the destination
// already exists. Content passes through the encryptor when one is
// configured.
func (s *Store) writeMedia(destRel string, src io.Reader) (bool, error) {
	dest := s.abs(destRel)
	if _, err := os.Stat(dest); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".pv-*")
	if err != nil {
		return false, err
	}
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmp.Name())
		}
	}()

	if s.cipher != nil {
		err = s.cipher.Encrypt(src, tmp)
	} else {
		_, err = io.Copy(tmp, src)
	}
	if err != nil {
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return false, err
	}
	success = true
	return true, nil
}

// commitSaved applies a batch's created items to the folder record and the
// root aggregates in one locked pass, then persists both manifests and
// re-reads the root.
func (s *Store) commitSaved(kind model.RootKind, rel string, results []SaveResult) error {
	var created []*model.File
	for _, r := range results {
		if r.Status == StatusCreated {
			created = append(created, r.File)
		}
	}
	if len(created) == 0 {
		return nil
	}

	unlock := s.lockRoot(kind)
	defer unlock()

	root := s.roots[kind]
	folderIsRoot := rel == string(kind)
	folder := root
	if !folderIsRoot {
		var err error
		folder, err = s.manifests.Read(rel)
		if err != nil {
			return err
		}
		if folder == nil {
			return fmt.Errorf("%w: %s", ErrFolderNotFound, rel)
		}
	}

	for _, f := range created {
		folder.Items = append(folder.Items, model.FileItem(f))
		folder.FilesCount++
		if folder.ThumbnailPath == "" {
			folder.ThumbnailPath = f.Path
		}
	}
	if !folderIsRoot {
		if err := s.manifests.Write(rel, folder); err != nil {
			return err
		}
		root.FilesCount += len(created)
	}
	if err := s.commitRoot(kind); err != nil {
		return err
	}

	s.logger.Info("batch committed", "folder", rel, "created", len(created), "total", len(results))
	return nil
}
