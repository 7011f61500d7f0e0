package vault

import (
	"fmt"
	"os"

	"pv-go/internal/model"
)

// DeleteStatus is the per-item outcome of a batch file deletion.
type DeleteStatus string

const (
	DeleteRemoved DeleteStatus = "removed"
	DeleteFailed  DeleteStatus = "failed"
)

// DeleteResult reports what happened to one requested id.
type DeleteResult struct {
	ID     string
	Status DeleteStatus
	Err    error
}

// DeleteFiles removes the named entries from the folder at folderRel.
// Each item is unlinked first; only a successful unlink removes the entry
// from the manifest and decrements the counters, so a failed unlink leaves
// the record pointing at whatever is still on disk. A missing backing file
// is a failure, not a silent success.
func (s *Store) DeleteFiles(folderRel string, ids []string) ([]DeleteResult, error) {
	rel, err := cleanRel(folderRel)
	if err != nil {
		return nil, err
	}
	kind, err := rootKindOf(rel)
	if err != nil {
		return nil, err
	}

	unlock := s.lockRoot(kind)
	defer unlock()

	root := s.roots[kind]
	folderIsRoot := rel == string(kind)
	folder := root
	if !folderIsRoot {
		folder, err = s.manifests.Read(rel)
		if err != nil {
			return nil, err
		}
		if folder == nil {
			return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, rel)
		}
	}

	results := make([]DeleteResult, 0, len(ids))
	removed := 0
	for _, id := range ids {
		f := folder.FindFile(id)
		if f == nil {
			results = append(results, DeleteResult{ID: id, Status: DeleteFailed, Err: fmt.Errorf("no entry %q in %s", id, rel)})
			continue
		}
		if err := s.unlink(f); err != nil {
			results = append(results, DeleteResult{ID: id, Status: DeleteFailed, Err: err})
			continue
		}
		dropFile(folder, id)
		folder.FilesCount--
		removed++
		results = append(results, DeleteResult{ID: id, Status: DeleteRemoved})
	}

	if removed > 0 {
		if !folderIsRoot {
			if err := s.manifests.Write(rel, folder); err != nil {
				return results, err
			}
			root.FilesCount -= removed
		}
		if err := s.commitRoot(kind); err != nil {
			return results, err
		}
	}

	s.logger.Info("files deleted", "folder", rel, "removed", removed, "requested", len(ids))
	return results, nil
}

// unlink removes the backing file or bundle directory for an entry.
// A live photo occupies a directory; everything else is a flat file.
func (s *Store) unlink(f *model.File) error {
	abs := s.abs(f.Path)
	if f.Type == model.TypeLivePhoto {
		if _, err := os.Stat(abs); err != nil {
			return err
		}
		return os.RemoveAll(abs)
	}
	return os.Remove(abs)
}

func dropFile(folder *model.Folder, id string) {
	kept := folder.Items[:0]
	for _, it := range folder.Items {
		if it.File != nil && it.File.ID == id {
			continue
		}
		kept = append(kept, it)
	}
	folder.Items = kept
}
