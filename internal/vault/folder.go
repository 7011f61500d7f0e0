package vault

import (
	"fmt"
	"os"
	"path"
	"strings"

	"pv-go/internal/model"
)

// CreateFolder makes a real directory named name under the parent folder,
// records it in the parent's items and persists parent, child and root
// manifests. The root folder aggregate grows by exactly one regardless of
// nesting depth.
func (s *Store) CreateFolder(parentRel, name string) (*model.Folder, error) {
	rel, err := cleanRel(parentRel)
	if err != nil {
		return nil, err
	}
	kind, err := rootKindOf(rel)
	if err != nil {
		return nil, err
	}
	if err := validateFolderName(name); err != nil {
		return nil, err
	}

	unlock := s.lockRoot(kind)
	defer unlock()

	root := s.roots[kind]
	parentIsRoot := rel == string(kind)
	parent := root
	if !parentIsRoot {
		parent, err = s.manifests.Read(rel)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, rel)
		}
	}
	if parent.ChildFolder(name) != nil {
		return nil, fmt.Errorf("%w: %q already exists under %s", ErrDirectoryCreate, name, rel)
	}

	child := &model.Folder{
		Path:       rel,
		Name:       name,
		Timestamp:  s.clock.Now(),
		IsEditable: true,
	}
	if err := os.MkdirAll(s.abs(child.RelPath()), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryCreate, err)
	}
	if err := s.manifests.Write(child.RelPath(), child); err != nil {
		return nil, err
	}

	if parentIsRoot {
		root.Items = append(root.Items, model.FolderItem(child))
		root.FoldersCount++
	} else {
		parent.Items = append(parent.Items, model.FolderItem(child))
		parent.FoldersCount++
		if err := s.manifests.Write(rel, parent); err != nil {
			return nil, err
		}
		root.FoldersCount++
	}
	if err := s.commitRoot(kind); err != nil {
		return nil, err
	}

	s.logger.Info("folder created", "path", child.RelPath())
	return child.Clone(), nil
}

// DeleteFolder removes the folder's directory tree and detaches its record
// from the parent. Root aggregates shrink by the folder's recorded counters
// plus the folder itself; descendants are not recounted from disk.
//
// The two root records and the bootstrapped default folder are not
// editable and refuse deletion.
func (s *Store) DeleteFolder(relPath string) error {
	rel, err := cleanRel(relPath)
	if err != nil {
		return err
	}
	kind, err := rootKindOf(rel)
	if err != nil {
		return err
	}
	if rel == string(kind) {
		return fmt.Errorf("%w: cannot delete root %s", ErrPermissionDenied, rel)
	}

	unlock := s.lockRoot(kind)
	defer unlock()

	target, err := s.manifests.Read(rel)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("%w: %s", ErrFolderNotFound, rel)
	}
	if !target.IsEditable {
		return fmt.Errorf("%w: %s is not editable", ErrPermissionDenied, rel)
	}

	if err := os.RemoveAll(s.abs(rel)); err != nil {
		return fmt.Errorf("removing folder %s: %w", rel, err)
	}

	root := s.roots[kind]
	parentRel := path.Dir(rel)
	if parentRel == string(kind) {
		kept := root.Items[:0]
		for _, it := range root.Items {
			if it.Folder != nil && it.Folder.Name == target.Name {
				continue
			}
			kept = append(kept, it)
		}
		root.Items = kept
	} else {
		if err := s.manifests.RemoveChild(parentRel, target.Name); err != nil {
			return err
		}
	}
	root.FoldersCount -= 1 + target.FoldersCount
	root.FilesCount -= target.FilesCount
	if err := s.commitRoot(kind); err != nil {
		return err
	}

	s.logger.Info("folder deleted", "path", rel, "files", target.FilesCount, "folders", target.FoldersCount)
	return nil
}

// validateFolderName rejects names that cannot form a single path segment.
func validateFolderName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: folder name %q", ErrInvalidPath, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: folder name %q contains a path separator", ErrInvalidPath, name)
	}
	return nil
}
