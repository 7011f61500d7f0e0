package vault

import (
	"errors"
	"os"

	"pv-go/internal/model"
)

// IssueKind classifies a finding of the integrity walk.
type IssueKind string

const (
	IssueCorruptManifest IssueKind = "corrupt_manifest"
	IssueMissingManifest IssueKind = "missing_manifest"
	IssueMissingFile     IssueKind = "missing_file"
)

// Issue is one finding of the integrity walk.
type Issue struct {
	Path   string
	Kind   IssueKind
	Detail string
}

// Verify walks both root trees through their manifests and reports every
// folder whose sidecar is corrupt or missing and every entry whose backing
// file is gone. A corrupt manifest ends descent into that subtree; the walk
// itself only fails on I/O errors other than corruption.
func (s *Store) Verify() ([]Issue, error) {
	var issues []Issue
	for _, kind := range []model.RootKind{model.PhotoRoot, model.FilesRoot} {
		unlock := s.lockRoot(kind)
		root := s.roots[kind].Clone()
		unlock()
		if err := s.verifyFolder(root, &issues); err != nil {
			return issues, err
		}
	}
	return issues, nil
}

func (s *Store) verifyFolder(f *model.Folder, issues *[]Issue) error {
	for _, it := range f.Items {
		switch {
		case it.File != nil:
			if _, err := os.Stat(s.abs(it.File.Path)); err != nil {
				*issues = append(*issues, Issue{Path: it.File.Path, Kind: IssueMissingFile, Detail: it.File.Name})
			}
		case it.Folder != nil:
			childRel := it.Folder.RelPath()
			child, err := s.manifests.Read(childRel)
			switch {
			case errors.Is(err, ErrCorrupt):
				*issues = append(*issues, Issue{Path: childRel, Kind: IssueCorruptManifest, Detail: err.Error()})
			case err != nil:
				return err
			case child == nil:
				*issues = append(*issues, Issue{Path: childRel, Kind: IssueMissingManifest})
			default:
				if err := s.verifyFolder(child, issues); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
