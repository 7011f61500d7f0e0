package vault

import (
	"context"
	"fmt"

	"pv-go/internal/model"
)

// ExtractLivePhoto unpacks the live-photo entry with the given id from the
// folder at folderRel into destDir and returns the shared content
// identifier carried by both halves of the pair.
func (s *Store) ExtractLivePhoto(ctx context.Context, folderRel, id, destDir string) (string, error) {
	folder, err := s.ReadFolder(folderRel)
	if err != nil {
		return "", err
	}
	f := folder.FindFile(id)
	if f == nil {
		return "", fmt.Errorf("no entry %q in %s", id, folderRel)
	}
	if f.Type != model.TypeLivePhoto {
		return "", fmt.Errorf("entry %q is %s, not %s", id, f.Type, model.TypeLivePhoto)
	}
	if s.synth == nil {
		return "", fmt.Errorf("%w: no synthesizer configured", ErrLivePhotoGenerate)
	}
	ident, err := s.synth.Extract(ctx, s.abs(f.Path), destDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrLivePhotoGenerate, id, err)
	}
	return ident, nil
}
