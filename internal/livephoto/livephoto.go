package livephoto

import (
	"context"

	"pv-go/internal/vault"
)

// Bundle member names. A live-photo entry in the vault is a directory
// holding exactly these two files.
const (
	KeyPhotoName = "keyPhoto.jpg"
	VideoName    = "video.mov"
)

// Pair is the result of one generation run.
type Pair struct {
	PhotoPath  string
	VideoPath  string
	Identifier string
	StillTime  float64 // seconds into the clip
}

// Resources is the result of unpacking a bundle.
type Resources struct {
	PhotoPath  string
	VideoPath  string
	Identifier string
}

// Generator synthesizes paired live-photo assets and unpacks them again.
type Generator struct {
	logger vault.Logger
	ids    vault.IDGenerator
}

var _ vault.Synthesizer = (*Generator)(nil)

func NewGenerator(logger vault.Logger, ids vault.IDGenerator) *Generator {
	if logger == nil {
		logger = vault.NewNopLogger()
	}
	if ids == nil {
		ids = vault.UUIDGenerator{}
	}
	return &Generator{logger: logger, ids: ids}
}

// Make implements vault.Synthesizer.
func (g *Generator) Make(ctx context.Context, stillPath, videoPath, bundleDir string, progress func(done, total int)) (string, error) {
	pair, err := g.Generate(ctx, stillPath, videoPath, bundleDir, progress)
	if err != nil {
		return "", err
	}
	return pair.Identifier, nil
}

// Extract implements vault.Synthesizer.
func (g *Generator) Extract(ctx context.Context, bundleDir, destDir string) (string, error) {
	res, err := g.ExtractResources(ctx, bundleDir, destDir)
	if err != nil {
		return "", err
	}
	return res.Identifier, nil
}

// CleanupTemporaries removes generation leftovers. Outputs are written
// straight into the destination bundle and failed runs leave their partial
// bundle for the caller to drop, so today there is nothing to collect.
func (g *Generator) CleanupTemporaries() error { return nil }
