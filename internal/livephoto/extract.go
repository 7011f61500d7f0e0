package livephoto

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"pv-go/internal/quicktime"
)

// ExtractResources unpacks a live-photo bundle into destDir under the
// canonical member names and verifies both halves carry the same
// correlation identifier.
func (g *Generator) ExtractResources(ctx context.Context, bundleDir, destDir string) (*Resources, error) {
	photoSrc, videoSrc, err := classifyBundle(bundleDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}

	res := &Resources{
		PhotoPath: filepath.Join(destDir, KeyPhotoName),
		VideoPath: filepath.Join(destDir, VideoName),
	}
	var photoIdent, videoIdent string

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		if err := copyFile(photoSrc, res.PhotoPath); err != nil {
			return fmt.Errorf("copying still: %w", err)
		}
		data, err := os.ReadFile(res.PhotoPath)
		if err != nil {
			return err
		}
		photoIdent, err = ReadStillIdentifier(data)
		if err != nil {
			return fmt.Errorf("reading still identifier: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		if err := copyFile(videoSrc, res.VideoPath); err != nil {
			return fmt.Errorf("copying video: %w", err)
		}
		f, err := os.Open(res.VideoPath)
		if err != nil {
			return err
		}
		defer f.Close()
		videoIdent, err = quicktime.ReadContentIdentifier(f)
		if err != nil {
			return fmt.Errorf("reading video identifier: %w", err)
		}
		return nil
	})
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	if photoIdent == "" || videoIdent == "" {
		return nil, fmt.Errorf("bundle %s carries no content identifier", bundleDir)
	}
	if photoIdent != videoIdent {
		return nil, fmt.Errorf("identifier mismatch: still %q, video %q", photoIdent, videoIdent)
	}
	res.Identifier = videoIdent
	g.logger.Info("live photo unpacked", "identifier", res.Identifier, "dest", destDir)
	return res, nil
}

// classifyBundle locates the still and video members by extension.
func classifyBundle(bundleDir string) (photo, video string, err error) {
	entries, err := os.ReadDir(bundleDir)
	if err != nil {
		return "", "", fmt.Errorf("reading bundle: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(bundleDir, e.Name())
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".heic":
			if photo == "" {
				photo = p
			}
		case ".mov", ".mp4", ".m4v":
			if video == "" {
				video = p
			}
		}
	}
	if photo == "" || video == "" {
		return "", "", fmt.Errorf("bundle %s is incomplete: needs one still and one video", bundleDir)
	}
	return photo, video, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
