package livephoto

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"pv-go/internal/quicktime"
)

// Generate builds a live-photo bundle in destDir from a video clip and an
// optional still image. With no still supplied, a frame is lifted from the
// clip at the embedded still-image-time marker, or at the midpoint when
// the source carries none. Both outputs embed the same correlation
// identifier. progress is called after every copied video frame; it may
// be nil.
func (g *Generator) Generate(ctx context.Context, stillPath, videoPath, destDir string, progress func(done, total int)) (*Pair, error) {
	rd, err := quicktime.Open(videoPath)
	if err != nil {
		return nil, fmt.Errorf("opening video: %w", err)
	}
	defer rd.Close()

	video := rd.Movie.TrackByHandler("vide")
	if video == nil || len(video.Samples) == 0 {
		return nil, fmt.Errorf("%s has no video track", videoPath)
	}

	stillTime, err := deriveStillTime(rd, video)
	if err != nil {
		return nil, err
	}
	still, err := g.loadStill(rd, video, stillPath, stillTime)
	if err != nil {
		return nil, err
	}

	identifier := strings.ToUpper(g.ids.New())
	tagged, err := TagStill(still, identifier)
	if err != nil {
		return nil, fmt.Errorf("tagging still: %w", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	photoPath := filepath.Join(destDir, KeyPhotoName)
	if err := os.WriteFile(photoPath, tagged, 0o644); err != nil {
		return nil, fmt.Errorf("writing still: %w", err)
	}

	videoOut := filepath.Join(destDir, VideoName)
	if err := g.remux(ctx, rd, video, identifier, stillTime, videoOut, progress); err != nil {
		return nil, err
	}

	g.logger.Info("live photo generated",
		"identifier", identifier, "stillTime", stillTime, "bundle", destDir)
	return &Pair{
		PhotoPath:  photoPath,
		VideoPath:  videoOut,
		Identifier: identifier,
		StillTime:  stillTime,
	}, nil
}

// deriveStillTime prefers the marker embedded in the source and falls
// back to the midpoint of the clip.
func deriveStillTime(rd *quicktime.Reader, video *quicktime.Track) (float64, error) {
	marked, ok, err := quicktime.StillTime(rd.Movie, rd)
	if err != nil {
		return 0, fmt.Errorf("reading still-image-time: %w", err)
	}
	if ok {
		return marked, nil
	}
	return float64(video.Duration) / float64(video.Timescale) / 2, nil
}

// loadStill returns the JPEG bytes for the key photo: the supplied file
// when there is one, otherwise the sync frame nearest the still time.
// Lifting frames only works for MJPEG sources, where every sample already
// is a complete JPEG.
func (g *Generator) loadStill(rd *quicktime.Reader, video *quicktime.Track, stillPath string, stillTime float64) ([]byte, error) {
	if stillPath != "" {
		data, err := os.ReadFile(stillPath)
		if err != nil {
			return nil, fmt.Errorf("reading still: %w", err)
		}
		return data, nil
	}
	if f := video.Format(); f != "jpeg" {
		return nil, fmt.Errorf("cannot lift a frame from codec %q, supply a still image", f)
	}
	idx := video.NearestSyncBefore(video.SampleAt(uint64(stillTime * float64(video.Timescale))))
	data, err := rd.ReadSample(video.Samples[idx])
	if err != nil {
		return nil, fmt.Errorf("reading frame %d: %w", idx, err)
	}
	g.logger.Debug("frame lifted", "index", idx, "stillTime", stillTime)
	return data, nil
}

// remux rewrites the clip with the correlation metadata attached: a
// movie-level content identifier plus a timed-metadata track marking the
// key frame. Video and audio are copied by two independent pull loops;
// either one failing cancels the other.
func (g *Generator) remux(ctx context.Context, rd *quicktime.Reader, video *quicktime.Track, identifier string, stillTime float64, outPath string, progress func(done, total int)) error {
	mux, err := quicktime.CreateMuxer(outPath)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	success := false
	defer func() {
		if !success {
			mux.Close()
			os.Remove(outPath)
		}
	}()

	vw := mux.AddTrack(quicktime.TrackConfig{
		Handler:   "vide",
		Name:      "Core Media Video",
		Timescale: video.Timescale,
		Width:     video.Width,
		Height:    video.Height,
		Stsd:      video.Stsd,
		SyncAll:   !video.HasSync,
	})

	audio := rd.Movie.TrackByHandler("soun")
	var aw *quicktime.TrackWriter
	if audio != nil {
		aw = mux.AddTrack(quicktime.TrackConfig{
			Handler:   "soun",
			Name:      "Core Media Audio",
			Timescale: audio.Timescale,
			Audible:   true,
			Stsd:      audio.Stsd,
			SyncAll:   !audio.HasSync,
		})
	}

	movieTS := rd.Movie.Timescale
	frameDur := video.Samples[0].Dur
	mw := mux.AddTrack(quicktime.TrackConfig{
		Handler:   "meta",
		Name:      "Core Media Metadata",
		Timescale: video.Timescale,
		Stsd:      quicktime.BuildStillTimeStsd(),
		SyncAll:   true,
		Edits: []quicktime.Edit{
			{Duration: uint64(stillTime * float64(movieTS)), MediaTime: -1, Rate: 0x00010000},
			{Duration: uint64(frameDur) * uint64(movieTS) / uint64(video.Timescale), MediaTime: 0, Rate: 0x00010000},
		},
		DescribesTrack: vw.ID(),
	})

	if err := mux.BeginData(); err != nil {
		return err
	}

	total := len(video.Samples)
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		for i, s := range video.Samples {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := rd.ReadSample(s)
			if err != nil {
				return fmt.Errorf("video sample %d: %w", i, err)
			}
			if err := vw.WriteSample(data, s.Dur, s.Sync, s.CTS); err != nil {
				return fmt.Errorf("video sample %d: %w", i, err)
			}
			if progress != nil {
				progress(i+1, total)
			}
		}
		return nil
	})
	if aw != nil {
		grp.Go(func() error {
			for i, s := range audio.Samples {
				if err := gctx.Err(); err != nil {
					return err
				}
				data, err := rd.ReadSample(s)
				if err != nil {
					return fmt.Errorf("audio sample %d: %w", i, err)
				}
				if err := aw.WriteSample(data, s.Dur, s.Sync, s.CTS); err != nil {
					return fmt.Errorf("audio sample %d: %w", i, err)
				}
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}

	if err := mw.WriteSample(quicktime.EncodeStillTimeSample(), frameDur, true, 0); err != nil {
		return fmt.Errorf("marker sample: %w", err)
	}
	if err := mux.FinishData(); err != nil {
		return err
	}
	if err := mux.WriteMovie(movieTS, quicktime.BuildMovieMeta(identifier)); err != nil {
		return fmt.Errorf("writing movie header: %w", err)
	}
	if err := mux.Close(); err != nil {
		return err
	}
	success = true
	return nil
}
