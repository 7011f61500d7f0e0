package quicktime_test

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"pv-go/internal/quicktime"
	"pv-go/internal/testutil"
)

func TestMuxDemux_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mov")
	spec := testutil.DefaultMovieSpec()
	testutil.WriteMovie(t, path, spec)

	rd, err := quicktime.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rd.Close()
	mov := rd.Movie

	if mov.Timescale != 600 {
		t.Errorf("movie timescale = %d, want 600", mov.Timescale)
	}
	if len(mov.Tracks) != 2 {
		t.Fatalf("tracks = %d, want 2", len(mov.Tracks))
	}

	video := mov.TrackByHandler("vide")
	if video == nil {
		t.Fatal("no video track")
	}
	if video.Timescale != spec.Timescale {
		t.Errorf("video timescale = %d, want %d", video.Timescale, spec.Timescale)
	}
	if len(video.Samples) != spec.Frames {
		t.Fatalf("video samples = %d, want %d", len(video.Samples), spec.Frames)
	}
	if video.Format() != "jpeg" {
		t.Errorf("video format = %q, want jpeg", video.Format())
	}
	if video.Width != 320 || video.Height != 240 {
		t.Errorf("dimensions = %dx%d, want 320x240", video.Width, video.Height)
	}
	if video.Duration != uint64(spec.Frames)*uint64(spec.FrameDur) {
		t.Errorf("video duration = %d, want %d", video.Duration, spec.Frames*int(spec.FrameDur))
	}

	for i, s := range video.Samples {
		if s.Dur != spec.FrameDur {
			t.Fatalf("sample %d dur = %d, want %d", i, s.Dur, spec.FrameDur)
		}
		if want := uint64(i) * uint64(spec.FrameDur); s.DTS != want {
			t.Fatalf("sample %d dts = %d, want %d", i, s.DTS, want)
		}
		wantSync := i%spec.SyncEvery == 0
		if s.Sync != wantSync {
			t.Fatalf("sample %d sync = %v, want %v", i, s.Sync, wantSync)
		}
		data, err := rd.ReadSample(s)
		if err != nil {
			t.Fatalf("ReadSample(%d) error = %v", i, err)
		}
		if !bytes.Equal(data, testutil.FakeFrame(i)) {
			t.Fatalf("sample %d bytes differ from source", i)
		}
	}

	audio := mov.TrackByHandler("soun")
	if audio == nil {
		t.Fatal("no audio track")
	}
	if !audio.Audible {
		t.Error("audio track not audible")
	}
	if len(audio.Samples) != spec.AudioChunks {
		t.Fatalf("audio samples = %d, want %d", len(audio.Samples), spec.AudioChunks)
	}
	if audio.Format() != "sowt" {
		t.Errorf("audio format = %q, want sowt", audio.Format())
	}
	for i, s := range audio.Samples {
		data, err := rd.ReadSample(s)
		if err != nil {
			t.Fatalf("audio ReadSample(%d) error = %v", i, err)
		}
		if len(data) != 64 || data[0] != byte(i) {
			t.Fatalf("audio sample %d content mismatch", i)
		}
	}
}

func TestContentIdentifier_RoundTrip(t *testing.T) {
	t.Run("written identifier is read back", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ident.mov")
		spec := testutil.DefaultMovieSpec()
		spec.Identifier = "89A03B45-1C1A-4F4E-8D8D-1D6E87A12345"
		testutil.WriteMovie(t, path, spec)

		rd, err := quicktime.Open(path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer rd.Close()

		got, err := quicktime.ReadContentIdentifier(rd.File())
		if err != nil {
			t.Fatalf("ReadContentIdentifier() error = %v", err)
		}
		if got != spec.Identifier {
			t.Errorf("identifier = %q, want %q", got, spec.Identifier)
		}
	})

	t.Run("movie without metadata reads empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain.mov")
		testutil.WriteMovie(t, path, testutil.DefaultMovieSpec())

		rd, err := quicktime.Open(path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer rd.Close()

		got, err := quicktime.ReadContentIdentifier(rd.File())
		if err != nil {
			t.Fatalf("ReadContentIdentifier() error = %v", err)
		}
		if got != "" {
			t.Errorf("identifier = %q, want empty", got)
		}
	})
}

func TestStillTime_RoundTrip(t *testing.T) {
	t.Run("marker track places the still", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "marked.mov")
		spec := testutil.DefaultMovieSpec()
		spec.StillTime = 0.25
		testutil.WriteMovie(t, path, spec)

		rd, err := quicktime.Open(path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer rd.Close()

		sec, ok, err := quicktime.StillTime(rd.Movie, rd)
		if err != nil {
			t.Fatalf("StillTime() error = %v", err)
		}
		if !ok {
			t.Fatal("StillTime() found no marker")
		}
		if math.Abs(sec-0.25) > 1e-9 {
			t.Errorf("still time = %v, want 0.25", sec)
		}

		marker := rd.Movie.TrackByHandler("meta")
		if marker == nil {
			t.Fatal("no metadata track")
		}
		if len(marker.Edits) != 2 {
			t.Fatalf("marker edits = %d, want 2", len(marker.Edits))
		}
		if marker.Edits[0].MediaTime != -1 {
			t.Errorf("first edit media time = %d, want -1 (empty edit)", marker.Edits[0].MediaTime)
		}
	})

	t.Run("movie without marker reports none", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain.mov")
		testutil.WriteMovie(t, path, testutil.DefaultMovieSpec())

		rd, err := quicktime.Open(path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer rd.Close()

		_, ok, err := quicktime.StillTime(rd.Movie, rd)
		if err != nil {
			t.Fatalf("StillTime() error = %v", err)
		}
		if ok {
			t.Error("StillTime() found a marker in a plain movie")
		}
	})
}

func TestTrack_Positioning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mov")
	spec := testutil.DefaultMovieSpec()
	testutil.WriteMovie(t, path, spec)

	rd, err := quicktime.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rd.Close()
	video := rd.Movie.TrackByHandler("vide")

	cases := []struct {
		ts   uint64
		want int
	}{
		{0, 0},
		{19, 0},
		{20, 1},
		{150, 7},
		{10000, spec.Frames - 1}, // past the end clamps
	}
	for _, tc := range cases {
		if got := video.SampleAt(tc.ts); got != tc.want {
			t.Errorf("SampleAt(%d) = %d, want %d", tc.ts, got, tc.want)
		}
	}

	// Sync samples sit at 0, 5, 10.
	if got := video.NearestSyncBefore(7); got != 5 {
		t.Errorf("NearestSyncBefore(7) = %d, want 5", got)
	}
	if got := video.NearestSyncBefore(4); got != 0 {
		t.Errorf("NearestSyncBefore(4) = %d, want 0", got)
	}
	if got := video.NearestSyncBefore(10); got != 10 {
		t.Errorf("NearestSyncBefore(10) = %d, want 10", got)
	}
}

func TestMuxer_StateErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mov")
	mux, err := quicktime.CreateMuxer(path)
	if err != nil {
		t.Fatalf("CreateMuxer() error = %v", err)
	}
	defer mux.Close()

	track := mux.AddTrack(quicktime.TrackConfig{Handler: "vide", Timescale: 600, SyncAll: true})
	if err := track.WriteSample([]byte("x"), 1, true, 0); err == nil {
		t.Error("WriteSample before BeginData succeeded, want error")
	}
	if err := mux.FinishData(); err == nil {
		t.Error("FinishData before BeginData succeeded, want error")
	}
	if err := mux.BeginData(); err != nil {
		t.Fatalf("BeginData() error = %v", err)
	}
	if err := mux.BeginData(); err == nil {
		t.Error("second BeginData succeeded, want error")
	}
}
