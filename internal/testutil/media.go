package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"pv-go/internal/quicktime"
)

// MovieSpec describes a synthetic QuickTime fixture. Video samples are
// fake MJPEG frames (each begins with the JPEG SOI marker), so frame
// extraction has something real to find.
type MovieSpec struct {
	Frames      int
	FrameDur    uint32 // in Timescale units
	Timescale   uint32
	SyncEvery   int // every Nth frame is a sync sample; 1 marks all
	AudioChunks int
	Identifier  string  // "" omits the movie metadata
	StillTime   float64 // seconds; < 0 omits the marker track
	Codec       string  // video sample description type; "" means jpeg
}

// DefaultMovieSpec is a half-second clip: 15 frames at 30fps with audio,
// no embedded metadata.
func DefaultMovieSpec() MovieSpec {
	return MovieSpec{
		Frames:      15,
		FrameDur:    20,
		Timescale:   600,
		SyncEvery:   5,
		AudioChunks: 4,
		Identifier:  "",
		StillTime:   -1,
	}
}

// FakeFrame builds a fake MJPEG sample. The frame index rides in a
// comment segment so samples stay distinguishable.
func FakeFrame(i int) []byte {
	return FakeJPEG(fmt.Sprintf("frame-%03d", i))
}

// FakeJPEG builds the smallest JPEG whose segment structure parses: SOI,
// comment, JFIF header, quantization and Huffman tables, a 1x1 grayscale
// scan, EOI.
func FakeJPEG(comment string) []byte {
	var b bytes.Buffer
	seg := func(marker byte, body []byte) {
		b.Write([]byte{0xFF, marker})
		binary.Write(&b, binary.BigEndian, uint16(2+len(body)))
		b.Write(body)
	}
	b.Write([]byte{0xFF, 0xD8}) // SOI
	seg(0xFE, []byte(comment))
	seg(0xE0, []byte{'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00})
	seg(0xDB, append([]byte{0x00}, bytes.Repeat([]byte{0x10}, 64)...))
	seg(0xC0, []byte{0x08, 0x00, 0x01, 0x00, 0x01, 0x01, 0x01, 0x11, 0x00})
	dht := append([]byte{0x00, 0x01}, bytes.Repeat([]byte{0x00}, 15)...)
	seg(0xC4, append(dht, 0x00))
	seg(0xDA, []byte{0x01, 0x01, 0x00, 0x00, 0x3F, 0x00})
	b.Write([]byte{0x7F, 0x00})
	b.Write([]byte{0xFF, 0xD9}) // EOI
	return b.Bytes()
}

// WriteMovie writes a QuickTime fixture to path.
func WriteMovie(t *testing.T, path string, spec MovieSpec) {
	t.Helper()

	mux, err := quicktime.CreateMuxer(path)
	if err != nil {
		t.Fatalf("CreateMuxer: %v", err)
	}
	codec := spec.Codec
	if codec == "" {
		codec = "jpeg"
	}
	video := mux.AddTrack(quicktime.TrackConfig{
		Handler:   "vide",
		Name:      "Core Media Video",
		Timescale: spec.Timescale,
		Width:     320,
		Height:    240,
		Stsd:      videoStsd(codec, 320, 240),
		SyncAll:   spec.SyncEvery <= 1,
	})
	var audio *quicktime.TrackWriter
	if spec.AudioChunks > 0 {
		audio = mux.AddTrack(quicktime.TrackConfig{
			Handler:   "soun",
			Name:      "Core Media Audio",
			Timescale: 44100,
			Audible:   true,
			Stsd:      audioStsd(),
			SyncAll:   true,
		})
	}
	var marker *quicktime.TrackWriter
	if spec.StillTime >= 0 {
		stillMovieDur := uint64(spec.StillTime * 600)
		marker = mux.AddTrack(quicktime.TrackConfig{
			Handler:   "meta",
			Name:      "Core Media Metadata",
			Timescale: spec.Timescale,
			Stsd:      quicktime.BuildStillTimeStsd(),
			SyncAll:   true,
			Edits: []quicktime.Edit{
				{Duration: stillMovieDur, MediaTime: -1, Rate: 0x00010000},
				{Duration: uint64(spec.FrameDur), MediaTime: 0, Rate: 0x00010000},
			},
			DescribesTrack: video.ID(),
		})
	}

	if err := mux.BeginData(); err != nil {
		t.Fatalf("BeginData: %v", err)
	}
	for i := 0; i < spec.Frames; i++ {
		sync := spec.SyncEvery <= 1 || i%spec.SyncEvery == 0
		if err := video.WriteSample(FakeFrame(i), spec.FrameDur, sync, 0); err != nil {
			t.Fatalf("video sample %d: %v", i, err)
		}
	}
	for i := 0; i < spec.AudioChunks; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, 64)
		if err := audio.WriteSample(chunk, 11025, true, 0); err != nil {
			t.Fatalf("audio sample %d: %v", i, err)
		}
	}
	if marker != nil {
		if err := marker.WriteSample(quicktime.EncodeStillTimeSample(), spec.FrameDur, true, 0); err != nil {
			t.Fatalf("marker sample: %v", err)
		}
	}
	if err := mux.FinishData(); err != nil {
		t.Fatalf("FinishData: %v", err)
	}

	var meta []byte
	if spec.Identifier != "" {
		meta = quicktime.BuildMovieMeta(spec.Identifier)
	}
	if err := mux.WriteMovie(600, meta); err != nil {
		t.Fatalf("WriteMovie: %v", err)
	}
	if err := mux.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// videoStsd builds a minimal visual sample description.
func videoStsd(codec string, width, height uint16) []byte {
	var entry bytes.Buffer
	entry.WriteString(codec)
	entry.Write(make([]byte, 6)) // reserved
	be16(&entry, 1)              // data reference index
	be16(&entry, 0)              // version
	be16(&entry, 0)              // revision
	entry.Write(make([]byte, 12))
	be16(&entry, width)
	be16(&entry, height)
	be32(&entry, 0x00480000) // 72dpi
	be32(&entry, 0x00480000)
	be32(&entry, 0)
	be16(&entry, 1) // frames per sample
	entry.Write(make([]byte, 32))
	be16(&entry, 24)     // depth
	be16(&entry, 0xFFFF) // no color table
	return wrapStsd(entry.Bytes())
}

// audioStsd builds a minimal uncompressed audio sample description.
func audioStsd() []byte {
	var entry bytes.Buffer
	entry.Write([]byte("sowt"))
	entry.Write(make([]byte, 6))
	be16(&entry, 1) // data reference index
	be16(&entry, 0) // version
	be16(&entry, 0)
	be32(&entry, 0)
	be16(&entry, 1)  // channels
	be16(&entry, 16) // bits
	be16(&entry, 0)
	be16(&entry, 0)
	be32(&entry, 44100<<16)
	return wrapStsd(entry.Bytes())
}

// wrapStsd wraps one sample entry in size headers and the stsd full box.
func wrapStsd(entry []byte) []byte {
	var inner bytes.Buffer
	be32(&inner, uint32(8+len(entry)))
	inner.Write(entry)

	var out bytes.Buffer
	be32(&out, uint32(16+inner.Len()))
	out.Write([]byte("stsd"))
	be32(&out, 0) // version and flags
	be32(&out, 1) // entry count
	out.Write(inner.Bytes())
	return out.Bytes()
}

func be16(b *bytes.Buffer, v uint16) {
	var t [2]byte
	binary.BigEndian.PutUint16(t[:], v)
	b.Write(t[:])
}

func be32(b *bytes.Buffer, v uint32) {
	var t [4]byte
	binary.BigEndian.PutUint32(t[:], v)
	b.Write(t[:])
}
