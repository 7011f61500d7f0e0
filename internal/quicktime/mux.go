package quicktime

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
)

// Muxer writes a QuickTime container: ftyp, a streamed mdat whose size is
// patched once the last sample landed, and a trailing moov with absolute
// chunk offsets (one chunk per sample). Tracks are registered up front;
// samples may arrive interleaved from concurrent writers.
type Muxer struct {
	f      *os.File
	mu     sync.Mutex
	pos    int64
	tracks []*TrackWriter

	mdatStart int64
	inData    bool
}

// TrackConfig describes one output track. Stsd is a complete sample
// description box copied verbatim, so the codec configuration of the
// source survives the rewrite.
type TrackConfig struct {
	Handler   string
	Name      string
	Timescale uint32
	Width     uint16
	Height    uint16
	Audible   bool
	Stsd      []byte
	// SyncAll marks every sample as a sync point (no stss written).
	SyncAll bool
	Edits   []Edit
	// DescribesTrack emits a tref/cdsc reference to the given track id.
	DescribesTrack uint32
}

// TrackWriter accumulates the samples of one track.
type TrackWriter struct {
	m       *Muxer
	id      uint32
	cfg     TrackConfig
	samples []sampleRef
}

type sampleRef struct {
	offset int64
	size   uint32
	dur    uint32
	cts    int32
	sync   bool
}

// CreateMuxer creates the output file and writes the ftyp box.
func CreateMuxer(path string) (*Muxer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	m := &Muxer{f: f}

	b := &boxBuffer{}
	b.box("ftyp", func(b *boxBuffer) {
		b.fourcc("qt  ")
		b.u32(0x00000200)
		b.fourcc("qt  ")
	})
	if err := m.write(b.Bytes()); err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

// AddTrack registers a track. Track ids are assigned in registration
// order, starting at 1. Must be called before WriteMovie.
func (m *Muxer) AddTrack(cfg TrackConfig) *TrackWriter {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &TrackWriter{m: m, id: uint32(len(m.tracks) + 1), cfg: cfg}
	m.tracks = append(m.tracks, t)
	return t
}

// ID returns the track id assigned at registration.
func (t *TrackWriter) ID() uint32 { return t.id }

// BeginData opens the mdat box. Samples written afterwards stream
// directly into the file.
func (m *Muxer) BeginData() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inData {
		return errors.New("mdat already open")
	}
	m.mdatStart = m.pos
	var hdr [8]byte
	copy(hdr[4:], "mdat")
	if err := m.write(hdr[:]); err != nil {
		return err
	}
	m.inData = true
	return nil
}

// WriteSample appends one sample to the open mdat and records its
// position in the track's tables. Safe for concurrent use across tracks.
func (t *TrackWriter) WriteSample(data []byte, dur uint32, sync bool, cts int32) error {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inData {
		return errors.New("mdat not open")
	}
	ref := sampleRef{offset: m.pos, size: uint32(len(data)), dur: dur, cts: cts, sync: sync}
	if err := m.write(data); err != nil {
		return err
	}
	t.samples = append(t.samples, ref)
	return nil
}

// FinishData closes the mdat box by patching its size field.
func (m *Muxer) FinishData() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inData {
		return errors.New("mdat not open")
	}
	size := m.pos - m.mdatStart
	if size > math.MaxUint32 {
		return fmt.Errorf("mdat size %d exceeds 32-bit box size", size)
	}
	var sz [4]byte
	binary.BigEndian.PutUint32(sz[:], uint32(size))
	if _, err := m.f.WriteAt(sz[:], m.mdatStart); err != nil {
		return err
	}
	m.inData = false
	return nil
}

// WriteMovie assembles and appends the moov box. metaBox, when non-nil,
// is a complete movie-level meta box appended after the tracks.
func (m *Muxer) WriteMovie(movieTimescale uint32, metaBox []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inData {
		return errors.New("mdat still open")
	}
	for _, t := range m.tracks {
		for _, s := range t.samples {
			if s.offset > math.MaxUint32 {
				return fmt.Errorf("chunk offset %d exceeds stco range", s.offset)
			}
		}
	}

	var movieDur uint64
	for _, t := range m.tracks {
		d := scaleDuration(t.totalDuration(), t.cfg.Timescale, movieTimescale)
		d += t.emptyEditDuration()
		if d > movieDur {
			movieDur = d
		}
	}

	b := &boxBuffer{}
	b.box("moov", func(b *boxBuffer) {
		b.full("mvhd", 0, 0, func(b *boxBuffer) {
			b.u32(0) // creation
			b.u32(0) // modification
			b.u32(movieTimescale)
			b.u32(uint32(movieDur))
			b.i32(0x00010000) // rate
			b.i16(0x0100)     // volume
			b.zero(2 + 8)
			b.matrix()
			b.zero(24) // pre_defined
			b.u32(uint32(len(m.tracks) + 1))
		})
		for _, t := range m.tracks {
			t.buildTrak(b, movieTimescale)
		}
		if metaBox != nil {
			b.raw(metaBox)
		}
	})
	return m.write(b.Bytes())
}

// Close closes the output file.
func (m *Muxer) Close() error {
	return m.f.Close()
}

func (m *Muxer) write(data []byte) error {
	n, err := m.f.Write(data)
	m.pos += int64(n)
	return err
}

func (t *TrackWriter) totalDuration() uint64 {
	var d uint64
	for _, s := range t.samples {
		d += uint64(s.dur)
	}
	return d
}

// emptyEditDuration returns the movie-timescale length of leading empty
// edits, which extend the track's presentation span.
func (t *TrackWriter) emptyEditDuration() uint64 {
	var d uint64
	for _, e := range t.cfg.Edits {
		if e.MediaTime == -1 {
			d += e.Duration
		}
	}
	return d
}

func (t *TrackWriter) buildTrak(b *boxBuffer, movieTimescale uint32) {
	trackDur := t.totalDuration()
	movieDur := scaleDuration(trackDur, t.cfg.Timescale, movieTimescale) + t.emptyEditDuration()

	b.box("trak", func(b *boxBuffer) {
		b.full("tkhd", 0, 0x3, func(b *boxBuffer) {
			b.u32(0) // creation
			b.u32(0) // modification
			b.u32(t.id)
			b.u32(0)
			b.u32(uint32(movieDur))
			b.zero(8)
			b.i16(0) // layer
			b.i16(0) // alternate group
			if t.cfg.Audible {
				b.i16(0x0100)
			} else {
				b.i16(0)
			}
			b.u16(0)
			b.matrix()
			b.u32(uint32(t.cfg.Width) << 16)
			b.u32(uint32(t.cfg.Height) << 16)
		})
		if t.cfg.DescribesTrack != 0 {
			b.box("tref", func(b *boxBuffer) {
				b.box("cdsc", func(b *boxBuffer) {
					b.u32(t.cfg.DescribesTrack)
				})
			})
		}
		if len(t.cfg.Edits) > 0 {
			b.box("edts", func(b *boxBuffer) {
				b.full("elst", 0, 0, func(b *boxBuffer) {
					b.u32(uint32(len(t.cfg.Edits)))
					for _, e := range t.cfg.Edits {
						b.u32(uint32(e.Duration))
						b.i32(int32(e.MediaTime))
						b.i32(e.Rate)
					}
				})
			})
		}
		b.box("mdia", func(b *boxBuffer) {
			b.full("mdhd", 0, 0, func(b *boxBuffer) {
				b.u32(0)
				b.u32(0)
				b.u32(t.cfg.Timescale)
				b.u32(uint32(trackDur))
				b.u16(0x55C4) // und
				b.u16(0)
			})
			b.full("hdlr", 0, 0, func(b *boxBuffer) {
				b.u32(0)
				b.fourcc(t.cfg.Handler)
				b.zero(12)
				b.raw([]byte(t.cfg.Name))
				b.u8(0)
			})
			b.box("minf", func(b *boxBuffer) {
				t.buildMediaHeader(b)
				b.box("dinf", func(b *boxBuffer) {
					b.full("dref", 0, 0, func(b *boxBuffer) {
						b.u32(1)
						b.full("url ", 0, 1, nil)
					})
				})
				b.box("stbl", func(b *boxBuffer) {
					b.raw(t.cfg.Stsd)
					t.buildTimeToSample(b)
					t.buildCompositionOffsets(b)
					t.buildSyncTable(b)
					b.full("stsc", 0, 0, func(b *boxBuffer) {
						b.u32(1)
						b.u32(1) // first chunk
						b.u32(1) // samples per chunk
						b.u32(1) // sample description
					})
					b.full("stsz", 0, 0, func(b *boxBuffer) {
						b.u32(0)
						b.u32(uint32(len(t.samples)))
						for _, s := range t.samples {
							b.u32(s.size)
						}
					})
					b.full("stco", 0, 0, func(b *boxBuffer) {
						b.u32(uint32(len(t.samples)))
						for _, s := range t.samples {
							b.u32(uint32(s.offset))
						}
					})
				})
			})
		})
	})
}

func (t *TrackWriter) buildMediaHeader(b *boxBuffer) {
	switch t.cfg.Handler {
	case "vide":
		b.full("vmhd", 0, 1, func(b *boxBuffer) {
			b.u16(0)   // graphics mode
			b.zero(6)  // opcolor
		})
	case "soun":
		b.full("smhd", 0, 0, func(b *boxBuffer) {
			b.i16(0) // balance
			b.u16(0)
		})
	default:
		b.full("nmhd", 0, 0, nil)
	}
}

func (t *TrackWriter) buildTimeToSample(b *boxBuffer) {
	type run struct {
		count uint32
		delta uint32
	}
	var runs []run
	for _, s := range t.samples {
		if n := len(runs); n > 0 && runs[n-1].delta == s.dur {
			runs[n-1].count++
			continue
		}
		runs = append(runs, run{count: 1, delta: s.dur})
	}
	b.full("stts", 0, 0, func(b *boxBuffer) {
		b.u32(uint32(len(runs)))
		for _, r := range runs {
			b.u32(r.count)
			b.u32(r.delta)
		}
	})
}

func (t *TrackWriter) buildCompositionOffsets(b *boxBuffer) {
	any := false
	for _, s := range t.samples {
		if s.cts != 0 {
			any = true
			break
		}
	}
	if !any {
		return
	}
	type run struct {
		count  uint32
		offset int32
	}
	var runs []run
	version := uint8(0)
	for _, s := range t.samples {
		if s.cts < 0 {
			version = 1
		}
		if n := len(runs); n > 0 && runs[n-1].offset == s.cts {
			runs[n-1].count++
			continue
		}
		runs = append(runs, run{count: 1, offset: s.cts})
	}
	b.full("ctts", version, 0, func(b *boxBuffer) {
		b.u32(uint32(len(runs)))
		for _, r := range runs {
			b.u32(r.count)
			b.i32(r.offset)
		}
	})
}

func (t *TrackWriter) buildSyncTable(b *boxBuffer) {
	if t.cfg.SyncAll {
		return
	}
	var syncs []uint32
	for i, s := range t.samples {
		if s.sync {
			syncs = append(syncs, uint32(i+1))
		}
	}
	b.full("stss", 0, 0, func(b *boxBuffer) {
		b.u32(uint32(len(syncs)))
		for _, n := range syncs {
			b.u32(n)
		}
	})
}

func scaleDuration(d uint64, from, to uint32) uint64 {
	if from == 0 {
		return 0
	}
	return d * uint64(to) / uint64(from)
}
