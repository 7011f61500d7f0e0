package quicktime

import (
	"errors"
	"fmt"
	"io"
	"os"

	mp4 "github.com/abema/go-mp4"
)

// Movie is the parsed shape of a QuickTime/MP4 container: the movie header
// plus one entry per track with its sample tables flattened into absolute
// file positions.
type Movie struct {
	Timescale uint32
	Duration  uint64
	Tracks    []*Track
}

// Track carries everything needed to copy a track into a new container:
// identity and timing from tkhd/mdhd, the untouched sample description
// box, and the flattened sample list.
type Track struct {
	ID        uint32
	Handler   string
	Timescale uint32
	Duration  uint64
	Width     uint16
	Height    uint16
	Audible   bool
	Stsd      []byte
	Samples   []Sample
	HasSync   bool
	Edits     []Edit
}

// Sample locates one media sample in the source file. DTS is in track
// timescale units; CTS is the composition offset on top of it.
type Sample struct {
	Offset int64
	Size   uint32
	Dur    uint32
	DTS    uint64
	CTS    int32
	Sync   bool
}

// Edit is one elst entry. Duration is in movie timescale units, MediaTime
// in track units; MediaTime -1 marks an empty edit.
type Edit struct {
	Duration  uint64
	MediaTime int64
	Rate      int32
}

// Reader is an open movie file plus its parsed structure.
type Reader struct {
	Movie *Movie
	f     *os.File
}

// Open parses the container structure of the movie at path. Sample data
// stays on disk; ReadSample fetches it on demand.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	mov, err := ReadMovie(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &Reader{Movie: mov, f: f}, nil
}

// ReadSample returns the raw bytes of one sample. Reads are positioned,
// so concurrent pull loops can share one Reader.
func (r *Reader) ReadSample(s Sample) ([]byte, error) {
	buf := make([]byte, s.Size)
	if _, err := r.f.ReadAt(buf, s.Offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// File exposes the underlying handle for box-level reads.
func (r *Reader) File() *os.File { return r.f }

func (r *Reader) Close() error { return r.f.Close() }

// TrackByHandler returns the first track with the given handler type
// (vide, soun, meta), or nil.
func (m *Movie) TrackByHandler(handler string) *Track {
	for _, t := range m.Tracks {
		if t.Handler == handler {
			return t
		}
	}
	return nil
}

// Format returns the four-character format of the first sample description
// entry (jpeg, avc1, mp4a, mebx, ...).
func (t *Track) Format() string {
	// stsd layout: box header, version+flags, entry count, first entry
	// (size then format).
	if len(t.Stsd) < 24 {
		return ""
	}
	return string(t.Stsd[20:24])
}

// SampleAt returns the index of the sample whose decode window contains
// the given track-timescale position, clamped to the final sample.
func (t *Track) SampleAt(ts uint64) int {
	for i, s := range t.Samples {
		if ts < s.DTS+uint64(s.Dur) {
			return i
		}
	}
	return len(t.Samples) - 1
}

// NearestSyncBefore walks back from idx to the closest sync sample. With
// no sync table every sample is a sync point.
func (t *Track) NearestSyncBefore(idx int) int {
	if idx >= len(t.Samples) {
		idx = len(t.Samples) - 1
	}
	for i := idx; i > 0; i-- {
		if t.Samples[i].Sync {
			return i
		}
	}
	return 0
}

// ReadMovie parses the moov structure from r.
func ReadMovie(r io.ReadSeeker) (*Movie, error) {
	mvhds, err := mp4.ExtractBoxWithPayload(r, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeMvhd()})
	if err != nil {
		return nil, fmt.Errorf("reading mvhd: %w", err)
	}
	if len(mvhds) == 0 {
		return nil, errors.New("no movie header")
	}
	mvhd := mvhds[0].Payload.(*mp4.Mvhd)
	mov := &Movie{Timescale: mvhd.Timescale}
	if mvhd.GetVersion() == 0 {
		mov.Duration = uint64(mvhd.DurationV0)
	} else {
		mov.Duration = mvhd.DurationV1
	}

	traks, err := mp4.ExtractBox(r, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeTrak()})
	if err != nil {
		return nil, fmt.Errorf("reading trak boxes: %w", err)
	}
	if len(traks) == 0 {
		return nil, errors.New("no tracks")
	}
	for _, trak := range traks {
		t, err := readTrack(r, trak)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", len(mov.Tracks)+1, err)
		}
		mov.Tracks = append(mov.Tracks, t)
	}
	return mov, nil
}

func readTrack(r io.ReadSeeker, trak *mp4.BoxInfo) (*Track, error) {
	t := &Track{}

	tkhds, err := mp4.ExtractBoxWithPayload(r, trak, mp4.BoxPath{mp4.BoxTypeTkhd()})
	if err != nil || len(tkhds) == 0 {
		return nil, fmt.Errorf("reading tkhd: %w", errOr(err, "missing box"))
	}
	tkhd := tkhds[0].Payload.(*mp4.Tkhd)
	t.ID = tkhd.TrackID
	t.Width = uint16(tkhd.Width >> 16)
	t.Height = uint16(tkhd.Height >> 16)
	t.Audible = tkhd.Volume != 0

	mdhds, err := mp4.ExtractBoxWithPayload(r, trak, mp4.BoxPath{mp4.BoxTypeMdia(), mp4.BoxTypeMdhd()})
	if err != nil || len(mdhds) == 0 {
		return nil, fmt.Errorf("reading mdhd: %w", errOr(err, "missing box"))
	}
	mdhd := mdhds[0].Payload.(*mp4.Mdhd)
	t.Timescale = mdhd.Timescale
	if mdhd.GetVersion() == 0 {
		t.Duration = uint64(mdhd.DurationV0)
	} else {
		t.Duration = mdhd.DurationV1
	}

	hdlrs, err := mp4.ExtractBoxWithPayload(r, trak, mp4.BoxPath{mp4.BoxTypeMdia(), mp4.BoxTypeHdlr()})
	if err != nil || len(hdlrs) == 0 {
		return nil, fmt.Errorf("reading hdlr: %w", errOr(err, "missing box"))
	}
	t.Handler = string(hdlrs[0].Payload.(*mp4.Hdlr).HandlerType[:])

	stblPath := mp4.BoxPath{mp4.BoxTypeMdia(), mp4.BoxTypeMinf(), mp4.BoxTypeStbl()}
	stsds, err := mp4.ExtractBox(r, trak, append(stblPath, mp4.BoxTypeStsd()))
	if err != nil || len(stsds) == 0 {
		return nil, fmt.Errorf("reading stsd: %w", errOr(err, "missing box"))
	}
	t.Stsd, err = readRange(r, int64(stsds[0].Offset), int64(stsds[0].Size))
	if err != nil {
		return nil, fmt.Errorf("reading stsd payload: %w", err)
	}

	sttss, err := mp4.ExtractBoxWithPayload(r, trak, append(stblPath, mp4.BoxTypeStts()))
	if err != nil || len(sttss) == 0 {
		return nil, fmt.Errorf("reading stts: %w", errOr(err, "missing box"))
	}
	stscs, err := mp4.ExtractBoxWithPayload(r, trak, append(stblPath, mp4.BoxTypeStsc()))
	if err != nil || len(stscs) == 0 {
		return nil, fmt.Errorf("reading stsc: %w", errOr(err, "missing box"))
	}
	stszs, err := mp4.ExtractBoxWithPayload(r, trak, append(stblPath, mp4.BoxTypeStsz()))
	if err != nil || len(stszs) == 0 {
		return nil, fmt.Errorf("reading stsz: %w", errOr(err, "missing box"))
	}

	chunkOffsets, err := readChunkOffsets(r, trak, stblPath)
	if err != nil {
		return nil, err
	}

	var syncSet map[uint32]bool
	stsss, err := mp4.ExtractBoxWithPayload(r, trak, append(stblPath, mp4.BoxTypeStss()))
	if err != nil {
		return nil, fmt.Errorf("reading stss: %w", err)
	}
	if len(stsss) > 0 {
		t.HasSync = true
		syncSet = make(map[uint32]bool)
		for _, n := range stsss[0].Payload.(*mp4.Stss).SampleNumber {
			syncSet[n] = true
		}
	}

	var cttsOffsets []int32
	cttss, err := mp4.ExtractBoxWithPayload(r, trak, append(stblPath, mp4.BoxTypeCtts()))
	if err != nil {
		return nil, fmt.Errorf("reading ctts: %w", err)
	}
	if len(cttss) > 0 {
		cttsOffsets = expandCtts(cttss[0].Payload.(*mp4.Ctts))
	}

	elsts, err := mp4.ExtractBoxWithPayload(r, trak, mp4.BoxPath{mp4.BoxTypeEdts(), mp4.BoxTypeElst()})
	if err != nil {
		return nil, fmt.Errorf("reading elst: %w", err)
	}
	if len(elsts) > 0 {
		t.Edits = convertEdits(elsts[0].Payload.(*mp4.Elst))
	}

	t.Samples = flattenSamples(
		stscs[0].Payload.(*mp4.Stsc),
		chunkOffsets,
		sampleSizes(stszs[0].Payload.(*mp4.Stsz)),
		expandStts(sttss[0].Payload.(*mp4.Stts)),
		cttsOffsets,
		syncSet,
	)
	return t, nil
}

func readChunkOffsets(r io.ReadSeeker, trak *mp4.BoxInfo, stblPath mp4.BoxPath) ([]uint64, error) {
	stcos, err := mp4.ExtractBoxWithPayload(r, trak, append(stblPath, mp4.BoxTypeStco()))
	if err != nil {
		return nil, fmt.Errorf("reading stco: %w", err)
	}
	if len(stcos) > 0 {
		src := stcos[0].Payload.(*mp4.Stco).ChunkOffset
		out := make([]uint64, len(src))
		for i, v := range src {
			out[i] = uint64(v)
		}
		return out, nil
	}
	co64s, err := mp4.ExtractBoxWithPayload(r, trak, append(stblPath, mp4.BoxTypeCo64()))
	if err != nil {
		return nil, fmt.Errorf("reading co64: %w", err)
	}
	if len(co64s) > 0 {
		return co64s[0].Payload.(*mp4.Co64).ChunkOffset, nil
	}
	return nil, errors.New("no chunk offset table")
}

// flattenSamples walks the chunk map and lays every sample out at its
// absolute file offset with decode time and sync flag attached.
func flattenSamples(stsc *mp4.Stsc, chunks []uint64, sizes, durs []uint32, cts []int32, syncSet map[uint32]bool) []Sample {
	samples := make([]Sample, 0, len(sizes))
	var dts uint64
	idx := 0
	for ci := range chunks {
		perChunk := samplesPerChunk(stsc, uint32(ci+1))
		off := chunks[ci]
		for j := uint32(0); j < perChunk && idx < len(sizes); j++ {
			s := Sample{
				Offset: int64(off),
				Size:   sizes[idx],
				DTS:    dts,
				Sync:   true,
			}
			if idx < len(durs) {
				s.Dur = durs[idx]
			}
			if cts != nil && idx < len(cts) {
				s.CTS = cts[idx]
			}
			if syncSet != nil {
				s.Sync = syncSet[uint32(idx+1)]
			}
			samples = append(samples, s)
			off += uint64(s.Size)
			dts += uint64(s.Dur)
			idx++
		}
	}
	return samples
}

// samplesPerChunk resolves the stsc run covering the 1-based chunk number.
func samplesPerChunk(stsc *mp4.Stsc, chunk uint32) uint32 {
	per := uint32(1)
	for _, e := range stsc.Entries {
		if e.FirstChunk > chunk {
			break
		}
		per = e.SamplesPerChunk
	}
	return per
}

func sampleSizes(stsz *mp4.Stsz) []uint32 {
	if stsz.SampleSize != 0 {
		out := make([]uint32, stsz.SampleCount)
		for i := range out {
			out[i] = stsz.SampleSize
		}
		return out
	}
	return stsz.EntrySize
}

func expandStts(stts *mp4.Stts) []uint32 {
	var out []uint32
	for _, e := range stts.Entries {
		for i := uint32(0); i < e.SampleCount; i++ {
			out = append(out, e.SampleDelta)
		}
	}
	return out
}

func expandCtts(ctts *mp4.Ctts) []int32 {
	var out []int32
	for _, e := range ctts.Entries {
		off := int32(e.SampleOffsetV0)
		if ctts.GetVersion() == 1 {
			off = e.SampleOffsetV1
		}
		for i := uint32(0); i < e.SampleCount; i++ {
			out = append(out, off)
		}
	}
	return out
}

func convertEdits(elst *mp4.Elst) []Edit {
	out := make([]Edit, 0, len(elst.Entries))
	for _, e := range elst.Entries {
		ed := Edit{Rate: int32(e.MediaRateInteger) << 16}
		if elst.GetVersion() == 0 {
			ed.Duration = uint64(e.SegmentDurationV0)
			ed.MediaTime = int64(e.MediaTimeV0)
		} else {
			ed.Duration = e.SegmentDurationV1
			ed.MediaTime = e.MediaTimeV1
		}
		out = append(out, ed)
	}
	return out
}

func readRange(r io.ReadSeeker, off, size int64) ([]byte, error) {
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func errOr(err error, fallback string) error {
	if err != nil {
		return err
	}
	return errors.New(fallback)
}
