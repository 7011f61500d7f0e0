package quicktime

import (
	"encoding/binary"
	"fmt"
	"io"

	mp4 "github.com/abema/go-mp4"
)

// Metadata keys of the paired-asset convention.
const (
	ContentIdentifierKey = "com.apple.quicktime.content.identifier"
	StillImageTimeKey    = "com.apple.quicktime.still-image-time"
)

// stillTimeLocalID is the per-track key id declared in the mebx sample
// description this package writes.
const stillTimeLocalID = 1

// BuildMovieMeta builds a movie-level meta box (QuickTime variant, no
// version/flags) declaring the content identifier in the keys/ilst scheme.
func BuildMovieMeta(identifier string) []byte {
	b := &boxBuffer{}
	b.box("meta", func(b *boxBuffer) {
		b.full("hdlr", 0, 0, func(b *boxBuffer) {
			b.u32(0)
			b.fourcc("mdta")
			b.zero(12)
			b.u8(0)
		})
		b.full("keys", 0, 0, func(b *boxBuffer) {
			b.u32(1)
			b.u32(uint32(8 + len(ContentIdentifierKey)))
			b.fourcc("mdta")
			b.raw([]byte(ContentIdentifierKey))
		})
		b.box("ilst", func(b *boxBuffer) {
			b.boxType([4]byte{0, 0, 0, 1}, func(b *boxBuffer) {
				b.box("data", func(b *boxBuffer) {
					b.u32(1) // UTF-8
					b.u32(0) // default locale
					b.raw([]byte(identifier))
				})
			})
		})
	})
	return b.Bytes()
}

// ReadContentIdentifier returns the movie-level content identifier, or ""
// when the container carries none.
func ReadContentIdentifier(r io.ReadSeeker) (string, error) {
	metas, err := mp4.ExtractBox(r, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeMeta()})
	if err != nil {
		return "", fmt.Errorf("reading meta: %w", err)
	}
	if len(metas) == 0 {
		return "", nil
	}
	payload, err := readRange(r, int64(metas[0].Offset+metas[0].HeaderSize), int64(metas[0].Size-metas[0].HeaderSize))
	if err != nil {
		return "", fmt.Errorf("reading meta payload: %w", err)
	}
	ident, _ := parseMovieMeta(payload)
	return ident, nil
}

// parseMovieMeta pulls the content identifier out of a meta payload,
// accepting both the QuickTime (headerless) and ISO (version+flags)
// variants.
func parseMovieMeta(payload []byte) (string, bool) {
	children := metaChildren(payload)

	keysRaw, ok := findBox(children, "keys")
	if !ok {
		return "", false
	}
	identIndex := uint32(0)
	for i, key := range parseKeys(keysRaw) {
		if key == ContentIdentifierKey {
			identIndex = uint32(i + 1)
			break
		}
	}
	if identIndex == 0 {
		return "", false
	}

	ilstRaw, ok := findBox(children, "ilst")
	if !ok {
		return "", false
	}
	for _, entry := range parseBoxes(ilstRaw) {
		if len(entry.typ) != 4 || binary.BigEndian.Uint32([]byte(entry.typ)) != identIndex {
			continue
		}
		dataRaw, ok := findBox(parseBoxes(entry.data), "data")
		if !ok || len(dataRaw) < 8 {
			return "", false
		}
		return string(dataRaw[8:]), true
	}
	return "", false
}

// metaChildren returns the child boxes of a meta payload, skipping the
// version/flags prefix when the ISO variant is present.
func metaChildren(payload []byte) []rawBox {
	if looksLikeBoxes(payload) {
		return parseBoxes(payload)
	}
	if len(payload) > 4 && looksLikeBoxes(payload[4:]) {
		return parseBoxes(payload[4:])
	}
	return nil
}

func looksLikeBoxes(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	size := binary.BigEndian.Uint32(data[:4])
	if size < 8 || uint64(size) > uint64(len(data)) {
		return false
	}
	for _, c := range data[4:8] {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}

// parseKeys expands a keys payload into key strings, index order.
func parseKeys(data []byte) []string {
	if len(data) < 8 {
		return nil
	}
	count := binary.BigEndian.Uint32(data[4:8])
	data = data[8:]
	keys := make([]string, 0, count)
	for i := uint32(0); i < count && len(data) >= 8; i++ {
		size := binary.BigEndian.Uint32(data[:4])
		if size < 8 || uint64(size) > uint64(len(data)) {
			break
		}
		keys = append(keys, string(data[8:size]))
		data = data[size:]
	}
	return keys
}

// BuildStillTimeStsd builds the sample description of a timed-metadata
// track carrying the still-image-time key: a mebx entry whose key table
// declares local id 1.
func BuildStillTimeStsd() []byte {
	b := &boxBuffer{}
	b.full("stsd", 0, 0, func(b *boxBuffer) {
		b.u32(1)
		b.box("mebx", func(b *boxBuffer) {
			b.zero(6)
			b.u16(1) // data reference index
			b.box("keys", func(b *boxBuffer) {
				b.boxType([4]byte{0, 0, 0, stillTimeLocalID}, func(b *boxBuffer) {
					b.box("keyd", func(b *boxBuffer) {
						b.fourcc("mdta")
						b.raw([]byte(StillImageTimeKey))
					})
				})
			})
		})
	})
	return b.Bytes()
}

// EncodeStillTimeSample encodes the one sample of the still-image-time
// track: item size, local key id, int8 value zero.
func EncodeStillTimeSample() []byte {
	out := make([]byte, 9)
	binary.BigEndian.PutUint32(out[0:4], 9)
	binary.BigEndian.PutUint32(out[4:8], stillTimeLocalID)
	return out
}

// stillTimeKeyID scans a mebx sample description for the still-image-time
// key declaration and returns its local id.
func stillTimeKeyID(stsdRaw []byte) (uint32, bool) {
	if len(stsdRaw) < 16 {
		return 0, false
	}
	// Skip box header, version/flags and entry count.
	for _, entry := range parseBoxes(stsdRaw[16:]) {
		if entry.typ != "mebx" || len(entry.data) < 8 {
			continue
		}
		keysRaw, ok := findBox(parseBoxes(entry.data[8:]), "keys")
		if !ok {
			continue
		}
		for _, key := range parseBoxes(keysRaw) {
			keydRaw, ok := findBox(parseBoxes(key.data), "keyd")
			if !ok || len(keydRaw) < 4 {
				continue
			}
			if string(keydRaw[4:]) == StillImageTimeKey {
				return binary.BigEndian.Uint32([]byte(key.typ)), true
			}
		}
	}
	return 0, false
}

// StillTime locates the still-image-time marker of a movie: the metadata
// track declaring the key, resolved through its edit list to seconds from
// the movie start. Returns ok=false when the movie carries no marker.
func StillTime(mov *Movie, rd *Reader) (float64, bool, error) {
	for _, t := range mov.Tracks {
		if t.Handler != "meta" {
			continue
		}
		localID, ok := stillTimeKeyID(t.Stsd)
		if !ok {
			continue
		}
		for _, s := range t.Samples {
			data, err := rd.ReadSample(s)
			if err != nil {
				return 0, false, fmt.Errorf("reading metadata sample: %w", err)
			}
			if len(data) < 8 || binary.BigEndian.Uint32(data[4:8]) != localID {
				continue
			}
			return stillSampleSeconds(mov, t, s), true, nil
		}
	}
	return 0, false, nil
}

// stillSampleSeconds converts a metadata sample position into seconds:
// leading empty edits shift the media, then the sample's own decode time
// applies in track units.
func stillSampleSeconds(mov *Movie, t *Track, s Sample) float64 {
	var sec float64
	for _, e := range t.Edits {
		if e.MediaTime == -1 {
			sec += float64(e.Duration) / float64(mov.Timescale)
			continue
		}
		break
	}
	if t.Timescale != 0 {
		sec += float64(s.DTS) / float64(t.Timescale)
	}
	return sec
}
