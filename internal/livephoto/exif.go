package livephoto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dsoprea/go-exif/v3"
	"github.com/dsoprea/go-exif/v3/common"
	"github.com/dsoprea/go-exif/v3/undefined"
	"github.com/dsoprea/go-jpeg-image-structure/v2"
)

// Apple stores the live-photo correlation id in its proprietary MakerNote
// under tag 17. The note is a big-endian TIFF IFD behind a fixed
// signature; offsets inside it are relative to the start of the note.
const contentIdentifierTag = 0x0011

var appleNoteHeader = []byte("Apple iOS\x00")

// TagStill returns a copy of the JPEG with the correlation identifier
// embedded in its EXIF MakerNote.
func TagStill(jpeg []byte, identifier string) ([]byte, error) {
	intfc, err := jpegstructure.NewJpegMediaParser().ParseBytes(jpeg)
	if err != nil {
		return nil, fmt.Errorf("parsing jpeg: %w", err)
	}
	sl := intfc.(*jpegstructure.SegmentList)

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		rootIb, err = newExifRoot()
		if err != nil {
			return nil, err
		}
	}
	exifIb, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/Exif")
	if err != nil {
		return nil, fmt.Errorf("building exif ifd: %w", err)
	}
	err = exifIb.SetStandardWithName("MakerNote", exifundefined.Tag927CMakerNote{
		MakerNoteType:  appleNoteHeader,
		MakerNoteBytes: encodeAppleNote(identifier),
	})
	if err != nil {
		return nil, fmt.Errorf("setting maker note: %w", err)
	}
	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("attaching exif: %w", err)
	}
	var out bytes.Buffer
	if err := sl.Write(&out); err != nil {
		return nil, fmt.Errorf("serializing jpeg: %w", err)
	}
	return out.Bytes(), nil
}

func newExifRoot() (*exif.IfdBuilder, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, err
	}
	ti := exif.NewTagIndex()
	if err := exif.LoadStandardTags(ti); err != nil {
		return nil, err
	}
	return exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), nil
}

// ReadStillIdentifier pulls the correlation identifier back out of a
// tagged JPEG. Untagged images read as "".
func ReadStillIdentifier(jpeg []byte) (string, error) {
	rawExif, err := exif.SearchAndExtractExif(jpeg)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return "", nil
		}
		return "", fmt.Errorf("extracting exif: %w", err)
	}
	idx := bytes.Index(rawExif, appleNoteHeader)
	if idx < 0 {
		return "", nil
	}
	ident, ok := decodeAppleNote(rawExif[idx:])
	if !ok {
		return "", nil
	}
	return ident, nil
}

func encodeAppleNote(identifier string) []byte {
	value := append([]byte(identifier), 0x00)
	var b bytes.Buffer
	b.Write(appleNoteHeader)
	binary.Write(&b, binary.BigEndian, uint16(1)) // note version
	b.WriteString("MM")
	binary.Write(&b, binary.BigEndian, uint16(1)) // entry count
	binary.Write(&b, binary.BigEndian, uint16(contentIdentifierTag))
	binary.Write(&b, binary.BigEndian, uint16(2)) // ASCII
	binary.Write(&b, binary.BigEndian, uint32(len(value)))
	binary.Write(&b, binary.BigEndian, uint32(32)) // value offset from note start
	binary.Write(&b, binary.BigEndian, uint32(0))  // no next ifd
	b.Write(value)
	return b.Bytes()
}

// decodeAppleNote walks the note's IFD looking for the identifier entry.
// note must start at the signature but may carry trailing bytes.
func decodeAppleNote(note []byte) (string, bool) {
	if !bytes.HasPrefix(note, appleNoteHeader) {
		return "", false
	}
	off := len(appleNoteHeader) + 4 // skip version and byte order
	if len(note) < off+2 {
		return "", false
	}
	count := int(binary.BigEndian.Uint16(note[off:]))
	off += 2
	for i := 0; i < count; i++ {
		e := off + i*12
		if len(note) < e+12 {
			return "", false
		}
		tag := binary.BigEndian.Uint16(note[e:])
		typ := binary.BigEndian.Uint16(note[e+2:])
		n := int(binary.BigEndian.Uint32(note[e+4:]))
		if tag != contentIdentifierTag || typ != 2 {
			continue
		}
		var value []byte
		if n <= 4 {
			value = note[e+8 : e+8+n]
		} else {
			vo := int(binary.BigEndian.Uint32(note[e+8:]))
			if vo < 0 || n < 0 || vo+n > len(note) {
				return "", false
			}
			value = note[vo : vo+n]
		}
		return string(bytes.TrimRight(value, "\x00")), true
	}
	return "", false
}
