package quicktime

import (
	"bytes"
	"encoding/binary"
)

// boxBuffer assembles nested QuickTime boxes in memory. Box sizes are
// patched in once the body length is known, so callers build strictly
// top-down.
type boxBuffer struct {
	buf bytes.Buffer
}

func (b *boxBuffer) Bytes() []byte { return b.buf.Bytes() }

// box writes one box: 32-bit size, four-character type, then the body.
func (b *boxBuffer) box(typ string, body func(*boxBuffer)) {
	if len(typ) != 4 {
		panic("box type must be 4 bytes: " + typ)
	}
	var t [4]byte
	copy(t[:], typ)
	b.boxType(t, body)
}

// boxType writes a box whose type is an arbitrary 4-byte value. The ilst
// children use the metadata key index as their box type.
func (b *boxBuffer) boxType(typ [4]byte, body func(*boxBuffer)) {
	start := b.buf.Len()
	b.u32(0)
	b.raw(typ[:])
	if body != nil {
		body(b)
	}
	b.patchSize(start)
}

// full writes a full box: version and 24-bit flags precede the body.
func (b *boxBuffer) full(typ string, version uint8, flags uint32, body func(*boxBuffer)) {
	b.box(typ, func(b *boxBuffer) {
		b.u8(version)
		b.u24(flags)
		if body != nil {
			body(b)
		}
	})
}

func (b *boxBuffer) patchSize(start int) {
	size := uint32(b.buf.Len() - start)
	binary.BigEndian.PutUint32(b.buf.Bytes()[start:start+4], size)
}

func (b *boxBuffer) u8(v uint8)   { b.buf.WriteByte(v) }
func (b *boxBuffer) u16(v uint16) { var t [2]byte; binary.BigEndian.PutUint16(t[:], v); b.buf.Write(t[:]) }
func (b *boxBuffer) u32(v uint32) { var t [4]byte; binary.BigEndian.PutUint32(t[:], v); b.buf.Write(t[:]) }
func (b *boxBuffer) u64(v uint64) { var t [8]byte; binary.BigEndian.PutUint64(t[:], v); b.buf.Write(t[:]) }
func (b *boxBuffer) i16(v int16)  { b.u16(uint16(v)) }
func (b *boxBuffer) i32(v int32)  { b.u32(uint32(v)) }

func (b *boxBuffer) u24(v uint32) {
	b.buf.WriteByte(byte(v >> 16))
	b.buf.WriteByte(byte(v >> 8))
	b.buf.WriteByte(byte(v))
}

func (b *boxBuffer) raw(data []byte) { b.buf.Write(data) }

func (b *boxBuffer) fourcc(typ string) {
	if len(typ) != 4 {
		panic("fourcc must be 4 bytes: " + typ)
	}
	b.buf.WriteString(typ)
}

func (b *boxBuffer) zero(n int) {
	for i := 0; i < n; i++ {
		b.buf.WriteByte(0)
	}
}

// identityMatrix is the unity transformation of tkhd and mvhd.
var identityMatrix = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

func (b *boxBuffer) matrix() {
	for _, v := range identityMatrix {
		b.i32(v)
	}
}

// rawBox is one parsed box of a manual child walk.
type rawBox struct {
	typ  string
	data []byte
}

// parseBoxes splits a byte run into consecutive boxes. Boxes with 64-bit
// or to-end-of-file sizes are not expected inside the small metadata
// structures this parser is used on.
func parseBoxes(data []byte) []rawBox {
	var out []rawBox
	for len(data) >= 8 {
		size := binary.BigEndian.Uint32(data[:4])
		if size < 8 || uint64(size) > uint64(len(data)) {
			break
		}
		out = append(out, rawBox{typ: string(data[4:8]), data: data[8:size]})
		data = data[size:]
	}
	return out
}

func findBox(boxes []rawBox, typ string) ([]byte, bool) {
	for _, bx := range boxes {
		if bx.typ == typ {
			return bx.data, true
		}
	}
	return nil, false
}
