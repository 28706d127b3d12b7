package collect

import (
	"encoding/binary"
	"math"

	tcerrors "tracecap/pkg/errors"
	"tracecap/pkg/frame"
	"tracecap/pkg/typereg"
)

// Segment is one decoded (header, body) unit from a persisted blob.
// Unchanged == true means count was the 0xFFFF sentinel and Body is
// nil; the reader is expected to replay the last full frame for this
// collection id.
type Segment struct {
	CollectionID uint16
	Count        uint16
	Unchanged    bool
	Body         []byte
}

// DecodeSegments splits a decompressed CollectionData blob into its
// per-collection segments without interpreting struct bodies, mirroring
// the header/body framing in spec §6. It is the pure counterpart to
// the Collectable.Collect writers, used by round-trip tests.
func DecodeSegments(blob []byte, bodySize func(collectionID uint16, count uint16) int) ([]Segment, error) {
	var segments []Segment
	off := 0
	for off < len(blob) {
		if off+4 > len(blob) {
			return nil, tcerrors.NewSerializationError("blob", "header", "truncated header")
		}
		id := binary.LittleEndian.Uint16(blob[off:])
		count := binary.LittleEndian.Uint16(blob[off+2:])
		off += 4
		if count == frame.CountUnchanged {
			segments = append(segments, Segment{CollectionID: id, Count: count, Unchanged: true})
			continue
		}
		n := bodySize(id, count)
		if off+n > len(blob) {
			return nil, tcerrors.NewSerializationError("blob", "body", "truncated body")
		}
		segments = append(segments, Segment{CollectionID: id, Count: count, Body: blob[off : off+n]})
		off += n
	}
	return segments, nil
}

// DecodedField is one decoded struct field value, tagged by the
// descriptor's FieldKind the same way typereg.Value is.
type DecodedField struct {
	Name  string
	Int   int64
	Uint  uint64
	Float float64
	StrID uint32
	Chars string
}

// DecodeStructBody decodes exactly one struct instance's fields from
// body starting at offset off, returning the new offset.
func DecodeStructBody(d typereg.StructDescriptor, body []byte, off int) ([]DecodedField, int, error) {
	fields := make([]DecodedField, len(d.Fields))
	for i, f := range d.Fields {
		width := fieldWidth(f)
		if off+width > len(body) {
			return nil, off, tcerrors.NewSerializationError(d.Name, f.Name, "truncated field")
		}
		chunk := body[off : off+width]
		df := DecodedField{Name: f.Name}
		switch f.Kind {
		case typereg.FieldInternedString:
			df.StrID = binary.LittleEndian.Uint32(chunk)
		case typereg.FieldEnum:
			df.Int = decodeIntWidth(chunk, true)
		case typereg.FieldFixedChar:
			df.Chars = decodeFixedChar(chunk)
		default:
			switch f.Primitive {
			case typereg.PrimitiveFloat32:
				df.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk)))
			case typereg.PrimitiveFloat64:
				df.Float = math.Float64frombits(binary.LittleEndian.Uint64(chunk))
			case typereg.PrimitiveBool:
				df.Int = decodeIntWidth(chunk, false)
			default:
				if signedPrimitive(f.Primitive) {
					df.Int = decodeIntWidth(chunk, true)
				} else {
					df.Uint = decodeUintWidth(chunk)
				}
			}
		}
		fields[i] = df
		off += width
	}
	return fields, off, nil
}

func fieldWidth(f typereg.FieldDescriptor) int {
	switch f.Kind {
	case typereg.FieldEnum:
		return f.EnumWidth
	case typereg.FieldInternedString:
		return 4
	case typereg.FieldFixedChar:
		return f.CharWidth
	default:
		return f.Primitive.Width()
	}
}

// decodeFixedChar trims trailing zero padding from a fixed-char field's
// raw bytes.
func decodeFixedChar(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}

func decodeUintWidth(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	default:
		return 0
	}
}

func decodeIntWidth(b []byte, signExtend bool) int64 {
	u := decodeUintWidth(b)
	if !signExtend {
		return int64(u)
	}
	switch len(b) {
	case 1:
		return int64(int8(u))
	case 2:
		return int64(int16(u))
	case 4:
		return int64(int32(u))
	default:
		return int64(u)
	}
}

// DecodeBucketIndex reads a u16 bucket index at offset off.
func DecodeBucketIndex(body []byte, off int) (uint16, int) {
	return binary.LittleEndian.Uint16(body[off:]), off + 2
}
