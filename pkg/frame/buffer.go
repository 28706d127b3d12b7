// Package frame implements the CollectionFrameBuffer: the append-only
// byte buffer every Collectable writes into during one tick, and the
// small set of primitives (writeHeader, writeBucket, writeBytes, and
// fixed-width scalar writers) the typereg and collect packages build
// on to produce the wire layout spec.md §6 defines.
package frame

import (
	"encoding/binary"
	"math"
)

// CountUnchanged is the reserved sparse/heartbeat count meaning
// "unchanged since previous emitted frame" — no body follows.
const CountUnchanged = 0xFFFF

// Buffer is an append-only little-endian byte buffer for one tick's
// frame. It is reused across ticks via Reset to avoid reallocating.
type Buffer struct {
	buf []byte
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Reset empties the buffer for reuse, keeping its backing array.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
}

// Bytes returns the buffer's contents. The slice is only valid until
// the next Reset or write call.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// WriteHeader appends a segment header: collection_id then count, each
// a little-endian u16.
func (b *Buffer) WriteHeader(collectionID uint16, count uint16) {
	b.WriteUint16(collectionID)
	b.WriteUint16(count)
}

// WriteBucket appends a sparse-container bucket index, a little-endian
// u16.
func (b *Buffer) WriteBucket(idx uint16) {
	b.WriteUint16(idx)
}

// WriteBytes appends raw bytes verbatim.
func (b *Buffer) WriteBytes(p []byte) {
	b.buf = append(b.buf, p...)
}

func (b *Buffer) WriteUint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Buffer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Buffer) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Buffer) WriteFloat32(v float32) {
	b.WriteUint32(math.Float32bits(v))
}

func (b *Buffer) WriteFloat64(v float64) {
	b.WriteUint64(math.Float64bits(v))
}

// WriteUintWidth writes the low width bytes of v, little-endian. width
// must be 1, 2, 4, or 8.
func (b *Buffer) WriteUintWidth(width int, v uint64) {
	switch width {
	case 1:
		b.buf = append(b.buf, byte(v))
	case 2:
		b.WriteUint16(uint16(v))
	case 4:
		b.WriteUint32(uint32(v))
	case 8:
		b.WriteUint64(v)
	}
}

// WriteIntWidth writes v's two's-complement representation truncated
// to width bytes, little-endian.
func (b *Buffer) WriteIntWidth(width int, v int64) {
	b.WriteUintWidth(width, uint64(v))
}

// WriteBoolWidened appends a bool widened to a 4-byte 0/1, per spec's
// special rule for boolean scalar primitives.
func (b *Buffer) WriteBoolWidened(v bool) {
	if v {
		b.WriteUint32(1)
	} else {
		b.WriteUint32(0)
	}
}

// WriteFixedChar appends exactly width bytes of s: truncated if longer,
// zero-padded if shorter. No length prefix — the field's declared width
// is carried out of band in the struct descriptor.
func (b *Buffer) WriteFixedChar(width int, s string) {
	n := len(s)
	if n > width {
		n = width
	}
	b.buf = append(b.buf, s[:n]...)
	for i := n; i < width; i++ {
		b.buf = append(b.buf, 0)
	}
}
