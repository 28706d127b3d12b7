// Package collect implements the four Collectable kinds — scalar
// primitive, scalar struct, dense container, sparse container — each
// of which samples its bound user data once per tick and appends a
// segment to the outgoing CollectionFrameBuffer, applying the
// heartbeat change-suppression rule to container and scalar-struct
// bodies alike.
package collect

import (
	"github.com/cespare/xxhash/v2"

	tcerrors "tracecap/pkg/errors"
	"tracecap/pkg/frame"
	"tracecap/pkg/interning"
	"tracecap/pkg/typereg"
)

// Collectable is implemented by every collection kind. Collect samples
// the bound source and appends one segment to out.
type Collectable interface {
	CollectionID() uint16
	Collect(out *frame.Buffer, interner *interning.Interner) error
}

// bodyCache is the heartbeat scratch state shared by every Collectable
// variant that suppresses unchanged bodies (struct scalars and both
// container kinds — see spec §4.6).
type bodyCache struct {
	scratch      frame.Buffer
	previous     []byte
	havePrevious bool
	carryForward int
	heartbeat    int
}

func newBodyCache(heartbeat int) bodyCache {
	return bodyCache{heartbeat: heartbeat}
}

// suppress reports whether current equals the cached previous body and
// carry_forward has not yet reached heartbeat, per §4.6 step 2. It
// mutates carryForward/previous as a side effect of the comparison.
func (c *bodyCache) suppress(current []byte) bool {
	h := xxhash.Sum64(current)
	if c.havePrevious && c.carryForward < c.heartbeat && h == xxhash.Sum64(c.previous) {
		c.carryForward++
		return true
	}
	c.previous = append(c.previous[:0], current...)
	c.havePrevious = true
	c.carryForward = 0
	return false
}

// ---- ScalarPrimitive ----

// PrimitiveReader returns the current value of a primitive scalar. T is
// one of int8/16/32/64, uint8/16/32/64, float32/64, or bool.
type PrimitiveReader func() typereg.Value

// ScalarPrimitive collects a single primitive value every tick; it
// never suppresses (heartbeat only applies to struct/container bodies
// per §4.6).
type ScalarPrimitive struct {
	id   uint16
	kind typereg.PrimitiveKind
	read PrimitiveReader
}

// NewScalarPrimitive returns a ScalarPrimitive collection bound to read.
func NewScalarPrimitive(id uint16, kind typereg.PrimitiveKind, read PrimitiveReader) *ScalarPrimitive {
	return &ScalarPrimitive{id: id, kind: kind, read: read}
}

func (s *ScalarPrimitive) CollectionID() uint16 { return s.id }

func (s *ScalarPrimitive) Collect(out *frame.Buffer, _ *interning.Interner) error {
	out.WriteHeader(s.id, 1)
	v := s.read()
	switch s.kind {
	case typereg.PrimitiveFloat32:
		out.WriteFloat32(float32(v.Float64))
	case typereg.PrimitiveFloat64:
		out.WriteFloat64(v.Float64)
	case typereg.PrimitiveBool:
		out.WriteBoolWidened(v.Int != 0)
	default:
		if signedPrimitive(s.kind) {
			out.WriteIntWidth(s.kind.Width(), v.Int)
		} else {
			out.WriteUintWidth(s.kind.Width(), v.Uint)
		}
	}
	return nil
}

func signedPrimitive(k typereg.PrimitiveKind) bool {
	switch k {
	case typereg.PrimitiveInt8, typereg.PrimitiveInt16, typereg.PrimitiveInt32, typereg.PrimitiveInt64:
		return true
	default:
		return false
	}
}

// ---- ScalarStruct ----

// StructReader returns the current instance of a bound struct scalar.
type StructReader func() typereg.StructValue

// ScalarStruct collects a single struct instance every tick, applying
// heartbeat change-suppression to the serialized body.
type ScalarStruct struct {
	id    uint16
	desc  typereg.StructDescriptor
	read  StructReader
	cache bodyCache
}

// NewScalarStruct returns a ScalarStruct collection bound to read,
// suppressing unchanged bodies after heartbeat consecutive repeats.
func NewScalarStruct(id uint16, desc typereg.StructDescriptor, read StructReader, heartbeat int) *ScalarStruct {
	return &ScalarStruct{id: id, desc: desc, read: read, cache: newBodyCache(heartbeat)}
}

func (s *ScalarStruct) CollectionID() uint16 { return s.id }

func (s *ScalarStruct) Collect(out *frame.Buffer, interner *interning.Interner) error {
	s.cache.scratch.Reset()
	if err := typereg.WriteStruct(s.desc, s.read(), interner, &s.cache.scratch); err != nil {
		return err
	}
	body := s.cache.scratch.Bytes()
	if s.cache.suppress(body) {
		out.WriteHeader(s.id, frame.CountUnchanged)
		return nil
	}
	out.WriteHeader(s.id, 1)
	out.WriteBytes(body)
	return nil
}

// ---- DenseContainer ----

// ElementReader returns the struct instance at index i, or
// ok == false if the slot is null/absent and must be skipped.
type ElementReader func(i int) (val typereg.StructValue, ok bool)

// DenseContainer collects up to capacity struct elements, skipping
// null slots without reserving their position on the wire.
type DenseContainer struct {
	id       uint16
	desc     typereg.StructDescriptor
	capacity int
	size     func() int
	read     ElementReader
	cache    bodyCache
}

// NewDenseContainer returns a DenseContainer collection. size reports
// the current count (≤ capacity) to iterate; read fetches each element.
func NewDenseContainer(id uint16, desc typereg.StructDescriptor, capacity int, size func() int, read ElementReader, heartbeat int) *DenseContainer {
	return &DenseContainer{id: id, desc: desc, capacity: capacity, size: size, read: read, cache: newBodyCache(heartbeat)}
}

func (d *DenseContainer) CollectionID() uint16 { return d.id }

func (d *DenseContainer) Collect(out *frame.Buffer, interner *interning.Interner) error {
	n := d.size()
	if n > d.capacity {
		return tcerrors.NewSerializationError("DenseContainer", "size", "reported size exceeds capacity")
	}
	d.cache.scratch.Reset()
	present := 0
	for i := 0; i < n; i++ {
		val, ok := d.read(i)
		if !ok {
			continue
		}
		if err := typereg.WriteStruct(d.desc, val, interner, &d.cache.scratch); err != nil {
			return err
		}
		present++
	}
	body := d.cache.scratch.Bytes()
	if d.cache.suppress(appendCount(body, present)) {
		out.WriteHeader(d.id, frame.CountUnchanged)
		return nil
	}
	out.WriteHeader(d.id, uint16(present))
	out.WriteBytes(body)
	return nil
}

// ---- SparseContainer ----

// SparseContainer collects a bounded indexable container where absent
// slots are omitted, each present element tagged with its bucket
// index, per §4.6's two-pass algorithm.
type SparseContainer struct {
	id       uint16
	desc     typereg.StructDescriptor
	capacity int
	read     ElementReader
	cache    bodyCache
}

// NewSparseContainer returns a SparseContainer collection. read is
// probed for every bucket 0..capacity-1; ok == false means absent.
func NewSparseContainer(id uint16, desc typereg.StructDescriptor, capacity int, read ElementReader, heartbeat int) *SparseContainer {
	return &SparseContainer{id: id, desc: desc, capacity: capacity, read: read, cache: newBodyCache(heartbeat)}
}

func (s *SparseContainer) CollectionID() uint16 { return s.id }

// Collect performs the two-pass sparse algorithm from §4.6: a first
// pass over every bucket to determine which are present (n_valid),
// then a second pass emitting (bucket_index, struct body) pairs in
// ascending bucket order.
func (s *SparseContainer) Collect(out *frame.Buffer, interner *interning.Interner) error {
	type present struct {
		bucket int
		val    typereg.StructValue
	}
	var items []present
	for i := 0; i < s.capacity; i++ {
		if val, ok := s.read(i); ok {
			items = append(items, present{bucket: i, val: val})
		}
	}

	s.cache.scratch.Reset()
	for _, it := range items {
		s.cache.scratch.WriteBucket(uint16(it.bucket))
		if err := typereg.WriteStruct(s.desc, it.val, interner, &s.cache.scratch); err != nil {
			return err
		}
	}

	body := s.cache.scratch.Bytes()
	if s.cache.suppress(appendCount(body, len(items))) {
		out.WriteHeader(s.id, frame.CountUnchanged)
		return nil
	}
	out.WriteHeader(s.id, uint16(len(items)))
	out.WriteBytes(body)
	return nil
}

// appendCount folds the element count into the heartbeat comparison
// key so that a count change (e.g. dense container shrinking) is
// never mistaken for an unchanged body even when remaining elements'
// bytes happen to match.
func appendCount(body []byte, n int) []byte {
	out := make([]byte, 0, len(body)+4)
	out = append(out, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	out = append(out, body...)
	return out
}
