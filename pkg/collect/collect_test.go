package collect

import (
	"testing"

	"tracecap/pkg/frame"
	"tracecap/pkg/interning"
	"tracecap/pkg/typereg"
)

// counterStruct is a one-field struct used across these tests.
type counterStruct struct{ n uint32 }

func (c counterStruct) FieldAt(ordinal int) typereg.Value {
	return typereg.Value{Uint: uint64(c.n)}
}

func counterDescriptor() typereg.StructDescriptor {
	return typereg.StructDescriptor{
		Name:   "Counter",
		Fields: []typereg.FieldDescriptor{{Name: "n", Kind: typereg.FieldPrimitive, Primitive: typereg.PrimitiveUint32}},
	}
}

func bodySizeFor(desc typereg.StructDescriptor) func(uint16, uint16) int {
	return func(_ uint16, count uint16) int { return int(count) * desc.Size() }
}

// TestScalarPrimitiveRoundTrip exercises a single scalar primitive
// collection with one value, decoded back via DecodeSegments.
func TestScalarPrimitiveRoundTrip(t *testing.T) {
	read := func() typereg.Value { return typereg.Value{Uint: 10} }
	c := NewScalarPrimitive(1, typereg.PrimitiveUint32, read)

	buf := frame.New()
	interner := interning.New()
	if err := c.Collect(buf, interner); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	segs, err := DecodeSegments(buf.Bytes(), func(_ uint16, count uint16) int { return int(count) * 4 })
	if err != nil {
		t.Fatalf("DecodeSegments: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	seg := segs[0]
	if seg.CollectionID != 1 || seg.Count != 1 || seg.Unchanged {
		t.Fatalf("unexpected segment header: %+v", seg)
	}
	if len(seg.Body) != 4 || seg.Body[0] != 10 {
		t.Fatalf("unexpected body bytes: %v", seg.Body)
	}
}

func TestScalarPrimitiveNeverSuppresses(t *testing.T) {
	val := uint64(5)
	c := NewScalarPrimitive(1, typereg.PrimitiveUint32, func() typereg.Value { return typereg.Value{Uint: val} })
	interner := interning.New()

	for i := 0; i < 10; i++ {
		buf := frame.New()
		if err := c.Collect(buf, interner); err != nil {
			t.Fatalf("Collect: %v", err)
		}
		segs, err := DecodeSegments(buf.Bytes(), func(_ uint16, count uint16) int { return int(count) * 4 })
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if segs[0].Unchanged {
			t.Fatalf("scalar primitives must never suppress, tick %d", i)
		}
	}
}

// TestScalarStructHeartbeatSuppression mirrors the heartbeat scenario:
// an unchanging struct body suppresses after the first tick, until
// carryForward reaches the configured heartbeat, at which point a full
// body is re-emitted even though nothing changed.
func TestScalarStructHeartbeatSuppression(t *testing.T) {
	const heartbeat = 3
	val := counterStruct{n: 42}
	c := NewScalarStruct(1, counterDescriptor(), func() typereg.StructValue { return val }, heartbeat)
	interner := interning.New()

	unchangedAt := func(tick int) bool {
		buf := frame.New()
		if err := c.Collect(buf, interner); err != nil {
			t.Fatalf("tick %d Collect: %v", tick, err)
		}
		segs, err := DecodeSegments(buf.Bytes(), bodySizeFor(counterDescriptor()))
		if err != nil {
			t.Fatalf("tick %d decode: %v", tick, err)
		}
		return segs[0].Unchanged
	}

	if unchangedAt(0) {
		t.Fatalf("first tick must never be suppressed (no previous body yet)")
	}
	for tick := 1; tick <= heartbeat; tick++ {
		if !unchangedAt(tick) {
			t.Fatalf("tick %d: expected suppression (carryForward below heartbeat)", tick)
		}
	}
	if unchangedAt(heartbeat + 1) {
		t.Fatalf("tick %d: expected a full re-emit once carryForward reaches heartbeat", heartbeat+1)
	}
}

func TestScalarStructChangeEndsSuppression(t *testing.T) {
	n := uint32(1)
	c := NewScalarStruct(1, counterDescriptor(), func() typereg.StructValue { return counterStruct{n: n} }, 10)
	interner := interning.New()

	firstBuf := frame.New()
	c.Collect(firstBuf, interner)

	secondBuf := frame.New()
	c.Collect(secondBuf, interner)
	segs, _ := DecodeSegments(secondBuf.Bytes(), bodySizeFor(counterDescriptor()))
	if !segs[0].Unchanged {
		t.Fatalf("expected suppression on second identical tick")
	}

	n = 2
	thirdBuf := frame.New()
	c.Collect(thirdBuf, interner)
	segs, _ = DecodeSegments(thirdBuf.Bytes(), bodySizeFor(counterDescriptor()))
	if segs[0].Unchanged {
		t.Fatalf("a changed body must never be suppressed")
	}
}

func TestDenseContainerSkipsNullSlotsAndCountChangeBreaksSuppression(t *testing.T) {
	desc := counterDescriptor()
	slots := []*uint32{ptr(1), nil, ptr(3)}
	read := func(i int) (typereg.StructValue, bool) {
		if slots[i] == nil {
			return nil, false
		}
		return counterStruct{n: *slots[i]}, true
	}
	c := NewDenseContainer(1, desc, 3, func() int { return len(slots) }, read, 10)
	interner := interning.New()

	buf := frame.New()
	if err := c.Collect(buf, interner); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	segs, err := DecodeSegments(buf.Bytes(), bodySizeFor(desc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if segs[0].Count != 2 {
		t.Fatalf("expected 2 present elements (null slot skipped), got %d", segs[0].Count)
	}

	// Second identical tick: suppressed.
	buf2 := frame.New()
	c.Collect(buf2, interner)
	segs2, _ := DecodeSegments(buf2.Bytes(), bodySizeFor(desc))
	if !segs2[0].Unchanged {
		t.Fatalf("expected suppression on identical second tick")
	}

	// Shrink the count: even if remaining bytes coincidentally match a
	// prefix of the previous body, the count change must break suppression.
	slots = []*uint32{ptr(1)}
	buf3 := frame.New()
	c.Collect(buf3, interner)
	segs3, _ := DecodeSegments(buf3.Bytes(), bodySizeFor(desc))
	if segs3[0].Unchanged {
		t.Fatalf("a shrinking element count must never be suppressed")
	}
	if segs3[0].Count != 1 {
		t.Fatalf("expected count 1 after shrink, got %d", segs3[0].Count)
	}
}

func TestDenseContainerRejectsSizeExceedingCapacity(t *testing.T) {
	desc := counterDescriptor()
	c := NewDenseContainer(1, desc, 2, func() int { return 3 }, func(i int) (typereg.StructValue, bool) {
		return counterStruct{n: uint32(i)}, true
	}, 5)
	if err := c.Collect(frame.New(), interning.New()); err == nil {
		t.Fatalf("expected an error when reported size exceeds capacity")
	}
}

func TestSparseContainerEmitsAscendingBucketOrder(t *testing.T) {
	desc := counterDescriptor()
	present := map[int]uint32{0: 10, 2: 30, 5: 50}
	read := func(i int) (typereg.StructValue, bool) {
		v, ok := present[i]
		if !ok {
			return nil, false
		}
		return counterStruct{n: v}, true
	}
	c := NewSparseContainer(1, desc, 8, read, 5)
	interner := interning.New()

	buf := frame.New()
	if err := c.Collect(buf, interner); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	bodySize := func(_ uint16, count uint16) int { return int(count) * (2 + desc.Size()) }
	segs, err := DecodeSegments(buf.Bytes(), bodySize)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if segs[0].Count != 3 {
		t.Fatalf("expected 3 present elements, got %d", segs[0].Count)
	}

	off := 0
	wantBuckets := []uint16{0, 2, 5}
	wantVals := []uint32{10, 30, 50}
	for i, wantBucket := range wantBuckets {
		bucket, next := DecodeBucketIndex(segs[0].Body, off)
		if bucket != wantBucket {
			t.Fatalf("item %d: expected bucket %d, got %d", i, wantBucket, bucket)
		}
		fields, next2, err := DecodeStructBody(desc, segs[0].Body, next)
		if err != nil {
			t.Fatalf("DecodeStructBody: %v", err)
		}
		if fields[0].Uint != uint64(wantVals[i]) {
			t.Fatalf("item %d: expected value %d, got %d", i, wantVals[i], fields[0].Uint)
		}
		off = next2
	}
}

func TestSparseContainerSuppressesUnchangedSetThenBreaksOnMembershipChange(t *testing.T) {
	desc := counterDescriptor()
	present := map[int]uint32{0: 10, 2: 30}
	read := func(i int) (typereg.StructValue, bool) {
		v, ok := present[i]
		if !ok {
			return nil, false
		}
		return counterStruct{n: v}, true
	}
	c := NewSparseContainer(1, desc, 8, read, 10)
	interner := interning.New()

	buf := frame.New()
	if err := c.Collect(buf, interner); err != nil {
		t.Fatalf("tick 0 Collect: %v", err)
	}
	bodySize := func(_ uint16, count uint16) int { return int(count) * (2 + desc.Size()) }
	segs, _ := DecodeSegments(buf.Bytes(), bodySize)
	if segs[0].Unchanged {
		t.Fatalf("first tick must never be suppressed")
	}

	buf2 := frame.New()
	c.Collect(buf2, interner)
	segs2, _ := DecodeSegments(buf2.Bytes(), bodySize)
	if !segs2[0].Unchanged {
		t.Fatalf("expected suppression on an identical second tick")
	}

	// A bucket appears at an index previously absent: membership change
	// must break suppression even though earlier buckets are unchanged.
	present[5] = 50
	buf3 := frame.New()
	c.Collect(buf3, interner)
	segs3, _ := DecodeSegments(buf3.Bytes(), bodySize)
	if segs3[0].Unchanged {
		t.Fatalf("a membership change must never be suppressed")
	}
	if segs3[0].Count != 3 {
		t.Fatalf("expected 3 present elements after the membership change, got %d", segs3[0].Count)
	}
}

func ptr(v uint32) *uint32 { return &v }
