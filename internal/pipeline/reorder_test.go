package pipeline

import "testing"

func TestReorderBufferDrainsOnlyContiguousPrefix(t *testing.T) {
	r := NewReorderBuffer()
	r.Push(Payload{SeqID: 0})
	r.Push(Payload{SeqID: 2})
	r.Push(Payload{SeqID: 3})

	out := r.Drain()
	if len(out) != 1 || out[0].SeqID != 0 {
		t.Fatalf("expected only seq 0 to drain (gap at 1), got %+v", out)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 payloads still buffered, got %d", r.Len())
	}

	r.Push(Payload{SeqID: 1})
	out = r.Drain()
	if len(out) != 3 {
		t.Fatalf("expected the gap fill to release seq 1,2,3, got %+v", out)
	}
	for i, p := range out {
		if p.SeqID != uint64(i+1) {
			t.Fatalf("expected ascending seq order 1,2,3; got %+v", out)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("expected buffer empty after full drain, got %d", r.Len())
	}
}

func TestReorderBufferOutOfOrderPushStillDrainsInOrder(t *testing.T) {
	r := NewReorderBuffer()
	for _, seq := range []uint64{4, 1, 3, 0, 2} {
		r.Push(Payload{SeqID: seq})
	}
	out := r.Drain()
	if len(out) != 5 {
		t.Fatalf("expected all 5 payloads to drain once contiguous, got %d", len(out))
	}
	for i, p := range out {
		if p.SeqID != uint64(i) {
			t.Fatalf("expected ascending order 0..4, got %+v", out)
		}
	}
}

func TestReorderBufferFirstSeqEstablishesStart(t *testing.T) {
	r := NewReorderBuffer()
	r.Push(Payload{SeqID: 100})
	out := r.Drain()
	if len(out) != 1 || out[0].SeqID != 100 {
		t.Fatalf("expected the first-seen SeqID to be treated as the start, got %+v", out)
	}
}
