package pipeline

import "container/heap"

// Payload is one tick's frame in transit through the pipeline.
type Payload struct {
	Bytes        []byte
	Timestamp    int64
	SeqID        uint64
	IsCompressed bool

	// compressLevel is the level the load balancer assigned at push
	// time; 0 means "no compression on this stage."
	compressLevel int
}

// reorderHeap is a min-heap of Payloads ordered by ascending SeqID,
// the concurrent priority queue Stage-B drains to restore commit order
// despite Stage-A→Stage-B transit reordering (spec §4.8/§9).
type reorderHeap []Payload

func (h reorderHeap) Len() int            { return len(h) }
func (h reorderHeap) Less(i, j int) bool  { return h[i].SeqID < h[j].SeqID }
func (h reorderHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *reorderHeap) Push(x interface{}) { *h = append(*h, x.(Payload)) }
func (h *reorderHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ReorderBuffer accumulates out-of-order payloads and releases them to
// a caller-supplied sink strictly in ascending SeqID order, with no
// gaps: Drain only emits a prefix of payloads whose SeqIDs are
// contiguous starting at the next expected id.
type ReorderBuffer struct {
	h        reorderHeap
	nextSeq  uint64
	started  bool
}

// NewReorderBuffer returns an empty ReorderBuffer. The first SeqID it
// ever sees establishes the starting sequence.
func NewReorderBuffer() *ReorderBuffer {
	return &ReorderBuffer{}
}

// Push adds one payload to the buffer.
func (r *ReorderBuffer) Push(p Payload) {
	if !r.started {
		r.nextSeq = p.SeqID
		r.started = true
	}
	heap.Push(&r.h, p)
}

// Drain pops and returns every payload that forms a contiguous run
// starting at the next expected SeqID, in order, leaving any gap
// in the buffer for a later Drain call once it's filled.
func (r *ReorderBuffer) Drain() []Payload {
	var out []Payload
	for r.h.Len() > 0 && r.h[0].SeqID == r.nextSeq {
		p := heap.Pop(&r.h).(Payload)
		out = append(out, p)
		r.nextSeq++
	}
	return out
}

// Len reports the number of payloads currently buffered.
func (r *ReorderBuffer) Len() int { return r.h.Len() }
