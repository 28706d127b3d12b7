// Package interning implements tracecap's string interner: a dense,
// monotonically-assigned id for every distinct string value collected
// into a trace.
package interning

// Interner maps strings to dense uint32 ids, assigned first-come and
// never reused. Per the manager's concurrency contract (spec §4.1),
// Intern is only ever called from Collectable.collect() on the
// producer thread, and DrainNew only from the Stage-B commit task
// before it issues the INSERTs for the new entries. Interner has no
// internal locking: it is not safe to call Intern concurrently with
// itself or with DrainNew, so the manager makes both calls under its
// own mutex.
type Interner struct {
	ids     map[string]uint32
	ordered []string
	drained int
}

// New returns an empty Interner.
func New() *Interner {
	return &Interner{ids: make(map[string]uint32)}
}

// Intern returns text's id, assigning a new one if text has not been
// seen before. Ids are the current size of the map at assignment time.
func (in *Interner) Intern(text string) uint32 {
	if id, ok := in.ids[text]; ok {
		return id
	}
	id := uint32(len(in.ordered))
	in.ids[text] = id
	in.ordered = append(in.ordered, text)
	return id
}

// Entry is one (id, text) pair.
type Entry struct {
	ID   uint32
	Text string
}

// DrainNew returns every (id, text) pair added since the last DrainNew
// call (or since construction), in assignment order, and clears that
// delta.
func (in *Interner) DrainNew() []Entry {
	if in.drained >= len(in.ordered) {
		return nil
	}
	entries := make([]Entry, 0, len(in.ordered)-in.drained)
	for i := in.drained; i < len(in.ordered); i++ {
		entries = append(entries, Entry{ID: uint32(i), Text: in.ordered[i]})
	}
	in.drained = len(in.ordered)
	return entries
}

// Len returns the total number of distinct strings interned so far.
func (in *Interner) Len() int {
	return len(in.ordered)
}

// Text returns the string for id, and whether id has been assigned.
func (in *Interner) Text(id uint32) (string, bool) {
	if int(id) >= len(in.ordered) {
		return "", false
	}
	return in.ordered[id], true
}
