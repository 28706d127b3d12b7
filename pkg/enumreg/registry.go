// Package enumreg is the per-enum-type name→underlying-int registry.
// Each distinct enum is registered once; its labels are emitted to the
// store's EnumDefns table exactly once, guarded by DrainNew the same
// way pkg/interning guards string-map deltas.
package enumreg

import (
	"fmt"

	tcerrors "tracecap/pkg/errors"
)

// Label is one (name, underlying value) pair of an enum.
type Label struct {
	Name  string
	Value int64
}

// Defn is one enum type's full label set, plus the byte width of its
// underlying integer representation (1, 2, 4, or 8).
type Defn struct {
	EnumName        string
	Labels          []Label
	UnderlyingWidth int
}

// Registry holds every distinct enum type registered so far.
type Registry struct {
	defs    map[string]Defn
	order   []string
	drained int
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{defs: make(map[string]Defn)}
}

// Register adds enumName's definition. Registering the same enumName
// twice is a no-op as long as the label set is identical; registering
// it with a different label set is a ConfigurationError, since struct
// fields referencing the same enum type must agree on its meaning.
func (r *Registry) Register(d Defn) error {
	if existing, ok := r.defs[d.EnumName]; ok {
		if !sameLabels(existing.Labels, d.Labels) {
			return tcerrors.NewConfigurationError("enumreg.Register",
				fmt.Sprintf("enum %q already registered with a different label set", d.EnumName))
		}
		return nil
	}
	r.defs[d.EnumName] = d
	r.order = append(r.order, d.EnumName)
	return nil
}

func sameLabels(a, b []Label) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Get returns enumName's definition, if registered.
func (r *Registry) Get(enumName string) (Defn, bool) {
	d, ok := r.defs[enumName]
	return d, ok
}

// DrainNew returns every Defn registered since the last DrainNew call
// and clears that delta, in registration order.
func (r *Registry) DrainNew() []Defn {
	if r.drained >= len(r.order) {
		return nil
	}
	out := make([]Defn, 0, len(r.order)-r.drained)
	for i := r.drained; i < len(r.order); i++ {
		out = append(out, r.defs[r.order[i]])
	}
	r.drained = len(r.order)
	return out
}
