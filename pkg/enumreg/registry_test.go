package enumreg

import "testing"

func TestRegisterIsIdempotentForIdenticalLabelSets(t *testing.T) {
	r := New()
	d := Defn{EnumName: "Color", Labels: []Label{{Name: "Red", Value: 0}, {Name: "Blue", Value: 1}}, UnderlyingWidth: 1}

	if err := r.Register(d); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(d); err != nil {
		t.Fatalf("second identical register should be a no-op, got: %v", err)
	}
	if got := len(r.DrainNew()); got != 1 {
		t.Fatalf("expected exactly 1 drained defn despite double registration, got %d", got)
	}
}

func TestRegisterConflictingLabelsFails(t *testing.T) {
	r := New()
	first := Defn{EnumName: "Color", Labels: []Label{{Name: "Red", Value: 0}}, UnderlyingWidth: 1}
	second := Defn{EnumName: "Color", Labels: []Label{{Name: "Red", Value: 1}}, UnderlyingWidth: 1}

	if err := r.Register(first); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(second); err == nil {
		t.Fatalf("expected a conflict error registering a different label set under the same name")
	}
}

func TestDrainNewOnlyReturnsTheDelta(t *testing.T) {
	r := New()
	r.Register(Defn{EnumName: "A", Labels: []Label{{Name: "X", Value: 0}}, UnderlyingWidth: 1})
	first := r.DrainNew()
	if len(first) != 1 {
		t.Fatalf("expected 1, got %d", len(first))
	}
	if again := r.DrainNew(); again != nil {
		t.Fatalf("expected nil on empty delta, got %v", again)
	}

	r.Register(Defn{EnumName: "B", Labels: []Label{{Name: "Y", Value: 1}}, UnderlyingWidth: 2})
	second := r.DrainNew()
	if len(second) != 1 || second[0].EnumName != "B" {
		t.Fatalf("unexpected second drain: %+v", second)
	}
}

func TestGetReturnsRegisteredDefn(t *testing.T) {
	r := New()
	d := Defn{EnumName: "Color", Labels: []Label{{Name: "Red", Value: 0}}, UnderlyingWidth: 1}
	r.Register(d)

	got, ok := r.Get("Color")
	if !ok || got.EnumName != "Color" {
		t.Fatalf("expected to find Color, got %+v, %v", got, ok)
	}
	if _, ok := r.Get("Missing"); ok {
		t.Fatalf("expected false for unregistered enum")
	}
}
