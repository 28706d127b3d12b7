// Package typereg implements reflection-free struct serialization: a
// StructValue tagged-union interface user types implement, paired with
// a FieldDescriptor layout registered once per struct type, so the
// collection path never pays reflection cost on the hot tick path.
package typereg

import (
	"fmt"

	tcerrors "tracecap/pkg/errors"
	"tracecap/pkg/enumreg"
	"tracecap/pkg/frame"
	"tracecap/pkg/interning"
)

// PrimitiveKind is the underlying wire representation of a scalar
// field that isn't an enum or an interned string.
type PrimitiveKind int

const (
	PrimitiveInt8 PrimitiveKind = iota
	PrimitiveInt16
	PrimitiveInt32
	PrimitiveInt64
	PrimitiveUint8
	PrimitiveUint16
	PrimitiveUint32
	PrimitiveUint64
	PrimitiveFloat32
	PrimitiveFloat64
	PrimitiveBool
)

// Width returns the field's on-wire byte width. Bool is widened to 4
// bytes per the frame buffer's special rule.
func (p PrimitiveKind) Width() int {
	switch p {
	case PrimitiveInt8, PrimitiveUint8:
		return 1
	case PrimitiveInt16, PrimitiveUint16:
		return 2
	case PrimitiveInt32, PrimitiveUint32, PrimitiveFloat32, PrimitiveBool:
		return 4
	case PrimitiveInt64, PrimitiveUint64, PrimitiveFloat64:
		return 8
	default:
		return 0
	}
}

func (p PrimitiveKind) signed() bool {
	switch p {
	case PrimitiveInt8, PrimitiveInt16, PrimitiveInt32, PrimitiveInt64:
		return true
	default:
		return false
	}
}

// FieldKind distinguishes the five wire shapes a StructDescriptor
// field can take.
type FieldKind int

const (
	FieldPrimitive FieldKind = iota
	FieldEnum
	FieldInternedString
	FieldHexInt
	FieldFixedChar
)

// FieldDescriptor describes one struct field's name and wire layout.
// EnumName/EnumWidth are only meaningful when Kind is FieldEnum;
// Primitive only when Kind is FieldPrimitive or FieldHexInt; CharWidth
// only when Kind is FieldFixedChar.
type FieldDescriptor struct {
	Name      string
	Kind      FieldKind
	Primitive PrimitiveKind
	EnumName  string
	EnumWidth int
	CharWidth int
}

func (f FieldDescriptor) width() int {
	switch f.Kind {
	case FieldEnum:
		return f.EnumWidth
	case FieldInternedString:
		return 4 // interned strings serialize as their u32 id
	case FieldFixedChar:
		return f.CharWidth
	default:
		return f.Primitive.Width()
	}
}

// Value is the tagged union a StructValue implementation returns from
// FieldAt: exactly one of Int, Uint, Float64, or Str is meaningful,
// selected by the FieldDescriptor's Kind at that ordinal.
type Value struct {
	Int     int64
	Uint    uint64
	Float64 float64
	Str     string
}

// StructValue is implemented by every user struct type registered for
// collection. FieldAt must return the field at ordinal in the same
// order StructDescriptor.Fields lists them.
type StructValue interface {
	FieldAt(ordinal int) Value
}

// StructDescriptor is the registered wire layout for one struct type.
type StructDescriptor struct {
	Name   string
	Fields []FieldDescriptor
}

// Size returns the total serialized body size in bytes.
func (d StructDescriptor) Size() int {
	n := 0
	for _, f := range d.Fields {
		n += f.width()
	}
	return n
}

// Registry holds every struct type's StructDescriptor, plus the
// EnumRegistry backing any FieldEnum fields they reference.
type Registry struct {
	enums   *enumreg.Registry
	structs map[string]StructDescriptor
	order   []string
	drained int
}

// NewRegistry returns a Registry backed by enums for enum field lookups.
func NewRegistry(enums *enumreg.Registry) *Registry {
	return &Registry{enums: enums, structs: make(map[string]StructDescriptor)}
}

// Register adds a struct type's descriptor, validating that every
// FieldEnum field names an enum already registered in the backing
// EnumRegistry.
func (r *Registry) Register(d StructDescriptor) error {
	if _, ok := r.structs[d.Name]; ok {
		return tcerrors.NewConfigurationError("typereg.Register",
			fmt.Sprintf("struct %q already registered", d.Name))
	}
	for _, f := range d.Fields {
		if f.Kind == FieldEnum {
			if _, ok := r.enums.Get(f.EnumName); !ok {
				return tcerrors.NewConfigurationError("typereg.Register",
					fmt.Sprintf("struct %q field %q references unregistered enum %q", d.Name, f.Name, f.EnumName))
			}
		}
	}
	r.structs[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Get returns the descriptor for a registered struct type name.
func (r *Registry) Get(name string) (StructDescriptor, bool) {
	d, ok := r.structs[name]
	return d, ok
}

// DrainNew returns every StructDescriptor registered since the last
// DrainNew call, for the metadata emitter to write StructFields rows
// exactly once per struct type.
func (r *Registry) DrainNew() []StructDescriptor {
	if r.drained >= len(r.order) {
		return nil
	}
	out := make([]StructDescriptor, 0, len(r.order)-r.drained)
	for i := r.drained; i < len(r.order); i++ {
		out = append(out, r.structs[r.order[i]])
	}
	r.drained = len(r.order)
	return out
}

// WriteStruct serializes instance's fields into buf in descriptor
// order, interning any FieldInternedString value through interner
// first. Each field is read from the Value member selected by the
// descriptor's kind and width; Value carries no tag, so a Value filled
// for a different kind is not detected and does not produce a
// SerializationError. The only error returned is for an unknown
// FieldKind.
func WriteStruct(d StructDescriptor, instance StructValue, interner *interning.Interner, buf *frame.Buffer) error {
	for i, f := range d.Fields {
		v := instance.FieldAt(i)
		switch f.Kind {
		case FieldPrimitive:
			if err := writePrimitive(buf, f.Primitive, v); err != nil {
				return tcerrors.NewSerializationError(d.Name, f.Name, err.Error())
			}
		case FieldEnum:
			buf.WriteIntWidth(f.EnumWidth, v.Int)
		case FieldHexInt:
			if err := writePrimitive(buf, f.Primitive, v); err != nil {
				return tcerrors.NewSerializationError(d.Name, f.Name, err.Error())
			}
		case FieldInternedString:
			id := interner.Intern(v.Str)
			buf.WriteUint32(id)
		case FieldFixedChar:
			buf.WriteFixedChar(f.CharWidth, v.Str)
		default:
			return tcerrors.NewSerializationError(d.Name, f.Name, "unknown field kind")
		}
	}
	return nil
}

func writePrimitive(buf *frame.Buffer, p PrimitiveKind, v Value) error {
	switch p {
	case PrimitiveFloat32:
		buf.WriteFloat32(float32(v.Float64))
	case PrimitiveFloat64:
		buf.WriteFloat64(v.Float64)
	case PrimitiveBool:
		buf.WriteBoolWidened(v.Int != 0)
	default:
		if p.signed() {
			buf.WriteIntWidth(p.Width(), v.Int)
		} else {
			buf.WriteUintWidth(p.Width(), v.Uint)
		}
	}
	return nil
}
