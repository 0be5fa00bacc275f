package graph

import "github.com/veloxrt/velox/internal/tensor"

// AttrKind identifies which field of an Attribute is populated.
type AttrKind int

// The attribute kinds of spec §3: "a tagged value of exactly one of...".
const (
	AttrF32 AttrKind = iota
	AttrI64
	AttrString
	AttrFloats
	AttrInts
	AttrTensor
)

// Attribute is a tagged union of the value kinds a Node's attribute map
// may hold. Exactly one field is meaningful, selected by Kind — the
// direct replacement spec §9 prescribes for a source that used a
// family of type-specific getters on a single class.
type Attribute struct {
	Kind   AttrKind
	F32    float32
	I64    int64
	Str    string
	Floats []float32
	Ints   []int64
	Tensor *tensor.Tensor
}

// Attrs is the attribute map a Node carries.
type Attrs map[string]Attribute

// F32 looks up a float32 attribute, returning def if absent or of the
// wrong kind.
func (a Attrs) F32(name string, def float32) float32 {
	if v, ok := a[name]; ok && v.Kind == AttrF32 {
		return v.F32
	}
	return def
}

// I64 looks up an int64 attribute, returning def if absent or of the
// wrong kind.
func (a Attrs) I64(name string, def int64) int64 {
	if v, ok := a[name]; ok && v.Kind == AttrI64 {
		return v.I64
	}
	return def
}

// Str looks up a string attribute, returning def if absent or of the
// wrong kind.
func (a Attrs) Str(name string, def string) string {
	if v, ok := a[name]; ok && v.Kind == AttrString {
		return v.Str
	}
	return def
}

// Floats looks up a float32-vector attribute.
func (a Attrs) Floats(name string) []float32 {
	if v, ok := a[name]; ok && v.Kind == AttrFloats {
		return v.Floats
	}
	return nil
}

// Ints looks up an int64-vector attribute.
func (a Attrs) Ints(name string) []int64 {
	if v, ok := a[name]; ok && v.Kind == AttrInts {
		return v.Ints
	}
	return nil
}

// TensorAttr looks up a tensor-valued attribute.
func (a Attrs) TensorAttr(name string) (*tensor.Tensor, bool) {
	if v, ok := a[name]; ok && v.Kind == AttrTensor {
		return v.Tensor, true
	}
	return nil, false
}
