// Package tensor implements the n-dimensional buffer described in spec
// §3/§4.A: an owning-or-view Tensor with shape, dtype, device and
// layout tags, backed by the per-device memory pool.
package tensor

// DataType is the runtime element type of a Tensor.
type DataType int

// Supported data types (spec §3).
const (
	Unknown DataType = iota
	F32
	F16
	BF16
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	Bool
	String
)

// Size returns the per-element byte size of the data type. String and
// Unknown have no fixed element size and return 0; kernels that need
// string payloads size them explicitly rather than through this path.
func (dt DataType) Size() int {
	switch dt {
	case F32, I32, U32:
		return 4
	case F16, BF16, I16, U16:
		return 2
	case I64, U64:
		return 8
	case I8, U8, Bool:
		return 1
	default:
		return 0
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case F32:
		return "f32"
	case F16:
		return "f16"
	case BF16:
		return "bf16"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case Bool:
		return "bool"
	case String:
		return "string"
	default:
		return "unknown"
	}
}
