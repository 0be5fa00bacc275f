// Package tensor is the public facade over internal/tensor (spec
// §3/§4.A): the n-d buffer type passed across the Session API boundary
// (§6). It re-exports the internal types directly rather than wrapping
// them, mirroring the teacher repo's top-level tensor package.
package tensor

import (
	"io"

	"github.com/veloxrt/velox/internal/tensor"
)

// Tensor is the runtime's n-d buffer: owning, shared, or a borrowed
// view, with shape/dtype/device/layout tags.
type Tensor = tensor.Tensor

// Shape, Dim, DataType, Device and Layout are the tags a Tensor
// carries.
type (
	Shape    = tensor.Shape
	Dim      = tensor.Dim
	DataType = tensor.DataType
	Device   = tensor.Device
	Layout   = tensor.Layout
)

// Data type constants.
const (
	Unknown = tensor.Unknown
	F32     = tensor.F32
	F16     = tensor.F16
	BF16    = tensor.BF16
	I8      = tensor.I8
	I16     = tensor.I16
	I32     = tensor.I32
	I64     = tensor.I64
	U8      = tensor.U8
	U16     = tensor.U16
	U32     = tensor.U32
	U64     = tensor.U64
	Bool    = tensor.Bool
	String  = tensor.String
)

// Device constants.
const (
	Host   = tensor.Host
	CUDA   = tensor.CUDA
	WebGPU = tensor.WebGPU
)

// Layout constants.
const (
	LayoutNone = tensor.LayoutNone
	NCHW       = tensor.NCHW
	NHWC       = tensor.NHWC
	NCDHW      = tensor.NCDHW
	NDHWC      = tensor.NDHWC
)

// StaticShape builds a Shape from concrete sizes.
func StaticShape(dims ...int64) Shape { return tensor.StaticShape(dims...) }

// Static returns a concrete dimension.
func Static(size int64) Dim { return tensor.Static(size) }

// Any returns a dynamic dimension.
func Any() Dim { return tensor.Any() }

// Create allocates a new owning Tensor.
func Create(shape Shape, dtype DataType, device Device) (*Tensor, error) {
	return tensor.Create(shape, dtype, device)
}

// CreateAligned allocates a new owning Tensor with an explicit minimum
// alignment.
func CreateAligned(shape Shape, dtype DataType, device Device, align int) (*Tensor, error) {
	return tensor.CreateAligned(shape, dtype, device, align)
}

// CreateView builds a non-owning Tensor over caller-supplied bytes.
func CreateView(shape Shape, dtype DataType, data []byte, layout Layout, device Device) (*Tensor, error) {
	return tensor.CreateView(shape, dtype, data, layout, device)
}

// AsFloat32, AsInt64, AsInt32, AsUint8, and AsBool expose typed views
// over a Tensor's bytes.
var (
	AsFloat32 = tensor.AsFloat32
	AsInt64   = tensor.AsInt64
	AsInt32   = tensor.AsInt32
	AsUint8   = tensor.AsUint8
	AsBool    = tensor.AsBool
)

// Deserialize reads a Tensor previously written by Tensor.Serialize.
func Deserialize(r io.Reader, device Device) (*Tensor, error) {
	return tensor.Deserialize(r, device)
}
