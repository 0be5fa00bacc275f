package tensor

import (
	"fmt"

	verr "github.com/veloxrt/velox/errors"
)

// Ownership classifies how a Tensor's bytes are managed, per spec §9's
// three flavours.
type Ownership int

const (
	// Owning tensors allocate from the device pool on construction and
	// release their buffer when the refcount drops to zero.
	Owning Ownership = iota
	// Shared tensors reference-share an Owning tensor's buffer (created
	// by Reshape/Slice); releasing one decrements the shared
	// refcount rather than freeing unconditionally.
	Shared
	// View tensors borrow a caller-supplied byte region directly and
	// never free it; the caller asserts the region outlives the view
	// (spec §4.A CreateView).
	View
)

// DefaultAlign is the minimum alignment Create uses. SIMD kernels that
// need 64-byte alignment should call CreateAligned directly.
const DefaultAlign = 16

// SIMDAlign is the alignment used by kernels requiring vectorized
// access to contiguous buffers.
const SIMDAlign = 64

// Tensor is the n-d buffer described in spec §3/§4.A.
type Tensor struct {
	shape  Shape
	dtype  DataType
	device Device
	layout Layout
	mode   Ownership

	buf         *sharedBuffer // Owning / Shared
	rawView     []byte        // View
	offsetBytes int
}

// Create allocates a new owning Tensor of the given shape and dtype on
// device, using DefaultAlign.
func Create(shape Shape, dtype DataType, device Device) (*Tensor, error) {
	return CreateAligned(shape, dtype, device, DefaultAlign)
}

// CreateAligned allocates a new owning Tensor with an explicit minimum
// alignment (spec §4.A: "alignment >= 16 bytes, 64 bytes where SIMD
// kernels require it").
func CreateAligned(shape Shape, dtype DataType, device Device, align int) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, verr.Wrap(verr.InvalidArgument, err, "create tensor")
	}
	if !shape.IsStatic() {
		return nil, verr.New(verr.InvalidArgument, "create: shape %s has dynamic dims, cannot allocate", shape)
	}
	byteSize := int(shape.NumElements()) * dtype.Size()
	buf := newSharedBuffer(device, byteSize, align)
	if buf.data == nil && byteSize > 0 {
		return nil, verr.New(verr.OutOfMemory, "create: failed to allocate %d bytes on %s", byteSize, device)
	}
	return &Tensor{
		shape:  shape.Clone(),
		dtype:  dtype,
		device: device,
		mode:   Owning,
		buf:    buf,
	}, nil
}

// CreateView builds a non-owning Tensor over a caller-supplied byte
// region. The caller is responsible for ensuring data outlives the
// view; the view never frees it.
func CreateView(shape Shape, dtype DataType, data []byte, layout Layout, device Device) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, verr.Wrap(verr.InvalidArgument, err, "create view")
	}
	return &Tensor{
		shape:   shape.Clone(),
		dtype:   dtype,
		device:  device,
		layout:  layout,
		mode:    View,
		rawView: data,
	}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape { return t.shape }

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType { return t.dtype }

// Device returns the tensor's device.
func (t *Tensor) Device() Device { return t.device }

// Layout returns the tensor's memory layout tag.
func (t *Tensor) Layout() Layout { return t.layout }

// SetLayout sets the memory layout tag (used by the layout-assignment
// optimizer pass, which does not move bytes, only relabels them).
func (t *Tensor) SetLayout(l Layout) { t.layout = l }

// Ownership reports how the tensor's bytes are managed.
func (t *Tensor) Ownership() Ownership { return t.mode }

// NumElements returns the element count (product of shape dims).
func (t *Tensor) NumElements() int64 { return t.shape.NumElements() }

// ByteSize returns element count * dtype size.
func (t *Tensor) ByteSize() int64 { return t.NumElements() * int64(t.dtype.Size()) }

// Data returns the tensor's raw bytes. Mutating the returned slice
// mutates the tensor.
func (t *Tensor) Data() []byte {
	switch t.mode {
	case View:
		return t.rawView
	default:
		return t.buf.data[t.offsetBytes : t.offsetBytes+int(t.ByteSize())]
	}
}

// IsUnique reports whether this is the sole reference to its backing
// buffer (Owning/Shared only); callers use this to decide whether an
// inplace kernel fast path is safe. View tensors are never unique in
// this sense since their lifetime isn't tracked here.
func (t *Tensor) IsUnique() bool {
	if t.mode == View {
		return false
	}
	return t.buf.isUnique()
}

// Reshape returns a view sharing this tensor's data with a new shape.
// Fails with InvalidArgument (ShapeMismatch in spec terms) if element
// counts differ while both are concrete.
func (t *Tensor) Reshape(newShape Shape) (*Tensor, error) {
	if newShape.IsStatic() && t.shape.IsStatic() && newShape.NumElements() != t.NumElements() {
		return nil, verr.New(verr.InvalidArgument,
			"reshape: %s has %d elements, requested shape %s has %d", t.shape, t.NumElements(), newShape, newShape.NumElements())
	}
	return t.shareView(newShape, t.offsetBytes, int(t.ByteSize())), nil
}

// shareView builds a Shared tensor over the same buffer (or the same
// raw region, for a View source) at the given byte range.
func (t *Tensor) shareView(shape Shape, offset, size int) *Tensor {
	if t.mode == View {
		return &Tensor{
			shape: shape.Clone(), dtype: t.dtype, device: t.device, layout: t.layout,
			mode: View, rawView: t.rawView[offset-t.offsetBytes : offset-t.offsetBytes+size],
		}
	}
	t.buf.addRef()
	return &Tensor{
		shape: shape.Clone(), dtype: t.dtype, device: t.device, layout: t.layout,
		mode: Shared, buf: t.buf, offsetBytes: offset,
	}
}

// sliceSpec is one dimension's resolved slice parameters.
type sliceSpec struct {
	start, end, step int64
	outSize          int64
}

// Slice returns a view (or, where stride-breaking, a materialized
// copy) of the tensor per spec §4.A. starts/ends/steps must each have
// length equal to the tensor's rank.
func (t *Tensor) Slice(starts, ends, steps []int64) (*Tensor, error) {
	rank := t.shape.Rank()
	if len(starts) != rank || len(ends) != rank || len(steps) != rank {
		return nil, verr.New(verr.InvalidArgument, "slice: expected %d-length starts/ends/steps, got %d/%d/%d",
			rank, len(starts), len(ends), len(steps))
	}

	specs := make([]sliceSpec, rank)
	contiguousPrefix := true
	sawNonFull := false
	for i := 0; i < rank; i++ {
		if steps[i] == 0 {
			return nil, verr.New(verr.InvalidArgument, "slice: step 0 at dim %d", i)
		}
		dim := t.shape[i].Size
		start := resolveIndex(starts[i], dim)
		end := resolveIndex(ends[i], dim)
		step := steps[i]

		var outSize int64
		if step > 0 {
			if end > start {
				outSize = (end - start + step - 1) / step
			}
		} else {
			if start > end {
				outSize = (start - end + (-step) - 1) / (-step)
			}
		}
		specs[i] = sliceSpec{start: start, end: end, step: step, outSize: outSize}

		full := step == 1 && start == 0 && outSize == dim
		if !full {
			if sawNonFull {
				contiguousPrefix = false
			}
			// Restricting a dim after a full dim of extent > 1 leaves
			// gaps between rows, so no single offset view covers it.
			for j := 0; j < i && !sawNonFull; j++ {
				if specs[j].outSize != 1 {
					contiguousPrefix = false
				}
			}
			sawNonFull = true
			if step != 1 {
				contiguousPrefix = false
			}
		}
	}

	outShape := make(Shape, rank)
	for i, s := range specs {
		outShape[i] = Static(s.outSize)
	}

	if contiguousPrefix && rank > 0 {
		// Only the leading dims (conventionally dim 0, a batch axis)
		// are actually restricted and with unit step: a pure offset
		// view suffices, no copy needed.
		strides := t.shape.Strides()
		offsetElems := int64(0)
		for i, s := range specs {
			offsetElems += s.start * strides[i]
		}
		offsetBytes := t.offsetBytes + int(offsetElems)*t.dtype.Size()
		size := int(outShape.NumElements()) * t.dtype.Size()
		return t.shareView(outShape, offsetBytes, size), nil
	}

	// Stride-breaking or non-unit-step slice: materialize a copy
	// (spec §9: "should materialise to a new owned Tensor rather than
	// fabricate an aliased view whose stride machinery the rest of the
	// system is not prepared for").
	return t.materializeSlice(outShape, specs)
}

func resolveIndex(idx, dim int64) int64 {
	if idx < 0 {
		idx += dim
	}
	if idx < 0 {
		idx = 0
	}
	if idx > dim {
		idx = dim
	}
	return idx
}

func (t *Tensor) materializeSlice(outShape Shape, specs []sliceSpec) (*Tensor, error) {
	out, err := Create(outShape, t.dtype, t.device)
	if err != nil {
		return nil, err
	}
	elemSize := t.dtype.Size()
	srcStrides := t.shape.Strides()
	src := t.Data()
	dst := out.Data()

	rank := len(specs)
	idx := make([]int64, rank)
	total := int(outShape.NumElements())
	for linear := 0; linear < total; linear++ {
		srcOffsetElems := int64(0)
		rem := linear
		for d := rank - 1; d >= 0; d-- {
			size := int(outShape[d].Size)
			var coord int
			if size > 0 {
				coord = rem % size
				rem /= size
			}
			idx[d] = int64(coord)
			srcOffsetElems += (specs[d].start + idx[d]*specs[d].step) * srcStrides[d]
		}
		srcByteOff := int(srcOffsetElems) * elemSize
		copy(dst[linear*elemSize:(linear+1)*elemSize], src[srcByteOff:srcByteOff+elemSize])
	}
	return out, nil
}

// CopyTo copies this tensor's contents into dst. Shapes and dtypes
// must match. Same-device copies and copies with Host on either side
// are a byte copy. A copy between two different non-Host devices
// returns NotImplemented; there is no host-staging path for it.
func (t *Tensor) CopyTo(dst *Tensor) error {
	if !t.shape.Equal(dst.shape) {
		return verr.New(verr.InvalidArgument, "copyto: shape mismatch %s vs %s", t.shape, dst.shape)
	}
	if t.dtype != dst.dtype {
		return verr.New(verr.InvalidArgument, "copyto: dtype mismatch %s vs %s", t.dtype, dst.dtype)
	}
	if t.device != dst.device && t.device != Host && dst.device != Host {
		return verr.New(verr.NotImplemented, "copyto: cross-device copy %s->%s requires host staging", t.device, dst.device)
	}
	copy(dst.Data(), t.Data())
	return nil
}

// FillZero zeroes the tensor's entire data region.
func (t *Tensor) FillZero() {
	data := t.Data()
	for i := range data {
		data[i] = 0
	}
}

// FillValue broadcast-fills the tensor with a scalar. Only F32 and I64
// are supported directly; other dtypes return NotImplemented.
func (t *Tensor) FillValue(scalar any) error {
	switch t.dtype {
	case F32:
		v, ok := scalar.(float32)
		if !ok {
			return verr.New(verr.InvalidArgument, "fillvalue: expected float32 for F32 tensor")
		}
		dst := AsFloat32(t)
		for i := range dst {
			dst[i] = v
		}
	case I64:
		v, ok := scalar.(int64)
		if !ok {
			return verr.New(verr.InvalidArgument, "fillvalue: expected int64 for I64 tensor")
		}
		dst := AsInt64(t)
		for i := range dst {
			dst[i] = v
		}
	default:
		return verr.New(verr.NotImplemented, "fillvalue: dtype %s not supported", t.dtype)
	}
	return nil
}

// Clone creates an independent owning copy of the tensor's bytes.
func (t *Tensor) Clone() (*Tensor, error) {
	out, err := Create(t.shape, t.dtype, t.device)
	if err != nil {
		return nil, err
	}
	copy(out.Data(), t.Data())
	return out, nil
}

// Release decrements the tensor's backing buffer refcount (Owning and
// Shared), freeing it once it reaches zero. View tensors never free.
func (t *Tensor) Release() {
	if t.mode == View || t.buf == nil {
		return
	}
	t.buf.release()
}

// String renders the tensor for debugging.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[%s]%s@%s", t.dtype, t.shape, t.device)
}
