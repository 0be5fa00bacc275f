package tensor

import "unsafe"

// AsFloat32 reinterprets t's bytes as a []float32. Panics if t's dtype
// is not F32. Adapted from the teacher's RawTensor.AsFloat32.
func AsFloat32(t *Tensor) []float32 {
	if t.dtype != F32 {
		panic("tensor: dtype is " + t.dtype.String() + ", not f32")
	}
	data := t.Data()
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy typed access; bounds are sized by NumElements
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), t.NumElements())
}

// AsInt64 reinterprets t's bytes as a []int64. Panics if t's dtype is
// not I64.
func AsInt64(t *Tensor) []int64 {
	if t.dtype != I64 {
		panic("tensor: dtype is " + t.dtype.String() + ", not i64")
	}
	data := t.Data()
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy typed access; bounds are sized by NumElements
	return unsafe.Slice((*int64)(unsafe.Pointer(&data[0])), t.NumElements())
}

// AsInt32 reinterprets t's bytes as a []int32. Panics if t's dtype is
// not I32.
func AsInt32(t *Tensor) []int32 {
	if t.dtype != I32 {
		panic("tensor: dtype is " + t.dtype.String() + ", not i32")
	}
	data := t.Data()
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy typed access; bounds are sized by NumElements
	return unsafe.Slice((*int32)(unsafe.Pointer(&data[0])), t.NumElements())
}

// AsUint8 reinterprets t's bytes as a []uint8. Panics if t's dtype is
// not U8.
func AsUint8(t *Tensor) []uint8 {
	if t.dtype != U8 {
		panic("tensor: dtype is " + t.dtype.String() + ", not u8")
	}
	return t.Data()
}

// AsBool reinterprets t's bytes as a []bool. Panics if t's dtype is
// not Bool.
func AsBool(t *Tensor) []bool {
	if t.dtype != Bool {
		panic("tensor: dtype is " + t.dtype.String() + ", not bool")
	}
	data := t.Data()
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy typed access; bounds are sized by NumElements
	return unsafe.Slice((*bool)(unsafe.Pointer(&data[0])), t.NumElements())
}
