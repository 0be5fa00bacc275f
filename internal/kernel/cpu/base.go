// Package cpu is the baseline CPU kernel library of spec §4.H: a
// contract-level implementation of the operator set a Transformer-
// class model needs, float32-first. MatMul splits its rows across
// goroutines via internal/parallel; the other kernels run serially.
// Numerics are adapted
// from the teacher repo's internal/backend/cpu and internal/nn
// packages, re-hosted behind the kernel.Operator contract instead of
// the teacher's generic Tensor[T,B]/Backend interfaces.
package cpu

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

// base is embedded by every kernel to provide the shared attribute
// storage and the SetAttrs half of the Operator contract.
type base struct {
	attrs graph.Attrs
}

func (b *base) SetAttrs(attrs graph.Attrs) { b.attrs = attrs }

func requireArity(inputs []*tensor.Tensor, n int, op string) error {
	if len(inputs) != n {
		return verr.New(verr.InvalidArgument, "%s: expected %d inputs, got %d", op, n, len(inputs))
	}
	return nil
}

func requireMinArity(inputs []*tensor.Tensor, n int, op string) error {
	if len(inputs) < n {
		return verr.New(verr.InvalidArgument, "%s: expected at least %d inputs, got %d", op, n, len(inputs))
	}
	return nil
}

func requireF32(t *tensor.Tensor, op, role string) error {
	if t.DType() != tensor.F32 {
		return verr.New(verr.InvalidArgument, "%s: %s must be f32, got %s", op, role, t.DType())
	}
	return nil
}

// checkOutputShape enforces the "kernel MUST NOT resize outputs"
// invariant of spec §4.G: a runtime output shape that disagrees with
// what was planned is a hard InvalidArgument ("ShapeMismatch" in spec
// terms), not a silent reallocation.
func checkOutputShape(out *tensor.Tensor, want tensor.Shape, op string) error {
	if !out.Shape().Equal(want) {
		return verr.New(verr.InvalidArgument, "%s: output tensor shape %s does not match planned shape %s", op, out.Shape(), want)
	}
	return nil
}

func equalShapes(a, b tensor.Shape, op string) error {
	if !a.Equal(b) {
		return verr.New(verr.InvalidArgument, "%s: shape mismatch %s vs %s", op, a, b)
	}
	return nil
}
