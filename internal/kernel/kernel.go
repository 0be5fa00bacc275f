// Package kernel defines the Operator contract (spec §4.G) that every
// kernel implementation — CPU today, other devices by way of their own
// execution providers — must satisfy, plus the process-wide registry
// that maps an op-type name to a factory for it.
package kernel

import (
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

// Context carries per-execution state a kernel may need beyond its
// input/output Tensors: the device it is bound to, and room to grow
// (a scratch allocator, a stream handle) without changing Operator's
// signature.
type Context struct {
	Device tensor.Device
}

// Operator is one kernel implementation of one op-type (spec §4.G).
// Execute reads from input Tensor borrows and writes into output
// Tensor borrows pre-allocated by the engine/planner; it MUST NOT
// resize an output — if a runtime shape differs from the one shape
// inference predicted, it returns an InvalidArgument ("ShapeMismatch"
// in spec terms), it does not reallocate.
type Operator interface {
	Name() string
	SetAttrs(attrs graph.Attrs)
	Validate(inputs []*tensor.Tensor) error
	InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error)
	Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, ctx *Context) error
}

// MultiOutputOperator is implemented by kernels (Split) whose output
// arity cannot be recovered from op-type + attrs alone — it depends on
// how many output Values the node declares. The provider calls
// SetOutputCount with len(node.Outputs) right after Create.
type MultiOutputOperator interface {
	Operator
	SetOutputCount(n int)
}
