// Package shapeinfer implements the per-op shape/dtype inference rules
// and the whole-graph inference pass of spec §4.D.
package shapeinfer

import (
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

// Rule computes output shapes and dtypes for one node given its
// resolved input Values. Rules may read Tensor data off an input Value
// only when that Value is an initializer (Kind == ValueInitializer) —
// e.g. Reshape's shape tensor and Slice's index tensors — per spec
// §4.D's purity requirement. When a needed initializer is absent the
// rule marks the affected output dim dynamic instead of failing.
type Rule func(ins []*graph.Value, attrs graph.Attrs) ([]tensor.Shape, []tensor.DataType, error)

// dim reads dim i of shape s, returning a dynamic dim if out of range
// (defensive; validate() is expected to have already rejected rank
// mismatches by the time shape inference runs).
func dim(s tensor.Shape, i int) tensor.Dim {
	if i < 0 || i >= len(s) {
		return tensor.Any()
	}
	return s[i]
}

// sameDType returns a, or b if a is Unknown — used by elementwise
// rules where both inputs are expected to share a dtype but one side
// may not have been resolved yet.
func sameDType(a, b tensor.DataType) tensor.DataType {
	if a != tensor.Unknown {
		return a
	}
	return b
}
