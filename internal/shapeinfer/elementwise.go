package shapeinfer

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

// binaryElementwise is shared by Add/Sub/Mul/Div (spec §4.H: "elementwise
// over equally-shaped f32 inputs; broadcasting not required beyond
// identical shapes for this spec").
func binaryElementwise(ins []*graph.Value, _ graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) != 2 {
		return nil, nil, verr.New(verr.InvalidArgument, "expected 2 inputs, got %d", len(ins))
	}
	a, b := ins[0], ins[1]
	if a.Shape.IsStatic() && b.Shape.IsStatic() && !a.Shape.Equal(b.Shape) {
		return nil, nil, verr.New(verr.InvalidArgument, "shape mismatch: %s vs %s", a.Shape, b.Shape)
	}
	out := a.Shape
	if !a.Shape.IsStatic() {
		out = b.Shape
	}
	return []tensor.Shape{out}, []tensor.DataType{sameDType(a.DType, b.DType)}, nil
}

// unaryElementwise covers the activation functions whose output shape
// and dtype equal the input's (Relu, Sigmoid, Tanh, Gelu, Silu,
// Softmax).
func unaryElementwise(ins []*graph.Value, _ graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) != 1 {
		return nil, nil, verr.New(verr.InvalidArgument, "expected 1 input, got %d", len(ins))
	}
	return []tensor.Shape{ins[0].Shape}, []tensor.DataType{ins[0].DType}, nil
}

func registerElementwiseRules() {
	Register("Add", binaryElementwise)
	Register("Sub", binaryElementwise)
	Register("Mul", binaryElementwise)
	Register("Div", binaryElementwise)

	Register("Relu", unaryElementwise)
	Register("Sigmoid", unaryElementwise)
	Register("Tanh", unaryElementwise)
	Register("Gelu", unaryElementwise)
	Register("Silu", unaryElementwise)
	Register("Softmax", unaryElementwise)
}
