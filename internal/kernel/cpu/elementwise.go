package cpu

import (
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/tensor"
)

type binaryOp struct {
	base
	name string
	apply func(a, b float32) float32
}

func (k *binaryOp) Name() string { return k.name }

func (k *binaryOp) Validate(inputs []*tensor.Tensor) error {
	if err := requireArity(inputs, 2, k.name); err != nil {
		return err
	}
	if err := requireF32(inputs[0], k.name, "lhs"); err != nil {
		return err
	}
	if err := requireF32(inputs[1], k.name, "rhs"); err != nil {
		return err
	}
	return equalShapes(inputs[0].Shape(), inputs[1].Shape(), k.name)
}

func (k *binaryOp) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	return []tensor.Shape{inputs[0].Shape()}, nil
}

func (k *binaryOp) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, k.name); err != nil {
		return err
	}
	if err := checkOutputShape(outputs[0], inputs[0].Shape(), k.name); err != nil {
		return err
	}
	a := tensor.AsFloat32(inputs[0])
	b := tensor.AsFloat32(inputs[1])
	out := tensor.AsFloat32(outputs[0])
	for i := range out {
		out[i] = k.apply(a[i], b[i])
	}
	return nil
}

// divEpsilon is the magnitude below which Div treats the divisor as
// zero and yields 0 rather than Inf/NaN (spec §4.H).
const divEpsilon = 1e-8

func absf32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func newAdd() kernel.Operator {
	return &binaryOp{name: "Add", apply: func(a, b float32) float32 { return a + b }}
}

func newSub() kernel.Operator {
	return &binaryOp{name: "Sub", apply: func(a, b float32) float32 { return a - b }}
}

func newMul() kernel.Operator {
	return &binaryOp{name: "Mul", apply: func(a, b float32) float32 { return a * b }}
}

func newDiv() kernel.Operator {
	return &binaryOp{name: "Div", apply: func(a, b float32) float32 {
		if absf32(b) < divEpsilon {
			return 0
		}
		return a / b
	}}
}
