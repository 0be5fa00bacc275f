package cpu

import (
	"math"

	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/tensor"
)

// unaryOp covers the pointwise activations whose output shape equals
// the input's: Relu, Sigmoid, Tanh, Gelu, Silu.
type unaryOp struct {
	base
	name  string
	apply func(x float32) float32
}

func (k *unaryOp) Name() string { return k.name }

func (k *unaryOp) Validate(inputs []*tensor.Tensor) error {
	if err := requireArity(inputs, 1, k.name); err != nil {
		return err
	}
	return requireF32(inputs[0], k.name, "input")
}

func (k *unaryOp) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	return []tensor.Shape{inputs[0].Shape()}, nil
}

func (k *unaryOp) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, k.name); err != nil {
		return err
	}
	if err := checkOutputShape(outputs[0], inputs[0].Shape(), k.name); err != nil {
		return err
	}
	src := tensor.AsFloat32(inputs[0])
	dst := tensor.AsFloat32(outputs[0])
	for i, x := range src {
		dst[i] = k.apply(x)
	}
	return nil
}

func newRelu() kernel.Operator {
	return &unaryOp{name: "Relu", apply: func(x float32) float32 {
		if x < 0 {
			return 0
		}
		return x
	}}
}

func sigmoidF32(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func newSigmoid() kernel.Operator {
	return &unaryOp{name: "Sigmoid", apply: sigmoidF32}
}

func newTanh() kernel.Operator {
	return &unaryOp{name: "Tanh", apply: func(x float32) float32 { return float32(math.Tanh(float64(x))) }}
}

// geluConst is sqrt(2/pi) for the tanh-approximation GELU of spec §4.H.
const geluConst = 0.7978845608028654

func newGelu() kernel.Operator {
	return &unaryOp{name: "Gelu", apply: func(x float32) float32 {
		x64 := float64(x)
		inner := geluConst * (x64 + 0.044715*x64*x64*x64)
		return float32(0.5 * x64 * (1 + math.Tanh(inner)))
	}}
}

func newSilu() kernel.Operator {
	return &unaryOp{name: "Silu", apply: func(x float32) float32 { return x * sigmoidF32(x) }}
}

// softmax implements numerically-stable softmax along attribute "axis"
// (default -1): subtract the row max, exponentiate, normalize. Adapted
// from the teacher's strided row-walk in internal/backend/cpu/activation.go.
type softmax struct{ base }

func (k *softmax) Name() string { return "Softmax" }

func (k *softmax) Validate(inputs []*tensor.Tensor) error {
	if err := requireArity(inputs, 1, "Softmax"); err != nil {
		return err
	}
	return requireF32(inputs[0], "Softmax", "input")
}

func (k *softmax) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	return []tensor.Shape{inputs[0].Shape()}, nil
}

func (k *softmax) resolveAxis(rank int) int {
	axis := int(k.attrs.I64("axis", -1))
	if axis < 0 {
		axis += rank
	}
	return axis
}

func (k *softmax) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "Softmax"); err != nil {
		return err
	}
	if err := checkOutputShape(outputs[0], inputs[0].Shape(), "Softmax"); err != nil {
		return err
	}

	shape := inputs[0].Shape()
	axis := k.resolveAxis(shape.Rank())
	if axis < 0 || axis >= shape.Rank() {
		return verr.New(verr.InvalidArgument, "Softmax: axis %d out of range for rank %d", axis, shape.Rank())
	}

	strides := shape.Strides()
	dimSize := int(shape[axis].Size)
	dimStride := int(strides[axis])

	numRows := 1
	dims := make([]int, shape.Rank())
	for i, d := range shape {
		dims[i] = int(d.Size)
		if i != axis {
			numRows *= dims[i]
		}
	}

	src := tensor.AsFloat32(inputs[0])
	dst := tensor.AsFloat32(outputs[0])

	for row := 0; row < numRows; row++ {
		baseIdx := 0
		remaining := row
		for i := 0; i < len(dims); i++ {
			if i == axis {
				continue
			}
			coord := remaining % dims[i]
			remaining /= dims[i]
			baseIdx += coord * int(strides[i])
		}

		maxVal := float32(math.Inf(-1))
		for i := 0; i < dimSize; i++ {
			idx := baseIdx + i*dimStride
			if src[idx] > maxVal {
				maxVal = src[idx]
			}
		}

		var sum float32
		for i := 0; i < dimSize; i++ {
			idx := baseIdx + i*dimStride
			e := float32(math.Exp(float64(src[idx] - maxVal)))
			dst[idx] = e
			sum += e
		}

		for i := 0; i < dimSize; i++ {
			idx := baseIdx + i*dimStride
			dst[idx] /= sum
		}
	}
	return nil
}

func newSoftmax() kernel.Operator { return &softmax{} }
