package cpu

import (
	"math"

	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/tensor"
)

// batchNorm implements BatchNormalization: y = gamma*(x-mean)/sqrt(var+eps)+beta
// across the channel dim of an NCHW tensor (spec §4.H). Inputs: x,
// scale (gamma), bias (beta), running mean, running var — all [C].
type batchNorm struct{ base }

func (k *batchNorm) Name() string { return "BatchNormalization" }

func (k *batchNorm) Validate(inputs []*tensor.Tensor) error {
	if err := requireArity(inputs, 5, "BatchNormalization"); err != nil {
		return err
	}
	if inputs[0].Shape().Rank() != 4 {
		return verr.New(verr.InvalidArgument, "BatchNormalization: x must be rank-4 NCHW, got rank %d", inputs[0].Shape().Rank())
	}
	for i, role := range []string{"x", "scale", "bias", "mean", "var"} {
		if err := requireF32(inputs[i], "BatchNormalization", role); err != nil {
			return err
		}
	}
	return nil
}

func (k *batchNorm) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	return []tensor.Shape{inputs[0].Shape()}, nil
}

func (k *batchNorm) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "BatchNormalization"); err != nil {
		return err
	}
	if err := checkOutputShape(outputs[0], inputs[0].Shape(), "BatchNormalization"); err != nil {
		return err
	}
	eps := float64(k.attrs.F32("epsilon", 1e-5))
	fusedRelu := k.attrs.I64("fused_relu", 0) != 0

	shape := inputs[0].Shape()
	n, c, h, w := int(shape[0].Size), int(shape[1].Size), int(shape[2].Size), int(shape[3].Size)
	hw := h * w

	x := tensor.AsFloat32(inputs[0])
	scale := tensor.AsFloat32(inputs[1])
	bias := tensor.AsFloat32(inputs[2])
	mean := tensor.AsFloat32(inputs[3])
	variance := tensor.AsFloat32(inputs[4])
	out := tensor.AsFloat32(outputs[0])

	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			invStd := float32(1 / math.Sqrt(float64(variance[ci])+eps))
			base := (ni*c+ci)*hw
			for i := 0; i < hw; i++ {
				y := (x[base+i]-mean[ci])*invStd*scale[ci] + bias[ci]
				if fusedRelu && y < 0 {
					y = 0
				}
				out[base+i] = y
			}
		}
	}
	return nil
}

func newBatchNorm() kernel.Operator { return &batchNorm{} }

// trailingNorm shares the row-wise reduction loop used by
// LayerNormalization and RMSNorm: both normalize across the trailing
// dims starting at attribute "axis" (default -1, meaning the last
// dim only). rows = product of the leading dims; width = product of
// the trailing (normalized) dims.
func trailingDims(shape tensor.Shape, axis int64) (rows, width int) {
	rank := shape.Rank()
	a := int(axis)
	if a < 0 {
		a += rank
	}
	rows, width = 1, 1
	for i := 0; i < rank; i++ {
		if i < a {
			rows *= int(shape[i].Size)
		} else {
			width *= int(shape[i].Size)
		}
	}
	return rows, width
}

// layerNorm implements LayerNormalization (spec §4.H): y =
// gamma*(x-mean)/sqrt(var+eps)+beta across trailing dims from "axis".
type layerNorm struct{ base }

func (k *layerNorm) Name() string { return "LayerNormalization" }

func (k *layerNorm) Validate(inputs []*tensor.Tensor) error {
	if err := requireArity(inputs, 3, "LayerNormalization"); err != nil {
		return err
	}
	for i, role := range []string{"x", "gamma", "beta"} {
		if err := requireF32(inputs[i], "LayerNormalization", role); err != nil {
			return err
		}
	}
	return nil
}

func (k *layerNorm) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	return []tensor.Shape{inputs[0].Shape()}, nil
}

func (k *layerNorm) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "LayerNormalization"); err != nil {
		return err
	}
	if err := checkOutputShape(outputs[0], inputs[0].Shape(), "LayerNormalization"); err != nil {
		return err
	}
	eps := float64(k.attrs.F32("epsilon", 1e-5))
	axis := k.attrs.I64("axis", -1)
	rows, width := trailingDims(inputs[0].Shape(), axis)

	x := tensor.AsFloat32(inputs[0])
	gamma := tensor.AsFloat32(inputs[1])
	beta := tensor.AsFloat32(inputs[2])
	out := tensor.AsFloat32(outputs[0])

	for r := 0; r < rows; r++ {
		base := r * width
		var mean float64
		for i := 0; i < width; i++ {
			mean += float64(x[base+i])
		}
		mean /= float64(width)

		var variance float64
		for i := 0; i < width; i++ {
			d := float64(x[base+i]) - mean
			variance += d * d
		}
		variance /= float64(width)
		invStd := float32(1 / math.Sqrt(variance+eps))

		for i := 0; i < width; i++ {
			out[base+i] = (x[base+i]-float32(mean))*invStd*gamma[i] + beta[i]
		}
	}
	return nil
}

func newLayerNorm() kernel.Operator { return &layerNorm{} }

// rmsNorm implements RMSNorm (spec §4.H): y =
// x*rsqrt(mean(x^2)+eps)*gamma across trailing dims from "axis".
// Adapted from the teacher's internal/nn.RMSNorm, which composes the
// same formula out of generic Tensor ops; here it is one direct loop.
type rmsNorm struct{ base }

func (k *rmsNorm) Name() string { return "RMSNorm" }

func (k *rmsNorm) Validate(inputs []*tensor.Tensor) error {
	if err := requireArity(inputs, 2, "RMSNorm"); err != nil {
		return err
	}
	if err := requireF32(inputs[0], "RMSNorm", "x"); err != nil {
		return err
	}
	return requireF32(inputs[1], "RMSNorm", "gamma")
}

func (k *rmsNorm) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	return []tensor.Shape{inputs[0].Shape()}, nil
}

func (k *rmsNorm) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "RMSNorm"); err != nil {
		return err
	}
	if err := checkOutputShape(outputs[0], inputs[0].Shape(), "RMSNorm"); err != nil {
		return err
	}
	eps := float64(k.attrs.F32("epsilon", 1e-6))
	axis := k.attrs.I64("axis", -1)
	rows, width := trailingDims(inputs[0].Shape(), axis)

	x := tensor.AsFloat32(inputs[0])
	gamma := tensor.AsFloat32(inputs[1])
	out := tensor.AsFloat32(outputs[0])

	for r := 0; r < rows; r++ {
		base := r * width
		var sumSq float64
		for i := 0; i < width; i++ {
			v := float64(x[base+i])
			sumSq += v * v
		}
		meanSq := sumSq / float64(width)
		rsqrt := float32(1 / math.Sqrt(meanSq+eps))

		for i := 0; i < width; i++ {
			out[base+i] = x[base+i] * rsqrt * gamma[i]
		}
	}
	return nil
}

func newRMSNorm() kernel.Operator { return &rmsNorm{} }
