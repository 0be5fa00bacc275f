package cpu

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/tensor"
)

type convAttrs struct {
	strideH, strideW     int
	padTop, padLeft       int
	padBottom, padRight   int
	dilationH, dilationW int
}

func readConvAttrs(attrs graph.Attrs) convAttrs {
	strides := intsOrDefaultCPU(attrs.Ints("strides"), 2, 1)
	dilations := intsOrDefaultCPU(attrs.Ints("dilations"), 2, 1)
	pads := intsOrDefaultCPU(attrs.Ints("pads"), 4, 0)
	return convAttrs{
		strideH: int(strides[0]), strideW: int(strides[1]),
		padTop: int(pads[0]), padLeft: int(pads[1]),
		padBottom: int(pads[2]), padRight: int(pads[3]),
		dilationH: int(dilations[0]), dilationW: int(dilations[1]),
	}
}

func intsOrDefaultCPU(vals []int64, n int, def int64) []int64 {
	if len(vals) == n {
		return vals
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = def
	}
	return out
}

func convOutSize(in, kernel, stride, padLo, padHi, dilation int) int {
	effectiveKernel := dilation*(kernel-1) + 1
	n := in + padLo + padHi - effectiveKernel
	if n < 0 {
		return 0
	}
	return n/stride + 1
}

// convShape validates rank/channel agreement and returns the output
// shape for Conv/FusedConvBNReLU.
func convShape(x, w tensor.Shape, ca convAttrs, op string) (tensor.Shape, error) {
	if x.Rank() != 4 || w.Rank() != 4 {
		return nil, verr.New(verr.InvalidArgument, "%s: requires rank-4 NCHW input and weight, got %d and %d", op, x.Rank(), w.Rank())
	}
	if x[1].Size != w[1].Size {
		return nil, verr.New(verr.InvalidArgument, "%s: input channels %d != weight in-channels %d", op, x[1].Size, w[1].Size)
	}
	outH := convOutSize(int(x[2].Size), int(w[2].Size), ca.strideH, ca.padTop, ca.padBottom, ca.dilationH)
	outW := convOutSize(int(x[3].Size), int(w[3].Size), ca.strideW, ca.padLeft, ca.padRight, ca.dilationW)
	if outH <= 0 || outW <= 0 {
		return nil, verr.New(verr.InvalidArgument, "%s: non-positive output spatial size (%d,%d)", op, outH, outW)
	}
	return tensor.StaticShape(x[0].Size, w[0].Size, int64(outH), int64(outW)), nil
}

// im2colF32 transforms a [N,C,H,W] input into a [N*HOut*WOut, C*KH*KW]
// column matrix, per the teacher's internal/backend/cpu/conv2d.go.
func im2colF32(col []float32, x []float32, n, c, h, w, kh, kw, outH, outW int, ca convAttrs) {
	colWidth := c * kh * kw
	row := 0
	for ni := 0; ni < n; ni++ {
		for oh := 0; oh < outH; oh++ {
			for ow := 0; ow < outW; ow++ {
				hStart := oh*ca.strideH - ca.padTop
				wStart := ow*ca.strideW - ca.padLeft
				idx := row * colWidth
				for ci := 0; ci < c; ci++ {
					for ky := 0; ky < kh; ky++ {
						for kx := 0; kx < kw; kx++ {
							ih := hStart + ky*ca.dilationH
							iw := wStart + kx*ca.dilationW
							if ih >= 0 && ih < h && iw >= 0 && iw < w {
								col[idx] = x[ni*c*h*w+ci*h*w+ih*w+iw]
							} else {
								col[idx] = 0
							}
							idx++
						}
					}
				}
				row++
			}
		}
	}
}

// convForward runs Conv via im2col + matmul + NCHW rearrange, then
// optionally adds a per-output-channel bias and applies ReLU.
func convForward(out, x, w, bias []float32, n, c, h, width, outC, kh, kw, outH, outW int, ca convAttrs, relu bool) {
	colWidth := c * kh * kw
	colHeight := n * outH * outW
	col := make([]float32, colHeight*colWidth)
	im2colF32(col, x, n, c, h, width, kh, kw, outH, outW, ca)

	tmp := make([]float32, outC*colHeight)
	matmulF32Transposed(tmp, w, col, outC, colWidth, colHeight)

	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < outC; ci++ {
			b := float32(0)
			if bias != nil {
				b = bias[ci]
			}
			for hy := 0; hy < outH; hy++ {
				for wx := 0; wx < outW; wx++ {
					src := ci*colHeight + ni*outH*outW + hy*outW + wx
					dst := ni*outC*outH*outW + ci*outH*outW + hy*outW + wx
					v := tmp[src] + b
					if relu && v < 0 {
						v = 0
					}
					out[dst] = v
				}
			}
		}
	}
}

// matmulF32Transposed computes C[M,N] = A[M,K] . B[N,K]^T, i.e. both
// operands stored row-major with K as the trailing dim — the layout
// im2col produces for the column matrix.
func matmulF32Transposed(c, a, b []float32, m, k, n int) {
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum float32
			rowA := i * k
			rowB := j * k
			for kk := 0; kk < k; kk++ {
				sum += a[rowA+kk] * b[rowB+kk]
			}
			c[i*n+j] = sum
		}
	}
}

// conv implements Conv (spec §4.H): 4-D NCHW, attrs kernel/stride/
// pad/dilation, naive im2col-style. Inputs: x, weight, optional bias.
type conv struct{ base }

func (k *conv) Name() string { return "Conv" }

func (k *conv) Validate(inputs []*tensor.Tensor) error {
	if err := requireMinArity(inputs, 2, "Conv"); err != nil {
		return err
	}
	if err := requireF32(inputs[0], "Conv", "x"); err != nil {
		return err
	}
	if err := requireF32(inputs[1], "Conv", "weight"); err != nil {
		return err
	}
	ca := readConvAttrs(k.attrs)
	_, err := convShape(inputs[0].Shape(), inputs[1].Shape(), ca, "Conv")
	return err
}

func (k *conv) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	ca := readConvAttrs(k.attrs)
	shape, err := convShape(inputs[0].Shape(), inputs[1].Shape(), ca, "Conv")
	if err != nil {
		return nil, err
	}
	return []tensor.Shape{shape}, nil
}

func (k *conv) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "Conv"); err != nil {
		return err
	}
	ca := readConvAttrs(k.attrs)
	x, w := inputs[0].Shape(), inputs[1].Shape()
	shape, err := convShape(x, w, ca, "Conv")
	if err != nil {
		return err
	}
	if err := checkOutputShape(outputs[0], shape, "Conv"); err != nil {
		return err
	}

	var bias []float32
	if len(inputs) == 3 {
		bias = tensor.AsFloat32(inputs[2])
	}
	convForward(tensor.AsFloat32(outputs[0]), tensor.AsFloat32(inputs[0]), tensor.AsFloat32(inputs[1]), bias,
		int(x[0].Size), int(x[1].Size), int(x[2].Size), int(x[3].Size),
		int(w[0].Size), int(w[2].Size), int(w[3].Size),
		int(shape[2].Size), int(shape[3].Size), ca, false)
	return nil
}

func newConv() kernel.Operator { return &conv{} }

// fusedConvBNReLU implements FusedConvBNReLU: Conv with BN's affine
// folded into the bias, then ReLU (spec §4.E/§4.H). Inputs: x, weight,
// folded bias [OutC].
type fusedConvBNReLU struct{ base }

func (k *fusedConvBNReLU) Name() string { return "FusedConvBNReLU" }

func (k *fusedConvBNReLU) Validate(inputs []*tensor.Tensor) error {
	if err := requireArity(inputs, 3, "FusedConvBNReLU"); err != nil {
		return err
	}
	for i, role := range []string{"x", "weight", "bias"} {
		if err := requireF32(inputs[i], "FusedConvBNReLU", role); err != nil {
			return err
		}
	}
	ca := readConvAttrs(k.attrs)
	_, err := convShape(inputs[0].Shape(), inputs[1].Shape(), ca, "FusedConvBNReLU")
	return err
}

func (k *fusedConvBNReLU) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	ca := readConvAttrs(k.attrs)
	shape, err := convShape(inputs[0].Shape(), inputs[1].Shape(), ca, "FusedConvBNReLU")
	if err != nil {
		return nil, err
	}
	return []tensor.Shape{shape}, nil
}

func (k *fusedConvBNReLU) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "FusedConvBNReLU"); err != nil {
		return err
	}
	ca := readConvAttrs(k.attrs)
	x, w := inputs[0].Shape(), inputs[1].Shape()
	shape, err := convShape(x, w, ca, "FusedConvBNReLU")
	if err != nil {
		return err
	}
	if err := checkOutputShape(outputs[0], shape, "FusedConvBNReLU"); err != nil {
		return err
	}
	convForward(tensor.AsFloat32(outputs[0]), tensor.AsFloat32(inputs[0]), tensor.AsFloat32(inputs[1]), tensor.AsFloat32(inputs[2]),
		int(x[0].Size), int(x[1].Size), int(x[2].Size), int(x[3].Size),
		int(w[0].Size), int(w[2].Size), int(w[3].Size),
		int(shape[2].Size), int(shape[3].Size), ca, true)
	return nil
}

func newFusedConvBNReLU() kernel.Operator { return &fusedConvBNReLU{} }
