package cpu

import (
	"math"

	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/tensor"
)

func poolShape(x tensor.Shape, kh, kw int, ca convAttrs, op string) (tensor.Shape, error) {
	if x.Rank() != 4 {
		return nil, verr.New(verr.InvalidArgument, "%s: requires rank-4 NCHW input, got %d", op, x.Rank())
	}
	outH := convOutSize(int(x[2].Size), kh, ca.strideH, ca.padTop, ca.padBottom, 1)
	outW := convOutSize(int(x[3].Size), kw, ca.strideW, ca.padLeft, ca.padRight, 1)
	if outH <= 0 || outW <= 0 {
		return nil, verr.New(verr.InvalidArgument, "%s: non-positive output spatial size (%d,%d)", op, outH, outW)
	}
	return tensor.StaticShape(x[0].Size, x[1].Size, int64(outH), int64(outW)), nil
}

type pool struct {
	base
	name string
	avg  bool
}

func (k *pool) kernelAndAttrs() ([2]int, convAttrs) {
	kernelShape := intsOrDefaultCPU(k.attrs.Ints("kernel_shape"), 2, 1)
	ca := readConvAttrs(k.attrs)
	return [2]int{int(kernelShape[0]), int(kernelShape[1])}, ca
}

func (k *pool) Name() string { return k.name }

func (k *pool) Validate(inputs []*tensor.Tensor) error {
	if err := requireArity(inputs, 1, k.name); err != nil {
		return err
	}
	if err := requireF32(inputs[0], k.name, "x"); err != nil {
		return err
	}
	ks, ca := k.kernelAndAttrs()
	_, err := poolShape(inputs[0].Shape(), ks[0], ks[1], ca, k.name)
	return err
}

func (k *pool) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	ks, ca := k.kernelAndAttrs()
	shape, err := poolShape(inputs[0].Shape(), ks[0], ks[1], ca, k.name)
	if err != nil {
		return nil, err
	}
	return []tensor.Shape{shape}, nil
}

func (k *pool) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, k.name); err != nil {
		return err
	}
	ks, ca := k.kernelAndAttrs()
	xShape := inputs[0].Shape()
	outShape, err := poolShape(xShape, ks[0], ks[1], ca, k.name)
	if err != nil {
		return err
	}
	if err := checkOutputShape(outputs[0], outShape, k.name); err != nil {
		return err
	}

	n, c, h, w := int(xShape[0].Size), int(xShape[1].Size), int(xShape[2].Size), int(xShape[3].Size)
	outH, outW := int(outShape[2].Size), int(outShape[3].Size)
	x := tensor.AsFloat32(inputs[0])
	out := tensor.AsFloat32(outputs[0])

	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			chanBase := (ni*c + ci) * h * w
			outBase := (ni*c + ci) * outH * outW
			for oh := 0; oh < outH; oh++ {
				hStart := oh*ca.strideH - ca.padTop
				for ow := 0; ow < outW; ow++ {
					wStart := ow*ca.strideW - ca.padLeft
					if k.avg {
						var sum float32
						count := 0
						for ky := 0; ky < ks[0]; ky++ {
							ih := hStart + ky
							if ih < 0 || ih >= h {
								continue
							}
							for kx := 0; kx < ks[1]; kx++ {
								iw := wStart + kx
								if iw < 0 || iw >= w {
									continue
								}
								sum += x[chanBase+ih*w+iw]
								count++
							}
						}
						v := float32(0)
						if count > 0 {
							v = sum / float32(count)
						}
						out[outBase+oh*outW+ow] = v
					} else {
						maxVal := float32(math.Inf(-1))
						found := false
						for ky := 0; ky < ks[0]; ky++ {
							ih := hStart + ky
							if ih < 0 || ih >= h {
								continue
							}
							for kx := 0; kx < ks[1]; kx++ {
								iw := wStart + kx
								if iw < 0 || iw >= w {
									continue
								}
								found = true
								if v := x[chanBase+ih*w+iw]; v > maxVal {
									maxVal = v
								}
							}
						}
						if !found {
							maxVal = 0
						}
						out[outBase+oh*outW+ow] = maxVal
					}
				}
			}
		}
	}
	return nil
}

func newMaxPool() kernel.Operator      { return &pool{name: "MaxPool"} }
func newAveragePool() kernel.Operator { return &pool{name: "AveragePool", avg: true} }
