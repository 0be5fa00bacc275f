package shapeinfer

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

// matmulRule implements 2-D A(M,K)·B(K,N) = C(M,N) (spec §4.H).
func matmulRule(ins []*graph.Value, _ graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) != 2 {
		return nil, nil, verr.New(verr.InvalidArgument, "expected 2 inputs, got %d", len(ins))
	}
	a, b := ins[0].Shape, ins[1].Shape
	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, nil, verr.New(verr.InvalidArgument, "MatMul requires rank-2 inputs, got %d and %d", a.Rank(), b.Rank())
	}
	if !dim(a, 1).Dynamic && !dim(b, 0).Dynamic && dim(a, 1).Size != dim(b, 0).Size {
		return nil, nil, verr.New(verr.InvalidArgument, "MatMul inner dim mismatch: %s vs %s", a, b)
	}
	out := tensor.Shape{dim(a, 0), dim(b, 1)}
	return []tensor.Shape{out}, []tensor.DataType{sameDType(ins[0].DType, ins[1].DType)}, nil
}

// convOutputDim applies the standard cross-correlation output-size
// formula. A dynamic spatial input dim yields a dynamic output dim.
func convOutputDim(in tensor.Dim, kernel, stride, padLo, padHi, dilation int64) tensor.Dim {
	if in.Dynamic {
		return tensor.Any()
	}
	effectiveKernel := dilation*(kernel-1) + 1
	n := in.Size + padLo + padHi - effectiveKernel
	if n < 0 {
		return tensor.Static(0)
	}
	return tensor.Static(n/stride + 1)
}

func intsOrDefault(attrs graph.Attrs, name string, n int, def int64) []int64 {
	vals := attrs.Ints(name)
	if len(vals) == n {
		return vals
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = def
	}
	return out
}

// convRule implements Conv (spec §4.H): 4-D NCHW input, weight
// [OutC, InC, KH, KW], attrs kernel_shape/strides/pads/dilations.
func convRule(ins []*graph.Value, attrs graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) < 2 {
		return nil, nil, verr.New(verr.InvalidArgument, "Conv requires at least 2 inputs (x, weight)")
	}
	x, w := ins[0].Shape, ins[1].Shape
	if x.Rank() != 4 || w.Rank() != 4 {
		return nil, nil, verr.New(verr.InvalidArgument, "Conv requires rank-4 NCHW input and weight, got %d and %d", x.Rank(), w.Rank())
	}

	strides := intsOrDefault(attrs, "strides", 2, 1)
	dilations := intsOrDefault(attrs, "dilations", 2, 1)
	pads := intsOrDefault(attrs, "pads", 4, 0) // [padTop, padLeft, padBottom, padRight]

	kh, kw := dim(w, 2), dim(w, 3)
	var outH, outW tensor.Dim
	if kh.Dynamic || kw.Dynamic {
		outH, outW = tensor.Any(), tensor.Any()
	} else {
		outH = convOutputDim(dim(x, 2), kh.Size, strides[0], pads[0], pads[2], dilations[0])
		outW = convOutputDim(dim(x, 3), kw.Size, strides[1], pads[1], pads[3], dilations[1])
	}

	out := tensor.Shape{dim(x, 0), dim(w, 0), outH, outW}
	return []tensor.Shape{out}, []tensor.DataType{sameDType(ins[0].DType, ins[0].DType)}, nil
}

// poolRule implements MaxPool/AveragePool (spec §4.H): channel count
// passes through, spatial dims shrink per kernel_shape/strides/pads.
func poolRule(ins []*graph.Value, attrs graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) != 1 {
		return nil, nil, verr.New(verr.InvalidArgument, "expected 1 input, got %d", len(ins))
	}
	x := ins[0].Shape
	if x.Rank() != 4 {
		return nil, nil, verr.New(verr.InvalidArgument, "Pool requires rank-4 NCHW input, got %d", x.Rank())
	}

	kernel := intsOrDefault(attrs, "kernel_shape", 2, 1)
	strides := intsOrDefault(attrs, "strides", 2, 1)
	pads := intsOrDefault(attrs, "pads", 4, 0)

	outH := convOutputDim(dim(x, 2), kernel[0], strides[0], pads[0], pads[2], 1)
	outW := convOutputDim(dim(x, 3), kernel[1], strides[1], pads[1], pads[3], 1)

	out := tensor.Shape{dim(x, 0), dim(x, 1), outH, outW}
	return []tensor.Shape{out}, []tensor.DataType{ins[0].DType}, nil
}

func registerLinearAlgebraRules() {
	Register("MatMul", matmulRule)
	Register("Conv", convRule)
	Register("MaxPool", poolRule)
	Register("AveragePool", poolRule)
}
