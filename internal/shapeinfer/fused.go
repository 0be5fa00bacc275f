package shapeinfer

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

// fusedConvBNReLURule shares Conv's shape rule: the fusion folds
// BatchNorm's affine constants into Conv's bias and applies ReLU in
// place, none of which changes output shape (spec §4.E/§4.H).
func fusedConvBNReLURule(ins []*graph.Value, attrs graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) < 2 {
		return nil, nil, verr.New(verr.InvalidArgument, "FusedConvBNReLU requires at least 2 inputs (x, weight)")
	}
	return convRule(ins[:2], attrs)
}

// fusedMatMulAddRule shares MatMul's shape rule; the bias input
// row-broadcasts and does not affect the output shape.
func fusedMatMulAddRule(ins []*graph.Value, attrs graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) < 2 {
		return nil, nil, verr.New(verr.InvalidArgument, "FusedMatMulAdd requires at least 2 inputs (a, b)")
	}
	return matmulRule(ins[:2], attrs)
}

func registerFusedRules() {
	Register("FusedConvBNReLU", fusedConvBNReLURule)
	Register("FusedMatMulAdd", fusedMatMulAddRule)
}
