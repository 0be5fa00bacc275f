package shapeinfer

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

// normRule covers BatchNormalization, LayerNormalization and RMSNorm:
// all three normalize across a subset of dims without changing shape
// or dtype (spec §4.H).
func normRule(ins []*graph.Value, _ graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) == 0 {
		return nil, nil, verr.New(verr.InvalidArgument, "expected at least 1 input")
	}
	return []tensor.Shape{ins[0].Shape}, []tensor.DataType{ins[0].DType}, nil
}

func registerNormRules() {
	Register("BatchNormalization", normRule)
	Register("LayerNormalization", normRule)
	Register("RMSNorm", normRule)
}
