package optimize

import (
	"math"

	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

// OperatorFusion merges adjacent nodes into the fused kernels the CPU
// library provides (spec §4.E/§4.H): Conv+BatchNormalization+ReLU and
// bare Conv+ReLU both become FusedConvBNReLU, MatMul+Add becomes
// FusedMatMulAdd, and a bare BatchNormalization+ReLU is merged in
// place via the batch-norm kernel's fused_relu attribute. Each Run call
// applies at most one rewrite and reports changed=true so the Manager's
// fixed-point loop re-scans the post-rewrite graph for further matches.
type OperatorFusion struct{}

func (OperatorFusion) Name() string           { return "OperatorFusion" }
func (OperatorFusion) Dependencies() []string { return []string{"DeadCodeElimination"} }
func (OperatorFusion) Repeatable() bool       { return true }

func (OperatorFusion) Run(g *graph.Graph) (bool, error) {
	for _, nid := range g.Nodes() {
		n := g.Node(nid)
		switch n.OpType {
		case "Conv":
			if bn, relu, ok := matchConvBNReLU(g, nid); ok {
				if fuseConvBNReLU(g, nid, bn, relu) {
					return true, nil
				}
			}
			if relu, ok := matchSoleConsumer(g, n, "Relu"); ok {
				fuseConvReLU(g, nid, relu)
				return true, nil
			}
		case "BatchNormalization":
			if relu, ok := matchSoleConsumer(g, n, "Relu"); ok {
				fuseBNReLU(g, nid, relu)
				return true, nil
			}
		case "MatMul":
			if add, ok := matchSoleConsumer(g, n, "Add"); ok {
				if fuseMatMulAdd(g, nid, add) {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// matchSoleConsumer reports whether n has exactly one output, that
// output is not itself a graph output, and its sole consumer is a node
// of the given op-type.
func matchSoleConsumer(g *graph.Graph, n *graph.Node, opType string) (int, bool) {
	if len(n.Outputs) != 1 {
		return 0, false
	}
	v := g.Value(n.Outputs[0])
	if v == nil || len(v.Consumers) != 1 || isGraphOutput(g, n.Outputs[0]) {
		return 0, false
	}
	consumer := g.Node(v.Consumers[0])
	if consumer == nil || consumer.OpType != opType || len(consumer.Inputs) == 0 || consumer.Inputs[0] != n.Outputs[0] {
		return 0, false
	}
	return consumer.ID, true
}

func matchConvBNReLU(g *graph.Graph, convID int) (bnID, reluID int, ok bool) {
	conv := g.Node(convID)
	bn, ok := matchSoleConsumer(g, conv, "BatchNormalization")
	if !ok {
		return 0, 0, false
	}
	bnNode := g.Node(bn)
	relu, ok := matchSoleConsumer(g, bnNode, "Relu")
	if !ok {
		return 0, 0, false
	}
	return bn, relu, true
}

func isGraphOutput(g *graph.Graph, vid int) bool {
	for _, out := range g.Outputs {
		if out == vid {
			return true
		}
	}
	return false
}

func initializerTensor(g *graph.Graph, vid int) (*tensor.Tensor, bool) {
	v := g.Value(vid)
	if v == nil || v.Kind != graph.ValueInitializer || v.Tensor == nil {
		return nil, false
	}
	return v.Tensor, true
}

// fuseConvBNReLU folds BatchNormalization's affine parameters into
// Conv's weight and bias (a new per-output-channel scale applied to
// the weight, and a recomputed bias), then rewires the chain onto a
// single FusedConvBNReLU node. Only fires when Conv's weight and all of
// BatchNormalization's parameters are bound initializers — a dynamic
// weight (unusual in an inference graph) is left unfused.
func fuseConvBNReLU(g *graph.Graph, convID, bnID, reluID int) bool {
	conv := g.Node(convID)
	bn := g.Node(bnID)
	relu := g.Node(reluID)

	weight, ok := initializerTensor(g, conv.Inputs[1])
	if !ok {
		return false
	}
	scale, ok1 := initializerTensor(g, bn.Inputs[1])
	shift, ok2 := initializerTensor(g, bn.Inputs[2])
	mean, ok3 := initializerTensor(g, bn.Inputs[3])
	variance, ok4 := initializerTensor(g, bn.Inputs[4])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}
	eps := float64(bn.Attrs.F32("epsilon", 1e-5))

	outC := int(weight.Shape()[0].Size)
	perChannel := int(weight.Shape().NumElements()) / outC

	var bias []float32
	if len(conv.Inputs) == 3 {
		if b, ok := initializerTensor(g, conv.Inputs[2]); ok {
			bias = append([]float32(nil), tensor.AsFloat32(b)...)
		}
	}
	if bias == nil {
		bias = make([]float32, outC)
	}

	newWeight, err := tensor.Create(weight.Shape(), weight.DType(), tensor.Host)
	if err != nil {
		return false
	}
	wSrc := tensor.AsFloat32(weight)
	wDst := tensor.AsFloat32(newWeight)
	scaleF := tensor.AsFloat32(scale)
	shiftF := tensor.AsFloat32(shift)
	meanF := tensor.AsFloat32(mean)
	varF := tensor.AsFloat32(variance)
	newBias := make([]float32, outC)

	for c := 0; c < outC; c++ {
		invStd := float32(1 / math.Sqrt(float64(varF[c])+eps))
		factor := scaleF[c] * invStd
		base := c * perChannel
		for i := 0; i < perChannel; i++ {
			wDst[base+i] = wSrc[base+i] * factor
		}
		newBias[c] = (bias[c]-meanF[c])*factor + shiftF[c]
	}

	weightID := g.AddValue(conv.Name+"_fused_weight", graph.ValueInitializer)
	wv := g.Value(weightID)
	wv.Tensor = newWeight
	wv.Shape = newWeight.Shape()
	wv.DType = newWeight.DType()

	biasTensor, err := tensor.Create(tensor.StaticShape(int64(outC)), weight.DType(), tensor.Host)
	if err != nil {
		return false
	}
	copy(tensor.AsFloat32(biasTensor), newBias)
	biasID := g.AddValue(conv.Name+"_fused_bias", graph.ValueInitializer)
	bv := g.Value(biasID)
	bv.Tensor = biasTensor
	bv.Shape = biasTensor.Shape()
	bv.DType = biasTensor.DType()

	fused := g.AddNode("FusedConvBNReLU", conv.Name+"_fused")
	copyConvAttrs(g.Node(fused), conv)
	g.ConnectInput(fused, conv.Inputs[0])
	g.ConnectInput(fused, weightID)
	g.ConnectInput(fused, biasID)
	reluOut := relu.Outputs[0]
	g.Value(reluOut).Producer = -1
	g.ConnectOutput(fused, reluOut)

	g.RemoveNode(reluID)
	g.RemoveNode(bnID)
	g.RemoveNode(convID)
	return true
}

// copyConvAttrs carries the source Conv's strides/pads/dilations onto
// a newly created FusedConvBNReLU node.
func copyConvAttrs(dst, conv *graph.Node) {
	for _, key := range []string{"strides", "pads", "dilations"} {
		if v, ok := conv.Attrs[key]; ok {
			dst.Attrs[key] = v
		}
	}
}

// fuseConvReLU handles a bare Conv immediately followed by ReLU, with
// no BatchNormalization between them: identical to FusedConvBNReLU
// with an identity affine, so the weight is reused unchanged and the
// bias is the original conv bias (or zero).
func fuseConvReLU(g *graph.Graph, convID, reluID int) {
	conv := g.Node(convID)
	relu := g.Node(reluID)

	var biasID int
	if len(conv.Inputs) == 3 {
		biasID = conv.Inputs[2]
	} else {
		w, ok := initializerTensor(g, conv.Inputs[1])
		outC := int64(0)
		if ok {
			outC = w.Shape()[0].Size
		}
		zero, err := tensor.Create(tensor.StaticShape(outC), tensor.F32, tensor.Host)
		if err != nil {
			return
		}
		biasID = g.AddValue(conv.Name+"_zero_bias", graph.ValueInitializer)
		bv := g.Value(biasID)
		bv.Tensor = zero
		bv.Shape = zero.Shape()
		bv.DType = zero.DType()
	}

	fused := g.AddNode("FusedConvBNReLU", conv.Name+"_fused")
	copyConvAttrs(g.Node(fused), conv)
	g.ConnectInput(fused, conv.Inputs[0])
	g.ConnectInput(fused, conv.Inputs[1])
	g.ConnectInput(fused, biasID)
	reluOut := relu.Outputs[0]
	g.Value(reluOut).Producer = -1
	g.ConnectOutput(fused, reluOut)

	g.RemoveNode(reluID)
	g.RemoveNode(convID)
}

// fuseBNReLU merges a ReLU that solely consumes a BatchNormalization
// output by setting the norm kernel's fused_relu attribute and
// rerouting the ReLU's output onto the BatchNormalization node itself.
func fuseBNReLU(g *graph.Graph, bnID, reluID int) {
	bn := g.Node(bnID)
	relu := g.Node(reluID)

	attrs := make(graph.Attrs, len(bn.Attrs)+1)
	for k, v := range bn.Attrs {
		attrs[k] = v
	}
	attrs["fused_relu"] = graph.Attribute{Kind: graph.AttrI64, I64: 1}
	bn.Attrs = attrs

	newOut := relu.Outputs[0]
	bn.Outputs[0] = newOut
	g.Value(newOut).Producer = bnID
	g.Value(newOut).Kind = graph.ValueProduced

	g.RemoveNode(reluID)
}

// fuseMatMulAdd merges a MatMul immediately followed by a row-broadcast
// Add into FusedMatMulAdd. Only fires when Add's other operand is a
// statically rank-1 vector, matching what the kernel supports; reports
// false (no rewrite) otherwise, leaving MatMul/Add as-is.
func fuseMatMulAdd(g *graph.Graph, matmulID, addID int) bool {
	matmul := g.Node(matmulID)
	add := g.Node(addID)
	if len(add.Inputs) != 2 {
		return false
	}
	var biasVal int
	if add.Inputs[0] == matmul.Outputs[0] {
		biasVal = add.Inputs[1]
	} else if add.Inputs[1] == matmul.Outputs[0] {
		biasVal = add.Inputs[0]
	} else {
		return false
	}
	bv := g.Value(biasVal)
	if bv == nil || bv.Shape == nil || !bv.Shape.IsStatic() || bv.Shape.Rank() != 1 {
		return false
	}
	mmOut := g.Value(matmul.Outputs[0])
	if mmOut.Shape != nil && mmOut.Shape.IsStatic() && mmOut.Shape.Rank() > 0 {
		if mmOut.Shape[mmOut.Shape.Rank()-1].Size != bv.Shape[0].Size {
			return false
		}
	}

	fused := g.AddNode("FusedMatMulAdd", matmul.Name+"_fused")
	g.ConnectInput(fused, matmul.Inputs[0])
	g.ConnectInput(fused, matmul.Inputs[1])
	g.ConnectInput(fused, biasVal)
	addOut := add.Outputs[0]
	g.Value(addOut).Producer = -1
	g.ConnectOutput(fused, addOut)

	g.RemoveNode(addID)
	g.RemoveNode(matmulID)
	return true
}
