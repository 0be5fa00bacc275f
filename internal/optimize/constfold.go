package optimize

import (
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/tensor"
	"k8s.io/klog/v2"
)

// ConstantFolding replaces a node all of whose inputs are initializers
// with a single initializer holding the precomputed result, by
// actually invoking the node's kernel (spec §4.E). A node only folds
// if every one of its inputs is bound (an initializer or the output of
// an already-folded node) and a kernel is registered for its op-type;
// unfoldable nodes (dynamic inputs, no kernel, shape-inference still
// dynamic) are left untouched, not an error.
type ConstantFolding struct{}

func (ConstantFolding) Name() string           { return "ConstantFolding" }
func (ConstantFolding) Dependencies() []string { return nil }
func (ConstantFolding) Repeatable() bool       { return true }

func (ConstantFolding) Run(g *graph.Graph) (bool, error) {
	changed := false
	for _, nid := range g.Nodes() {
		n := g.Node(nid)
		if n.OpType == "Constant" {
			continue
		}
		inputs, ok := boundInputs(g, n)
		if !ok {
			continue
		}
		if !kernel.Supports(n.OpType) {
			continue
		}
		if !allOutputShapesStatic(g, n) {
			continue
		}

		op, err := kernel.Create(n.OpType)
		if err != nil {
			continue
		}
		op.SetAttrs(n.Attrs)
		if multi, ok := op.(kernel.MultiOutputOperator); ok {
			multi.SetOutputCount(len(n.Outputs))
		}
		if err := op.Validate(inputs); err != nil {
			klog.V(2).Infof("optimize: ConstantFolding skipping node %q (%s): %v", n.Name, n.OpType, err)
			continue
		}

		outTensors, err := allocateOutputs(g, n)
		if err != nil {
			klog.V(2).Infof("optimize: ConstantFolding skipping node %q (%s): %v", n.Name, n.OpType, err)
			continue
		}
		if err := op.Execute(inputs, outTensors, &kernel.Context{Device: tensor.Host}); err != nil {
			klog.V(2).Infof("optimize: ConstantFolding skipping node %q (%s): execute failed: %v", n.Name, n.OpType, err)
			continue
		}

		for i, vid := range n.Outputs {
			v := g.Value(vid)
			v.Kind = graph.ValueInitializer
			v.Producer = -1
			v.Tensor = outTensors[i]
			v.Shape = outTensors[i].Shape()
			v.DType = outTensors[i].DType()
		}
		g.RemoveNode(nid)
		changed = true
	}
	return changed, nil
}

// boundInputs returns the resolved tensors for every input of n,
// reporting false if any input is an empty optional slot or a Value
// not yet bound to a concrete Tensor.
func boundInputs(g *graph.Graph, n *graph.Node) ([]*tensor.Tensor, bool) {
	inputs := make([]*tensor.Tensor, 0, len(n.Inputs))
	for _, vid := range n.Inputs {
		if vid < 0 {
			return nil, false
		}
		v := g.Value(vid)
		if v == nil || v.Tensor == nil {
			return nil, false
		}
		inputs = append(inputs, v.Tensor)
	}
	return inputs, true
}

func allOutputShapesStatic(g *graph.Graph, n *graph.Node) bool {
	for _, vid := range n.Outputs {
		v := g.Value(vid)
		if v == nil || v.Shape == nil || !v.Shape.IsStatic() || v.DType == tensor.Unknown {
			return false
		}
	}
	return true
}

func allocateOutputs(g *graph.Graph, n *graph.Node) ([]*tensor.Tensor, error) {
	outs := make([]*tensor.Tensor, len(n.Outputs))
	for i, vid := range n.Outputs {
		v := g.Value(vid)
		t, err := tensor.Create(v.Shape, v.DType, tensor.Host)
		if err != nil {
			return nil, err
		}
		outs[i] = t
	}
	return outs, nil
}
