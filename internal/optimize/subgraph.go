package optimize

import (
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

// SubgraphReplacement simplifies identity patterns spec §4.E calls out
// explicitly: Add(0, x) -> x and Mul(1, x) -> x, whenever the constant
// operand is a bound initializer every element of which is exactly the
// identity value. The kernel library has no implicit broadcasting, so
// the identity operand must already match x's shape element-for-
// element, not just be a scalar.
type SubgraphReplacement struct{}

func (SubgraphReplacement) Name() string           { return "SubgraphReplacement" }
func (SubgraphReplacement) Dependencies() []string { return nil }
func (SubgraphReplacement) Repeatable() bool       { return true }

func (SubgraphReplacement) Run(g *graph.Graph) (bool, error) {
	for _, nid := range g.Nodes() {
		n := g.Node(nid)
		var identity float32
		switch n.OpType {
		case "Add":
			identity = 0
		case "Mul":
			identity = 1
		default:
			continue
		}
		if len(n.Inputs) != 2 || len(n.Outputs) != 1 {
			continue
		}

		for _, side := range [2]int{0, 1} {
			other := 1 - side
			if isConstantFill(g, n.Inputs[side], identity) {
				out := n.Outputs[0]
				keep := n.Inputs[other]
				g.RerouteConsumers(out, keep)
				g.RemoveNode(nid)
				return true, nil
			}
		}
	}
	return false, nil
}

func isConstantFill(g *graph.Graph, vid int, value float32) bool {
	t, ok := initializerTensor(g, vid)
	if !ok || t.DType() != tensor.F32 {
		return false
	}
	for _, x := range tensor.AsFloat32(t) {
		if x != value {
			return false
		}
	}
	return true
}
