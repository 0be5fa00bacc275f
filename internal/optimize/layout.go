package optimize

import (
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

// MemoryLayoutOptimization assigns a layout preference per node
// (Conv/Pool/BatchNormalization require NCHW; every other op inherits
// its input's layout) and inserts a Transpose node wherever a
// consumer's required layout differs from its producer's assigned one
// (spec §4.E). Unlike the source this replaces, the inserted Transpose
// always carries an explicit perm attribute computed at the insertion
// site, not filled in by a helper invoked later.
type MemoryLayoutOptimization struct{}

func (MemoryLayoutOptimization) Name() string           { return "MemoryLayoutOptimization" }
func (MemoryLayoutOptimization) Dependencies() []string { return []string{"OperatorFusion"} }
func (MemoryLayoutOptimization) Repeatable() bool       { return false }

type layoutTag int

const (
	layoutUnknown layoutTag = iota
	layoutNCHW
	layoutNHWC
)

func requiredInputLayout(opType string) layoutTag {
	switch opType {
	case "Conv", "FusedConvBNReLU", "MaxPool", "AveragePool", "BatchNormalization":
		return layoutNCHW
	default:
		return layoutUnknown
	}
}

func assignedOutputLayout(opType string, inherited layoutTag) layoutTag {
	switch opType {
	case "Conv", "FusedConvBNReLU", "MaxPool", "AveragePool", "BatchNormalization":
		return layoutNCHW
	default:
		return inherited
	}
}

// permFor returns the axis permutation that converts a tensor tagged
// `from` into one tagged `to`, or nil if no conversion is known between
// the two (the only pair the planner understands is NCHW<->NHWC).
func permFor(from, to layoutTag) []int64 {
	switch {
	case from == layoutNCHW && to == layoutNHWC:
		return []int64{0, 2, 3, 1}
	case from == layoutNHWC && to == layoutNCHW:
		return []int64{0, 3, 1, 2}
	default:
		return nil
	}
}

func (MemoryLayoutOptimization) Run(g *graph.Graph) (bool, error) {
	order, err := graph.TopologicalSort(g)
	if err != nil {
		return false, err
	}

	valueLayout := make(map[int]layoutTag)
	for _, vid := range g.Inputs {
		if v := g.Value(vid); v != nil && v.Shape.Rank() == 4 {
			valueLayout[vid] = layoutNCHW
		}
	}

	changed := false
	for _, nid := range order {
		n := g.Node(nid)
		if len(n.Inputs) > 0 && n.Inputs[0] >= 0 {
			inID := n.Inputs[0]
			in := valueLayout[inID]
			required := requiredInputLayout(n.OpType)
			if required != layoutUnknown && in != layoutUnknown && in != required {
				if perm := permFor(in, required); perm != nil {
					newID := insertLayoutTranspose(g, n, 0, perm)
					valueLayout[newID] = required
					changed = true
				}
			}
		}

		inLayout := layoutUnknown
		if len(n.Inputs) > 0 && n.Inputs[0] >= 0 {
			inLayout = valueLayout[n.Inputs[0]]
		}
		out := assignedOutputLayout(n.OpType, inLayout)
		for _, vid := range n.Outputs {
			if v := g.Value(vid); v != nil && v.Shape.Rank() == 4 {
				valueLayout[vid] = out
			}
		}
	}
	return changed, nil
}

// insertLayoutTranspose splices a Transpose node onto n's input at
// inputIdx, reading the current value and producing a freshly shaped
// one that n is rewired to consume instead.
func insertLayoutTranspose(g *graph.Graph, n *graph.Node, inputIdx int, perm []int64) int {
	oldID := n.Inputs[inputIdx]
	oldV := g.Value(oldID)

	tid := g.AddNode("Transpose", n.Name+"_layout")
	g.ConnectInput(tid, oldID)
	tNode := g.Node(tid)
	tNode.Attrs["perm"] = graph.Attribute{Kind: graph.AttrInts, Ints: perm}

	newShape := permuteShape(oldV.Shape, perm)
	newID := g.AddValue(n.Name+"_layout_in", graph.ValueProduced)
	g.ConnectOutput(tid, newID)
	newV := g.Value(newID)
	newV.Shape = newShape
	newV.DType = oldV.DType

	oldV.Consumers = removeID(oldV.Consumers, n.ID)
	newV.Consumers = append(newV.Consumers, n.ID)
	n.Inputs[inputIdx] = newID
	return newID
}

func permuteShape(shape tensor.Shape, perm []int64) tensor.Shape {
	out := make(tensor.Shape, len(perm))
	for i, p := range perm {
		out[i] = shape[p]
	}
	return out
}

func removeID(ids []int, id int) []int {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
