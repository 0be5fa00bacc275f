package optimize

import (
	"github.com/veloxrt/velox/internal/graph"
	"k8s.io/klog/v2"
)

// DeadCodeElimination removes nodes whose outputs are neither graph
// outputs nor consumed by any other node, iterating to a fixed point
// within one Run call (spec §4.E) — the Manager still wraps it with
// its own repeat-to-fixed-point loop since later passes can expose new
// dead code.
type DeadCodeElimination struct{}

func (DeadCodeElimination) Name() string           { return "DeadCodeElimination" }
func (DeadCodeElimination) Dependencies() []string { return nil }
func (DeadCodeElimination) Repeatable() bool       { return true }

func (DeadCodeElimination) Run(g *graph.Graph) (bool, error) {
	outputSet := make(map[int]bool, len(g.Outputs))
	for _, vid := range g.Outputs {
		outputSet[vid] = true
	}

	changed := false
	for {
		removed := false
		for _, nid := range g.Nodes() {
			n := g.Node(nid)
			live := false
			for _, vid := range n.Outputs {
				v := g.Value(vid)
				if v == nil {
					continue
				}
				if outputSet[vid] || len(v.Consumers) > 0 {
					live = true
					break
				}
			}
			if !live {
				for _, vid := range n.Outputs {
					if v := g.Value(vid); v != nil && !outputSet[vid] && len(v.Consumers) == 0 {
						klog.Warningf("optimize: DeadCodeElimination dropping unused output %q of node %q (%s)", v.Name, n.Name, n.OpType)
					}
				}
				g.RemoveNode(nid)
				removed = true
				changed = true
			}
		}
		if !removed {
			break
		}
	}
	return changed, nil
}
