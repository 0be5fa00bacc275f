package shapeinfer

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"k8s.io/klog/v2"
)

// Infer walks g in topological order, runs each node's registered
// rule, and binds the resulting (shape, dtype) onto its output Values
// (spec §4.D). A node whose op-type has no registered rule is a
// warning, not a failure: its outputs are left with whatever
// shape/dtype they already carried (typically fully dynamic), and the
// memory planner defers allocation for them.
func Infer(g *graph.Graph) error {
	order, err := graph.TopologicalSort(g)
	if err != nil {
		return err
	}

	for _, nid := range order {
		n := g.Node(nid)
		rule, ok := Lookup(n.OpType)
		if n.OpType == "Split" {
			rule, ok = splitRule(len(n.Outputs)), true
		}
		if !ok {
			klog.Warningf("shapeinfer: no rule registered for op %q (node %q); leaving outputs unresolved", n.OpType, n.Name)
			continue
		}

		ins := make([]*graph.Value, len(n.Inputs))
		for i, vid := range n.Inputs {
			if vid < 0 {
				continue
			}
			ins[i] = g.Value(vid)
		}

		shapes, dtypes, err := rule(ins, n.Attrs)
		if err != nil {
			return verr.Wrap(verr.InvalidModel, err, "shape inference failed for node %q (%s)", n.Name, n.OpType)
		}
		if len(shapes) != len(n.Outputs) {
			klog.Warningf("shapeinfer: rule for %q returned %d shapes for %d outputs; truncating/leaving extras unresolved", n.OpType, len(shapes), len(n.Outputs))
		}

		for i, vid := range n.Outputs {
			if i >= len(shapes) {
				break
			}
			v := g.Value(vid)
			v.Shape = shapes[i]
			if i < len(dtypes) {
				v.DType = dtypes[i]
			}
		}
	}
	return nil
}
