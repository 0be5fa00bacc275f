package graph

import verr "github.com/veloxrt/velox/errors"

// Validate checks the structural invariants spec §3/§4.C require of a
// graph before it can be optimized or executed, returning one of the
// six *errors.Error kinds spec §3/§4.C names for validate failures
// (NoInputs, NoOutputs, UnproducedInput, DuplicateID,
// MissingValueForInput, Cycle) so callers can branch on Kind instead
// of matching error text:
//   - at least one graph input and one graph output
//   - no id repeated within Inputs or within Outputs
//   - every input Value referenced by a node either has a producer, is
//     a declared graph input, or is an initializer
//   - every declared graph output id refers to a Value that exists
//   - the node graph has no cycles
//
// A Value with no consumers and no graph-output entry is a dead
// output; that is logged as a warning by the DeadCodeElimination pass,
// not treated as a Validate failure.
func (g *Graph) Validate() error {
	if len(g.Inputs) == 0 {
		return verr.New(verr.NoInputs, "graph has no inputs")
	}
	if len(g.Outputs) == 0 {
		return verr.New(verr.NoOutputs, "graph has no outputs")
	}

	if err := checkNoDuplicateIDs(g.Inputs, "graph inputs"); err != nil {
		return err
	}
	if err := checkNoDuplicateIDs(g.Outputs, "graph outputs"); err != nil {
		return err
	}

	declaredInput := make(map[int]bool, len(g.Inputs))
	for _, id := range g.Inputs {
		declaredInput[id] = true
	}

	for _, nid := range g.Nodes() {
		n := g.nodes[nid]
		for _, vid := range n.Inputs {
			if vid < 0 {
				continue
			}
			v, ok := g.values[vid]
			if !ok {
				return verr.New(verr.MissingValueForInput, "node %d (%s) references unknown value %d", nid, n.OpType, vid)
			}
			if v.HasProducer() || v.Kind == ValueInitializer || declaredInput[vid] {
				continue
			}
			return verr.New(verr.UnproducedInput, "value %q (id %d) consumed by node %d (%s) has no producer, is not a graph input, and is not an initializer", v.Name, vid, nid, n.OpType)
		}
	}

	for _, vid := range g.Outputs {
		if _, ok := g.values[vid]; !ok {
			return verr.New(verr.MissingValueForInput, "graph output references unknown value %d", vid)
		}
	}

	if _, err := TopologicalSort(g); err != nil {
		return err
	}
	return nil
}

// checkNoDuplicateIDs reports a DuplicateID error if any id in ids
// appears more than once, naming which declared list (what) it was
// found in.
func checkNoDuplicateIDs(ids []int, what string) error {
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return verr.New(verr.DuplicateID, "id %d appears more than once in %s", id, what)
		}
		seen[id] = true
	}
	return nil
}
