package graph

import verr "github.com/veloxrt/velox/errors"

// TopologicalSort returns node ids in an order where every node
// appears after all nodes that produce its inputs (spec §3's "DAG"
// invariant, §4.C). Ties are broken by ascending node id so the order
// is deterministic across runs of the same graph, which the planner
// and the parallel scheduler both rely on.
func TopologicalSort(g *Graph) ([]int, error) {
	inDegree := make(map[int]int, len(g.nodes))
	for _, id := range g.Nodes() {
		n := g.nodes[id]
		deg := 0
		for _, vid := range n.Inputs {
			if vid < 0 {
				continue
			}
			if v, ok := g.values[vid]; ok && v.HasProducer() {
				deg++
			}
		}
		inDegree[id] = deg
	}

	ready := make([]int, 0, len(inDegree))
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sortInts(ready)

	order := make([]int, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		n := g.nodes[id]
		var unlocked []int
		for _, vid := range n.Outputs {
			v, ok := g.values[vid]
			if !ok {
				continue
			}
			for _, consumer := range v.Consumers {
				inDegree[consumer]--
				if inDegree[consumer] == 0 {
					unlocked = append(unlocked, consumer)
				}
			}
		}
		sortInts(unlocked)
		ready = mergeSorted(ready, unlocked)
	}

	if len(order) != len(g.nodes) {
		return nil, verr.New(verr.Cycle, "graph contains a cycle: sorted %d of %d nodes", len(order), len(g.nodes))
	}
	return order, nil
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// mergeSorted merges two already-sorted slices of distinct ints into
// one sorted slice, keeping ready's FIFO-ish ordering stable for equal
// elements (none expected — node ids are unique).
func mergeSorted(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
