// Package planner implements the static memory planner of spec §4.F: a
// lifetime-interval analysis over a graph's intermediate Values
// followed by a greedy best-fit buffer-reuse assignment, the same
// family of algorithm a register allocator uses for interval
// coloring. The plan is advisory — the engine consults it when
// allocating intermediate Tensors but a provider that pre-binds its
// own buffers for a Value is free to ignore the assignment for that
// Value entirely.
package planner

import (
	"sort"

	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
	"k8s.io/klog/v2"
)

// Interval is one Value's lifetime in topological-order node indices.
// Death is -1 for a Value that is a graph output: it must stay alive
// past the last node, so it never becomes eligible for reuse.
type Interval struct {
	Value int
	Birth int
	Death int
}

// Plan maps each planned Value to a buffer slot and records how large
// each slot must be (the largest Value ever assigned to it).
type Plan struct {
	BufferOf   map[int]int
	BufferSize map[int]int64
	NumBuffers int
}

// PreBound is implemented by a caller (typically an execution
// provider) that wants to exclude specific Values from planning — for
// instance because it allocates device-resident buffers for them
// itself and the planner's host-oriented byte accounting does not
// apply.
type PreBound interface {
	IsPreBound(valueID int) bool
}

// Build computes a buffer-reuse Plan for g. Graph inputs and
// initializers are never planned (their storage is supplied by the
// caller or bound directly); a Value with a dynamic or unresolved
// shape is skipped with a warning and left for the engine to allocate
// at run time. If pre is non-nil, Values it reports as pre-bound are
// skipped the same way.
func Build(g *graph.Graph, pre PreBound) (*Plan, error) {
	order, err := graph.TopologicalSort(g)
	if err != nil {
		return nil, err
	}
	pos := make(map[int]int, len(order))
	for i, nid := range order {
		pos[nid] = i
	}

	outputSet := make(map[int]bool, len(g.Outputs))
	for _, vid := range g.Outputs {
		outputSet[vid] = true
	}

	intervals, sizes := lifetimes(g, pos, outputSet, pre)
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].Birth != intervals[j].Birth {
			return intervals[i].Birth < intervals[j].Birth
		}
		return intervals[i].Value < intervals[j].Value
	})

	return assign(intervals, sizes), nil
}

func lifetimes(g *graph.Graph, pos map[int]int, outputSet map[int]bool, pre PreBound) ([]Interval, map[int]int64) {
	var intervals []Interval
	sizes := make(map[int]int64)

	for _, vid := range g.Values() {
		v := g.Value(vid)
		if v.Kind == graph.ValueInitializer || !v.HasProducer() {
			continue
		}
		if pre != nil && pre.IsPreBound(vid) {
			continue
		}
		if v.Shape == nil || !v.Shape.IsStatic() || v.DType == tensor.Unknown {
			klog.Warningf("planner: value %d (%s) has a dynamic or unresolved shape, leaving it unplanned", vid, v.Name)
			continue
		}
		birth, ok := pos[v.Producer]
		if !ok {
			continue
		}

		death := birth
		if outputSet[vid] {
			death = -1
		} else {
			for _, cid := range v.Consumers {
				if cpos, ok := pos[cid]; ok && cpos > death {
					death = cpos
				}
			}
		}

		intervals = append(intervals, Interval{Value: vid, Birth: birth, Death: death})
		sizes[vid] = v.Shape.NumElements() * int64(v.DType.Size())
	}
	return intervals, sizes
}

// slot tracks one buffer's size and the node index after which it is
// free to be reused (-1 while still live, since its owner is a graph
// output and never frees).
type slot struct {
	size int64
	free int
}

// assign walks intervals in birth order and, for each, picks the
// smallest already-free buffer that is large enough (best fit);
// failing that it allocates a new buffer. A buffer only becomes
// eligible for reuse once its previous owner's death index is
// strictly before the new interval's birth index — a value born on
// the same node that kills its predecessor is not assumed safe to
// alias in place.
func assign(intervals []Interval, sizes map[int]int64) *Plan {
	var slots []slot
	bufferOf := make(map[int]int, len(intervals))
	bufferSize := make(map[int]int64)

	for _, iv := range intervals {
		need := sizes[iv.Value]
		best := -1
		for i, s := range slots {
			if s.free < 0 || s.free >= iv.Birth || s.size < need {
				continue
			}
			if best == -1 || s.size < slots[best].size {
				best = i
			}
		}
		if best == -1 {
			best = len(slots)
			slots = append(slots, slot{size: need, free: iv.Death})
		} else {
			slots[best].free = iv.Death
			if need > slots[best].size {
				slots[best].size = need
			}
		}
		bufferOf[iv.Value] = best
		bufferSize[best] = slots[best].size
	}

	return &Plan{BufferOf: bufferOf, BufferSize: bufferSize, NumBuffers: len(slots)}
}
