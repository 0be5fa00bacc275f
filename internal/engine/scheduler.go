// Package engine implements the scheduler and execution-engine half of
// spec §4.J: three interchangeable schedulers (Topological, Pipeline,
// Parallel) behind a common contract, and the Engine that owns one of
// them plus an ordered provider list and drives Run/RunAsync/Profile/
// RunBatch/RunBatchOptimized.
package engine

import (
	"github.com/veloxrt/velox/internal/graph"
)

// Dispatch runs one node and reports its error, if any. The Engine
// builds this closure around its providers, tensor bindings and
// kernel.Context so schedulers stay ignorant of execution mechanics —
// their whole job is choosing *when*, not *how*.
type Dispatch func(nodeID int) error

// Scheduler is the common contract of spec §4.J's "schedule(graph,
// providers, ctx)" — providers and ctx are folded into the Dispatch
// closure the Engine passes in, since a scheduler never needs to see
// them directly.
type Scheduler interface {
	// Name identifies the scheduler ("Topological", "Pipeline", "Parallel").
	Name() string
	// Order returns the execution order this scheduler would use for
	// g (get_execution_order(graph) in spec terms). For Parallel this
	// is the topological order a single-threaded run would have
	// produced; the actual concurrent run may interleave independent
	// nodes differently.
	Order(g *graph.Graph) ([]int, error)
	// Schedule drives dispatch over g's nodes according to this
	// scheduler's policy, returning the first error encountered (or
	// nil). No further nodes are dispatched once fn reports an error.
	Schedule(g *graph.Graph, fn Dispatch) error
}

// Topological is the single-threaded baseline scheduler: nodes run in
// topological order, one at a time (spec §4.J, §5: "the Topological
// and Pipeline schedulers do not" run nodes concurrently).
type Topological struct{}

func (Topological) Name() string { return "Topological" }

func (Topological) Order(g *graph.Graph) ([]int, error) {
	return graph.TopologicalSort(g)
}

func (t Topological) Schedule(g *graph.Graph, fn Dispatch) error {
	order, err := t.Order(g)
	if err != nil {
		return err
	}
	for _, nid := range order {
		if err := fn(nid); err != nil {
			return err
		}
	}
	return nil
}

// Pipeline partitions the topological order into Stages contiguous
// stages by position (spec §4.J: "staging is informational only;
// execution remains single-threaded per stage" for this spec).
// StageOf lets a caller (e.g. Profile) report which stage a node fell
// into; execution itself is identical to Topological.
type Pipeline struct {
	Stages int // number of stages; <= 0 behaves as 1 (no partitioning)
}

func (p Pipeline) Name() string { return "Pipeline" }

func (p Pipeline) Order(g *graph.Graph) ([]int, error) {
	return graph.TopologicalSort(g)
}

func (p Pipeline) Schedule(g *graph.Graph, fn Dispatch) error {
	order, err := p.Order(g)
	if err != nil {
		return err
	}
	for _, nid := range order {
		if err := fn(nid); err != nil {
			return err
		}
	}
	return nil
}

// StageOf reports which of p.Stages contiguous buckets position i (an
// index into an execution order of length n) falls into. Informational
// only, per spec §4.J.
func (p Pipeline) StageOf(i, n int) int {
	stages := p.Stages
	if stages <= 0 {
		stages = 1
	}
	if n == 0 {
		return 0
	}
	perStage := (n + stages - 1) / stages
	if perStage == 0 {
		perStage = 1
	}
	stage := i / perStage
	if stage >= stages {
		stage = stages - 1
	}
	return stage
}
