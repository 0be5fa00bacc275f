package engine

import (
	"sync"
	"time"

	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/planner"
	"github.com/veloxrt/velox/internal/provider"
	"github.com/veloxrt/velox/internal/tensor"
)

// Engine owns a scheduler, an ordered provider assignment and a memory
// plan for one prepared Graph, and drives node dispatch (spec §4.J).
type Engine struct {
	Graph      *graph.Graph
	Scheduler  Scheduler
	Assignment map[int]provider.Provider // node id -> provider that claimed it
	Plan       *planner.Plan
}

// New builds an Engine for g using the given scheduler and the
// per-node provider assignment the Selector produced at load time.
func New(g *graph.Graph, sched Scheduler, assignment map[int]provider.Provider, plan *planner.Plan) *Engine {
	return &Engine{Graph: g, Scheduler: sched, Assignment: assignment, Plan: plan}
}

// runState holds everything one Run/Profile call mutates while the
// scheduler drives it: the Value bindings a node's inputs/outputs
// resolve through, and the raw per-buffer allocations the memory plan
// hands out views of. It is call-local (never shared across concurrent
// Run calls on the same Engine, unlike the Graph, which is read-only
// during Run) and its maps are guarded by mu, since the Parallel
// scheduler (internal/engine/parallel_scheduler.go) dispatches
// multiple ready nodes concurrently across worker goroutines — without
// the lock, two nodes completing at once would both hit the
// check-then-insert on bufs/bindings and race (Go maps are not safe
// for concurrent writes, planned or not).
type runState struct {
	mu       sync.Mutex
	bindings map[int]*tensor.Tensor // Value id -> tensor bound for this run
	bufs     map[int]*tensor.Tensor // Plan buffer id -> raw backing allocation
	times    []NodeProfile          // nil unless this run is a Profile call
}

func newRunState(numBuffers int) *runState {
	return &runState{
		bindings: make(map[int]*tensor.Tensor),
		bufs:     make(map[int]*tensor.Tensor, numBuffers),
	}
}

func (rs *runState) bind(vid int, t *tensor.Tensor) {
	rs.mu.Lock()
	rs.bindings[vid] = t
	rs.mu.Unlock()
}

func (rs *runState) lookup(vid int) (*tensor.Tensor, bool) {
	rs.mu.Lock()
	t, ok := rs.bindings[vid]
	rs.mu.Unlock()
	return t, ok
}

// buffer returns bufID's raw backing allocation, creating it (sized to
// size bytes) on first use.
func (rs *runState) buffer(bufID int, size int64) (*tensor.Tensor, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if b, ok := rs.bufs[bufID]; ok {
		return b, nil
	}
	b, err := tensor.Create(tensor.StaticShape(size), tensor.U8, tensor.Host)
	if err != nil {
		return nil, err
	}
	rs.bufs[bufID] = b
	return b, nil
}

func (rs *runState) recordProfile(np NodeProfile) {
	rs.mu.Lock()
	rs.times = append(rs.times, np)
	rs.mu.Unlock()
}

// run is the shared body of Run and Profile: it binds inputs into a
// call-local runState, drives the scheduler with a dispatch closure
// that resolves node inputs/outputs through that state rather than the
// shared Graph, and gathers graph outputs from it. Keeping bindings off
// the Graph's Value.Tensor fields is what lets two Run calls execute
// concurrently on one Engine without clobbering each other's
// inputs/intermediates/outputs (the Graph itself is only read during
// Run, never written). profile reports whether this call is a Profile
// call, in which case runState.times is populated and returned.
func (e *Engine) run(inputs []*tensor.Tensor, profile bool) ([]*tensor.Tensor, []NodeProfile, error) {
	g := e.Graph
	if len(inputs) != len(g.Inputs) {
		return nil, nil, verr.New(verr.InvalidArgument, "run: graph has %d inputs, got %d", len(g.Inputs), len(inputs))
	}

	rs := newRunState(e.Plan.NumBuffers)
	for i, vid := range g.Inputs {
		rs.bind(vid, inputs[i])
	}

	dispatch := func(nid int) error {
		start := time.Now()
		n := g.Node(nid)
		p, ok := e.Assignment[nid]
		if !ok {
			return verr.New(verr.NotFound, "run: node %d (%s) has no assigned provider", nid, n.OpType)
		}

		ins := make([]*tensor.Tensor, len(n.Inputs))
		for i, vid := range n.Inputs {
			if vid < 0 {
				continue
			}
			if t, ok := rs.lookup(vid); ok {
				ins[i] = t
			} else {
				// Not bound for this run: an initializer, whose Tensor
				// is set once at load time and never written during
				// Run, so reading it straight off the Graph is safe.
				ins[i] = g.Value(vid).Tensor
			}
			if ins[i] == nil {
				return verr.New(verr.InvalidArgument, "run: node %d (%s) input %d (value %d) is unbound", nid, n.OpType, i, vid)
			}
		}

		outs := make([]*tensor.Tensor, len(n.Outputs))
		for i, vid := range n.Outputs {
			t, err := e.allocateOutput(rs, vid)
			if err != nil {
				return err
			}
			outs[i] = t
		}

		if err := p.ExecuteNode(n, ins, outs, &kernel.Context{Device: n.Device}); err != nil {
			return verr.Wrap(verr.RuntimeError, err, "node %d (%s) failed", nid, n.OpType)
		}

		for i, vid := range n.Outputs {
			rs.bind(vid, outs[i])
		}

		if profile {
			var bytes int64
			for _, t := range outs {
				bytes += t.ByteSize()
			}
			rs.recordProfile(NodeProfile{
				NodeID: nid, Name: n.Name, OpType: n.OpType,
				TimeMS: float64(time.Since(start)) / float64(time.Millisecond),
				Bytes:  bytes,
			})
		}
		return nil
	}

	if err := e.Scheduler.Schedule(g, dispatch); err != nil {
		return nil, nil, err
	}

	outputs := make([]*tensor.Tensor, len(g.Outputs))
	for i, vid := range g.Outputs {
		t, ok := rs.lookup(vid)
		if !ok {
			return nil, nil, verr.New(verr.RuntimeError, "run: graph output %d (value %d) was never produced", i, vid)
		}
		outputs[i] = t
	}
	return outputs, rs.times, nil
}

// allocateOutput returns the Tensor backing Value vid for this Run: a
// view into the plan's shared buffer if vid was planned, or a fresh
// allocation if the planner deferred it (dynamic/unresolved shape at
// load time, spec §4.F).
func (e *Engine) allocateOutput(rs *runState, vid int) (*tensor.Tensor, error) {
	v := e.Graph.Value(vid)

	bufID, planned := e.Plan.BufferOf[vid]
	if !planned {
		if v.Shape == nil || !v.Shape.IsStatic() || v.DType == tensor.Unknown {
			return nil, verr.New(verr.InvalidArgument, "run: value %d (%s) has no resolved shape/dtype at run time", vid, v.Name)
		}
		return tensor.Create(v.Shape, v.DType, tensor.Host)
	}

	buf, err := rs.buffer(bufID, e.Plan.BufferSize[bufID])
	if err != nil {
		return nil, err
	}

	byteSize := v.Shape.NumElements() * int64(v.DType.Size())
	return tensor.CreateView(v.Shape, v.DType, buf.Data()[:byteSize], tensor.LayoutNone, tensor.Host)
}

// Run executes the graph once: bind inputs, dispatch every node in the
// scheduler's order (or as the Parallel worker pool drives it), gather
// outputs (spec §4.J).
func (e *Engine) Run(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	outputs, _, err := e.run(inputs, false)
	return outputs, err
}

// Future is the result handle RunAsync returns.
type Future struct {
	done chan struct{}
	out  []*tensor.Tensor
	err  error
}

// Wait blocks until the async Run completes and returns its result.
func (f *Future) Wait() ([]*tensor.Tensor, error) {
	<-f.done
	return f.out, f.err
}

// RunAsync wraps Run on a goroutine and returns a Future immediately
// (spec §6's run_async; §5: "a caller of RunAsync suspends on the
// returned future").
func (e *Engine) RunAsync(inputs []*tensor.Tensor) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		f.out, f.err = e.Run(inputs)
		close(f.done)
	}()
	return f
}

// NodeProfile is one node's entry in a ProfileResult (spec §6).
type NodeProfile struct {
	NodeID int
	Name   string
	OpType string
	TimeMS float64
	Bytes  int64
}

// ProfileResult is the flat profiling record of spec §6.
type ProfileResult struct {
	TotalMS   float64
	PeakBytes int64
	Nodes     []NodeProfile
}

// Profile is a Run variant that times each node around its kernel call
// (spec §5: "Profile per-node times... include any internal
// parallelism of the kernel") and records a rough memory footprint per
// node (sum of its output tensor byte sizes).
func (e *Engine) Profile(inputs []*tensor.Tensor) ([]*tensor.Tensor, *ProfileResult, error) {
	start := time.Now()
	outputs, nodeTimes, err := e.run(inputs, true)
	if err != nil {
		return nil, nil, err
	}

	var peak int64
	var running int64
	for _, np := range nodeTimes {
		running += np.Bytes
		if running > peak {
			peak = running
		}
	}

	return outputs, &ProfileResult{
		TotalMS:   float64(time.Since(start)) / float64(time.Millisecond),
		PeakBytes: peak,
		Nodes:     nodeTimes,
	}, nil
}

// RunBatch runs the graph once per entry in batches, sequentially
// (spec §6).
func (e *Engine) RunBatch(batches [][]*tensor.Tensor) ([][]*tensor.Tensor, error) {
	out := make([][]*tensor.Tensor, len(batches))
	for i, inputs := range batches {
		o, err := e.Run(inputs)
		if err != nil {
			return nil, verr.Wrap(verr.RuntimeError, err, "run_batch: entry %d failed", i)
		}
		out[i] = o
	}
	return out, nil
}

// RunBatchOptimized concatenates matching inputs along the leading dim
// into a single Run, then slices outputs back per entry (spec §6). It
// requires every entry's inputs to share the same shape in every dim
// but dim 0.
func (e *Engine) RunBatchOptimized(batches [][]*tensor.Tensor) ([][]*tensor.Tensor, error) {
	if len(batches) == 0 {
		return nil, nil
	}
	numInputs := len(batches[0])
	for i, b := range batches {
		if len(b) != numInputs {
			return nil, verr.New(verr.InvalidArgument, "run_batch_optimized: entry %d has %d inputs, want %d", i, len(b), numInputs)
		}
	}

	concatenated := make([]*tensor.Tensor, numInputs)
	leadCounts := make([]int64, len(batches))
	for slot := 0; slot < numInputs; slot++ {
		shape := batches[0][slot].Shape()
		dtype := batches[0][slot].DType()
		var totalLead int64
		for i, b := range batches {
			s := b[slot].Shape()
			if s.Rank() != shape.Rank() {
				return nil, verr.New(verr.InvalidArgument, "run_batch_optimized: input %d entry %d rank mismatch", slot, i)
			}
			for d := 1; d < s.Rank(); d++ {
				if !s[d].Equal(shape[d]) {
					return nil, verr.New(verr.InvalidArgument, "run_batch_optimized: input %d entry %d shape %s does not match %s outside dim 0", slot, i, s, shape)
				}
			}
			lead := int64(1)
			if s.Rank() > 0 {
				lead = s[0].Size
			}
			leadCounts[i] = lead
			totalLead += lead
		}

		outShape := append(tensor.Shape{tensor.Static(totalLead)}, shape[1:]...)
		cat, err := tensor.Create(outShape, dtype, tensor.Host)
		if err != nil {
			return nil, err
		}
		offset := int64(0)
		rowBytes := shape[1:].NumElements() * int64(dtype.Size())
		for i, b := range batches {
			src := b[slot].Data()
			dstOffset := offset * rowBytes
			copy(cat.Data()[dstOffset:dstOffset+int64(len(src))], src)
			offset += leadCounts[i]
		}
		concatenated[slot] = cat
	}

	outputs, err := e.Run(concatenated)
	if err != nil {
		return nil, err
	}

	result := make([][]*tensor.Tensor, len(batches))
	for i := range batches {
		result[i] = make([]*tensor.Tensor, len(outputs))
	}
	for slot, out := range outputs {
		shape := out.Shape()
		rowCount := shape[0].Size
		if rowCount != sumLead(leadCounts) {
			return nil, verr.New(verr.RuntimeError, "run_batch_optimized: output %d leading dim %d does not match input batch total %d", slot, rowCount, sumLead(leadCounts))
		}
		starts := make([]int64, shape.Rank())
		ends := make([]int64, shape.Rank())
		steps := make([]int64, shape.Rank())
		for d := range steps {
			steps[d] = 1
			ends[d] = shape[d].Size
		}
		offset := int64(0)
		for i := range batches {
			starts[0] = offset
			ends[0] = offset + leadCounts[i]
			view, err := out.Slice(starts, ends, steps)
			if err != nil {
				return nil, err
			}
			result[i][slot] = view
			offset += leadCounts[i]
		}
	}
	return result, nil
}

func sumLead(leads []int64) int64 {
	var total int64
	for _, l := range leads {
		total += l
	}
	return total
}
