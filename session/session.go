package session

import (
	"os"
	"sync"

	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/engine"
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/onnx"
	"github.com/veloxrt/velox/internal/optimize"
	"github.com/veloxrt/velox/internal/planner"
	"github.com/veloxrt/velox/internal/pool"
	"github.com/veloxrt/velox/internal/provider"
	"github.com/veloxrt/velox/internal/shapeinfer"
	"github.com/veloxrt/velox/tensor"
)

// State is a Session's position in the Created -> ModelLoaded ->
// Prepared -> Ready lifecycle of spec §3.
type State int

const (
	Created State = iota
	ModelLoaded
	Prepared
	Ready
)

// Future and ProfileResult are re-exported by alias so callers of this
// package never need to name an internal/engine type directly.
type (
	Future        = engine.Future
	ProfileResult = engine.ProfileResult
	NodeProfile   = engine.NodeProfile
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case ModelLoaded:
		return "ModelLoaded"
	case Prepared:
		return "Prepared"
	case Ready:
		return "Ready"
	default:
		return "Unknown"
	}
}

// Session drives one model through load -> prepare -> run. A Session
// is safe for concurrent Run/RunAsync/Profile calls once Ready, but
// LoadModel*/Prepare must not race with each other or with a run
// (spec §5: "a Session's state-machine transitions are not themselves
// safe against a concurrent Run call").
type Session struct {
	opts Options

	mu    sync.RWMutex
	state State

	graph      *graph.Graph
	selector   *provider.Selector
	assignment map[int]provider.Provider
	plan       *planner.Plan
	engine     *engine.Engine

	inputNames, outputNames []string
}

func init() {
	provider.InitProviders()
}

// Create builds a new Session in state Created (spec §6's
// Session::create(options)).
func Create(opts Options) *Session {
	pool.ForDevice(int(tensor.Host)).SetMaxBytes(opts.MemoryPoolSize)
	return &Session{opts: opts, state: Created}
}

// State returns the Session's current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) requireState(want State, op string) error {
	if s.state != want {
		return verr.New(verr.InvalidArgument, "%s: session is in state %s, want %s", op, s.state, want)
	}
	return nil
}

// LoadModel reads an ONNX-format model from path and transitions
// Created -> ModelLoaded.
func (s *Session) LoadModel(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return verr.Wrap(verr.NotFound, err, "load_model: %s", path)
	}
	return s.LoadModelFromMemory(data)
}

// LoadModelFromMemory parses an in-memory ONNX-format model buffer and
// transitions Created -> ModelLoaded.
func (s *Session) LoadModelFromMemory(data []byte) error {
	model, err := onnx.Parse(data)
	if err != nil {
		return verr.Wrap(verr.InvalidModel, err, "load_model_from_memory")
	}
	g, err := onnx.BuildGraph(model)
	if err != nil {
		return err
	}
	return s.LoadModelFromGraph(g)
}

// LoadModelFromGraph adopts an already-built Graph IR directly,
// bypassing the ONNX parser — the entry point for callers that
// construct a graph programmatically (spec §6).
func (s *Session) LoadModelFromGraph(g *graph.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(Created, "load_model_from_graph"); err != nil {
		return err
	}

	s.graph = g
	s.inputNames = valueNames(g, g.Inputs)
	s.outputNames = valueNames(g, g.Outputs)
	s.state = ModelLoaded
	return nil
}

func valueNames(g *graph.Graph, ids []int) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = g.Value(id).Name
	}
	return names
}

// InputNames returns the loaded model's graph-input names in order.
func (s *Session) InputNames() []string { return s.outputOrInputNames(true) }

// OutputNames returns the loaded model's graph-output names in order.
func (s *Session) OutputNames() []string { return s.outputOrInputNames(false) }

func (s *Session) outputOrInputNames(inputs bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if inputs {
		return append([]string(nil), s.inputNames...)
	}
	return append([]string(nil), s.outputNames...)
}

// InputShapes returns each graph input's declared Shape, in the same
// order as InputNames; a dimension left dynamic by the model is
// tensor.Any().
func (s *Session) InputShapes() []tensor.Shape { return s.shapesOf(true) }

// OutputShapes returns each graph output's declared Shape, in the
// same order as OutputNames. Shapes are only as resolved as shape
// inference managed during Prepare; a Session still in ModelLoaded
// reports whatever the model declared.
func (s *Session) OutputShapes() []tensor.Shape { return s.shapesOf(false) }

func (s *Session) shapesOf(inputs bool) []tensor.Shape {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.graph.Outputs
	if inputs {
		ids = s.graph.Inputs
	}
	out := make([]tensor.Shape, len(ids))
	for i, id := range ids {
		out[i] = s.graph.Value(id).Shape
	}
	return out
}

// CreateInputTensor allocates a zero-filled host Tensor matching input
// index idx's declared shape and dtype (spec §6). It fails if the
// input's shape is not fully static.
func (s *Session) CreateInputTensor(idx int) (*tensor.Tensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= len(s.graph.Inputs) {
		return nil, verr.New(verr.InvalidArgument, "create_input_tensor: index %d out of range [0,%d)", idx, len(s.graph.Inputs))
	}
	v := s.graph.Value(s.graph.Inputs[idx])
	if v.Shape == nil || !v.Shape.IsStatic() {
		return nil, verr.New(verr.InvalidArgument, "create_input_tensor: input %q has a dynamic shape, supply dims explicitly", v.Name)
	}
	t, err := tensor.Create(v.Shape, v.DType, tensor.Host)
	if err != nil {
		return nil, err
	}
	t.FillZero()
	return t, nil
}

// buildOptimizer assembles the Manager for opts.OptimizationLevel,
// honoring EnableOperatorFusion as an independent override (spec §6).
func buildOptimizer(opts Options) *optimize.Manager {
	if opts.OptimizationLevel == OptNone {
		return optimize.NewManager()
	}

	passes := []optimize.Pass{optimize.ConstantFolding{}, optimize.DeadCodeElimination{}}
	if opts.OptimizationLevel >= OptExtended && opts.EnableOperatorFusion {
		passes = append(passes, optimize.OperatorFusion{}, optimize.SubgraphReplacement{})
	}
	if opts.OptimizationLevel >= OptAll && opts.EnableOperatorFusion {
		passes = append(passes, optimize.MemoryLayoutOptimization{})
	}
	return optimize.NewManager(passes...)
}

// buildProviders resolves opts.Providers into live Provider instances,
// in priority order, for the Selector.
func buildProviders(opts Options) ([]provider.Provider, error) {
	names := opts.Providers
	if len(names) == 0 {
		names = []string{"CPU"}
	}
	providers := make([]provider.Provider, 0, len(names))
	for _, name := range names {
		p, err := provider.Create(name)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// Prepare runs shape inference, the optimizer pipeline, provider
// assignment and memory planning over the loaded graph, transitioning
// ModelLoaded -> Prepared (spec §3, §4).
func (s *Session) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(ModelLoaded, "prepare"); err != nil {
		return err
	}

	if err := shapeinfer.Infer(s.graph); err != nil {
		return verr.Wrap(verr.InvalidModel, err, "prepare: shape inference")
	}

	if err := buildOptimizer(s.opts).Run(s.graph); err != nil {
		return err
	}

	providers, err := buildProviders(s.opts)
	if err != nil {
		return err
	}
	s.selector = provider.NewSelector(providers)
	assignment, err := s.selector.Assign(s.graph)
	if err != nil {
		return err
	}
	s.assignment = assignment

	for _, p := range s.selector.Providers() {
		optimized, err := p.OptimizeGraph(s.graph)
		if err != nil {
			return verr.Wrap(verr.InvalidModel, err, "prepare: provider %q graph optimization", p.Name())
		}
		s.graph = optimized
	}
	for _, nid := range s.graph.Nodes() {
		n := s.graph.Node(nid)
		p := s.assignment[nid]
		if err := p.CompileNode(n); err != nil {
			return verr.Wrap(verr.InvalidModel, err, "prepare: compiling node %q (%s)", n.Name, n.OpType)
		}
	}
	for _, p := range s.selector.Providers() {
		if err := p.PrepareExecution(s.graph); err != nil {
			return verr.Wrap(verr.InvalidModel, err, "prepare: provider %q", p.Name())
		}
	}

	var preBound planner.PreBound
	for _, p := range s.selector.Providers() {
		if pb, ok := p.(provider.PreBinder); ok {
			preBound = pb
			break
		}
	}
	plan, err := planner.Build(s.graph, preBound)
	if err != nil {
		return err
	}
	s.plan = plan

	s.state = Prepared
	return s.finishPrepare()
}

// finishPrepare builds the Engine and transitions Prepared -> Ready.
// Split out from Prepare only so the two transitions are each a single
// state write under the same lock (spec §3's lifecycle is Created ->
// ModelLoaded -> Prepared -> Ready with no caller-visible gap between
// the last two for this runtime: nothing observable happens between
// them).
func (s *Session) finishPrepare() error {
	workers := s.opts.NumThreads
	sched := engine.Parallel{Workers: workers}
	s.engine = engine.New(s.graph, sched, s.assignment, s.plan)
	s.state = Ready
	return nil
}

// Run executes the loaded, prepared model against positional inputs
// in graph-input order (spec §6). Callable only in state Ready.
func (s *Session) Run(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireState(Ready, "run"); err != nil {
		return nil, err
	}
	return s.engine.Run(inputs)
}

// RunNamed executes the model with inputs keyed by graph-input name,
// reordering them to positional order internally (spec §6).
func (s *Session) RunNamed(inputs map[string]*tensor.Tensor) ([]*tensor.Tensor, error) {
	s.mu.RLock()
	names := append([]string(nil), s.inputNames...)
	s.mu.RUnlock()

	ordered := make([]*tensor.Tensor, len(names))
	for i, name := range names {
		t, ok := inputs[name]
		if !ok {
			return nil, verr.New(verr.InvalidArgument, "run: missing input %q", name)
		}
		ordered[i] = t
	}
	return s.Run(ordered)
}

// RunAsync runs the model on a goroutine and returns a Future (spec
// §6's run_async).
func (s *Session) RunAsync(inputs []*tensor.Tensor) (*Future, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireState(Ready, "run_async"); err != nil {
		return nil, err
	}
	return s.engine.RunAsync(inputs), nil
}

// Profile runs the model once while timing each node, returning
// per-node timings and a rough peak-memory estimate alongside the
// outputs (spec §6).
func (s *Session) Profile(inputs []*tensor.Tensor) ([]*tensor.Tensor, *ProfileResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireState(Ready, "profile"); err != nil {
		return nil, nil, err
	}
	return s.engine.Profile(inputs)
}

// RunBatch runs the model once per batch entry, sequentially (spec §6).
func (s *Session) RunBatch(batches [][]*tensor.Tensor) ([][]*tensor.Tensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireState(Ready, "run_batch"); err != nil {
		return nil, err
	}
	return s.engine.RunBatch(batches)
}

// RunBatchOptimized concatenates a batch's inputs into a single Run
// and slices the outputs back apart (spec §6).
func (s *Session) RunBatchOptimized(batches [][]*tensor.Tensor) ([][]*tensor.Tensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireState(Ready, "run_batch_optimized"); err != nil {
		return nil, err
	}
	return s.engine.RunBatchOptimized(batches)
}

// Graph exposes the session's (possibly optimized) Graph IR, mainly so
// a caller can inspect it after Prepare for diagnostics or the CLI's
// `info` subcommand.
func (s *Session) Graph() *graph.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// MemoryPlan exposes the Prepared/Ready session's memory plan, mainly
// for the CLI's `info`/`profile` subcommands.
func (s *Session) MemoryPlan() *planner.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan
}
