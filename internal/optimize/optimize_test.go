package optimize

import (
	"testing"

	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/kernel/cpu"
	"github.com/veloxrt/velox/internal/tensor"
)

func init() {
	cpu.InitOperators()
}

func f32Initializer(g *graph.Graph, name string, shape tensor.Shape, data []float32) int {
	t, err := tensor.Create(shape, tensor.F32, tensor.Host)
	if err != nil {
		panic(err)
	}
	copy(tensor.AsFloat32(t), data)
	vid := g.AddValue(name, graph.ValueInitializer)
	v := g.Value(vid)
	v.Tensor = t
	v.Shape = shape
	v.DType = tensor.F32
	return vid
}

func fillInitializer(g *graph.Graph, name string, shape tensor.Shape, value float32) int {
	n := int(shape.NumElements())
	data := make([]float32, n)
	for i := range data {
		data[i] = value
	}
	return f32Initializer(g, name, shape, data)
}

// TestConstantFoldingFoldsAddOfTwoInitializers builds x=[1,2,3],
// y=[10,20,30] -> Add -> graph output, with both operands bound
// initializers, and checks the fold produces a single initializer
// output with the summed values and removes the Add node.
func TestConstantFoldingFoldsAddOfTwoInitializers(t *testing.T) {
	g := graph.New()
	shape := tensor.StaticShape(3)
	x := f32Initializer(g, "x", shape, []float32{1, 2, 3})
	y := f32Initializer(g, "y", shape, []float32{10, 20, 30})
	out := g.AddValue("out", graph.ValueProduced)

	n := g.AddNode("Add", "add1")
	mustConnect(t, g, n, x, y)
	if err := g.ConnectOutput(n, out); err != nil {
		t.Fatal(err)
	}
	g.Value(out).Shape = shape
	g.Value(out).DType = tensor.F32
	g.Outputs = []int{out}
	g.Inputs = []int{x}

	cf := ConstantFolding{}
	changed, err := cf.Run(g)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Fatal("expected ConstantFolding to report a change")
	}
	if len(g.Nodes()) != 0 {
		t.Fatalf("expected Add node to be removed, got %d nodes left", len(g.Nodes()))
	}
	outV := g.Value(out)
	if outV.Kind != graph.ValueInitializer {
		t.Fatalf("expected output value to become an initializer, got kind %v", outV.Kind)
	}
	got := tensor.AsFloat32(outV.Tensor)
	want := []float32{11, 22, 33}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("folded value[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConstantFoldingSkipsDynamicInputs(t *testing.T) {
	g := graph.New()
	shape := tensor.StaticShape(3)
	in := g.AddValue("x", graph.ValueInput)
	g.Value(in).Shape = shape
	g.Value(in).DType = tensor.F32
	y := f32Initializer(g, "y", shape, []float32{1, 2, 3})
	out := g.AddValue("out", graph.ValueProduced)
	g.Value(out).Shape = shape
	g.Value(out).DType = tensor.F32

	n := g.AddNode("Add", "add1")
	mustConnect(t, g, n, in, y)
	if err := g.ConnectOutput(n, out); err != nil {
		t.Fatal(err)
	}
	g.Inputs = []int{in}
	g.Outputs = []int{out}

	changed, err := (ConstantFolding{}).Run(g)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if changed {
		t.Fatal("expected ConstantFolding to leave a node with a non-initializer input untouched")
	}
	if len(g.Nodes()) != 1 {
		t.Fatalf("expected Add node to survive, got %d nodes", len(g.Nodes()))
	}
}

// TestDeadCodeEliminationRemovesUnreachableNode builds a graph where
// one Relu feeds the output and a second, parallel Relu's output is
// never consumed, and checks only the dead one is removed.
func TestDeadCodeEliminationRemovesUnreachableNode(t *testing.T) {
	g := graph.New()
	shape := tensor.StaticShape(2)
	in := g.AddValue("x", graph.ValueInput)
	g.Value(in).Shape = shape
	live := g.AddValue("live", graph.ValueProduced)
	dead := g.AddValue("dead", graph.ValueProduced)

	liveNode := g.AddNode("Relu", "live_relu")
	mustConnect(t, g, liveNode, in)
	if err := g.ConnectOutput(liveNode, live); err != nil {
		t.Fatal(err)
	}

	deadNode := g.AddNode("Relu", "dead_relu")
	mustConnect(t, g, deadNode, in)
	if err := g.ConnectOutput(deadNode, dead); err != nil {
		t.Fatal(err)
	}

	g.Inputs = []int{in}
	g.Outputs = []int{live}

	changed, err := (DeadCodeElimination{}).Run(g)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Fatal("expected a change")
	}
	if g.Node(liveNode) == nil {
		t.Fatal("live node was removed")
	}
	if g.Node(deadNode) != nil {
		t.Fatal("dead node survived")
	}
}

func TestDeadCodeEliminationIsIdempotent(t *testing.T) {
	g := graph.New()
	shape := tensor.StaticShape(2)
	in := g.AddValue("x", graph.ValueInput)
	g.Value(in).Shape = shape
	out := g.AddValue("y", graph.ValueProduced)
	n := g.AddNode("Relu", "relu1")
	mustConnect(t, g, n, in)
	if err := g.ConnectOutput(n, out); err != nil {
		t.Fatal(err)
	}
	g.Inputs = []int{in}
	g.Outputs = []int{out}

	dce := DeadCodeElimination{}
	if _, err := dce.Run(g); err != nil {
		t.Fatal(err)
	}
	changed, err := dce.Run(g)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("expected second DCE run on an already-clean graph to report no change")
	}
}

// TestOperatorFusionMergesConvReLU builds Conv(x, w) -> Relu and checks
// the pass collapses it to a single FusedConvBNReLU node.
func TestOperatorFusionMergesConvReLU(t *testing.T) {
	g := graph.New()
	xShape := tensor.StaticShape(1, 1, 3, 3)
	wShape := tensor.StaticShape(1, 1, 1, 1)
	x := g.AddValue("x", graph.ValueInput)
	g.Value(x).Shape = xShape
	g.Value(x).DType = tensor.F32
	w := f32Initializer(g, "w", wShape, []float32{2})
	convOut := g.AddValue("conv_out", graph.ValueProduced)
	reluOut := g.AddValue("relu_out", graph.ValueProduced)

	conv := g.AddNode("Conv", "conv1")
	mustConnect(t, g, conv, x, w)
	if err := g.ConnectOutput(conv, convOut); err != nil {
		t.Fatal(err)
	}
	relu := g.AddNode("Relu", "relu1")
	mustConnect(t, g, relu, convOut)
	if err := g.ConnectOutput(relu, reluOut); err != nil {
		t.Fatal(err)
	}
	g.Inputs = []int{x}
	g.Outputs = []int{reluOut}

	changed, err := (OperatorFusion{}).Run(g)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Fatal("expected a fusion rewrite")
	}
	nodes := g.Nodes()
	if len(nodes) != 1 {
		t.Fatalf("expected exactly one fused node, got %d", len(nodes))
	}
	fused := g.Node(nodes[0])
	if fused.OpType != "FusedConvBNReLU" {
		t.Fatalf("expected FusedConvBNReLU, got %s", fused.OpType)
	}
	if fused.Outputs[0] != reluOut {
		t.Fatalf("expected fused node to produce the original relu output value")
	}
}

func TestOperatorFusionMergesMatMulAdd(t *testing.T) {
	g := graph.New()
	aShape := tensor.StaticShape(2, 3)
	bShape := tensor.StaticShape(3, 4)
	biasShape := tensor.StaticShape(4)

	a := g.AddValue("a", graph.ValueInput)
	g.Value(a).Shape = aShape
	g.Value(a).DType = tensor.F32
	b := f32Initializer(g, "b", bShape, make([]float32, 12))
	bias := f32Initializer(g, "bias", biasShape, make([]float32, 4))

	mmOut := g.AddValue("mm_out", graph.ValueProduced)
	g.Value(mmOut).Shape = tensor.StaticShape(2, 4)
	addOut := g.AddValue("add_out", graph.ValueProduced)
	g.Value(addOut).Shape = tensor.StaticShape(2, 4)

	mm := g.AddNode("MatMul", "mm1")
	mustConnect(t, g, mm, a, b)
	if err := g.ConnectOutput(mm, mmOut); err != nil {
		t.Fatal(err)
	}
	add := g.AddNode("Add", "add1")
	mustConnect(t, g, add, mmOut, bias)
	if err := g.ConnectOutput(add, addOut); err != nil {
		t.Fatal(err)
	}
	g.Inputs = []int{a}
	g.Outputs = []int{addOut}

	changed, err := (OperatorFusion{}).Run(g)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Fatal("expected a fusion rewrite")
	}
	nodes := g.Nodes()
	if len(nodes) != 1 || g.Node(nodes[0]).OpType != "FusedMatMulAdd" {
		t.Fatalf("expected a single FusedMatMulAdd node, got %d nodes", len(nodes))
	}
}

func TestSubgraphReplacementRemovesAddZero(t *testing.T) {
	g := graph.New()
	shape := tensor.StaticShape(2)
	x := g.AddValue("x", graph.ValueInput)
	g.Value(x).Shape = shape
	g.Value(x).DType = tensor.F32
	zero := fillInitializer(g, "zero", shape, 0)
	out := g.AddValue("out", graph.ValueProduced)

	n := g.AddNode("Add", "add1")
	mustConnect(t, g, n, x, zero)
	if err := g.ConnectOutput(n, out); err != nil {
		t.Fatal(err)
	}
	g.Inputs = []int{x}
	g.Outputs = []int{out}

	changed, err := (SubgraphReplacement{}).Run(g)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Fatal("expected Add(0,x) to be simplified")
	}
	if len(g.Nodes()) != 0 {
		t.Fatalf("expected the Add node to be removed, got %d nodes", len(g.Nodes()))
	}
	if g.Outputs[0] != x {
		t.Fatalf("expected graph output to be rerouted to x, got value %d", g.Outputs[0])
	}
}

func TestSubgraphReplacementRemovesMulOne(t *testing.T) {
	g := graph.New()
	shape := tensor.StaticShape(2)
	x := g.AddValue("x", graph.ValueInput)
	g.Value(x).Shape = shape
	g.Value(x).DType = tensor.F32
	one := fillInitializer(g, "one", shape, 1)
	out := g.AddValue("out", graph.ValueProduced)

	n := g.AddNode("Mul", "mul1")
	mustConnect(t, g, n, one, x)
	if err := g.ConnectOutput(n, out); err != nil {
		t.Fatal(err)
	}
	g.Inputs = []int{x}
	g.Outputs = []int{out}

	changed, err := (SubgraphReplacement{}).Run(g)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Fatal("expected Mul(1,x) to be simplified")
	}
	if g.Outputs[0] != x {
		t.Fatalf("expected graph output to be rerouted to x, got value %d", g.Outputs[0])
	}
}

func TestManagerRunsPassesToFixedPoint(t *testing.T) {
	g := graph.New()
	shape := tensor.StaticShape(2)
	x := g.AddValue("x", graph.ValueInput)
	g.Value(x).Shape = shape
	g.Value(x).DType = tensor.F32
	zero := fillInitializer(g, "zero", shape, 0)
	mid := g.AddValue("mid", graph.ValueProduced)
	one := fillInitializer(g, "one", shape, 1)
	out := g.AddValue("out", graph.ValueProduced)

	add := g.AddNode("Add", "add1")
	mustConnect(t, g, add, x, zero)
	if err := g.ConnectOutput(add, mid); err != nil {
		t.Fatal(err)
	}
	mul := g.AddNode("Mul", "mul1")
	mustConnect(t, g, mul, mid, one)
	if err := g.ConnectOutput(mul, out); err != nil {
		t.Fatal(err)
	}
	g.Inputs = []int{x}
	g.Outputs = []int{out}

	mgr := NewManager(SubgraphReplacement{})
	if err := mgr.Run(g); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(g.Nodes()) != 0 {
		t.Fatalf("expected both identity ops to be simplified away, got %d nodes", len(g.Nodes()))
	}
	if g.Outputs[0] != x {
		t.Fatalf("expected graph output to resolve to x after both rewrites, got %d", g.Outputs[0])
	}
}

func TestManagerDetectsDependencyCycle(t *testing.T) {
	mgr := NewManager(cyclicPass{name: "A", deps: []string{"B"}}, cyclicPass{name: "B", deps: []string{"A"}})
	g := graph.New()
	in := g.AddValue("x", graph.ValueInput)
	g.Inputs = []int{in}
	g.Outputs = []int{in}
	if err := mgr.Run(g); err == nil {
		t.Fatal("expected Manager.Run to reject a cyclic pass dependency graph")
	}
}

type cyclicPass struct {
	name string
	deps []string
}

func (p cyclicPass) Name() string             { return p.name }
func (p cyclicPass) Dependencies() []string    { return p.deps }
func (p cyclicPass) Repeatable() bool          { return false }
func (p cyclicPass) Run(*graph.Graph) (bool, error) { return false, nil }

func mustConnect(t *testing.T, g *graph.Graph, nodeID int, inputs ...int) {
	t.Helper()
	for _, vid := range inputs {
		if err := g.ConnectInput(nodeID, vid); err != nil {
			t.Fatal(err)
		}
	}
}
