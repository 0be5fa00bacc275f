package shapeinfer

import (
	"testing"

	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

func TestInferPropagatesThroughReluChain(t *testing.T) {
	g := graph.New()
	in := g.AddValue("x", graph.ValueInput)
	g.Value(in).Shape = tensor.StaticShape(2, 3)
	g.Value(in).DType = tensor.F32

	mid := g.AddValue("mid", graph.ValueProduced)
	out := g.AddValue("y", graph.ValueProduced)

	n1 := g.AddNode("Relu", "relu1")
	_ = g.ConnectInput(n1, in)
	_ = g.ConnectOutput(n1, mid)

	n2 := g.AddNode("Relu", "relu2")
	_ = g.ConnectInput(n2, mid)
	_ = g.ConnectOutput(n2, out)

	g.Inputs = []int{in}
	g.Outputs = []int{out}

	if err := Infer(g); err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if !g.Value(out).Shape.Equal(tensor.StaticShape(2, 3)) {
		t.Fatalf("expected output shape [2,3], got %s", g.Value(out).Shape)
	}
	if g.Value(out).DType != tensor.F32 {
		t.Fatalf("expected output dtype F32, got %s", g.Value(out).DType)
	}
}

func TestMatMulRuleComputesOutputShape(t *testing.T) {
	g := graph.New()
	a := g.AddValue("a", graph.ValueInput)
	g.Value(a).Shape = tensor.StaticShape(4, 8)
	g.Value(a).DType = tensor.F32
	b := g.AddValue("b", graph.ValueInput)
	g.Value(b).Shape = tensor.StaticShape(8, 16)
	g.Value(b).DType = tensor.F32
	out := g.AddValue("c", graph.ValueProduced)

	n := g.AddNode("MatMul", "mm")
	_ = g.ConnectInput(n, a)
	_ = g.ConnectInput(n, b)
	_ = g.ConnectOutput(n, out)

	g.Inputs = []int{a, b}
	g.Outputs = []int{out}

	if err := Infer(g); err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if !g.Value(out).Shape.Equal(tensor.StaticShape(4, 16)) {
		t.Fatalf("expected [4,16], got %s", g.Value(out).Shape)
	}
}

func TestMatMulRuleRejectsInnerDimMismatch(t *testing.T) {
	g := graph.New()
	a := g.AddValue("a", graph.ValueInput)
	g.Value(a).Shape = tensor.StaticShape(4, 8)
	b := g.AddValue("b", graph.ValueInput)
	g.Value(b).Shape = tensor.StaticShape(7, 16)
	out := g.AddValue("c", graph.ValueProduced)

	n := g.AddNode("MatMul", "mm")
	_ = g.ConnectInput(n, a)
	_ = g.ConnectInput(n, b)
	_ = g.ConnectOutput(n, out)
	g.Inputs = []int{a, b}
	g.Outputs = []int{out}

	if err := Infer(g); err == nil {
		t.Fatal("expected inner-dim mismatch to be rejected")
	}
}

func TestReshapeRuleReadsInitializerShapeTensor(t *testing.T) {
	g := graph.New()
	data := g.AddValue("x", graph.ValueInput)
	g.Value(data).Shape = tensor.StaticShape(2, 6)
	g.Value(data).DType = tensor.F32

	shapeTensor, err := tensor.Create(tensor.StaticShape(3), tensor.I64, tensor.Host)
	if err != nil {
		t.Fatal(err)
	}
	copy(tensor.AsInt64(shapeTensor), []int64{2, -1, 2})

	shapeVal := g.AddValue("new_shape", graph.ValueInitializer)
	g.Value(shapeVal).Tensor = shapeTensor

	out := g.AddValue("y", graph.ValueProduced)
	n := g.AddNode("Reshape", "reshape1")
	_ = g.ConnectInput(n, data)
	_ = g.ConnectInput(n, shapeVal)
	_ = g.ConnectOutput(n, out)

	g.Inputs = []int{data}
	g.Outputs = []int{out}

	if err := Infer(g); err != nil {
		t.Fatalf("Infer: %v", err)
	}
	want := tensor.Shape{tensor.Static(2), tensor.Static(3), tensor.Static(2)}
	if !g.Value(out).Shape.Equal(want) {
		t.Fatalf("expected %s, got %s", want, g.Value(out).Shape)
	}
}

func TestSliceRuleMatchesSpecExample(t *testing.T) {
	// spec §4.A: out dim = ceil((end-start)/step) for positive step.
	g := graph.New()
	in := g.AddValue("x", graph.ValueInput)
	g.Value(in).Shape = tensor.StaticShape(10)
	g.Value(in).DType = tensor.F32
	out := g.AddValue("y", graph.ValueProduced)

	n := g.AddNode("Slice", "slice1")
	n2 := g.Node(n)
	n2.Attrs["starts"] = graph.Attribute{Kind: graph.AttrInts, Ints: []int64{2}}
	n2.Attrs["ends"] = graph.Attribute{Kind: graph.AttrInts, Ints: []int64{8}}
	n2.Attrs["axes"] = graph.Attribute{Kind: graph.AttrInts, Ints: []int64{0}}
	n2.Attrs["steps"] = graph.Attribute{Kind: graph.AttrInts, Ints: []int64{2}}
	_ = g.ConnectInput(n, in)
	_ = g.ConnectOutput(n, out)

	g.Inputs = []int{in}
	g.Outputs = []int{out}

	if err := Infer(g); err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if !g.Value(out).Shape.Equal(tensor.StaticShape(3)) {
		t.Fatalf("expected [3], got %s", g.Value(out).Shape)
	}
}

func TestUnregisteredOpIsWarningNotError(t *testing.T) {
	g := graph.New()
	in := g.AddValue("x", graph.ValueInput)
	g.Value(in).Shape = tensor.StaticShape(1)
	out := g.AddValue("y", graph.ValueProduced)

	n := g.AddNode("SomeUnknownCustomOp", "custom1")
	_ = g.ConnectInput(n, in)
	_ = g.ConnectOutput(n, out)
	g.Inputs = []int{in}
	g.Outputs = []int{out}

	if err := Infer(g); err != nil {
		t.Fatalf("expected unresolved rule to be a warning, got error: %v", err)
	}
}
