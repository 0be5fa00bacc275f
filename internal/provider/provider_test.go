package provider

import (
	"testing"

	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

func addGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	a := g.AddValue("a", graph.ValueInput)
	b := g.AddValue("b", graph.ValueInput)
	out := g.AddValue("out", graph.ValueProduced)
	n := g.AddNode("Add", "add0")
	if err := g.ConnectInput(n, a); err != nil {
		t.Fatal(err)
	}
	if err := g.ConnectInput(n, b); err != nil {
		t.Fatal(err)
	}
	if err := g.ConnectOutput(n, out); err != nil {
		t.Fatal(err)
	}
	g.Inputs = []int{a, b}
	g.Outputs = []int{out}
	return g
}

func TestSelectorFallsBackToCPU(t *testing.T) {
	g := addGraph(t)
	sel := NewSelector([]Provider{NewWebGPU()})

	assignment, err := sel.Assign(g)
	if err != nil {
		t.Fatal(err)
	}
	for _, nid := range g.Nodes() {
		p, ok := assignment[nid]
		if !ok {
			t.Fatalf("node %d not assigned", nid)
		}
		if p.Name() != "CPU" {
			t.Fatalf("node %d assigned to %q, want CPU (WebGPU has no device kernel)", nid, p.Name())
		}
	}
}

func TestSelectorNotFoundForUnsupportedOp(t *testing.T) {
	g := graph.New()
	in := g.AddValue("x", graph.ValueInput)
	out := g.AddValue("y", graph.ValueProduced)
	n := g.AddNode("NoSuchOp", "n0")
	if err := g.ConnectInput(n, in); err != nil {
		t.Fatal(err)
	}
	if err := g.ConnectOutput(n, out); err != nil {
		t.Fatal(err)
	}
	g.Inputs = []int{in}
	g.Outputs = []int{out}

	sel := NewSelector([]Provider{NewCPU()})
	if _, err := sel.Assign(g); err == nil {
		t.Fatal("expected NotFound error for unsupported op")
	}
}

func TestCPUProviderExecutesAdd(t *testing.T) {
	cpu := NewCPU()
	if !cpu.IsAvailable() {
		t.Fatal("CPU provider must always report available")
	}
	if !cpu.SupportsOp("Add") {
		t.Fatal("CPU provider must support Add")
	}

	a, _ := tensor.Create(tensor.StaticShape(3), tensor.F32, tensor.Host)
	b, _ := tensor.Create(tensor.StaticShape(3), tensor.F32, tensor.Host)
	copy(tensor.AsFloat32(a), []float32{1, 2, 3})
	copy(tensor.AsFloat32(b), []float32{10, 20, 30})
	out, _ := tensor.Create(tensor.StaticShape(3), tensor.F32, tensor.Host)

	g := addGraph(t)
	n := g.Node(g.Nodes()[0])
	if err := cpu.ExecuteNode(n, []*tensor.Tensor{a, b}, []*tensor.Tensor{out}, nil); err != nil {
		t.Fatal(err)
	}
	got := tensor.AsFloat32(out)
	want := []float32{11, 22, 33}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWebGPUProviderUnsupported(t *testing.T) {
	w := NewWebGPU()
	if w.SupportsOp("Add") {
		t.Fatal("WebGPU provider should not claim any op (no device kernels per spec scope)")
	}
	if _, err := w.CreateKernel("Add"); err == nil {
		t.Fatal("expected NotImplemented error")
	}
}
