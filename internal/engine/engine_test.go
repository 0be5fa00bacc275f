package engine

import (
	"testing"

	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/planner"
	"github.com/veloxrt/velox/internal/provider"
	"github.com/veloxrt/velox/internal/tensor"
)

// reluChain builds x -> Relu -> Relu -> Relu -> Relu -> y, all shape
// [1024*1024], the memory-reuse scenario of spec §8 scenario 6.
func reluChain(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	shape := tensor.StaticShape(1024 * 1024)

	in := g.AddValue("x", graph.ValueInput)
	g.Value(in).Shape = shape
	g.Value(in).DType = tensor.F32
	g.Inputs = []int{in}

	prev := in
	for i := 0; i < 4; i++ {
		out := g.AddValue("v", graph.ValueProduced)
		g.Value(out).Shape = shape
		g.Value(out).DType = tensor.F32
		n := g.AddNode("Relu", "relu")
		if err := g.ConnectInput(n, prev); err != nil {
			t.Fatal(err)
		}
		if err := g.ConnectOutput(n, out); err != nil {
			t.Fatal(err)
		}
		prev = out
	}
	g.Outputs = []int{prev}
	return g
}

func buildEngine(t *testing.T, g *graph.Graph, sched Scheduler) *Engine {
	t.Helper()
	sel := provider.NewSelector([]provider.Provider{provider.NewCPU()})
	assignment, err := sel.Assign(g)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := planner.Build(g, nil)
	if err != nil {
		t.Fatal(err)
	}
	return New(g, sched, assignment, plan)
}

func TestEngineReluChainReusesBuffers(t *testing.T) {
	g := reluChain(t)
	eng := buildEngine(t, g, Topological{})

	if eng.Plan.NumBuffers > 2 {
		t.Fatalf("memory plan used %d buffers, want at most 2", eng.Plan.NumBuffers)
	}

	x, _ := tensor.Create(tensor.StaticShape(1024*1024), tensor.F32, tensor.Host)
	tensor.AsFloat32(x)[0] = -5

	out, err := eng.Run([]*tensor.Tensor{x})
	if err != nil {
		t.Fatal(err)
	}
	got := tensor.AsFloat32(out[0])
	if got[0] != 0 {
		t.Errorf("relu(-5) = %v, want 0", got[0])
	}
}

func TestParallelMatchesTopologicalForIndependentAdds(t *testing.T) {
	// 64 independent Add nodes feeding one Concat (spec §8 scenario 7).
	build := func() *graph.Graph {
		g := graph.New()
		var outs []int
		for i := 0; i < 64; i++ {
			a := g.AddValue("a", graph.ValueInitializer)
			av, _ := tensor.Create(tensor.StaticShape(2), tensor.F32, tensor.Host)
			copy(tensor.AsFloat32(av), []float32{float32(i), float32(i)})
			g.Value(a).Tensor = av
			g.Value(a).Shape = av.Shape()
			g.Value(a).DType = tensor.F32

			b := g.AddValue("b", graph.ValueInitializer)
			bv, _ := tensor.Create(tensor.StaticShape(2), tensor.F32, tensor.Host)
			copy(tensor.AsFloat32(bv), []float32{1, 1})
			g.Value(b).Tensor = bv
			g.Value(b).Shape = bv.Shape()
			g.Value(b).DType = tensor.F32

			out := g.AddValue("sum", graph.ValueProduced)
			g.Value(out).Shape = tensor.StaticShape(2)
			g.Value(out).DType = tensor.F32
			n := g.AddNode("Add", "add")
			if err := g.ConnectInput(n, a); err != nil {
				t.Fatal(err)
			}
			if err := g.ConnectInput(n, b); err != nil {
				t.Fatal(err)
			}
			if err := g.ConnectOutput(n, out); err != nil {
				t.Fatal(err)
			}
			outs = append(outs, out)
		}

		concatOut := g.AddValue("cat", graph.ValueProduced)
		g.Value(concatOut).Shape = tensor.StaticShape(128)
		g.Value(concatOut).DType = tensor.F32
		cn := g.AddNode("Concat", "cat")
		for _, o := range outs {
			if err := g.ConnectInput(cn, o); err != nil {
				t.Fatal(err)
			}
		}
		if err := g.ConnectOutput(cn, concatOut); err != nil {
			t.Fatal(err)
		}

		dummyIn := g.AddValue("unused_in", graph.ValueInput)
		g.Value(dummyIn).Shape = tensor.StaticShape(1)
		g.Value(dummyIn).DType = tensor.F32
		g.Inputs = []int{dummyIn}
		g.Outputs = []int{concatOut}
		return g
	}

	topoGraph := build()
	topoEng := buildEngine(t, topoGraph, Topological{})
	dummy, _ := tensor.Create(tensor.StaticShape(1), tensor.F32, tensor.Host)
	topoOut, err := topoEng.Run([]*tensor.Tensor{dummy})
	if err != nil {
		t.Fatal(err)
	}

	parGraph := build()
	parEng := buildEngine(t, parGraph, Parallel{Workers: 8})
	parOut, err := parEng.Run([]*tensor.Tensor{dummy})
	if err != nil {
		t.Fatal(err)
	}

	a := tensor.AsFloat32(topoOut[0])
	b := tensor.AsFloat32(parOut[0])
	if len(a) != len(b) {
		t.Fatalf("length mismatch %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("index %d: topological=%v parallel=%v", i, a[i], b[i])
		}
	}
}
