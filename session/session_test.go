package session

import (
	"testing"

	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

// addGraph builds x, y -> Add -> z, all shape [2].
func addGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	shape := tensor.StaticShape(2)

	x := g.AddValue("x", graph.ValueInput)
	g.Value(x).Shape = shape
	g.Value(x).DType = tensor.F32
	y := g.AddValue("y", graph.ValueInput)
	g.Value(y).Shape = shape
	g.Value(y).DType = tensor.F32
	g.Inputs = []int{x, y}

	z := g.AddValue("z", graph.ValueProduced)
	g.Value(z).Shape = shape
	g.Value(z).DType = tensor.F32

	n := g.AddNode("Add", "add")
	if err := g.ConnectInput(n, x); err != nil {
		t.Fatal(err)
	}
	if err := g.ConnectInput(n, y); err != nil {
		t.Fatal(err)
	}
	if err := g.ConnectOutput(n, z); err != nil {
		t.Fatal(err)
	}
	g.Outputs = []int{z}
	return g
}

func TestSessionLifecycleAndRun(t *testing.T) {
	s := Create(DefaultOptions())
	if s.State() != Created {
		t.Fatalf("new session state = %v, want Created", s.State())
	}

	if err := s.LoadModelFromGraph(addGraph(t)); err != nil {
		t.Fatal(err)
	}
	if s.State() != ModelLoaded {
		t.Fatalf("state after load = %v, want ModelLoaded", s.State())
	}
	if got := s.InputNames(); len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("input names = %v", got)
	}
	if got := s.OutputNames(); len(got) != 1 || got[0] != "z" {
		t.Fatalf("output names = %v", got)
	}

	if err := s.Prepare(); err != nil {
		t.Fatal(err)
	}
	if s.State() != Ready {
		t.Fatalf("state after prepare = %v, want Ready", s.State())
	}

	x, _ := s.CreateInputTensor(0)
	copy(tensor.AsFloat32(x), []float32{1, 2})
	y, _ := s.CreateInputTensor(1)
	copy(tensor.AsFloat32(y), []float32{10, 20})

	out, err := s.Run([]*tensor.Tensor{x, y})
	if err != nil {
		t.Fatal(err)
	}
	got := tensor.AsFloat32(out[0])
	if got[0] != 11 || got[1] != 22 {
		t.Errorf("add result = %v, want [11 22]", got)
	}

	named, err := s.RunNamed(map[string]*tensor.Tensor{"x": x, "y": y})
	if err != nil {
		t.Fatal(err)
	}
	got2 := tensor.AsFloat32(named[0])
	if got2[0] != 11 || got2[1] != 22 {
		t.Errorf("named add result = %v, want [11 22]", got2)
	}
}

func TestSessionRunBeforeReadyFails(t *testing.T) {
	s := Create(DefaultOptions())
	if _, err := s.Run(nil); err == nil {
		t.Fatal("run before load should fail")
	}
	if err := s.LoadModelFromGraph(addGraph(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(nil); err == nil {
		t.Fatal("run before prepare should fail")
	}
}

func TestSessionOptimizationLevelNoneReachesReady(t *testing.T) {
	opts := DefaultOptions()
	opts.OptimizationLevel = OptNone
	s := Create(opts)
	if err := s.LoadModelFromGraph(addGraph(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Prepare(); err != nil {
		t.Fatal(err)
	}
	if s.State() != Ready {
		t.Fatalf("state = %v, want Ready", s.State())
	}
}
