package cpu

import (
	"math"
	"testing"

	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/tensor"
)

func f32Tensor(t *testing.T, shape tensor.Shape, vals []float32) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.Create(shape, tensor.F32, tensor.Host)
	if err != nil {
		t.Fatal(err)
	}
	copy(tensor.AsFloat32(tt), vals)
	return tt
}

func i64Tensor(t *testing.T, shape tensor.Shape, vals []int64) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.Create(shape, tensor.I64, tensor.Host)
	if err != nil {
		t.Fatal(err)
	}
	copy(tensor.AsInt64(tt), vals)
	return tt
}

func TestAddElementwise(t *testing.T) {
	a := f32Tensor(t, tensor.StaticShape(3), []float32{1, 2, 3})
	b := f32Tensor(t, tensor.StaticShape(3), []float32{10, 20, 30})
	out := f32Tensor(t, tensor.StaticShape(3), []float32{0, 0, 0})

	op := newAdd()
	if err := op.Execute([]*tensor.Tensor{a, b}, []*tensor.Tensor{out}, &kernel.Context{}); err != nil {
		t.Fatal(err)
	}
	want := []float32{11, 22, 33}
	got := tensor.AsFloat32(out)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Add[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDivByNearZeroYieldsZero(t *testing.T) {
	a := f32Tensor(t, tensor.StaticShape(2), []float32{5, 5})
	b := f32Tensor(t, tensor.StaticShape(2), []float32{1e-9, 2})
	out := f32Tensor(t, tensor.StaticShape(2), []float32{0, 0})

	op := newDiv()
	if err := op.Execute([]*tensor.Tensor{a, b}, []*tensor.Tensor{out}, &kernel.Context{}); err != nil {
		t.Fatal(err)
	}
	got := tensor.AsFloat32(out)
	if got[0] != 0 {
		t.Fatalf("Div by magnitude < 1e-8 should yield 0, got %v", got[0])
	}
	if got[1] != 2.5 {
		t.Fatalf("Div[1] = %v, want 2.5", got[1])
	}
}

func TestReluZeroesNegatives(t *testing.T) {
	in := f32Tensor(t, tensor.StaticShape(4), []float32{-1, 0, 1, -5})
	out := f32Tensor(t, tensor.StaticShape(4), []float32{0, 0, 0, 0})

	op := newRelu()
	if err := op.Execute([]*tensor.Tensor{in}, []*tensor.Tensor{out}, &kernel.Context{}); err != nil {
		t.Fatal(err)
	}
	want := []float32{0, 0, 1, 0}
	got := tensor.AsFloat32(out)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Relu[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSoftmaxOneHotBoundary(t *testing.T) {
	// One large logit among very negative ones should saturate to ~1.
	in := f32Tensor(t, tensor.StaticShape(1, 3), []float32{100, -100, -100})
	out := f32Tensor(t, tensor.StaticShape(1, 3), []float32{0, 0, 0})

	op := newSoftmax()
	op.SetAttrs(graph.Attrs{"axis": {Kind: graph.AttrI64, I64: -1}})
	if err := op.Execute([]*tensor.Tensor{in}, []*tensor.Tensor{out}, &kernel.Context{}); err != nil {
		t.Fatal(err)
	}
	got := tensor.AsFloat32(out)
	if math.Abs(float64(got[0]-1)) > 1e-6 {
		t.Fatalf("expected softmax to saturate to ~1 at the dominant logit, got %v", got[0])
	}
	sum := got[0] + got[1] + got[2]
	if math.Abs(float64(sum-1)) > 1e-5 {
		t.Fatalf("softmax output should sum to 1, got %v", sum)
	}
}

func TestMatMulShape(t *testing.T) {
	a := f32Tensor(t, tensor.StaticShape(2, 3), []float32{1, 2, 3, 4, 5, 6})
	b := f32Tensor(t, tensor.StaticShape(3, 2), []float32{7, 8, 9, 10, 11, 12})
	out := f32Tensor(t, tensor.StaticShape(2, 2), []float32{0, 0, 0, 0})

	op := newMatMul()
	if err := op.Execute([]*tensor.Tensor{a, b}, []*tensor.Tensor{out}, &kernel.Context{}); err != nil {
		t.Fatal(err)
	}
	want := []float32{58, 64, 139, 154}
	got := tensor.AsFloat32(out)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MatMul[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReshapeCopiesBytes(t *testing.T) {
	in := f32Tensor(t, tensor.StaticShape(2, 3), []float32{1, 2, 3, 4, 5, 6})
	out := f32Tensor(t, tensor.StaticShape(3, 2), []float32{0, 0, 0, 0, 0, 0})

	op := newReshape()
	if err := op.Execute([]*tensor.Tensor{in}, []*tensor.Tensor{out}, &kernel.Context{}); err != nil {
		t.Fatal(err)
	}
	got := tensor.AsFloat32(out)
	want := []float32{1, 2, 3, 4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Reshape[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGatherOutOfRangeIsInvalidArgument(t *testing.T) {
	data := f32Tensor(t, tensor.StaticShape(3, 2), []float32{1, 2, 3, 4, 5, 6})
	idx := i64Tensor(t, tensor.StaticShape(1), []int64{5})
	out := f32Tensor(t, tensor.StaticShape(1, 2), []float32{0, 0})

	op := newGather()
	err := op.Execute([]*tensor.Tensor{data, idx}, []*tensor.Tensor{out}, &kernel.Context{})
	if err == nil {
		t.Fatal("expected out-of-range gather index to fail")
	}
}

func TestSliceNegativeIndices(t *testing.T) {
	// spec §4.A literal example: negative indices resolve modulo dim.
	in := f32Tensor(t, tensor.StaticShape(5), []float32{0, 1, 2, 3, 4})
	out := f32Tensor(t, tensor.StaticShape(2), []float32{0, 0})

	op := newSlice()
	op.SetAttrs(graph.Attrs{
		"starts": {Kind: graph.AttrInts, Ints: []int64{-2}},
		"ends":   {Kind: graph.AttrInts, Ints: []int64{5}},
		"axes":   {Kind: graph.AttrInts, Ints: []int64{0}},
		"steps":  {Kind: graph.AttrInts, Ints: []int64{1}},
	})
	if err := op.Execute([]*tensor.Tensor{in}, []*tensor.Tensor{out}, &kernel.Context{}); err != nil {
		t.Fatal(err)
	}
	want := []float32{3, 4}
	got := tensor.AsFloat32(out)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Slice[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConv1x1OutputBoundary(t *testing.T) {
	// A 1x1 kernel over a 1x1 spatial input collapses to a per-channel
	// dot product; output spatial dims stay 1x1.
	x := f32Tensor(t, tensor.StaticShape(1, 2, 1, 1), []float32{2, 3})
	w := f32Tensor(t, tensor.StaticShape(1, 2, 1, 1), []float32{1, 1})
	out := f32Tensor(t, tensor.StaticShape(1, 1, 1, 1), []float32{0})

	op := newConv()
	if err := op.Execute([]*tensor.Tensor{x, w}, []*tensor.Tensor{out}, &kernel.Context{}); err != nil {
		t.Fatal(err)
	}
	got := tensor.AsFloat32(out)
	if got[0] != 5 {
		t.Fatalf("Conv 1x1 output = %v, want 5", got[0])
	}
}

func TestRMSNormMatchesFormula(t *testing.T) {
	x := f32Tensor(t, tensor.StaticShape(1, 2), []float32{3, 4})
	gamma := f32Tensor(t, tensor.StaticShape(2), []float32{1, 1})
	out := f32Tensor(t, tensor.StaticShape(1, 2), []float32{0, 0})

	op := newRMSNorm()
	op.SetAttrs(graph.Attrs{"epsilon": {Kind: graph.AttrF32, F32: 0}})
	if err := op.Execute([]*tensor.Tensor{x, gamma}, []*tensor.Tensor{out}, &kernel.Context{}); err != nil {
		t.Fatal(err)
	}
	// mean(x^2) = (9+16)/2 = 12.5, rsqrt(12.5) ~= 0.2828
	rsqrt := 1 / math.Sqrt(12.5)
	want := []float32{float32(3 * rsqrt), float32(4 * rsqrt)}
	got := tensor.AsFloat32(out)
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-4 {
			t.Fatalf("RMSNorm[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
