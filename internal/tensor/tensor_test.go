package tensor

import (
	"bytes"
	"testing"
)

func assertNoErr(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

func TestCreateAndFill(t *testing.T) {
	x, err := Create(StaticShape(2, 3), F32, Host)
	assertNoErr(t, err, "create")
	defer x.Release()

	if x.NumElements() != 6 {
		t.Fatalf("expected 6 elements, got %d", x.NumElements())
	}

	assertNoErr(t, x.FillValue(float32(2.5)), "fillvalue")
	data := AsFloat32(x)
	for i, v := range data {
		if v != 2.5 {
			t.Errorf("index %d: expected 2.5, got %v", i, v)
		}
	}
}

func TestReshapeIsView(t *testing.T) {
	x, err := Create(StaticShape(2, 3, 4), F32, Host)
	assertNoErr(t, err, "create")
	defer x.Release()

	data := AsFloat32(x)
	for i := range data {
		data[i] = float32(i)
	}

	y, err := x.Reshape(StaticShape(6, 4))
	assertNoErr(t, err, "reshape")
	defer y.Release()

	yd := AsFloat32(y)
	for i := range yd {
		if yd[i] != float32(i) {
			t.Fatalf("reshape view mismatch at flat index %d: got %v", i, yd[i])
		}
	}

	// Mutating through the view must be visible on the source (shared buffer).
	yd[0] = 99
	if AsFloat32(x)[0] != 99 {
		t.Fatalf("reshape view does not share storage with source")
	}
}

func TestReshapeElementCountMismatch(t *testing.T) {
	x, err := Create(StaticShape(2, 3), F32, Host)
	assertNoErr(t, err, "create")
	defer x.Release()

	if _, err := x.Reshape(StaticShape(4, 4)); err == nil {
		t.Fatal("expected ShapeMismatch-kind error for incompatible reshape")
	}
}

func TestSliceNegativeIndices(t *testing.T) {
	x, err := Create(StaticShape(4), F32, Host)
	assertNoErr(t, err, "create")
	defer x.Release()
	data := AsFloat32(x)
	for i := range data {
		data[i] = float32(i)
	}

	// starts=[-2] on dim 4 ≡ starts=[2].
	y, err := x.Slice([]int64{-2}, []int64{4}, []int64{1})
	assertNoErr(t, err, "slice")
	defer y.Release()

	yd := AsFloat32(y)
	if len(yd) != 2 || yd[0] != 2 || yd[1] != 3 {
		t.Fatalf("expected [2,3], got %v", yd)
	}
}

func TestSliceStepMaterializes(t *testing.T) {
	x, err := Create(StaticShape(6), F32, Host)
	assertNoErr(t, err, "create")
	defer x.Release()
	data := AsFloat32(x)
	for i := range data {
		data[i] = float32(i)
	}

	y, err := x.Slice([]int64{0}, []int64{6}, []int64{2})
	assertNoErr(t, err, "slice")
	defer y.Release()

	yd := AsFloat32(y)
	want := []float32{0, 2, 4}
	for i := range want {
		if yd[i] != want[i] {
			t.Fatalf("step slice mismatch: got %v want %v", yd, want)
		}
	}
}

func TestSliceZeroStepIsInvalidArgument(t *testing.T) {
	x, err := Create(StaticShape(4), F32, Host)
	assertNoErr(t, err, "create")
	defer x.Release()

	if _, err := x.Slice([]int64{0}, []int64{4}, []int64{0}); err == nil {
		t.Fatal("expected error for step=0")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	x, err := Create(StaticShape(2, 2), F32, Host)
	assertNoErr(t, err, "create")
	defer x.Release()
	data := AsFloat32(x)
	data[0], data[1], data[2], data[3] = 1, 2, 3, 4

	var buf bytes.Buffer
	assertNoErr(t, x.Serialize(&buf), "serialize")

	y, err := Deserialize(&buf, Host)
	assertNoErr(t, err, "deserialize")
	defer y.Release()

	if !y.Shape().Equal(x.Shape()) || y.DType() != x.DType() {
		t.Fatalf("round trip metadata mismatch")
	}
	if !bytes.Equal(y.Data(), x.Data()) {
		t.Fatalf("round trip payload mismatch")
	}
}

func TestCreateViewNeverFrees(t *testing.T) {
	raw := make([]byte, 16)
	v, err := CreateView(StaticShape(4), F32, raw, LayoutNone, Host)
	assertNoErr(t, err, "createview")
	v.Release() // must not panic or touch raw
	if v.Ownership() != View {
		t.Fatalf("expected View ownership")
	}
}
