package cpu

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/parallel"
	"github.com/veloxrt/velox/internal/tensor"
)

// matmulF32 computes C[M,N] = A[M,K] . B[K,N], row-major. Adapted
// directly from the teacher's internal/backend/cpu/matmul.go naive
// O(n^3) loop, row-partitioned across goroutines with
// internal/parallel.For per spec §5's "kernels may themselves be
// internally multi-threaded (e.g., matmul over thread-partitioned
// rows)" — the spec allows serial, multi-threaded or SIMD paths; a
// BLAS route is a natural follow-up, not required here.
func matmulF32(c, a, b []float32, m, k, n int) {
	parallel.For(m, func(i int) {
		rowA := i * k
		rowC := i * n
		for j := 0; j < n; j++ {
			var sum float32
			for kk := 0; kk < k; kk++ {
				sum += a[rowA+kk] * b[kk*n+j]
			}
			c[rowC+j] = sum
		}
	}, parallel.DefaultConfig())
}

func matmulShape(a, b tensor.Shape, op string) (tensor.Shape, int, int, int, error) {
	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, 0, 0, 0, verr.New(verr.InvalidArgument, "%s: requires rank-2 inputs, got %d and %d", op, a.Rank(), b.Rank())
	}
	m, k, kAlt, n := a[0].Size, a[1].Size, b[0].Size, b[1].Size
	if k != kAlt {
		return nil, 0, 0, 0, verr.New(verr.InvalidArgument, "%s: inner dim mismatch %s vs %s", op, a, b)
	}
	return tensor.StaticShape(m, n), int(m), int(k), int(n), nil
}

// matMul implements MatMul (spec §4.H).
type matMul struct{ base }

func (k *matMul) Name() string { return "MatMul" }

func (k *matMul) Validate(inputs []*tensor.Tensor) error {
	if err := requireArity(inputs, 2, "MatMul"); err != nil {
		return err
	}
	if err := requireF32(inputs[0], "MatMul", "a"); err != nil {
		return err
	}
	if err := requireF32(inputs[1], "MatMul", "b"); err != nil {
		return err
	}
	_, _, _, _, err := matmulShape(inputs[0].Shape(), inputs[1].Shape(), "MatMul")
	return err
}

func (k *matMul) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	shape, _, _, _, err := matmulShape(inputs[0].Shape(), inputs[1].Shape(), "MatMul")
	if err != nil {
		return nil, err
	}
	return []tensor.Shape{shape}, nil
}

func (k *matMul) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "MatMul"); err != nil {
		return err
	}
	shape, m, kk, n, err := matmulShape(inputs[0].Shape(), inputs[1].Shape(), "MatMul")
	if err != nil {
		return err
	}
	if err := checkOutputShape(outputs[0], shape, "MatMul"); err != nil {
		return err
	}
	matmulF32(tensor.AsFloat32(outputs[0]), tensor.AsFloat32(inputs[0]), tensor.AsFloat32(inputs[1]), m, kk, n)
	return nil
}

func newMatMul() kernel.Operator { return &matMul{} }

// fusedMatMulAdd implements FusedMatMulAdd: C = A.B + bias, bias
// row-broadcast over the N dim (spec §4.H, equivalent to MatMul+Add
// within f32 rounding).
type fusedMatMulAdd struct{ base }

func (k *fusedMatMulAdd) Name() string { return "FusedMatMulAdd" }

func (k *fusedMatMulAdd) Validate(inputs []*tensor.Tensor) error {
	if err := requireArity(inputs, 3, "FusedMatMulAdd"); err != nil {
		return err
	}
	for i, role := range []string{"a", "b", "bias"} {
		if err := requireF32(inputs[i], "FusedMatMulAdd", role); err != nil {
			return err
		}
	}
	_, _, _, n, err := matmulShape(inputs[0].Shape(), inputs[1].Shape(), "FusedMatMulAdd")
	if err != nil {
		return err
	}
	if inputs[2].Shape().Rank() != 1 || int(inputs[2].Shape()[0].Size) != n {
		return verr.New(verr.InvalidArgument, "FusedMatMulAdd: bias must be shape [%d], got %s", n, inputs[2].Shape())
	}
	return nil
}

func (k *fusedMatMulAdd) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	shape, _, _, _, _ := matmulShape(inputs[0].Shape(), inputs[1].Shape(), "FusedMatMulAdd")
	return []tensor.Shape{shape}, nil
}

func (k *fusedMatMulAdd) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "FusedMatMulAdd"); err != nil {
		return err
	}
	shape, m, kk, n, err := matmulShape(inputs[0].Shape(), inputs[1].Shape(), "FusedMatMulAdd")
	if err != nil {
		return err
	}
	if err := checkOutputShape(outputs[0], shape, "FusedMatMulAdd"); err != nil {
		return err
	}
	out := tensor.AsFloat32(outputs[0])
	matmulF32(out, tensor.AsFloat32(inputs[0]), tensor.AsFloat32(inputs[1]), m, kk, n)
	bias := tensor.AsFloat32(inputs[2])
	for i := 0; i < m; i++ {
		rowBase := i * n
		for j := 0; j < n; j++ {
			out[rowBase+j] += bias[j]
		}
	}
	return nil
}

func newFusedMatMulAdd() kernel.Operator { return &fusedMatMulAdd{} }
