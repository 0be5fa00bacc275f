package cpu

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/tensor"
)

// reshape implements Reshape (spec §4.A). Row-major reinterpretation
// does not move any element, so Execute is a straight byte copy into
// the pre-allocated output buffer; the (possibly -1-resolved) shape
// check is left to shape inference/the planner.
type reshape struct{ base }

func (k *reshape) Name() string { return "Reshape" }

func (k *reshape) Validate(inputs []*tensor.Tensor) error {
	return requireMinArity(inputs, 1, "Reshape")
}

func (k *reshape) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	return nil, verr.New(verr.NotImplemented, "Reshape: output shape is resolved by shapeinfer, not by the kernel")
}

func (k *reshape) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "Reshape"); err != nil {
		return err
	}
	if inputs[0].NumElements() != outputs[0].NumElements() {
		return verr.New(verr.InvalidArgument, "Reshape: element count mismatch %d vs %d", inputs[0].NumElements(), outputs[0].NumElements())
	}
	copy(outputs[0].Data(), inputs[0].Data())
	return nil
}

func newReshape() kernel.Operator { return &reshape{} }

func resolvePerm(rank int, attrs graph.Attrs) []int {
	perm := attrs.Ints("perm")
	if len(perm) != rank {
		p := make([]int, rank)
		for i := range p {
			p[i] = rank - 1 - i
		}
		return p
	}
	out := make([]int, rank)
	for i, v := range perm {
		out[i] = int(v)
	}
	return out
}

func transposedShape(in tensor.Shape, perm []int) tensor.Shape {
	out := make(tensor.Shape, len(perm))
	for i, p := range perm {
		out[i] = in[p]
	}
	return out
}

// transpose implements Transpose with an arbitrary perm (default
// reverse). Copies element-by-element at the element-size granularity
// of the dtype so it works uniformly across f32/i64/etc.
type transpose struct{ base }

func (k *transpose) Name() string { return "Transpose" }

func (k *transpose) Validate(inputs []*tensor.Tensor) error {
	return requireArity(inputs, 1, "Transpose")
}

func (k *transpose) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	perm := resolvePerm(inputs[0].Shape().Rank(), k.attrs)
	return []tensor.Shape{transposedShape(inputs[0].Shape(), perm)}, nil
}

func (k *transpose) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "Transpose"); err != nil {
		return err
	}
	in := inputs[0].Shape()
	perm := resolvePerm(in.Rank(), k.attrs)
	want := transposedShape(in, perm)
	if err := checkOutputShape(outputs[0], want, "Transpose"); err != nil {
		return err
	}

	elemSize := inputs[0].DType().Size()
	src := inputs[0].Data()
	dst := outputs[0].Data()
	inStrides := in.Strides()
	outStrides := want.Strides()

	total := int(inputs[0].NumElements())
	inCoord := make([]int64, in.Rank())
	for flat := 0; flat < total; flat++ {
		rem := flat
		for i := in.Rank() - 1; i >= 0; i-- {
			sz := int(in[i].Size)
			if sz == 0 {
				sz = 1
			}
			inCoord[i] = int64(rem % sz)
			rem /= sz
		}

		var outIdx int64
		for outAxis, srcAxis := range perm {
			outIdx += inCoord[srcAxis] * outStrides[outAxis]
		}
		var inIdx int64
		for i, c := range inCoord {
			inIdx += c * inStrides[i]
		}

		srcOff := int(inIdx) * elemSize
		dstOff := int(outIdx) * elemSize
		copy(dst[dstOff:dstOff+elemSize], src[srcOff:srcOff+elemSize])
	}
	return nil
}

func newTranspose() kernel.Operator { return &transpose{} }

// concat implements Concat along attribute "axis" (spec §4.H).
type concat struct{ base }

func (k *concat) Name() string { return "Concat" }

func (k *concat) axis(rank int) int {
	a := int(k.attrs.I64("axis", 0))
	if a < 0 {
		a += rank
	}
	return a
}

func (k *concat) Validate(inputs []*tensor.Tensor) error {
	if err := requireMinArity(inputs, 1, "Concat"); err != nil {
		return err
	}
	axis := k.axis(inputs[0].Shape().Rank())
	first := inputs[0].Shape()
	for _, in := range inputs[1:] {
		s := in.Shape()
		if s.Rank() != first.Rank() {
			return verr.New(verr.InvalidArgument, "Concat: rank mismatch %d vs %d", s.Rank(), first.Rank())
		}
		for i := 0; i < s.Rank(); i++ {
			if i != axis && s[i].Size != first[i].Size {
				return verr.New(verr.InvalidArgument, "Concat: non-axis dim %d mismatch %s vs %s", i, s, first)
			}
		}
	}
	return nil
}

func (k *concat) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	out := inputs[0].Shape().Clone()
	axis := k.axis(out.Rank())
	var total int64
	for _, in := range inputs {
		total += in.Shape()[axis].Size
	}
	out[axis] = tensor.Static(total)
	return []tensor.Shape{out}, nil
}

func (k *concat) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "Concat"); err != nil {
		return err
	}
	axis := k.axis(inputs[0].Shape().Rank())
	elemSize := inputs[0].DType().Size()

	outer := int64(1)
	for i := 0; i < axis; i++ {
		outer *= inputs[0].Shape()[i].Size
	}
	inner := int64(1)
	for i := axis + 1; i < inputs[0].Shape().Rank(); i++ {
		inner *= inputs[0].Shape()[i].Size
	}

	dst := outputs[0].Data()
	var totalAxis int64
	for _, in := range inputs {
		totalAxis += in.Shape()[axis].Size
	}
	dstRowStride := totalAxis * inner * int64(elemSize)

	axisOffset := int64(0)
	for _, in := range inputs {
		axisDim := in.Shape()[axis].Size
		src := in.Data()
		rowBytes := axisDim * inner * int64(elemSize)
		for o := int64(0); o < outer; o++ {
			srcOff := o * rowBytes
			dstOff := o*dstRowStride + axisOffset*inner*int64(elemSize)
			copy(dst[dstOff:dstOff+rowBytes], src[srcOff:srcOff+rowBytes])
		}
		axisOffset += axisDim
	}
	return nil
}

func newConcat() kernel.Operator { return &concat{} }

// split implements Split: the inverse of Concat, along attribute
// "axis" with per-output sizes from attribute "split" or an equal
// split across the kernel's configured output count.
type split struct {
	base
	numOutputs int
}

func (k *split) Name() string { return "Split" }

func (k *split) axis(rank int) int {
	a := int(k.attrs.I64("axis", 0))
	if a < 0 {
		a += rank
	}
	return a
}

func (k *split) sizes(total int64) []int64 {
	if sizes := k.attrs.Ints("split"); len(sizes) == k.numOutputs {
		return sizes
	}
	out := make([]int64, k.numOutputs)
	each := total / int64(k.numOutputs)
	for i := range out {
		out[i] = each
	}
	return out
}

// SetOutputCount tells the kernel how many outputs to produce. Split's
// arity is not recoverable from op-type + attrs alone (an equal split
// depends on how many output Values the node declares), so the
// provider calls this after kernel.Create using the node's output
// count (see kernel.MultiOutputOperator).
func (k *split) SetOutputCount(n int) { k.numOutputs = n }

func (k *split) Validate(inputs []*tensor.Tensor) error {
	return requireArity(inputs, 1, "Split")
}

func (k *split) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	in := inputs[0].Shape()
	axis := k.axis(in.Rank())
	sizes := k.sizes(in[axis].Size)
	out := make([]tensor.Shape, len(sizes))
	for i, size := range sizes {
		out[i] = in.Clone()
		out[i][axis] = tensor.Static(size)
	}
	return out, nil
}

func (k *split) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if len(outputs) != k.numOutputs {
		return verr.New(verr.InvalidArgument, "Split: expected %d outputs, got %d", k.numOutputs, len(outputs))
	}
	in := inputs[0].Shape()
	axis := k.axis(in.Rank())
	elemSize := inputs[0].DType().Size()

	outer := int64(1)
	for i := 0; i < axis; i++ {
		outer *= in[i].Size
	}
	inner := int64(1)
	for i := axis + 1; i < in.Rank(); i++ {
		inner *= in[i].Size
	}

	sizes := k.sizes(in[axis].Size)
	src := inputs[0].Data()
	srcRowStride := in[axis].Size * inner * int64(elemSize)

	axisOffset := int64(0)
	for i, size := range sizes {
		rowBytes := size * inner * int64(elemSize)
		dst := outputs[i].Data()
		for o := int64(0); o < outer; o++ {
			srcOff := o*srcRowStride + axisOffset*inner*int64(elemSize)
			dstOff := o * rowBytes
			copy(dst[dstOff:dstOff+rowBytes], src[srcOff:srcOff+rowBytes])
		}
		axisOffset += size
	}
	return nil
}

func newSplit() kernel.Operator { return &split{numOutputs: 1} }

// gather implements Gather: i64 indices select along attribute "axis",
// bounds-checked (spec §4.H).
type gather struct{ base }

func (k *gather) Name() string { return "Gather" }

func (k *gather) axis(rank int) int {
	a := int(k.attrs.I64("axis", 0))
	if a < 0 {
		a += rank
	}
	return a
}

func (k *gather) Validate(inputs []*tensor.Tensor) error {
	if err := requireArity(inputs, 2, "Gather"); err != nil {
		return err
	}
	if inputs[1].DType() != tensor.I64 {
		return verr.New(verr.InvalidArgument, "Gather: indices must be i64, got %s", inputs[1].DType())
	}
	return nil
}

func (k *gather) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	data := inputs[0].Shape()
	axis := k.axis(data.Rank())
	out := append(data[:axis].Clone(), inputs[1].Shape()...)
	return []tensor.Shape{append(out, data[axis+1:]...)}, nil
}

func (k *gather) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "Gather"); err != nil {
		return err
	}
	data, idxT := inputs[0], inputs[1]
	dataShape := data.Shape()
	axis := k.axis(dataShape.Rank())
	if axis < 0 || axis >= dataShape.Rank() {
		return verr.New(verr.InvalidArgument, "Gather: axis %d out of range for rank %d", axis, dataShape.Rank())
	}
	axisSize := dataShape[axis].Size
	elemSize := data.DType().Size()

	outer := int64(1)
	for i := 0; i < axis; i++ {
		outer *= dataShape[i].Size
	}
	inner := int64(1)
	for i := axis + 1; i < dataShape.Rank(); i++ {
		inner *= dataShape[i].Size
	}

	indices := tensor.AsInt64(idxT)
	src := data.Data()
	dst := outputs[0].Data()
	rowBytes := inner * int64(elemSize)
	srcRowStride := axisSize * rowBytes
	dstRowStride := int64(len(indices)) * rowBytes

	for _, idx := range indices {
		if idx < 0 || idx >= axisSize {
			return verr.New(verr.InvalidArgument, "Gather: index %d out of range [0,%d)", idx, axisSize)
		}
	}

	for o := int64(0); o < outer; o++ {
		for ii, idx := range indices {
			srcOff := o*srcRowStride + idx*rowBytes
			dstOff := o*dstRowStride + int64(ii)*rowBytes
			copy(dst[dstOff:dstOff+rowBytes], src[srcOff:srcOff+rowBytes])
		}
	}
	return nil
}

func newGather() kernel.Operator { return &gather{} }

// slice implements Slice (spec §4.A): starts/ends/axes/steps resolved
// from attrs or trailing initializer inputs (the shapeinfer rule
// resolves the same bounds to compute the output shape). Execute
// walks every output element's multi-index and maps it back to the
// corresponding input offset.
type slice struct{ base }

func (k *slice) Name() string { return "Slice" }

func (k *slice) Validate(inputs []*tensor.Tensor) error {
	return requireMinArity(inputs, 1, "Slice")
}

func (k *slice) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	return nil, verr.New(verr.NotImplemented, "Slice: output shape is resolved by shapeinfer, not by the kernel")
}

func (k *slice) resolvedBounds(in tensor.Shape, inputs []*tensor.Tensor) (starts, ends, steps []int64, axes []int64) {
	starts = resolveIntsCPU(k.attrs.Ints("starts"), inputs, 1)
	ends = resolveIntsCPU(k.attrs.Ints("ends"), inputs, 2)
	axes = resolveIntsCPU(k.attrs.Ints("axes"), inputs, 3)
	steps = resolveIntsCPU(k.attrs.Ints("steps"), inputs, 4)
	if axes == nil {
		axes = make([]int64, len(starts))
		for i := range axes {
			axes[i] = int64(i)
		}
	}
	if steps == nil {
		steps = make([]int64, len(starts))
		for i := range steps {
			steps[i] = 1
		}
	}
	return
}

func resolveIntsCPU(attrVals []int64, inputs []*tensor.Tensor, idx int) []int64 {
	if len(attrVals) > 0 {
		return attrVals
	}
	if idx >= len(inputs) || inputs[idx] == nil || inputs[idx].DType() != tensor.I64 {
		return nil
	}
	return tensor.AsInt64(inputs[idx])
}

func (k *slice) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "Slice"); err != nil {
		return err
	}
	in := inputs[0].Shape()
	starts, ends, steps, axes := k.resolvedBounds(in, inputs)
	if starts == nil || ends == nil {
		return verr.New(verr.InvalidArgument, "Slice: starts/ends not resolvable at execution time")
	}

	resolvedStart := make([]int64, in.Rank())
	resolvedStep := make([]int64, in.Rank())
	for i := range resolvedStep {
		resolvedStep[i] = 1
	}
	for i, axis := range axes {
		if steps[i] == 0 {
			return verr.New(verr.InvalidArgument, "Slice: step is 0 at axis %d", axis)
		}
		size := in[axis].Size
		resolvedStart[axis] = clampIdx(starts[i], size)
		resolvedStep[axis] = steps[i]
	}

	elemSize := inputs[0].DType().Size()
	src := inputs[0].Data()
	dst := outputs[0].Data()
	inStrides := in.Strides()
	outShape := outputs[0].Shape()
	outStrides := outShape.Strides()

	total := int(outputs[0].NumElements())
	coord := make([]int64, outShape.Rank())
	for flat := 0; flat < total; flat++ {
		rem := flat
		for i := outShape.Rank() - 1; i >= 0; i-- {
			sz := int(outShape[i].Size)
			if sz == 0 {
				sz = 1
			}
			coord[i] = int64(rem % sz)
			rem /= sz
		}

		var srcIdx int64
		for i := range coord {
			srcIdx += (resolvedStart[i] + coord[i]*resolvedStep[i]) * inStrides[i]
		}
		var dstIdx int64
		for i := range coord {
			dstIdx += coord[i] * outStrides[i]
		}

		srcOff := int(srcIdx) * elemSize
		dstOff := int(dstIdx) * elemSize
		copy(dst[dstOff:dstOff+elemSize], src[srcOff:srcOff+elemSize])
	}
	return nil
}

func clampIdx(idx, size int64) int64 {
	if idx < 0 {
		idx += size
	}
	if idx < 0 {
		idx = 0
	}
	if idx > size {
		idx = size
	}
	return idx
}

func newSlice() kernel.Operator { return &slice{} }
