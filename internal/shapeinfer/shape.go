package shapeinfer

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
	"k8s.io/klog/v2"
)

// reshapeRule implements Reshape (spec §4.A/§4.H): the second input is
// an i64 shape tensor, read when it is a bound initializer; otherwise
// the output shape is fully dynamic (spec §4.D's purity rule).
func reshapeRule(ins []*graph.Value, _ graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) != 2 {
		return nil, nil, verr.New(verr.InvalidArgument, "Reshape requires 2 inputs (data, shape), got %d", len(ins))
	}
	data, shapeVal := ins[0], ins[1]
	if shapeVal.Kind != graph.ValueInitializer || shapeVal.Tensor == nil {
		klog.Warningf("shapeinfer: Reshape shape tensor %q is not a bound initializer, output shape left dynamic", shapeVal.Name)
		if data.Shape.IsStatic() {
			dyn := make(tensor.Shape, 0, 1)
			return []tensor.Shape{append(dyn, tensor.Any())}, []tensor.DataType{data.DType}, nil
		}
		return []tensor.Shape{tensor.Shape{tensor.Any()}}, []tensor.DataType{data.DType}, nil
	}

	dims := tensor.AsInt64(shapeVal.Tensor)
	out := make(tensor.Shape, len(dims))
	inferredIdx := -1
	known := int64(1)
	for i, d := range dims {
		switch {
		case d == -1:
			if inferredIdx != -1 {
				return nil, nil, verr.New(verr.InvalidArgument, "Reshape shape has more than one -1")
			}
			inferredIdx = i
			out[i] = tensor.Any()
		case d == 0:
			out[i] = dim(data.Shape, i)
		default:
			out[i] = tensor.Static(d)
			known *= d
		}
	}
	if inferredIdx != -1 && data.Shape.IsStatic() && known != 0 {
		out[inferredIdx] = tensor.Static(data.Shape.NumElements() / known)
	}
	return []tensor.Shape{out}, []tensor.DataType{data.DType}, nil
}

// transposeRule implements Transpose with an explicit perm attribute,
// defaulting to full axis reversal.
func transposeRule(ins []*graph.Value, attrs graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) != 1 {
		return nil, nil, verr.New(verr.InvalidArgument, "expected 1 input, got %d", len(ins))
	}
	in := ins[0].Shape
	perm := attrs.Ints("perm")
	if len(perm) == 0 {
		perm = make([]int64, in.Rank())
		for i := range perm {
			perm[i] = int64(in.Rank() - 1 - i)
		}
	}
	if len(perm) != in.Rank() {
		return nil, nil, verr.New(verr.InvalidArgument, "Transpose perm length %d does not match rank %d", len(perm), in.Rank())
	}
	out := make(tensor.Shape, len(perm))
	for i, p := range perm {
		out[i] = dim(in, int(p))
	}
	return []tensor.Shape{out}, []tensor.DataType{ins[0].DType}, nil
}

// concatRule implements Concat along attribute "axis": non-axis dims
// must match; the axis dim is the sum of the inputs' axis dims (or
// dynamic if any input's axis dim is dynamic).
func concatRule(ins []*graph.Value, attrs graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) == 0 {
		return nil, nil, verr.New(verr.InvalidArgument, "Concat requires at least 1 input")
	}
	axis := int(attrs.I64("axis", 0))
	first := ins[0].Shape
	if axis < 0 {
		axis += first.Rank()
	}
	out := first.Clone()
	sum := int64(0)
	dynamic := false
	for _, v := range ins {
		d := dim(v.Shape, axis)
		if d.Dynamic {
			dynamic = true
			continue
		}
		sum += d.Size
	}
	if dynamic {
		out[axis] = tensor.Any()
	} else {
		out[axis] = tensor.Static(sum)
	}
	return []tensor.Shape{out}, []tensor.DataType{ins[0].DType}, nil
}

// splitRule implements Split along attribute "axis", with per-output
// sizes from attribute "split" or an equal split across declared
// outputs. Since shape inference only sees inputs, the caller (the
// graph-wide pass) supplies the output count via numOutputs.
func splitRule(numOutputs int) Rule {
	return func(ins []*graph.Value, attrs graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
		if len(ins) != 1 {
			return nil, nil, verr.New(verr.InvalidArgument, "Split requires 1 input, got %d", len(ins))
		}
		in := ins[0].Shape
		axis := int(attrs.I64("axis", 0))
		if axis < 0 {
			axis += in.Rank()
		}
		sizes := attrs.Ints("split")

		shapes := make([]tensor.Shape, numOutputs)
		dtypes := make([]tensor.DataType, numOutputs)
		total := dim(in, axis)
		for i := 0; i < numOutputs; i++ {
			out := in.Clone()
			switch {
			case len(sizes) == numOutputs:
				out[axis] = tensor.Static(sizes[i])
			case !total.Dynamic && total.Size%int64(numOutputs) == 0:
				out[axis] = tensor.Static(total.Size / int64(numOutputs))
			default:
				out[axis] = tensor.Any()
			}
			shapes[i] = out
			dtypes[i] = ins[0].DType
		}
		return shapes, dtypes, nil
	}
}

// gatherRule implements Gather: indices (i64) select along attribute
// "axis"; the output shape is data's shape with the axis dim replaced
// by indices' shape (spec §4.H).
func gatherRule(ins []*graph.Value, attrs graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) != 2 {
		return nil, nil, verr.New(verr.InvalidArgument, "Gather requires 2 inputs (data, indices), got %d", len(ins))
	}
	data, idx := ins[0].Shape, ins[1].Shape
	axis := int(attrs.I64("axis", 0))
	if axis < 0 {
		axis += data.Rank()
	}
	if axis < 0 || axis >= data.Rank() {
		return nil, nil, verr.New(verr.InvalidArgument, "Gather axis %d out of range for rank %d", axis, data.Rank())
	}
	out := make(tensor.Shape, 0, data.Rank()-1+idx.Rank())
	out = append(out, data[:axis]...)
	out = append(out, idx...)
	out = append(out, data[axis+1:]...)
	return []tensor.Shape{out}, []tensor.DataType{ins[0].DType}, nil
}

// sliceRule implements Slice (spec §4.A): starts/ends/axes/steps come
// from attributes when present, else are read from bound initializer
// inputs (index 1..4); an unresolved bound marks that output dim
// dynamic rather than failing (spec §4.D).
func sliceRule(ins []*graph.Value, attrs graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) < 1 {
		return nil, nil, verr.New(verr.InvalidArgument, "Slice requires at least 1 input")
	}
	in := ins[0].Shape
	starts := resolveInts(attrs.Ints("starts"), ins, 1)
	ends := resolveInts(attrs.Ints("ends"), ins, 2)
	axes := resolveInts(attrs.Ints("axes"), ins, 3)
	steps := resolveInts(attrs.Ints("steps"), ins, 4)

	out := in.Clone()
	if starts == nil || ends == nil {
		klog.Warningf("shapeinfer: Slice bounds not statically known, leaving sliced dims dynamic")
		for i := range axes {
			if int(axes[i]) < len(out) {
				out[axes[i]] = tensor.Any()
			}
		}
		if len(axes) == 0 {
			for i := range out {
				out[i] = tensor.Any()
			}
		}
		return []tensor.Shape{out}, []tensor.DataType{ins[0].DType}, nil
	}
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

	for i, axis := range axes {
		d := dim(in, int(axis))
		if d.Dynamic {
			continue
		}
		step := steps[i]
		if step == 0 {
			return nil, nil, verr.New(verr.InvalidArgument, "Slice step is 0 at axis %d", axis)
		}
		start := clampIndex(starts[i], d.Size)
		end := clampIndex(ends[i], d.Size)
		out[axis] = tensor.Static(sliceLen(start, end, step))
	}
	return []tensor.Shape{out}, []tensor.DataType{ins[0].DType}, nil
}

func clampIndex(idx, size int64) int64 {
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

func sliceLen(start, end, step int64) int64 {
	if step > 0 {
		if end <= start {
			return 0
		}
		return (end - start + step - 1) / step
	}
	if start <= end {
		return 0
	}
	return (start - end - step - 1) / (-step)
}

// resolveInts returns an attribute int list if present, else the
// contents of ins[idx] if it is a bound i64 initializer, else nil.
func resolveInts(attrVals []int64, ins []*graph.Value, idx int) []int64 {
	if len(attrVals) > 0 {
		return attrVals
	}
	if idx >= len(ins) {
		return nil
	}
	v := ins[idx]
	if v == nil || v.Kind != graph.ValueInitializer || v.Tensor == nil || v.Tensor.DType() != tensor.I64 {
		return nil
	}
	return tensor.AsInt64(v.Tensor)
}

// embeddingRule implements Embedding: input_ids [...], weight [V,E] ->
// [...,E] (spec §4.H).
func embeddingRule(ins []*graph.Value, _ graph.Attrs) ([]tensor.Shape, []tensor.DataType, error) {
	if len(ins) != 2 {
		return nil, nil, verr.New(verr.InvalidArgument, "Embedding requires 2 inputs (input_ids, weight), got %d", len(ins))
	}
	ids, weight := ins[0].Shape, ins[1].Shape
	if weight.Rank() != 2 {
		return nil, nil, verr.New(verr.InvalidArgument, "Embedding weight must be rank 2, got %d", weight.Rank())
	}
	out := append(ids.Clone(), dim(weight, 1))
	return []tensor.Shape{out}, []tensor.DataType{ins[1].DType}, nil
}

func registerShapeRules() {
	Register("Reshape", reshapeRule)
	Register("Transpose", transposeRule)
	Register("Concat", concatRule)
	Register("Split", splitRule(1)) // Infer substitutes splitRule(len(n.Outputs)) per node; see infer.go
	Register("Gather", gatherRule)
	Register("Slice", sliceRule)
	Register("Embedding", embeddingRule)
}
