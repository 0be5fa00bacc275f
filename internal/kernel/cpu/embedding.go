package cpu

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/tensor"
)

// embedding implements Embedding: input_ids i64 [...], weight f32
// [V,E] -> [...,E], bounds-checked (spec §4.H).
type embedding struct{ base }

func (k *embedding) Name() string { return "Embedding" }

func (k *embedding) Validate(inputs []*tensor.Tensor) error {
	if err := requireArity(inputs, 2, "Embedding"); err != nil {
		return err
	}
	if inputs[0].DType() != tensor.I64 {
		return verr.New(verr.InvalidArgument, "Embedding: input_ids must be i64, got %s", inputs[0].DType())
	}
	if inputs[1].Shape().Rank() != 2 {
		return verr.New(verr.InvalidArgument, "Embedding: weight must be rank 2, got %d", inputs[1].Shape().Rank())
	}
	return requireF32(inputs[1], "Embedding", "weight")
}

func (k *embedding) InferOutputShapes(inputs []*tensor.Tensor) ([]tensor.Shape, error) {
	if err := k.Validate(inputs); err != nil {
		return nil, err
	}
	out := append(inputs[0].Shape().Clone(), inputs[1].Shape()[1])
	return []tensor.Shape{out}, nil
}

func (k *embedding) Execute(inputs []*tensor.Tensor, outputs []*tensor.Tensor, _ *kernel.Context) error {
	if err := k.Validate(inputs); err != nil {
		return err
	}
	if err := requireArity(outputs, 1, "Embedding"); err != nil {
		return err
	}
	vocabSize := inputs[1].Shape()[0].Size
	embedDim := int(inputs[1].Shape()[1].Size)

	ids := tensor.AsInt64(inputs[0])
	weight := tensor.AsFloat32(inputs[1])
	out := tensor.AsFloat32(outputs[0])

	for i, id := range ids {
		if id < 0 || id >= vocabSize {
			return verr.New(verr.InvalidArgument, "Embedding: id %d out of range [0,%d)", id, vocabSize)
		}
		copy(out[i*embedDim:(i+1)*embedDim], weight[id*int64(embedDim):id*int64(embedDim)+int64(embedDim)])
	}
	return nil
}

func newEmbedding() kernel.Operator { return &embedding{} }
