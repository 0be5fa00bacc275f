package cpu

import "github.com/veloxrt/velox/internal/kernel"

// InitOperators force-registers every CPU kernel into the shared
// kernel.Registry. Called explicitly by the CPU execution provider at
// program start (spec §4.G: "a named initialisation function forces
// registration of all built-in kernels... no reliance on lazy static
// constructors being linked in").
func InitOperators() {
	kernel.Register("Add", newAdd)
	kernel.Register("Sub", newSub)
	kernel.Register("Mul", newMul)
	kernel.Register("Div", newDiv)

	kernel.Register("Relu", newRelu)
	kernel.Register("Sigmoid", newSigmoid)
	kernel.Register("Tanh", newTanh)
	kernel.Register("Gelu", newGelu)
	kernel.Register("Silu", newSilu)
	kernel.Register("Softmax", newSoftmax)

	kernel.Register("BatchNormalization", newBatchNorm)
	kernel.Register("LayerNormalization", newLayerNorm)
	kernel.Register("RMSNorm", newRMSNorm)

	kernel.Register("MatMul", newMatMul)
	kernel.Register("FusedMatMulAdd", newFusedMatMulAdd)

	kernel.Register("Conv", newConv)
	kernel.Register("FusedConvBNReLU", newFusedConvBNReLU)

	kernel.Register("MaxPool", newMaxPool)
	kernel.Register("AveragePool", newAveragePool)

	kernel.Register("Reshape", newReshape)
	kernel.Register("Transpose", newTranspose)
	kernel.Register("Concat", newConcat)
	kernel.Register("Split", newSplit)
	kernel.Register("Gather", newGather)
	kernel.Register("Slice", newSlice)
	kernel.Register("Embedding", newEmbedding)
}
