// Package onnx provides ONNX model import functionality.
//
// ONNX (Open Neural Network Exchange) is an open format for representing deep learning models.
// This package implements a hand-written protobuf parser for .onnx files without external dependencies.
//
// Key components:
//   - ModelProto: Top-level ONNX model structure with metadata and graph
//   - GraphProto: Computation graph with nodes, inputs, outputs, and initializers
//   - NodeProto: Single operation in the graph (e.g., Conv, MatMul, Relu)
//   - TensorProto: Weight/initializer tensor with data and shape
//   - ValueInfoProto: Input/output tensor type information
//
// Data types mapped to runtime dtypes by BuildGraph:
//   - float32, float16, bfloat16; float64 is downcast to float32
//   - int8, int16, int32, int64 (integer types)
//   - uint8, uint16 (uint32 and uint64 map to no runtime dtype)
//   - bool, string
//
// Example usage:
//
//	// Parse ONNX file
//	model, err := onnx.ParseFile("resnet50.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Inspect model
//	fmt.Printf("Model: %s (version %d)\n", model.ProducerName, model.ModelVersion)
//	fmt.Printf("Graph: %s with %d nodes\n", model.Graph.Name, len(model.Graph.Nodes))
//
//	// Iterate over operations
//	for _, node := range model.Graph.Nodes {
//	    fmt.Printf("Op: %s (type: %s)\n", node.Name, node.OpType)
//	}
package onnx
