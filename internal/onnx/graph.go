package onnx

import (
	"fmt"

	verr "github.com/veloxrt/velox/errors"
	igraph "github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/tensor"
)

// dtypeFromProto maps an ONNX TensorProto.DataType tag to the
// runtime's DataType, per spec §6's table. Types 11 (double), 14
// (complex64) and 15 (complex128) downcast to F32, a documented lossy
// conversion the spec calls out explicitly rather than leaving silent.
func dtypeFromProto(tag int32) tensor.DataType {
	switch tag {
	case TensorProtoFloat:
		return tensor.F32
	case TensorProtoUint8:
		return tensor.U8
	case TensorProtoInt8:
		return tensor.I8
	case TensorProtoUint16:
		return tensor.U16
	case TensorProtoInt16:
		return tensor.I16
	case TensorProtoInt32:
		return tensor.I32
	case TensorProtoInt64:
		return tensor.I64
	case TensorProtoString:
		return tensor.String
	case TensorProtoBool:
		return tensor.Bool
	case TensorProtoFloat16:
		return tensor.F16
	case TensorProtoBfloat16:
		return tensor.BF16
	case TensorProtoDouble, TensorProtoComplex64, TensorProtoComplex128:
		return tensor.F32
	default:
		return tensor.Unknown
	}
}

// shapeFromProto converts a TensorShapeProto to a runtime Shape. A
// dimension with neither DimValue nor DimParam set (the zero value) is
// treated as dynamic, matching exporters that leave a symbolic batch
// axis blank rather than naming it.
func shapeFromProto(s *TensorShapeProto) tensor.Shape {
	if s == nil {
		return nil
	}
	out := make(tensor.Shape, len(s.Dims))
	for i, d := range s.Dims {
		if d.DimParam != "" || d.DimValue <= 0 {
			out[i] = tensor.Any()
			continue
		}
		out[i] = tensor.Static(d.DimValue)
	}
	return out
}

// tensorFromProto materializes a TensorProto's payload into an owning
// host Tensor, preferring RawData and falling back to the legacy typed
// arrays per the ONNX spec.
func tensorFromProto(tp *TensorProto) (*tensor.Tensor, error) {
	dtype := dtypeFromProto(tp.DataType)
	shape := make(tensor.Shape, len(tp.Dims))
	for i, d := range tp.Dims {
		shape[i] = tensor.Static(d)
	}

	t, err := tensor.Create(shape, dtype, tensor.Host)
	if err != nil {
		return nil, verr.Wrap(verr.InvalidModel, err, "initializer %q", tp.Name)
	}

	switch {
	case len(tp.RawData) > 0:
		copy(t.Data(), tp.RawData)
	case dtype == tensor.F32 && len(tp.FloatData) > 0:
		copy(tensor.AsFloat32(t), tp.FloatData)
	case dtype == tensor.I64 && len(tp.Int64Data) > 0:
		copy(tensor.AsInt64(t), tp.Int64Data)
	case dtype == tensor.I32 && len(tp.Int32Data) > 0:
		copy(tensor.AsInt32(t), tp.Int32Data)
	case t.NumElements() == 0:
		// empty tensor, nothing to copy
	default:
		return nil, verr.New(verr.InvalidModel, "initializer %q: no payload for dtype %s", tp.Name, dtype)
	}
	return t, nil
}

// attrFromProto converts an AttributeProto into the Attrs tagged union
// of spec §3/§9. GRAPH/GRAPHS-valued attributes (control-flow ops like
// If/Loop) are out of this runtime's scope and are rejected with
// InvalidModel if encountered, since no operator in §4.H consumes them.
func attrFromProto(ap AttributeProto) (igraph.Attribute, error) {
	switch ap.Type {
	case AttributeProtoFloat:
		return igraph.Attribute{Kind: igraph.AttrF32, F32: ap.F}, nil
	case AttributeProtoInt:
		return igraph.Attribute{Kind: igraph.AttrI64, I64: ap.I}, nil
	case AttributeProtoString:
		return igraph.Attribute{Kind: igraph.AttrString, Str: string(ap.S)}, nil
	case AttributeProtoFloats:
		return igraph.Attribute{Kind: igraph.AttrFloats, Floats: ap.Floats}, nil
	case AttributeProtoInts:
		return igraph.Attribute{Kind: igraph.AttrInts, Ints: ap.Ints}, nil
	case AttributeProtoTensor:
		t, err := tensorFromProto(ap.T)
		if err != nil {
			return igraph.Attribute{}, err
		}
		return igraph.Attribute{Kind: igraph.AttrTensor, Tensor: t}, nil
	default:
		return igraph.Attribute{}, verr.New(verr.InvalidModel, "attribute %q: unsupported attribute type %d", ap.Name, ap.Type)
	}
}

// BuildGraph converts a parsed ModelProto into the runtime's in-memory
// Graph (spec §3/§4.C), the boundary between the out-of-core-scope
// file-format parser (§1) and the inference engine proper. Initializer
// tensors are materialized eagerly; graph-input Values are left
// unbound for the caller to fill at Run time.
func BuildGraph(model *ModelProto) (*igraph.Graph, error) {
	if model.Graph == nil {
		return nil, verr.New(verr.InvalidModel, "model has no graph")
	}
	gp := model.Graph
	g := igraph.New()
	valueID := make(map[string]int, len(gp.Inputs)+len(gp.Initializers)+len(gp.Nodes)*2)

	initializerNames := make(map[string]bool, len(gp.Initializers))
	for _, tp := range gp.Initializers {
		initializerNames[tp.Name] = true
		t, err := tensorFromProto(&tp)
		if err != nil {
			return nil, err
		}
		id := g.AddValue(tp.Name, igraph.ValueInitializer)
		v := g.Value(id)
		v.Tensor = t
		v.Shape = t.Shape()
		v.DType = t.DType()
		valueID[tp.Name] = id
	}

	for _, vi := range gp.Inputs {
		if initializerNames[vi.Name] {
			// ONNX models commonly redeclare initializers as graph
			// inputs with a default value; the initializer already
			// has a materialized Tensor and takes precedence.
			continue
		}
		id := g.AddValue(vi.Name, igraph.ValueInput)
		v := g.Value(id)
		if vi.Type != nil && vi.Type.TensorType != nil {
			v.Shape = shapeFromProto(vi.Type.TensorType.Shape)
			v.DType = dtypeFromProto(vi.Type.TensorType.ElemType)
		}
		valueID[vi.Name] = id
		g.Inputs = append(g.Inputs, id)
	}

	resolve := func(name string) (int, error) {
		if name == "" {
			return -1, nil
		}
		if id, ok := valueID[name]; ok {
			return id, nil
		}
		id := g.AddValue(name, igraph.ValueProduced)
		valueID[name] = id
		return id, nil
	}

	for _, np := range gp.Nodes {
		nid := g.AddNode(np.OpType, np.Name)
		n := g.Node(nid)
		for _, ap := range np.Attributes {
			attr, err := attrFromProto(ap)
			if err != nil {
				return nil, verr.Wrap(verr.InvalidModel, err, "node %q (%s)", np.Name, np.OpType)
			}
			n.Attrs[ap.Name] = attr
		}
		for _, inName := range np.Inputs {
			id, err := resolve(inName)
			if err != nil {
				return nil, err
			}
			if err := g.ConnectInput(nid, id); err != nil {
				return nil, verr.Wrap(verr.InvalidModel, err, "node %q (%s) input %q", np.Name, np.OpType, inName)
			}
		}
		for _, outName := range np.Outputs {
			id, ok := valueID[outName]
			if !ok {
				id = g.AddValue(outName, igraph.ValueProduced)
				valueID[outName] = id
			}
			if err := g.ConnectOutput(nid, id); err != nil {
				return nil, verr.Wrap(verr.InvalidModel, err, "node %q (%s) output %q", np.Name, np.OpType, outName)
			}
		}
	}

	for _, vi := range gp.Outputs {
		id, ok := valueID[vi.Name]
		if !ok {
			return nil, verr.New(verr.InvalidModel, "graph output %q has no producer", vi.Name)
		}
		g.Outputs = append(g.Outputs, id)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("building graph from model: %w", err)
	}
	return g, nil
}
