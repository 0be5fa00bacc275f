package graph

import "github.com/veloxrt/velox/internal/tensor"

// ValueKind classifies a Value per spec §3.
type ValueKind int

// The value kinds: graph input, initializer, or produced by a node
// (covers the spec's "node output" and "intermediate" cases, which
// differ only in whether the Tensor has been filled yet, not in
// structure).
const (
	ValueInput ValueKind = iota
	ValueInitializer
	ValueProduced
)

// Value is an SSA-style edge: a named slot with a stable id, an
// optional producer Node id, an ordered list of consumer Node ids, and
// an optional bound Tensor.
type Value struct {
	ID        int
	Name      string
	Kind      ValueKind
	Producer  int   // -1 if none (Input or Initializer)
	Consumers []int // Node ids, in the order they were connected

	Shape tensor.Shape
	DType tensor.DataType

	Tensor *tensor.Tensor // bound for Initializer always; for others once planned/executed
}

// HasProducer reports whether the value is produced by a node.
func (v *Value) HasProducer() bool { return v.Producer >= 0 }

// addConsumer appends nodeID if not already present, preserving order.
func (v *Value) addConsumer(nodeID int) {
	for _, c := range v.Consumers {
		if c == nodeID {
			return
		}
	}
	v.Consumers = append(v.Consumers, nodeID)
}

func (v *Value) removeConsumer(nodeID int) {
	out := v.Consumers[:0]
	for _, c := range v.Consumers {
		if c != nodeID {
			out = append(out, c)
		}
	}
	v.Consumers = out
}
