package graph

import "github.com/veloxrt/velox/internal/tensor"

// Node is an operator instance: op-type + attributes + input/output
// Value ids + an assigned device tag (spec §3). Node and Value cross-
// references are small integer ids into the Graph's arena, not
// pointers — see spec §9's design note on avoiding a cyclic
// ownership graph.
type Node struct {
	ID     int
	OpType string
	Name   string

	Inputs  []int // Value ids, in positional order ("" input slots use -1)
	Outputs []int // Value ids, in positional order

	Attrs Attrs

	Device tensor.Device
}
