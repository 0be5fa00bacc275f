// Package graph implements the in-memory computation graph of spec
// §3/§4.C: an arena-backed SSA-style DAG where Nodes and Values are
// keyed by monotonically-assigned integer ids rather than pointers,
// so cloning and serialization are plain id-remapping copies (spec
// §9's recommended re-architecture of the source's pointer graph).
package graph

import (
	verr "github.com/veloxrt/velox/errors"
)

// Graph owns all Nodes and Values for one loaded model (spec §3).
type Graph struct {
	nodes  map[int]*Node
	values map[int]*Value

	nextNodeID  int
	nextValueID int

	nodeOrder []int // insertion order, used to break topo-sort ties

	Inputs  []int // graph-input Value ids, in declared order
	Outputs []int // graph-output Value ids, in declared order
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:  make(map[int]*Node),
		values: make(map[int]*Value),
	}
}

// AddValue allocates a new Value and returns its id.
func (g *Graph) AddValue(name string, kind ValueKind) int {
	id := g.nextValueID
	g.nextValueID++
	g.values[id] = &Value{ID: id, Name: name, Kind: kind, Producer: -1}
	return id
}

// AddNode allocates a new Node and returns its id. Inputs/Outputs are
// wired afterward with Connect.
func (g *Graph) AddNode(opType, name string) int {
	id := g.nextNodeID
	g.nextNodeID++
	g.nodes[id] = &Node{ID: id, OpType: opType, Name: name, Attrs: make(Attrs)}
	g.nodeOrder = append(g.nodeOrder, id)
	return id
}

// ConnectInput appends valueID as the next input of nodeID and
// registers nodeID as a consumer of that value. A negative valueID
// marks an absent optional input slot (spec §4.C connect semantics).
func (g *Graph) ConnectInput(nodeID, valueID int) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return verr.New(verr.InvalidArgument, "connect: unknown node %d", nodeID)
	}
	n.Inputs = append(n.Inputs, valueID)
	if valueID >= 0 {
		v, ok := g.values[valueID]
		if !ok {
			return verr.New(verr.InvalidArgument, "connect: unknown value %d", valueID)
		}
		v.addConsumer(nodeID)
	}
	return nil
}

// ConnectOutput appends valueID as the next output of nodeID and marks
// nodeID as its producer. A Value may have at most one producer.
func (g *Graph) ConnectOutput(nodeID, valueID int) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return verr.New(verr.InvalidArgument, "connect: unknown node %d", nodeID)
	}
	v, ok := g.values[valueID]
	if !ok {
		return verr.New(verr.InvalidArgument, "connect: unknown value %d", valueID)
	}
	if v.HasProducer() && v.Producer != nodeID {
		return verr.New(verr.InvalidModel, "connect: value %d already has producer %d", valueID, v.Producer)
	}
	n.Outputs = append(n.Outputs, valueID)
	v.Producer = nodeID
	v.Kind = ValueProduced
	return nil
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id int) *Node { return g.nodes[id] }

// Value returns the value with the given id, or nil.
func (g *Graph) Value(id int) *Value { return g.values[id] }

// Nodes returns all node ids in insertion order.
func (g *Graph) Nodes() []int {
	out := make([]int, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		if _, ok := g.nodes[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Values returns all value ids (unordered map iteration order is not
// guaranteed; callers that need determinism should sort).
func (g *Graph) Values() []int {
	out := make([]int, 0, len(g.values))
	for id := range g.values {
		out = append(out, id)
	}
	return out
}

// RemoveNode deletes a node from the arena and removes it from the
// consumer list of every value it read. It does not touch the values
// it produced (callers reroute or drop those separately — see the
// optimizer's SubgraphReplacement and ConstantFolding passes).
func (g *Graph) RemoveNode(id int) {
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	for _, vid := range n.Inputs {
		if vid < 0 {
			continue
		}
		if v, ok := g.values[vid]; ok {
			v.removeConsumer(id)
		}
	}
	delete(g.nodes, id)
}

// FindValueByName returns the id of the first value with the given
// name, and whether one was found.
func (g *Graph) FindValueByName(name string) (int, bool) {
	for id, v := range g.values {
		if v.Name == name {
			return id, true
		}
	}
	return 0, false
}

// RerouteConsumers replaces every reference to oldValue with newValue
// across all node inputs and, if oldValue was a graph output, in the
// graph-output list. Used by SubgraphReplacement/ConstantFolding when
// a node is removed but its consumers must see a different Value (spec
// §4.E).
func (g *Graph) RerouteConsumers(oldValue, newValue int) {
	old, ok := g.values[oldValue]
	if !ok {
		return
	}
	for _, nodeID := range append([]int(nil), old.Consumers...) {
		n, ok := g.nodes[nodeID]
		if !ok {
			continue
		}
		for i, in := range n.Inputs {
			if in == oldValue {
				n.Inputs[i] = newValue
				if nv, ok := g.values[newValue]; ok {
					nv.addConsumer(nodeID)
				}
			}
		}
	}
	old.Consumers = nil

	for i, out := range g.Outputs {
		if out == oldValue {
			g.Outputs[i] = newValue
		}
	}
}

// ReplaceWith overwrites g's contents with other's, in place. Used by
// the optimizer's Pass Manager to commit a pass that ran against a
// scratch clone: on success the clone's state becomes the graph's
// state without the caller's *Graph pointer changing identity.
func (g *Graph) ReplaceWith(other *Graph) {
	*g = *other
}

// Clone returns a deep copy of the graph with the same ids (a
// straightforward arena copy, per spec §9 — no pointer remapping is
// needed because cross-references are already plain ids).
func (g *Graph) Clone() *Graph {
	out := &Graph{
		nodes:       make(map[int]*Node, len(g.nodes)),
		values:      make(map[int]*Value, len(g.values)),
		nextNodeID:  g.nextNodeID,
		nextValueID: g.nextValueID,
		nodeOrder:   append([]int(nil), g.nodeOrder...),
		Inputs:      append([]int(nil), g.Inputs...),
		Outputs:     append([]int(nil), g.Outputs...),
	}
	for id, n := range g.nodes {
		cp := *n
		cp.Inputs = append([]int(nil), n.Inputs...)
		cp.Outputs = append([]int(nil), n.Outputs...)
		attrs := make(Attrs, len(n.Attrs))
		for k, v := range n.Attrs {
			attrs[k] = v
		}
		cp.Attrs = attrs
		out.nodes[id] = &cp
	}
	for id, v := range g.values {
		cp := *v
		cp.Consumers = append([]int(nil), v.Consumers...)
		out.values[id] = &cp
	}
	return out
}
