package graph

import (
	"fmt"
	"sort"
	"strings"
)

// ToDot renders the graph as Graphviz dot source (spec §4.C), nodes
// shown as boxes labeled "opType\nname" and values as the edges
// between them. Useful for debugging a loaded or optimized graph by
// eye; not used on any execution path.
func (g *Graph) ToDot() string {
	var b strings.Builder
	b.WriteString("digraph velox {\n")
	b.WriteString("  rankdir=LR;\n")

	ids := g.Nodes()
	for _, id := range ids {
		n := g.nodes[id]
		label := n.OpType
		if n.Name != "" {
			label = fmt.Sprintf("%s\\n%s", n.OpType, n.Name)
		}
		fmt.Fprintf(&b, "  n%d [shape=box label=%q];\n", id, label)
	}

	for _, id := range ids {
		n := g.nodes[id]
		for _, vid := range n.Outputs {
			v, ok := g.values[vid]
			if !ok {
				continue
			}
			for _, consumer := range v.Consumers {
				fmt.Fprintf(&b, "  n%d -> n%d [label=%q];\n", id, consumer, v.Name)
			}
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// Snapshot renders the graph as a deterministic, human-readable text
// listing: inputs, outputs, then each node in topological order with
// its resolved input/output value names. It is the internal debug
// format of spec §4.C — not a model interchange format (ONNX loading
// is the only supported interchange path; see the onnx package).
func (g *Graph) Snapshot() (string, error) {
	order, err := TopologicalSort(g)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("inputs:")
	for _, id := range g.Inputs {
		b.WriteString(" " + g.valueLabel(id))
	}
	b.WriteString("\noutputs:")
	for _, id := range g.Outputs {
		b.WriteString(" " + g.valueLabel(id))
	}
	b.WriteString("\n")

	for _, nid := range order {
		n := g.nodes[nid]
		ins := make([]string, len(n.Inputs))
		for i, vid := range n.Inputs {
			if vid < 0 {
				ins[i] = "_"
				continue
			}
			ins[i] = g.valueLabel(vid)
		}
		outs := make([]string, len(n.Outputs))
		for i, vid := range n.Outputs {
			outs[i] = g.valueLabel(vid)
		}

		attrNames := make([]string, 0, len(n.Attrs))
		for k := range n.Attrs {
			attrNames = append(attrNames, k)
		}
		sort.Strings(attrNames)

		fmt.Fprintf(&b, "%s = %s(%s)", strings.Join(outs, ", "), n.OpType, strings.Join(ins, ", "))
		if len(attrNames) > 0 {
			b.WriteString(" {" + strings.Join(attrNames, ", ") + "}")
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

func (g *Graph) valueLabel(id int) string {
	v, ok := g.values[id]
	if !ok || v.Name == "" {
		return fmt.Sprintf("%%%d", id)
	}
	return v.Name
}
