// Package optimize implements the graph rewrite pipeline of spec §4.E:
// constant folding, dead-code elimination, operator fusion, memory
// layout optimization, and subgraph/identity replacement, orchestrated
// by a dependency-ordered Pass Manager.
package optimize

import "github.com/veloxrt/velox/internal/graph"

// Pass is one rewrite stage. Dependencies names other passes (by
// Name()) that must run, at least once, before this one. Repeatable
// passes are re-run by the Manager until Run reports no change or a
// fixed-point limit is hit.
type Pass interface {
	Name() string
	Dependencies() []string
	Repeatable() bool
	Run(g *graph.Graph) (changed bool, err error)
}
