package optimize

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"k8s.io/klog/v2"
)

// fixedPointLimit bounds how many times a repeatable pass is re-run
// before the Manager gives up and moves on, guarding against a buggy
// pass that never converges.
const fixedPointLimit = 64

// Manager performs Kahn-ordered dependency resolution over registered
// passes and executes each once in order; repeatable passes are
// re-run to a fixed point (spec §4.E).
type Manager struct {
	passes []Pass
}

// NewManager builds a Manager with the given passes, in registration
// order (used as the tie-break for passes with no mutual dependency).
func NewManager(passes ...Pass) *Manager {
	return &Manager{passes: passes}
}

// order resolves a dependency-respecting execution order via Kahn's
// algorithm over pass names.
func (m *Manager) order() ([]Pass, error) {
	byName := make(map[string]Pass, len(m.passes))
	for _, p := range m.passes {
		byName[p.Name()] = p
	}

	inDegree := make(map[string]int, len(m.passes))
	dependents := make(map[string][]string)
	for _, p := range m.passes {
		inDegree[p.Name()] = 0
	}
	for _, p := range m.passes {
		for _, dep := range p.Dependencies() {
			if _, ok := byName[dep]; !ok {
				return nil, verr.New(verr.InvalidArgument, "pass %q declares unknown dependency %q", p.Name(), dep)
			}
			inDegree[p.Name()]++
			dependents[dep] = append(dependents[dep], p.Name())
		}
	}

	var ready []string
	for _, p := range m.passes {
		if inDegree[p.Name()] == 0 {
			ready = append(ready, p.Name())
		}
	}

	var order []Pass
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, byName[name])
		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(m.passes) {
		return nil, verr.New(verr.InvalidArgument, "pass dependency graph has a cycle")
	}
	return order, nil
}

// Run executes every registered pass, in dependency order, against g.
// Each pass runs against a scratch clone; on success the clone is
// committed into g via ReplaceWith, on error Run stops immediately and
// g retains whatever the last successfully committed pass left it as
// (spec §4.E's "commits... atomically or aborts").
func (m *Manager) Run(g *graph.Graph) error {
	order, err := m.order()
	if err != nil {
		return err
	}

	for _, p := range order {
		if err := m.runOne(g, p); err != nil {
			return verr.Wrap(verr.InvalidModel, err, "optimizer pass %q failed", p.Name())
		}
	}
	return nil
}

func (m *Manager) runOne(g *graph.Graph, p Pass) error {
	iterations := 1
	if p.Repeatable() {
		iterations = fixedPointLimit
	}

	for i := 0; i < iterations; i++ {
		scratch := g.Clone()
		changed, err := p.Run(scratch)
		if err != nil {
			return err
		}
		g.ReplaceWith(scratch)
		if !p.Repeatable() || !changed {
			return nil
		}
	}
	klog.Warningf("optimize: pass %q did not reach a fixed point within %d iterations", p.Name(), fixedPointLimit)
	return nil
}
