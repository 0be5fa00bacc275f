package provider

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
)

// Selector assigns each graph node to the highest-priority Provider
// that supports its op-type, falling back to CPU (spec §4.I). Session
// builds one Selector from its ordered provider list at load time.
type Selector struct {
	providers []Provider // caller priority order; must include CPU somewhere, or cpu is appended
	cpu       Provider
}

// NewSelector builds a Selector over providers in priority order. If
// none of them is named "CPU", a fresh CPU provider is appended so a
// fallback always exists (spec §4.I: "falling back to the CPU
// provider, which must always be available").
func NewSelector(providers []Provider) *Selector {
	s := &Selector{providers: providers}
	for _, p := range providers {
		if p.Name() == "CPU" {
			s.cpu = p
		}
	}
	if s.cpu == nil {
		s.cpu = NewCPU()
		s.providers = append(s.providers, s.cpu)
	}
	return s
}

// Assign walks g's nodes in insertion order and sets each one's Device
// field to the first-priority available provider that SupportsOp its
// op-type, returning a map from node id to the chosen
// Provider. NotFound is returned (and no node is mutated further) if
// no provider, including CPU, supports a node's op-type.
func (s *Selector) Assign(g *graph.Graph) (map[int]Provider, error) {
	assignment := make(map[int]Provider, len(g.Nodes()))
	for _, nid := range g.Nodes() {
		n := g.Node(nid)
		chosen := s.choose(n.OpType)
		if chosen == nil {
			return nil, verr.New(verr.NotFound, "no execution provider supports op %q (node %q)", n.OpType, n.Name)
		}
		n.Device = chosen.GetDevice(0)
		assignment[nid] = chosen
	}
	return assignment, nil
}

func (s *Selector) choose(opType string) Provider {
	for _, p := range s.providers {
		if !p.IsAvailable() {
			continue
		}
		if p.SupportsOp(opType) {
			return p
		}
	}
	if s.cpu.SupportsOp(opType) {
		return s.cpu
	}
	return nil
}

// Providers returns the selector's provider list in priority order
// (CPU included, appended if the caller didn't list it).
func (s *Selector) Providers() []Provider { return s.providers }
