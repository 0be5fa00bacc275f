// Package provider implements the execution-provider abstraction of
// spec §4.I: a device-and-kernels bundle that advertises which ops it
// supports, builds kernels for them, prepares a graph for its device,
// and runs individual nodes, plus the Provider Registry and
// ProviderSelector that assign graph nodes to providers in caller
// priority order.
package provider

import (
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/tensor"
)

// Provider is the execution-provider contract of spec §4.I.
type Provider interface {
	// Name identifies the provider ("CPU", "WebGPU").
	Name() string
	// DeviceType reports the kind of device this provider binds.
	DeviceType() tensor.Device
	// IsAvailable reports whether the provider's device can be used on
	// this machine (driver present, library loadable, etc.).
	IsAvailable() bool
	// GetDevice returns the shared Device handle for id (providers
	// that expose only one device ignore id).
	GetDevice(id int) tensor.Device
	// SupportsOp reports whether this provider can execute opType.
	SupportsOp(opType string) bool
	// CreateKernel builds an Operator for opType bound to this
	// provider's device.
	CreateKernel(opType string) (kernel.Operator, error)
	// OptimizeGraph lets a provider apply device-specific rewrites
	// after the generic optimizer pipeline has run, before nodes are
	// assigned. The default CPU/WebGPU providers do not need this and
	// return g unchanged.
	OptimizeGraph(g *graph.Graph) (*graph.Graph, error)
	// CompileNode lets a provider validate or JIT-compile a node it
	// has claimed, ahead of the first Run. Failures here surface at
	// load time (spec §4.I).
	CompileNode(n *graph.Node) error
	// PrepareExecution is called once, after node assignment, so the
	// provider can force device tags, pre-allocate outputs for
	// concrete-shape Values, or validate per-node kernels.
	PrepareExecution(g *graph.Graph) error
	// ExecuteNode runs one node's kernel against the bound input/output
	// tensors.
	ExecuteNode(n *graph.Node, inputs, outputs []*tensor.Tensor, ctx *kernel.Context) error
}

// PreBinder is implemented by providers that allocate their own output
// buffers for some Values (e.g. device-resident memory a host-side
// memory planner cannot size) and therefore want the memory planner to
// skip those Values. It satisfies planner.PreBound.
type PreBinder interface {
	IsPreBound(valueID int) bool
}
