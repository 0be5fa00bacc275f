package provider

import (
	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/kernel"
	cpukernel "github.com/veloxrt/velox/internal/kernel/cpu"
	"github.com/veloxrt/velox/internal/tensor"
)

// CPU is the baseline execution provider of spec §4.I: it must always
// be available and must support every op in §4.H's kernel library, so
// the ProviderSelector always has a fallback.
type CPU struct {
	initialized bool
}

// NewCPU builds a CPU provider and force-registers its kernels into
// the shared kernel.Registry (spec §9's explicit init_operators, not a
// lazy static constructor).
func NewCPU() *CPU {
	c := &CPU{}
	cpukernel.InitOperators()
	c.initialized = true
	return c
}

func (c *CPU) Name() string              { return "CPU" }
func (c *CPU) DeviceType() tensor.Device { return tensor.Host }
func (c *CPU) IsAvailable() bool         { return true }
func (c *CPU) GetDevice(int) tensor.Device { return tensor.Host }

func (c *CPU) SupportsOp(opType string) bool {
	return kernel.Supports(opType)
}

func (c *CPU) CreateKernel(opType string) (kernel.Operator, error) {
	return kernel.Create(opType)
}

// OptimizeGraph performs no CPU-specific rewrite: the generic
// optimizer pipeline (spec §4.E) already runs device-independent
// passes before provider assignment.
func (c *CPU) OptimizeGraph(g *graph.Graph) (*graph.Graph, error) { return g, nil }

// CompileNode validates that a kernel exists for n's op-type; the CPU
// provider has no JIT/codegen step.
func (c *CPU) CompileNode(n *graph.Node) error {
	if !kernel.Supports(n.OpType) {
		return verr.New(verr.NotFound, "CPU provider: no kernel for op %q (node %q)", n.OpType, n.Name)
	}
	return nil
}

// PrepareExecution does nothing beyond the per-node CompileNode checks
// the selector already ran: tensor.Host is the zero Device value, so
// every node the CPU provider claims is already tagged for it, and it
// pre-allocates nothing itself — that is the memory planner's job for
// the CPU provider (it has no PreBinder override).
func (c *CPU) PrepareExecution(g *graph.Graph) error { return nil }

// ExecuteNode builds a fresh Operator for the node's op-type, applies
// its attributes, and runs it (spec §4.G: one kernel instance per
// node, since Operators are not required to be Execute-concurrent-safe).
func (c *CPU) ExecuteNode(n *graph.Node, inputs, outputs []*tensor.Tensor, ctx *kernel.Context) error {
	op, err := kernel.Create(n.OpType)
	if err != nil {
		return err
	}
	op.SetAttrs(n.Attrs)
	if multi, ok := op.(kernel.MultiOutputOperator); ok {
		multi.SetOutputCount(len(n.Outputs))
	}
	if err := op.Validate(inputs); err != nil {
		return err
	}
	return op.Execute(inputs, outputs, ctx)
}
