package provider

import (
	"sync"

	verr "github.com/veloxrt/velox/errors"
	"github.com/veloxrt/velox/internal/graph"
	"github.com/veloxrt/velox/internal/kernel"
	"github.com/veloxrt/velox/internal/tensor"

	"github.com/go-webgpu/webgpu/wgpu"
)

// WebGPU is a second execution provider (spec §4.I) that exercises the
// backend abstraction against a real WebGPU adapter via go-webgpu,
// without shipping device kernels — per §1's scope line ("the backend
// abstraction is in scope; particular device kernels are not") and
// the Non-goal on GPU-specific kernel implementations. Its purpose in
// this runtime is to give the ProviderSelector a genuine second
// candidate to fall through from onto CPU, and to exercise
// IsAvailable/GetDevice against the real adapter-probing library the
// rest of the pack's GPU tensor backend also depends on.
type WebGPU struct {
	mu      sync.Mutex
	probed  bool
	adapter *wgpu.Adapter
}

// NewWebGPU builds an (unprobed) WebGPU provider. Adapter probing is
// deferred to IsAvailable so constructing the provider never touches
// the GPU.
func NewWebGPU() *WebGPU { return &WebGPU{} }

func (w *WebGPU) Name() string              { return "WebGPU" }
func (w *WebGPU) DeviceType() tensor.Device { return tensor.WebGPU }

// IsAvailable requests a WebGPU adapter once and caches the result.
// A missing native library or no adapter on the host both report
// false rather than panicking, so ProviderSelector can fall back to
// CPU transparently.
func (w *WebGPU) IsAvailable() (ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.probed {
		return w.adapter != nil
	}
	w.probed = true
	defer func() {
		if recover() != nil {
			w.adapter = nil
			ok = false
		}
	}()
	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return false
	}
	w.adapter = adapter
	return true
}

// GetDevice reports the WebGPU device tag regardless of id: this
// provider models a single logical device, matching the single
// adapter it probes for.
func (w *WebGPU) GetDevice(int) tensor.Device { return tensor.WebGPU }

// SupportsOp always reports false: no device kernel is implemented
// (out of scope per §1), so ProviderSelector never actually assigns a
// node here — it only ever falls through to CPU.
func (w *WebGPU) SupportsOp(opType string) bool { return false }

// CreateKernel has nothing to create: no GPU kernel exists for any
// op-type in this runtime.
func (w *WebGPU) CreateKernel(opType string) (kernel.Operator, error) {
	return nil, verr.New(verr.NotImplemented, "WebGPU provider: no device kernel implemented for op %q", opType)
}

func (w *WebGPU) OptimizeGraph(g *graph.Graph) (*graph.Graph, error) { return g, nil }

func (w *WebGPU) CompileNode(n *graph.Node) error {
	return verr.New(verr.NotImplemented, "WebGPU provider: node compilation not implemented for op %q", n.OpType)
}

func (w *WebGPU) PrepareExecution(g *graph.Graph) error { return nil }

func (w *WebGPU) ExecuteNode(n *graph.Node, inputs, outputs []*tensor.Tensor, ctx *kernel.Context) error {
	return verr.New(verr.DeviceError, "WebGPU provider: no device kernel implemented for op %q", n.OpType)
}
