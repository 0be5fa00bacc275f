package provider

import (
	"sort"
	"sync"

	verr "github.com/veloxrt/velox/errors"
)

// Factory builds a fresh Provider instance.
type Factory func() Provider

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register installs a factory for a provider name, overwriting any
// prior registration (spec §4.I's "Provider Registry maps provider
// name -> factory").
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Create builds a new Provider for name, or NotFound if unregistered.
func Create(name string) (Provider, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, verr.New(verr.NotFound, "no execution provider registered for %q", name)
	}
	return f(), nil
}

// Registered returns the sorted list of registered provider names.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// InitProviders force-registers every built-in execution provider,
// mirroring kernel.cpu.InitOperators' avoidance of lazy static
// constructors (spec §9). Idempotent: re-registering simply overwrites.
func InitProviders() {
	Register("CPU", func() Provider { return NewCPU() })
	Register("WebGPU", func() Provider { return NewWebGPU() })
}
