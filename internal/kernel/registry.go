package kernel

import (
	"sort"
	"sync"

	verr "github.com/veloxrt/velox/errors"
)

// Factory builds a fresh Operator instance for one node (Operators are
// not required to be safe for concurrent Execute calls — the engine
// creates one per node).
type Factory func() Operator

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register installs a factory for opType, overwriting any prior
// registration for that name.
func Register(opType string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[opType] = f
}

// Create builds a new Operator for opType, or NotFound if no kernel is
// registered for it.
func Create(opType string) (Operator, error) {
	mu.RLock()
	f, ok := factories[opType]
	mu.RUnlock()
	if !ok {
		return nil, verr.New(verr.NotFound, "no kernel registered for op %q", opType)
	}
	return f(), nil
}

// Supports reports whether a kernel is registered for opType.
func Supports(opType string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[opType]
	return ok
}

// Registered returns the sorted list of all registered op-type names,
// mainly for diagnostics (`velox info`, tests).
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
