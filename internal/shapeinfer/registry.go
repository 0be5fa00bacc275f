package shapeinfer

import "sync"

var (
	mu    sync.RWMutex
	rules = make(map[string]Rule)
)

// Register installs a rule for opType, overwriting any prior
// registration (used at init time and by tests).
func Register(opType string, r Rule) {
	mu.Lock()
	defer mu.Unlock()
	rules[opType] = r
}

// Lookup returns the rule registered for opType, if any.
func Lookup(opType string) (Rule, bool) {
	mu.RLock()
	defer mu.RUnlock()
	r, ok := rules[opType]
	return r, ok
}

func init() {
	initRules()
}

// initRules force-registers every built-in rule. Called from an init
// function (rather than relying on package-level var initializers
// alone) so the registration order is explicit and easy to extend —
// mirrors the explicit init_operators()/init_providers() pattern used
// across the runtime (spec §9).
func initRules() {
	registerElementwiseRules()
	registerNormRules()
	registerLinearAlgebraRules()
	registerShapeRules()
	registerFusedRules()
}
