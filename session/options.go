// Package session implements the external Session API of spec §6: the
// load -> optimize -> prepare -> run lifecycle a caller drives against
// a loaded model, wiring together the graph IR, shape inference,
// optimizer pipeline, memory planner, execution providers and engine
// that the internal packages implement.
package session

// OptimizationLevel controls how much of the optimizer pipeline runs
// during Prepare (spec §6).
type OptimizationLevel int

const (
	// OptNone skips the optimizer pipeline entirely.
	OptNone OptimizationLevel = iota
	// OptBasic runs ConstantFolding and DeadCodeElimination only.
	OptBasic
	// OptExtended additionally runs OperatorFusion and
	// SubgraphReplacement.
	OptExtended
	// OptAll additionally runs MemoryLayoutOptimization.
	OptAll
)

// Options configures a Session (spec §6's Session::create(options)).
type Options struct {
	// Providers is the ordered list of execution-provider names to try,
	// highest priority first. A trailing CPU entry is implied even if
	// omitted (spec §4.I).
	Providers []string
	// DeviceID is carried on Options but not read: provider assignment
	// binds every node to device 0 of its chosen provider.
	DeviceID int
	// OptimizationLevel controls the optimizer pipeline (above).
	OptimizationLevel OptimizationLevel
	// EnableOperatorFusion is consulted independently of
	// OptimizationLevel: it can force fusion off even at OptExtended/
	// OptAll, or has no effect at OptNone/OptBasic.
	EnableOperatorFusion bool
	// NumThreads bounds the Parallel scheduler's worker count; 0 means
	// hardware concurrency.
	NumThreads int
	// EnableProfiling pre-allocates nothing extra today but documents
	// intent; Profile() is callable regardless of this flag.
	EnableProfiling bool
	// MemoryPoolSize is a soft cap in bytes on the host pool; 0 means
	// unlimited (spec §4.B's "soft cap").
	MemoryPoolSize int64
}

// DefaultOptions returns Options matching spec §6's documented
// defaults: CPU only, optimization level All, fusion on, auto threads,
// profiling off, unlimited pool.
func DefaultOptions() Options {
	return Options{
		Providers:            []string{"CPU"},
		OptimizationLevel:    OptAll,
		EnableOperatorFusion: true,
	}
}
