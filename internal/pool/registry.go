package pool

import "sync"

// registry holds the process-wide default pool for each device, the
// set of singletons spec §5 calls out ("the Kernel Registry, Provider
// Registry, and default Memory Pools are process-wide singletons").
var (
	registryMu sync.Mutex
	byDevice   = make(map[int]*Pool)
)

// ForDevice returns the process-wide pool for the given device id,
// creating it on first use.
func ForDevice(device int) *Pool {
	registryMu.Lock()
	defer registryMu.Unlock()
	p, ok := byDevice[device]
	if !ok {
		p = New()
		byDevice[device] = p
	}
	return p
}

// ReleaseAll releases unused blocks in every registered device pool.
// Called at process teardown per spec §5.
func ReleaseAll() {
	registryMu.Lock()
	pools := make([]*Pool, 0, len(byDevice))
	for _, p := range byDevice {
		pools = append(pools, p)
	}
	registryMu.Unlock()
	for _, p := range pools {
		p.ReleaseUnused()
	}
}
