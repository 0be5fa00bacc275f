package engine

import (
	"runtime"
	"sync"

	"github.com/veloxrt/velox/internal/graph"
)

// Parallel is the worker-pool DAG scheduler of spec §4.J/§5: a
// per-node in-degree counter gates readiness, a ready queue plus
// condition variable coordinates N worker goroutines, and the first
// error any worker observes wins — every worker then drains its
// current node and exits without starting new ones.
type Parallel struct {
	// Workers is the number of worker goroutines; <= 0 defaults to
	// runtime.GOMAXPROCS(0) (spec: "default = hardware concurrency").
	Workers int
}

func (Parallel) Name() string { return "Parallel" }

func (Parallel) Order(g *graph.Graph) ([]int, error) {
	return graph.TopologicalSort(g)
}

// Schedule runs g's nodes with up to p.Workers goroutines, respecting
// producer-before-consumer ordering via in-degree gating (spec §5:
// "the producer node of any Value completes strictly before any
// consumer begins"; "no guarantees... about the relative order of
// independent nodes").
func (p Parallel) Schedule(g *graph.Graph, fn Dispatch) error {
	nodes := g.Nodes()
	n := len(nodes)
	if n == 0 {
		return nil
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	inDegree := make(map[int]int, n)
	consumers := make(map[int][]int, n)
	for _, nid := range nodes {
		node := g.Node(nid)
		deg := 0
		for _, vid := range node.Inputs {
			if vid < 0 {
				continue
			}
			v := g.Value(vid)
			if v != nil && v.HasProducer() {
				deg++
				consumers[v.Producer] = append(consumers[v.Producer], nid)
			}
		}
		inDegree[nid] = deg
	}

	var mu sync.Mutex
	cond := sync.NewCond(&mu)
	var ready []int
	for _, nid := range nodes {
		if inDegree[nid] == 0 {
			ready = append(ready, nid)
		}
	}

	completed := 0
	var firstErr error
	done := false // true once completed == n or firstErr != nil; wakes idle workers to exit

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				mu.Lock()
				for len(ready) == 0 && !done {
					cond.Wait()
				}
				if done {
					mu.Unlock()
					return
				}
				nid := ready[0]
				ready = ready[1:]
				mu.Unlock()

				err := fn(nid)

				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					done = true
					cond.Broadcast()
					mu.Unlock()
					return
				}
				for _, cid := range consumers[nid] {
					inDegree[cid]--
					if inDegree[cid] == 0 {
						ready = append(ready, cid)
					}
				}
				completed++
				if completed == n {
					done = true
				}
				cond.Broadcast()
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return firstErr
}
