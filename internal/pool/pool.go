// Package pool implements the per-device memory allocator described in
// spec §4.B: aligned allocation with best-fit block reuse, soft memory
// caps, and allocation statistics under a mutex.
package pool

import (
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// block is one allocation tracked by the pool. Size is the usable
// (post-alignment) byte size; raw is the over-allocated backing slice
// whose start may precede the aligned region.
type block struct {
	raw      []byte
	size     int
	inUse    bool
	lastUsed time.Time
}

// Stats reports allocator statistics, safe to read concurrently with
// alloc/free (see spec §4.B's "contention is expected on alloc and free
// only, not on stats").
type Stats struct {
	CurrentAllocated int64
	PeakAllocated    int64
	AllocCount       int64
	FreeCount        int64
}

// Pool is a best-fit memory pool for a single device. One Pool exists
// per device; see Registry for the process-wide per-device singletons.
type Pool struct {
	mu               sync.Mutex
	blocks           []*block
	ptrToBlock       map[*byte]*block
	maxBytes         int64 // 0 = unlimited
	releaseThreshold float64
	currentAlloc     int64
	peakAlloc        int64
	allocCount       int64
	freeCount        int64
}

// New creates an empty pool with no soft cap and a release threshold
// of 0.5 (release when half the pool's bytes are free).
func New() *Pool {
	return &Pool{
		ptrToBlock:       make(map[*byte]*block),
		releaseThreshold: 0.5,
	}
}

// SetMaxBytes sets a soft cap on total allocated bytes. Allocation
// never fails purely because of this cap: when it would be exceeded,
// Alloc first tries ReleaseUnused then Defragment, and if the cap is
// still exceeded it proceeds anyway, logging the overrun.
func (p *Pool) SetMaxBytes(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxBytes = n
}

// SetReleaseThreshold sets the free/total byte ratio at which Free may
// schedule a ReleaseUnused pass. f must be in [0, 1].
func (p *Pool) SetReleaseThreshold(f float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	p.releaseThreshold = f
}

// Alloc returns a byte slice of at least size bytes whose start
// address is aligned to align bytes. align must be a power of two.
func (p *Pool) Alloc(size, align int) []byte {
	if size <= 0 {
		size = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if blk := p.findBestFit(size, align); blk != nil {
		blk.inUse = true
		blk.lastUsed = time.Now()
		p.currentAlloc += int64(blk.size)
		p.allocCount++
		if p.currentAlloc > p.peakAlloc {
			p.peakAlloc = p.currentAlloc
		}
		return alignedView(blk.raw, align, size)
	}

	if p.maxBytes > 0 && p.currentAlloc+int64(size) > p.maxBytes {
		p.releaseUnusedLocked()
		p.defragmentLocked(0)
		if p.currentAlloc+int64(size) > p.maxBytes {
			klog.Warningf("pool: soft cap %d bytes exceeded, allocating %d more anyway (current %d)",
				p.maxBytes, size, p.currentAlloc)
		}
	}

	blk := p.newBlockLocked(size, align)
	blk.inUse = true
	blk.lastUsed = time.Now()
	p.currentAlloc += int64(blk.size)
	p.allocCount++
	if p.currentAlloc > p.peakAlloc {
		p.peakAlloc = p.currentAlloc
	}
	return alignedView(blk.raw, align, size)
}

// findBestFit scans free blocks for the smallest one that still fits
// size bytes at the given alignment, without holding a separate lock
// (caller already holds p.mu).
func (p *Pool) findBestFit(size, align int) *block {
	var best *block
	for _, b := range p.blocks {
		if b.inUse || b.size < size {
			continue
		}
		if !fitsAligned(b.raw, align, size) {
			continue
		}
		if best == nil || b.size < best.size {
			best = b
		}
	}
	return best
}

func (p *Pool) newBlockLocked(size, align int) *block {
	// Over-allocate by align bytes so an aligned region of size
	// bytes is guaranteed to exist somewhere inside raw.
	raw := make([]byte, size+align)
	b := &block{raw: raw, size: size}
	p.blocks = append(p.blocks, b)
	return b
}

// Free marks the block that produced buf as free again. buf must be a
// slice previously returned by Alloc on this pool.
func (p *Pool) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, b := range p.blocks {
		if b.inUse && sameBacking(b.raw, buf) {
			b.inUse = false
			b.lastUsed = time.Now()
			p.currentAlloc -= int64(b.size)
			p.freeCount++
			break
		}
	}

	if p.freeRatioLocked() >= p.releaseThreshold {
		p.releaseUnusedLocked()
	}
}

func (p *Pool) freeRatioLocked() float64 {
	var total, free int
	for _, b := range p.blocks {
		total += b.size
		if !b.inUse {
			free += b.size
		}
	}
	if total == 0 {
		return 0
	}
	return float64(free) / float64(total)
}

// ReleaseUnused drops all free blocks, returning their memory to the
// Go runtime's garbage collector.
func (p *Pool) ReleaseUnused() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseUnusedLocked()
}

func (p *Pool) releaseUnusedLocked() {
	kept := p.blocks[:0]
	for _, b := range p.blocks {
		if b.inUse {
			kept = append(kept, b)
		}
	}
	p.blocks = kept
}

// Defragment releases free blocks older than maxAge. A maxAge of 0
// releases all free blocks immediately.
func (p *Pool) Defragment(maxAge time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defragmentLocked(maxAge)
}

func (p *Pool) defragmentLocked(maxAge time.Duration) {
	now := time.Now()
	kept := p.blocks[:0]
	for _, b := range p.blocks {
		if b.inUse || now.Sub(b.lastUsed) < maxAge {
			kept = append(kept, b)
			continue
		}
	}
	p.blocks = kept
}

// Stats returns a snapshot of allocator statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		CurrentAllocated: p.currentAlloc,
		PeakAllocated:    p.peakAlloc,
		AllocCount:       p.allocCount,
		FreeCount:        p.freeCount,
	}
}

// fitsAligned reports whether raw contains a size-byte region starting
// at an address aligned to align.
func fitsAligned(raw []byte, align, size int) bool {
	if len(raw) == 0 {
		return size == 0
	}
	base := uintptrOf(raw)
	aligned := alignUp(base, align)
	offset := aligned - base
	return int(offset)+size <= len(raw)
}

// alignedView returns the aligned sub-slice of raw of exactly size
// bytes. It panics if raw does not contain such a region; callers must
// only invoke it on blocks that passed fitsAligned.
func alignedView(raw []byte, align, size int) []byte {
	base := uintptrOf(raw)
	aligned := alignUp(base, align)
	offset := int(aligned - base)
	return raw[offset : offset+size]
}

// sameBacking reports whether two slices share the same backing array
// start, used to match a Free call back to its block.
func sameBacking(raw, view []byte) bool {
	if len(raw) == 0 || len(view) == 0 {
		return len(raw) == len(view)
	}
	rawBase := uintptrOf(raw)
	viewBase := uintptrOf(view)
	return viewBase >= rawBase && viewBase+uintptr(len(view)) <= rawBase+uintptr(len(raw))
}
