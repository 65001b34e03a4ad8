package mempool

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"
)

// Pool is one managed memory pool. It exclusively owns its backing
// region, its segment heap, and its gap index. A Pool is not safe for
// concurrent use.
type Pool struct {
	store  *Store
	logger *zap.Logger
	region *region
	policy Policy

	totalSize uintptr
	allocSize uintptr
	numAllocs int

	segs     []segment
	usedSegs int
	head     int32

	gaps    []gapEntry
	numGaps int

	closed bool
}

// SegmentInfo describes one live segment for Inspect.
type SegmentInfo struct {
	Size      uintptr
	Allocated bool
}

// PoolStats is a point-in-time snapshot of pool occupancy.
type PoolStats struct {
	TotalSize  uintptr
	AllocSize  uintptr
	NumAllocs  int
	NumGaps    int
	LargestGap uintptr
	// Fragmentation is 1 minus the largest gap's share of total free
	// space: 0 when free space is one gap (or none), approaching 1 as
	// free space shatters.
	Fragmentation float64
}

// newPool binds a freshly acquired region to its bookkeeping
// structures: one whole-pool free segment and one gap index entry.
func newPool(store *Store, cfg *Config, reg *region, size uintptr, policy Policy) *Pool {
	p := &Pool{
		store:     store,
		logger:    cfg.Logger,
		region:    reg,
		policy:    policy,
		totalSize: size,
	}
	p.initSegments(cfg.SegmentHeapCapacity, size)
	p.gaps = make([]gapEntry, cfg.GapIndexCapacity)
	p.addGap(size, p.head)
	return p
}

// Alloc carves size bytes out of the pool and returns the chunk's base
// address, or nil when size is zero, the pool is closed, or no
// sufficient gap exists. nil is the expected out-of-memory signal;
// callers must check.
func (p *Pool) Alloc(size uintptr) unsafe.Pointer {
	if p.closed || size == 0 {
		return nil
	}
	at := nilSeg
	switch p.policy {
	case FirstFit:
		at = p.findFirstFit(size)
	case BestFit:
		// Sorted by (size, offset): the first sufficient entry is the
		// smallest gap, lowest address among equals.
		for i := 0; i < p.numGaps; i++ {
			if p.gaps[i].size >= size {
				at = p.gaps[i].seg
				break
			}
		}
	}
	if at == nilSeg {
		return nil
	}

	p.mustRemoveGap(at)
	residual := p.splitSegment(at, size)
	if residual != nilSeg {
		p.addGap(p.segs[residual].size, residual)
	}
	p.numAllocs++
	p.allocSize += size
	return unsafe.Add(p.region.base(), p.segs[at].off)
}

// Free returns the chunk based at ptr to the pool. The freed segment
// absorbs a free successor first, then is absorbed by a free
// predecessor, and the merged result re-enters the gap index; between
// calls no two adjacent segments are both free. Freeing an address
// that is not the base of a live allocation (including a second free
// of the same address) returns ErrNotFound.
func (p *Pool) Free(ptr unsafe.Pointer) error {
	if p.closed {
		return ErrPoolClosed
	}
	if ptr == nil || !p.region.contains(ptr) {
		return fmt.Errorf("mempool: free %p: %w", ptr, ErrNotFound)
	}
	off := uintptr(ptr) - uintptr(p.region.base())
	at := p.findAllocated(off)
	if at == nilSeg {
		return fmt.Errorf("mempool: free offset %#x: %w", off, ErrNotFound)
	}

	p.segs[at].allocated = false
	p.numAllocs--
	p.allocSize -= p.segs[at].size

	// Merge order matters: absorbing the successor first leaves the
	// original predecessor in place for the second step.
	if next := p.segs[at].next; next != nilSeg && p.isGap(next) {
		p.mustRemoveGap(next)
		p.mergeWithNext(at)
	}
	result := at
	if prev := p.segs[at].prev; prev != nilSeg && p.isGap(prev) {
		p.mustRemoveGap(prev)
		result = p.mergeWithPrev(at)
	}
	p.addGap(p.segs[result].size, result)
	return nil
}

// Inspect walks the segment list in address order and reports each
// live segment's size and allocation state. Read-only.
func (p *Pool) Inspect() []SegmentInfo {
	if p.closed {
		return nil
	}
	segs := make([]SegmentInfo, 0, p.usedSegs)
	for i := p.head; i != nilSeg; i = p.segs[i].next {
		segs = append(segs, SegmentInfo{
			Size:      p.segs[i].size,
			Allocated: p.segs[i].allocated,
		})
	}
	return segs
}

// Close releases the pool's region and bookkeeping and unregisters it
// from its store. It refuses with ErrNotFreed unless every allocation
// has been freed and the gaps have coalesced back into one.
func (p *Pool) Close() error {
	if p.closed {
		return ErrPoolClosed
	}
	if p.numAllocs > 0 || p.allocSize > 0 || p.numGaps > 1 {
		return ErrNotFreed
	}
	err := p.region.release()
	p.segs = nil
	p.gaps = nil
	p.numGaps = 0
	p.usedSegs = 0
	p.closed = true
	if p.store != nil {
		p.store.unregister(p)
	}
	p.logger.Debug("pool closed", zap.Uintptr("size", p.totalSize))
	if err != nil {
		return fmt.Errorf("mempool: region release: %w", err)
	}
	return nil
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() PoolStats {
	s := PoolStats{
		TotalSize:  p.totalSize,
		AllocSize:  p.allocSize,
		NumAllocs:  p.numAllocs,
		NumGaps:    p.numGaps,
		LargestGap: p.LargestGap(),
	}
	if free := p.totalSize - p.allocSize; free > 0 && p.numGaps > 1 {
		s.Fragmentation = 1 - float64(s.LargestGap)/float64(free)
	}
	return s
}

// Available returns the total free space in the pool. It may be spread
// across several gaps; a single allocation of this size can still fail.
func (p *Pool) Available() uintptr {
	if p.closed {
		return 0
	}
	return p.totalSize - p.allocSize
}

// LargestGap returns the size of the largest single gap, the upper
// bound on what Alloc can satisfy.
func (p *Pool) LargestGap() uintptr {
	if p.closed || p.numGaps == 0 {
		return 0
	}
	return p.gaps[p.numGaps-1].size
}

// TotalSize returns the pool's region size.
func (p *Pool) TotalSize() uintptr { return p.totalSize }

// Policy returns the pool's placement policy.
func (p *Pool) Policy() Policy { return p.policy }
