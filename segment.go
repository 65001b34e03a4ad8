package mempool

import "go.uber.org/zap"

// nilSeg marks the absence of a segment reference: an unlinked list end
// or a failed lookup.
const nilSeg int32 = -1

// segment is one contiguous slice of a pool, either allocated or free
// ("gap"). Segments live in a preallocated heap and reference each
// other by slot index, never by pointer: indices stay valid when the
// heap grows.
type segment struct {
	off       uintptr // offset from the pool base
	size      uintptr
	used      bool // slot is live; unused slots are reusable
	allocated bool
	prev      int32
	next      int32
}

// initSegments installs the segment heap with a single free segment
// spanning the whole pool.
func (p *Pool) initSegments(capacity int, poolSize uintptr) {
	p.segs = make([]segment, capacity)
	for i := range p.segs {
		p.segs[i].prev = nilSeg
		p.segs[i].next = nilSeg
	}
	p.segs[0] = segment{
		off:       0,
		size:      poolSize,
		used:      true,
		allocated: false,
		prev:      nilSeg,
		next:      nilSeg,
	}
	p.head = 0
	p.usedSegs = 1
}

// growSegments doubles the heap. Outstanding slot indices survive.
func (p *Pool) growSegments() {
	grown := make([]segment, len(p.segs)*expandFactor)
	copy(grown, p.segs)
	for i := len(p.segs); i < len(grown); i++ {
		grown[i].prev = nilSeg
		grown[i].next = nilSeg
	}
	p.logger.Debug("segment heap grown",
		zap.Int("from", len(p.segs)), zap.Int("to", len(grown)))
	p.segs = grown
}

// grabSegment returns the index of an unused slot, growing the heap
// first when the load factor would exceed the fill factor. The caller
// initializes the slot.
func (p *Pool) grabSegment() int32 {
	if float64(p.usedSegs+1) > fillFactor*float64(len(p.segs)) {
		p.growSegments()
	}
	for i := range p.segs {
		if !p.segs[i].used {
			return int32(i)
		}
	}
	// Growth above guarantees a free slot.
	panic("mempool: segment heap exhausted after growth")
}

// releaseSegment marks a slot unused and unlinks it.
func (p *Pool) releaseSegment(i int32) {
	p.segs[i] = segment{prev: nilSeg, next: nilSeg}
	p.usedSegs--
}

// splitSegment converts the free segment at into an allocated head of
// headSize bytes. When headSize is smaller than the segment, the
// remainder becomes a new free segment linked immediately after the
// head and its index is returned; an exact fit returns nilSeg.
func (p *Pool) splitSegment(at int32, headSize uintptr) int32 {
	remaining := p.segs[at].size - headSize
	residual := nilSeg
	if remaining > 0 {
		// Grab before taking references: grabSegment may grow the heap.
		residual = p.grabSegment()
	}
	head := &p.segs[at]
	head.size = headSize
	head.allocated = true
	if residual == nilSeg {
		return nilSeg
	}
	r := &p.segs[residual]
	r.used = true
	r.allocated = false
	r.off = head.off + headSize
	r.size = remaining
	r.next = head.next
	if head.next != nilSeg {
		p.segs[head.next].prev = residual
	}
	r.prev = at
	head.next = residual
	p.usedSegs++
	return residual
}

// mergeWithNext absorbs the successor of at into at. Both must be free.
func (p *Pool) mergeWithNext(at int32) {
	next := p.segs[at].next
	p.segs[at].size += p.segs[next].size
	after := p.segs[next].next
	p.segs[at].next = after
	if after != nilSeg {
		p.segs[after].prev = at
	}
	p.releaseSegment(next)
}

// mergeWithPrev absorbs at into its predecessor and returns the
// predecessor's index. Both must be free.
func (p *Pool) mergeWithPrev(at int32) int32 {
	prev := p.segs[at].prev
	p.segs[prev].size += p.segs[at].size
	after := p.segs[at].next
	p.segs[prev].next = after
	if after != nilSeg {
		p.segs[after].prev = prev
	}
	p.releaseSegment(at)
	return prev
}

// findFirstFit walks the list from the head and returns the first free
// segment of at least min bytes, or nilSeg.
func (p *Pool) findFirstFit(min uintptr) int32 {
	for i := p.head; i != nilSeg; i = p.segs[i].next {
		if !p.segs[i].allocated && p.segs[i].size >= min {
			return i
		}
	}
	return nilSeg
}

// findAllocated scans the slot heap for the live allocation whose base
// offset equals off, or nilSeg.
func (p *Pool) findAllocated(off uintptr) int32 {
	for i := range p.segs {
		if p.segs[i].used && p.segs[i].allocated && p.segs[i].off == off {
			return int32(i)
		}
	}
	return nilSeg
}

// isGap reports whether slot i holds a live free segment.
func (p *Pool) isGap(i int32) bool {
	return p.segs[i].used && !p.segs[i].allocated
}
