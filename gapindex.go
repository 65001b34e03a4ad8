package mempool

import (
	"fmt"

	"go.uber.org/zap"
)

// gapEntry is one gap index record. The index holds exactly one entry
// per free segment, sorted by size ascending with segment offset
// ascending as the tiebreaker, so the first sufficient entry is the
// deterministic best fit.
type gapEntry struct {
	size uintptr
	seg  int32
}

// gapLess orders entries by (size, offset). Offsets rather than slot
// indices keep best-fit choices reproducible across heap growth.
func (p *Pool) gapLess(a, b gapEntry) bool {
	if a.size != b.size {
		return a.size < b.size
	}
	return p.segs[a.seg].off < p.segs[b.seg].off
}

// growGapIndex doubles the index array.
func (p *Pool) growGapIndex() {
	grown := make([]gapEntry, len(p.gaps)*expandFactor)
	copy(grown, p.gaps)
	p.logger.Debug("gap index grown",
		zap.Int("from", len(p.gaps)), zap.Int("to", len(grown)))
	p.gaps = grown
}

// addGap appends an entry for the free segment at and bubbles it
// leftward past every strictly greater predecessor.
func (p *Pool) addGap(size uintptr, at int32) {
	if float64(p.numGaps+1) > fillFactor*float64(len(p.gaps)) {
		p.growGapIndex()
	}
	p.gaps[p.numGaps] = gapEntry{size: size, seg: at}
	p.numGaps++
	for i := p.numGaps - 1; i > 0; i-- {
		if !p.gapLess(p.gaps[i], p.gaps[i-1]) {
			break
		}
		p.gaps[i], p.gaps[i-1] = p.gaps[i-1], p.gaps[i]
	}
}

// removeGap deletes the entry referencing segment at, shifting the
// tail down one position and zeroing the vacated slot. A miss is an
// invariant violation reported to the caller.
func (p *Pool) removeGap(at int32) error {
	pos := -1
	for i := 0; i < p.numGaps; i++ {
		if p.gaps[i].seg == at {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("mempool: gap index has no entry for segment %d", at)
	}
	copy(p.gaps[pos:p.numGaps-1], p.gaps[pos+1:p.numGaps])
	p.numGaps--
	p.gaps[p.numGaps] = gapEntry{}
	return nil
}

// mustRemoveGap removes an entry that is known to exist. A miss means
// the two pool views have diverged; state must not be corrupted
// silently, so this terminates.
func (p *Pool) mustRemoveGap(at int32) {
	if err := p.removeGap(at); err != nil {
		p.logger.Error("gap index out of sync", zap.Error(err))
		panic(err)
	}
}
