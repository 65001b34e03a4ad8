package mempool

import (
	"fmt"
	"math"
	"unsafe"
)

// region is the contiguous backing memory of one pool. It is acquired
// once at open time and returned to the system only at close; nothing
// in between touches the system allocator.
type region struct {
	data    []byte
	size    uintptr
	mmapped bool
}

// openRegion acquires size bytes of backing memory. With useMmap set on
// a supported platform the region is an anonymous private mapping and a
// refused mapping is a failure; otherwise the region is a heap slice.
func openRegion(size uintptr, useMmap bool) (*region, error) {
	if size == 0 {
		return nil, ErrInvalidSize
	}
	if size > math.MaxInt {
		return nil, fmt.Errorf("mempool: region size %d overflows int", size)
	}
	if useMmap && mmapSupported {
		data, err := mmapRegion(size)
		if err != nil {
			return nil, fmt.Errorf("mempool: mmap of %d bytes refused: %w", size, err)
		}
		return &region{data: data, size: size, mmapped: true}, nil
	}
	return &region{data: make([]byte, size), size: size}, nil
}

// base returns the address of the first byte of the region.
func (r *region) base() unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(r.data))
}

// contains reports whether ptr lies within the region.
func (r *region) contains(ptr unsafe.Pointer) bool {
	off := uintptr(ptr) - uintptr(r.base())
	return off < r.size
}

// release returns the region to the system. The region must not be used
// afterwards.
func (r *region) release() error {
	if r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	if r.mmapped {
		return munmapRegion(data)
	}
	return nil
}
