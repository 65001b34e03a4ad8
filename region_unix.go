//go:build linux || darwin || freebsd || netbsd || openbsd

package mempool

import "golang.org/x/sys/unix"

const mmapSupported = true

// mmapRegion maps size bytes of anonymous private memory.
func mmapRegion(size uintptr) ([]byte, error) {
	return unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
}

// munmapRegion unmaps a region obtained from mmapRegion.
func munmapRegion(data []byte) error {
	return unix.Munmap(data)
}
