//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package mempool

import "errors"

const mmapSupported = false

func mmapRegion(size uintptr) ([]byte, error) {
	return nil, errors.New("mempool: mmap not supported on this platform")
}

func munmapRegion(data []byte) error {
	return nil
}
