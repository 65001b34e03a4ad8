// Package mempool provides user-space memory pool allocation.
// A pool binds one large contiguous region obtained from the system at
// open time and sub-allocates variable-size chunks out of it, tracking
// free segments ("gaps") in a dual representation: an address-ordered
// doubly-linked segment list and a size-sorted gap index. Freed chunks
// coalesce with free neighbors and are served again from the gap index.
//
// Pools ARE NOT THREAD SAFE. Every pool operation runs to completion
// between returns; callers needing concurrent access wrap a pool in
// external mutual exclusion at the handle granularity. The Store is the
// only process-wide state and carries its own lock.
package mempool

import (
	"errors"

	"go.uber.org/zap"
)

// Policy selects the placement strategy for a pool. The policy is fixed
// at open time.
type Policy int

const (
	// FirstFit returns the lowest-address sufficient gap, found by
	// walking the segment list in address order.
	FirstFit Policy = iota
	// BestFit returns the smallest sufficient gap, found in the
	// size-sorted gap index; among equal sizes the lowest address wins.
	BestFit
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case FirstFit:
		return "first-fit"
	case BestFit:
		return "best-fit"
	default:
		return "unknown"
	}
}

// Tunables for the supporting arrays. Each array starts at its initial
// capacity and doubles whenever the load factor would exceed the fill
// factor after an insertion.
const (
	fillFactor   = 0.75
	expandFactor = 2

	defaultStoreCapacity       = 20
	defaultSegmentHeapCapacity = 40
	defaultGapIndexCapacity    = 40
)

// Error values returned by pool and store operations.
var (
	// ErrCalledAgain reports a lifecycle operation issued out of order,
	// such as initializing the default store twice.
	ErrCalledAgain = errors.New("mempool: lifecycle call out of order")
	// ErrNotFreed reports a teardown or close attempted while live
	// allocations or unmerged gaps remain.
	ErrNotFreed = errors.New("mempool: live state remains")
	// ErrNotFound reports a free of an address that is not the base of
	// a live allocation in the pool.
	ErrNotFound = errors.New("mempool: address is not a live allocation")
	// ErrInvalidSize reports a zero-size pool or allocation request.
	ErrInvalidSize = errors.New("mempool: size must be greater than zero")
	// ErrInvalidPolicy reports an unknown placement policy.
	ErrInvalidPolicy = errors.New("mempool: unknown placement policy")
	// ErrStoreUninitialized reports an operation on a store that has
	// not been initialized or has been torn down.
	ErrStoreUninitialized = errors.New("mempool: store not initialized")
	// ErrPoolClosed reports an operation on a closed pool.
	ErrPoolClosed = errors.New("mempool: pool is closed")
)

// Config holds store and pool construction parameters.
type Config struct {
	StoreCapacity       int
	SegmentHeapCapacity int
	GapIndexCapacity    int
	// UseMmap selects anonymous private mmap for pool regions on
	// platforms that support it. When false, regions are plain heap
	// slices.
	UseMmap bool
	Logger  *zap.Logger
}

// Option configures a Store.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		StoreCapacity:       defaultStoreCapacity,
		SegmentHeapCapacity: defaultSegmentHeapCapacity,
		GapIndexCapacity:    defaultGapIndexCapacity,
		UseMmap:             true,
		Logger:              zap.NewNop(),
	}
}

// WithLogger installs a logger for store and pool lifecycle events.
// The default is a nop logger. Alloc and Free log only when they grow
// the segment heap or gap index.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMmap enables or disables mmap-backed regions.
func WithMmap(enabled bool) Option {
	return func(c *Config) { c.UseMmap = enabled }
}

// WithStoreCapacity sets the initial pool-slot capacity of the store.
func WithStoreCapacity(n int) Option {
	return func(c *Config) { c.StoreCapacity = n }
}

// WithSegmentHeapCapacity sets the initial segment heap capacity of
// pools opened through the store.
func WithSegmentHeapCapacity(n int) Option {
	return func(c *Config) { c.SegmentHeapCapacity = n }
}

// WithGapIndexCapacity sets the initial gap index capacity of pools
// opened through the store.
func WithGapIndexCapacity(n int) Option {
	return func(c *Config) { c.GapIndexCapacity = n }
}

func (c *Config) validate() error {
	if c.StoreCapacity <= 0 || c.SegmentHeapCapacity <= 0 || c.GapIndexCapacity <= 0 {
		return errors.New("mempool: capacities must be greater than zero")
	}
	if c.Logger == nil {
		return errors.New("mempool: logger must not be nil")
	}
	return nil
}
