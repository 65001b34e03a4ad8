package mempool

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Store is a flat registry of pool handles. It owns the set of pools
// but never reaches into their bookkeeping. Slots are append-only:
// closing a pool leaves a nil hole and new pools always take fresh
// slots, so outstanding handles stay stable across growth.
type Store struct {
	mu     sync.Mutex
	cfg    *Config
	logger *zap.Logger
	pools  []*Pool
	size   int // high-water slot count, never decremented
	down   bool
}

// NewStore creates an initialized store.
func NewStore(opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Store{
		cfg:    cfg,
		logger: cfg.Logger,
		pools:  make([]*Pool, cfg.StoreCapacity),
	}, nil
}

// OpenPool acquires a region of size bytes and binds it to a new pool
// with the given placement policy. On any mid-way failure all partial
// state is released.
func (s *Store) OpenPool(size uintptr, policy Policy) (*Pool, error) {
	if policy != FirstFit && policy != BestFit {
		return nil, ErrInvalidPolicy
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, ErrStoreUninitialized
	}

	reg, err := openRegion(size, s.cfg.UseMmap)
	if err != nil {
		return nil, err
	}
	p := newPool(s, s.cfg, reg, size, policy)
	s.register(p)
	s.logger.Debug("pool opened",
		zap.Uintptr("size", size), zap.Stringer("policy", policy))
	return p, nil
}

// Teardown releases the store. It refuses with ErrNotFreed while any
// pool is live and with ErrCalledAgain once already torn down.
func (s *Store) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return ErrCalledAgain
	}
	for _, p := range s.pools {
		if p != nil {
			return ErrNotFreed
		}
	}
	s.pools = nil
	s.size = 0
	s.down = true
	return nil
}

// PoolCount returns the number of live pools.
func (s *Store) PoolCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.pools {
		if p != nil {
			n++
		}
	}
	return n
}

// register takes the next fresh slot, growing first when the load
// factor would exceed the fill factor. Caller holds s.mu.
func (s *Store) register(p *Pool) {
	if float64(s.size+1) > fillFactor*float64(len(s.pools)) {
		grown := make([]*Pool, len(s.pools)*expandFactor)
		copy(grown, s.pools)
		s.logger.Debug("pool store grown",
			zap.Int("from", len(s.pools)), zap.Int("to", len(grown)))
		s.pools = grown
	}
	s.pools[s.size] = p
	s.size++
}

// unregister nils the slot holding p.
func (s *Store) unregister(p *Pool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, q := range s.pools {
		if q == p {
			s.pools[i] = nil
			return
		}
	}
}

// Default store. Library users that do not need multiple registries
// drive the package-level lifecycle instead of holding a Store.
var (
	defaultMu    sync.Mutex
	defaultStore *Store
)

// Init initializes the default store. A second call without an
// intervening Teardown returns ErrCalledAgain.
func Init(opts ...Option) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStore != nil {
		return ErrCalledAgain
	}
	s, err := NewStore(opts...)
	if err != nil {
		return fmt.Errorf("mempool: init: %w", err)
	}
	defaultStore = s
	return nil
}

// Teardown tears down the default store. It fails with ErrNotFreed
// while any pool is live and with ErrCalledAgain when not initialized.
func Teardown() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStore == nil {
		return ErrCalledAgain
	}
	if err := defaultStore.Teardown(); err != nil {
		return err
	}
	defaultStore = nil
	return nil
}

// OpenPool opens a pool in the default store.
func OpenPool(size uintptr, policy Policy) (*Pool, error) {
	defaultMu.Lock()
	s := defaultStore
	defaultMu.Unlock()
	if s == nil {
		return nil, ErrStoreUninitialized
	}
	return s.OpenPool(size, policy)
}
