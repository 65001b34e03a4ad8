package mempool

import (
	"errors"
	"testing"
)

// TestDefaultStoreLifecycle drives the package-level init/teardown
// sequence, including the out-of-order calls.
func TestDefaultStoreLifecycle(t *testing.T) {
	if _, err := OpenPool(100, FirstFit); !errors.Is(err, ErrStoreUninitialized) {
		t.Fatalf("OpenPool before Init returned %v, want ErrStoreUninitialized", err)
	}
	if err := Teardown(); !errors.Is(err, ErrCalledAgain) {
		t.Fatalf("Teardown before Init returned %v, want ErrCalledAgain", err)
	}

	if err := Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := Init(); !errors.Is(err, ErrCalledAgain) {
		t.Fatalf("second Init returned %v, want ErrCalledAgain", err)
	}

	p, err := OpenPool(1000, BestFit)
	if err != nil {
		t.Fatalf("OpenPool failed: %v", err)
	}
	if err := Teardown(); !errors.Is(err, ErrNotFreed) {
		t.Fatalf("Teardown with a live pool returned %v, want ErrNotFreed", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := Teardown(); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}

	// The cycle restarts cleanly.
	if err := Init(); err != nil {
		t.Fatalf("re-Init failed: %v", err)
	}
	if err := Teardown(); err != nil {
		t.Fatalf("final Teardown failed: %v", err)
	}
}

// TestStoreGrowth opens more pools than the initial store capacity and
// checks every handle stays usable.
func TestStoreGrowth(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	const n = defaultStoreCapacity + 10
	pools := make([]*Pool, n)
	for i := range pools {
		pools[i], err = s.OpenPool(4096, FirstFit)
		if err != nil {
			t.Fatalf("OpenPool %d failed: %v", i, err)
		}
	}
	if got := s.PoolCount(); got != n {
		t.Fatalf("PoolCount is %d, want %d", got, n)
	}

	// Handles from before the growth still allocate.
	for i, p := range pools {
		ptr := p.Alloc(64)
		if ptr == nil {
			t.Fatalf("pool %d refused an allocation after store growth", i)
		}
		if err := p.Free(ptr); err != nil {
			t.Fatalf("pool %d Free failed: %v", i, err)
		}
	}

	for _, p := range pools {
		if err := p.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}
	if got := s.PoolCount(); got != 0 {
		t.Fatalf("PoolCount after closing all is %d, want 0", got)
	}
	if err := s.Teardown(); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}
	if err := s.Teardown(); !errors.Is(err, ErrCalledAgain) {
		t.Fatalf("second Teardown returned %v, want ErrCalledAgain", err)
	}
	if _, err := s.OpenPool(100, FirstFit); !errors.Is(err, ErrStoreUninitialized) {
		t.Fatalf("OpenPool after Teardown returned %v, want ErrStoreUninitialized", err)
	}
}

// TestOpenPoolValidation covers the argument checks.
func TestOpenPoolValidation(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if _, err := s.OpenPool(0, FirstFit); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("zero size returned %v, want ErrInvalidSize", err)
	}
	if _, err := s.OpenPool(100, Policy(42)); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("bad policy returned %v, want ErrInvalidPolicy", err)
	}
	if s.PoolCount() != 0 {
		t.Fatal("failed opens must not register pools")
	}
}

// TestStoreOptions checks option plumbing and validation.
func TestStoreOptions(t *testing.T) {
	t.Run("CustomCapacities", func(t *testing.T) {
		s, err := NewStore(
			WithStoreCapacity(4),
			WithSegmentHeapCapacity(8),
			WithGapIndexCapacity(8),
			WithMmap(false),
		)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		p, err := s.OpenPool(1024, BestFit)
		if err != nil {
			t.Fatalf("OpenPool failed: %v", err)
		}
		if len(p.segs) != 8 || len(p.gaps) != 8 {
			t.Fatalf("pool arrays sized %d/%d, want 8/8", len(p.segs), len(p.gaps))
		}
		if p.region.mmapped {
			t.Fatal("WithMmap(false) still produced a mapped region")
		}
	})

	t.Run("InvalidCapacity", func(t *testing.T) {
		if _, err := NewStore(WithStoreCapacity(0)); err == nil {
			t.Fatal("zero store capacity should be rejected")
		}
	})

	t.Run("NilLogger", func(t *testing.T) {
		if _, err := NewStore(WithLogger(nil)); err == nil {
			t.Fatal("nil logger should be rejected")
		}
	})
}

// TestPoolsAreIndependent interleaves operations on two pools and
// checks neither sees the other's addresses.
func TestPoolsAreIndependent(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	p1, err := s.OpenPool(1000, FirstFit)
	if err != nil {
		t.Fatalf("OpenPool failed: %v", err)
	}
	p2, err := s.OpenPool(1000, BestFit)
	if err != nil {
		t.Fatalf("OpenPool failed: %v", err)
	}

	a := mustAlloc(t, p1, 100)
	b := mustAlloc(t, p2, 100)

	if err := p1.Free(b); !errors.Is(err, ErrNotFound) {
		t.Fatalf("freeing p2's address in p1 returned %v, want ErrNotFound", err)
	}
	if err := p2.Free(a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("freeing p1's address in p2 returned %v, want ErrNotFound", err)
	}
	if err := p1.Free(a); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if err := p2.Free(b); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	verifyPool(t, p1)
	verifyPool(t, p2)
}
