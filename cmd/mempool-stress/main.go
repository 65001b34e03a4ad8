// Command mempool-stress drives a pool with a randomized alloc/free
// workload and reports occupancy and fragmentation, exercising the
// full library surface from the command line.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"unsafe"

	"github.com/orizon-lang/mempool"
)

func main() {
	var (
		poolSize = flag.Uint64("size", 1<<20, "pool size in bytes")
		ops      = flag.Int("ops", 100000, "number of workload operations")
		maxAlloc = flag.Int("max-alloc", 4096, "largest single allocation in bytes")
		policy   = flag.String("policy", "best-fit", "placement policy: first-fit or best-fit")
		seed     = flag.Int64("seed", 1, "workload random seed")
		segments = flag.Bool("segments", false, "dump the final segment map")
	)
	flag.Parse()

	var pol mempool.Policy
	switch *policy {
	case "first-fit":
		pol = mempool.FirstFit
	case "best-fit":
		pol = mempool.BestFit
	default:
		fmt.Fprintf(os.Stderr, "unknown policy %q\n", *policy)
		os.Exit(2)
	}

	if err := mempool.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	pool, err := mempool.OpenPool(uintptr(*poolSize), pol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open pool: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	var live []unsafe.Pointer
	allocFailures := 0
	for i := 0; i < *ops; i++ {
		if len(live) == 0 || rng.Intn(100) < 55 {
			size := uintptr(rng.Intn(*maxAlloc) + 1)
			if ptr := pool.Alloc(size); ptr != nil {
				live = append(live, ptr)
			} else {
				allocFailures++
			}
		} else {
			j := rng.Intn(len(live))
			if err := pool.Free(live[j]); err != nil {
				fmt.Fprintf(os.Stderr, "free: %v\n", err)
				os.Exit(1)
			}
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
		}
	}

	stats := pool.Stats()
	fmt.Printf("policy:          %s\n", pool.Policy())
	fmt.Printf("pool size:       %d\n", stats.TotalSize)
	fmt.Printf("allocated:       %d bytes in %d chunks\n", stats.AllocSize, stats.NumAllocs)
	fmt.Printf("gaps:            %d (largest %d)\n", stats.NumGaps, stats.LargestGap)
	fmt.Printf("fragmentation:   %.4f\n", stats.Fragmentation)
	fmt.Printf("alloc failures:  %d\n", allocFailures)

	if *segments {
		for i, seg := range pool.Inspect() {
			state := "gap"
			if seg.Allocated {
				state = "alloc"
			}
			fmt.Printf("segment %4d: %8d bytes  %s\n", i, seg.Size, state)
		}
	}

	for _, ptr := range live {
		if err := pool.Free(ptr); err != nil {
			fmt.Fprintf(os.Stderr, "final free: %v\n", err)
			os.Exit(1)
		}
	}
	if err := pool.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close: %v\n", err)
		os.Exit(1)
	}
	if err := mempool.Teardown(); err != nil {
		fmt.Fprintf(os.Stderr, "teardown: %v\n", err)
		os.Exit(1)
	}
}
