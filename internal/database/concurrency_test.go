package database

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// keyFor derives a fixed-width key from an integer id, since the serial
// queue's Database only accepts KeySize-wide keys, unlike a string map.
func keyFor(id int) []byte {
	k := make([]byte, 16)
	copy(k, strconv.Itoa(id))
	return k
}

// TestConcurrentCallersStress drives many goroutines at one Database
// concurrently to exercise the single serial queue under contention: every
// Put/Get/Remove blocks its caller until the queue goroutine actually runs
// it, so nothing here should race or deadlock no matter how many callers
// pile up.
func TestConcurrentCallersStress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	const (
		callers      = 2_000
		opsPerCaller = 50
		keySpace     = 5_000
		readPercent  = 70
		writePercent = 20
	)

	db, _ := openTest(t, Options{MaxBundledRecords: 64, WriteBundleDelay: 50 * time.Millisecond})

	for i := 0; i < keySpace; i++ {
		if err := db.Put(keyFor(i), []byte("seed:"+strconv.Itoa(i)), 0); err != nil {
			t.Fatal(err)
		}
	}

	var (
		totalPuts    atomic.Int64
		totalGets    atomic.Int64
		totalRemoves atomic.Int64
		totalHits    atomic.Int64
		totalMisses  atomic.Int64
		totalPutErrs atomic.Int64
	)

	var wg sync.WaitGroup
	wg.Add(callers)

	start := time.Now()

	for c := 0; c < callers; c++ {
		go func(callerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(callerID)))

			for op := 0; op < opsPerCaller; op++ {
				id := rng.Intn(keySpace)
				roll := rng.Intn(100)

				switch {
				case roll < readPercent:
					_, ok, err := db.Get(keyFor(id))
					totalGets.Add(1)
					if err != nil {
						t.Errorf("Get: %v", err)
						return
					}
					if ok {
						totalHits.Add(1)
					} else {
						totalMisses.Add(1)
					}

				case roll < readPercent+writePercent:
					err := db.Put(keyFor(id), []byte("updated:"+strconv.Itoa(callerID)), uint8(callerID%8))
					totalPuts.Add(1)
					if err != nil {
						totalPutErrs.Add(1)
					}

				default:
					if err := db.Remove(keyFor(id)); err != nil {
						t.Errorf("Remove: %v", err)
						return
					}
					totalRemoves.Add(1)
				}
			}
		}(c)
	}

	wg.Wait()
	elapsed := time.Since(start)

	puts := totalPuts.Load()
	gets := totalGets.Load()
	removes := totalRemoves.Load()
	hits := totalHits.Load()
	misses := totalMisses.Load()
	putErrs := totalPutErrs.Load()
	totalOps := puts + gets + removes

	if putErrs != 0 {
		t.Fatalf("unexpected Put errors: %d", putErrs)
	}
	if hits+misses != gets {
		t.Fatalf("hits+misses = %d, want %d (total gets)", hits+misses, gets)
	}

	fmt.Printf("concurrent callers: %d, ops/caller: %d, total ops: %d, elapsed: %v, throughput: %.0f ops/sec\n",
		callers, opsPerCaller, totalOps, elapsed.Round(time.Millisecond), float64(totalOps)/elapsed.Seconds())
	fmt.Printf("gets: %d (hits %d, misses %d), puts: %d, removes: %d\n", gets, hits, misses, puts, removes)
}

// TestConcurrentCallersBurst starts every goroutine at once via a
// WaitGroup gate, stressing the queue's channel buffer under a thundering
// herd rather than a steady trickle.
func TestConcurrentCallersBurst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	const (
		callers  = 2_000
		keySpace = 2_000
	)

	db, _ := openTest(t, Options{MaxBundledRecords: 64})

	var (
		ready   sync.WaitGroup
		goSig   sync.WaitGroup
		done    sync.WaitGroup
		putErrs atomic.Int64
	)

	ready.Add(callers)
	goSig.Add(1)
	done.Add(callers)

	for c := 0; c < callers; c++ {
		go func(id int) {
			defer done.Done()
			key := keyFor(id % keySpace)

			ready.Done()
			goSig.Wait()

			if err := db.Put(key, []byte("burst:"+strconv.Itoa(id)), 0); err != nil {
				putErrs.Add(1)
				return
			}
			if _, _, err := db.Get(key); err != nil {
				putErrs.Add(1)
				return
			}
			if id%5 == 0 {
				if err := db.Remove(key); err != nil {
					putErrs.Add(1)
				}
			}
		}(c)
	}

	ready.Wait()
	start := time.Now()
	goSig.Done()
	done.Wait()
	elapsed := time.Since(start)

	if n := putErrs.Load(); n != 0 {
		t.Fatalf("unexpected errors during burst: %d", n)
	}
	fmt.Printf("burst: %d callers, elapsed %v\n", callers, elapsed.Round(time.Millisecond))
}
