package eviction

import (
	"testing"

	"cachedb/internal/index"
)

func put(ix *index.Index, key string, size int32, useTime uint64) {
	ix.Put(index.NewKey([]byte(key)), index.Entry{Size: size, UseTime: useTime})
}

func TestEvaluateSizePruneSelectsOldest(t *testing.T) {
	ix := index.New()
	put(ix, "k1", 300, 1)
	put(ix, "k2", 300, 2)
	put(ix, "k3", 500, 3)

	plan := Evaluate(ix, Options{TotalSizeLimit: 1000}, 3)
	if len(plan.Stale) != 0 {
		t.Fatalf("no time limit set, expected no stale keys, got %v", plan.Stale)
	}
	if len(plan.Sized) != 1 || plan.Sized[0] != index.NewKey([]byte("k1")) {
		t.Fatalf("expected k1 (oldest, removeSize=100<=300) selected, got %v", plan.Sized)
	}
}

func TestEvaluateTimePruneThenSizePrune(t *testing.T) {
	ix := index.New()
	put(ix, "k1", 100, 1) // stale
	put(ix, "k2", 100, 2) // stale
	put(ix, "k3", 900, 10)

	opts := Options{TotalSizeLimit: 500, TotalTimeLimit: 5}
	plan := Evaluate(ix, opts, 10) // cutoff = 10-5 = 5, so useTime<=5 is stale

	if len(plan.Stale) != 2 {
		t.Fatalf("expected 2 stale keys, got %v", plan.Stale)
	}
	// remaining after stale removal: 900, still over 500, so
	// removeSize=400 and the only survivor k3 is selected to cover it.
	if len(plan.Sized) != 1 || plan.Sized[0] != index.NewKey([]byte("k3")) {
		t.Fatalf("expected k3 as the only size-prune candidate, got %v", plan.Sized)
	}
}

func TestEvaluateSkipsWhenMinimalEntryTimeUnknown(t *testing.T) {
	ix := index.New()
	put(ix, "k1", 100, 0) // time tracking off

	plan := Evaluate(ix, Options{TotalTimeLimit: 5}, 100)
	if !plan.Empty() {
		t.Fatalf("expected empty plan when minimalEntryTime is 0, got %+v", plan)
	}
}

func TestEvaluateSkipsWhenNothingCanBeStaleYet(t *testing.T) {
	ix := index.New()
	put(ix, "k1", 100, 50)

	// before=10, totalTimeLimit=5 -> cutoff=5; k1's useTime 50 is past it.
	plan := Evaluate(ix, Options{TotalTimeLimit: 5}, 10)
	if !plan.Empty() {
		t.Fatalf("expected empty plan, got %+v", plan)
	}
}

func TestNextDelayNeededNowUsesPruneTimeout(t *testing.T) {
	ix := index.New()
	opts := Options{PruneTimeout: 1, MaxPruneCheckTimeout: 100}
	d := NextDelay(ix, opts, 0, true)
	if d != 1 {
		t.Fatalf("expected pruneTimeout, got %v", d)
	}
}

func TestNextDelayFutureDeadlineCapped(t *testing.T) {
	ix := index.New()
	put(ix, "k1", 10, 100)

	opts := Options{TotalTimeLimit: 50, PruneTimeout: 1, MaxPruneCheckTimeout: 10}
	// deadline = 100+50 = 150, before = 50 -> wait = 100s, capped to 10.
	d := NextDelay(ix, opts, 50, false)
	if d != opts.MaxPruneCheckTimeout {
		t.Fatalf("expected capped delay %v, got %v", opts.MaxPruneCheckTimeout, d)
	}
}

func TestOldestSetKeepsAtLeastTargetBytes(t *testing.T) {
	set := newOldestSet(250)
	set.add(candidate{key: index.NewKey([]byte("a")), useTime: 1, size: 100})
	set.add(candidate{key: index.NewKey([]byte("b")), useTime: 2, size: 100})
	set.add(candidate{key: index.NewKey([]byte("c")), useTime: 3, size: 100})
	set.add(candidate{key: index.NewKey([]byte("d")), useTime: 4, size: 100})

	if set.total < 250 {
		t.Fatalf("collection must hold at least target bytes, got %d", set.total)
	}
	for _, k := range set.keys() {
		if k == index.NewKey([]byte("d")) {
			t.Fatalf("newest entry must not be retained once target is met: %v", set.keys())
		}
	}
}
