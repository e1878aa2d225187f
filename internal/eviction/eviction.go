// Package eviction implements the size- and time-prune algorithms:
// pure functions over an internal/index.Index that decide which keys
// must go, and a scheduling helper that decides when to run them next.
// It performs no I/O and holds no state of its own — the caller
// (internal/database) removes the returned keys from the index,
// binlog and blobstore under the single serial queue.
package eviction

import (
	"time"

	"cachedb/internal/index"
)

// Options is the subset of cachedb.Options the eviction engine needs.
type Options struct {
	TotalSizeLimit       int64
	TotalTimeLimit       uint64
	PruneTimeout         time.Duration
	MaxPruneCheckTimeout time.Duration
}

// Plan is the result of deciding what to evict this round: stale keys
// from the time-prune, followed by any additional keys the size-prune
// selects once the stale keys are accounted for.
type Plan struct {
	Stale []index.Key
	Sized []index.Key
}

// Empty reports whether the plan removes nothing.
func (p Plan) Empty() bool {
	return len(p.Stale) == 0 && len(p.Sized) == 0
}

// Evaluate runs the time-prune then size-prune decision in one pass:
// before is the current logical instant (internal/clock).
func Evaluate(ix *index.Index, opts Options, before uint64) Plan {
	var plan Plan

	staleSize := int64(0)
	if opts.TotalTimeLimit > 0 {
		cutoff := uint64(0)
		if before > opts.TotalTimeLimit {
			cutoff = before - opts.TotalTimeLimit
		}
		plan.Stale, staleSize = timePrune(ix, cutoff)
	}

	if opts.TotalSizeLimit > 0 {
		remaining := ix.TotalSize() - staleSize
		if remaining > opts.TotalSizeLimit {
			removeSize := remaining - opts.TotalSizeLimit
			stale := make(map[index.Key]bool, len(plan.Stale))
			for _, k := range plan.Stale {
				stale[k] = true
			}
			plan.Sized = sizePrune(ix, stale, removeSize)
		}
	}

	return plan
}

// timePrune is skipped entirely unless minimalEntryTime is known and
// at or before the cutoff, then a full scan collects every entry whose
// useTime is stale. minimalEntryTime/entriesWithMinimalTimeCount are
// recomputed over the survivors by internal/index, which the caller
// invokes after actually removing the returned keys.
func timePrune(ix *index.Index, before uint64) ([]index.Key, int64) {
	min := ix.MinimalEntryTime()
	if min == 0 || min > before {
		return nil, 0
	}

	var stale []index.Key
	var staleSize int64
	ix.ForEach(func(key index.Key, e index.Entry) {
		if e.Stale(before) {
			stale = append(stale, key)
			staleSize += int64(e.Size)
		}
	})
	return stale, staleSize
}

// sizePrune builds the bounded oldest-entries collection over every
// non-stale entry and returns its keys. already is the set of keys the
// time-prune already selected, excluded here so the caller never
// double-removes them.
func sizePrune(ix *index.Index, already map[index.Key]bool, removeSize int64) []index.Key {
	set := newOldestSet(removeSize)
	ix.ForEach(func(key index.Key, e index.Entry) {
		if already[key] {
			return
		}
		set.add(candidate{key: key, useTime: e.UseTime, size: int64(e.Size)})
	})
	return set.keys()
}

// NextDelay schedules the next prune pass: fires at pruneTimeout if
// pruning is needed now, or at min(minimalEntryTime+totalTimeLimit-before seconds,
// maxPruneCheckTimeout) if pruning will be needed later.
func NextDelay(ix *index.Index, opts Options, before uint64, neededNow bool) time.Duration {
	if neededNow {
		return opts.PruneTimeout
	}

	min := ix.MinimalEntryTime()
	if opts.TotalTimeLimit == 0 || min == 0 {
		return opts.MaxPruneCheckTimeout
	}

	deadline := min + opts.TotalTimeLimit
	if deadline <= before {
		return opts.PruneTimeout
	}

	wait := time.Duration(deadline-before) * time.Second
	if wait > opts.MaxPruneCheckTimeout {
		return opts.MaxPruneCheckTimeout
	}
	return wait
}
