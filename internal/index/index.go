package index

// New creates an empty index.
func New() *Index {
	return &Index{
		entries: make(map[Key]Entry),
		tags:    make(map[uint8]*TagStats),
	}
}

// Len returns the number of live entries.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// TotalSize is Σ entry.size over every live entry.
func (ix *Index) TotalSize() int64 {
	return ix.totalSize
}

// MinimalEntryTime and EntriesWithMinimalTimeCount are counters read
// by internal/eviction to decide whether (and when) a time-prune pass
// is warranted.
func (ix *Index) MinimalEntryTime() uint64          { return ix.minimalEntryTime }
func (ix *Index) EntriesWithMinimalTimeCount() int64 { return ix.entriesWithMinimalTimeCount }

// Get returns the entry for key, if live.
func (ix *Index) Get(key Key) (Entry, bool) {
	e, ok := ix.entries[key]
	return e, ok
}

// Put inserts or replaces key's entry, updating totalSize, the per-tag
// stats and the minimal-time bookkeeping. It returns the previous
// entry and whether key was already live (the caller uses this to
// decide whether the put was an overwrite for binlogExcessLength
// accounting).
func (ix *Index) Put(key Key, e Entry) (previous Entry, existed bool) {
	old, existed := ix.entries[key]

	if existed {
		delete(ix.entries, key)
		ix.totalSize += int64(e.Size) - int64(old.Size)
		ix.adjustTag(old.Tag, -1, -int64(old.Size))
		ix.removeTimeContribution(old.UseTime)
	} else {
		ix.totalSize += int64(e.Size)
	}
	ix.entries[key] = e
	ix.adjustTag(e.Tag, 1, int64(e.Size))
	ix.addTimeContribution(e.UseTime)

	return old, existed
}

// Touch updates only the useTime of an already-live key, the
// bookkeeping equivalent of a MultiAccess record. It reports false if
// key is not live.
func (ix *Index) Touch(key Key, useTime uint64) bool {
	e, ok := ix.entries[key]
	if !ok {
		return false
	}
	delete(ix.entries, key)
	ix.removeTimeContribution(e.UseTime)
	e.UseTime = useTime
	ix.entries[key] = e
	ix.addTimeContribution(e.UseTime)
	return true
}

// Remove deletes key's entry if present, adjusting totalSize, per-tag
// stats and the minimal-time counters. It returns the removed entry
// and whether key had been live.
func (ix *Index) Remove(key Key) (removed Entry, existed bool) {
	e, existed := ix.entries[key]
	if !existed {
		return Entry{}, false
	}
	delete(ix.entries, key)
	ix.totalSize -= int64(e.Size)
	ix.adjustTag(e.Tag, -1, -int64(e.Size))
	ix.removeTimeContribution(e.UseTime)
	return e, true
}

// ForEach calls fn for every live entry in an unspecified order. fn
// must not mutate the index. Used by the eviction engine's size-prune
// scan and by the compactor's dense rewrite.
func (ix *Index) ForEach(fn func(key Key, e Entry)) {
	for k, e := range ix.entries {
		fn(k, e)
	}
}

// Stats returns a point-in-time copy of the per-tag accounting, keyed
// by tag byte.
func (ix *Index) Stats() map[uint8]TagStats {
	out := make(map[uint8]TagStats, len(ix.tags))
	for tag, s := range ix.tags {
		out[tag] = *s
	}
	return out
}

func (ix *Index) adjustTag(tag uint8, countDelta int64, sizeDelta int64) {
	s, ok := ix.tags[tag]
	if !ok {
		if countDelta <= 0 {
			return
		}
		s = &TagStats{}
		ix.tags[tag] = s
	}
	s.Count += countDelta
	s.TotalSize += sizeDelta
	if s.Count <= 0 {
		delete(ix.tags, tag)
	}
}

// addTimeContribution and removeTimeContribution maintain
// minimalEntryTime/entriesWithMinimalTimeCount incrementally on the
// common path, falling back to a full rescan only when the minimal
// bucket empties out from under a removal — the same trade-off
// internal/eviction's time-prune already accepts for its own scan.
func (ix *Index) addTimeContribution(useTime uint64) {
	if useTime == 0 {
		return
	}
	switch {
	case ix.minimalEntryTime == 0 || useTime < ix.minimalEntryTime:
		ix.minimalEntryTime = useTime
		ix.entriesWithMinimalTimeCount = 1
	case useTime == ix.minimalEntryTime:
		ix.entriesWithMinimalTimeCount++
	}
}

func (ix *Index) removeTimeContribution(useTime uint64) {
	if useTime == 0 || useTime != ix.minimalEntryTime {
		return
	}
	ix.entriesWithMinimalTimeCount--
	if ix.entriesWithMinimalTimeCount <= 0 {
		ix.recomputeMinimalTime()
	}
}

func (ix *Index) recomputeMinimalTime() {
	var min uint64
	var count int64
	for _, e := range ix.entries {
		if e.UseTime == 0 {
			continue
		}
		switch {
		case min == 0 || e.UseTime < min:
			min = e.UseTime
			count = 1
		case e.UseTime == min:
			count++
		}
	}
	ix.minimalEntryTime = min
	ix.entriesWithMinimalTimeCount = count
}
