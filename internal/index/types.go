// Package index is the in-memory map that mirrors the live contents of
// the binlog: key -> place/tag/size/checksum/useTime, plus the running
// totals (total size, minimal entry time and its multiplicity) needed
// for prune scheduling. It holds no locks — every method runs on the
// single serial queue (see DESIGN.md for why sharding and per-shard
// locks aren't carried forward here).
package index

import "cachedb/internal/place"

// Key is a fixed-width key, stored as a Go string so it can be used
// directly as a map key without a per-lookup conversion. Callers are
// responsible for padding/truncating to cachedb.Options.KeySize before
// calling Index methods; this package does not enforce the width.
type Key string

// Entry is the bookkeeping record for one live key.
type Entry struct {
	Place    place.ID
	Tag      uint8
	Size     int32
	Checksum uint32
	// UseTime is the relative time (internal/clock.Point.Relative) of
	// the last store or access, or 0 if time tracking is disabled.
	UseTime uint64
}

// TagStats is the read-only per-tag accounting surfaced via
// cachedb.DB.Stats().
type TagStats struct {
	Count     int64
	TotalSize int64
}

// Index is the live map plus the running totals needed to schedule
// pruning without a full scan.
type Index struct {
	entries map[Key]Entry
	tags    map[uint8]*TagStats

	totalSize int64

	// minimalEntryTime is 0 or min{useTime>0}, and
	// entriesWithMinimalTimeCount is its multiplicity. Maintained
	// incrementally by Put/Touch/Remove, with a full rescan whenever the
	// last entry at the minimal time goes away.
	minimalEntryTime            uint64
	entriesWithMinimalTimeCount int64
}
