// Package bundler holds two staging sets — "removing" and "accessed" —
// so that individual gets and removes don't each force a binlog
// append: they're batched into one
// MultiAccess or MultiRemove record once maxBundledRecords is reached
// or writeBundleDelay elapses, whichever comes first. It holds no
// timer of its own; internal/database arms and drains it, since only
// the serial queue may decide when "now" is.
package bundler

import "cachedb/internal/index"

// Bundler accumulates pending accesses and removes.
type Bundler struct {
	maxRecords int
	removing   map[index.Key]struct{}
	accessed   map[index.Key]struct{}
}

// New creates a Bundler that reports "flush now" once either staging
// set reaches maxRecords entries.
func New(maxRecords int) *Bundler {
	return &Bundler{
		maxRecords: maxRecords,
		removing:   make(map[index.Key]struct{}),
		accessed:   make(map[index.Key]struct{}),
	}
}
