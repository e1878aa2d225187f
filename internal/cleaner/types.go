// Package cleaner is a fire-and-forget background job that deletes
// stale version directories, so directories orphaned by a failed open
// or a finished compaction don't accumulate forever.
package cleaner

import "time"

const sweepInterval = time.Minute

// Cleaner periodically removes every numbered version directory under
// baseDir except the one currently active.
type Cleaner struct {
	baseDir string
	active  func() int
	stopCh  chan struct{}
	doneCh  chan struct{}
}
