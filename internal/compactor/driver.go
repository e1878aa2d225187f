package compactor

import "time"

// Options is the subset of cachedb.Options the compactor scheduling
// gate needs.
type Options struct {
	CompactAfterExcess   int64
	CompactAfterFullSize float64
}

// Gate is the compactor's own small scheduling state: whether a run is
// already in flight, and the exponential back-off after a failure.
// internal/database owns one Gate per open database.
type Gate struct {
	running           bool
	nextAttempt       time.Time
	delayAfterFailure time.Duration
}

const maxBackoff = 24 * time.Hour
const initialBackoff = time.Minute

// ShouldRun is a four-way AND: no run already in flight, excess past
// the absolute floor, excess a large-enough fraction of binlogSize,
// and the back-off window elapsed.
func (g *Gate) ShouldRun(now time.Time, opts Options, binlogExcessLength, binlogSize int64) bool {
	if g.running {
		return false
	}
	if binlogExcessLength < opts.CompactAfterExcess {
		return false
	}
	if float64(binlogExcessLength)*opts.CompactAfterFullSize < float64(opts.CompactAfterExcess)*float64(binlogSize) {
		return false
	}
	if !g.nextAttempt.IsZero() && now.Before(g.nextAttempt) {
		return false
	}
	return true
}

// Start marks a run as in flight; the caller must pair it with either
// Succeeded or Failed once the goroutine reports back.
func (g *Gate) Start() {
	g.running = true
}

// Succeeded resets the back-off after a completed compaction.
func (g *Gate) Succeeded() {
	g.running = false
	g.delayAfterFailure = 0
	g.nextAttempt = time.Time{}
}

// Failed doubles the back-off (capped at 24h) and arms nextAttempt.
func (g *Gate) Failed(now time.Time) {
	g.running = false
	if g.delayAfterFailure == 0 {
		g.delayAfterFailure = initialBackoff
	} else {
		g.delayAfterFailure *= 2
		if g.delayAfterFailure > maxBackoff {
			g.delayAfterFailure = maxBackoff
		}
	}
	g.nextAttempt = now.Add(g.delayAfterFailure)
}
