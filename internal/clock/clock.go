// Package clock implements the database's "estimated relative time": a
// monotone logical clock that is approximately real-time but never
// moves backwards even when the wall clock does.
package clock

import "time"

// Point is a persisted coordinate of the logical clock: the wall-clock
// second it was observed at, and the monotone relative second it maps
// to. Only relative is ever compared for eviction purposes; system is
// kept so a reopen can tell whether the wall clock has since jumped
// backwards (see Adjust).
type Point struct {
	System   int64 // POSIX seconds at the moment this point was emitted
	Relative uint64 // monotone logical seconds, never decreases
}

// Now advances p by the wall-clock delta since p.System, clamped at
// zero so a backwards jump contributes nothing. Forward jumps are
// absorbed in full. The result is always >= p.Relative.
func (p Point) Now(wallNow time.Time) Point {
	sys := wallNow.Unix()
	delta := sys - p.System
	if delta < 0 {
		delta = 0
	}
	return Point{System: sys, Relative: p.Relative + uint64(delta)}
}

// NeedsPin reports whether the wall clock has moved backwards since p
// was recorded, i.e. whether the database should pin a fresh
// authoritative time point into the binlog on open.
func (p Point) NeedsPin(wallNow time.Time) bool {
	return wallNow.Unix() < p.System
}

// Clock is a live, mutable Point guarded by the caller's own
// serialization — it carries no lock of its own because every
// database operation already runs on the single serial work queue
// (see internal/queue); there is never concurrent access to it.
type Clock struct {
	point Point
}

// New creates a clock from a persisted point (zero value for a brand
// new database).
func New(p Point) *Clock {
	return &Clock{point: p}
}

// Point returns the current logical time point.
func (c *Clock) Point() Point {
	return c.point
}

// Relative returns the current relative-time coordinate.
func (c *Clock) Relative() uint64 {
	return c.point.Relative
}

// Tick advances the clock to the given wall-clock instant and returns
// the new point. It must be called before any operation that needs to
// stamp a record with the current time.
func (c *Clock) Tick(wallNow time.Time) Point {
	c.point = c.point.Now(wallNow)
	return c.point
}

// Advance applies a time point read back from the binlog during
// replay: relative only ever moves forward, preserving monotonicity
// across replay.
func (c *Clock) Advance(p Point) {
	if p.Relative > c.point.Relative {
		c.point = p
	} else {
		// keep the more advanced relative value but adopt the newer
		// wall-clock system time so NeedsPin reflects the freshest sample
		c.point.System = p.System
	}
}
