package database

import "time"

// Options configures a Database.
type Options struct {
	// KeySize is the fixed width of every key, validated against the
	// header on reopen.
	KeySize int

	// MaxDataSize bounds a single blob; larger puts are rejected.
	MaxDataSize int32

	// MaxBundledRecords is the flush threshold for the removing and
	// accessed bundlers.
	MaxBundledRecords int

	// TotalSizeLimit triggers size-prune when totalSize exceeds it, if > 0.
	TotalSizeLimit int64

	// TotalTimeLimit expires entries whose useTime is older than this
	// many logical seconds, if > 0.
	TotalTimeLimit uint64

	// TrackEstimatedTime is frozen at creation time; an existing
	// binlog's header always wins over this field on reopen.
	TrackEstimatedTime bool

	// PruneTimeout is the delay between "needs pruning" and the prune
	// actually running.
	PruneTimeout time.Duration

	// MaxPruneCheckTimeout caps the sleep between "nothing to prune
	// yet" rechecks.
	MaxPruneCheckTimeout time.Duration

	// WriteBundleDelay is the bundler flush delay, and the threshold
	// under which a put's proposed time bucket is rounded down to the
	// last time value stamped onto a record.
	WriteBundleDelay time.Duration

	// CompactAfterExcess is the binlogExcessLength floor that makes
	// compaction worth considering.
	CompactAfterExcess int64

	// CompactAfterFullSize gates compaction on excess relative to the
	// live binlog's size: it runs only once
	// excess*CompactAfterFullSize >= CompactAfterExcess*binlogSize.
	CompactAfterFullSize float64

	// ReadBlockSize is the catch-up read chunk size during compaction.
	ReadBlockSize int32
}

// Default returns the settings a new database uses when the caller
// supplies zero values for everything, tuned the way the original
// source's Settings constructor does: generous limits, a five-second
// prune delay with an hourly recheck cap, bundler coalescing measured
// in a handful of seconds. withDefaults fills zero fields from it except
// TrackEstimatedTime (and the limits, whose default is 0 anyway), so a
// zero TrackEstimatedTime stays false.
func Default() Options {
	return Options{
		KeySize:               16,
		MaxDataSize:           1 << 24, // 16 MiB
		MaxBundledRecords:     1024,
		TotalSizeLimit:        0,
		TotalTimeLimit:        0,
		TrackEstimatedTime:    true,
		PruneTimeout:          5 * time.Second,
		MaxPruneCheckTimeout:  time.Hour,
		WriteBundleDelay:      5 * time.Second,
		CompactAfterExcess:    8 << 20, // 8 MiB
		CompactAfterFullSize:  2,
		ReadBlockSize:         256 << 10, // 256 KiB
	}
}

func (o Options) withDefaults() Options {
	d := Default()
	if o.KeySize <= 0 {
		o.KeySize = d.KeySize
	}
	if o.MaxDataSize <= 0 {
		o.MaxDataSize = d.MaxDataSize
	}
	if o.MaxBundledRecords <= 0 {
		o.MaxBundledRecords = d.MaxBundledRecords
	}
	if o.PruneTimeout <= 0 {
		o.PruneTimeout = d.PruneTimeout
	}
	if o.MaxPruneCheckTimeout <= 0 {
		o.MaxPruneCheckTimeout = d.MaxPruneCheckTimeout
	}
	if o.WriteBundleDelay <= 0 {
		o.WriteBundleDelay = d.WriteBundleDelay
	}
	if o.CompactAfterExcess <= 0 {
		o.CompactAfterExcess = d.CompactAfterExcess
	}
	if o.CompactAfterFullSize <= 0 {
		o.CompactAfterFullSize = d.CompactAfterFullSize
	}
	if o.ReadBlockSize <= 0 {
		o.ReadBlockSize = d.ReadBlockSize
	}
	return o
}
