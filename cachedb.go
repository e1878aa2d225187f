// Package cachedb is an embeddable, encrypted key/value cache with
// crash-safe durability and online log compaction.
//
// Basic usage:
//
//	db, err := cachedb.Open("./data", key)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	db.Put(ctx, []byte("key"), []byte("value"), 0)
//	val, ok, err := db.Get(ctx, []byte("key"))
package cachedb

import (
	"context"
	"time"

	"cachedb/internal/database"
)

// Options configures a DB. Zero-valued numeric fields are replaced with
// sensible defaults on Open; TotalSizeLimit and TotalTimeLimit stay 0
// (no limit) and TrackEstimatedTime is taken as given, so a zero
// Options creates a database without time tracking.
type Options struct {
	// KeySize is the fixed width every key must have, validated against
	// the directory's stored header on reopen.
	KeySize int

	// MaxDataSize bounds a single value; larger puts are rejected.
	MaxDataSize int32

	// MaxBundledRecords caps how many pending accesses or removes are
	// coalesced into one binlog record before flushing early.
	MaxBundledRecords int

	// TotalSizeLimit triggers size-based eviction once the sum of live
	// value sizes exceeds it, if > 0.
	TotalSizeLimit int64

	// TotalTimeLimit expires entries whose last access is older than
	// this many logical seconds, if > 0.
	TotalTimeLimit uint64

	// TrackEstimatedTime enables per-entry access-time tracking and
	// time-based eviction. Frozen at creation time.
	TrackEstimatedTime bool

	// PruneTimeout is the delay between "eviction needed" and the
	// prune pass actually running.
	PruneTimeout time.Duration

	// MaxPruneCheckTimeout caps how long the scheduler sleeps between
	// "nothing to prune yet" rechecks.
	MaxPruneCheckTimeout time.Duration

	// WriteBundleDelay is the bundler flush delay and the logical
	// clock bucketing window.
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

func (o Options) toInternal() database.Options {
	return database.Options{
		KeySize:              o.KeySize,
		MaxDataSize:          o.MaxDataSize,
		MaxBundledRecords:    o.MaxBundledRecords,
		TotalSizeLimit:       o.TotalSizeLimit,
		TotalTimeLimit:       o.TotalTimeLimit,
		TrackEstimatedTime:   o.TrackEstimatedTime,
		PruneTimeout:         o.PruneTimeout,
		MaxPruneCheckTimeout: o.MaxPruneCheckTimeout,
		WriteBundleDelay:     o.WriteBundleDelay,
		CompactAfterExcess:   o.CompactAfterExcess,
		CompactAfterFullSize: o.CompactAfterFullSize,
		ReadBlockSize:        o.ReadBlockSize,
	}
}

// PutEntry is one member of a PutMany batch.
type PutEntry struct {
	Key   []byte
	Value []byte
	Tag   uint8
}

// Stats is a point-in-time snapshot of a DB's bookkeeping.
type Stats struct {
	EntryCount         int
	TotalSize          int64
	BinlogSize         int64
	BinlogExcessLength int64
	PerTag             map[uint8]TagStats
}

// TagStats is the per-tag accounting surfaced by Stats.
type TagStats struct {
	Count     int64
	TotalSize int64
}

// DB is an open cache directory.
type DB struct {
	dir string
	db  *database.Database
}

// Open opens or creates a cache directory at dir with default options,
// re-keying nothing — key must match whatever the directory was
// created with.
//
//	db, err := cachedb.Open("./data", key)
func Open(dir string, key []byte) (*DB, error) {
	return OpenWithOptions(dir, key, Options{})
}

// OpenWithOptions opens or creates a cache directory at dir, replaying
// its binlog, finishing any interrupted compaction swap, and starting
// the background cleaner.
func OpenWithOptions(dir string, key []byte, opts Options) (*DB, error) {
	inner, err := database.Open(dir, key, opts.toInternal())
	if err != nil {
		return nil, wrapErr(dir, err)
	}
	return &DB{dir: dir, db: inner}, nil
}

// ctxErr honours ctx only as a cancellation signal at the point of
// posting to the serial queue, never as a mid-operation yield point —
// every public method below runs to completion on the queue once
// accepted; there are no suspension points inside it.
func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Put stores value under key with tag, overwriting any existing entry.
// An empty value is equivalent to Remove.
func (db *DB) Put(ctx context.Context, key, value []byte, tag uint8) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return wrapErr(db.dir, db.db.Put(key, value, tag))
}

// PutMany stores several entries in a single binlog record.
func (db *DB) PutMany(ctx context.Context, entries []PutEntry) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	inner := make([]database.PutEntry, len(entries))
	for i, e := range entries {
		inner[i] = database.PutEntry{Key: e.Key, Value: e.Value, Tag: e.Tag}
	}
	return wrapErr(db.dir, db.db.PutMany(inner))
}

// Get returns the value stored under key, if live and uncorrupted.
// Corruption at read time is reported as a miss, never an error.
func (db *DB) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, false, err
	}
	val, ok, err := db.db.Get(key)
	return val, ok, wrapErr(db.dir, err)
}

// GetManyRaw reads several keys in one queue round trip. Missing keys
// are nil at their index rather than causing the whole call to fail.
func (db *DB) GetManyRaw(ctx context.Context, keys [][]byte) ([][]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	vals, err := db.db.GetManyRaw(keys)
	return vals, wrapErr(db.dir, err)
}

// Remove deletes key. Removing an absent key is a no-op, not an error.
func (db *DB) Remove(ctx context.Context, key []byte) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return wrapErr(db.dir, db.db.Remove(key))
}

// Clear removes every live key.
func (db *DB) Clear(ctx context.Context) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return wrapErr(db.dir, db.db.Clear())
}

// Compact forces an immediate dense rewrite of the binlog, bypassing
// the usual excess-length gate. Intended for offline maintenance, not
// the regular request path.
func (db *DB) Compact(ctx context.Context) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return wrapErr(db.dir, db.db.CompactNow())
}

// GC runs the stale-version directory sweep once, immediately, instead
// of waiting for its normal timer cadence.
func (db *DB) GC(ctx context.Context) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return wrapErr(db.dir, db.db.GC())
}

// Stats returns a snapshot of the cache's bookkeeping.
func (db *DB) Stats() Stats {
	s := db.db.Stats()
	perTag := make(map[uint8]TagStats, len(s.PerTag))
	for tag, ts := range s.PerTag {
		perTag[tag] = TagStats{Count: ts.Count, TotalSize: ts.TotalSize}
	}
	return Stats{
		EntryCount:         s.EntryCount,
		TotalSize:          s.TotalSize,
		BinlogSize:         s.BinlogSize,
		BinlogExcessLength: s.BinlogExcessLength,
		PerTag:             perTag,
	}
}

// Close drains pending bundles, stops background jobs and releases the
// binlog. Always call via defer.
func (db *DB) Close() error {
	return wrapErr(db.dir, db.db.Close())
}
