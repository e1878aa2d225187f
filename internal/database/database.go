// Package database orchestrates the binlog, index, blobstore, bundler,
// clock, eviction engine, compactor and cleaner into a single cache
// object. Every method here assumes it runs on the single serial
// queue; none of it takes a lock.
package database

import (
	"bytes"
	"fmt"
	"time"

	"cachedb/internal/binlog"
	"cachedb/internal/blobstore"
	"cachedb/internal/bundler"
	"cachedb/internal/checksum"
	"cachedb/internal/cleaner"
	"cachedb/internal/clock"
	"cachedb/internal/compactor"
	"cachedb/internal/eviction"
	"cachedb/internal/index"
	"cachedb/internal/place"
	"cachedb/internal/queue"
)

// Database is an open cache instance.
type Database struct {
	baseDir string
	key     []byte
	opts    Options

	version    int
	versionDir string

	live   *binlog.Log
	header binlog.Header

	ix     *index.Index
	blobs  *blobstore.Store
	bundle *bundler.Bundler
	clk    *clock.Clock

	binlogExcessLength int64
	bucketTime         uint64

	gate    compactor.Gate
	cleaner *cleaner.Cleaner

	q           *queue.Queue
	pruneTimer  *time.Timer
	bundleTimer *time.Timer

	fatal  error
	closed bool
}

// PutEntry is one member of a PutMany batch.
type PutEntry struct {
	Key   []byte
	Value []byte
	Tag   uint8
}

// Stats is a point-in-time snapshot of the database's bookkeeping,
// surfaced to callers and to cachedbctl stats.
type Stats struct {
	EntryCount         int
	TotalSize          int64
	BinlogSize         int64
	BinlogExcessLength int64
	PerTag             map[uint8]index.TagStats
}

func (db *Database) checkUsable() error {
	if db.fatal != nil {
		return db.fatal
	}
	if db.closed {
		return ErrClosed
	}
	return nil
}

// Put stores value under key with tag, overwriting any existing entry.
func (db *Database) Put(key, value []byte, tag uint8) error {
	var err error
	db.q.Do(func() { err = db.putLocked(key, value, tag) })
	return err
}

func (db *Database) putLocked(key, value []byte, tag uint8) error {
	if err := db.checkUsable(); err != nil {
		return err
	}
	if len(key) != db.opts.KeySize {
		return fmt.Errorf("database: key length %d != %d", len(key), db.opts.KeySize)
	}
	if len(value) == 0 {
		return db.removeLocked(key)
	}
	if len(value) > int(db.opts.MaxDataSize) {
		return fmt.Errorf("database: value length %d exceeds maxDataSize", len(value))
	}

	k := index.NewKey(key)
	db.bundle.CancelRemove(k)

	sum := checksum.Of(value)

	var p place.ID
	if existing, ok := db.ix.Matches(k, tag, int32(len(value)), sum); ok {
		if stored, err := db.blobs.Read(existing.Place, int(existing.Size)); err == nil && bytes.Equal(stored, value) {
			db.stageAccessLocked(k)
			db.optimizeLocked()
			return nil
		}
		p = existing.Place
	} else if e, ok := db.ix.Get(k); ok {
		p = e.Place
	} else {
		drawn, err := place.Draw(db.versionDir, db.blobs.Exists)
		if err != nil {
			return fmt.Errorf("database: draw place: %w", err)
		}
		p = drawn
	}

	rec := binlog.Record{Key: key, Place: p, Tag: tag, Size: int32(len(value)), Checksum: sum}
	if db.header.TracksTime() {
		rec.Kind = binlog.KindStoreWithTime
		rec.Time, rec.System = db.stampTime(time.Now())
	} else {
		rec.Kind = binlog.KindStore
	}

	if _, err := db.live.Append(rec); err != nil {
		return fmt.Errorf("database: append store record: %w", err)
	}
	applyRecord(db.ix, db.clk, &db.binlogExcessLength, db.opts.KeySize, rec)

	if err := db.blobs.Write(p, value); err != nil {
		db.removeLocked(key)
		return fmt.Errorf("database: write value file: %w", err)
	}

	db.optimizeLocked()
	return nil
}

// PutMany stores several entries in a single MultiStore binlog record.
// Unlike Put, it does not check for an identical re-put and always
// rewrites the value file: batches are assumed to carry fresh data,
// and paying for one checksum-match scan per entry would undercut the
// point of batching the binlog append in the first place.
func (db *Database) PutMany(entries []PutEntry) error {
	var err error
	db.q.Do(func() { err = db.putManyLocked(entries) })
	return err
}

func (db *Database) putManyLocked(entries []PutEntry) error {
	if err := db.checkUsable(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	parts := make([]binlog.Part, 0, len(entries))
	values := make([][]byte, len(entries))
	places := make([]place.ID, len(entries))

	for i, pe := range entries {
		if len(pe.Key) != db.opts.KeySize {
			return fmt.Errorf("database: key length %d != %d", len(pe.Key), db.opts.KeySize)
		}
		if len(pe.Value) == 0 || len(pe.Value) > int(db.opts.MaxDataSize) {
			return fmt.Errorf("database: value length %d out of range", len(pe.Value))
		}

		k := index.NewKey(pe.Key)
		db.bundle.CancelRemove(k)
		sum := checksum.Of(pe.Value)

		var p place.ID
		if e, ok := db.ix.Get(k); ok {
			p = e.Place
		} else {
			drawn, err := place.Draw(db.versionDir, db.blobs.Exists)
			if err != nil {
				return fmt.Errorf("database: draw place: %w", err)
			}
			p = drawn
		}

		parts = append(parts, binlog.Part{Key: pe.Key, Place: p, Tag: pe.Tag, Size: int32(len(pe.Value)), Checksum: sum})
		values[i] = pe.Value
		places[i] = p
	}

	rec := binlog.Record{Parts: parts}
	if db.header.TracksTime() {
		rec.Kind = binlog.KindMultiStoreWithTime
		rec.Time, rec.System = db.stampTime(time.Now())
	} else {
		rec.Kind = binlog.KindMultiStore
	}

	if _, err := db.live.Append(rec); err != nil {
		return fmt.Errorf("database: append multi-store record: %w", err)
	}
	applyRecord(db.ix, db.clk, &db.binlogExcessLength, db.opts.KeySize, rec)

	for i, v := range values {
		if err := db.blobs.Write(places[i], v); err != nil {
			db.removeLocked(entries[i].Key)
			return fmt.Errorf("database: write value file: %w", err)
		}
	}

	db.optimizeLocked()
	return nil
}

// Get returns the value stored under key, if live and uncorrupted.
func (db *Database) Get(key []byte) ([]byte, bool, error) {
	var (
		data []byte
		ok   bool
		err  error
	)
	db.q.Do(func() { data, ok, err = db.getLocked(key) })
	return data, ok, err
}

func (db *Database) getLocked(key []byte) ([]byte, bool, error) {
	if err := db.checkUsable(); err != nil {
		return nil, false, err
	}
	k := index.NewKey(key)
	if db.bundle.IsRemoving(k) {
		return nil, false, nil
	}
	e, ok := db.ix.Get(k)
	if !ok {
		return nil, false, nil
	}
	data, err := db.blobs.Read(e.Place, int(e.Size))
	if err != nil || checksum.Of(data) != e.Checksum {
		return nil, false, nil
	}

	db.stageAccessLocked(k)
	db.optimizeLocked()
	return data, true, nil
}

// GetManyRaw reads several keys in one queue round trip.
func (db *Database) GetManyRaw(keys [][]byte) ([][]byte, error) {
	var (
		result [][]byte
		err    error
	)
	db.q.Do(func() { result, err = db.getManyRawLocked(keys) })
	return result, err
}

func (db *Database) getManyRawLocked(keys [][]byte) ([][]byte, error) {
	if err := db.checkUsable(); err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, key := range keys {
		data, ok, err := db.getLocked(key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = data
		}
	}
	return out, nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (db *Database) Remove(key []byte) error {
	var err error
	db.q.Do(func() { err = db.removeLocked(key) })
	return err
}

func (db *Database) removeLocked(key []byte) error {
	if err := db.checkUsable(); err != nil {
		return err
	}
	k := index.NewKey(key)
	e, existed := db.ix.Get(k)
	if !existed {
		return nil
	}

	flushNow := db.bundle.StageRemove(k)
	if err := db.blobs.Delete(e.Place); err != nil {
		return fmt.Errorf("database: delete value file: %w", err)
	}
	db.ix.Remove(k)

	if flushNow {
		db.flushRemovingLocked()
	} else {
		db.armBundleTimer()
	}
	db.optimizeLocked()
	return nil
}

// Clear removes every live key.
func (db *Database) Clear() error {
	var err error
	db.q.Do(func() { err = db.clearLocked() })
	return err
}

func (db *Database) clearLocked() error {
	if err := db.checkUsable(); err != nil {
		return err
	}
	var keys []index.Key
	db.ix.ForEach(func(k index.Key, _ index.Entry) { keys = append(keys, k) })
	for _, k := range keys {
		if err := db.removeLocked(k.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a snapshot of the database's bookkeeping.
func (db *Database) Stats() Stats {
	var s Stats
	db.q.Do(func() { s = db.statsLocked() })
	return s
}

func (db *Database) statsLocked() Stats {
	return Stats{
		EntryCount:         db.ix.Len(),
		TotalSize:          db.ix.TotalSize(),
		BinlogSize:         db.live.Size(),
		BinlogExcessLength: db.binlogExcessLength,
		PerTag:             db.ix.Stats(),
	}
}

// GC runs the stale-version cleaner sweep once, immediately, outside
// its normal timer cadence — cachedbctl gc's entry point.
func (db *Database) GC() error {
	var err error
	db.q.Do(func() {
		if err = db.checkUsable(); err != nil {
			return
		}
		db.cleaner.Sweep()
	})
	return err
}

// Close drains the bundlers, stops background jobs and releases the
// binlog.
func (db *Database) Close() error {
	var err error
	db.q.Do(func() { err = db.closeLocked() })
	db.q.Close()
	return err
}

func (db *Database) closeLocked() error {
	if db.closed {
		return nil
	}
	db.closed = true

	if db.pruneTimer != nil {
		db.pruneTimer.Stop()
	}
	if db.bundleTimer != nil {
		db.bundleTimer.Stop()
	}
	db.flushAccessedLocked()
	db.flushRemovingLocked()
	db.cleaner.Stop()

	return db.live.Close()
}

// stageAccessLocked enqueues k for a useTime refresh. Access tracking
// is meaningless when the binlog was created without time tracking.
func (db *Database) stageAccessLocked(k index.Key) {
	if !db.header.TracksTime() {
		return
	}
	if db.bundle.StageAccess(k) {
		db.flushAccessedLocked()
	} else {
		db.armBundleTimer()
	}
}

func (db *Database) flushAccessedLocked() {
	keys := db.bundle.FlushAccessed()
	if len(keys) == 0 {
		return
	}
	rec := binlog.Record{Kind: binlog.KindMultiAccess}
	rec.Time, rec.System = db.stampTime(time.Now())
	for _, k := range keys {
		rec.Keys = append(rec.Keys, k.Bytes())
	}
	if _, err := db.live.Append(rec); err != nil {
		return
	}
	applyRecord(db.ix, db.clk, &db.binlogExcessLength, db.opts.KeySize, rec)
}

func (db *Database) flushRemovingLocked() {
	keys := db.bundle.FlushRemoving()
	if len(keys) == 0 {
		return
	}
	rec := binlog.Record{Kind: binlog.KindMultiRemove}
	for _, k := range keys {
		rec.Keys = append(rec.Keys, k.Bytes())
	}
	if _, err := db.live.Append(rec); err != nil {
		return
	}
	applyRecord(db.ix, db.clk, &db.binlogExcessLength, db.opts.KeySize, rec)
}

func (db *Database) armBundleTimer() {
	if db.bundleTimer != nil {
		return
	}
	db.bundleTimer = time.AfterFunc(db.opts.WriteBundleDelay, func() {
		db.q.Post(func() {
			db.bundleTimer = nil
			db.flushAccessedLocked()
			db.flushRemovingLocked()
		})
	})
}

// stampTime ticks the logical clock to wall-clock now and buckets the
// relative half of the result against the last value actually stamped
// onto a record: a candidate within writeBundleDelay of the last stamp
// reuses it instead of minting a new useTime. The system half returned
// alongside it is always the exact tick, never bucketed, since it only
// feeds time.system bookkeeping and not the eviction clock.
func (db *Database) stampTime(wallNow time.Time) (relative uint64, system int64) {
	point := db.clk.Tick(wallNow)
	system = point.System
	delay := uint64(db.opts.WriteBundleDelay / time.Second)
	if point.Relative-db.bucketTime <= delay {
		return db.bucketTime, system
	}
	db.bucketTime = point.Relative
	return db.bucketTime, system
}

// pinClock writes a zero-key MultiAccess record pinning the logical
// clock forward when the wall clock has moved backwards since the
// last write.
func (db *Database) pinClock(wallNow time.Time) {
	p := db.clk.Point().Now(wallNow)
	db.clk.Advance(p)
	rec := binlog.Record{Kind: binlog.KindMultiAccess, Time: p.Relative, System: p.System}
	if _, err := db.live.Append(rec); err != nil {
		return
	}
	applyRecord(db.ix, db.clk, &db.binlogExcessLength, db.opts.KeySize, rec)
}

// optimizeLocked schedules the next eviction pass: arm the prune timer
// at the right delay, and fall back to the compactor gate when nothing
// needs pruning right now.
func (db *Database) optimizeLocked() {
	before := db.clk.Relative()
	opts := eviction.Options{
		TotalSizeLimit:       db.opts.TotalSizeLimit,
		TotalTimeLimit:       db.opts.TotalTimeLimit,
		PruneTimeout:         db.opts.PruneTimeout,
		MaxPruneCheckTimeout: db.opts.MaxPruneCheckTimeout,
	}
	plan := eviction.Evaluate(db.ix, opts, before)
	neededNow := !plan.Empty()

	delay := eviction.NextDelay(db.ix, opts, before, neededNow)
	db.armPruneTimer(delay)

	if !neededNow {
		db.checkCompactor()
	}
}

func (db *Database) armPruneTimer(delay time.Duration) {
	if db.pruneTimer != nil {
		db.pruneTimer.Stop()
	}
	db.pruneTimer = time.AfterFunc(delay, func() {
		db.q.Post(func() {
			db.pruneTimer = nil
			db.runPruneLocked()
		})
	})
}

func (db *Database) runPruneLocked() {
	if err := db.checkUsable(); err != nil {
		return
	}
	before := db.clk.Relative()
	opts := eviction.Options{
		TotalSizeLimit:       db.opts.TotalSizeLimit,
		TotalTimeLimit:       db.opts.TotalTimeLimit,
		PruneTimeout:         db.opts.PruneTimeout,
		MaxPruneCheckTimeout: db.opts.MaxPruneCheckTimeout,
	}
	plan := eviction.Evaluate(db.ix, opts, before)
	for _, k := range plan.Stale {
		db.removeLocked(k.Bytes())
	}
	for _, k := range plan.Sized {
		db.removeLocked(k.Bytes())
	}
	db.optimizeLocked()
}
