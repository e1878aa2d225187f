package database

import (
	"fmt"
	"os"
	"time"

	"cachedb/internal/binlog"
	"cachedb/internal/compactor"
	"cachedb/internal/index"
)

type snapshotEntry struct {
	key   []byte
	entry index.Entry
}

// snapshotLocked captures every live entry for the compactor's dense
// rewrite. The copy is taken up front so the compactor goroutine never
// touches db.ix, which only the serial queue may mutate.
func (db *Database) snapshotLocked() compactor.Snapshot {
	entries := make([]snapshotEntry, 0, db.ix.Len())
	db.ix.ForEach(func(k index.Key, e index.Entry) {
		entries = append(entries, snapshotEntry{key: append([]byte(nil), k.Bytes()...), entry: e})
	})
	trackTime := db.header.TracksTime()
	// The index only keeps each entry's relative UseTime, not the
	// wall-clock second it was stamped at, so a dense rewrite can't
	// recover a per-entry System. Stamping every rewritten record with
	// the clock's current System instead (rather than leaving it zero)
	// keeps replay's time.system correct even when nothing gets
	// appended to catch up with after the snapshot.
	systemNow := db.clk.Point().System

	return func(yield func(binlog.Record)) {
		for _, se := range entries {
			rec := binlog.Record{
				Key:      se.key,
				Place:    se.entry.Place,
				Tag:      se.entry.Tag,
				Size:     se.entry.Size,
				Checksum: se.entry.Checksum,
			}
			if trackTime {
				rec.Kind = binlog.KindStoreWithTime
				rec.Time = se.entry.UseTime
				rec.System = systemNow
			} else {
				rec.Kind = binlog.KindStore
			}
			yield(rec)
		}
	}
}

// CompactNow forces an immediate dense rewrite, bypassing the gate's
// CompactAfterExcess/CompactAfterFullSize thresholds entirely — the
// cachedbctl compact subcommand's entry point. Unlike the gate-driven
// path in checkCompactor, this runs synchronously on the queue rather
// than handing off to a goroutine and posting back, since a one-shot
// CLI invocation has nothing else competing for the queue and wants to
// observe the result directly.
func (db *Database) CompactNow() error {
	var err error
	db.q.Do(func() { err = db.compactNowLocked() })
	return err
}

func (db *Database) compactNowLocked() error {
	if err := db.checkUsable(); err != nil {
		return err
	}

	excessAtStart := db.binlogExcessLength
	originalReadTill := db.live.Size()
	snapshot := db.snapshotLocked()

	res := compactor.Run(db.versionDir, db.key, db.opts.KeySize, db.header.SystemTime, db.header.TracksTime(), originalReadTill, snapshot)
	db.handleCompactorResult(res, excessAtStart)
	return db.fatal
}

// checkCompactor gates compaction on excess/size thresholds: if it's
// time to compact, spawn the dense rewrite on its own goroutine and
// report the result back over the queue (a weak-handle message-post,
// so a closing database never blocks on it).
func (db *Database) checkCompactor() {
	now := time.Now()
	opts := compactor.Options{
		CompactAfterExcess:   db.opts.CompactAfterExcess,
		CompactAfterFullSize: db.opts.CompactAfterFullSize,
	}
	if !db.gate.ShouldRun(now, opts, db.binlogExcessLength, db.live.Size()) {
		return
	}

	db.gate.Start()
	excessAtStart := db.binlogExcessLength
	originalReadTill := db.live.Size()
	snapshot := db.snapshotLocked()

	versionDir := db.versionDir
	key := append([]byte(nil), db.key...)
	keySize := db.opts.KeySize
	systemTime := db.header.SystemTime
	trackTime := db.header.TracksTime()

	go func() {
		res := compactor.Run(versionDir, key, keySize, systemTime, trackTime, originalReadTill, snapshot)
		db.q.Post(func() {
			db.handleCompactorResult(res, excessAtStart)
		})
	}()
}

// handleCompactorResult runs on the serial queue: it catches up the
// side log with whatever was appended to live since the snapshot was
// taken, then performs the atomic rename swap.
func (db *Database) handleCompactorResult(res compactor.Result, excessAtStart int64) {
	if res.Err != nil {
		db.gate.Failed(time.Now())
		os.Remove(compactor.SidePath(db.versionDir))
		return
	}

	side, _, _, err := binlog.Open(res.SidePath, db.key, db.opts.KeySize, db.header.SystemTime, db.header.TracksTime())
	if err != nil {
		db.gate.Failed(time.Now())
		os.Remove(res.SidePath)
		return
	}

	// db.ix already reflects every record appended to live since
	// originalReadTill — every put/remove/access runs on this same
	// queue and applies its record the moment it's appended. CatchUp
	// only needs to copy those records into the side log; re-applying
	// them to db.ix would double their binlogExcessLength contribution.
	noop := func(binlog.Record) {}
	if _, err := compactor.CatchUp(db.live, side, res.OriginalReadTill, db.opts.ReadBlockSize, db.opts.MaxDataSize, noop); err != nil {
		side.Close()
		os.Remove(res.SidePath)
		db.gate.Failed(time.Now())
		return
	}

	if err := side.Close(); err != nil {
		os.Remove(res.SidePath)
		db.gate.Failed(time.Now())
		return
	}

	if err := db.live.Close(); err != nil {
		db.fatal = fmt.Errorf("%w: close live binlog before swap: %v", ErrFatal, err)
		return
	}

	newLive, err := compactor.Swap(db.versionDir, db.key, db.opts.KeySize, db.header.SystemTime, db.header.TracksTime())
	if err != nil {
		db.fatal = fmt.Errorf("%w: %v", ErrFatal, err)
		return
	}
	db.live = newLive

	db.binlogExcessLength -= excessAtStart
	if db.binlogExcessLength < 0 {
		db.binlogExcessLength = 0
	}
	db.gate.Succeeded()
}
