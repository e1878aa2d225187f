// Package compactor implements the compaction job: a dense rewrite of
// the binlog containing only the entries the index still holds live,
// a catch-up pass for whatever was appended while the rewrite ran, and
// the two-hop atomic rename that finishes the swap. It runs as its own
// goroutine and reports its result back to the database's serial
// queue over a channel, so a closing database can drop the result
// instead of blocking on it.
package compactor

import (
	"fmt"
	"os"
	"path/filepath"

	"cachedb/internal/binlog"
)

// Snapshot yields every live entry to write into the dense replacement
// log, in internal/database's record form. index.Index.ForEach is the
// usual source.
type Snapshot func(yield func(binlog.Record))

// Result is what a Run reports back to the database's queue.
type Result struct {
	SidePath         string
	OriginalReadTill int64
	RecordsWritten   int
	Err              error
}

// Run builds the dense side binlog from snapshot and returns once it's
// flushed and closed — meant to be called in its own goroutine, with
// the result posted back over a channel (internal/database owns the
// channel and its drop-if-closed semantics).
func Run(versionDir string, key []byte, keySize int, systemTime int64, trackTime bool, originalReadTill int64, snapshot Snapshot) Result {
	sidePath := SidePath(versionDir)
	os.Remove(sidePath) // best-effort: clear any orphan from a prior failed attempt

	side, _, status, err := binlog.Open(sidePath, key, keySize, systemTime, trackTime)
	if err != nil {
		return Result{Err: fmt.Errorf("compactor: open side log (status=%v): %w", status, err)}
	}

	written := 0
	var writeErr error
	snapshot(func(r binlog.Record) {
		if writeErr != nil {
			return
		}
		if _, err := side.Append(r); err != nil {
			writeErr = err
			return
		}
		written++
	})

	if writeErr != nil {
		side.Close()
		os.Remove(sidePath)
		return Result{Err: fmt.Errorf("compactor: write dense log: %w", writeErr)}
	}

	if err := side.Close(); err != nil {
		os.Remove(sidePath)
		return Result{Err: fmt.Errorf("compactor: close side log: %w", err)}
	}

	return Result{SidePath: sidePath, OriginalReadTill: originalReadTill, RecordsWritten: written}
}

// SidePath is the scratch file the dense rewrite is built under,
// before the two-hop rename into binlog-ready then binlog.
func SidePath(versionDir string) string {
	return filepath.Join(versionDir, "binlog.compact")
}
