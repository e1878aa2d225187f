package compactor

import (
	"fmt"
	"os"

	"cachedb/internal/binlog"
)

// CatchUp reads whatever was appended to live since result's
// OriginalReadTill, applies each record via apply (so the caller's
// index stays authoritative) and appends the same records onto the
// side log so it reflects everything the live log does. It runs on
// the database's own queue — the only place allowed to touch live —
// and covers the case where the live binlog has grown since the
// snapshot was taken. live.Size() is fixed for the duration of this
// call since only the queue goroutine appends to live and it is the
// one calling CatchUp. Reading happens in readBlockSize chunks rather
// than one unbounded pass, bounding how many decoded records are held
// in memory at once when a long-running compaction leaves a large gap
// to catch up on. Returns the new high-water mark catch-up reached.
func CatchUp(live, side *binlog.Log, from int64, readBlockSize int32, maxDataSize int32, apply func(binlog.Record)) (int64, error) {
	tail := live.Size()
	pos := from
	for pos < tail {
		records, reached, err := live.ReadRange(pos, int64(readBlockSize), maxDataSize)
		if err != nil {
			return pos, fmt.Errorf("compactor: catch-up read: %w", err)
		}
		if reached == pos {
			return pos, fmt.Errorf("compactor: catch-up stalled at %d (tail %d)", pos, tail)
		}
		for _, r := range records {
			apply(r)
			if _, err := side.Append(r); err != nil {
				return reached, fmt.Errorf("compactor: catch-up append: %w", err)
			}
		}
		pos = reached
	}
	return pos, nil
}

// Swap performs the two-hop rename side -> ready -> live path, then
// reopens the live path. The caller must have closed the live log
// before calling Swap; Swap does not close it. On success it returns a
// freshly opened *binlog.Log positioned at the end of the file.
func Swap(versionDir string, key []byte, keySize int, systemTime int64, trackTime bool) (*binlog.Log, error) {
	readyPath := binlog.ReadyPath(versionDir)
	livePath := binlog.Path(versionDir)

	if err := os.Rename(SidePath(versionDir), readyPath); err != nil {
		return nil, fmt.Errorf("compactor: rename side to ready: %w", err)
	}
	if err := os.Rename(readyPath, livePath); err != nil {
		return nil, fmt.Errorf("compactor: rename ready to live: %w", err)
	}

	newLive, _, status, err := binlog.Open(livePath, key, keySize, systemTime, trackTime)
	if err != nil {
		return nil, fmt.Errorf("compactor: reopen after swap (status=%v): %w", status, err)
	}
	return newLive, nil
}
