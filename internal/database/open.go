package database

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/natefinch/atomic"

	"cachedb/internal/binlog"
	"cachedb/internal/blobstore"
	"cachedb/internal/bundler"
	"cachedb/internal/cleaner"
	"cachedb/internal/clock"
	"cachedb/internal/index"
	"cachedb/internal/queue"
	"cachedb/internal/vfile"
)

const versionFileName = "version"

// Open reads the version file, finishes any interrupted compaction
// swap, opens the binlog, replays it, and on anything but a lock/key
// failure, falls back to a fresh version directory.
func Open(baseDir string, key []byte, opts Options) (*Database, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("database: create base dir: %w", err)
	}

	version, err := readVersionFile(baseDir)
	if err != nil {
		return nil, fmt.Errorf("database: read version file: %w", err)
	}

	db, openErr := openVersion(baseDir, version, key, opts)
	if openErr == nil {
		return db, nil
	}
	if errors.Is(openErr, ErrLockFailed) || errors.Is(openErr, ErrWrongKey) || errors.Is(openErr, ErrIncompatible) {
		return nil, openErr
	}

	// Step 7: anything else means this version's binlog is unusable.
	// Allocate a fresh version directory and try once more; failure of
	// that second attempt is the terminal I/O error.
	fresh, verr := lowestUnusedVersion(baseDir)
	if verr != nil {
		return nil, fmt.Errorf("database: allocate fresh version: %w", verr)
	}
	if werr := writeVersionFile(baseDir, fresh); werr != nil {
		return nil, fmt.Errorf("database: write version file: %w", werr)
	}
	db, err = openVersion(baseDir, fresh, key, opts)
	if err != nil {
		return nil, fmt.Errorf("database: open fresh version after recovery failure: %w", err)
	}
	return db, nil
}

func openVersion(baseDir string, version int, key []byte, opts Options) (*Database, error) {
	versionDir := filepath.Join(baseDir, strconv.Itoa(version))
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return nil, err
	}

	// Step 2: finish an interrupted compaction swap.
	readyPath := binlog.ReadyPath(versionDir)
	if _, err := os.Stat(readyPath); err == nil {
		if err := os.Rename(readyPath, binlog.Path(versionDir)); err != nil {
			return nil, fmt.Errorf("database: finish compaction swap: %w", err)
		}
	}

	systemTime := time.Now().Unix()
	live, header, status, err := binlog.Open(binlog.Path(versionDir), key, opts.KeySize, systemTime, opts.TrackEstimatedTime)
	if status == vfile.StatusLockFailed {
		return nil, fmt.Errorf("%w: %v", ErrLockFailed, err)
	}
	if status == vfile.StatusWrongKey {
		return nil, fmt.Errorf("%w: %v", ErrWrongKey, err)
	}
	if errors.Is(err, binlog.ErrIncompatible) {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if err != nil {
		return nil, err
	}

	blobs, err := blobstore.New(versionDir, key)
	if err != nil {
		live.Close()
		return nil, err
	}

	cl := cleaner.New(baseDir, func() int { return version })
	cl.Start()

	ix := index.New()
	clk := clock.New(clock.Point{System: header.SystemTime})
	var excess int64

	_, err = live.Replay(opts.MaxDataSize, func(r binlog.Record) {
		applyRecord(ix, clk, &excess, opts.KeySize, r)
	})
	if err != nil {
		cl.Stop()
		live.Close()
		return nil, err
	}

	db := &Database{
		baseDir:            baseDir,
		key:                append([]byte(nil), key...),
		opts:               opts,
		version:            version,
		versionDir:         versionDir,
		live:               live,
		header:             header,
		ix:                 ix,
		blobs:              blobs,
		bundle:             bundler.New(opts.MaxBundledRecords),
		clk:                clk,
		binlogExcessLength: excess,
		cleaner:            cl,
	}

	wallNow := time.Now()
	if db.clk.Point().NeedsPin(wallNow) {
		db.pinClock(wallNow)
	}

	db.q = queue.New()
	db.optimizeLocked()

	return db, nil
}

func (db *Database) activeVersion() int {
	return db.version
}

func versionFilePath(baseDir string) string {
	return filepath.Join(baseDir, versionFileName)
}

func readVersionFile(baseDir string) (int, error) {
	data, err := os.ReadFile(versionFilePath(baseDir))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	v, err := strconv.Atoi(string(bytes.TrimSpace(data)))
	if err != nil {
		return 0, nil
	}
	return v, nil
}

func writeVersionFile(baseDir string, version int) error {
	return atomic.WriteFile(versionFilePath(baseDir), bytes.NewReader([]byte(strconv.Itoa(version))))
}

// lowestUnusedVersion scans baseDir for numeric subdirectories and
// returns the smallest non-negative integer not already taken.
func lowestUnusedVersion(baseDir string) (int, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	used := make(map[int]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil {
			used[n] = true
		}
	}
	for v := 0; ; v++ {
		if !used[v] {
			return v, nil
		}
	}
}
