package binlog

import (
	"fmt"
	"io"
	"path/filepath"

	"cachedb/internal/vfile"
)

// FileName is the binlog's filename within a version directory.
const FileName = "binlog"

// ReadyFileName is the name compaction writes its replacement log
// under before the atomic rename that finishes the swap.
const ReadyFileName = "binlog-ready"

// Path and ReadyPath join a version directory with the binlog's two
// well-known filenames.
func Path(versionDir string) string      { return filepath.Join(versionDir, FileName) }
func ReadyPath(versionDir string) string { return filepath.Join(versionDir, ReadyFileName) }

// Log is an open binlog: an append-only stream of records over an
// encrypted internal/vfile.File. Every Append is immediately followed
// by a flush, so Log itself needs no internal buffering or background
// writer — the single serial queue already serializes every caller.
type Log struct {
	vf      *vfile.File
	keySize int
	pos     int64 // logical offset of the tail, where the next Append writes
}

// Open opens or creates the binlog at path, writing a fresh header if
// the file is empty. trackTime seeds the header's flag and is only
// consulted on creation — an existing header's flag always wins.
func Open(path string, key []byte, keySize int, systemTime int64, trackTime bool) (*Log, Header, vfile.Status, error) {
	vf, status, err := vfile.Open(path, vfile.OpenAlways, key)
	if status != vfile.StatusSuccess {
		return nil, Header{}, status, err
	}

	size, err := vf.Size()
	if err != nil {
		vf.Close()
		return nil, Header{}, vfile.StatusFailed, err
	}

	l := &Log{vf: vf, keySize: keySize}

	if size == 0 {
		var flags byte
		if trackTime {
			flags |= FlagTrackEstimatedTime
		}
		h := Header{SystemTime: systemTime, Flags: flags, KeySize: keySize}
		if _, err := vf.Write(encodeHeader(h)); err != nil {
			vf.Close()
			return nil, Header{}, vfile.StatusFailed, err
		}
		if err := vf.Flush(); err != nil {
			vf.Close()
			return nil, Header{}, vfile.StatusFailed, err
		}
		l.pos = headerSize
		return l, h, vfile.StatusSuccess, nil
	}

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(vf, buf); err != nil {
		vf.Close()
		return nil, Header{}, vfile.StatusFailed, err
	}
	h, err := decodeHeader(buf)
	if err != nil {
		vf.Close()
		return nil, Header{}, vfile.StatusFailed, err
	}
	if h.KeySize != keySize {
		vf.Close()
		return nil, Header{}, vfile.StatusFailed, fmt.Errorf("%w: header has key size %d, opened with %d", ErrIncompatible, h.KeySize, keySize)
	}
	// pos starts at the true tail, not just past the header: a caller
	// that reopens an already-populated log (the compactor's side file
	// after Run closes it) must append after the existing records, not
	// overwrite them. Replay re-derives the exact tail by scanning and
	// overwrites this with its own count if the caller replays next.
	l.pos = size
	return l, h, vfile.StatusSuccess, nil
}

// Append encodes r and writes it to the tail of the log, flushing
// before returning. It returns the number of bytes the record occupies
// on disk, for binlogExcessLength bookkeeping.
func (l *Log) Append(r Record) (int64, error) {
	buf, err := encode(l.keySize, r)
	if err != nil {
		return 0, err
	}
	if _, err := l.vf.Seek(l.pos, io.SeekStart); err != nil {
		return 0, err
	}
	if _, err := l.vf.Write(buf); err != nil {
		return 0, err
	}
	if err := l.vf.Flush(); err != nil {
		return 0, err
	}
	l.pos += int64(len(buf))
	return int64(len(buf)), nil
}

// Close releases the underlying file.
func (l *Log) Close() error {
	return l.vf.Close()
}

// Size returns the current tail offset (bytes written past the
// header) — the live binlog's size, and the baseline a compaction job
// records as originalReadTill at the moment it starts its dense
// rewrite.
func (l *Log) Size() int64 {
	return l.pos
}

// ReadRange decodes well-formed records starting at from, stopping
// once at least blockSize bytes have been consumed or the live tail is
// reached, without disturbing the log's append position — used by the
// compactor's catch-up step to translate whatever was appended to the
// live binlog while the dense rewrite was in flight, one bounded chunk
// at a time rather than loading an unbounded catch-up range at once.
// blockSize only bounds where a chunk *stops*; a record straddling the
// boundary is still read in full. It stops early (without error) on
// the same conditions Replay does, since a torn tail here just means
// "nothing more was fully flushed yet".
func (l *Log) ReadRange(from int64, blockSize int64, maxDataSize int32) ([]Record, int64, error) {
	tail := l.pos
	if _, err := l.vf.Seek(from, io.SeekStart); err != nil {
		return nil, from, err
	}

	var records []Record
	pos := from
	for pos < tail {
		kindBuf := make([]byte, 1)
		if !l.readFull(kindBuf) {
			break
		}
		kind := Kind(kindBuf[0])
		rec, size, ok := l.decodeRecordAt(pos, kind, maxDataSize)
		if !ok {
			break
		}
		records = append(records, rec)
		pos += size
		if pos-from >= blockSize {
			break
		}
	}

	if _, err := l.vf.Seek(l.pos, io.SeekStart); err != nil {
		return records, pos, err
	}
	return records, pos, nil
}
