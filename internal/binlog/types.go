// Package binlog is the append-only, tagged-record stream: the ground
// truth the in-memory index is replayed from on open, and the thing
// compaction rewrites. Every record is fixed-size per kind,
// little-endian, and carries its own length implicitly (the reader
// always knows how many bytes a kind needs before it needs to
// interpret them).
package binlog

import (
	"errors"

	"cachedb/internal/place"
)

// Kind tags the record that follows it.
type Kind byte

const (
	KindStore Kind = 1 + iota
	KindStoreWithTime
	KindMultiStore
	KindMultiStoreWithTime
	KindMultiRemove
	KindMultiAccess
)

const headerMagic = uint32(0x474f4c42) // "BLOG"
const headerVersion = byte(1)

// FlagTrackEstimatedTime records a frozen-at-creation choice: whether
// useTime/MultiAccess records are meaningful for this binlog, set once
// in the header and never changed afterward.
const FlagTrackEstimatedTime = byte(1 << 0)

// ErrIncompatible is returned by Open when the caller's KeySize doesn't
// match the one stored in the header at creation. Every record in the
// log is framed using the key width baked into the header; opening it
// with a different width would mis-frame every record rather than
// fail cleanly, so this is checked explicitly instead of left to
// surface as decode corruption.
var ErrIncompatible = errors.New("binlog: incompatible header")

// Header is the record written once at binlog offset 0 (post-vfile
// header): magic, format version, the wall-clock system time at
// creation (the clock's seed point), flags, and the key width every
// record in the log is framed with.
type Header struct {
	SystemTime int64
	Flags      byte
	KeySize    int
}

func (h Header) TracksTime() bool {
	return h.Flags&FlagTrackEstimatedTime != 0
}

// Part is one entry of a MultiStore/MultiStoreWithTime record.
type Part struct {
	Key      []byte
	Place    place.ID
	Tag      uint8
	Size     int32
	Checksum uint32
}

// Record is the decoded form of one binlog record, as produced by the
// reader and consumed by internal/database's replay/apply path.
type Record struct {
	Kind Kind

	// Store / StoreWithTime
	Key      []byte
	Place    place.ID
	Tag      uint8
	Size     int32
	Checksum uint32
	Time     uint64 // relative time; 0 if untracked
	System   int64  // wall-clock second Time was stamped at; 0 if untracked

	// MultiStore / MultiStoreWithTime
	Parts []Part

	// MultiRemove / MultiAccess
	Keys [][]byte
}

// Stats summarizes the outcome of one Replay call.
type Stats struct {
	RecordsApplied int
	Truncated      bool
	TruncatedAt    int64
}
