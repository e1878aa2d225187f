package database

import "errors"

// ErrLockFailed is returned by Open when another process already holds
// the binlog's header lock.
var ErrLockFailed = errors.New("database: lock failed")

// ErrWrongKey is returned by Open when the supplied key does not match
// the one the binlog was created with.
var ErrWrongKey = errors.New("database: wrong key")

// ErrIncompatible is returned by Open when Options.KeySize does not
// match the key width the binlog directory was created with.
var ErrIncompatible = errors.New("database: incompatible options")

// ErrFatal marks a database that failed to reopen its binlog after a
// compaction swap: every subsequent operation returns this without
// touching disk, per DESIGN.md's resolution of that failure mode.
var ErrFatal = errors.New("database: fatal, database closed for this session")

// ErrClosed is returned by operations on a database that has already
// been closed. Calling into a closed database is a caller bug, not a
// recoverable condition, but a sentinel is friendlier than a panic.
var ErrClosed = errors.New("database: use of closed database")
