package cachedb

import (
	"errors"
	"fmt"

	"cachedb/internal/database"
)

// Sentinel errors every Error wraps. Use errors.Is to test for them.
var (
	// ErrIO covers any failure reading or writing the cache directory
	// that isn't a lock or key mismatch.
	ErrIO = errors.New("cachedb: i/o error")

	// ErrLockFailed is returned by Open when another process already
	// holds the binlog's lock.
	ErrLockFailed = errors.New("cachedb: lock failed")

	// ErrWrongKey is returned by Open when the supplied key does not
	// match the one the cache directory was created with.
	ErrWrongKey = errors.New("cachedb: wrong key")

	// ErrIncompatible is returned by Open when Options.KeySize does not
	// match the key width the cache directory was created with.
	ErrIncompatible = errors.New("cachedb: incompatible options")

	// ErrClosed is returned by any method called after Close.
	ErrClosed = errors.New("cachedb: use of closed database")

	// ErrFatal marks a database that could not recover after a failed
	// compaction swap; every further operation returns this.
	ErrFatal = errors.New("cachedb: fatal, database closed for this session")
)

// Error wraps one of the sentinels above with the directory the
// failure happened in, following errors.Is-comparable wrapping the way
// the rest of the example pack's sentinel-error packages do.
type Error struct {
	Type error
	Path string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Type.Error()
	}
	return fmt.Sprintf("%s: %s", e.Type.Error(), e.Path)
}

func (e *Error) Unwrap() error {
	return e.Type
}

func wrapErr(path string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, database.ErrLockFailed):
		return &Error{Type: ErrLockFailed, Path: path}
	case errors.Is(err, database.ErrWrongKey):
		return &Error{Type: ErrWrongKey, Path: path}
	case errors.Is(err, database.ErrIncompatible):
		return &Error{Type: ErrIncompatible, Path: path}
	case errors.Is(err, database.ErrClosed):
		return &Error{Type: ErrClosed, Path: path}
	case errors.Is(err, database.ErrFatal):
		return &Error{Type: ErrFatal, Path: path}
	default:
		return &Error{Type: ErrIO, Path: path}
	}
}
