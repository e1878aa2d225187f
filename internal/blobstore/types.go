// Package blobstore reads, writes, and deletes the place-addressed
// value files: one encrypted, block-padded file per live index entry,
// and none for any other key (the file/index parity invariant).
package blobstore

// Store is a handle to the value-file tree under a version directory.
type Store struct {
	dir string
	key []byte
}
