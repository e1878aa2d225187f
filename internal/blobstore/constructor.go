package blobstore

import "os"

// New opens a value-file store rooted at dir (a version directory,
// <base>/<version>/). key is the same encryption key the binlog in
// the same directory was opened with.
func New(dir string, key []byte) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &Store{dir: dir, key: key}, nil
}
