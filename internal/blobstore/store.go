package blobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cachedb/internal/place"
	"cachedb/internal/vfile"
)

// Write creates (or overwrites) the value file at id's path, padding
// to the encryption block size. It is the last step of a put and runs
// after the binlog record is already flushed.
func (s *Store) Write(id place.ID, data []byte) error {
	path := place.Path(s.dir, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, status, err := vfile.Open(path, vfile.OpenAlways, s.key)
	if status != vfile.StatusSuccess {
		return fmt.Errorf("blobstore: open %s: %w", path, err)
	}
	defer f.Close()

	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteWithPadding(data); err != nil {
		return err
	}
	return f.Flush()
}

// Read returns the size bytes stored at id's path, stripping the
// trailing pad. A missing or short file is reported as an error so
// callers can translate it into "corruption is a miss" rather than
// propagate a partial read.
func (s *Store) Read(id place.ID, size int) ([]byte, error) {
	path := place.Path(s.dir, id)

	f, status, err := vfile.Open(path, vfile.OpenExisting, s.key)
	if status != vfile.StatusSuccess {
		return nil, fmt.Errorf("blobstore: open %s: %w", path, err)
	}
	defer f.Close()

	data, err := f.ReadWithPadding(size)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, fmt.Errorf("blobstore: short read at %s", path)
		}
		return nil, err
	}
	return data, nil
}

// Delete removes the value file at id's path. A missing file is not
// an error — removing an absent key is a no-op.
func (s *Store) Delete(id place.ID) error {
	err := os.Remove(place.Path(s.dir, id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether a value file sits at id's path. Used by the
// free-place search during a put.
func (s *Store) Exists(id place.ID) bool {
	return place.Exists(s.dir, id)
}
