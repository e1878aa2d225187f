// Package vfile implements the encrypted, random-access file primitive
// that the binlog and blobstore packages are built on: a stream-cipher
// file object with an open contract of
// {Success,Failed,LockFailed,WrongKey}.
package vfile

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/sys/unix"
)

// OpenMode selects whether a file must already exist.
type OpenMode int

const (
	// OpenExisting fails if the file does not exist.
	OpenExisting OpenMode = iota
	// OpenAlways creates the file if it is missing.
	OpenAlways
)

// Status is the outcome of Open: success, failure, a held lock, or a
// key that doesn't decrypt the stored key-check block.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusLockFailed
	StatusWrongKey
)

// lockHeaderSize and the key-check block are written once at offset 0,
// ahead of any caller payload. Locking is a separate whole-file
// advisory flock taken at Open, not a byte-range lock on this header.
//
// Layout: magic (plaintext) | nonce (plaintext) | key-check (encrypted).
// The nonce has to be readable before a cipher can be built at all, so
// it stays in the clear; the key-check block is encrypted with that
// nonce and a reserved counter, and must decrypt to keyCheckPattern or
// the supplied key is wrong.
const (
	headerMagic    = uint32(0x48434143) // "CACH"
	keyCheckSize   = 32
	lockHeaderSize = 4 + chacha20.NonceSize + keyCheckSize
	blockSize      = 4096 // padding granularity for writeWithPadding
)

// keyCheckCounter is the ChaCha20 block counter reserved for the
// key-check block, kept out of the range streamAt ever computes from a
// post-header byte offset (offset/64 starts at 0 and only grows with
// file size) so the key-check keystream never overlaps real data.
const keyCheckCounter = ^uint32(0)

var (
	// ErrWrongKey is returned internally by Open when the key-check
	// block does not decrypt to the expected pattern.
	ErrWrongKey = errors.New("vfile: wrong key")
)

// keyCheckPattern is the known plaintext written into the key-check
// block. Any value works as long as writer and reader agree; repeating
// the header magic makes a hex dump of the block self-describing.
func keyCheckPattern() []byte {
	buf := make([]byte, keyCheckSize)
	for i := 0; i < len(buf); i += 4 {
		binary.LittleEndian.PutUint32(buf[i:i+4], headerMagic)
	}
	return buf
}

// File is an encrypted, randomly-accessible file. All reads and writes
// pass through a ChaCha20 keystream seeded from the caller's key and a
// per-file nonce stored (in the clear) in the header; Open takes a
// non-blocking advisory flock on the whole file, so a second open of
// the same path fails fast with
// StatusLockFailed instead of silently corrupting the stream.
type File struct {
	f       *os.File
	cipher  cipherFactory
	nonce   [chacha20.NonceSize]byte
	pos     int64 // logical offset, post-header
}

type cipherFactory func(counter uint32) (*chacha20.Cipher, error)

// Open opens or creates path, deriving the keystream from key (exactly
// 32 bytes, as chacha20 requires). The returned Status follows the
// four-way open contract; only StatusSuccess yields a usable File.
func Open(path string, mode OpenMode, key []byte) (*File, Status, error) {
	if len(key) != chacha20.KeySize {
		return nil, StatusFailed, fmt.Errorf("vfile: key must be %d bytes", chacha20.KeySize)
	}

	flags := os.O_RDWR
	if mode == OpenAlways {
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, StatusFailed, err
		}
		return nil, StatusFailed, err
	}

	if err := lockHeader(f); err != nil {
		f.Close()
		return nil, StatusLockFailed, err
	}

	info, err := f.Stat()
	if err != nil {
		unlockHeader(f)
		f.Close()
		return nil, StatusFailed, err
	}

	vf := &File{f: f}

	if info.Size() == 0 {
		if err := vf.writeFreshHeader(key); err != nil {
			unlockHeader(f)
			f.Close()
			return nil, StatusFailed, err
		}
		return vf, StatusSuccess, nil
	}

	if err := vf.readHeader(key); err != nil {
		unlockHeader(f)
		f.Close()
		if errors.Is(err, ErrWrongKey) {
			return nil, StatusWrongKey, err
		}
		return nil, StatusFailed, err
	}

	return vf, StatusSuccess, nil
}

func lockHeader(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func unlockHeader(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func (vf *File) writeFreshHeader(key []byte) error {
	if _, err := io.ReadFull(rand.Reader, vf.nonce[:]); err != nil {
		return err
	}

	vf.cipher = func(counter uint32) (*chacha20.Cipher, error) {
		c, err := chacha20.NewUnauthenticatedCipher(key, vf.nonce[:])
		if err != nil {
			return nil, err
		}
		c.SetCounter(counter)
		return c, nil
	}

	check, err := vf.cipher(keyCheckCounter)
	if err != nil {
		return err
	}
	encryptedCheck := make([]byte, keyCheckSize)
	check.XORKeyStream(encryptedCheck, keyCheckPattern())

	header := make([]byte, lockHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], headerMagic)
	copy(header[4:4+chacha20.NonceSize], vf.nonce[:])
	copy(header[4+chacha20.NonceSize:], encryptedCheck)

	if _, err := vf.f.WriteAt(header, 0); err != nil {
		return err
	}
	return vf.f.Sync()
}

func (vf *File) readHeader(key []byte) error {
	header := make([]byte, lockHeaderSize)
	if _, err := io.ReadFull(io.NewSectionReader(vf.f, 0, lockHeaderSize), header); err != nil {
		return fmt.Errorf("vfile: short header: %w", err)
	}

	if binary.LittleEndian.Uint32(header[0:4]) != headerMagic {
		return fmt.Errorf("vfile: bad header magic")
	}
	copy(vf.nonce[:], header[4:4+chacha20.NonceSize])
	encryptedCheck := header[4+chacha20.NonceSize : lockHeaderSize]

	vf.cipher = func(counter uint32) (*chacha20.Cipher, error) {
		c, err := chacha20.NewUnauthenticatedCipher(key, vf.nonce[:])
		if err != nil {
			return nil, err
		}
		c.SetCounter(counter)
		return c, nil
	}

	check, err := vf.cipher(keyCheckCounter)
	if err != nil {
		return err
	}
	decryptedCheck := make([]byte, keyCheckSize)
	check.XORKeyStream(decryptedCheck, encryptedCheck)
	if !bytes.Equal(decryptedCheck, keyCheckPattern()) {
		return ErrWrongKey
	}
	return nil
}

// streamAt XORs data in place against the keystream starting at the
// given post-header byte offset. ChaCha20 is a block cipher in
// disguise (64-byte blocks); offsets not aligned to 64 bytes are
// handled by discarding the unwanted keystream prefix.
func (vf *File) streamAt(offset int64, data []byte) error {
	blockOffset := offset / 64
	skip := int(offset % 64)

	c, err := vf.cipher(uint32(blockOffset))
	if err != nil {
		return err
	}

	if skip == 0 {
		c.XORKeyStream(data, data)
		return nil
	}

	buf := make([]byte, skip+len(data))
	copy(buf[skip:], data)
	c.XORKeyStream(buf, buf)
	copy(data, buf[skip:])
	return nil
}

// Read reads len(p) bytes starting at the file's current logical
// position (post-header), advancing it. Short reads return
// io.ErrUnexpectedEOF, treating a partial read as corruption.
func (vf *File) Read(p []byte) (int, error) {
	n, err := vf.f.ReadAt(p, lockHeaderSize+vf.pos)
	if n > 0 {
		if decErr := vf.streamAt(vf.pos, p[:n]); decErr != nil {
			return n, decErr
		}
		vf.pos += int64(n)
	}
	if err == io.EOF && n == len(p) {
		err = nil
	} else if err == io.EOF && n < len(p) {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// Write encrypts and writes p at the file's current logical position,
// advancing it.
func (vf *File) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	if err := vf.streamAt(vf.pos, buf); err != nil {
		return 0, err
	}
	n, err := vf.f.WriteAt(buf, lockHeaderSize+vf.pos)
	vf.pos += int64(n)
	return n, err
}

// WriteWithPadding pads p up to the next blockSize boundary with
// zeroes before writing, producing a block-padded value file. It
// returns the padded length actually written.
func (vf *File) WriteWithPadding(p []byte) (int, error) {
	padded := len(p)
	if rem := padded % blockSize; rem != 0 {
		padded += blockSize - rem
	}
	buf := make([]byte, padded)
	copy(buf, p)
	n, err := vf.Write(buf)
	return n, err
}

// ReadWithPadding reads exactly size logical bytes, discarding any
// trailing pad bytes up to the next block boundary the caller wrote.
// The position advances past the padding as well as the `size` bytes.
func (vf *File) ReadWithPadding(size int) ([]byte, error) {
	padded := size
	if rem := padded % blockSize; rem != 0 {
		padded += blockSize - rem
	}
	buf := make([]byte, padded)
	if _, err := io.ReadFull(vf, buf); err != nil {
		return nil, err
	}
	return buf[:size], nil
}

// Seek repositions the logical (post-header) offset.
func (vf *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		vf.pos = offset
	case io.SeekCurrent:
		vf.pos += offset
	case io.SeekEnd:
		size, err := vf.Size()
		if err != nil {
			return 0, err
		}
		vf.pos = size + offset
	default:
		return 0, fmt.Errorf("vfile: invalid whence %d", whence)
	}
	return vf.pos, nil
}

// Size returns the logical (post-header) length of the file.
func (vf *File) Size() (int64, error) {
	info, err := vf.f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size() - lockHeaderSize
	if size < 0 {
		size = 0
	}
	return size, nil
}

// Flush fsyncs the underlying file.
func (vf *File) Flush() error {
	return vf.f.Sync()
}

// Truncate truncates the logical file to size bytes.
func (vf *File) Truncate(size int64) error {
	return vf.f.Truncate(lockHeaderSize + size)
}

// Close releases the header lock and closes the underlying file.
func (vf *File) Close() error {
	unlockHeader(vf.f)
	return vf.f.Close()
}
