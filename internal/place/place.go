// Package place implements PlaceId: the random identifier naming a
// value file on disk, and its derivation into a two-level fan-out path.
package place

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
)

// Size is the byte width of a PlaceId: 16 bytes comfortably clears a
// "≥ 2^48 distinct values, negligible collision probability" floor.
const Size = 16

// ID is an opaque place identifier.
type ID [Size]byte

// ErrExhausted is returned by Draw when maxAttempts random draws all
// collided with an existing file. The retry is capped rather than
// looping forever.
var ErrExhausted = errors.New("place: exhausted retries drawing a free place")

const maxAttempts = 32

// Draw picks a random ID for which exists(path) is false, retrying up
// to maxAttempts times. Collisions at 128 bits of randomness are
// astronomically unlikely; the cap exists only to turn a
// pathological/adversarial disk state into an error instead of an
// infinite loop.
func Draw(baseDir string, exists func(p ID) bool) (ID, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var id ID
		if _, err := rand.Read(id[:]); err != nil {
			return ID{}, err
		}
		if !exists(id) {
			return id, nil
		}
	}
	return ID{}, ErrExhausted
}

// Path derives the on-disk path for id under baseDir: the uppercase
// hex of id's bytes, with the first byte's hex forming a subdirectory
// and the remainder the filename — "b0/b1b2b3...". Within a single
// byte the low nibble is encoded before the high nibble.
func Path(baseDir string, id ID) string {
	return filepath.Join(baseDir, Dir(id), File(id))
}

// Dir is the first-level fan-out directory name for id.
func Dir(id ID) string {
	return nibbleHex(id[0])
}

// File is the filename (everything after the fan-out directory) for id.
func File(id ID) string {
	buf := make([]byte, 0, (Size-1)*2)
	for _, b := range id[1:] {
		buf = append(buf, nibbleHex(b)...)
	}
	return string(buf)
}

// nibbleHex renders b as two uppercase hex digits, low nibble first.
func nibbleHex(b byte) string {
	lo := b & 0x0f
	hi := b >> 4
	out := [2]byte{hexDigit(lo), hexDigit(hi)}
	return string(out[:])
}

func hexDigit(n byte) byte {
	const digits = "0123456789ABCDEF"
	return digits[n]
}

// Exists reports whether a file already sits at id's path under
// baseDir. This is the default exists predicate Draw is typically
// called with from blobstore.
func Exists(baseDir string, id ID) bool {
	_, err := os.Stat(Path(baseDir, id))
	return err == nil
}

// String renders id using the standard (non-fan-out) hex encoding,
// useful for logs and the cachedbctl CLI.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}
