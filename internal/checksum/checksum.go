// Package checksum computes the xxHash32 (seed 0) digest used to
// detect value-file corruption on read: a blob whose digest no longer
// matches its index entry is treated as a miss, never as a reason to
// panic.
package checksum

import "github.com/OneOfOne/xxhash"

// Of returns the xxHash32 digest of data with seed 0.
func Of(data []byte) uint32 {
	return xxhash.Checksum32(data)
}
