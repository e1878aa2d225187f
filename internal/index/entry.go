package index

// NewKey converts a fixed-width key byte slice into the map-key form.
// The caller (internal/database) is responsible for the width matching
// cachedb.Options.KeySize; index itself stays width-agnostic.
func NewKey(raw []byte) Key {
	return Key(raw)
}

// Bytes returns the raw key bytes.
func (k Key) Bytes() []byte {
	return []byte(k)
}

// Stale reports whether e's useTime qualifies it as stale for a
// time-prune run as of the logical instant "before": tracking must be
// on (UseTime != 0) and the entry at or before the cutoff.
func (e Entry) Stale(before uint64) bool {
	return e.UseTime != 0 && e.UseTime <= before
}
