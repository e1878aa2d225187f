package database

import (
	"cachedb/internal/binlog"
	"cachedb/internal/clock"
	"cachedb/internal/index"
)

// applyRecord dispatches one decoded binlog record onto ix and clk —
// the same function drives both replay on open and every live append,
// so memory and log agree by construction. excess accumulates
// binlogExcessLength: MultiRemove and MultiAccess contribute their
// full on-wire size, a Store overwriting an existing key contributes
// its own record's worth.
func applyRecord(ix *index.Index, clk *clock.Clock, excess *int64, keySize int, r binlog.Record) {
	switch r.Kind {
	case binlog.KindStore, binlog.KindStoreWithTime:
		key := index.NewKey(r.Key)
		e := index.Entry{Place: r.Place, Tag: r.Tag, Size: r.Size, Checksum: r.Checksum}
		if r.Kind == binlog.KindStoreWithTime {
			e.UseTime = r.Time
			clk.Advance(clock.Point{System: r.System, Relative: r.Time})
		}
		if _, existed := ix.Put(key, e); existed {
			*excess += binlog.RecordSize(keySize, r)
		}

	case binlog.KindMultiStore, binlog.KindMultiStoreWithTime:
		withTime := r.Kind == binlog.KindMultiStoreWithTime
		if withTime {
			clk.Advance(clock.Point{System: r.System, Relative: r.Time})
		}
		for _, part := range r.Parts {
			key := index.NewKey(part.Key)
			e := index.Entry{Place: part.Place, Tag: part.Tag, Size: part.Size, Checksum: part.Checksum}
			if withTime {
				e.UseTime = r.Time
			}
			if _, existed := ix.Put(key, e); existed {
				*excess += singleStoreWidth(keySize, withTime)
			}
		}

	case binlog.KindMultiRemove:
		*excess += binlog.RecordSize(keySize, r)
		for _, k := range r.Keys {
			ix.Remove(index.NewKey(k))
		}

	case binlog.KindMultiAccess:
		*excess += binlog.RecordSize(keySize, r)
		clk.Advance(clock.Point{System: r.System, Relative: r.Time})
		for _, k := range r.Keys {
			ix.Touch(index.NewKey(k), r.Time)
		}
	}
}

// singleStoreWidth approximates the on-wire width of one MultiStore
// part as if it had been written as a standalone Store/StoreWithTime
// record, for excess-length accounting on per-part overwrites.
func singleStoreWidth(keySize int, withTime bool) int64 {
	kind := binlog.KindStore
	if withTime {
		kind = binlog.KindStoreWithTime
	}
	return binlog.RecordSize(keySize, binlog.Record{Kind: kind})
}
