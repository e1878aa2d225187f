package binlog

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"cachedb/internal/place"
)

type testLogHandle struct {
	path string
	key  []byte
}

func openTestLog(t *testing.T, trackTime bool) (*Log, testLogHandle) {
	dir, err := os.MkdirTemp("", "binlog-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	key := make([]byte, 32)
	rand.Read(key)
	path := filepath.Join(dir, "binlog")

	l, h, status, err := Open(path, key, 16, 42, trackTime)
	if err != nil {
		t.Fatalf("open: %v (status=%v)", err, status)
	}
	if h.TracksTime() != trackTime {
		t.Fatalf("header TracksTime = %v, want %v", h.TracksTime(), trackTime)
	}
	return l, testLogHandle{path: path, key: key}
}

func (h testLogHandle) reopen(t *testing.T) *Log {
	t.Helper()
	l, _, status, err := Open(h.path, h.key, 16, 42, false)
	if err != nil {
		t.Fatalf("reopen: %v (status=%v)", err, status)
	}
	return l
}

func TestRoundTripAllKinds(t *testing.T) {
	l, handle := openTestLog(t, true)

	var p1, p2 place.ID
	p1[0], p2[0] = 1, 2

	records := []Record{
		{Kind: KindStore, Key: testKey("k1", 16), Place: p1, Tag: 1, Size: 10, Checksum: 111},
		{Kind: KindStoreWithTime, Key: testKey("k2", 16), Place: p2, Tag: 2, Size: 20, Checksum: 222, Time: 5},
		{Kind: KindMultiStore, Parts: []Part{
			{Key: testKey("k3", 16), Tag: 3, Size: 30, Checksum: 333},
			{Key: testKey("k4", 16), Tag: 4, Size: 40, Checksum: 444},
		}},
		{Kind: KindMultiStoreWithTime, Time: 9, Parts: []Part{
			{Key: testKey("k5", 16), Tag: 5, Size: 50, Checksum: 555},
		}},
		{Kind: KindMultiRemove, Keys: [][]byte{testKey("k1", 16), testKey("k2", 16)}},
		{Kind: KindMultiAccess, Time: 11, Keys: [][]byte{testKey("k3", 16)}},
		{Kind: KindMultiAccess, Time: 12, Keys: nil}, // the zero-key MultiAccessBlock clock pin
	}

	for _, r := range records {
		if _, err := l.Append(r); err != nil {
			t.Fatalf("append %v: %v", r.Kind, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l2 := handle.reopen(t)
	defer l2.Close()

	var got []Record
	stats, err := l2.Replay(1<<20, func(r Record) { got = append(got, r) })
	if err != nil {
		t.Fatal(err)
	}
	if stats.Truncated {
		t.Fatal("clean log must not report truncation")
	}
	if len(got) != len(records) {
		t.Fatalf("replayed %d records, want %d", len(got), len(records))
	}

	for i, want := range records {
		have := got[i]
		if have.Kind != want.Kind {
			t.Fatalf("record %d kind = %v, want %v", i, have.Kind, want.Kind)
		}
		switch want.Kind {
		case KindStore, KindStoreWithTime:
			if !bytes.Equal(have.Key, want.Key) || have.Place != want.Place || have.Tag != want.Tag ||
				have.Size != want.Size || have.Checksum != want.Checksum || have.Time != want.Time {
				t.Fatalf("record %d = %+v, want %+v", i, have, want)
			}
		case KindMultiStore, KindMultiStoreWithTime:
			if len(have.Parts) != len(want.Parts) || have.Time != want.Time {
				t.Fatalf("record %d = %+v, want %+v", i, have, want)
			}
			for j := range want.Parts {
				if !bytes.Equal(have.Parts[j].Key, want.Parts[j].Key) || have.Parts[j].Checksum != want.Parts[j].Checksum {
					t.Fatalf("record %d part %d = %+v, want %+v", i, j, have.Parts[j], want.Parts[j])
				}
			}
		case KindMultiRemove, KindMultiAccess:
			if len(have.Keys) != len(want.Keys) || have.Time != want.Time {
				t.Fatalf("record %d = %+v, want %+v", i, have, want)
			}
		}
	}
}

func TestStoreSizeOutOfRangeStopsReplay(t *testing.T) {
	l, handle := openTestLog(t, false)

	if _, err := l.Append(Record{Kind: KindStore, Key: testKey("ok", 16), Tag: 1, Size: 10, Checksum: 1}); err != nil {
		t.Fatal(err)
	}
	// This record has size 0, which trips the "size ≤ 0" replay stop condition.
	if _, err := l.Append(Record{Kind: KindStore, Key: testKey("bad", 16), Tag: 1, Size: 0, Checksum: 1}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l2 := handle.reopen(t)
	defer l2.Close()

	stats, err := l2.Replay(1<<20, func(Record) {})
	if err != nil {
		t.Fatal(err)
	}
	if stats.RecordsApplied != 1 || !stats.Truncated {
		t.Fatalf("stats = %+v, want 1 applied, truncated", stats)
	}
}

func TestMaxDataSizeRejectsOversizedStore(t *testing.T) {
	l, handle := openTestLog(t, false)

	if _, err := l.Append(Record{Kind: KindStore, Key: testKey("big", 16), Tag: 1, Size: 2000, Checksum: 1}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l2 := handle.reopen(t)
	defer l2.Close()

	stats, err := l2.Replay(1000, func(Record) {})
	if err != nil {
		t.Fatal(err)
	}
	if stats.RecordsApplied != 0 || !stats.Truncated {
		t.Fatalf("stats = %+v, want 0 applied, truncated", stats)
	}
}
