package cachedb

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"
)

func testKey(n byte) []byte {
	k := make([]byte, 16)
	k[0] = n
	return k
}

func testCryptoKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	return key
}

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), testCryptoKey(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	if err := db.Put(ctx, testKey(1), []byte("value"), 3); err != nil {
		t.Fatal(err)
	}
	got, ok, err := db.Get(ctx, testKey(1))
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !bytes.Equal(got, []byte("value")) {
		t.Fatalf("got %q ok=%v, want value", got, ok)
	}
}

func TestGetCancelledContextReturnsImmediately(t *testing.T) {
	db := openTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := db.Get(ctx, testKey(2))
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPutManyAndGetManyRaw(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	entries := []PutEntry{
		{Key: testKey(10), Value: []byte("a"), Tag: 1},
		{Key: testKey(11), Value: []byte("b"), Tag: 1},
	}
	if err := db.PutMany(ctx, entries); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetManyRaw(ctx, [][]byte{testKey(10), testKey(11), testKey(12)})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got[0], []byte("a")) || !bytes.Equal(got[1], []byte("b")) || got[2] != nil {
		t.Fatalf("unexpected results: %v", got)
	}
}

func TestStatsAfterPutAndRemove(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	if err := db.Put(ctx, testKey(20), []byte("xyz"), 9); err != nil {
		t.Fatal(err)
	}
	if s := db.Stats(); s.EntryCount != 1 || s.PerTag[9].Count != 1 {
		t.Fatalf("unexpected stats after put: %+v", s)
	}

	if err := db.Remove(ctx, testKey(20)); err != nil {
		t.Fatal(err)
	}
	if s := db.Stats(); s.EntryCount != 0 {
		t.Fatalf("EntryCount = %d after remove, want 0", s.EntryCount)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	for i := byte(0); i < 5; i++ {
		if err := db.Put(ctx, testKey(i), []byte("v"), 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if s := db.Stats(); s.EntryCount != 0 {
		t.Fatalf("EntryCount = %d after clear, want 0", s.EntryCount)
	}
}

func TestCompactAndGCRunWithoutError(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	for i := byte(0); i < 5; i++ {
		if err := db.Put(ctx, testKey(i), []byte("v"), 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.Compact(ctx); err != nil {
		t.Fatal(err)
	}
	if err := db.GC(ctx); err != nil {
		t.Fatal(err)
	}

	got, ok, err := db.Get(ctx, testKey(0))
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("got %q ok=%v after compact, want v", got, ok)
	}
}

func TestOpenWrongKeyReturnsWrongKeyError(t *testing.T) {
	dir := t.TempDir()
	key := testCryptoKey(t)

	db, err := Open(dir, key)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = Open(dir, testCryptoKey(t))
	if !errors.Is(err, ErrWrongKey) {
		t.Fatalf("err = %v, want ErrWrongKey opening with the wrong key", err)
	}
}
