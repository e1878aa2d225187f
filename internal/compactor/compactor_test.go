package compactor

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cachedb/internal/binlog"
)

func testKey(s string) []byte {
	b := make([]byte, 16)
	copy(b, s)
	return b
}

func TestRunWritesSnapshotToSideLog(t *testing.T) {
	dir, err := os.MkdirTemp("", "compactor-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	key := make([]byte, 32)
	rand.Read(key)

	records := []binlog.Record{
		{Kind: binlog.KindStore, Key: testKey("a"), Tag: 1, Size: 10, Checksum: 1},
		{Kind: binlog.KindStore, Key: testKey("b"), Tag: 1, Size: 20, Checksum: 2},
	}

	result := Run(dir, key, 16, 100, false, 500, func(yield func(binlog.Record)) {
		for _, r := range records {
			yield(r)
		}
	})
	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if result.RecordsWritten != 2 {
		t.Fatalf("RecordsWritten = %d, want 2", result.RecordsWritten)
	}
	if result.OriginalReadTill != 500 {
		t.Fatalf("OriginalReadTill = %d, want 500", result.OriginalReadTill)
	}
	if _, err := os.Stat(result.SidePath); err != nil {
		t.Fatalf("side file missing: %v", err)
	}

	side, _, _, err := binlog.Open(result.SidePath, key, 16, 100, false)
	if err != nil {
		t.Fatal(err)
	}
	defer side.Close()

	var replayed int
	if _, err := side.Replay(1<<20, func(binlog.Record) { replayed++ }); err != nil {
		t.Fatal(err)
	}
	if replayed != 2 {
		t.Fatalf("side log replayed %d records, want 2", replayed)
	}
}

func TestSwapFinishesTwoHopRename(t *testing.T) {
	dir, err := os.MkdirTemp("", "compactor-swap-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	key := make([]byte, 32)
	rand.Read(key)

	livePath := binlog.Path(dir)
	live, _, _, err := binlog.Open(livePath, key, 16, 100, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := live.Append(binlog.Record{Kind: binlog.KindStore, Key: testKey("old"), Tag: 1, Size: 1, Checksum: 1}); err != nil {
		t.Fatal(err)
	}
	if err := live.Close(); err != nil {
		t.Fatal(err)
	}

	side, _, _, err := binlog.Open(SidePath(dir), key, 16, 100, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := side.Append(binlog.Record{Kind: binlog.KindStore, Key: testKey("new"), Tag: 1, Size: 2, Checksum: 2}); err != nil {
		t.Fatal(err)
	}
	if err := side.Close(); err != nil {
		t.Fatal(err)
	}

	newLive, err := Swap(dir, key, 16, 100, false)
	if err != nil {
		t.Fatal(err)
	}
	defer newLive.Close()

	if _, err := os.Stat(filepath.Join(dir, "binlog-ready")); !os.IsNotExist(err) {
		t.Fatal("binlog-ready must not survive a completed swap")
	}

	var got []binlog.Record
	if _, err := newLive.Replay(1<<20, func(r binlog.Record) { got = append(got, r) }); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || string(got[0].Key[:3]) != "new" {
		t.Fatalf("post-swap live log = %+v, want the dense (side) content", got)
	}
}

func TestGateRespectsBackoffAndThresholds(t *testing.T) {
	var g Gate
	opts := Options{CompactAfterExcess: 1000, CompactAfterFullSize: 2}
	now := time.Now()

	if g.ShouldRun(now, opts, 500, 10000) {
		t.Fatal("excess below compactAfterExcess must not trigger")
	}
	if g.ShouldRun(now, opts, 1000, 1_000_000) {
		t.Fatal("excess too small a fraction of binlogSize must not trigger")
	}
	if !g.ShouldRun(now, opts, 1000, 2) {
		t.Fatal("excess past both thresholds should trigger")
	}

	g.Start()
	if g.ShouldRun(now, opts, 1000, 2) {
		t.Fatal("a run already in flight must block a second one")
	}

	g.Failed(now)
	if g.ShouldRun(now, opts, 1000, 2) {
		t.Fatal("back-off window must block an immediate retry")
	}
	if !g.ShouldRun(now.Add(2*time.Minute), opts, 1000, 2) {
		t.Fatal("expected retry to be allowed once the back-off elapses")
	}

	g.Succeeded()
	if g.delayAfterFailure != 0 || !g.nextAttempt.IsZero() {
		t.Fatal("Succeeded must reset back-off state")
	}
}
