package bundler

import (
	"testing"

	"cachedb/internal/index"
)

func TestStageAccessTriggersFlushThreshold(t *testing.T) {
	b := New(3)
	if flush := b.StageAccess(index.NewKey([]byte("a"))); flush {
		t.Fatal("unexpected flush after first access")
	}
	if flush := b.StageAccess(index.NewKey([]byte("b"))); flush {
		t.Fatal("unexpected flush after second access")
	}
	if flush := b.StageAccess(index.NewKey([]byte("c"))); !flush {
		t.Fatal("expected flush once maxRecords reached")
	}
	if got := b.PendingAccessed(); got != 3 {
		t.Fatalf("pending accessed = %d, want 3", got)
	}
}

func TestStageRemoveTriggersFlushThreshold(t *testing.T) {
	b := New(2)
	if flush := b.StageRemove(index.NewKey([]byte("a"))); flush {
		t.Fatal("unexpected flush after first remove")
	}
	if flush := b.StageRemove(index.NewKey([]byte("b"))); !flush {
		t.Fatal("expected flush once maxRecords reached")
	}
}

func TestPutCancelsPendingRemove(t *testing.T) {
	b := New(10)
	key := index.NewKey([]byte("k"))

	b.StageRemove(key)
	if !b.IsRemoving(key) {
		t.Fatal("key should be pending removal")
	}

	b.CancelRemove(key)
	if b.IsRemoving(key) {
		t.Fatal("put should cancel a pending remove")
	}
}

func TestStageAccessIgnoresKeysPendingRemoval(t *testing.T) {
	b := New(10)
	key := index.NewKey([]byte("k"))

	b.StageRemove(key)
	b.StageAccess(key)

	if b.PendingAccessed() != 0 {
		t.Fatal("a key pending removal must not also be staged for access")
	}
}

func TestFlushAccessedDrainsAndClears(t *testing.T) {
	b := New(10)
	b.StageAccess(index.NewKey([]byte("a")))
	b.StageAccess(index.NewKey([]byte("b")))

	keys := b.FlushAccessed()
	if len(keys) != 2 {
		t.Fatalf("flushed %d keys, want 2", len(keys))
	}
	if b.PendingAccessed() != 0 {
		t.Fatal("accessed set should be empty after flush")
	}
}

func TestFlushRemovingDrainsAndClears(t *testing.T) {
	b := New(10)
	b.StageRemove(index.NewKey([]byte("a")))
	b.StageRemove(index.NewKey([]byte("b")))
	b.StageRemove(index.NewKey([]byte("c")))

	keys := b.FlushRemoving()
	if len(keys) != 3 {
		t.Fatalf("flushed %d keys, want 3", len(keys))
	}
	if b.PendingRemoving() != 0 {
		t.Fatal("removing set should be empty after flush")
	}
	if b.IsRemoving(index.NewKey([]byte("a"))) {
		t.Fatal("a flushed key must no longer report as removing")
	}
}
