package cleaner

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSweepRemovesOnlyInactiveVersions(t *testing.T) {
	dir, err := os.MkdirTemp("", "cleaner-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	for _, v := range []string{"0", "1", "2"} {
		if err := os.MkdirAll(filepath.Join(dir, v), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	// A non-numeric entry must be left alone.
	if err := os.MkdirAll(filepath.Join(dir, "notaversion"), 0o755); err != nil {
		t.Fatal(err)
	}

	c := New(dir, func() int { return 2 })
	c.Sweep()

	for _, v := range []string{"0", "1"} {
		if _, err := os.Stat(filepath.Join(dir, v)); !os.IsNotExist(err) {
			t.Fatalf("expected version %s to be swept", v)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "2")); err != nil {
		t.Fatal("active version must survive the sweep")
	}
	if _, err := os.Stat(filepath.Join(dir, "notaversion")); err != nil {
		t.Fatal("non-numeric entries must be left alone")
	}
}

func TestStartStop(t *testing.T) {
	dir, err := os.MkdirTemp("", "cleaner-startstop-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	c := New(dir, func() int { return 0 })
	c.Start()
	c.Stop()
}
