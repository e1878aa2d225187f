package cleaner

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Start launches the sweep goroutine. Called right after a successful
// open, before replay.
func (c *Cleaner) Start() {
	go c.run()
}

// Stop signals the goroutine to exit and waits for it to finish.
func (c *Cleaner) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Cleaner) run() {
	defer close(c.doneCh)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopCh:
			return
		}
	}
}

// Sweep removes every version directory under baseDir except the
// active one, tolerating directories that vanish concurrently (another
// sweep, or a concurrent cachedbctl gc run).
func (c *Cleaner) Sweep() {
	entries, err := os.ReadDir(c.baseDir)
	if err != nil {
		return
	}

	active := c.active()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := strconv.Atoi(entry.Name())
		if err != nil || n == active {
			continue
		}
		os.RemoveAll(filepath.Join(c.baseDir, entry.Name()))
	}
}
