package cleaner

// New creates a Cleaner rooted at baseDir. active is called each sweep
// to get the currently-live version number.
func New(baseDir string, active func() int) *Cleaner {
	return &Cleaner{
		baseDir: baseDir,
		active:  active,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}
