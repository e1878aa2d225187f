// Package queue runs every database operation through one goroutine,
// one at a time, so nothing above it needs a lock. Background jobs
// (the compactor, the cleaner) run on their own goroutines and post
// their results back through Post rather than touching state directly;
// a post after Close is silently dropped, since there's nobody left
// who cares about the answer.
package queue

// Queue serializes work onto a single goroutine.
type Queue struct {
	tasks  chan func()
	stopCh chan struct{}
	doneCh chan struct{}
}

// New starts the queue's goroutine and returns a handle to it.
func New() *Queue {
	q := &Queue{
		tasks:  make(chan func(), 256),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.doneCh)

	for {
		select {
		case fn := <-q.tasks:
			fn()
		case <-q.stopCh:
			for {
				select {
				case fn := <-q.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Do submits fn and blocks until the queue has run it, in order with
// every other call submitted through Do or Post. Once the queue's
// goroutine has stopped, fn runs directly on the caller's goroutine
// instead.
func (q *Queue) Do(fn func()) {
	done := make(chan struct{})
	select {
	case q.tasks <- func() {
		fn()
		close(done)
	}:
	case <-q.doneCh:
		fn()
		return
	}
	select {
	case <-done:
	case <-q.doneCh:
		select {
		case <-done:
		default:
			fn()
		}
	}
}

// Post hands fn to the queue without waiting for it to run, for
// background jobs reporting a result back. If the queue is already
// closing, fn is dropped rather than run or blocked on.
func (q *Queue) Post(fn func()) {
	select {
	case q.tasks <- fn:
	case <-q.stopCh:
	}
}

// Close drains whatever is already queued, then stops the goroutine.
// A later Close only waits for the goroutine to have stopped.
func (q *Queue) Close() {
	select {
	case <-q.stopCh:
	default:
		close(q.stopCh)
	}
	<-q.doneCh
}
