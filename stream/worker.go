package stream

import (
	"sync/atomic"
	"time"
)

// Canceller is the single mutable flag shared between a worker and its
// controllers. The transition is monotonic: once set it is never cleared.
type Canceller struct {
	flag atomic.Bool
}

// Cancel sets the flag. Idempotent and non-blocking.
func (c *Canceller) Cancel() {
	c.flag.Store(true)
}

// Cancelled reports whether cancellation has been requested.
func (c *Canceller) Cancelled() bool {
	return c.flag.Load()
}

// Worker runs a unit of work on its own goroutine, detached from the handle
// that created it. The handle is the only way to request cancellation;
// cancellation is cooperative and the work observes it through the Canceller
// it was handed.
type Worker struct {
	c    *Canceller
	done chan struct{}
}

// Go starts fn on a new goroutine. The done channel closes when fn returns,
// which is what gives owners join semantics.
func Go(fn func(*Canceller)) *Worker {
	w := &Worker{
		c:    &Canceller{},
		done: make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		fn(w.c)
	}()
	return w
}

func (w *Worker) Cancel() {
	w.c.Cancel()
}

func (w *Worker) Cancelled() bool {
	return w.c.Cancelled()
}

// Join waits for the worker to finish, up to the given timeout. It returns
// false if the worker is still running when the timeout expires; callers
// treat that as a leaked goroutine to report, not a crash.
func (w *Worker) Join(timeout time.Duration) bool {
	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
