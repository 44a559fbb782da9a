// Package debounce coalesces bursts of calls into a single delayed
// execution, built on workerthread.WorkerThread the way the original's
// Debouncer is built on WorkerThread::postDelayed.
//
// The original cancels a pending call by flipping a shared bool behind a
// weak_ptr, so a call that outlives the Debouncer's destruction is a no-op.
// Go has no weak pointers, so the same idea is expressed with an epoch
// counter: each Call bumps the epoch and captures its own value; when the
// delayed task finally runs, it only invokes fn if the epoch it captured is
// still current.
package debounce

import (
	"sync"
	"time"

	"github.com/arjunshah/loopcore/workerthread"
)

// Debouncer ensures that out of any burst of Call invocations within delay
// of each other, only the last one's argument reaches fn.
type Debouncer[T any] struct {
	w     *workerthread.WorkerThread
	fn    func(T)
	delay time.Duration

	mu    sync.Mutex
	epoch uint64
}

// New returns a Debouncer that schedules fn(arg) on w, delay after the most
// recent Call, cancelling any call still pending from an earlier Call.
func New[T any](w *workerthread.WorkerThread, fn func(T), delay time.Duration) *Debouncer[T] {
	return &Debouncer[T]{w: w, fn: fn, delay: delay}
}

// Call resets the debounce window and schedules fn(arg) to run after delay,
// provided no later Call (or Cancel) supersedes it first.
func (d *Debouncer[T]) Call(arg T) {
	d.mu.Lock()
	d.epoch++
	mine := d.epoch
	d.mu.Unlock()

	d.w.PostDelayed(func() {
		d.mu.Lock()
		current := d.epoch
		d.mu.Unlock()
		if current == mine {
			d.fn(arg)
		}
	}, d.delay)
}

// Cancel logically cancels any call still pending, without scheduling a
// replacement.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	d.epoch++
	d.mu.Unlock()
}
