// Package throttle rate-limits a burst of calls to at most one execution per
// interval, dropping the rest. The original implements this by hand with a
// mutex-guarded "last execution" timestamp; here the same drop-if-too-soon
// policy is expressed on top of golang.org/x/time/rate's token bucket
// instead of reimplementing it, using a burst of 1 so the bucket holds
// exactly the single token the original's pre-backdated last_execution_
// grants the first call.
package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttler executes fn synchronously on the calling goroutine, at most once
// per interval; calls arriving before the interval has elapsed are dropped.
type Throttler[T any] struct {
	limiter *rate.Limiter
	fn      func(T)
	mu      sync.Mutex
}

// New returns a Throttler that allows fn to run at most once per interval.
// The first call always runs immediately.
func New[T any](fn func(T), interval time.Duration) *Throttler[T] {
	return &Throttler[T]{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		fn:      fn,
	}
}

// Call runs fn(arg) if the interval has elapsed since the last execution
// that ran; otherwise it drops arg and returns false.
func (t *Throttler[T]) Call(arg T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.limiter.Allow() {
		return false
	}
	t.fn(arg)
	return true
}
