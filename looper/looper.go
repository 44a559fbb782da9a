// Package looper binds a msgqueue.Queue to exactly one goroutine: the one
// that calls Prepare, and later calls Loop. Every other package in this
// module is driven off that pairing — handler.Handler enqueues messages onto
// a Looper's queue from any goroutine; only the Looper's own goroutine may
// pull them off and dispatch them.
//
// Go gives goroutines no identity a program can observe through a supported
// API, so thread affinity here is enforced with a goroutine-ID trick: parse
// the "goroutine N" header runtime.Stack always writes first (see
// internal/goid), and compare it against the ID captured at Prepare time.
package looper

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/arjunshah/loopcore/internal/goid"
	"github.com/arjunshah/loopcore/message"
	"github.com/arjunshah/loopcore/msgqueue"
)

var (
	// ErrAlreadyPrepared is returned by Prepare when the calling goroutine
	// already has a Looper.
	ErrAlreadyPrepared = errors.New("looper: thread already has a looper")

	// ErrNoLooper names the condition of a goroutine with no prepared
	// Looper. Current reports that condition as ok=false rather than as
	// this error, and nothing in this package returns it; handler.New
	// returns its own handler.ErrNoLooper.
	ErrNoLooper = errors.New("looper: no looper for this thread")

	// ErrThreadAffinityViolation is returned by Loop when called from a
	// goroutine other than the one that called Prepare.
	ErrThreadAffinityViolation = errors.New("looper: loop called from a different goroutine than prepare")
)

var (
	registryMu sync.Mutex
	registry   = map[uint64]*Looper{}
)

// Looper owns a message queue and dispatches its messages on the single
// goroutine that prepared it.
type Looper struct {
	queue    *msgqueue.Queue
	threadID uint64
	onPanic  func(msg *message.Message, r any)
}

// Prepare installs a new Looper for the calling goroutine. It must be called
// once, on the goroutine that will later call Loop. Returns
// ErrAlreadyPrepared if that goroutine already has one.
func Prepare() (*Looper, error) {
	id := goid.Get()

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[id]; ok {
		return nil, ErrAlreadyPrepared
	}

	l := &Looper{queue: msgqueue.New(), threadID: id}
	registry[id] = l
	return l, nil
}

// Current returns the calling goroutine's Looper, the myLooper() equivalent.
func Current() (*Looper, bool) {
	id := goid.Get()
	registryMu.Lock()
	defer registryMu.Unlock()
	l, ok := registry[id]
	return l, ok
}

// Queue returns the Looper's underlying message queue. handler.Handler holds
// onto this to implement message.Target.
func (l *Looper) Queue() *msgqueue.Queue { return l.queue }

// SetPanicHook installs fn to be called, in addition to the standard
// slog.Error logging, whenever dispatch recovers a panic. Callers use this
// to feed a metrics counter; fn runs on the Looper's own goroutine inside
// the recover, so it must not panic itself.
func (l *Looper) SetPanicHook(fn func(msg *message.Message, r any)) {
	l.onPanic = fn
}

// Loop blocks the calling goroutine, repeatedly pulling due messages off the
// queue and dispatching them, until the queue reaches end-of-stream (see
// msgqueue.Queue.Quit). Must be called from the same goroutine that called
// Prepare; any other caller gets ErrThreadAffinityViolation without
// consuming a single message.
//
// A panicking Callback or Dispatch is recovered, logged as a
// HandlerDispatchFailure, and does not stop the loop — one misbehaving
// handler must not take down every other message queued behind it.
func (l *Looper) Loop() error {
	if goid.Get() != l.threadID {
		return ErrThreadAffinityViolation
	}

	for {
		msg, err := l.queue.Next()
		if err != nil {
			if errors.Is(err, msgqueue.ErrEndOfStream) {
				break
			}
			return err
		}
		l.dispatch(msg)
	}

	registryMu.Lock()
	delete(registry, l.threadID)
	registryMu.Unlock()
	return nil
}

func (l *Looper) dispatch(msg *message.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("looper: handler dispatch failure",
				"what", msg.What, "seq", msg.Seq.String(), "panic", r)
			if l.onPanic != nil {
				l.onPanic(msg, r)
			}
		}
	}()

	if msg.HasCallback() {
		msg.Callback()
		return
	}
	if msg.Target != nil {
		msg.Target.Dispatch(msg)
	}
}

// Quit requests shutdown of the Looper's queue; see msgqueue.Mode for the
// graceful/immediate distinction. Safe to call from any goroutine.
func (l *Looper) Quit(mode msgqueue.Mode) {
	l.queue.Quit(mode)
}
