// Package workerthread is the Go rendering of the original's HandlerThread +
// WorkerThread pair: a background goroutine that prepares its own Looper,
// publishes it once ready, and serially executes whatever is posted to it.
package workerthread

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arjunshah/loopcore/handler"
	"github.com/arjunshah/loopcore/looper"
	"github.com/arjunshah/loopcore/message"
	"github.com/arjunshah/loopcore/msgqueue"
)

// ErrNotStarted is returned by Post family methods called before Start.
var ErrNotStarted = errors.New("workerthread: not started")

// WorkerThread owns a single background goroutine running a Looper, and a
// Handler bound to it that dispatches only Callback messages — every Post
// call is the original's post(std::function<void()>).
type WorkerThread struct {
	name    string
	started chan *handler.Handler
	h       *handler.Handler
	done    chan struct{}
}

// New returns an unstarted WorkerThread. name is used only for log context.
func New(name string) *WorkerThread {
	if name == "" {
		name = "WorkerThread"
	}
	return &WorkerThread{name: name, started: make(chan *handler.Handler, 1)}
}

// runnableDispatcher adapts Handler.Dispatch to run Callback-only messages;
// WorkerThread never assigns What, so HandleMessage is unreachable in
// practice but implemented defensively rather than omitted.
type runnableDispatcher struct{ name string }

func (d runnableDispatcher) HandleMessage(msg *message.Message) {
	slog.Warn("workerthread: received a non-callback message, ignoring", "name", d.name, "what", msg.What)
}

// Start launches the background goroutine, prepares its Looper, and blocks
// the caller until the Looper is ready to accept work. Calling Start twice
// is a programmer error and panics, matching the original's single-use
// thread object.
func (w *WorkerThread) Start() {
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		l, err := looper.Prepare()
		if err != nil {
			slog.Error("workerthread: prepare failed", "name", w.name, "err", err)
			close(w.started)
			return
		}
		h, err := handler.New(runnableDispatcher{name: w.name}, l)
		if err != nil {
			slog.Error("workerthread: bind handler failed", "name", w.name, "err", err)
			close(w.started)
			return
		}
		w.started <- h
		close(w.started)

		if err := l.Loop(); err != nil {
			slog.Error("workerthread: loop exited with error", "name", w.name, "err", err)
		}
	}()
	w.h = <-w.started
}

// Looper returns the background goroutine's Looper, or nil if Start failed.
func (w *WorkerThread) Looper() *looper.Looper {
	if w.h == nil {
		return nil
	}
	return w.h.Looper()
}

// Post submits task for immediate serial execution on the worker goroutine.
func (w *WorkerThread) Post(task func()) error {
	return w.postAt(task, time.Now())
}

// PostDelayed submits task for execution after delay. Negative delays are
// clamped to zero.
func (w *WorkerThread) PostDelayed(task func(), delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	return w.postAt(task, time.Now().Add(delay))
}

func (w *WorkerThread) postAt(task func(), when time.Time) error {
	if w.h == nil {
		return ErrNotStarted
	}
	if ok := w.h.PostAtTime(task, nil, when); !ok {
		return fmt.Errorf("workerthread: post to %q: %w", w.name, message.ErrQueueClosed)
	}
	return nil
}

// Finish requests a graceful stop: every task already queued and due runs
// to completion; no new task may be posted afterward. Equivalent to the
// original's finish().
func (w *WorkerThread) Finish() error {
	if w.h == nil {
		return ErrNotStarted
	}
	w.h.Looper().Quit(msgqueue.Graceful)
	return nil
}

// FinishNow requests an immediate stop: any task currently executing
// finishes, but every other queued task is discarded. Equivalent to the
// original's finishNow().
func (w *WorkerThread) FinishNow() error {
	if w.h == nil {
		return ErrNotStarted
	}
	w.h.Looper().Quit(msgqueue.Immediate)
	return nil
}

// Join blocks until the worker goroutine's Loop has returned.
func (w *WorkerThread) Join() {
	if w.done != nil {
		<-w.done
	}
}
