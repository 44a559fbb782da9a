// Package handler is the Go rendering of the original's abstract Handler
// subclass: instead of requiring an embedded base type overriding a virtual
// handleMessage, a Handler here is constructed around any Dispatcher
// implementation and bound to a Looper, following the "accept an interface"
// idiom in place of the original's inheritance.
package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/arjunshah/loopcore/internal/idgen"
	"github.com/arjunshah/loopcore/looper"
	"github.com/arjunshah/loopcore/message"
)

// ErrNoLooper is returned by New when called with a nil Looper and the
// calling goroutine has none prepared.
var ErrNoLooper = errors.New("handler: no looper for this thread")

// Dispatcher receives messages whose Callback is unset, on the owning
// Looper's goroutine. Implementations must not block indefinitely —
// dispatch runs on the single consumer goroutine, and a slow HandleMessage
// delays every message queued behind it.
type Dispatcher interface {
	HandleMessage(msg *message.Message)
}

// Handler binds a Dispatcher to a Looper's queue. It implements
// message.Target, so a *Handler may be assigned directly to Message.Target.
type Handler struct {
	l *looper.Looper
	d Dispatcher
}

// New constructs a Handler bound to l. If l is nil, the calling goroutine's
// current Looper is used (ErrNoLooper if it has none prepared).
func New(d Dispatcher, l *looper.Looper) (*Handler, error) {
	if l == nil {
		cur, ok := looper.Current()
		if !ok {
			return nil, ErrNoLooper
		}
		l = cur
	}
	return &Handler{l: l, d: d}, nil
}

// Looper returns the Handler's bound Looper.
func (h *Handler) Looper() *looper.Looper { return h.l }

// Enqueue implements message.Target: it hands msg to the bound Looper's
// queue at msg.When. Returns message.ErrQueueClosed once that Looper is
// quitting.
func (h *Handler) Enqueue(msg *message.Message) error {
	return h.l.Queue().Enqueue(msg, msg.When)
}

// Dispatch implements message.Target: invoked by the owning Looper on its
// own goroutine for any message reaching this Handler with no Callback.
func (h *Handler) Dispatch(msg *message.Message) {
	h.d.HandleMessage(msg)
}

// ObtainMessage returns a new Message already addressed to this Handler and
// stamped with a fresh sequence ID, the loopcore equivalent of the original
// message pool's obtainMessage family.
func (h *Handler) ObtainMessage(what int32, arg1, arg2 int32, obj any) *message.Message {
	return &message.Message{
		What:   what,
		Arg1:   arg1,
		Arg2:   arg2,
		Obj:    obj,
		Target: h,
		Seq:    idgen.New(),
	}
}

func (h *Handler) send(msg *message.Message, when time.Time) bool {
	msg.When = when
	msg.Target = h
	if err := h.Enqueue(msg); err != nil {
		slog.Warn("handler: send failed", "what", msg.What, "err", err)
		return false
	}
	return true
}

// SendMessage enqueues msg for immediate dispatch.
func (h *Handler) SendMessage(msg *message.Message) bool {
	return h.send(msg, time.Now())
}

// SendMessageDelayed enqueues msg for dispatch after delay. Negative delays
// are clamped to zero.
func (h *Handler) SendMessageDelayed(msg *message.Message, delay time.Duration) bool {
	if delay < 0 {
		delay = 0
	}
	return h.send(msg, time.Now().Add(delay))
}

// SendMessageAtTime enqueues msg for dispatch no earlier than at.
func (h *Handler) SendMessageAtTime(msg *message.Message, at time.Time) bool {
	return h.send(msg, at)
}

func (h *Handler) post(token any, r func(), when time.Time) bool {
	msg := &message.Message{Callback: r, Token: token, Target: h, Seq: idgen.New()}
	return h.send(msg, when)
}

// Post enqueues r for immediate execution on the Looper's goroutine. token
// may be nil; if set, RemoveCallbacks(token) can cancel it before it fires.
func (h *Handler) Post(r func(), token any) bool {
	return h.post(token, r, time.Now())
}

// PostDelayed enqueues r for execution after delay. Negative delays are
// clamped to zero.
func (h *Handler) PostDelayed(r func(), token any, delay time.Duration) bool {
	if delay < 0 {
		delay = 0
	}
	return h.post(token, r, time.Now().Add(delay))
}

// PostAtTime enqueues r for execution no earlier than at.
func (h *Handler) PostAtTime(r func(), token any, at time.Time) bool {
	return h.post(token, r, at)
}

// RemoveMessages cancels pending What-based messages addressed to this
// Handler with the given discriminant. Has no effect on Callback messages.
func (h *Handler) RemoveMessages(what int32) {
	h.l.Queue().RemoveMessages(h, what)
}

// RemoveCallbacks cancels pending Callback messages addressed to this
// Handler. If token is non-nil, only callbacks posted with that token are
// removed; otherwise every pending callback for this Handler is removed.
func (h *Handler) RemoveCallbacks(token any) {
	h.l.Queue().RemoveCallbacks(h, token)
}
