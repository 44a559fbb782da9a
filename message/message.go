// Package message defines the passive record dispatched by a looper's
// message queue: a discriminant (What), two free integer slots, a
// dynamically-typed payload, a scheduled delivery time, a target handler,
// and an optional closure that supersedes What-based dispatch.
package message

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNoTarget is returned by SendToTarget when the message has no target.
var ErrNoTarget = errors.New("message: no target")

// ErrQueueClosed is returned when an enqueue is attempted against a queue
// that has begun shutting down.
var ErrQueueClosed = errors.New("message: queue closed")

// Target is the minimal surface a message's destination must offer: the
// ability to accept the message for dispatch on its own queue. handler.Handler
// implements this. It lives here (rather than Message holding a concrete
// *handler.Handler) so that this leaf package never imports handler, which
// itself must import Message — Go has no forward declarations, so the
// dependency has to point one way.
type Target interface {
	// Enqueue hands msg to the target's queue for delivery at msg.When.
	// Returns ErrQueueClosed if the underlying queue is shutting down.
	Enqueue(msg *Message) error

	// Dispatch is invoked by the owning looper, on its own goroutine, for a
	// message that reached the head of the queue and carries no Callback.
	Dispatch(msg *Message)
}

// Message is a value type: once built, nothing a consumer sees about the
// message should be mutated, aside from the bookkeeping done on the way in
// (msgqueue.Queue.Enqueue sets When).
type Message struct {
	What int32 // user discriminant; ignored when Callback is set
	Arg1 int32
	Arg2 int32
	Obj  any // heterogeneous payload; consumer type-asserts

	When time.Time // monotonic dispatch time, assigned at enqueue

	Target Target // non-nil on every message read from a queue

	// Callback, when non-nil, supersedes What-based dispatch: the looper
	// invokes it directly instead of calling Target.Dispatch.
	Callback func()

	// Token optionally scopes Callback messages for selective cancellation
	// by Handler.RemoveCallbacks. Ignored for What-based messages.
	Token any

	// Seq is a time-sortable identifier stamped by Handler.ObtainMessage,
	// used for log correlation. The queue does not order by it: ties at
	// equal When are broken by the queue's own insertion counter.
	Seq ulid.ULID
}

// HasCallback reports whether this message bypasses What-based dispatch.
func (m *Message) HasCallback() bool { return m.Callback != nil }

// SendToTarget asks the message's target to enqueue it for delivery "now"
// (When is set to the current time before the target enqueues it).
// Fails with ErrNoTarget if Target is nil, or whatever the target's Enqueue
// returns (ErrQueueClosed once its looper is quitting).
func (m *Message) SendToTarget() error {
	if m.Target == nil {
		return ErrNoTarget
	}
	m.When = time.Now()
	return m.Target.Enqueue(m)
}
