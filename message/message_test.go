package message

import (
	"errors"
	"testing"
)

type fakeTarget struct {
	enqueued []*Message
	err      error
}

func (f *fakeTarget) Enqueue(msg *Message) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, msg)
	return nil
}

func (f *fakeTarget) Dispatch(msg *Message) {}

func TestSendToTargetWithNoTargetFails(t *testing.T) {
	msg := &Message{What: 1}
	if err := msg.SendToTarget(); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("SendToTarget: got %v, want ErrNoTarget", err)
	}
}

func TestSendToTargetEnqueuesOnTarget(t *testing.T) {
	target := &fakeTarget{}
	msg := &Message{What: 7, Target: target}

	if err := msg.SendToTarget(); err != nil {
		t.Fatalf("SendToTarget: %v", err)
	}
	if len(target.enqueued) != 1 || target.enqueued[0] != msg {
		t.Fatalf("target.enqueued = %v, want [msg]", target.enqueued)
	}
}

func TestSendToTargetPropagatesEnqueueError(t *testing.T) {
	target := &fakeTarget{err: ErrQueueClosed}
	msg := &Message{Target: target}

	if err := msg.SendToTarget(); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("SendToTarget: got %v, want ErrQueueClosed", err)
	}
}
