package handler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arjunshah/loopcore/looper"
	"github.com/arjunshah/loopcore/message"
	"github.com/arjunshah/loopcore/msgqueue"
)

type recorder struct {
	mu  sync.Mutex
	got []int32
}

func (r *recorder) HandleMessage(msg *message.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, msg.What)
}

func (r *recorder) snapshot() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int32(nil), r.got...)
}

func runLoop(t *testing.T) (*looper.Looper, func(msgqueue.Mode)) {
	t.Helper()
	lch := make(chan *looper.Looper, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l, err := looper.Prepare()
		if err != nil {
			t.Errorf("Prepare: %v", err)
			return
		}
		lch <- l
		if err := l.Loop(); err != nil {
			t.Errorf("Loop: %v", err)
		}
	}()
	l := <-lch
	return l, func(mode msgqueue.Mode) {
		l.Quit(mode)
		<-done
	}
}

func TestNewWithoutLooperOnFreshGoroutineFails(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := New(&recorder{}, nil); !errors.Is(err, ErrNoLooper) {
			t.Errorf("New: got %v, want ErrNoLooper", err)
		}
	}()
	<-done
}

func TestSendMessageDispatchesInOrder(t *testing.T) {
	l, quit := runLoop(t)
	defer quit(msgqueue.Graceful)

	rec := &recorder{}
	h, err := New(rec, l)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := int32(0); i < 5; i++ {
		if ok := h.SendMessage(h.ObtainMessage(i, 0, 0, nil)); !ok {
			t.Fatalf("SendMessage(%d) = false", i)
		}
	}

	deadline := time.After(time.Second)
	for {
		if len(rec.snapshot()) == 5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out, got %v", rec.snapshot())
		case <-time.After(time.Millisecond):
		}
	}

	got := rec.snapshot()
	for i, w := range []int32{0, 1, 2, 3, 4} {
		if got[i] != w {
			t.Fatalf("dispatch order = %v, want 0..4", got)
		}
	}
}

func TestRemoveMessagesCancelsBeforeFire(t *testing.T) {
	l, quit := runLoop(t)
	defer quit(msgqueue.Graceful)

	rec := &recorder{}
	h, err := New(rec, l)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h.SendMessageDelayed(h.ObtainMessage(42, 0, 0, nil), 50*time.Millisecond)
	h.RemoveMessages(42)
	h.SendMessage(h.ObtainMessage(1, 0, 0, nil))

	deadline := time.After(300 * time.Millisecond)
	for {
		if len(rec.snapshot()) >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for surviving message")
		case <-time.After(time.Millisecond):
		}
	}

	time.Sleep(100 * time.Millisecond)
	got := rec.snapshot()
	for _, w := range got {
		if w == 42 {
			t.Fatalf("removed message 42 was dispatched: %v", got)
		}
	}
}

func TestSendMessageDelayedClampsNegativeDelay(t *testing.T) {
	l, quit := runLoop(t)
	defer quit(msgqueue.Graceful)

	rec := &recorder{}
	h, err := New(rec, l)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Hold the loop so both messages are pending together: an unclamped
	// negative delay would put message 2 ahead of message 1.
	block := make(chan struct{})
	h.Post(func() { <-block }, nil)
	h.SendMessage(h.ObtainMessage(1, 0, 0, nil))
	h.SendMessageDelayed(h.ObtainMessage(2, 0, 0, nil), -time.Hour)
	close(block)

	deadline := time.After(time.Second)
	for {
		if len(rec.snapshot()) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for negative-delay message to dispatch")
		case <-time.After(time.Millisecond):
		}
	}

	if got := rec.snapshot(); got[0] != 1 || got[1] != 2 {
		t.Fatalf("dispatch order = %v, want [1 2]: negative delay was not clamped to zero", got)
	}
}

func TestPostWithTokenRemoveCallbacks(t *testing.T) {
	l, quit := runLoop(t)
	defer quit(msgqueue.Graceful)

	rec := &recorder{}
	h, err := New(rec, l)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var fired sync.Map
	token := "scope-a"
	h.Post(func() { fired.Store("a", true) }, token)
	h.RemoveCallbacks(token)
	h.Post(func() { fired.Store("b", true) }, nil)

	deadline := time.After(300 * time.Millisecond)
	for {
		if _, ok := fired.Load("b"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for surviving callback")
		case <-time.After(time.Millisecond):
		}
	}

	if _, ok := fired.Load("a"); ok {
		t.Fatal("removed callback 'a' fired")
	}
}
