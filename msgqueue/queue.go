// Package msgqueue implements the time-ordered, multi-producer/single-consumer
// priority queue that sits behind every Looper.
//
// The design generalizes a fixed-callback scheduler ("one readyFn fired per
// due item") to "arbitrary messages popped by a single blocking consumer": a
// container/heap-backed min-heap ordered by delivery time, a buffered notify
// channel used to interrupt the consumer's sleep, and the same lazy
// cancellation idea (entries are marked and skipped rather than removed
// mid-heap) generalized to a full filter-and-reheapify scan, since cancellation
// here can target any pending entry, not just one by ID.
package msgqueue

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/arjunshah/loopcore/message"
)

// ErrEndOfStream is returned by Next once the queue has quit and has no more
// due messages left to deliver.
var ErrEndOfStream = errors.New("msgqueue: end of stream")

// Mode selects the shutdown policy passed to Quit.
type Mode int

const (
	// Graceful marks the queue quitting; enqueue starts rejecting; Next
	// keeps delivering already-queued messages whose When has arrived, and
	// returns end-of-stream once none remain due.
	Graceful Mode = iota
	// Immediate does everything Graceful does and additionally discards
	// every pending message immediately.
	Immediate
)

type state int32

const (
	running state = iota
	gracefulQuit
	immediateQuit
)

// entry is one pending message in the heap, carrying the insertion sequence
// used to break ties at equal When (the FIFO-at-equal-time law in spec.md §4.2).
type entry struct {
	msg *message.Message
	when time.Time
	seq  uint64
}

type minHeap []*entry

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if !h[i].when.Equal(h[j].when) {
		return h[i].when.Before(h[j].when)
	}
	return h[i].seq < h[j].seq
}
func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)   { *h = append(*h, x.(*entry)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is the thread-safe priority queue described by spec.md §4.2.
// Safe for concurrent Enqueue/RemoveMessages/RemoveCallbacks/Quit from any
// goroutine; Next must only be called from the single owning consumer.
type Queue struct {
	mu     sync.Mutex
	h      minHeap
	nextSeq uint64
	st     state

	// notify is a buffered channel of capacity 1, signalled on every
	// Enqueue and Quit so a sleeping Next wakes and re-evaluates.
	notify chan struct{}
}

// New returns an empty, running Queue.
func New() *Queue {
	h := make(minHeap, 0, 16)
	heap.Init(&h)
	return &Queue{h: h, notify: make(chan struct{}, 1)}
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Enqueue inserts msg so the sequence stays non-decreasing by when, placing
// msg after any existing entry with the same when (stable FIFO). Returns
// ErrQueueClosed if the queue has begun quitting.
func (q *Queue) Enqueue(msg *message.Message, when time.Time) error {
	q.mu.Lock()
	if q.st != running {
		q.mu.Unlock()
		return message.ErrQueueClosed
	}
	msg.When = when
	q.nextSeq++
	heap.Push(&q.h, &entry{msg: msg, when: when, seq: q.nextSeq})
	q.mu.Unlock()
	q.wake()
	return nil
}

// Next blocks until either a due message reaches the head, returning it, or
// the queue has quit and the post-quit policy says to stop, returning
// ErrEndOfStream. Spurious wake-ups and timer fires both loop back and
// re-evaluate; this method must only be called from the queue's single
// consumer goroutine.
func (q *Queue) Next() (*message.Message, error) {
	for {
		q.mu.Lock()
		st := q.st

		if q.h.Len() == 0 {
			q.mu.Unlock()
			if st != running {
				return nil, ErrEndOfStream
			}
			<-q.notify
			continue
		}

		head := q.h[0]
		now := time.Now()
		if !head.when.After(now) {
			heap.Pop(&q.h)
			q.mu.Unlock()
			return head.msg, nil
		}

		// Head is scheduled in the future. A quitting queue (graceful or
		// immediate) never waits out a not-yet-due item — it is considered
		// "only future-dated messages remain" and ends the stream.
		if st != running {
			q.mu.Unlock()
			return nil, ErrEndOfStream
		}

		delay := head.when.Sub(now)
		q.mu.Unlock()

		t := time.NewTimer(delay)
		select {
		case <-q.notify:
			t.Stop()
		case <-t.C:
		}
	}
}

// Quit requests shutdown. Graceful rejects new enqueues but keeps delivering
// already-due messages; Immediate additionally discards everything pending.
// Both are monotone — once quitting, never reverts to running — and safe
// from any goroutine.
func (q *Queue) Quit(mode Mode) {
	q.mu.Lock()
	switch mode {
	case Graceful:
		if q.st == running {
			q.st = gracefulQuit
		}
	case Immediate:
		q.st = immediateQuit
		q.h = q.h[:0]
	}
	q.mu.Unlock()
	q.wake()
}

// RemoveMessages removes pending entries targeting target with discriminant
// what that carry no callback. Idempotent; safe from any goroutine.
func (q *Queue) RemoveMessages(target message.Target, what int32) {
	q.filter(func(m *message.Message) bool {
		return m.HasCallback() || m.Target != target || m.What != what
	})
}

// RemoveCallbacks removes pending entries targeting target that carry a
// callback. If token is non-nil, only entries whose Token equals it are
// removed; otherwise every pending callback for target is removed.
func (q *Queue) RemoveCallbacks(target message.Target, token any) {
	q.filter(func(m *message.Message) bool {
		if !m.HasCallback() || m.Target != target {
			return true
		}
		if token == nil {
			return false
		}
		return m.Token != token
	})
}

// filter rebuilds the heap keeping only entries for which keep returns true.
// Cancellation is O(n) regardless of representation, per spec.md §4.2's
// rationale for the chosen data structure.
func (q *Queue) filter(keep func(*message.Message) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.h[:0]
	for _, e := range q.h {
		if keep(e.msg) {
			kept = append(kept, e)
		}
	}
	q.h = kept
	heap.Init(&q.h)
}

// Len reports the number of pending entries. Intended for tests/metrics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}
