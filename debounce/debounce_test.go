package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/arjunshah/loopcore/workerthread"
)

func TestOnlyLastCallInBurstFires(t *testing.T) {
	w := workerthread.New("debounce-test")
	w.Start()
	defer func() { w.Finish(); w.Join() }()

	var mu sync.Mutex
	var got []int
	d := New(w, func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	}, 40*time.Millisecond)

	for i := 0; i < 5; i++ {
		d.Call(i)
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != 4 {
		t.Fatalf("got %v, want exactly [4]", got)
	}
}

func TestCancelSuppressesPendingCall(t *testing.T) {
	w := workerthread.New("debounce-cancel")
	w.Start()
	defer func() { w.Finish(); w.Join() }()

	fired := false
	d := New(w, func(int) { fired = true }, 30*time.Millisecond)
	d.Call(1)
	d.Cancel()

	time.Sleep(80 * time.Millisecond)
	if fired {
		t.Fatal("cancelled call fired")
	}
}
