package ring

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	b := NewSPSC(8)
	in := []byte{1, 2, 3, 4}
	if n := b.Write(in); n != 4 {
		t.Fatalf("Write = %d, want 4", n)
	}
	if got := b.Readable(); got != 4 {
		t.Fatalf("Readable = %d, want 4", got)
	}

	out := make([]byte, 4)
	if n := b.Read(out); n != 4 {
		t.Fatalf("Read = %d, want 4", n)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("Read = %v, want %v", out, in)
	}
	if got := b.Readable(); got != 0 {
		t.Fatalf("Readable after full read = %d, want 0", got)
	}
}

func TestWriteStopsAtCapacity(t *testing.T) {
	b := NewSPSC(4)
	n := b.Write([]byte{1, 2, 3, 4, 5, 6})
	if n != 4 {
		t.Fatalf("Write = %d, want 4 (capacity)", n)
	}
	if got := b.Readable(); got != 4 {
		t.Fatalf("Readable = %d, want 4", got)
	}
}

func TestWrapAroundPreservesOrder(t *testing.T) {
	b := NewSPSC(4)
	b.Write([]byte{1, 2, 3})
	out := make([]byte, 2)
	b.Read(out) // consume 1,2 -> tail=2, so the next 3-byte write wraps head past the end

	b.Write([]byte{4, 5, 6})
	got := make([]byte, 4)
	n := b.Read(got)
	if n != 4 {
		t.Fatalf("Read = %d, want 4", n)
	}
	want := []byte{3, 4, 5, 6}
	if !bytes.Equal(got, want) {
		t.Fatalf("Read = %v, want %v", got, want)
	}
}

func TestWriteSilenceZeroesBytes(t *testing.T) {
	b := NewSPSC(4)
	b.Write([]byte{0xFF, 0xFF})
	out := make([]byte, 2)
	b.Read(out)

	n := b.WriteSilence(4)
	if n != 4 {
		t.Fatalf("WriteSilence = %d, want 4", n)
	}
	got := make([]byte, 4)
	b.Read(got)
	for _, v := range got {
		if v != 0 {
			t.Fatalf("WriteSilence wrote non-zero byte: %v", got)
		}
	}
}

func TestReadOnEmptyReturnsZero(t *testing.T) {
	b := NewSPSC(4)
	out := make([]byte, 4)
	if n := b.Read(out); n != 0 {
		t.Fatalf("Read on empty = %d, want 0", n)
	}
}

// TestConcurrentProducerConsumerRoundTrip drives Write from one goroutine and
// Read from another, the way a real audio producer/consumer pair would, to
// exercise the Store-before-Load visibility the atomic head/tail cursors
// are meant to guarantee across two real goroutines rather than one.
func TestConcurrentProducerConsumerRoundTrip(t *testing.T) {
	const total = 100000
	b := NewSPSC(256)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var sent int
		chunk := make([]byte, 64)
		for sent < total {
			n := len(chunk)
			if total-sent < n {
				n = total - sent
			}
			for i := 0; i < n; i++ {
				chunk[i] = byte(sent + i)
			}
			written := 0
			for written < n {
				w := int(b.Write(chunk[written:n]))
				if w == 0 {
					time.Sleep(time.Microsecond)
					continue
				}
				written += w
			}
			sent += n
		}
	}()

	var mismatch error
	go func() {
		defer wg.Done()
		var received int
		chunk := make([]byte, 64)
		for received < total {
			r := int(b.Read(chunk))
			if r == 0 {
				time.Sleep(time.Microsecond)
				continue
			}
			for i := 0; i < r; i++ {
				want := byte(received + i)
				if chunk[i] != want {
					mismatch = errFirstDiff(received+i, want, chunk[i])
					return
				}
			}
			received += r
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for producer/consumer round trip")
	}

	if mismatch != nil {
		t.Fatal(mismatch)
	}
}

func errFirstDiff(pos int, want, got byte) error {
	return fmt.Errorf("byte mismatch at position %d: want %d got %d", pos, want, got)
}
