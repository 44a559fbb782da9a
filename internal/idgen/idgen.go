// Package idgen generates time-sortable ULID identifiers shared by every
// loopcore package that needs a unique, loggable handle: message sequence
// numbers, pubsub subscription IDs, and persisted spool entries.
package idgen

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// monoEntropy is a package-level monotone entropy source shared across all
// New calls. A single shared source keeps ULIDs lexicographically ordered
// even when generated within the same millisecond.
var (
	monoMu      sync.Mutex
	monoEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// New generates a fresh ULID.
func New() ulid.ULID {
	monoMu.Lock()
	defer monoMu.Unlock()
	ms := ulid.Timestamp(time.Now())
	id, err := ulid.New(ms, monoEntropy)
	if err != nil {
		// Monotonic entropy only errors when its 80-bit random component
		// overflows within one millisecond (each ID adds a random increment
		// of up to 2^32); treat as unreachable in practice.
		panic(fmt.Sprintf("idgen: generate ulid: %v", err))
	}
	return id
}

// NewString is New with the result pre-rendered as its canonical string form.
func NewString() string {
	return New().String()
}
