// Package persist is an optional durable spool for delayed work: a
// bbolt-backed store of (fire-time, payload) entries that a WorkerThread can
// replay on startup, so a scheduled task submitted before a crash still runs
// after the process restarts. bbolt is chosen for the same reasons as the
// teacher's index.go — pure Go, ACID, single file, no external process.
//
// This is additive: nothing in looper, handler, or workerthread requires a
// Store. A caller that wants delayed work to survive a restart opens one,
// calls Spool before posting to a WorkerThread, and calls Done once the
// task has run; Replay on startup hands back everything never marked Done.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/arjunshah/loopcore/internal/idgen"
)

var bucketEntries = []byte("entries")

// ErrNotFound is returned by Done when the entry ID is unknown.
var ErrNotFound = errors.New("persist: entry not found")

// Entry is one spooled unit of delayed work.
type Entry struct {
	ID      string          `json:"id"`
	When    time.Time       `json:"when"`
	Kind    string          `json:"kind"` // caller-defined discriminant, replayed verbatim
	Payload json.RawMessage `json:"payload"`
}

// Store is a bbolt-backed spool of pending Entry values.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the spool database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persist: init bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Spool durably records a new entry, due at when, and returns its ID.
func (s *Store) Spool(kind string, when time.Time, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("persist: marshal payload: %w", err)
	}

	entry := Entry{ID: idgen.NewString(), When: when, Kind: kind, Payload: raw}
	val, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("persist: marshal entry: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(entry.ID), val)
	})
	if err != nil {
		return "", fmt.Errorf("persist: spool %s: %w", entry.ID, err)
	}
	return entry.ID, nil
}

// Done removes an entry once its work has run. Returns ErrNotFound if id is
// unknown.
func (s *Store) Done(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// Replay returns every entry still pending, oldest When first, for a caller
// to re-submit to its WorkerThread on startup.
func (s *Store) Replay() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("persist: unmarshal entry: %w", err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].When.Before(entries[j-1].When); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	return entries, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}
