// Package history persists recent transcripts locally so the assistant can
// use them as context and the user can recover a lost delivery. Entries
// expire after a retention window; nothing ever leaves the machine.
package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// DefaultRetention is how long entries are kept.
const DefaultRetention = 7 * 24 * time.Hour

// keyPrefix namespaces history records in the store.
var keyPrefix = []byte("hist:")

// Entry is one recorded pipeline outcome.
type Entry struct {
	// Text is the final text of the cycle (transcript or assistant reply).
	Text string `json:"text"`

	// Kind is the classification the cycle ran under ("dictation",
	// "command", "edit-selection").
	Kind string `json:"kind"`

	// CreatedAt is when the cycle completed.
	CreatedAt time.Time `json:"created_at"`
}

// Option is a functional option for configuring a [Store].
type Option func(*Store)

// WithRetention overrides [DefaultRetention].
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// Store is a local transcript history backed by Badger. Safe for concurrent
// use.
type Store struct {
	db        *badger.DB
	retention time.Duration
}

// Open opens (or creates) the history store at dir.
func Open(dir string, opts ...Option) (*Store, error) {
	bopts := badger.DefaultOptions(dir)
	bopts.Logger = nil
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("history: open store: %w", err)
	}
	s := &Store{db: db, retention: DefaultRetention}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Append records one entry. A zero CreatedAt is filled with the current
// time.
func (s *Store) Append(e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("history: marshal entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(keyFor(e.CreatedAt), val).WithTTL(s.retention)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Reverse = true
		iopts.Prefix = keyPrefix
		it := txn.NewIterator(iopts)
		defer it.Close()

		// Reverse iteration needs a seek key past every prefixed key.
		seek := append(append([]byte{}, keyPrefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(seek); it.Valid() && len(entries) < n; it.Next() {
			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return entries, nil
}

// Close flushes and closes the underlying store.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("history: close: %w", err)
	}
	return nil
}

// keyFor builds a big-endian timestamp key so lexicographic order equals
// chronological order.
func keyFor(t time.Time) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], uint64(t.UnixNano()))
	return key
}
