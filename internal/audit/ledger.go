// Package audit implements an optional, non-load-bearing record of
// completed dispatch rounds, for operators who want to inspect recent
// rounds after the fact. Nothing in the dispatch path depends on the
// ledger; a Ledger that fails to open or write never blocks a round.
package audit

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

var bucketRounds = []byte("rounds")

// Round is one completed dispatch round's summary.
type Round struct {
	ID            string
	Operation     string
	ChunkCount    int
	WorkerCount   int
	LocalFallback bool
	StartedAt     time.Time
	Duration      time.Duration
	Err           string
}

// Ledger is a BoltDB-backed log of Round records, keyed by a monotonically
// increasing sequence so Recent can return them newest first without
// parsing timestamps. Prune is the only operation that removes records.
type Ledger struct {
	db *bolt.DB
}

// Open opens (creating if absent) the ledger file at path.
func Open(path string) (*Ledger, error) {
	db, err := bolt.Open(filepath.Clean(path), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketRounds)
		return e
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database file.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends a completed round to the ledger.
func (l *Ledger) Record(r Round) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return err
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketRounds)
		seq, err := bk.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bk.Put(key, buf.Bytes())
	})
}

// Recent returns up to n of the most recently recorded rounds, newest first.
func (l *Ledger) Recent(n int) ([]Round, error) {
	var out []Round
	err := l.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketRounds)
		c := bk.Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var r Round
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&r); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// Prune removes round records older than maxAge, matching them by
// StartedAt rather than insertion order.
func (l *Ledger) Prune(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	err := l.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketRounds)
		c := bk.Cursor()
		var stale [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r Round
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&r); err != nil {
				return err
			}
			if r.StartedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := bk.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
