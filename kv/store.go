// Package kv wraps an ordered, durable, single-node key-value provider for
// the relation engine's backing store (spec §4.2.2). It is the one place
// the rest of the system talks to disk.
package kv

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Store is an ordered KV provider backed by a single bbolt file. Buckets
// stand in for relations and their secondary indices; bbolt's own
// single-writer MVCC transactions give the durable, atomic-batch-apply
// semantics the relation engine's commit phase needs.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "kv: open %s", path)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Bucket identifies a named ordered key space (one relation or index).
type Bucket string

// EnsureBucket creates the bucket if it doesn't already exist.
func (s *Store) EnsureBucket(b Bucket) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(b))
		return errors.Wrap(err, "kv: ensure bucket")
	})
}

// View runs fn against a read-only snapshot.
func (s *Store) View(fn func(r Reader) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(txReader{tx})
	})
}

// BeginSnapshot opens a long-lived read-only transaction the caller must
// close. Relation transactions use this to pin a consistent base snapshot
// for the lifetime of a world-state transaction (spec §4.2.1 T_start).
func (s *Store) BeginSnapshot() (Reader, func() error, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, nil, errors.Wrap(err, "kv: begin snapshot")
	}
	return txReader{tx}, tx.Rollback, nil
}

// BatchApply atomically applies a set of bucket mutations — the "atomic
// batch apply" the relation engine's commit phase requires (spec §4.2.2).
func (s *Store) BatchApply(muts []Mutation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, m := range muts {
			b, err := tx.CreateBucketIfNotExists([]byte(m.Bucket))
			if err != nil {
				return errors.Wrap(err, "kv: bucket")
			}
			if m.Delete {
				if err := b.Delete(m.Key); err != nil {
					return errors.Wrap(err, "kv: delete")
				}
				continue
			}
			if err := b.Put(m.Key, m.Value); err != nil {
				return errors.Wrap(err, "kv: put")
			}
		}
		return nil
	})
}

// Mutation is one bucket write or tombstone, applied atomically by BatchApply.
type Mutation struct {
	Bucket Bucket
	Key    []byte
	Value  []byte
	Delete bool
}

// Reader is a read-only view over one snapshot, scoped to a bucket at a time.
type Reader interface {
	Get(b Bucket, key []byte) ([]byte, bool)
	ForEach(b Bucket, fn func(key, value []byte) error) error
}

type txReader struct{ tx *bolt.Tx }

func (r txReader) Get(b Bucket, key []byte) ([]byte, bool) {
	bkt := r.tx.Bucket([]byte(b))
	if bkt == nil {
		return nil, false
	}
	v := bkt.Get(key)
	if v == nil {
		return nil, false
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true
}

func (r txReader) ForEach(b Bucket, fn func(key, value []byte) error) error {
	bkt := r.tx.Bucket([]byte(b))
	if bkt == nil {
		return nil
	}
	return bkt.ForEach(fn)
}
