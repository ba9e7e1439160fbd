package relation

import (
	"github.com/pkg/errors"
	"loom/kv"
)

// ErrConflict is returned, unwrapped, by Prepare when a read-set or
// write-set tuple was overwritten by a commit with timestamp > T_start;
// Commit reports it as CommitResult{Conflict: true} with a nil error.
var ErrConflict = errors.New("relation: write-write conflict")

func (r *Relation[D, C]) readIndexRaw(ckey []byte) (Timestamp, [][]byte, error) {
	if r.index == "" {
		return 0, nil, nil
	}
	var ts Timestamp
	var keys [][]byte
	err := r.store.View(func(rd kv.Reader) error {
		raw, ok := rd.Get(r.index, ckey)
		if !ok {
			return nil
		}
		ts, keys = decodeIndexSet(raw)
		return nil
	})
	return ts, keys, err
}

type indexDelta struct {
	oldKey, newKey []byte
	hadOld, hasNew bool
	domKey         []byte
}

// Prepare runs the §4.2.1 conflict check against the live store (as of the
// caller's lock) and builds the kv.Mutation batch this transaction would
// apply, WITHOUT taking the coordinator lock or applying anything. It is
// meant to be called from inside a single Coordinator.RunUnderLock section
// that spans every relation a world-state transaction touched, so the whole
// commit is one atomic batch-apply rather than one per relation. ceq
// compares two codomain values for equality; pass nil if this relation has
// no secondary index.
func (t *Transaction[D, C]) Prepare(commitTS Timestamp, ceq func(C, C) bool) ([]kv.Mutation, error) {
	if len(t.writes) == 0 {
		return nil, nil
	}

	var deltas []indexDelta
	var muts []kv.Mutation

	for d := range t.reads {
		ts, _, _, err := t.rel.readRaw(t.rel.dcodec.Encode(d))
		if err != nil {
			return nil, err
		}
		if ts > t.startTS {
			return nil, ErrConflict
		}
	}
	for ckeyStr := range t.indexReads {
		ts, _, err := t.rel.readIndexRaw([]byte(ckeyStr))
		if err != nil {
			return nil, err
		}
		if ts > t.startTS {
			return nil, ErrConflict
		}
	}
	for _, d := range t.order {
		key := t.rel.dcodec.Encode(d)
		ts, oldVal, found, err := t.rel.readRaw(key)
		if err != nil {
			return nil, err
		}
		if found && ts > t.startTS {
			return nil, ErrConflict
		}

		w := t.writes[d]
		if w.tombstone {
			muts = append(muts, kv.Mutation{Bucket: t.rel.bucket, Key: key, Delete: true})
		} else {
			muts = append(muts, kv.Mutation{
				Bucket: t.rel.bucket,
				Key:    key,
				Value:  encodeStamped(commitTS, t.rel.ccodec.Encode(w.val)),
			})
		}

		if t.rel.index != "" && ceq != nil {
			delta := indexDelta{domKey: key}
			if found {
				delta.oldKey = t.rel.ccodec.Encode(oldVal)
				delta.hadOld = true
			}
			if !w.tombstone {
				delta.newKey = t.rel.ccodec.Encode(w.val)
				delta.hasNew = true
			}
			if !(delta.hadOld && delta.hasNew && string(delta.oldKey) == string(delta.newKey)) {
				deltas = append(deltas, delta)
			}
		}
	}

	if t.rel.index != "" {
		for _, d := range deltas {
			if d.hadOld {
				ts, keys, err := t.rel.readIndexRaw(d.oldKey)
				if err != nil {
					return nil, err
				}
				if ts > t.startTS {
					return nil, ErrConflict
				}
				remaining := keys[:0:0]
				for _, k := range keys {
					if string(k) != string(d.domKey) {
						remaining = append(remaining, k)
					}
				}
				muts = append(muts, kv.Mutation{
					Bucket: t.rel.index, Key: d.oldKey,
					Value: encodeIndexSet(commitTS, remaining),
				})
			}
			if d.hasNew {
				ts, keys, err := t.rel.readIndexRaw(d.newKey)
				if err != nil {
					return nil, err
				}
				if ts > t.startTS {
					return nil, ErrConflict
				}
				keys = append(keys, d.domKey)
				muts = append(muts, kv.Mutation{
					Bucket: t.rel.index, Key: d.newKey,
					Value: encodeIndexSet(commitTS, keys),
				})
			}
		}
	}

	return muts, nil
}

// Commit is the single-relation convenience path: acquire the coordinator
// lock, Prepare, batch-apply, release. Multi-relation callers (world.Transaction)
// use Prepare directly inside their own RunUnderLock section instead.
func (t *Transaction[D, C]) Commit(ceq func(C, C) bool) (CommitResult, error) {
	var muts []kv.Mutation
	commitTS, err := t.rel.coord.RunUnderLock(func(commitTS Timestamp) error {
		var err error
		muts, err = t.Prepare(commitTS, ceq)
		if err != nil {
			return err
		}
		return t.rel.store.BatchApply(muts)
	})
	if err == ErrConflict {
		return CommitResult{Conflict: true}, nil
	}
	if err != nil {
		return CommitResult{}, err
	}
	return CommitResult{MutationsMade: len(t.writes), Timestamp: commitTS}, nil
}
