package relation

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"loom/kv"
)

// Relation is a named keyed-value store, Domain -> Codomain, with an
// optional secondary index mapping Codomain -> set of Domain (spec §4.2).
// The secondary index is derived from the authoritative bucket and kept in
// step with it by each commit (Open only ensures both buckets exist); it is
// never the source of truth.
type Relation[D comparable, C any] struct {
	store    *kv.Store
	bucket   kv.Bucket
	index    kv.Bucket // "" if no secondary index
	dcodec   Codec[D]
	ccodec   Codec[C]
	coord    *Coordinator
}

// Open binds a Relation to a bucket, ensuring it (and its index bucket, if
// any) exist. name+"$idx" is used for the secondary index bucket.
func Open[D comparable, C any](store *kv.Store, coord *Coordinator, name string, dcodec Codec[D], ccodec Codec[C], withIndex bool) (*Relation[D, C], error) {
	r := &Relation[D, C]{store: store, bucket: kv.Bucket(name), dcodec: dcodec, ccodec: ccodec, coord: coord}
	if err := store.EnsureBucket(r.bucket); err != nil {
		return nil, errors.Wrapf(err, "relation %s", name)
	}
	if withIndex {
		r.index = kv.Bucket(name + "$idx")
		if err := store.EnsureBucket(r.index); err != nil {
			return nil, errors.Wrapf(err, "relation %s index", name)
		}
	}
	return r, nil
}

// stampedValue is what's actually stored: the commit timestamp that wrote
// this tuple, followed by the encoded codomain. Storing the timestamp
// alongside the value is what lets commit-time conflict detection compare
// "has this tuple been overwritten since T_start" without a separate
// version index.
func encodeStamped(ts Timestamp, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(out[:8], uint64(ts))
	copy(out[8:], payload)
	return out
}

func decodeStamped(raw []byte) (Timestamp, []byte) {
	ts := Timestamp(binary.BigEndian.Uint64(raw[:8]))
	return ts, raw[8:]
}

// readRaw reads a live (uncommitted-by-us) tuple straight from the store,
// used only inside the coordinator's commit-time conflict check.
func (r *Relation[D, C]) readRaw(key []byte) (Timestamp, C, bool, error) {
	var ts Timestamp
	var val C
	var found bool
	err := r.store.View(func(rd kv.Reader) error {
		raw, ok := rd.Get(r.bucket, key)
		if !ok {
			return nil
		}
		found = true
		var payload []byte
		ts, payload = decodeStamped(raw)
		v, err := r.ccodec.Decode(payload)
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	return ts, val, found, err
}
