package relation

import (
	"encoding/binary"

	"loom/kv"
)

type writeEntry[C any] struct {
	tombstone bool
	val       C
}

// Transaction is a per-task view of one relation (spec §4.2): a local
// write-set, a local read-set used for conflict detection, and a pinned
// base snapshot taken at T_start.
type Transaction[D comparable, C any] struct {
	rel      *Relation[D, C]
	reader   kv.Reader
	closeSnp func() error
	startTS  Timestamp

	writes     map[D]writeEntry[C]
	reads      map[D]struct{}
	indexReads map[string]struct{} // encoded codomain keys read via GetByCodomain
	order      []D                 // write-set keys in first-write order, for deterministic apply
}

// Begin opens a transaction pinned to the relation's current snapshot.
func (r *Relation[D, C]) Begin() (*Transaction[D, C], error) {
	reader, closeFn, err := r.store.BeginSnapshot()
	if err != nil {
		return nil, err
	}
	return &Transaction[D, C]{
		rel:        r,
		reader:     reader,
		closeSnp:   closeFn,
		startTS:    r.coord.Now(),
		writes:     make(map[D]writeEntry[C]),
		reads:      make(map[D]struct{}),
		indexReads: make(map[string]struct{}),
	}, nil
}

// Close releases the pinned snapshot. Safe to call after Commit.
func (t *Transaction[D, C]) Close() error {
	if t.closeSnp == nil {
		return nil
	}
	err := t.closeSnp()
	t.closeSnp = nil
	return err
}

func (t *Transaction[D, C]) snapshotGet(d D) (C, bool) {
	key := t.rel.dcodec.Encode(d)
	raw, ok := t.reader.Get(t.rel.bucket, key)
	if !ok {
		var zero C
		return zero, false
	}
	_, payload := decodeStamped(raw)
	v, err := t.rel.ccodec.Decode(payload)
	if err != nil {
		var zero C
		return zero, false
	}
	return v, true
}

// Get returns the current value for d, consulting local writes first.
func (t *Transaction[D, C]) Get(d D) (C, bool) {
	if w, ok := t.writes[d]; ok {
		if w.tombstone {
			var zero C
			return zero, false
		}
		return w.val, true
	}
	t.reads[d] = struct{}{}
	return t.snapshotGet(d)
}

// HasDomain reports existence without decoding the value.
func (t *Transaction[D, C]) HasDomain(d D) bool {
	_, ok := t.Get(d)
	return ok
}

// CheckDomains reports existence for every domain in ds.
func (t *Transaction[D, C]) CheckDomains(ds []D) map[D]bool {
	out := make(map[D]bool, len(ds))
	for _, d := range ds {
		out[d] = t.HasDomain(d)
	}
	return out
}

func (t *Transaction[D, C]) recordWrite(d D, w writeEntry[C]) {
	if _, exists := t.writes[d]; !exists {
		t.order = append(t.order, d)
	}
	t.writes[d] = w
}

// Insert fails if d already has a value (spec §4.2).
func (t *Transaction[D, C]) Insert(d D, c C) bool {
	if t.HasDomain(d) {
		return false
	}
	t.recordWrite(d, writeEntry[C]{val: c})
	return true
}

// InsertGuaranteedUnique skips the existence check: the caller promises d
// cannot collide (fresh UUID/anonymous ids).
func (t *Transaction[D, C]) InsertGuaranteedUnique(d D, c C) {
	t.recordWrite(d, writeEntry[C]{val: c})
}

// Upsert always succeeds, returning the prior value if any.
func (t *Transaction[D, C]) Upsert(d D, c C) (C, bool) {
	old, existed := t.Get(d)
	t.recordWrite(d, writeEntry[C]{val: c})
	return old, existed
}

// Delete tombstones d locally.
func (t *Transaction[D, C]) Delete(d D) {
	t.recordWrite(d, writeEntry[C]{tombstone: true})
}

// Scan iterates base ∪ overlay, applying local writes/tombstones.
func (t *Transaction[D, C]) Scan(pred func(D, C) bool) []D {
	seen := make(map[string]bool)
	var out []D
	_ = t.reader.ForEach(t.rel.bucket, func(key, raw []byte) error {
		d, err := t.rel.dcodec.Decode(key)
		if err != nil {
			return nil
		}
		seen[string(key)] = true
		c, ok := t.Get(d)
		if ok && pred(d, c) {
			out = append(out, d)
		}
		return nil
	})
	for d, w := range t.writes {
		key := string(t.rel.dcodec.Encode(d))
		if seen[key] || w.tombstone {
			continue
		}
		if pred(d, w.val) {
			out = append(out, d)
		}
	}
	return out
}

// --- secondary index ---

func decodeIndexSet(raw []byte) (Timestamp, [][]byte) {
	if len(raw) < 8 {
		return 0, nil
	}
	ts := Timestamp(binary.BigEndian.Uint64(raw[:8]))
	rest := raw[8:]
	var keys [][]byte
	for len(rest) >= 4 {
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < n {
			break
		}
		keys = append(keys, rest[:n])
		rest = rest[n:]
	}
	return ts, keys
}

func encodeIndexSet(ts Timestamp, keys [][]byte) []byte {
	total := 8
	for _, k := range keys {
		total += 4 + len(k)
	}
	out := make([]byte, 8, total)
	binary.BigEndian.PutUint64(out[:8], uint64(ts))
	for _, k := range keys {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		out = append(out, lenBuf[:]...)
		out = append(out, k...)
	}
	return out
}

// GetByCodomain returns the domains currently mapping to c, after applying
// this transaction's local writes (spec §4.2 "after applying local writes").
func (t *Transaction[D, C]) GetByCodomain(c C, ceq func(C, C) bool) []D {
	if t.rel.index == "" {
		return nil
	}
	ckey := t.rel.ccodecEncode(c)
	t.indexReads[string(ckey)] = struct{}{}

	raw, _ := t.reader.Get(t.rel.index, ckey)
	_, domKeys := decodeIndexSet(raw)
	result := make(map[string]bool)
	for _, dk := range domKeys {
		d, err := t.rel.dcodec.Decode(dk)
		if err != nil {
			continue
		}
		// still live (not locally deleted, and still maps to c if overridden locally)
		if w, ok := t.writes[d]; ok {
			if !w.tombstone && ceq(w.val, c) {
				result[string(dk)] = true
			}
			continue
		}
		result[string(dk)] = true
	}
	// local writes that newly map to c but weren't in the persisted index yet
	for d, w := range t.writes {
		if w.tombstone {
			continue
		}
		if ceq(w.val, c) {
			result[string(t.rel.dcodec.Encode(d))] = true
		}
	}
	out := make([]D, 0, len(result))
	for k := range result {
		d, err := t.rel.dcodec.Decode([]byte(k))
		if err == nil {
			out = append(out, d)
		}
	}
	return out
}

func (r *Relation[D, C]) ccodecEncode(c C) []byte { return r.ccodec.Encode(c) }
