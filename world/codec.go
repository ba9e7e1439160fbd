package world

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/pkg/errors"
	"loom/value"
)

// objIDCodec is the fixed-width encoding used for every relation whose
// domain or codomain is a bare value.ObjID; numbered ids sort before
// uuid/anonymous ids and sort numerically among themselves, which keeps
// Scan() over object_* relations in a stable, humane order.
type objIDCodec struct{}

func encodeObjID(o value.ObjID) []byte {
	buf := make([]byte, 29)
	buf[0] = byte(o.Kind)
	binary.BigEndian.PutUint64(buf[1:9], uint64(o.Num))
	binary.BigEndian.PutUint32(buf[9:13], o.Autoincrement)
	binary.BigEndian.PutUint64(buf[13:21], o.Random)
	binary.BigEndian.PutUint64(buf[21:29], uint64(o.EpochMs))
	return buf
}

func decodeObjID(b []byte) (value.ObjID, error) {
	if len(b) < 29 {
		return value.ObjID{}, errors.New("world: short objid encoding")
	}
	return value.ObjID{
		Kind:          value.ObjKind(b[0]),
		Num:           int64(binary.BigEndian.Uint64(b[1:9])),
		Autoincrement: binary.BigEndian.Uint32(b[9:13]),
		Random:        binary.BigEndian.Uint64(b[13:21]),
		EpochMs:       int64(binary.BigEndian.Uint64(b[21:29])),
	}, nil
}

func (objIDCodec) Encode(o value.ObjID) []byte          { return encodeObjID(o) }
func (objIDCodec) Decode(b []byte) (value.ObjID, error) { return decodeObjID(b) }

// objNameKey is the composite (object, name) domain used by
// object_propvalues, object_propflags and object_verbs-by-index relations.
type objNameKey struct {
	Obj  value.ObjID
	Name string
}

type objNameKeyCodec struct{}

func (objNameKeyCodec) Encode(k objNameKey) []byte {
	buf := encodeObjID(k.Obj)
	buf = append(buf, []byte(k.Name)...)
	return buf
}

func (objNameKeyCodec) Decode(b []byte) (objNameKey, error) {
	obj, err := decodeObjID(b[:29])
	if err != nil {
		return objNameKey{}, err
	}
	return objNameKey{Obj: obj, Name: string(b[29:])}, nil
}

// gobCodec is a generic Codec[T] for the plain-struct/slice side tables
// (verbdefs, propdefs, flags, last-move): these are small, cold-path rows,
// so gob's reflective cost is an acceptable trade for not hand-rolling a
// binary layout per row type. object_propvalues uses value.Encode instead,
// since property values must share the literal pool's tagged encoding.
type gobCodec[T any] struct{}

func (gobCodec[T]) Encode(v T) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(v)
	return buf.Bytes()
}

func (gobCodec[T]) Decode(b []byte) (T, error) {
	var v T
	if len(b) == 0 {
		return v, nil
	}
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v)
	return v, errors.Wrap(err, "world: gob decode")
}

// propValueCodec encodes PropValueEntry as a clear-flag byte followed by the
// value's tagged binary encoding (value.Encode).
type propValueCodec struct{}

func (propValueCodec) Encode(e PropValueEntry) []byte {
	out := []byte{0}
	if e.Clear {
		out[0] = 1
	}
	if e.Value != nil {
		enc, err := value.Encode(e.Value)
		if err == nil {
			out = append(out, enc...)
		}
	}
	return out
}

func (propValueCodec) Decode(b []byte) (PropValueEntry, error) {
	if len(b) == 0 {
		return PropValueEntry{}, nil
	}
	e := PropValueEntry{Clear: b[0] != 0}
	if len(b) > 1 {
		v, err := value.Decode(b[1:])
		if err != nil {
			return e, err
		}
		e.Value = v
	}
	return e, nil
}
