package relation

import "encoding/binary"

// Codec converts a domain or codomain value to/from the bytes stored in kv.
type Codec[T any] interface {
	Encode(T) []byte
	Decode([]byte) (T, error)
}

// Int64Codec encodes a fixed-width big-endian int64, so bucket iteration
// order matches numeric order.
type Int64Codec struct{}

func (Int64Codec) Encode(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func (Int64Codec) Decode(b []byte) (int64, error) {
	return int64(binary.BigEndian.Uint64(b)), nil
}

// StringCodec is the identity codec for string keys/values.
type StringCodec struct{}

func (StringCodec) Encode(v string) []byte  { return []byte(v) }
func (StringCodec) Decode(b []byte) (string, error) { return string(b), nil }

// BytesCodec is the identity codec for already-encoded byte keys/values,
// used for composite keys (e.g. (object,uuid) pairs) a caller encodes itself.
type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) []byte          { return v }
func (BytesCodec) Decode(b []byte) ([]byte, error) { return b, nil }
