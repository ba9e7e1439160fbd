package value

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Encode/Decode give every persistable Value a stable tagged binary form,
// shared by the world package's property-value relation and the program
// package's literal pool (spec §4.5.2's literal table is "the same encoding
// as property values"). Lambda values are not persistable: a lambda's
// identity is its compiled program plus its captured environment, and
// neither the program table nor the environment frames round-trip through
// a bare byte string here.

const (
	tagInt byte = iota
	tagFloat
	tagBool
	tagStr
	tagObj
	tagSymbol
	tagBinary
	tagList
	tagMap
	tagError
	tagFlyweight
)

func Encode(v Value) ([]byte, error) {
	var out []byte
	switch t := v.(type) {
	case Int:
		out = append(out, tagInt)
		out = appendU64(out, uint64(t))
	case Float:
		out = append(out, tagFloat)
		out = appendU64(out, math.Float64bits(float64(t)))
	case Bool:
		out = append(out, tagBool)
		if t {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	case Str:
		out = append(out, tagStr)
		out = appendBytes(out, []byte(t))
	case ObjID:
		out = append(out, tagObj)
		out = append(out, objIDBytes(t)...)
	case Symbol:
		out = append(out, tagSymbol)
		out = appendBytes(out, []byte(t.Name()))
	case Binary:
		out = append(out, tagBinary)
		out = appendBytes(out, []byte(t))
	case List:
		out = append(out, tagList)
		out = appendU64(out, uint64(t.Len()))
		for _, e := range t.Elements() {
			enc, err := Encode(e)
			if err != nil {
				return nil, err
			}
			out = appendBytes(out, enc)
		}
	case Map:
		out = append(out, tagMap)
		pairs := t.Pairs()
		out = appendU64(out, uint64(len(pairs)))
		for _, p := range pairs {
			k, err := Encode(p[0])
			if err != nil {
				return nil, err
			}
			v, err := Encode(p[1])
			if err != nil {
				return nil, err
			}
			out = appendBytes(out, k)
			out = appendBytes(out, v)
		}
	case Error:
		out = append(out, tagError)
		out = append(out, byte(t.Code))
		out = appendBytes(out, []byte(t.Message))
	case Flyweight:
		out = append(out, tagFlyweight)
		out = append(out, objIDBytes(t.Delegate)...)
		slots, err := Encode(t.Slots)
		if err != nil {
			return nil, err
		}
		contents, err := Encode(t.Contents)
		if err != nil {
			return nil, err
		}
		out = appendBytes(out, slots)
		out = appendBytes(out, contents)
	default:
		return nil, errors.Errorf("value: %T is not persistable", v)
	}
	return out, nil
}

func Decode(b []byte) (Value, error) {
	v, rest, err := decodeOne(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errors.New("value: trailing bytes after decode")
	}
	return v, nil
}

func decodeOne(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return nil, nil, errors.New("value: empty encoding")
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case tagInt:
		n, rest := readU64(rest)
		return Int(n), rest, nil
	case tagFloat:
		n, rest := readU64(rest)
		return Float(math.Float64frombits(n)), rest, nil
	case tagBool:
		return Bool(rest[0] != 0), rest[1:], nil
	case tagStr:
		s, rest := readBytes(rest)
		return Str(s), rest, nil
	case tagObj:
		o, rest := readObjID(rest)
		return o, rest, nil
	case tagSymbol:
		s, rest := readBytes(rest)
		return Intern(string(s)), rest, nil
	case tagBinary:
		s, rest := readBytes(rest)
		return Binary(s), rest, nil
	case tagList:
		n, rest := readU64(rest)
		l := EmptyList()
		for i := uint64(0); i < n; i++ {
			enc, r2 := readBytes(rest)
			v, _, err := decodeOne(enc)
			if err != nil {
				return nil, nil, err
			}
			l = l.Append(v)
			rest = r2
		}
		return l, rest, nil
	case tagMap:
		n, rest := readU64(rest)
		m := EmptyMap()
		for i := uint64(0); i < n; i++ {
			kenc, r2 := readBytes(rest)
			venc, r3 := readBytes(r2)
			k, _, err := decodeOne(kenc)
			if err != nil {
				return nil, nil, err
			}
			v, _, err := decodeOne(venc)
			if err != nil {
				return nil, nil, err
			}
			m = m.Set(k, v)
			rest = r3
		}
		return m, rest, nil
	case tagError:
		code := ErrorCode(rest[0])
		msg, rest := readBytes(rest[1:])
		return NewErrorMsg(code, string(msg)), rest, nil
	case tagFlyweight:
		delegate, rest := readObjID(rest)
		slotsEnc, rest := readBytes(rest)
		contentsEnc, rest := readBytes(rest)
		slotsV, _, err := decodeOne(slotsEnc)
		if err != nil {
			return nil, nil, err
		}
		contentsV, _, err := decodeOne(contentsEnc)
		if err != nil {
			return nil, nil, err
		}
		return NewFlyweight(delegate, slotsV.(Map), contentsV.(List)), rest, nil
	default:
		return nil, nil, errors.Errorf("value: unknown tag %d", tag)
	}
}

func objIDBytes(o ObjID) []byte {
	buf := make([]byte, 29)
	buf[0] = byte(o.Kind)
	binary.BigEndian.PutUint64(buf[1:9], uint64(o.Num))
	binary.BigEndian.PutUint32(buf[9:13], o.Autoincrement)
	binary.BigEndian.PutUint64(buf[13:21], o.Random)
	binary.BigEndian.PutUint64(buf[21:29], uint64(o.EpochMs))
	return buf
}

func readObjID(b []byte) (ObjID, []byte) {
	o := ObjID{
		Kind:          ObjKind(b[0]),
		Num:           int64(binary.BigEndian.Uint64(b[1:9])),
		Autoincrement: binary.BigEndian.Uint32(b[9:13]),
		Random:        binary.BigEndian.Uint64(b[13:21]),
		EpochMs:       int64(binary.BigEndian.Uint64(b[21:29])),
	}
	return o, b[29:]
}

func appendU64(out []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(out, buf[:]...)
}

func readU64(b []byte) (uint64, []byte) {
	return binary.BigEndian.Uint64(b[:8]), b[8:]
}

func appendBytes(out []byte, b []byte) []byte {
	out = appendU64(out, uint64(len(b)))
	return append(out, b...)
}

func readBytes(b []byte) ([]byte, []byte) {
	n, rest := readU64(b)
	return rest[:n], rest[n:]
}
