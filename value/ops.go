package value

import (
	"math"
)

// IndexMode selects whether sequence indices are one-based (language surface)
// or zero-based (some builtins operate zero-based internally).
type IndexMode int

const (
	OneBased IndexMode = iota
	ZeroBased
)

func toOneBased(i int64, mode IndexMode) int {
	if mode == ZeroBased {
		return int(i) + 1
	}
	return int(i)
}

// Length returns the polymorphic length of a value, or (0, E_TYPE) if the
// value has no length.
func Length(v Value) (int64, *Error) {
	switch t := v.(type) {
	case Str:
		return int64(len(t)), nil
	case List:
		return int64(t.Len()), nil
	case Map:
		return int64(t.Len()), nil
	case Binary:
		return int64(len(t)), nil
	case Flyweight:
		return int64(t.Contents.Len()), nil
	default:
		e := NewError(E_TYPE)
		return 0, &e
	}
}

// IsTrue implements the polymorphic truthiness table of spec §4.1.
func IsTrue(v Value) bool { return v.Truthy() }

func typeErr() *Error { e := NewError(E_TYPE); return &e }
func rangeErr() *Error { e := NewError(E_RANGE); return &e }
func divErr() *Error   { e := NewError(E_DIV); return &e }

// Add implements polymorphic `+`: numeric addition with int/float promotion,
// and string/list concatenation.
func Add(a, b Value) (Value, *Error) {
	switch x := a.(type) {
	case Int:
		switch y := b.(type) {
		case Int:
			return x + y, nil
		case Float:
			return Float(x) + y, nil
		}
		return nil, typeErr()
	case Float:
		switch y := b.(type) {
		case Int:
			return x + Float(y), nil
		case Float:
			return x + y, nil
		}
		return nil, typeErr()
	case Str:
		if y, ok := b.(Str); ok {
			return x + y, nil
		}
		return nil, typeErr()
	case List:
		if y, ok := b.(List); ok {
			return x.Concat(y), nil
		}
		return nil, typeErr()
	}
	return nil, typeErr()
}

func numericBinOp(a, b Value, iop func(x, y int64) (int64, *Error), fop func(x, y float64) float64) (Value, *Error) {
	switch x := a.(type) {
	case Int:
		switch y := b.(type) {
		case Int:
			r, err := iop(int64(x), int64(y))
			if err != nil {
				return nil, err
			}
			return Int(r), nil
		case Float:
			return Float(fop(float64(x), float64(y))), nil
		}
	case Float:
		switch y := b.(type) {
		case Int:
			return Float(fop(float64(x), float64(y))), nil
		case Float:
			return Float(fop(float64(x), float64(y))), nil
		}
	}
	return nil, typeErr()
}

func Sub(a, b Value) (Value, *Error) {
	return numericBinOp(a, b,
		func(x, y int64) (int64, *Error) { return x - y, nil },
		func(x, y float64) float64 { return x - y })
}

func Mul(a, b Value) (Value, *Error) {
	return numericBinOp(a, b,
		func(x, y int64) (int64, *Error) { return x * y, nil },
		func(x, y float64) float64 { return x * y })
}

func Div(a, b Value) (Value, *Error) {
	return numericBinOp(a, b,
		func(x, y int64) (int64, *Error) {
			if y == 0 {
				return 0, divErr()
			}
			return x / y, nil
		},
		func(x, y float64) float64 {
			if y == 0 {
				return math.NaN()
			}
			return x / y
		})
}

// DivChecked returns E_DIV for float division by zero too, matching spec
// §4.6.5 ("even though IEEE would yield infinity").
func DivChecked(a, b Value) (Value, *Error) {
	if bf, ok := b.(Float); ok && bf == 0 {
		return nil, divErr()
	}
	return Div(a, b)
}

func Mod(a, b Value) (Value, *Error) {
	return numericBinOp(a, b,
		func(x, y int64) (int64, *Error) {
			if y == 0 {
				return 0, divErr()
			}
			return x % y, nil
		},
		func(x, y float64) float64 {
			return math.Mod(x, y)
		})
}

func ModChecked(a, b Value) (Value, *Error) {
	if bf, ok := b.(Float); ok && bf == 0 {
		return nil, divErr()
	}
	return Mod(a, b)
}

func Pow(a, b Value) (Value, *Error) {
	switch x := a.(type) {
	case Int:
		if y, ok := b.(Int); ok && y >= 0 {
			r := int64(1)
			for i := int64(0); i < int64(y); i++ {
				r *= int64(x)
			}
			return Int(r), nil
		}
		if y, ok := b.(Float); ok {
			return Float(math.Pow(float64(x), float64(y))), nil
		}
		if y, ok := b.(Int); ok {
			return Float(math.Pow(float64(x), float64(y))), nil
		}
	case Float:
		switch y := b.(type) {
		case Int:
			return Float(math.Pow(float64(x), float64(y))), nil
		case Float:
			return Float(math.Pow(float64(x), float64(y))), nil
		}
	}
	return nil, typeErr()
}

func Neg(a Value) (Value, *Error) {
	switch x := a.(type) {
	case Int:
		return -x, nil
	case Float:
		return -x, nil
	}
	return nil, typeErr()
}

func bitwiseOp(a, b Value, op func(x, y int64) int64) (Value, *Error) {
	x, ok := a.(Int)
	if !ok {
		return nil, typeErr()
	}
	y, ok := b.(Int)
	if !ok {
		return nil, typeErr()
	}
	return Int(op(int64(x), int64(y))), nil
}

func BitAnd(a, b Value) (Value, *Error) { return bitwiseOp(a, b, func(x, y int64) int64 { return x & y }) }
func BitOr(a, b Value) (Value, *Error)  { return bitwiseOp(a, b, func(x, y int64) int64 { return x | y }) }
func BitXor(a, b Value) (Value, *Error) { return bitwiseOp(a, b, func(x, y int64) int64 { return x ^ y }) }
func Shl(a, b Value) (Value, *Error)    { return bitwiseOp(a, b, func(x, y int64) int64 { return x << uint(y) }) }
func Shr(a, b Value) (Value, *Error)    { return bitwiseOp(a, b, func(x, y int64) int64 { return x >> uint(y) }) }
func LogicalShr(a, b Value) (Value, *Error) {
	return bitwiseOp(a, b, func(x, y int64) int64 { return int64(uint64(x) >> uint(y)) })
}

func BitNot(a Value) (Value, *Error) {
	x, ok := a.(Int)
	if !ok {
		return nil, typeErr()
	}
	return ^x, nil
}

// Sequence is implemented by List, Str, Binary — ordered, indexable values.
type Sequence interface {
	Value
	Len() int
}

// Get1 reads a 1-based (or zero-based, per mode) index from a sequence.
func Get1(v Value, index int64, mode IndexMode) (Value, *Error) {
	idx := toOneBased(index, mode)
	switch t := v.(type) {
	case List:
		e, ok := t.Get1(idx)
		if !ok {
			return nil, rangeErr()
		}
		return e, nil
	case Str:
		if idx < 1 || idx > len(t) {
			return nil, rangeErr()
		}
		return Str(string(t)[idx-1 : idx]), nil
	case Binary:
		if idx < 1 || idx > len(t) {
			return nil, rangeErr()
		}
		return Int(t[idx-1]), nil
	}
	return nil, typeErr()
}

// Set1 writes a 1-based (or zero-based) index, returning the updated value.
func Set1(v Value, index int64, nv Value, mode IndexMode) (Value, *Error) {
	idx := toOneBased(index, mode)
	switch t := v.(type) {
	case List:
		l, ok := t.Set1(idx, nv)
		if !ok {
			return nil, rangeErr()
		}
		return l, nil
	case Str:
		ns, ok := nv.(Str)
		if !ok || len(ns) != 1 {
			return nil, typeErr()
		}
		if idx < 1 || idx > len(t) {
			return nil, rangeErr()
		}
		b := []byte(t)
		b[idx-1] = ns[0]
		return Str(b), nil
	}
	return nil, typeErr()
}

// Range1 reads the 1-based inclusive [from,to] range.
func Range1(v Value, from, to int64, mode IndexMode) (Value, *Error) {
	f, t := toOneBased(from, mode), toOneBased(to, mode)
	switch val := v.(type) {
	case List:
		return val.Range1(f, t), nil
	case Str:
		if f < 1 {
			f = 1
		}
		if t > len(val) {
			t = len(val)
		}
		if f > t {
			return Str(""), nil
		}
		return val[f-1 : t], nil
	}
	return nil, typeErr()
}

// RangeSet1 replaces the 1-based inclusive [from,to] span with repl.
func RangeSet1(v Value, from, to int64, repl Value, mode IndexMode) (Value, *Error) {
	f, t := toOneBased(from, mode), toOneBased(to, mode)
	switch val := v.(type) {
	case List:
		rl, ok := repl.(List)
		if !ok {
			return nil, typeErr()
		}
		if f < 1 {
			f = 1
		}
		if t > val.Len() {
			t = val.Len()
		}
		var out List
		if f > t {
			out = val.Range1(1, f-1).Concat(rl).Concat(val.Range1(f, val.Len()))
		} else {
			out = val.Range1(1, f-1).Concat(rl).Concat(val.Range1(t+1, val.Len()))
		}
		return out, nil
	case Str:
		rs, ok := repl.(Str)
		if !ok {
			return nil, typeErr()
		}
		if f < 1 {
			f = 1
		}
		if t > len(val) {
			t = len(val)
		}
		var out string
		if f > t {
			out = string(val[:f-1]) + string(rs) + string(val[f-1:])
		} else {
			out = string(val[:f-1]) + string(rs) + string(val[t:])
		}
		return Str(out), nil
	}
	return nil, typeErr()
}

// IndexIn returns the 1-based index of value in container, or 0 if absent.
func IndexIn(container, target Value, caseful bool, mode IndexMode) (int64, *Error) {
	switch c := container.(type) {
	case List:
		idx := c.IndexOf(target, caseful)
		if mode == ZeroBased && idx > 0 {
			idx--
		}
		return idx, nil
	}
	return 0, typeErr()
}

// Push/Append are aliases over List for readability at call sites.
func Push(list Value, v Value) (Value, *Error) {
	l, ok := list.(List)
	if !ok {
		return nil, typeErr()
	}
	return l.Append(v), nil
}
