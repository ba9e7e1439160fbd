package value

import "strings"

// List is an immutable, copy-on-write persistent vector of Values.
type List struct {
	elems []Value
}

func NewList(elems []Value) List {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return List{elems: cp}
}

func EmptyList() List { return List{} }

func (l List) Type() TypeCode { return TYPE_LIST }

func (l List) String() string {
	if len(l.elems) == 0 {
		return "{}"
	}
	parts := make([]string, len(l.elems))
	for i, e := range l.elems {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (l List) Truthy() bool { return len(l.elems) > 0 }

func (l List) Equal(o Value) bool {
	t, ok := o.(List)
	if !ok || len(l.elems) != len(t.elems) {
		return false
	}
	for i := range l.elems {
		if !l.elems[i].Equal(t.elems[i]) {
			return false
		}
	}
	return true
}

func (l List) Len() int           { return len(l.elems) }
func (l List) Elements() []Value  { return l.elems }

// Get1 returns the 1-based indexed element, or (nil,false) out of range.
func (l List) Get1(i int) (Value, bool) {
	if i < 1 || i > len(l.elems) {
		return nil, false
	}
	return l.elems[i-1], true
}

// Set1 returns a new list with the 1-based index replaced.
func (l List) Set1(i int, v Value) (List, bool) {
	if i < 1 || i > len(l.elems) {
		return l, false
	}
	cp := make([]Value, len(l.elems))
	copy(cp, l.elems)
	cp[i-1] = v
	return List{elems: cp}, true
}

func (l List) Append(v Value) List {
	cp := make([]Value, len(l.elems)+1)
	copy(cp, l.elems)
	cp[len(l.elems)] = v
	return List{elems: cp}
}

func (l List) Concat(o List) List {
	cp := make([]Value, 0, len(l.elems)+len(o.elems))
	cp = append(cp, l.elems...)
	cp = append(cp, o.elems...)
	return List{elems: cp}
}

// InsertAt inserts v before the 1-based index (len+1 appends).
func (l List) InsertAt(i int, v Value) List {
	if i < 1 {
		i = 1
	}
	if i > len(l.elems)+1 {
		i = len(l.elems) + 1
	}
	cp := make([]Value, 0, len(l.elems)+1)
	cp = append(cp, l.elems[:i-1]...)
	cp = append(cp, v)
	cp = append(cp, l.elems[i-1:]...)
	return List{elems: cp}
}

func (l List) DeleteAt(i int) (List, bool) {
	if i < 1 || i > len(l.elems) {
		return l, false
	}
	cp := make([]Value, 0, len(l.elems)-1)
	cp = append(cp, l.elems[:i-1]...)
	cp = append(cp, l.elems[i:]...)
	return List{elems: cp}, true
}

// Range1 returns the 1-based inclusive [from,to] slice. from>to yields empty.
func (l List) Range1(from, to int) List {
	if from < 1 {
		from = 1
	}
	if to > len(l.elems) {
		to = len(l.elems)
	}
	if from > to {
		return List{}
	}
	cp := make([]Value, to-from+1)
	copy(cp, l.elems[from-1:to])
	return List{elems: cp}
}

// IndexOf returns the 1-based index of the first element equal to v, or 0.
func (l List) IndexOf(v Value, caseful bool) int64 {
	for i, e := range l.elems {
		if caseful {
			if es, ok := e.(Str); ok {
				if vs, ok2 := v.(Str); ok2 && string(es) == string(vs) {
					return int64(i + 1)
				}
				continue
			}
		}
		if e.Equal(v) {
			return int64(i + 1)
		}
	}
	return 0
}
