package value

import (
	"fmt"
	"strings"
)

// Map is an immutable, insertion-ordered association of Value to Value,
// backed by a copy-on-write slice of entries for deterministic iteration.
type Map struct {
	entries []mapEntry
}

type mapEntry struct {
	key Value
	val Value
}

func NewMap(pairs [][2]Value) Map {
	m := Map{}
	for _, p := range pairs {
		m = m.Set(p[0], p[1])
	}
	return m
}

func EmptyMap() Map { return Map{} }

func (m Map) Type() TypeCode { return TYPE_MAP }

func (m Map) String() string {
	if len(m.entries) == 0 {
		return "[]"
	}
	parts := make([]string, len(m.entries))
	for i, e := range m.entries {
		parts[i] = fmt.Sprintf("%s -> %s", e.key.String(), e.val.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (m Map) Truthy() bool { return len(m.entries) > 0 }

func (m Map) Len() int { return len(m.entries) }

func (m Map) find(key Value) int {
	for i, e := range m.entries {
		if mapKeyEqual(e.key, key) {
			return i
		}
	}
	return -1
}

func mapKeyEqual(a, b Value) bool {
	if as, ok := a.(Str); ok {
		if bs, ok2 := b.(Str); ok2 {
			return strings.EqualFold(string(as), string(bs))
		}
		return false
	}
	return a.Equal(b)
}

func (m Map) Get(key Value) (Value, bool) {
	if i := m.find(key); i >= 0 {
		return m.entries[i].val, true
	}
	return nil, false
}

func (m Map) Set(key, val Value) Map {
	if i := m.find(key); i >= 0 {
		cp := make([]mapEntry, len(m.entries))
		copy(cp, m.entries)
		cp[i].val = val
		return Map{entries: cp}
	}
	cp := make([]mapEntry, len(m.entries)+1)
	copy(cp, m.entries)
	cp[len(m.entries)] = mapEntry{key: key, val: val}
	return Map{entries: cp}
}

func (m Map) Delete(key Value) (Map, bool) {
	i := m.find(key)
	if i < 0 {
		return m, false
	}
	cp := make([]mapEntry, 0, len(m.entries)-1)
	cp = append(cp, m.entries[:i]...)
	cp = append(cp, m.entries[i+1:]...)
	return Map{entries: cp}, true
}

func (m Map) Keys() []Value {
	ks := make([]Value, len(m.entries))
	for i, e := range m.entries {
		ks[i] = e.key
	}
	return ks
}

func (m Map) Pairs() [][2]Value {
	ps := make([][2]Value, len(m.entries))
	for i, e := range m.entries {
		ps[i] = [2]Value{e.key, e.val}
	}
	return ps
}

// First returns the first key in iteration order.
func (m Map) First() (Value, bool) {
	if len(m.entries) == 0 {
		return nil, false
	}
	return m.entries[0].key, true
}

// NextAfter returns the key that follows key in iteration order.
func (m Map) NextAfter(key Value) (Value, bool) {
	i := m.find(key)
	if i < 0 || i+1 >= len(m.entries) {
		return nil, false
	}
	return m.entries[i+1].key, true
}

func (m Map) Equal(o Value) bool {
	t, ok := o.(Map)
	if !ok || len(m.entries) != len(t.entries) {
		return false
	}
	for _, e := range m.entries {
		v, ok := t.Get(e.key)
		if !ok || !e.val.Equal(v) {
			return false
		}
	}
	return true
}

// IsValidMapKey reports whether v's type may be used as a map key.
func IsValidMapKey(v Value) bool {
	switch v.Type() {
	case TYPE_INT, TYPE_FLOAT, TYPE_STR, TYPE_OBJ, TYPE_ANON, TYPE_ERR, TYPE_SYMBOL:
		return true
	default:
		return false
	}
}

// typeOrder gives the canonical cross-type ordering used when printing maps
// and sorting mixed-type collections: INT < OBJ < FLOAT < ERR < STR < SYMBOL.
func typeOrder(v Value) int {
	switch v.Type() {
	case TYPE_INT:
		return 0
	case TYPE_OBJ, TYPE_ANON:
		return 1
	case TYPE_FLOAT:
		return 2
	case TYPE_ERR:
		return 3
	case TYPE_STR:
		return 4
	case TYPE_SYMBOL:
		return 5
	default:
		return 6
	}
}

// Compare gives the total order required by spec §4.1: within-type by value,
// across-type by type code.
func Compare(a, b Value) int {
	ta, tb := typeOrder(a), typeOrder(b)
	if ta != tb {
		return ta - tb
	}
	if ao, ok := a.(Ordered); ok {
		if ao.Less(b) {
			return -1
		}
		if b.(Ordered).Less(a) {
			return 1
		}
		return 0
	}
	if a.Equal(b) {
		return 0
	}
	return 1
}
