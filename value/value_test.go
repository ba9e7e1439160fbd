package value

import "testing"

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		code ErrorCode
		name string
	}{
		{E_NONE, "E_NONE"}, {E_TYPE, "E_TYPE"}, {E_DIV, "E_DIV"}, {E_PERM, "E_PERM"},
		{E_PROPNF, "E_PROPNF"}, {E_VERBNF, "E_VERBNF"}, {E_VARNF, "E_VARNF"},
		{E_INVIND, "E_INVIND"}, {E_RECMOVE, "E_RECMOVE"}, {E_MAXREC, "E_MAXREC"},
		{E_RANGE, "E_RANGE"}, {E_ARGS, "E_ARGS"}, {E_NACC, "E_NACC"},
		{E_INVARG, "E_INVARG"}, {E_QUOTA, "E_QUOTA"}, {E_FLOAT, "E_FLOAT"},
	}
	for _, tt := range tests {
		if tt.code.String() != tt.name {
			t.Errorf("code %d: got %s, want %s", tt.code, tt.code.String(), tt.name)
		}
		parsed, ok := ErrorFromName(tt.name)
		if !ok || parsed != tt.code {
			t.Errorf("ErrorFromName(%s) = %v, %v", tt.name, parsed, ok)
		}
	}
}

func TestObjIDTextualForm(t *testing.T) {
	if Numbered(5).String() != "#5" {
		t.Errorf("numbered: got %s", Numbered(5).String())
	}
	if Nothing.String() != "#-1" {
		t.Errorf("nothing: got %s", Nothing.String())
	}
	u := NewUUIDObj()
	if u.Kind != ObjKindUUID || u.IsAnonymous() {
		t.Errorf("expected uuid kind")
	}
	a := NewAnonymousObj()
	if !a.IsAnonymous() || a.Type() != TYPE_ANON {
		t.Errorf("expected anonymous object")
	}
}

func TestTruthiness(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Int(0), false}, {Int(1), true},
		{Str(""), false}, {Str("x"), true},
		{EmptyList(), false}, {NewList([]Value{Int(1)}), true},
		{Numbered(5), true},
		{NewError(E_TYPE), true},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Errorf("%#v.Truthy() = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestArithmeticPromotion(t *testing.T) {
	r, err := Add(Int(1), Int(2))
	if err != nil || r != Int(3) {
		t.Fatalf("1+2 = %v, %v", r, err)
	}
	r, err = Add(Int(1), Float(2.5))
	if err != nil || r != Float(3.5) {
		t.Fatalf("1+2.5 = %v, %v", r, err)
	}
	r, err = Add(Str("a"), Str("b"))
	if err != nil || r != Str("ab") {
		t.Fatalf("string concat: %v, %v", r, err)
	}
}

func TestDivisionByZero(t *testing.T) {
	if _, err := Div(Int(1), Int(0)); err == nil || err.Code != E_DIV {
		t.Fatalf("expected E_DIV for int div by zero, got %v", err)
	}
	if _, err := DivChecked(Int(1), Float(0)); err == nil || err.Code != E_DIV {
		t.Fatalf("expected E_DIV for float div by zero, got %v", err)
	}
}

func TestListOps(t *testing.T) {
	l := NewList([]Value{Int(1), Int(2), Int(3)})
	if l.Len() != 3 {
		t.Fatalf("len = %d", l.Len())
	}
	v, ok := l.Get1(2)
	if !ok || v != Int(2) {
		t.Fatalf("get1(2) = %v, %v", v, ok)
	}
	l2, ok := l.Set1(2, Int(99))
	if !ok || l2.String() != "{1, 99, 3}" {
		t.Fatalf("set1: %s", l2.String())
	}
	if l.String() != "{1, 2, 3}" {
		t.Fatalf("original list mutated: %s", l.String())
	}
}

func TestMapOrderedIteration(t *testing.T) {
	m := NewMap([][2]Value{{Str("b"), Int(2)}, {Str("a"), Int(1)}})
	keys := m.Keys()
	if len(keys) != 2 || keys[0].(Str) != "b" || keys[1].(Str) != "a" {
		t.Fatalf("expected insertion order preserved, got %v", keys)
	}
}

func TestFlyweightPropertyFallback(t *testing.T) {
	fw := NewFlyweight(Numbered(1), NewMap([][2]Value{{Intern("color"), Str("red")}}), EmptyList())
	if v, ok := fw.Slot("color"); !ok || v != Str("red") {
		t.Fatalf("slot lookup failed: %v %v", v, ok)
	}
}

func TestSymbolInterning(t *testing.T) {
	a := Intern("foo")
	b := Intern("foo")
	if a.ID() != b.ID() {
		t.Fatalf("expected same interned id")
	}
	c := Intern("bar")
	if a.ID() == c.ID() {
		t.Fatalf("expected distinct ids")
	}
}
