package value

import "strings"

// PropertyResolver looks up an inherited property on an object when a
// Flyweight's local slots don't answer a property access (spec §3.5). It is
// satisfied by world.Transaction; kept as an interface here to avoid value
// depending on world.
type PropertyResolver interface {
	ResolveProperty(obj ObjID, name string) (Value, error)
}

// Flyweight is an immutable, value-typed object that borrows verbs and
// properties from a delegate database object (spec §3.5).
type Flyweight struct {
	Delegate ObjID
	Slots    Map
	Contents List
}

func NewFlyweight(delegate ObjID, slots Map, contents List) Flyweight {
	return Flyweight{Delegate: delegate, Slots: slots, Contents: contents}
}

func (f Flyweight) Type() TypeCode { return TYPE_FLYWEIGHT }

func (f Flyweight) String() string {
	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(f.Delegate.String())
	for _, p := range f.Slots.Pairs() {
		if sym, ok := p[0].(Symbol); ok {
			sb.WriteString(", .")
			sb.WriteString(sym.Name())
			sb.WriteString(" = ")
			sb.WriteString(p[1].String())
		}
	}
	if f.Contents.Len() > 0 {
		sb.WriteString(", ")
		sb.WriteString(f.Contents.String())
	}
	sb.WriteByte('>')
	return sb.String()
}

func (f Flyweight) Truthy() bool { return f.Contents.Len() > 0 }

func (f Flyweight) Equal(o Value) bool {
	t, ok := o.(Flyweight)
	if !ok {
		return false
	}
	return f.Delegate.Equal(t.Delegate) && f.Slots.Equal(t.Slots) && f.Contents.Equal(t.Contents)
}

// Slot reads a local slot by symbol name.
func (f Flyweight) Slot(name string) (Value, bool) {
	return f.Slots.Get(Intern(name))
}

// GetProperty implements the §3.5 resolution order: `delegate`/`slots` are
// synthesized, then local slots, then fall through to the delegate object.
func (f Flyweight) GetProperty(name string, resolver PropertyResolver) (Value, error) {
	switch name {
	case "delegate":
		return f.Delegate, nil
	case "slots":
		return f.Slots, nil
	}
	if v, ok := f.Slot(name); ok {
		return v, nil
	}
	return resolver.ResolveProperty(f.Delegate, name)
}

// WithSlot returns a copy with slot name set to v.
func (f Flyweight) WithSlot(name string, v Value) Flyweight {
	f.Slots = f.Slots.Set(Intern(name), v)
	return f
}
