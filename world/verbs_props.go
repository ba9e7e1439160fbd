package world

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"loom/program"
	"loom/value"
)

// matchVerbName implements MOO-style verb-name abbreviation matching: a `*`
// in the verbdef name marks the minimum required prefix, with any further
// prefix of the full (star-removed) name also matching. Adapted from the
// object store's verb lookup.
func matchVerbName(pattern, search string) bool {
	pattern = strings.ToLower(strings.TrimPrefix(pattern, ":"))
	search = strings.ToLower(search)

	star := strings.IndexByte(pattern, '*')
	if star == -1 {
		return pattern == search
	}
	if pattern == "*" {
		return true
	}
	prefix := pattern[:star]
	full := pattern[:star] + pattern[star+1:]
	if !strings.HasPrefix(search, prefix) {
		return false
	}
	return strings.HasPrefix(full, search)
}

func (t *Transaction) VerbDefs(obj value.ObjID) []VerbDef {
	defs, _ := t.verbdefs.Get(obj)
	return defs
}

func (t *Transaction) PropDefs(obj value.ObjID) []PropDef {
	defs, _ := t.propdefs.Get(obj)
	return defs
}

// AddVerb appends a new verbdef to obj, assigning it a fresh uuid, and
// returns its index.
func (t *Transaction) AddVerb(obj value.ObjID, def VerbDef) int {
	defs := t.VerbDefs(obj)
	def.Location = obj
	if def.UUID == "" {
		def.UUID = uuid.NewString()
	}
	defs = append(append([]VerbDef{}, defs...), def)
	t.verbdefs.Upsert(obj, defs)
	t.touch(obj)
	return len(defs) - 1
}

// SetVerbProgram stores a verb's compiled Program, keyed by (object, verb
// uuid) per spec §3.3/§4.3's object_verbs relation.
func (t *Transaction) SetVerbProgram(obj value.ObjID, verbUUID string, p *program.Program) error {
	enc, err := program.Encode(p)
	if err != nil {
		return err
	}
	t.verbs.Upsert(objNameKey{Obj: obj, Name: verbUUID}, string(enc))
	return nil
}

// VerbProgram loads a verb's compiled Program by (object, verb uuid).
func (t *Transaction) VerbProgram(obj value.ObjID, verbUUID string) (*program.Program, bool) {
	enc, ok := t.verbs.Get(objNameKey{Obj: obj, Name: verbUUID})
	if !ok || enc == "" {
		return nil, false
	}
	p, err := program.Decode([]byte(enc))
	if err != nil {
		return nil, false
	}
	return p, true
}

// FindVerb performs breadth-first ancestry search for the first verbdef
// whose name pattern matches verbName, per the spec's verb-resolution order.
func (t *Transaction) FindVerb(obj value.ObjID, verbName string) (VerbDef, value.ObjID, int, bool) {
	for _, ancestor := range t.Ancestry(obj) {
		defs := t.VerbDefs(ancestor)
		for i, def := range defs {
			for _, name := range def.Names {
				if matchVerbName(name, verbName) {
					return def, ancestor, i, true
				}
			}
		}
	}
	return VerbDef{}, value.ObjID{}, 0, false
}

// AddProperty defines a new property on obj with an initial value.
func (t *Transaction) AddProperty(obj value.ObjID, name string, owner value.ObjID, perms PropertyPerms, initial value.Value) error {
	for _, pd := range t.PropDefs(obj) {
		if pd.Name == name {
			return errors.Errorf("world: property %q already defined on %s", name, obj)
		}
	}
	defs := append(append([]PropDef{}, t.PropDefs(obj)...), PropDef{UUID: uuid.NewString(), Name: name, Owner: owner, Perms: perms, Definer: obj})
	t.propdefs.Upsert(obj, defs)
	t.propvals.Upsert(objNameKey{Obj: obj, Name: name}, PropValueEntry{Value: initial})
	t.touch(obj)
	return nil
}

// FindPropDef locates the propdef governing name, walking obj's ancestry.
func (t *Transaction) FindPropDef(obj value.ObjID, name string) (PropDef, value.ObjID, bool) {
	for _, ancestor := range t.Ancestry(obj) {
		for _, pd := range t.PropDefs(ancestor) {
			if pd.Name == name {
				return pd, ancestor, true
			}
		}
	}
	return PropDef{}, value.ObjID{}, false
}

// GetPropertyValue resolves a property's current value: if obj's own slot is
// "clear", walk up to the definer's value instead (spec §3.3 propvalue
// inheritance).
func (t *Transaction) GetPropertyValue(obj value.ObjID, name string) (value.Value, error) {
	_, definer, ok := t.FindPropDef(obj, name)
	if !ok {
		return nil, errors.Errorf("world: property %q not found on %s", name, obj)
	}
	cur := obj
	for {
		entry, found := t.propvals.Get(objNameKey{Obj: cur, Name: name})
		if found && !entry.Clear {
			return entry.Value, nil
		}
		if cur == definer {
			entry, _ := t.propvals.Get(objNameKey{Obj: definer, Name: name})
			return entry.Value, nil
		}
		parent := t.Parent(cur)
		if parent == value.Nothing {
			entry, _ := t.propvals.Get(objNameKey{Obj: definer, Name: name})
			return entry.Value, nil
		}
		cur = parent
	}
}

// SetPropertyValue sets obj's own propvalue slot (un-clearing it).
func (t *Transaction) SetPropertyValue(obj value.ObjID, name string, v value.Value) error {
	if _, _, ok := t.FindPropDef(obj, name); !ok {
		return errors.Errorf("world: property %q not found on %s", name, obj)
	}
	t.propvals.Upsert(objNameKey{Obj: obj, Name: name}, PropValueEntry{Value: v})
	t.touch(obj)
	return nil
}

// ResolveProperty implements value.PropertyResolver, letting a Flyweight's
// property fallthrough call back into world-state property resolution.
func (t *Transaction) ResolveProperty(obj value.ObjID, name string) (value.Value, error) {
	return t.GetPropertyValue(obj, name)
}
