package world

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"loom/value"
)

// Renumber implements spec §4.3.3: move a numbered object from old to new,
// rewriting every relation tuple that names old as a domain or codomain
// value, plus the Location/Definer fields embedded in verbdef/propdef lists.
// Only numbered objects can be renumbered; new must currently be free.
func (t *Transaction) Renumber(old, newID value.ObjID) error {
	if old.Kind != value.ObjKindNumbered || newID.Kind != value.ObjKindNumbered {
		return errors.New("world: renumber only applies to numbered objects")
	}
	if !t.Valid(old) {
		return errors.Errorf("world: renumber of invalid object %s", old)
	}
	if t.Valid(newID) {
		return errors.Errorf("world: renumber target %s already in use", newID)
	}

	rewrite := func(id value.ObjID) value.ObjID {
		if id == old {
			return newID
		}
		return id
	}

	f := t.Flags(old)
	t.flags.Delete(old)
	t.flags.Upsert(newID, f)

	owner := t.Owner(old)
	t.owner.Delete(old)
	t.owner.Upsert(newID, owner)

	nm := t.Name(old)
	t.name.Delete(old)
	t.name.Upsert(newID, nm)

	par := t.Parent(old)
	t.parent.Delete(old)
	t.parent.Upsert(newID, rewrite(par))

	loc := t.Location(old)
	t.location.Delete(old)
	t.location.Upsert(newID, rewrite(loc))

	vdefs := t.VerbDefs(old)
	for i := range vdefs {
		vdefs[i].Location = rewrite(vdefs[i].Location)
	}
	t.verbdefs.Delete(old)
	t.verbdefs.Upsert(newID, vdefs)
	for _, vd := range vdefs {
		key := objNameKey{Obj: old, Name: vd.UUID}
		if src, ok := t.verbs.Get(key); ok {
			t.verbs.Delete(key)
			t.verbs.Upsert(objNameKey{Obj: newID, Name: vd.UUID}, src)
		}
	}

	pdefs := t.PropDefs(old)
	for i := range pdefs {
		pdefs[i].Definer = rewrite(pdefs[i].Definer)
	}
	t.propdefs.Delete(old)
	t.propdefs.Upsert(newID, pdefs)

	for _, pd := range pdefs {
		key := objNameKey{Obj: old, Name: pd.Name}
		entry, _ := t.propvals.Get(key)
		t.propvals.Delete(key)
		t.propvals.Upsert(objNameKey{Obj: newID, Name: pd.Name}, entry)

		pf, _ := t.propflags.Get(key)
		t.propflags.Delete(key)
		t.propflags.Upsert(objNameKey{Obj: newID, Name: pd.Name}, pf)
	}

	if lm, ok := t.lastMove.Get(old); ok {
		t.lastMove.Delete(old)
		lm.From = rewrite(lm.From)
		t.lastMove.Upsert(newID, lm)
	}

	// Rewrite every other object's parent/location/owner pointer at old.
	// Union the three scans into one set (a referrer can show up in more
	// than one relation, e.g. its own parent and its owner both being old)
	// so touch() invalidation runs once per object rather than per relation.
	referrers := mapset.NewThreadUnsafeSet[value.ObjID]()
	for _, child := range t.parent.Scan(func(_ value.ObjID, p value.ObjID) bool { return p == old }) {
		t.parent.Upsert(child, newID)
		referrers.Add(child)
	}
	for _, occupant := range t.location.Scan(func(_ value.ObjID, l value.ObjID) bool { return l == old }) {
		t.location.Upsert(occupant, newID)
		referrers.Add(occupant)
	}
	for _, held := range t.owner.Scan(func(_ value.ObjID, o value.ObjID) bool { return o == old }) {
		t.owner.Upsert(held, newID)
		referrers.Add(held)
	}
	for _, id := range referrers.ToSlice() {
		t.touch(id)
	}

	t.touch(old, newID)
	return nil
}
