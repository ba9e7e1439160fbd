package world

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"loom/value"
)

// Valid reports whether obj currently names a live (non-recycled) object.
func (t *Transaction) Valid(obj value.ObjID) bool {
	return t.flags.HasDomain(obj)
}

// nextNumbered hands out the next sequential numbered id. Persisting the
// counter across restarts is future work (it would live as a single key in
// its own kv bucket); for now it is process-lifetime, which is sufficient
// for a running world that is not restarted mid-session.
func (t *Transaction) nextNumbered() value.ObjID {
	return value.Numbered(t.store.nextNumbered.Add(1) - 1)
}

// Create implements object creation (spec §3.7): allocate an id per kind,
// default flags/owner/location, and register under parent's children.
func (t *Transaction) Create(owner, parent value.ObjID, kind value.ObjKind) (value.ObjID, error) {
	return t.CreateAt(owner, parent, kind, value.Nothing)
}

// CreateAt is Create with an explicit initial location.
func (t *Transaction) CreateAt(owner, parent value.ObjID, kind value.ObjKind, loc value.ObjID) (value.ObjID, error) {
	var obj value.ObjID
	switch kind {
	case value.ObjKindNumbered:
		obj = t.nextNumbered()
		if !t.flags.Insert(obj, 0) {
			return value.ObjID{}, errors.Errorf("world: numbered id %s already in use", obj)
		}
	case value.ObjKindUUID:
		obj = value.NewUUIDObj()
		t.flags.InsertGuaranteedUnique(obj, 0)
	default:
		obj = value.NewAnonymousObj()
		t.flags.InsertGuaranteedUnique(obj, 0)
	}

	t.owner.InsertGuaranteedUnique(obj, owner)
	t.name.InsertGuaranteedUnique(obj, "")
	t.parent.InsertGuaranteedUnique(obj, parent)
	t.location.InsertGuaranteedUnique(obj, loc)
	t.verbdefs.InsertGuaranteedUnique(obj, nil)
	t.propdefs.InsertGuaranteedUnique(obj, nil)

	t.touch(obj, parent, loc)
	return obj, nil
}

// Recycle implements the ordered teardown of spec §3.7: evict contents and
// children to `nothing`, then delete every relation row naming obj.
func (t *Transaction) Recycle(obj value.ObjID) error {
	if !t.Valid(obj) {
		return errors.Errorf("world: recycle of invalid object %s", obj)
	}

	for _, child := range t.Children(obj) {
		t.parent.Upsert(child, value.Nothing)
		t.touch(child)
	}
	for _, item := range t.Contents(obj) {
		t.moveNoChecks(item, value.Nothing)
	}
	if loc, ok := t.location.Get(obj); ok && loc != value.Nothing {
		t.touch(loc)
	}
	if par, ok := t.parent.Get(obj); ok && par != value.Nothing {
		t.touch(par)
	}

	pdefs, vdefs := t.PropDefs(obj), t.VerbDefs(obj)

	t.flags.Delete(obj)
	t.owner.Delete(obj)
	t.name.Delete(obj)
	t.parent.Delete(obj)
	t.location.Delete(obj)
	t.verbdefs.Delete(obj)
	t.propdefs.Delete(obj)
	t.lastMove.Delete(obj)

	for _, pd := range pdefs {
		t.propvals.Delete(objNameKey{Obj: obj, Name: pd.Name})
		t.propflags.Delete(objNameKey{Obj: obj, Name: pd.Name})
	}
	for _, vd := range vdefs {
		t.verbs.Delete(objNameKey{Obj: obj, Name: vd.UUID})
	}

	t.touch(obj)
	return nil
}

// Move relocates obj to dest, recording last-move bookkeeping (spec §3.7).
// Callers are responsible for the recursive-containment check (E_RECMOVE);
// world itself only forbids moving an object into itself.
func (t *Transaction) Move(obj, dest value.ObjID) error {
	if obj == dest {
		return errors.New("world: cannot move an object into itself")
	}
	t.moveNoChecks(obj, dest)
	return nil
}

func (t *Transaction) moveNoChecks(obj, dest value.ObjID) {
	from, _ := t.location.Get(obj)
	t.location.Upsert(obj, dest)
	t.lastMove.Upsert(obj, LastMove{From: from, At: int64(t.store.coord.Now())})
	t.touch(obj, from, dest)
}

func (t *Transaction) Owner(obj value.ObjID) value.ObjID {
	o, _ := t.owner.Get(obj)
	return o
}

func (t *Transaction) SetOwner(obj, owner value.ObjID) {
	t.owner.Upsert(obj, owner)
	t.touch(obj)
}

func (t *Transaction) Name(obj value.ObjID) string {
	n, _ := t.name.Get(obj)
	return n
}

func (t *Transaction) SetName(obj value.ObjID, name string) {
	t.name.Upsert(obj, name)
	t.touch(obj)
}

func (t *Transaction) Flags(obj value.ObjID) ObjectFlags {
	f, _ := t.flags.Get(obj)
	return f
}

func (t *Transaction) SetFlags(obj value.ObjID, f ObjectFlags) {
	t.flags.Upsert(obj, f)
	t.touch(obj)
}

func (t *Transaction) Parent(obj value.ObjID) value.ObjID {
	p, _ := t.parent.Get(obj)
	return p
}

func (t *Transaction) Children(obj value.ObjID) []value.ObjID {
	return t.parent.GetByCodomain(obj, objIDEqual)
}

func (t *Transaction) Location(obj value.ObjID) value.ObjID {
	l, _ := t.location.Get(obj)
	return l
}

func (t *Transaction) Contents(obj value.ObjID) []value.ObjID {
	return t.location.GetByCodomain(obj, objIDEqual)
}

func (t *Transaction) OwnedObjects(owner value.ObjID) []value.ObjID {
	return t.owner.GetByCodomain(owner, objIDEqual)
}

// ChildrenSet and ContentsSet hand back the same derived secondary-index
// scans as Children/Contents, but as a mapset.Set so callers that need set
// algebra (membership tests, union with another subtree during a
// cross-hierarchy query) don't re-implement it over a raw slice.
func (t *Transaction) ChildrenSet(obj value.ObjID) mapset.Set[value.ObjID] {
	return mapset.NewThreadUnsafeSet(t.Children(obj)...)
}

func (t *Transaction) ContentsSet(obj value.ObjID) mapset.Set[value.ObjID] {
	return mapset.NewThreadUnsafeSet(t.Contents(obj)...)
}

// Encloses reports whether dest is obj itself or lies somewhere in obj's
// contents, transitively. The move() builtin runs this before calling Move
// to reject E_RECMOVE (Move itself only forbids obj == dest, per its own
// doc comment above). Walks the containment tree breadth-first in
// ContentsSet layers, unioning each layer's contents and subtracting
// already-visited ids so a misparented cycle can't loop forever.
func (t *Transaction) Encloses(obj, dest value.ObjID) bool {
	if obj == dest {
		return true
	}
	visited := mapset.NewThreadUnsafeSet[value.ObjID]()
	frontier := t.ContentsSet(obj)
	for frontier.Cardinality() > 0 {
		if frontier.Contains(dest) {
			return true
		}
		visited = visited.Union(frontier)
		next := mapset.NewThreadUnsafeSet[value.ObjID]()
		for _, c := range frontier.ToSlice() {
			next = next.Union(t.ContentsSet(c))
		}
		frontier = next.Difference(visited)
	}
	return false
}

// Ancestry walks the parent chain from obj to `nothing`, obj first. It
// consults the global ancestry cache (seeded lazily) since chparent is rare
// relative to property/verb lookups that need this chain repeatedly.
func (t *Transaction) Ancestry(obj value.ObjID) []value.ObjID {
	if cached, ok := t.store.ancestryCache.Get(obj); ok {
		return cached
	}
	var chain []value.ObjID
	seen := map[value.ObjID]bool{}
	cur := obj
	for cur != value.Nothing && !seen[cur] {
		chain = append(chain, cur)
		seen[cur] = true
		cur = t.Parent(cur)
	}
	t.store.ancestryCache.Add(obj, chain)
	return chain
}

// IsA reports whether obj descends from (or is) ancestor.
func (t *Transaction) IsA(obj, ancestor value.ObjID) bool {
	for _, a := range t.Ancestry(obj) {
		if a == ancestor {
			return true
		}
	}
	return false
}

// SetParentOverride implements chparent: rewrite obj's parent pointer
// directly, bypassing Create's append-only wiring. Callers (the chparent
// builtin) are responsible for the recursive-ancestry check.
func (t *Transaction) SetParentOverride(obj, newParent value.ObjID) {
	t.parent.Upsert(obj, newParent)
	t.touch(obj, newParent)
}

// AllWithFlag returns every live object with flag set, used by players().
func (t *Transaction) AllWithFlag(flag ObjectFlags) []value.ObjID {
	return t.flags.Scan(func(_ value.ObjID, f ObjectFlags) bool { return f.Has(flag) })
}

// AllObjects returns every live object, used by objects().
func (t *Transaction) AllObjects() []value.ObjID {
	return t.flags.Scan(func(value.ObjID, ObjectFlags) bool { return true })
}

// MaxNumbered returns the highest numbered object id ever handed out.
func (t *Transaction) MaxNumbered() int64 {
	return t.store.nextNumbered.Load() - 1
}

// NextNumbered hands out a fresh numbered id without creating an object,
// for use by renumber() (spec §4.8) when moving an object to a specific slot
// isn't required — renumber always targets a caller-supplied id instead, so
// this exists for symmetry with the create() path and future free-slot reuse.
func (t *Transaction) NextNumbered() value.ObjID {
	return t.nextNumbered()
}
