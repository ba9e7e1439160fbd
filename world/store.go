package world

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"loom/kv"
	"loom/relation"
	"loom/value"
)

// Store owns the backing kv.Store, the shared relation.Coordinator, every
// named relation of spec §4.3's table, and the three global resolution
// caches that world.Transaction seeds its per-transaction view from.
type Store struct {
	kv    *kv.Store
	coord *relation.Coordinator

	flags     *relation.Relation[value.ObjID, ObjectFlags]
	owner     *relation.Relation[value.ObjID, value.ObjID] // 2°: owned_objects
	name      *relation.Relation[value.ObjID, string]
	parent    *relation.Relation[value.ObjID, value.ObjID] // 2°: children
	location  *relation.Relation[value.ObjID, value.ObjID] // 2°: contents
	verbdefs  *relation.Relation[value.ObjID, []VerbDef]
	verbs     *relation.Relation[objNameKey, string] // (obj, verb-index-as-name) -> source
	propdefs  *relation.Relation[value.ObjID, []PropDef]
	propvals  *relation.Relation[objNameKey, PropValueEntry]
	propflags *relation.Relation[objNameKey, PropertyPerms]
	lastMove  *relation.Relation[value.ObjID, LastMove]

	nextNumbered atomic.Int64

	ancestryCache  *lru.Cache[value.ObjID, []value.ObjID]
	verbCache      *lru.Cache[verbCacheKey, verbCacheEntry]
	propCache      *lru.Cache[objNameKey, propCacheEntry]
}

type verbCacheKey struct {
	Obj  value.ObjID
	Name string
}

type verbCacheEntry struct {
	Found    bool
	Def      VerbDef
	DefIndex int
	On       value.ObjID
}

type propCacheEntry struct {
	Found bool
	Def   PropDef
	On    value.ObjID
}

const defaultCacheSize = 4096

// Open builds a Store over the given bbolt-backed kv.Store, creating every
// relation's bucket(s) if absent.
func Open(store *kv.Store) (*Store, error) {
	coord := relation.NewCoordinator()
	s := &Store{kv: store, coord: coord}

	var err error
	if s.flags, err = relation.Open[value.ObjID, ObjectFlags](store, coord, "object_flags", objIDCodec{}, gobCodec[ObjectFlags]{}, false); err != nil {
		return nil, err
	}
	if s.owner, err = relation.Open[value.ObjID, value.ObjID](store, coord, "object_owner", objIDCodec{}, objIDCodec{}, true); err != nil {
		return nil, err
	}
	if s.name, err = relation.Open[value.ObjID, string](store, coord, "object_name", objIDCodec{}, relation.StringCodec{}, false); err != nil {
		return nil, err
	}
	if s.parent, err = relation.Open[value.ObjID, value.ObjID](store, coord, "object_parent", objIDCodec{}, objIDCodec{}, true); err != nil {
		return nil, err
	}
	if s.location, err = relation.Open[value.ObjID, value.ObjID](store, coord, "object_location", objIDCodec{}, objIDCodec{}, true); err != nil {
		return nil, err
	}
	if s.verbdefs, err = relation.Open[value.ObjID, []VerbDef](store, coord, "object_verbdefs", objIDCodec{}, gobCodec[[]VerbDef]{}, false); err != nil {
		return nil, err
	}
	if s.verbs, err = relation.Open[objNameKey, string](store, coord, "object_verbs", objNameKeyCodec{}, relation.StringCodec{}, false); err != nil {
		return nil, err
	}
	if s.propdefs, err = relation.Open[value.ObjID, []PropDef](store, coord, "object_propdefs", objIDCodec{}, gobCodec[[]PropDef]{}, false); err != nil {
		return nil, err
	}
	if s.propvals, err = relation.Open[objNameKey, PropValueEntry](store, coord, "object_propvalues", objNameKeyCodec{}, propValueCodec{}, false); err != nil {
		return nil, err
	}
	if s.propflags, err = relation.Open[objNameKey, PropertyPerms](store, coord, "object_propflags", objNameKeyCodec{}, gobCodec[PropertyPerms]{}, false); err != nil {
		return nil, err
	}
	if s.lastMove, err = relation.Open[value.ObjID, LastMove](store, coord, "object_last_move", objIDCodec{}, gobCodec[LastMove]{}, false); err != nil {
		return nil, err
	}

	s.ancestryCache, _ = lru.New[value.ObjID, []value.ObjID](defaultCacheSize)
	s.verbCache, _ = lru.New[verbCacheKey, verbCacheEntry](defaultCacheSize)
	s.propCache, _ = lru.New[objNameKey, propCacheEntry](defaultCacheSize)

	return s, nil
}

// invalidateSubtree drops cached ancestry/verb/property-resolution entries
// for obj and everything that might resolve through it. A real workload
// would track a reverse-dependency set per spec §4.3.1; this sweep is the
// conservative version: clear the whole cache. Cheap because entries are
// seeded lazily again from the relations on next read, and renumber/chparent
// are rare compared to property reads.
func (s *Store) invalidateSubtree(value.ObjID) {
	s.ancestryCache.Purge()
	s.verbCache.Purge()
	s.propCache.Purge()
}
