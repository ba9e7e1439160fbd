package world

import (
	"loom/kv"
	"loom/relation"
	"loom/value"
)

// Transaction is the facade every verb, builtin, and administrative command
// runs against (spec §4.3): one relation.Transaction per named relation,
// sharing a single Store.coord commit, plus the per-transaction caches
// seeded from the global ones at open.
type Transaction struct {
	store *Store

	flags     *relation.Transaction[value.ObjID, ObjectFlags]
	owner     *relation.Transaction[value.ObjID, value.ObjID]
	name      *relation.Transaction[value.ObjID, string]
	parent    *relation.Transaction[value.ObjID, value.ObjID]
	location  *relation.Transaction[value.ObjID, value.ObjID]
	verbdefs  *relation.Transaction[value.ObjID, []VerbDef]
	verbs     *relation.Transaction[objNameKey, string]
	propdefs  *relation.Transaction[value.ObjID, []PropDef]
	propvals  *relation.Transaction[objNameKey, PropValueEntry]
	propflags *relation.Transaction[objNameKey, PropertyPerms]
	lastMove  *relation.Transaction[value.ObjID, LastMove]

	touched []value.ObjID // ids whose caches need invalidation on commit
}

func objIDEqual(a, b value.ObjID) bool { return a == b }

// Begin opens a new world-state transaction pinned to the store's current
// committed snapshot.
func (s *Store) Begin() (*Transaction, error) {
	t := &Transaction{store: s}
	var err error
	if t.flags, err = s.flags.Begin(); err != nil {
		return nil, err
	}
	if t.owner, err = s.owner.Begin(); err != nil {
		return nil, err
	}
	if t.name, err = s.name.Begin(); err != nil {
		return nil, err
	}
	if t.parent, err = s.parent.Begin(); err != nil {
		return nil, err
	}
	if t.location, err = s.location.Begin(); err != nil {
		return nil, err
	}
	if t.verbdefs, err = s.verbdefs.Begin(); err != nil {
		return nil, err
	}
	if t.verbs, err = s.verbs.Begin(); err != nil {
		return nil, err
	}
	if t.propdefs, err = s.propdefs.Begin(); err != nil {
		return nil, err
	}
	if t.propvals, err = s.propvals.Begin(); err != nil {
		return nil, err
	}
	if t.propflags, err = s.propflags.Begin(); err != nil {
		return nil, err
	}
	if t.lastMove, err = s.lastMove.Begin(); err != nil {
		return nil, err
	}
	return t, nil
}

// Close releases every sub-transaction's pinned snapshot. Safe after Commit.
func (t *Transaction) Close() error {
	t.flags.Close()
	t.owner.Close()
	t.name.Close()
	t.parent.Close()
	t.location.Close()
	t.verbdefs.Close()
	t.verbs.Close()
	t.propdefs.Close()
	t.propvals.Close()
	t.propflags.Close()
	t.lastMove.Close()
	return nil
}

func (t *Transaction) touch(ids ...value.ObjID) {
	t.touched = append(t.touched, ids...)
}

// Now returns the store's logical clock, for time-reporting builtins
// (spec §4.8 `time()`) and last-move bookkeeping.
func (t *Transaction) Now() int64 {
	return int64(t.store.coord.Now())
}

// Commit runs the §4.2.1 protocol once across every relation this
// transaction touched: a single coordinator lock acquisition, a conflict
// check + mutation batch built by each relation's Prepare, one atomic
// kv.Store.BatchApply, and — only on success — republishing cache
// invalidations to the global caches (§4.3.2).
func (t *Transaction) Commit() (relation.CommitResult, error) {
	var muts []kv.Mutation
	commitTS, err := t.store.coord.RunUnderLock(func(commitTS relation.Timestamp) error {
		add := func(m []kv.Mutation, err error) error {
			if err != nil {
				return err
			}
			muts = append(muts, m...)
			return nil
		}
		if err := add(t.flags.Prepare(commitTS, nil)); err != nil {
			return err
		}
		if err := add(t.owner.Prepare(commitTS, objIDEqual)); err != nil {
			return err
		}
		if err := add(t.name.Prepare(commitTS, nil)); err != nil {
			return err
		}
		if err := add(t.parent.Prepare(commitTS, objIDEqual)); err != nil {
			return err
		}
		if err := add(t.location.Prepare(commitTS, objIDEqual)); err != nil {
			return err
		}
		if err := add(t.verbdefs.Prepare(commitTS, nil)); err != nil {
			return err
		}
		if err := add(t.verbs.Prepare(commitTS, nil)); err != nil {
			return err
		}
		if err := add(t.propdefs.Prepare(commitTS, nil)); err != nil {
			return err
		}
		if err := add(t.propvals.Prepare(commitTS, nil)); err != nil {
			return err
		}
		if err := add(t.propflags.Prepare(commitTS, nil)); err != nil {
			return err
		}
		if err := add(t.lastMove.Prepare(commitTS, nil)); err != nil {
			return err
		}
		return t.store.kv.BatchApply(muts)
	})

	if err == relation.ErrConflict {
		return relation.CommitResult{Conflict: true}, nil
	}
	if err != nil {
		return relation.CommitResult{}, err
	}

	for _, id := range t.touched {
		t.store.invalidateSubtree(id)
	}

	return relation.CommitResult{Timestamp: commitTS, MutationsMade: len(muts)}, nil
}
