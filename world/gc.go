package world

import "loom/value"

// CollectAnonymous runs the §3.7 anonymous-object sweep: scan every live
// object's parent/location/owner fields, verbdef owner/location fields,
// propdef owner/definer fields, and every property value for a reference
// to an anonymous object, then recycle any anonymous object with zero
// remaining references. Runs between task bursts, never inside a task's own
// transaction (it commits its own).
func (s *Store) CollectAnonymous() (int, error) {
	txn, err := s.Begin()
	if err != nil {
		return 0, err
	}
	defer txn.Close()

	anonymous := map[value.ObjID]bool{}
	for _, id := range txn.flags.Scan(func(d value.ObjID, _ ObjectFlags) bool { return d.IsAnonymous() }) {
		anonymous[id] = false // not yet known reachable
	}
	if len(anonymous) == 0 {
		return 0, nil
	}

	mark := func(refs []value.ObjID) {
		for _, r := range refs {
			if r.IsAnonymous() {
				anonymous[r] = true
			}
		}
	}

	allObjects := txn.flags.Scan(func(value.ObjID, ObjectFlags) bool { return true })
	for _, obj := range allObjects {
		mark([]value.ObjID{txn.Parent(obj), txn.Location(obj), txn.Owner(obj)})
		for _, vd := range txn.VerbDefs(obj) {
			mark([]value.ObjID{vd.Owner, vd.Location})
		}
		for _, pd := range txn.PropDefs(obj) {
			mark([]value.ObjID{pd.Owner, pd.Definer})
			entry, _ := txn.propvals.Get(objNameKey{Obj: obj, Name: pd.Name})
			if entry.Value != nil {
				mark(value.CollectObjRefs(entry.Value, nil))
			}
		}
	}

	collected := 0
	for id, reachable := range anonymous {
		if reachable {
			continue
		}
		if err := txn.Recycle(id); err != nil {
			return collected, err
		}
		collected++
	}

	if collected == 0 {
		return 0, nil
	}
	result, err := txn.Commit()
	if err != nil {
		return 0, err
	}
	if result.Conflict {
		return 0, nil // retried by the next scheduled sweep
	}
	return collected, nil
}
