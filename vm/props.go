package vm

import (
	"loom/value"
	"loom/world"
)

// getProperty resolves obj.name for either an ObjID (via the world's
// ancestry-walking propvalue store) or a Flyweight (delegate/slot lookup,
// falling back to the world for delegate-inherited properties).
func (vm *VM) getProperty(act *Activation, objv, namev value.Value) (value.Value, *value.Error) {
	name, ok := namev.(value.Str)
	if !ok {
		return nil, raiseErr(value.E_TYPE)
	}
	switch obj := objv.(type) {
	case value.ObjID:
		if !vm.World.Valid(obj) {
			return nil, raiseErr(value.E_INVIND)
		}
		pd, definer, ok := vm.World.FindPropDef(obj, string(name))
		if !ok {
			return nil, raiseErr(value.E_PROPNF)
		}
		if !vm.canReadProp(act, pd) {
			return nil, raiseErr(value.E_PERM)
		}
		_ = definer
		v, err := vm.World.GetPropertyValue(obj, string(name))
		if err != nil {
			return nil, raiseErr(value.E_PROPNF)
		}
		return v, nil
	case value.Flyweight:
		v, err := obj.GetProperty(string(name), vm.World)
		if err != nil {
			return nil, raiseErr(value.E_PROPNF)
		}
		return v, nil
	default:
		return nil, raiseErr(value.E_TYPE)
	}
}

// setProperty assigns obj.name = v. Flyweights are immutable values (spec
// §3.6): writing a property on one is a type error, matching the teacher's
// refusal to let `this` mutate in place inside a verb running on a
// flyweight's behalf.
func (vm *VM) setProperty(act *Activation, objv, namev, v value.Value) *value.Error {
	name, ok := namev.(value.Str)
	if !ok {
		return raiseErr(value.E_TYPE)
	}
	obj, ok := objv.(value.ObjID)
	if !ok {
		return raiseErr(value.E_TYPE)
	}
	if !vm.World.Valid(obj) {
		return raiseErr(value.E_INVIND)
	}
	pd, _, ok := vm.World.FindPropDef(obj, string(name))
	if !ok {
		return raiseErr(value.E_PROPNF)
	}
	if !vm.canWriteProp(act, pd) {
		return raiseErr(value.E_PERM)
	}
	if err := vm.World.SetPropertyValue(obj, string(name), v); err != nil {
		return raiseErr(value.E_PROPNF)
	}
	return nil
}

func (vm *VM) canReadProp(act *Activation, pd world.PropDef) bool {
	if vm.World.Flags(act.Permissions).Has(world.FlagWizard) {
		return true
	}
	if act.Permissions == pd.Owner {
		return true
	}
	return pd.Perms&world.PropRead != 0
}

func (vm *VM) canWriteProp(act *Activation, pd world.PropDef) bool {
	if vm.World.Flags(act.Permissions).Has(world.FlagWizard) {
		return true
	}
	if act.Permissions == pd.Owner {
		return true
	}
	return pd.Perms&world.PropWrite != 0
}
