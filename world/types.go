// Package world implements the world-state transaction (spec §4.3): named
// relations layered over the relation engine, plus the ancestry/verb/
// property resolution caches and object lifecycle operations verbs run
// against.
package world

import "loom/value"

// ObjectFlags mirrors the teacher's bit layout (db.ObjectFlags), generalized
// to the spec's object model.
type ObjectFlags uint32

const (
	FlagUser      ObjectFlags = 1 << 0
	FlagProgrammer ObjectFlags = 1 << 1
	FlagWizard    ObjectFlags = 1 << 2
	FlagRead      ObjectFlags = 1 << 4
	FlagWrite     ObjectFlags = 1 << 5
	FlagFertile   ObjectFlags = 1 << 7
)

func (f ObjectFlags) Has(flag ObjectFlags) bool { return f&flag != 0 }
func (f ObjectFlags) Set(flag ObjectFlags) ObjectFlags   { return f | flag }
func (f ObjectFlags) Clear(flag ObjectFlags) ObjectFlags { return f &^ flag }

type PropertyPerms uint8

const (
	PropRead  PropertyPerms = 1 << 0
	PropWrite PropertyPerms = 1 << 1
	PropChown PropertyPerms = 1 << 2
)

type VerbPerms uint8

const (
	VerbRead    VerbPerms = 1 << 0
	VerbWrite   VerbPerms = 1 << 1
	VerbExecute VerbPerms = 1 << 2
	VerbDebug   VerbPerms = 1 << 3
)

// VerbArgs is a verb's argument specifier triple (spec glossary "verbdef").
type VerbArgs struct {
	This string // "this" | "none" | "any"
	Prep string
	That string
}

// VerbDef is one entry of an object's ordered verbdef list.
type VerbDef struct {
	UUID      string // unique per object (spec §3.2); keys object_verbs
	Names     []string
	Owner     value.ObjID
	Perms     VerbPerms
	Args      VerbArgs
	Location  value.ObjID // the object this verbdef is defined on
	ProgramID int64       // compiled program id, 0 if never compiled/run
}

// PropDef is one entry of an object's ordered propdef list (the definition,
// not the per-object value — values live in object_propvalues).
type PropDef struct {
	UUID    string // unique per definer (spec §3.2)
	Name    string
	Owner   value.ObjID
	Perms   PropertyPerms
	Definer value.ObjID // the object that defined this property
}

// LastMove records the bookkeeping the spec requires after every move:
// where the object came from and when (§3.7).
type LastMove struct {
	From value.ObjID
	At   int64
}

// PropValueEntry is what object_propvalues stores at a (obj,name) key: the
// value plus whether it's "clear" (inheriting the definer's default).
type PropValueEntry struct {
	Value value.Value
	Clear bool
}
