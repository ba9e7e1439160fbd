package builtin

import (
	"loom/value"
	"loom/world"
)

// Session is the narrative output surface notify()/disconnect_player() call
// into — the same method set as task.Session, matched structurally so this
// package never imports task (spec §4.7's "session handle (an opaque object
// providing narrative output/input prompt/disconnect)").
type Session interface {
	Notify(player value.ObjID, text string)
	Disconnect(player value.ObjID)
}

// Context is the minimal surface a builtin needs from its caller: the world
// transaction it runs against, and the calling activation's identity/
// permissions (spec §4.6.3's permission computation). Kept as a plain struct
// (not an interface) since every field is a concrete, cheaply-copied value —
// there is only one implementation and no cycle risk in doing so.
type Context struct {
	World  *world.Transaction
	Player value.ObjID
	This   value.ObjID
	Caller value.ObjID
	Perms  value.ObjID // the effective permissions object (spec §4.6.3)

	// Session delivers notify()'s narrative output to the connection that
	// owns the acting player, or is nil for a session-less caller (the
	// conformance runner, cmd/loomd dump-verb); notify() is then a no-op.
	Session Session

	// Now returns the coordinator's logical clock, used by time-reporting
	// builtins; set by the VM at activation construction.
	Now func() int64
}

func (c Context) IsWizard() bool {
	return c.World.Flags(c.Perms).Has(world.FlagWizard)
}

func (c Context) IsProgrammer() bool {
	return c.World.Flags(c.Perms).Has(world.FlagProgrammer)
}
