package builtin

import (
	"loom/value"
	"loom/world"
)

// registerCatalog registers every load-bearing builtin (spec §4.8) in a
// fixed order, plus the ambient string/list/math helpers carried forward
// from the teacher's builtins/*.go (adapted to the value package). Order is
// significant: it fixes the numeric id a compiled Program embeds, so new
// builtins are appended, never inserted.
func registerCatalog(r *Registry) {
	registerObjectBuiltins(r)
	registerVerbPropBuiltins(r)
	registerTaskBuiltins(r)
	registerStringBuiltins(r)
	registerListMapBuiltins(r)
	registerMathBuiltins(r)
}

func objArg(args []value.Value, i int) (value.ObjID, bool) {
	if i >= len(args) {
		return value.ObjID{}, false
	}
	o, ok := args[i].(value.ObjID)
	return o, ok
}

func strArg(args []value.Value, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(value.Str)
	return string(s), ok
}

func intArg(args []value.Value, i int) (int64, bool) {
	if i >= len(args) {
		return 0, false
	}
	n, ok := args[i].(value.Int)
	return int64(n), ok
}

// registerObjectBuiltins covers create/create_at/recycle/move/valid/parent/
// children/ancestors/descendants/locations/isa/chparent/renumber/
// is_anonymous/is_uuobjid/max_object/owned_objects/set_player_flag/players/
// objects (spec §4.8's object-lifecycle group).
func registerObjectBuiltins(r *Registry) {
	r.register("create", func(ctx Context, args []value.Value) Result {
		parent, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		kind := value.ObjKindNumbered
		if len(args) > 1 {
			if s, ok := strArg(args, 1); ok {
				switch s {
				case "uuid":
					kind = value.ObjKindUUID
				case "anonymous":
					kind = value.ObjKindAnonymous
				}
			}
		}
		if parent != value.Nothing {
			if !ctx.World.Valid(parent) {
				return Err(value.E_INVARG)
			}
			if !ctx.World.Flags(parent).Has(world.FlagFertile) && !ctx.IsWizard() {
				return Err(value.E_PERM)
			}
		}
		obj, err := ctx.World.Create(ctx.Perms, parent, kind)
		if err != nil {
			return ErrMsg(value.E_QUOTA, err.Error())
		}
		return Result{
			Value: obj,
			Suspend: &Suspend{
				DispatchVerb: &VerbDispatchRequest{This: obj, Verb: "initialize", Args: nil},
				Resume:       1,
			},
		}
	})

	r.register("create_at", func(ctx Context, args []value.Value) Result {
		parent, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		loc, ok := objArg(args, 1)
		if !ok {
			return Err(value.E_TYPE)
		}
		obj, err := ctx.World.CreateAt(ctx.Perms, parent, value.ObjKindNumbered, loc)
		if err != nil {
			return ErrMsg(value.E_QUOTA, err.Error())
		}
		return Ret(obj)
	})

	r.register("recycle", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		if !ctx.World.Valid(obj) {
			return Err(value.E_INVARG)
		}
		if ctx.World.Owner(obj) != ctx.Perms && !ctx.IsWizard() {
			return Err(value.E_PERM)
		}
		if err := ctx.World.Recycle(obj); err != nil {
			return ErrMsg(value.E_INVARG, err.Error())
		}
		return RetNil()
	})

	r.register("move", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		dest, ok := objArg(args, 1)
		if !ok {
			return Err(value.E_TYPE)
		}
		if !ctx.World.Valid(obj) {
			return Err(value.E_INVARG)
		}
		if dest != value.Nothing && ctx.World.Encloses(obj, dest) {
			return Err(value.E_RECMOVE)
		}
		if err := ctx.World.Move(obj, dest); err != nil {
			return ErrMsg(value.E_INVARG, err.Error())
		}
		return RetNil()
	})

	r.register("valid", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(value.Int(boolToInt(ctx.World.Valid(obj))))
	})

	r.register("parent", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(ctx.World.Parent(obj))
	})

	r.register("children", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(objListToValue(ctx.World.Children(obj)))
	})

	r.register("ancestors", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		chain := ctx.World.Ancestry(obj)
		if len(chain) > 0 {
			chain = chain[1:] // exclude obj itself
		}
		return Ret(objListToValue(chain))
	})

	r.register("descendants", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		var out []value.ObjID
		var walk func(value.ObjID)
		walk = func(o value.ObjID) {
			for _, c := range ctx.World.Children(o) {
				out = append(out, c)
				walk(c)
			}
		}
		walk(obj)
		return Ret(objListToValue(out))
	})

	r.register("locations", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		var out []value.ObjID
		cur := ctx.World.Location(obj)
		seen := map[value.ObjID]bool{}
		for cur != value.Nothing && !seen[cur] {
			out = append(out, cur)
			seen[cur] = true
			cur = ctx.World.Location(cur)
		}
		return Ret(objListToValue(out))
	})

	r.register("isa", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		anc, ok := objArg(args, 1)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(value.Int(boolToInt(ctx.World.IsA(obj, anc))))
	})

	r.register("chparent", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		newParent, ok := objArg(args, 1)
		if !ok {
			return Err(value.E_TYPE)
		}
		if ctx.World.Owner(obj) != ctx.Perms && !ctx.IsWizard() {
			return Err(value.E_PERM)
		}
		for _, a := range ctx.World.Ancestry(newParent) {
			if a == obj {
				return Err(value.E_RECMOVE)
			}
		}
		ctx.World.SetParentOverride(obj, newParent)
		return RetNil()
	})

	r.register("properties", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		var out []value.Value
		for _, pd := range ctx.World.PropDefs(obj) {
			out = append(out, value.Str(pd.Name))
		}
		return Ret(value.NewList(out))
	})

	r.register("verbs", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		var out []value.Value
		for _, vd := range ctx.World.VerbDefs(obj) {
			if len(vd.Names) > 0 {
				out = append(out, value.Str(vd.Names[0]))
			}
		}
		return Ret(value.NewList(out))
	})

	r.register("owned_objects", func(ctx Context, args []value.Value) Result {
		owner, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(objListToValue(ctx.World.OwnedObjects(owner)))
	})

	r.register("players", func(ctx Context, args []value.Value) Result {
		return Ret(objListToValue(ctx.World.AllWithFlag(world.FlagUser)))
	})

	r.register("objects", func(ctx Context, args []value.Value) Result {
		return Ret(objListToValue(ctx.World.AllObjects()))
	})

	r.register("max_object", func(ctx Context, args []value.Value) Result {
		return Ret(value.Int(ctx.World.MaxNumbered()))
	})

	r.register("set_player_flag", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		on, ok := intArg(args, 1)
		if !ok {
			return Err(value.E_TYPE)
		}
		if !ctx.IsWizard() {
			return Err(value.E_PERM)
		}
		f := ctx.World.Flags(obj)
		if on != 0 {
			f = f.Set(world.FlagUser)
		} else {
			f = f.Clear(world.FlagUser)
		}
		ctx.World.SetFlags(obj, f)
		return RetNil()
	})

	r.register("renumber", func(ctx Context, args []value.Value) Result {
		if !ctx.IsWizard() {
			return Err(value.E_PERM)
		}
		old, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		newID, ok := objArg(args, 1)
		if !ok {
			newID = ctx.World.NextNumbered()
		}
		if err := ctx.World.Renumber(old, newID); err != nil {
			return ErrMsg(value.E_INVARG, err.Error())
		}
		return Ret(newID)
	})

	r.register("is_anonymous", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(value.Int(boolToInt(obj.IsAnonymous())))
	})

	r.register("is_uuobjid", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(value.Int(boolToInt(obj.IsUUID())))
	})
}

// registerVerbPropBuiltins covers pass() and verb/property introspection
// that doesn't already live in registerObjectBuiltins's `properties`/`verbs`.
// pass()'s real "resume caller's ancestry search" semantics is implemented by
// the VM (it needs activation-stack context this package doesn't have); here
// pass is a marker the VM special-cases, matching the teacher's own
// compiler-level special case for it (vm/compiler.go's compileBuiltinCall).
func registerVerbPropBuiltins(r *Registry) {
	r.register("pass", func(ctx Context, args []value.Value) Result {
		return Result{Suspend: &Suspend{Resume: -1}} // VM intercepts id before dispatch
	})
}

func registerTaskBuiltins(r *Registry) {
	r.register("eval", func(ctx Context, args []value.Value) Result {
		src, ok := strArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Result{Suspend: &Suspend{Resume: 1, Carry: value.Str(src)}}
	})
	r.register("fork", func(ctx Context, args []value.Value) Result {
		delay, ok := intArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Result{Suspend: &Suspend{ParkFor: delay, Resume: 1}}
	})
	r.register("suspend", func(ctx Context, args []value.Value) Result {
		var ms int64
		if len(args) > 0 {
			ms, _ = intArg(args, 0)
		} else {
			ms = -1
		}
		return Result{Suspend: &Suspend{ParkFor: ms, Resume: 1}}
	})
	r.register("read", func(ctx Context, args []value.Value) Result {
		return Result{Suspend: &Suspend{ParkFor: -1, Resume: 1}}
	})
	r.register("notify", func(ctx Context, args []value.Value) Result {
		if len(args) < 2 {
			return Err(value.E_ARGS)
		}
		who, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		text, ok := strArg(args, 1)
		if !ok {
			return Err(value.E_TYPE)
		}
		if ctx.Session != nil {
			ctx.Session.Notify(who, text)
		}
		return RetNil()
	})
	r.register("parse_command", func(ctx Context, args []value.Value) Result {
		s, ok := strArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(value.NewList(splitWords(s)))
	})
	r.register("find_command_verb", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		verb, ok := strArg(args, 1)
		if !ok {
			return Err(value.E_TYPE)
		}
		_, on, _, found := ctx.World.FindVerb(obj, verb)
		if !found {
			return Ret(value.Nothing)
		}
		return Ret(on)
	})
	r.register("dispatch_command_verb", func(ctx Context, args []value.Value) Result {
		obj, ok := objArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		verb, ok := strArg(args, 1)
		if !ok {
			return Err(value.E_TYPE)
		}
		var rest []value.Value
		if len(args) > 2 {
			rest = args[2:]
		}
		return Result{Suspend: &Suspend{
			DispatchVerb: &VerbDispatchRequest{This: obj, Verb: verb, Args: rest},
			Resume:       1,
		}}
	})
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func objListToValue(ids []value.ObjID) value.Value {
	out := make([]value.Value, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return value.NewList(out)
}

func splitWords(s string) []value.Value {
	var out []value.Value
	word := []rune{}
	flush := func() {
		if len(word) > 0 {
			out = append(out, value.Str(string(word)))
			word = word[:0]
		}
	}
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			flush()
		default:
			word = append(word, r)
		}
	}
	flush()
	return out
}
