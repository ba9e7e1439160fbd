package server

import (
	"fmt"
	"strconv"
	"strings"

	"loom/value"
	"loom/world"
)

// VerbDispatchRequest is what a matched command resolves to: the object the
// verb is found on and the arguments it should be called with (spec §4.8
// dispatch_command_verb).
type VerbDispatchRequest struct {
	This value.ObjID
	Verb string
	Args []value.Value

	// DObj/DObjStr/Prep/IObj/IObjStr are the matched command words, carried
	// through so the caller can bind them into the verb's dobj/dobjstr/
	// prepstr/iobj/iobjstr registers (spec §4.8, via vm.BindCommandWords).
	DObj    value.ObjID
	DObjStr string
	Prep    string
	IObj    value.ObjID
	IObjStr string
}

// Matcher implements find_command_verb (spec §4.8): given a parsed Command
// and the acting player, locate the dobj/iobj among the player, its
// location, and the location's contents, then find the nearest ancestor
// (by searching player, player's location, dobj, iobj in that order — the
// classic MOO $match order) whose verbdefs include a name match with a
// compatible VerbArgs triple.
type Matcher struct {
	w *world.Transaction
}

func NewMatcher(store *world.Store) *Matcher {
	t, _ := store.Begin()
	return &Matcher{w: t}
}

// FindCommandVerb resolves cmd issued by player.
func (m *Matcher) FindCommandVerb(player value.ObjID, cmd Command) (VerbDispatchRequest, error) {
	loc := m.w.Location(player)
	dobj := m.matchObject(player, loc, cmd.DObj)
	iobj := m.matchObject(player, loc, cmd.IObj)

	for _, candidate := range []value.ObjID{player, loc, dobj, iobj} {
		if candidate == value.Nothing && candidate != player && candidate != loc {
			continue
		}
		if def, _, _, ok := m.w.FindVerb(candidate, cmd.Verb); ok {
			if !argsMatch(def.Args, dobj, cmd.Prep, iobj) {
				continue
			}
			return VerbDispatchRequest{
				This:    candidate,
				Verb:    cmd.Verb,
				Args:    stringArgs(cmd.Args),
				DObj:    dobj,
				DObjStr: cmd.DObj,
				Prep:    cmd.Prep,
				IObj:    iobj,
				IObjStr: cmd.IObj,
			}, nil
		}
	}
	return VerbDispatchRequest{}, fmt.Errorf("I couldn't understand that.")
}

// matchObject resolves a noun phrase to an object: "me"/"here" sentinels,
// a valid #N literal, or a case-insensitive name match (aliases are not
// consulted) against the player and loc's contents (spec §4.8's `children`/`contents`-backed name resolution).
func (m *Matcher) matchObject(player, loc value.ObjID, phrase string) value.ObjID {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return value.Nothing
	}
	switch strings.ToLower(phrase) {
	case "me":
		return player
	case "here":
		return loc
	}
	if strings.HasPrefix(phrase, "#") {
		if n, err := strconv.ParseInt(phrase[1:], 10, 64); err == nil {
			obj := value.Numbered(n)
			if m.w.Valid(obj) {
				return obj
			}
		}
	}
	candidates := append([]value.ObjID{player}, m.w.Contents(loc)...)
	for _, c := range candidates {
		if strings.EqualFold(m.w.Name(c), phrase) {
			return c
		}
	}
	return value.Nothing
}

// argsMatch checks a verb's VerbArgs spec against the resolved objects
// (spec §3.2's direct/indirect-object spec ∈ {none,any,this}).
func argsMatch(spec world.VerbArgs, dobj value.ObjID, prep string, iobj value.ObjID) bool {
	if !argSpecOK(spec.This, dobj) {
		return false
	}
	if spec.Prep != "" && spec.Prep != "any" && spec.Prep != "none" && !strings.EqualFold(spec.Prep, prep) {
		return false
	}
	if !argSpecOK(spec.That, iobj) {
		return false
	}
	return true
}

func argSpecOK(spec string, obj value.ObjID) bool {
	switch spec {
	case "none":
		return obj == value.Nothing
	case "any":
		return true
	default: // "this": accepted regardless here; exact binding is the caller's job
		return true
	}
}

func stringArgs(words []string) []value.Value {
	out := make([]value.Value, len(words))
	for i, w := range words {
		out[i] = value.Str(w)
	}
	return out
}
