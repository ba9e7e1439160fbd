// Package builtin implements the numbered builtin-function table (spec
// §4.8/§6.4): stable name<->id mapping the compiler resolves at codegen
// time, plus the load-bearing builtins whose semantics the VM depends on.
// Grounded on the teacher's builtins/registry.go (Name->ID table + Func
// signature), generalized to the loom value/world model.
package builtin

import "loom/value"

// Func is a native builtin implementation. ctx is the minimal surface a
// builtin needs from its caller (the current activation's permissions,
// world transaction, and VM re-entry hooks); Context is a plain struct
// defined in this package so it never imports vm, matching the teacher's own
// builtins-don't-import-vm layering.
type Func func(ctx Context, args []value.Value) Result

// Result is what a builtin hands back to its caller (spec §4.6.6).
type Result struct {
	Value      value.Value
	Err        *value.Error
	Suspend    *Suspend // non-nil if the builtin wants the VM to do something first
}

// Suspend asks the VM to perform a side effect (dispatch a verb, park the
// task) and re-enter this builtin via Trampoline/TrampolineArg afterward.
type Suspend struct {
	DispatchVerb *VerbDispatchRequest
	ParkFor      int64 // ticks/ms to park, for suspend(n); -1 = indefinite (read())
	Resume       int    // trampoline state to resume with
	Carry        value.Value
}

// VerbDispatchRequest asks the VM to resolve and call a verb, then resume
// the requesting builtin's trampoline with the verb's return value.
type VerbDispatchRequest struct {
	This value.ObjID
	Verb string
	Args []value.Value
}

func Ret(v value.Value) Result       { return Result{Value: v} }
func RetNil() Result                 { return Result{Value: value.Int(0)} }
func Err(e value.ErrorCode) Result   { ev := value.NewError(e); return Result{Err: &ev} }
func ErrMsg(e value.ErrorCode, msg string) Result {
	ev := value.NewErrorMsg(e, msg)
	return Result{Err: &ev}
}

// Registry assigns stable numeric ids to builtins in registration order,
// frozen by catalog.go's call order so compiled Programs referencing an id
// stay valid across rebuilds (spec §6.4).
type Registry struct {
	byName map[string]int
	byID   []entry
}

type entry struct {
	name string
	fn   Func
}

func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]int)}
	registerCatalog(r)
	return r
}

// register assigns the next id to name. Called only from catalog.go at
// construction time, in a fixed order.
func (r *Registry) register(name string, fn Func) {
	id := len(r.byID)
	r.byID = append(r.byID, entry{name: name, fn: fn})
	r.byName[name] = id
}

func (r *Registry) GetID(name string) (int, bool) {
	id, ok := r.byName[name]
	return id, ok
}

func (r *Registry) Name(id int) (string, bool) {
	if id < 0 || id >= len(r.byID) {
		return "", false
	}
	return r.byID[id].name, true
}

func (r *Registry) Call(id int, ctx Context, args []value.Value) Result {
	if id < 0 || id >= len(r.byID) {
		return ErrMsg(value.E_VERBNF, "unknown builtin id")
	}
	return r.byID[id].fn(ctx, args)
}
