// Package vm implements the bytecode dispatch loop (spec §4.6): the flat
// stack-machine interpreter that runs a compiled program.Program against a
// world.Transaction, grounded on the teacher's vm/vm.go (StackFrame-based
// tree-walker) but re-shaped around an opcode stream instead of an AST.
package vm

import (
	"loom/builtin"
	"loom/program"
	"loom/value"
	"loom/world"
)

// MaxCallDepth bounds verb/lambda call nesting (spec §4.6.5 E_MAXREC).
const MaxCallDepth = 100

// frameKind distinguishes the runtime frames a try statement, inline catch
// expression, or loop pushes.
type frameKind byte

const (
	frameExcept frameKind = iota
	frameFinally
	frameCatch
	frameLoop
)

// protectFrame is the runtime bookkeeping for one active try/except, inline
// catch, try/finally, or for-loop region: the bytecode range it protects
// (so an unconditional jump out of it — break, continue, an outer loop
// back-edge — knows to drop it) and enough state to resume once entered.
type protectFrame struct {
	kind     frameKind
	basePC   int // the TRY_EXCEPT/TRY_FINALLY/CATCH/FOR_* opcode's own position
	endPC    int // handler (except/catch), finally-block start, or for's end target
	stackLen int // valstack depth to restore to when unwinding into this frame
	tableIdx int // index into Program.ErrorOperands/ErrorAny (except/catch only)
	forKey   int // ForOperand index, for frameLoop (used to clear forState on pop)
}

// forState is the runtime cursor for one active for-loop, keyed by the
// ForOperand index the compiler assigned it. FOR_RANGE/FOR_LIST/FOR_MAP
// re-execute the same instruction on every iteration (the jump target of
// FOR_NEXT is the loop header itself), so the cursor has to live here
// rather than on the value stack.
type forState struct {
	isRange  bool
	isMap    bool
	started  bool // range only: cur/end hold the first (unadvanced) bounds until the first visit emits them
	cur      value.Value
	end      value.Value
	list     []value.Value
	pairs    [][2]value.Value
	idx      int
}

// Activation is one verb/lambda call frame (spec §4.6.1).
type Activation struct {
	This        value.ObjID
	Player      value.ObjID
	Caller      value.ObjID
	VerbName    string
	Permissions value.ObjID // the effective permissions object

	Program *program.Program
	PC      int

	Stack []value.Value
	Env   []value.Value // flat register file, sized Program.NumRegisters

	frames   []protectFrame
	forState map[int]*forState

	pendingReturn  *value.Value
	lastCaught     *value.Error
	forkPending    *Outcome
	pendingFinally *pendingUnwind

	Depth int // call nesting depth, for E_MAXREC

	verbDef     *world.VerbDef
	verbDefiner value.ObjID
}

// NewActivation builds the entry activation for a verb/lambda call.
func NewActivation(this, player, caller value.ObjID, verbName string, perms value.ObjID, p *program.Program) *Activation {
	return &Activation{
		This:        this,
		Player:      player,
		Caller:      caller,
		VerbName:    verbName,
		Permissions: perms,
		Program:     p,
		PC:          p.BodyStart,
		Env:         make([]value.Value, p.NumRegisters),
		forState:    make(map[int]*forState),
	}
}

func (a *Activation) push(v value.Value) { a.Stack = append(a.Stack, v) }

func (a *Activation) pop() value.Value {
	n := len(a.Stack) - 1
	v := a.Stack[n]
	a.Stack = a.Stack[:n]
	return v
}

func (a *Activation) peek() value.Value { return a.Stack[len(a.Stack)-1] }

func (a *Activation) truncate(n int) { a.Stack = a.Stack[:n] }

// OutcomeKind tags what a VM.Run pass stopped for.
type OutcomeKind int

const (
	OutcomeReturn OutcomeKind = iota
	OutcomeRaise
	OutcomeFork
)

// Outcome is what running an Activation to its next stopping point produces.
type Outcome struct {
	Kind  OutcomeKind
	Value value.Value
	Err   *value.Error

	// ForkDelay/ForkVector/ForkVarName are populated when Kind == OutcomeFork:
	// the task layer schedules ForkVector as a new sibling task after
	// ForkDelay milliseconds. ForkVarName is the fork statement's variable
	// name ("" if none); the task layer does not bind it.
	ForkDelay    int64
	ForkVector   *program.ForkVector
	ForkVarName  string
	ForkEnv      []value.Value
}

// VerbDispatchRequest is exported for the task layer to drive dispatch_command_verb-style
// builtins; it mirrors builtin.VerbDispatchRequest so vm callers never need to import
// the builtin package just to build one.
type VerbDispatchRequest = builtin.VerbDispatchRequest
