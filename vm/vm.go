package vm

import (
	"loom/builtin"
	"loom/lang"
	"loom/program"
	"loom/value"
	"loom/world"
)

// VM owns the dependencies a running Activation needs to resolve verbs,
// call builtins, and report time: the world transaction bytecode reads and
// writes through, the frozen builtin id table, and a clock hook (spec
// §4.6). One VM is built per task attempt; it carries no state of its own
// between Run calls.
type VM struct {
	World    *world.Transaction
	Builtins *builtin.Registry
	Now      func() int64

	// Session delivers notify()'s narrative output; nil for a session-less
	// caller (set via WithSession by callers that have one).
	Session builtin.Session
}

func New(w *world.Transaction, b *builtin.Registry) *VM {
	return &VM{World: w, Builtins: b, Now: w.Now}
}

// WithSession attaches sess to vm and returns it, for callers (task.Task.Run)
// that build a VM and then immediately wire up notify()'s destination.
func (vm *VM) WithSession(sess builtin.Session) *VM {
	vm.Session = sess
	return vm
}

// builtinContext is local shorthand for the struct step.go builds per call;
// kept as an alias so step.go doesn't need its own "loom/builtin" import.
type builtinContext = builtin.Context

func raiseErr(code value.ErrorCode) *value.Error {
	e := value.NewError(code)
	return &e
}

// PrepareVerb resolves verbName on this (by ancestry) and binds args into a
// fresh Activation ready to Run, without running it — the task package's
// top-level Starters use this instead of CallVerb so they can drive Run
// themselves and intercept OutcomeFork (spec §4.7).
func (vm *VM) PrepareVerb(this, player, caller value.ObjID, verbName string, args []value.Value, callerDepth int) (*Activation, *value.Error) {
	if callerDepth >= MaxCallDepth {
		return nil, raiseErr(value.E_MAXREC)
	}
	def, definer, _, ok := vm.World.FindVerb(this, verbName)
	if !ok {
		return nil, raiseErr(value.E_VERBNF)
	}
	prog, ok := vm.World.VerbProgram(definer, def.UUID)
	if !ok || prog == nil {
		return nil, raiseErr(value.E_VERBNF)
	}
	act := NewActivation(this, player, caller, verbName, def.Owner, prog)
	act.Depth = callerDepth + 1
	act.verbDef = &def
	act.verbDefiner = definer
	vm.seedImplicitVars(act, verbName, args)
	if err := vm.bindScatter(act, prog.ParamScatter, args, prog.Code); err != nil {
		return nil, err
	}
	return act, nil
}

// seedImplicitVars populates the player/this/caller/verb/args registers
// declareImplicitVerbVars reserved at compile time, so plain identifier
// references to them inside the verb body read the real activation state
// instead of an auto-declared, zero-valued local (spec §4.6.1, §8 scenario
// 7). A Program compiled without CompileVerb/CompileVerbWithRegistry (a
// fork vector, a lambda) has no such registers and ImplicitOffset reports
// that, so this is a no-op for those.
func (vm *VM) seedImplicitVars(act *Activation, verbName string, args []value.Value) {
	p := act.Program
	set := func(name string, v value.Value) {
		if off, ok := p.ImplicitOffset(name); ok {
			act.Env[off] = v
		}
	}
	set("player", act.Player)
	set("this", act.This)
	set("caller", act.Caller)
	set("verb", value.Str(verbName))
	set("args", value.NewList(args))
}

// BindCommandWords seeds a command-dispatch activation's dobj/dobjstr/
// prepstr/iobj/iobjstr registers (spec §4.8 find_command_verb matching).
// Only a verb resolved via command matching carries this context, so the
// task layer calls it itself after PrepareVerb rather than PrepareVerb
// taking it unconditionally.
func (vm *VM) BindCommandWords(act *Activation, dobj value.ObjID, dobjstr, prepstr string, iobj value.ObjID, iobjstr string) {
	p := act.Program
	set := func(name string, v value.Value) {
		if off, ok := p.ImplicitOffset(name); ok {
			act.Env[off] = v
		}
	}
	set("dobj", dobj)
	set("dobjstr", value.Str(dobjstr))
	set("prepstr", value.Str(prepstr))
	set("iobj", iobj)
	set("iobjstr", value.Str(iobjstr))
}

// CallVerb resolves verbName on this (by ancestry) and runs it to
// completion, returning its final value or a raised error (spec §4.6.2).
// callerDepth is the calling activation's Depth, or 0 for a fresh command.
func (vm *VM) CallVerb(this, player, caller value.ObjID, verbName string, args []value.Value, callerDepth int) (value.Value, *value.Error) {
	act, err := vm.PrepareVerb(this, player, caller, verbName, args, callerDepth)
	if err != nil {
		return nil, err
	}
	return vm.runActivation(act)
}

// PrepareEval compiles src as a fresh verb body into an Activation ready to
// Run, without running it (the eval() counterpart to PrepareVerb).
func (vm *VM) PrepareEval(this, player, caller, perms value.ObjID, src string) (*Activation, *value.Error) {
	stmts, err := lang.NewParser(src).ParseProgram()
	if err != nil {
		ev := value.NewErrorMsg(value.E_INVARG, err.Error())
		return nil, &ev
	}
	prog, err := lang.CompileVerbWithRegistry(stmts, nil, vm.Builtins)
	if err != nil {
		ev := value.NewErrorMsg(value.E_INVARG, err.Error())
		return nil, &ev
	}
	act := NewActivation(this, player, caller, "eval", perms, prog)
	vm.seedImplicitVars(act, "eval", nil)
	return act, nil
}

// Eval compiles src as a fresh verb body and runs it to completion as a
// pseudo-verb activation (spec §4.7 "eval builtin"), the entry point the
// task package's eval-task Starter calls.
func (vm *VM) Eval(this, player, caller, perms value.ObjID, src string) (value.Value, *value.Error) {
	act := &Activation{This: this, Player: player, Caller: caller, VerbName: "eval", Permissions: perms}
	return vm.evalString(act, src)
}

// ForkChild builds the Activation a forked statement's body runs as,
// from the OutcomeFork the parent's Run returned (spec §4.6.4 fork). The
// task package uses this to hand the child to its own Scheduler.Fork
// instead of running it inline.
func ForkChild(out Outcome, parent *Activation) *Activation {
	return &Activation{
		This: parent.This, Player: parent.Player, Caller: parent.This,
		Permissions: parent.Permissions,
		Program:     &program.Program{Code: out.ForkVector.Code, Lines: out.ForkVector.Lines, NumRegisters: len(out.ForkEnv)},
		Env:         out.ForkEnv,
		forState:    make(map[int]*forState),
	}
}

// CallLambda invokes a first-class function value with args (spec §3.4).
func (vm *VM) CallLambda(l value.Lambda, this, player, caller value.ObjID, perms value.ObjID, args []value.Value, depth int) (value.Value, *value.Error) {
	if depth >= MaxCallDepth {
		return nil, raiseErr(value.E_MAXREC)
	}
	prog, ok := l.Body.(*program.Program)
	if !ok || prog == nil {
		return nil, raiseErr(value.E_VERBNF)
	}
	act := NewActivation(this, player, caller, "", perms, prog)
	act.Depth = depth + 1
	// Lambda captures occupy registers [0, len(CaptureNames)) by
	// construction (compileNestedLambda declares them before the parameter
	// scatter); a named lambda's self-reference sits in the next register.
	if len(l.Env) > 0 {
		captured := l.Env[0]
		for i, v := range captured {
			if i < len(act.Env) {
				act.Env[i] = v
			}
		}
	}
	if l.HasSelf && prog.HasSelf {
		selfOff := len(prog.CaptureNames)
		if selfOff < len(act.Env) {
			act.Env[selfOff] = l
		}
	}
	if err := vm.bindScatter(act, prog.ParamScatter, args, prog.Code); err != nil {
		return nil, err
	}
	return vm.runActivation(act)
}

// bindScatter implements spec §4.4.3 parameter binding: required targets
// consume one positional argument each, optional targets consume one if
// present else run their DefaultStart snippet, and a single rest target
// (if any) absorbs everything between the required prefix and suffix.
func (vm *VM) bindScatter(act *Activation, ops []program.ScatterOperand, args []value.Value, code []byte) *value.Error {
	if len(ops) == 0 {
		if len(args) > 0 {
			return raiseErr(value.E_ARGS)
		}
		return nil
	}
	restIdx := -1
	minRequired := 0
	for i, op := range ops {
		if op.Kind == program.ScatterRest {
			restIdx = i
		} else if op.Kind == program.ScatterRequired {
			minRequired++
		}
	}
	if restIdx == -1 && len(args) > len(ops) {
		return raiseErr(value.E_ARGS)
	}
	if len(args) < minRequired {
		return raiseErr(value.E_ARGS)
	}

	leftCount := len(ops)
	if restIdx != -1 {
		leftCount = restIdx
	}
	pos := 0
	for i := 0; i < leftCount; i++ {
		op := ops[i]
		switch op.Kind {
		case program.ScatterRequired:
			act.Env[op.Offset] = args[pos]
			pos++
		default: // optional / optional-with-default
			if pos < len(args) {
				act.Env[op.Offset] = args[pos]
				pos++
			} else if op.DefaultStart >= 0 {
				v, err := vm.runDefaultSnippet(act, code, op.DefaultStart)
				if err != nil {
					return err
				}
				act.Env[op.Offset] = v
			} else {
				act.Env[op.Offset] = value.Int(0)
			}
		}
	}
	if restIdx != -1 {
		rightCount := len(ops) - restIdx - 1
		restLen := len(args) - pos - rightCount
		if restLen < 0 {
			return raiseErr(value.E_ARGS)
		}
		rest := make([]value.Value, restLen)
		copy(rest, args[pos:pos+restLen])
		act.Env[ops[restIdx].Offset] = value.NewList(rest)
		pos += restLen
		for j := 0; j < rightCount; j++ {
			op := ops[restIdx+1+j]
			if pos < len(args) {
				act.Env[op.Offset] = args[pos]
				pos++
			} else {
				act.Env[op.Offset] = value.Int(0)
			}
		}
	}
	return nil
}

// runDefaultSnippet executes the DefaultStart..OP_SET_VAR run the compiler
// left inline before BodyStart, on act's own Env but a scratch Stack, and
// returns the value the snippet stored rather than trusting the register
// (several defaults can share the same staging code shape).
func (vm *VM) runDefaultSnippet(act *Activation, code []byte, start int) (value.Value, *value.Error) {
	saved := act.PC
	savedStack := act.Stack
	act.PC = start
	act.Stack = nil
	for {
		op := program.OpCode(code[act.PC])
		if op == program.OP_SET_VAR {
			result := act.pop()
			act.PC = saved
			act.Stack = savedStack
			return result, nil
		}
		if err := vm.step(act, code); err != nil {
			act.PC = saved
			act.Stack = savedStack
			return nil, err
		}
	}
}

func be32(code []byte, at int) uint32 {
	return uint32(code[at])<<24 | uint32(code[at+1])<<16 | uint32(code[at+2])<<8 | uint32(code[at+3])
}

// runActivation drives the dispatch loop to completion. A fork reached with
// nowhere to schedule it (a default snippet, an eval()) runs immediately as
// a nested call instead of being dropped; real scheduling is the task
// package's job, which calls Run directly and intercepts OutcomeFork itself.
func (vm *VM) runActivation(act *Activation) (value.Value, *value.Error) {
	out := vm.Run(act)
	switch out.Kind {
	case OutcomeReturn:
		return out.Value, nil
	case OutcomeFork:
		vm.runActivation(ForkChild(out, act))
		return vm.runActivation(act)
	default:
		return nil, out.Err
	}
}

// Run executes act from its current PC until a RETURN, an unhandled raise,
// or a FORK statement, whichever comes first.
func (vm *VM) Run(act *Activation) Outcome {
	code := act.Program.Code
	for {
		if act.PC >= len(code) {
			return Outcome{Kind: OutcomeReturn, Value: value.Int(0)}
		}
		err := vm.step(act, code)
		if err != nil {
			if out := vm.unwind(act, unwindRaise, value.Value(nil), err); out != nil {
				return *out
			}
			continue
		}
		if act.pendingReturn != nil {
			v := *act.pendingReturn
			act.pendingReturn = nil
			if out := vm.unwind(act, unwindReturn, v, nil); out != nil {
				return *out
			}
			continue
		}
		if act.forkPending != nil {
			out := *act.forkPending
			act.forkPending = nil
			return out
		}
	}
}
