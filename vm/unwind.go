package vm

import "loom/value"

// unwindKind tags why Run is asking unwind to search the frame stack.
type unwindKind int

const (
	unwindRaise unwindKind = iota
	unwindReturn
)

// pendingUnwind is stashed on an Activation when a return or raise has to
// pass through an active finally block before it can complete; OP_END_FINALLY
// picks it back up and resumes the original action.
type pendingUnwind struct {
	kind unwindKind
	val  value.Value
	err  *value.Error
}

// codeMatches reports whether err's code is one this try/catch's error table
// catches: either the table was declared ANY, or err.Code is named in it.
func (vm *VM) codeMatches(act *Activation, tableIdx int, err *value.Error) bool {
	if tableIdx < 0 || tableIdx >= len(act.Program.ErrorOperands) {
		return false
	}
	if tableIdx < len(act.Program.ErrorAny) && act.Program.ErrorAny[tableIdx] {
		return true
	}
	for _, code := range act.Program.ErrorOperands[tableIdx] {
		if code == err.Code {
			return true
		}
	}
	return false
}

// unwind pops protectFrames looking for one that handles kind: a matching
// except/catch frame for a raise, or the nearest finally frame for either a
// raise or a return that needs to run cleanup first. If nothing on the stack
// handles it, it returns the final Outcome for the caller.
func (vm *VM) unwind(act *Activation, kind unwindKind, val value.Value, err *value.Error) *Outcome {
	for len(act.frames) > 0 {
		f := act.frames[len(act.frames)-1]
		act.frames = act.frames[:len(act.frames)-1]

		switch f.kind {
		case frameExcept, frameCatch:
			if kind != unwindRaise || !vm.codeMatches(act, f.tableIdx, err) {
				continue
			}
			act.truncate(f.stackLen)
			if f.kind == frameExcept {
				act.push(*err)
			} else {
				act.lastCaught = err
			}
			act.PC = f.endPC
			return nil

		case frameFinally:
			act.truncate(f.stackLen)
			act.pendingFinally = &pendingUnwind{kind: kind, val: val, err: err}
			act.PC = f.endPC
			return nil

		case frameLoop:
			continue
		}
	}

	if kind == unwindRaise {
		return &Outcome{Kind: OutcomeRaise, Err: err}
	}
	return &Outcome{Kind: OutcomeReturn, Value: val}
}
