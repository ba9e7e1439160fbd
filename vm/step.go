package vm

import (
	"math"

	"loom/lang"
	"loom/program"
	"loom/value"
)

// step executes exactly one instruction, advancing act.PC. A non-nil return
// is a raised runtime error; Run is responsible for routing it through
// unwind. step itself never touches act.frames directly except to push new
// protectFrames (TRY_EXCEPT/TRY_FINALLY/CATCH); popping them is unwind's job,
// except for the normal-completion path (END_EXCEPT/END_FINALLY).
func (vm *VM) step(act *Activation, code []byte) *value.Error {
	op := program.OpCode(code[act.PC])
	act.PC++

	if program.IsImmediateInt(op) {
		act.push(value.Int(program.ImmediateValue(op)))
		return nil
	}

	switch op {
	case program.OP_PUSH:
		idx := be32(code, act.PC)
		act.PC += 4
		act.push(act.Program.Literals[idx])

	case program.OP_PUSH_SYMBOL:
		idx := be32(code, act.PC)
		act.PC += 4
		lit := act.Program.Literals[idx]
		if s, ok := lit.(value.Str); ok {
			act.push(value.Intern(string(s)))
		} else {
			act.push(lit)
		}

	case program.OP_POP:
		act.pop()

	case program.OP_DUP:
		act.push(act.peek())

	case program.OP_GET_VAR:
		off := be32(code, act.PC)
		act.PC += 8 // offset + depth (depth always 0)
		act.push(act.Env[off])

	case program.OP_SET_VAR:
		off := be32(code, act.PC)
		act.PC += 8
		act.Env[off] = act.pop()

	case program.OP_GET_PROP:
		// no compiled program emits this today; compileExpr always lowers
		// property reads through OP_GET_PROP_NAME, even for a literal name.
		act.pop()
		return raiseErr(value.E_PROPNF)

	case program.OP_SET_PROP:
		v := act.pop()
		name := act.pop()
		obj := act.pop()
		if err := vm.setProperty(act, obj, name, v); err != nil {
			return err
		}

	case program.OP_GET_PROP_NAME:
		name := act.pop()
		obj := act.pop()
		v, err := vm.getProperty(act, obj, name)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_ADD:
		b, a := act.pop(), act.pop()
		v, err := value.Add(a, b)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_SUB:
		b, a := act.pop(), act.pop()
		v, err := value.Sub(a, b)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_MUL:
		b, a := act.pop(), act.pop()
		v, err := value.Mul(a, b)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_DIV:
		b, a := act.pop(), act.pop()
		v, err := value.DivChecked(a, b)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_MOD:
		b, a := act.pop(), act.pop()
		v, err := value.ModChecked(a, b)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_POW:
		b, a := act.pop(), act.pop()
		v, err := value.Pow(a, b)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_NEG:
		v, err := value.Neg(act.pop())
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_EQ:
		b, a := act.pop(), act.pop()
		act.push(boolValue(a.Equal(b)))

	case program.OP_NE:
		b, a := act.pop(), act.pop()
		act.push(boolValue(!a.Equal(b)))

	case program.OP_LT:
		b, a := act.pop(), act.pop()
		c, err := compareOrdered(a, b)
		if err != nil {
			return err
		}
		act.push(boolValue(c < 0))

	case program.OP_LE:
		b, a := act.pop(), act.pop()
		c, err := compareOrdered(a, b)
		if err != nil {
			return err
		}
		act.push(boolValue(c <= 0))

	case program.OP_GT:
		b, a := act.pop(), act.pop()
		c, err := compareOrdered(a, b)
		if err != nil {
			return err
		}
		act.push(boolValue(c > 0))

	case program.OP_GE:
		b, a := act.pop(), act.pop()
		c, err := compareOrdered(a, b)
		if err != nil {
			return err
		}
		act.push(boolValue(c >= 0))

	case program.OP_IN:
		seq, elem := act.pop(), act.pop()
		idx, err := value.IndexIn(seq, elem, false, value.OneBased)
		if err != nil {
			return err
		}
		act.push(value.Int(idx))

	case program.OP_NOT:
		act.push(boolValue(!act.pop().Truthy()))

	case program.OP_AND:
		target := be32(code, act.PC)
		act.PC += 4
		if !act.peek().Truthy() {
			act.PC = int(target)
		}

	case program.OP_OR:
		target := be32(code, act.PC)
		act.PC += 4
		if act.peek().Truthy() {
			act.PC = int(target)
		}

	case program.OP_BITOR:
		b, a := act.pop(), act.pop()
		v, err := value.BitOr(a, b)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_BITAND:
		b, a := act.pop(), act.pop()
		v, err := value.BitAnd(a, b)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_BITXOR:
		b, a := act.pop(), act.pop()
		v, err := value.BitXor(a, b)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_BITNOT:
		v, err := value.BitNot(act.pop())
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_SHL:
		b, a := act.pop(), act.pop()
		v, err := value.Shl(a, b)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_SHR:
		b, a := act.pop(), act.pop()
		v, err := value.Shr(a, b)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_SHR_LOGICAL:
		b, a := act.pop(), act.pop()
		v, err := value.LogicalShr(a, b)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_JUMP, program.OP_BREAK:
		target := be32(code, act.PC)
		act.PC = int(target)

	case program.OP_JUMP_IF_FALSE:
		target := be32(code, act.PC)
		act.PC += 4
		if !act.pop().Truthy() {
			act.PC = int(target)
		}

	case program.OP_JUMP_IF_TRUE:
		target := be32(code, act.PC)
		act.PC += 4
		if act.pop().Truthy() {
			act.PC = int(target)
		}

	case program.OP_LOOP, program.OP_CONTINUE:
		target := be32(code, act.PC)
		act.PC = int(target)

	case program.OP_RETURN:
		v := act.pop()
		act.pendingReturn = &v

	case program.OP_RETURN_NONE:
		v := value.Value(value.Int(0))
		act.pendingReturn = &v

	case program.OP_FOR_RANGE, program.OP_FOR_LIST, program.OP_FOR_MAP:
		return vm.stepForLoop(act, code, op)

	case program.OP_FOR_NEXT:
		target := be32(code, act.PC)
		act.PC = int(target)

	case program.OP_TRY_EXCEPT:
		tableIdx := be32(code, act.PC)
		handlerAddr := be32(code, act.PC+4)
		act.PC += 8
		act.frames = append(act.frames, protectFrame{
			kind: frameExcept, basePC: act.PC, endPC: int(handlerAddr),
			stackLen: len(act.Stack), tableIdx: int(tableIdx),
		})

	case program.OP_END_EXCEPT:
		if n := len(act.frames); n > 0 && act.frames[n-1].kind == frameExcept {
			act.frames = act.frames[:n-1]
		}

	case program.OP_TRY_FINALLY:
		finallyAddr := be32(code, act.PC)
		act.PC += 4
		act.frames = append(act.frames, protectFrame{
			kind: frameFinally, basePC: act.PC, endPC: int(finallyAddr),
			stackLen: len(act.Stack),
		})

	case program.OP_END_FINALLY:
		if n := len(act.frames); n > 0 && act.frames[n-1].kind == frameFinally {
			act.frames = act.frames[:n-1]
		}
		if p := act.pendingFinally; p != nil {
			act.pendingFinally = nil
			if p.kind == unwindRaise {
				return p.err
			}
			act.pendingReturn = &p.val
		}

	case program.OP_CATCH:
		tableIdx := be32(code, act.PC)
		handlerAddr := be32(code, act.PC+4)
		act.PC += 8
		act.frames = append(act.frames, protectFrame{
			kind: frameCatch, basePC: act.PC, endPC: int(handlerAddr),
			stackLen: len(act.Stack), tableIdx: int(tableIdx),
		})

	case program.OP_RAISE:
		if act.lastCaught == nil {
			return raiseErr(value.E_INVARG)
		}
		return act.lastCaught

	case program.OP_CALL_BUILTIN:
		id := int(be32(code, act.PC))
		argc := code[act.PC+4]
		act.PC += 5
		args := vm.popArgs(act, argc)
		return vm.callBuiltin(act, id, args)

	case program.OP_CALL_VERB:
		argc := code[act.PC]
		act.PC++
		args := vm.popArgs(act, argc)
		name, _ := act.pop().(value.Str)
		obj, ok := act.pop().(value.ObjID)
		if !ok {
			return raiseErr(value.E_TYPE)
		}
		v, err := vm.CallVerb(obj, act.Player, act.This, string(name), args, act.Depth)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_PASS:
		argc := code[act.PC]
		act.PC++
		args := vm.popArgs(act, argc)
		v, err := vm.callPass(act, args)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_SCATTER:
		tableIdx := be32(code, act.PC)
		act.PC += 4
		if err := vm.checkScatter(act, int(tableIdx)); err != nil {
			return err
		}

	case program.OP_MAKE_LIST:
		count := int(be32(code, act.PC))
		act.PC += 4
		elems := make([]value.Value, count)
		for i := count - 1; i >= 0; i-- {
			elems[i] = act.pop()
		}
		act.push(value.NewList(elems))

	case program.OP_MAKE_MAP:
		count := int(be32(code, act.PC))
		act.PC += 4
		pairs := make([][2]value.Value, count)
		for i := count - 1; i >= 0; i-- {
			v := act.pop()
			k := act.pop()
			pairs[i] = [2]value.Value{k, v}
		}
		act.push(value.NewMap(pairs))

	case program.OP_INDEX:
		idx := act.pop()
		container := act.pop()
		n, ok := idx.(value.Int)
		if !ok {
			return raiseErr(value.E_TYPE)
		}
		v, err := value.Get1(container, int64(n), value.OneBased)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_INDEX_SET:
		v := act.pop()
		idx := act.pop()
		container := act.pop()
		n, ok := idx.(value.Int)
		if !ok {
			return raiseErr(value.E_TYPE)
		}
		updated, err := value.Set1(container, int64(n), v, value.OneBased)
		if err != nil {
			return err
		}
		act.push(updated)

	case program.OP_RANGE:
		end := act.pop()
		start := act.pop()
		container := act.pop()
		s, ok1 := start.(value.Int)
		e, ok2 := end.(value.Int)
		if !ok1 || !ok2 {
			return raiseErr(value.E_TYPE)
		}
		v, err := value.Range1(container, int64(s), int64(e), value.OneBased)
		if err != nil {
			return err
		}
		act.push(v)

	case program.OP_RANGE_SET:
		v := act.pop()
		end := act.pop()
		start := act.pop()
		container := act.pop()
		s, ok1 := start.(value.Int)
		e, ok2 := end.(value.Int)
		if !ok1 || !ok2 {
			return raiseErr(value.E_TYPE)
		}
		updated, err := value.RangeSet1(container, int64(s), int64(e), v, value.OneBased)
		if err != nil {
			return err
		}
		act.push(updated)

	case program.OP_LENGTH:
		n, err := value.Length(act.pop())
		if err != nil {
			return err
		}
		act.push(value.Int(n))

	case program.OP_ITER_PREP:
		act.PC++ // has-index byte; unused, no compiled program emits this today

	case program.OP_LIST_RANGE:
		end := act.pop()
		start := act.pop()
		container := act.pop()
		l, ok := container.(value.List)
		s, ok1 := start.(value.Int)
		e, ok2 := end.(value.Int)
		if !ok || !ok1 || !ok2 {
			return raiseErr(value.E_TYPE)
		}
		act.push(l.Range1(int(s), int(e)))

	case program.OP_LIST_APPEND:
		elem := act.pop()
		l, ok := act.pop().(value.List)
		if !ok {
			return raiseErr(value.E_TYPE)
		}
		act.push(l.Append(elem))

	case program.OP_LIST_EXTEND:
		ext := act.pop()
		l, ok := act.pop().(value.List)
		extl, ok2 := ext.(value.List)
		if !ok || !ok2 {
			return raiseErr(value.E_TYPE)
		}
		act.push(l.Concat(extl))

	case program.OP_FORK:
		varOffset := code[act.PC]
		vecIdx := be32(code, act.PC+1)
		act.PC += 5
		delay := act.pop()
		n, ok := delay.(value.Int)
		if !ok {
			return raiseErr(value.E_TYPE)
		}
		varName := ""
		if varOffset != 0xFF {
			for _, vn := range act.Program.VarNames {
				if vn.Offset == int(varOffset) {
					varName = vn.Name
					break
				}
			}
		}
		env := make([]value.Value, len(act.Env))
		copy(env, act.Env)
		out := Outcome{
			Kind: OutcomeFork, ForkDelay: int64(n),
			ForkVector: &act.Program.ForkVectors[vecIdx], ForkVarName: varName, ForkEnv: env,
		}
		act.forkPending = &out

	case program.OP_BEGIN_SCOPE, program.OP_END_SCOPE:
		// structural markers only; the flat register file needs no runtime
		// bookkeeping for scope entry/exit (see lang/codegen.go's package doc).

	case program.OP_MAKE_FLYWEIGHT:
		slotCount := int(be32(code, act.PC))
		act.PC += 4
		contentsV := act.pop()
		contents, ok := contentsV.(value.List)
		if !ok {
			return raiseErr(value.E_TYPE)
		}
		pairs := make([][2]value.Value, slotCount)
		for i := slotCount - 1; i >= 0; i-- {
			v := act.pop()
			nameV := act.pop()
			name, ok := nameV.(value.Str)
			if !ok {
				return raiseErr(value.E_TYPE)
			}
			pairs[i] = [2]value.Value{value.Intern(string(name)), v}
		}
		delegate, ok := act.pop().(value.ObjID)
		if !ok {
			return raiseErr(value.E_TYPE)
		}
		act.push(value.NewFlyweight(delegate, value.NewMap(pairs), contents))

	case program.OP_MAKE_LAMBDA:
		subIdx := int(be32(code, act.PC))
		capCount := int(be32(code, act.PC+4))
		act.PC += 8
		sub := act.Program.Lambdas[subIdx]
		env := make([]value.Value, capCount)
		for i := capCount - 1; i >= 0; i-- {
			env[i] = act.pop()
		}
		act.push(value.Lambda{Body: sub, Env: []value.Frame{env}, SelfName: sub.SelfName, HasSelf: sub.HasSelf})

	case program.OP_CALL_LAMBDA:
		argc := code[act.PC]
		act.PC++
		args := vm.popArgs(act, argc)
		lv := act.pop()
		l, ok := lv.(value.Lambda)
		if !ok {
			return raiseErr(value.E_VERBNF)
		}
		v, err := vm.CallLambda(l, act.This, act.Player, act.This, act.Permissions, args, act.Depth)
		if err != nil {
			return err
		}
		act.push(v)

	default:
		return raiseErr(value.E_INVARG)
	}

	return nil
}

func boolValue(b bool) value.Value {
	if b {
		return value.Int(1)
	}
	return value.Int(0)
}

// compareOrdered implements the relational-operator total order: numeric
// values cross-compare int/float, everything else compares same-type via
// Ordered.Less. Mismatched, non-ordered types raise E_TYPE.
func compareOrdered(a, b value.Value) (int, *value.Error) {
	switch x := a.(type) {
	case value.Int:
		switch y := b.(type) {
		case value.Int:
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			default:
				return 0, nil
			}
		case value.Float:
			return compareFloats(float64(x), float64(y)), nil
		}
		return 0, raiseErr(value.E_TYPE)
	case value.Float:
		switch y := b.(type) {
		case value.Int:
			return compareFloats(float64(x), float64(y)), nil
		case value.Float:
			return compareFloats(float64(x), float64(y)), nil
		}
		return 0, raiseErr(value.E_TYPE)
	}
	ao, aok := a.(value.Ordered)
	bo, bok := b.(value.Ordered)
	if !aok || !bok {
		return 0, raiseErr(value.E_TYPE)
	}
	if ao.Less(b) {
		return -1, nil
	}
	if bo.Less(a) {
		return 1, nil
	}
	return 0, nil
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// popArgs collects a call's arguments: argc individual stack values in
// source order, or (sentinel 0xFF) the single spliced List compileArgList
// leaves on the stack when any argument used `@`.
func (vm *VM) popArgs(act *Activation, argc byte) []value.Value {
	if argc == 0xFF {
		l, ok := act.pop().(value.List)
		if !ok {
			return nil
		}
		return append([]value.Value{}, l.Elements()...)
	}
	args := make([]value.Value, argc)
	for i := int(argc) - 1; i >= 0; i-- {
		args[i] = act.pop()
	}
	return args
}

// stepForLoop drives the FOR_RANGE/FOR_LIST/FOR_MAP state machine: the first
// visit consumes its setup operands off the stack and seeds act.forState;
// every later visit (a `continue`, or FOR_NEXT's back-edge) re-enters this
// same instruction and just advances the stored cursor.
func (vm *VM) stepForLoop(act *Activation, code []byte, op program.OpCode) *value.Error {
	forOpIdx := int(be32(code, act.PC))
	endTarget := int(be32(code, act.PC+4))
	act.PC += 8

	fo := act.Program.ForOperands[forOpIdx]
	st, exists := act.forState[forOpIdx]
	if !exists {
		st = &forState{}
		switch op {
		case program.OP_FOR_RANGE:
			end := act.pop()
			start := act.pop()
			if !rangeTypesMatch(start, end) {
				return raiseErr(value.E_TYPE)
			}
			st.isRange = true
			st.cur = start
			st.end = end
		case program.OP_FOR_LIST:
			container := act.pop()
			l, ok := container.(value.List)
			if !ok {
				return raiseErr(value.E_TYPE)
			}
			st.list = l.Elements()
			st.idx = 0
		case program.OP_FOR_MAP:
			container := act.pop()
			m, ok := container.(value.Map)
			if !ok {
				return raiseErr(value.E_TYPE)
			}
			st.isMap = true
			st.pairs = m.Pairs()
			st.idx = 0
		}
		act.forState[forOpIdx] = st
	}

	switch {
	case st.isRange:
		if !st.started {
			// First visit emits the start value itself, unadvanced — doing
			// it this way (rather than the classic "seed cur = start-1,
			// always advance before emitting") means a start of MinInt64
			// never needs to compute start-1 and underflow before the loop
			// even begins (spec §4.6.5, §8's "from MIN to MIN+1" case).
			st.started = true
			if rangeExceeds(st.cur, st.end) {
				delete(act.forState, forOpIdx)
				act.PC = endTarget
				return nil
			}
		} else {
			next, stop := rangeAdvance(st.cur, st.end)
			if stop {
				delete(act.forState, forOpIdx)
				act.PC = endTarget
				return nil
			}
			st.cur = next
		}
		act.Env[fo.ValueOffset] = st.cur
		if fo.HasKey {
			act.Env[fo.KeyOffset] = st.cur
		}
	case st.isMap:
		if st.idx >= len(st.pairs) {
			delete(act.forState, forOpIdx)
			act.PC = endTarget
			return nil
		}
		p := st.pairs[st.idx]
		st.idx++
		act.Env[fo.ValueOffset] = p[1]
		if fo.HasKey {
			act.Env[fo.KeyOffset] = p[0]
		}
	default:
		if st.idx >= len(st.list) {
			delete(act.forState, forOpIdx)
			act.PC = endTarget
			return nil
		}
		elem := st.list[st.idx]
		idx := st.idx
		st.idx++
		act.Env[fo.ValueOffset] = elem
		if fo.HasKey {
			act.Env[fo.KeyOffset] = value.Int(idx + 1)
		}
	}
	return nil
}

// rangeTypesMatch checks a `for x in [a..b]` pair against spec §4.6.5:
// matching-type ints, floats, or numeric (non-UUID, non-anonymous) object
// ids. Mismatched or unsupported types raise E_TYPE.
func rangeTypesMatch(start, end value.Value) bool {
	switch s := start.(type) {
	case value.Int:
		_, ok := end.(value.Int)
		return ok
	case value.Float:
		_, ok := end.(value.Float)
		return ok
	case value.ObjID:
		e, ok := end.(value.ObjID)
		return ok && s.IsNumbered() && e.IsNumbered()
	default:
		return false
	}
}

// rangeExceeds reports whether cur already lies past end, for a range's
// first (unadvanced) visit.
func rangeExceeds(cur, end value.Value) bool {
	switch c := cur.(type) {
	case value.Int:
		return int64(c) > int64(end.(value.Int))
	case value.Float:
		return float64(c) > float64(end.(value.Float))
	case value.ObjID:
		return c.Num > end.(value.ObjID).Num
	}
	return true
}

// rangeAdvance computes a for-range loop's next value, or reports that the
// loop should stop. Integer (and numeric-objid, whose Num is itself an
// int64) ranges never wrap past math.MaxInt64: when incrementing cur would
// overflow, the loop stops instead of wrapping to MinInt64 and running away
// (spec §4.6.5 "overflow in for-range increment shifts the end downward
// instead of wrapping"; cur is left as-is and the range is simply done,
// which is equivalent to the spec's "decrement end by 1" since cur ==
// MaxInt64 already exceeds any such decremented end).
func rangeAdvance(cur, end value.Value) (value.Value, bool) {
	switch c := cur.(type) {
	case value.Int:
		if int64(c) == math.MaxInt64 {
			return c, true
		}
		next := c + 1
		return next, int64(next) > int64(end.(value.Int))
	case value.Float:
		next := c + 1
		return next, float64(next) > float64(end.(value.Float))
	case value.ObjID:
		if c.Num == math.MaxInt64 {
			return c, true
		}
		next := value.Numbered(c.Num + 1)
		return next, next.Num > end.(value.ObjID).Num
	}
	return cur, true
}

// checkScatter validates arg-count shape against a compiled scatter table;
// it never pops the list (compileScatterAssign keeps the caller's copy on
// the stack throughout, unpacking targets with explicit index bytecode).
func (vm *VM) checkScatter(act *Activation, tableIdx int) *value.Error {
	ops := act.Program.ScatterTables[tableIdx]
	lst, ok := act.peek().(value.List)
	if !ok {
		return raiseErr(value.E_TYPE)
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
	n := lst.Len()
	if restIdx == -1 && n > len(ops) {
		return raiseErr(value.E_ARGS)
	}
	if n < minRequired {
		return raiseErr(value.E_ARGS)
	}
	return nil
}

// callBuiltin dispatches a builtin call and resolves its Suspend response.
// There is no task scheduler wired in yet, so DispatchVerb is resolved
// synchronously as a nested verb call, eval()'s Carry is compiled and run
// immediately, and a bare park request (suspend/fork/read) resumes at once
// with a placeholder value — real cooperative suspension is the task
// package's job (see DESIGN.md).
func (vm *VM) callBuiltin(act *Activation, id int, args []value.Value) *value.Error {
	ctx := vm.builtinContext(act)
	res := vm.Builtins.Call(id, ctx, args)
	if res.Err != nil {
		return res.Err
	}
	if res.Suspend == nil {
		act.push(res.Value)
		return nil
	}
	s := res.Suspend
	switch {
	case s.DispatchVerb != nil:
		dv, dErr := vm.CallVerb(s.DispatchVerb.This, act.Player, act.This, s.DispatchVerb.Verb, s.DispatchVerb.Args, act.Depth)
		if res.Value != nil {
			act.push(res.Value)
			return nil
		}
		if dErr != nil {
			return dErr
		}
		act.push(dv)
	case s.Carry != nil:
		src, ok := s.Carry.(value.Str)
		if !ok {
			return raiseErr(value.E_TYPE)
		}
		v, evErr := vm.evalString(act, string(src))
		if evErr != nil {
			act.push(value.NewList([]value.Value{value.Int(0), value.Str(evErr.Message)}))
		} else {
			act.push(value.NewList([]value.Value{value.Int(1), v}))
		}
	default:
		act.push(value.Int(0))
	}
	return nil
}

func (vm *VM) builtinContext(act *Activation) builtinContext {
	return builtinContext{
		World: vm.World, Player: act.Player, This: act.This, Caller: act.Caller,
		Perms: act.Permissions, Now: vm.Now, Session: vm.Session,
	}
}

// evalString compiles and runs src as a fresh verb body against the current
// world transaction, for the eval() builtin (spec §4.8's ambient eval).
func (vm *VM) evalString(act *Activation, src string) (value.Value, *value.Error) {
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
	sub := NewActivation(act.This, act.Player, act.Caller, "eval", act.Permissions, prog)
	sub.Depth = act.Depth + 1
	vm.seedImplicitVars(sub, "eval", nil)
	return vm.runActivation(sub)
}

// callPass resolves pass()'s target: the same-named verb on the parent of
// the verb's DEFINING object, not on the runtime `this` (spec §4.6.3).
func (vm *VM) callPass(act *Activation, args []value.Value) (value.Value, *value.Error) {
	if act.Depth >= MaxCallDepth {
		return nil, raiseErr(value.E_MAXREC)
	}
	if act.verbDef == nil {
		return nil, raiseErr(value.E_VERBNF)
	}
	parent := vm.World.Parent(act.verbDefiner)
	if parent == value.Nothing {
		return nil, raiseErr(value.E_VERBNF)
	}
	def, definer, _, ok := vm.World.FindVerb(parent, act.VerbName)
	if !ok {
		return nil, raiseErr(value.E_VERBNF)
	}
	prog, ok := vm.World.VerbProgram(definer, def.UUID)
	if !ok || prog == nil {
		return nil, raiseErr(value.E_VERBNF)
	}
	sub := NewActivation(act.This, act.Player, act.Caller, act.VerbName, def.Owner, prog)
	sub.Depth = act.Depth + 1
	sub.verbDef = &def
	sub.verbDefiner = definer
	if err := vm.bindScatter(sub, prog.ParamScatter, args, prog.Code); err != nil {
		return nil, err
	}
	return vm.runActivation(sub)
}
