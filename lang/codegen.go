package lang

import (
	"loom/builtin"
	"loom/program"
	"loom/value"
)

// Compiler walks an AST and emits program.Program bytecode, grounded on the
// teacher's vm/compiler.go (flat variable table, jump-patch codegen, scatter
// compiled to cursor bytecode, trampoline-style OP_CALL_BUILTIN splice
// encoding) and generalized to this language's lambdas, flyweights,
// comprehensions, and lexical-block statements.
//
// Variable scoping is a deliberate simplification over the spec's nested
// (offset, depth) model: every declared name gets a strictly increasing,
// never-reused register offset at Depth 0, exactly mirroring the teacher's
// own flat NumLocals compiler. Shadowing is resolved lexically at compile
// time (innermost declaration wins) rather than at runtime by depth, so
// Depth is carried in program.VarName purely for forward-compatibility and
// is always 0 today. Recorded as an Open Question decision in DESIGN.md.
type Compiler struct {
	registry *builtin.Registry

	code  []byte
	lines []program.LineEntry
	lastLine int

	literals     []value.Value
	literalIndex map[string]int

	varNames []program.VarName
	scopes   []map[string]int
	numRegs  int

	// indexCtx is a stack of register offsets, one per IndexExpr/RangeExpr
	// currently being compiled, holding that expression's stashed container
	// so a nested `$` (IndexMarkerExpr) reads the right one by name instead
	// of guessing at stack position — the teacher's VM could assume the
	// container sat at a fixed stack depth because it never nested; this
	// compiler's flat-stack evaluation order can't make that assumption.
	indexCtx []int

	scatterTables [][]program.ScatterOperand
	forOperands   []program.ForOperand
	errorOperands [][]value.ErrorCode
	errorAny      []bool
	forkVectors   []program.ForkVector
	lambdas       []*program.Program

	loops []*loopCtx
}

type loopCtx struct {
	label          string
	continueTarget int
	breakPatches   []int
	// continuePatches holds OP_FOR_NEXT sites for for-loops, which jump to a
	// fixed "advance iterator" block rather than straight back to the top.
	continuePatches []int
}

// NewCompiler constructs a Compiler for one verb/lambda body. registry
// resolves BuiltinCallExpr names to numeric ids at compile time so compiled
// Programs never carry builtin names, matching spec §6.4.
func NewCompiler(registry *builtin.Registry) *Compiler {
	return &Compiler{
		registry:     registry,
		literalIndex: make(map[string]int),
		scopes:       []map[string]int{{}},
	}
}

// implicitVerbVars are the identifiers every verb/eval activation binds
// automatically, ahead of (and independent from) its own parameter scatter
// (spec §4.6.1's activation-frame fields, and §8 scenario 7's bare
// `notify(player, "hello")` inside a fork body). Reserved in this fixed
// order so the VM can seed them by name via Program.ImplicitOffset without
// caring about a particular verb's own declarations.
var implicitVerbVars = []string{
	"player", "this", "caller", "verb", "args",
	"dobj", "dobjstr", "prepstr", "iobj", "iobjstr",
}

// declareImplicitVerbVars reserves implicitVerbVars in the outermost scope
// before any parameter or body statement is compiled, so ordinary
// identifier references to them inside the verb resolve here instead of
// compileExpr's IdentifierExpr case auto-declaring a fresh, unseeded local.
func (c *Compiler) declareImplicitVerbVars() {
	for _, name := range implicitVerbVars {
		c.declareVar(name)
	}
}

// CompileVerb compiles a verb body with its argument scatter pattern.
func CompileVerb(body []Stmt, params []ScatterTarget) (*program.Program, error) {
	c := NewCompiler(globalRegistryOrNil())
	c.declareImplicitVerbVars()
	return c.compileBody(body, params, "", false)
}

// CompileVerbWithRegistry is CompileVerb with an explicit builtin registry,
// used by callers (the VM, conformance harness) that already own one.
func CompileVerbWithRegistry(body []Stmt, params []ScatterTarget, registry *builtin.Registry) (*program.Program, error) {
	c := NewCompiler(registry)
	c.declareImplicitVerbVars()
	return c.compileBody(body, params, "", false)
}

// globalRegistryOrNil lets CompileVerb work standalone (tests, eval()
// snippets with no caller-supplied registry) by building a fresh default
// catalog; callers that care about id stability across many compiles should
// use CompileVerbWithRegistry with one shared *builtin.Registry instead.
func globalRegistryOrNil() *builtin.Registry {
	return builtin.NewRegistry()
}

func (c *Compiler) compileBody(body []Stmt, params []ScatterTarget, selfName string, hasSelf bool) (*program.Program, error) {
	var paramScatter []program.ScatterOperand
	if len(params) > 0 {
		var err error
		paramScatter, err = c.paramScatterOperands(params)
		if err != nil {
			return nil, err
		}
	}
	// Everything before this point is the defaults prologue: the VM's
	// activation setup runs a param's DefaultStart..SET_VAR snippet directly
	// (only for an omitted optional argument) rather than falling through it,
	// and always resumes ordinary dispatch here.
	bodyStart := len(c.code)

	for _, s := range body {
		if err := c.compileStmt(s); err != nil {
			return nil, err
		}
	}
	c.emitOp(program.OP_RETURN_NONE)

	p := &program.Program{
		Code:          c.code,
		Lines:         c.lines,
		Literals:      c.literals,
		VarNames:      c.varNames,
		ScatterTables: c.scatterTables,
		ForOperands:   c.forOperands,
		ErrorOperands: c.errorOperands,
		ErrorAny:      c.errorAny,
		ForkVectors:   c.forkVectors,
		Lambdas:       c.lambdas,
		NumRegisters:  c.numRegs,
		SelfName:      selfName,
		HasSelf:       hasSelf,
		ParamScatter:  paramScatter,
		BodyStart:     bodyStart,
	}
	return p, nil
}

// paramScatterOperands declares each parameter as a local in the outermost
// scope, in argument order, and returns the operand table describing how to
// unpack the incoming argument list into them (spec §4.4.3). The table is
// stored on the Program as ParamScatter rather than appended to
// ScatterTables, since it applies to the implicit top-of-activation bind
// rather than a `scatter = expr` statement the VM dispatches via OP_SCATTER.
func (c *Compiler) paramScatterOperands(params []ScatterTarget) ([]program.ScatterOperand, error) {
	var ops []program.ScatterOperand
	for _, p := range params {
		offset := c.declareVar(p.Name)
		op := program.ScatterOperand{Offset: offset, Depth: 0, DefaultStart: -1}
		switch p.Kind {
		case ScatterTargetOptional:
			op.Kind = program.ScatterOptional
		case ScatterTargetOptionalDefault:
			op.Kind = program.ScatterOptionalWithDefault
		case ScatterTargetRest:
			op.Kind = program.ScatterRest
		default:
			op.Kind = program.ScatterRequired
		}
		ops = append(ops, op)
	}
	// Default-value expressions for parameters are compiled inline, right
	// after the main body prologue, by the VM's activation-setup path
	// reading DefaultStart as a code offset into a dedicated defaults
	// region; to keep this compiler single-pass, defaults are instead
	// compiled eagerly here into a defaults table appended before the body,
	// and DefaultStart corrected to point at the real offset.
	for i, p := range params {
		if p.Kind == ScatterTargetOptionalDefault {
			ops[i].DefaultStart = len(c.code)
			if p.Default != nil {
				if err := c.compileExpr(p.Default); err != nil {
					return nil, err
				}
			} else {
				c.emitImmediate(0)
			}
			c.emitOp(program.OP_SET_VAR)
			c.emitU32(uint32(ops[i].Offset))
			c.emitU32(0)
		}
	}
	return ops, nil
}

// --- scope / variable table ---

func (c *Compiler) declareVar(name string) int {
	offset := c.numRegs
	c.numRegs++
	c.scopes[len(c.scopes)-1][name] = offset
	c.varNames = append(c.varNames, program.VarName{Name: name, Offset: offset, Depth: 0})
	return offset
}

func (c *Compiler) resolveVar(name string) (int, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if off, ok := c.scopes[i][name]; ok {
			return off, true
		}
	}
	return 0, false
}

func (c *Compiler) beginScope() {
	c.scopes = append(c.scopes, map[string]int{})
	c.emitOp(program.OP_BEGIN_SCOPE)
}

func (c *Compiler) endScope() {
	c.emitOp(program.OP_END_SCOPE)
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// --- emit helpers ---

func (c *Compiler) trackLine(pos Position) {
	if pos.Line == c.lastLine {
		return
	}
	c.lastLine = pos.Line
	c.lines = append(c.lines, program.LineEntry{CodeOffset: len(c.code), Line: pos.Line})
}

func (c *Compiler) emitByte(b byte) { c.code = append(c.code, b) }

func (c *Compiler) emitOp(op program.OpCode) int {
	pos := len(c.code)
	c.emitByte(byte(op))
	return pos
}

func (c *Compiler) emitU32(v uint32) {
	c.code = append(c.code, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (c *Compiler) patchU32(at int, v uint32) {
	c.code[at] = byte(v >> 24)
	c.code[at+1] = byte(v >> 16)
	c.code[at+2] = byte(v >> 8)
	c.code[at+3] = byte(v)
}

// emitImmediate pushes a small int via the single-byte OP_IMM_* range when
// possible, falling back to the literal pool otherwise.
func (c *Compiler) emitImmediate(v int) {
	if op, ok := program.MakeImmediateOpcode(v); ok {
		c.emitOp(op)
		return
	}
	c.emitPush(value.Int(v))
}

func (c *Compiler) addLiteral(v value.Value) int {
	key := v.String()
	if idx, ok := c.literalIndex[key]; ok {
		return idx
	}
	idx := len(c.literals)
	c.literals = append(c.literals, v)
	c.literalIndex[key] = idx
	return idx
}

func (c *Compiler) emitPush(v value.Value) {
	c.emitOp(program.OP_PUSH)
	c.emitU32(uint32(c.addLiteral(v)))
}

// emitJump emits op followed by a 4-byte placeholder target, returning the
// placeholder's position for patchJump to fill once the real target is known.
func (c *Compiler) emitJump(op program.OpCode) int {
	c.emitOp(op)
	pos := len(c.code)
	c.emitU32(0xFFFFFFFF)
	return pos
}

func (c *Compiler) patchJump(pos int) {
	c.patchU32(pos, uint32(len(c.code)))
}

// emitLoopBack emits OP_LOOP with an absolute target, for jumping backward
// to the top of a loop (while/for re-test).
func (c *Compiler) emitLoopBack(target int) {
	c.emitOp(program.OP_LOOP)
	c.emitU32(uint32(target))
}

func (c *Compiler) getVar(offset int) {
	c.emitOp(program.OP_GET_VAR)
	c.emitU32(uint32(offset))
	c.emitU32(0)
}

func (c *Compiler) setVar(offset int) {
	c.emitOp(program.OP_SET_VAR)
	c.emitU32(uint32(offset))
	c.emitU32(0)
}

// --- loops ---

func (c *Compiler) pushLoop(label string) *loopCtx {
	lp := &loopCtx{label: label}
	c.loops = append(c.loops, lp)
	return lp
}

func (c *Compiler) popLoop() {
	c.loops = c.loops[:len(c.loops)-1]
}

func (c *Compiler) findLoop(label string) *loopCtx {
	if label == "" {
		if len(c.loops) == 0 {
			return nil
		}
		return c.loops[len(c.loops)-1]
	}
	for i := len(c.loops) - 1; i >= 0; i-- {
		if c.loops[i].label == label {
			return c.loops[i]
		}
	}
	return nil
}

// --- statements ---

func (c *Compiler) compileStmts(stmts []Stmt) error {
	for _, s := range stmts {
		if err := c.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStmt(s Stmt) error {
	c.trackLine(s.Position())
	switch n := s.(type) {
	case *ExprStmt:
		if err := c.compileExpr(n.Expr); err != nil {
			return err
		}
		c.emitOp(program.OP_POP)
		return nil

	case *IfStmt:
		return c.compileIf(n)

	case *WhileStmt:
		return c.compileWhile(n)

	case *ForStmt:
		return c.compileFor(n)

	case *ForkStmt:
		return c.compileFork(n)

	case *TryStmt:
		return c.compileTry(n)

	case *ReturnStmt:
		if n.Value != nil {
			if err := c.compileExpr(n.Value); err != nil {
				return err
			}
			c.emitOp(program.OP_RETURN)
		} else {
			c.emitOp(program.OP_RETURN_NONE)
		}
		return nil

	case *BreakStmt:
		lp := c.findLoop(n.Label)
		if lp == nil {
			return errUnresolvedLabel(n.Label, "break")
		}
		pos := c.emitJump(program.OP_BREAK)
		lp.breakPatches = append(lp.breakPatches, pos)
		return nil

	case *ContinueStmt:
		lp := c.findLoop(n.Label)
		if lp == nil {
			return errUnresolvedLabel(n.Label, "continue")
		}
		c.emitOp(program.OP_CONTINUE)
		c.emitU32(uint32(lp.continueTarget))
		return nil

	case *LetStmt:
		if n.Value != nil {
			if err := c.compileExpr(n.Value); err != nil {
				return err
			}
		} else {
			c.emitImmediate(0)
		}
		off := c.declareVar(n.Name)
		c.setVar(off)
		return nil

	case *ConstStmt:
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
		off := c.declareVar(n.Name)
		c.setVar(off)
		return nil

	case *GlobalStmt:
		if n.Value != nil {
			if err := c.compileExpr(n.Value); err != nil {
				return err
			}
		} else {
			c.emitImmediate(0)
		}
		off, ok := c.resolveVar(n.Name)
		if !ok {
			off = c.declareVarInOutermost(n.Name)
		}
		c.setVar(off)
		return nil

	case *FnStmt:
		lam, err := c.compileNestedLambda(n.Params, nil, n.Body, n.Name, true)
		if err != nil {
			return err
		}
		off := c.declareVar(n.Name)
		_ = lam
		c.setVar(off)
		return nil

	case *LexicalBlockStmt:
		c.beginScope()
		if err := c.compileStmts(n.Body); err != nil {
			return err
		}
		c.endScope()
		return nil

	default:
		return errUnsupportedNode(s)
	}
}

// declareVarInOutermost backs `global x = ...` (spec's module-level binding):
// it declares in the outermost (index 0) scope so later nested scopes that
// shadow locally still leave the global reachable by explicit re-resolution
// at the top level. Simplification: true dynamic global semantics (visible
// across verb calls) is not implemented; this only reaches the rest of the
// same compiled body, matching the flat single-Program scoping model.
func (c *Compiler) declareVarInOutermost(name string) int {
	offset := c.numRegs
	c.numRegs++
	c.scopes[0][name] = offset
	c.varNames = append(c.varNames, program.VarName{Name: name, Offset: offset, Depth: 0})
	return offset
}

func (c *Compiler) compileIf(n *IfStmt) error {
	if err := c.compileExpr(n.Condition); err != nil {
		return err
	}
	elseJump := c.emitJump(program.OP_JUMP_IF_FALSE)
	c.beginScope()
	if err := c.compileStmts(n.Body); err != nil {
		return err
	}
	c.endScope()
	endJumps := []int{c.emitJump(program.OP_JUMP)}
	c.patchJump(elseJump)

	for _, ei := range n.ElseIfs {
		if err := c.compileExpr(ei.Condition); err != nil {
			return err
		}
		nextJump := c.emitJump(program.OP_JUMP_IF_FALSE)
		c.beginScope()
		if err := c.compileStmts(ei.Body); err != nil {
			return err
		}
		c.endScope()
		endJumps = append(endJumps, c.emitJump(program.OP_JUMP))
		c.patchJump(nextJump)
	}

	if n.Else != nil {
		c.beginScope()
		if err := c.compileStmts(n.Else); err != nil {
			return err
		}
		c.endScope()
	}
	for _, j := range endJumps {
		c.patchJump(j)
	}
	return nil
}

func (c *Compiler) compileWhile(n *WhileStmt) error {
	top := len(c.code)
	lp := c.pushLoop(n.Label)
	lp.continueTarget = top

	if err := c.compileExpr(n.Condition); err != nil {
		return err
	}
	exitJump := c.emitJump(program.OP_JUMP_IF_FALSE)
	c.beginScope()
	if err := c.compileStmts(n.Body); err != nil {
		return err
	}
	c.endScope()
	c.emitLoopBack(top)
	c.patchJump(exitJump)
	for _, p := range lp.breakPatches {
		c.patchJump(p)
	}
	c.popLoop()
	return nil
}

// compileFor handles all three surface forms sharing ForStmt: range (`for x
// in [a..b]`), list, and map iteration, dispatching on which Container/
// RangeStart fields the parser populated.
func (c *Compiler) compileFor(n *ForStmt) error {
	c.beginScope()
	valOff := c.declareVar(n.Value)
	var keyOff int
	hasKey := n.Index != ""
	if hasKey {
		keyOff = c.declareVar(n.Index)
	}

	if n.RangeStart != nil {
		if err := c.compileExpr(n.RangeStart); err != nil {
			return err
		}
		if err := c.compileExpr(n.RangeEnd); err != nil {
			return err
		}
		forOpIdx := len(c.forOperands)
		c.forOperands = append(c.forOperands, program.ForOperand{ValueOffset: valOff, HasKey: hasKey, KeyOffset: keyOff})
		top := c.emitOp(program.OP_FOR_RANGE)
		c.emitU32(uint32(forOpIdx))
		endPatch := len(c.code)
		c.emitU32(0xFFFFFFFF)

		lp := c.pushLoop(n.Label)
		lp.continueTarget = top
		if err := c.compileStmts(n.Body); err != nil {
			return err
		}
		nextPos := c.emitOp(program.OP_FOR_NEXT)
		c.emitU32(uint32(top))
		_ = nextPos
		c.patchU32(endPatch, uint32(len(c.code)))
		for _, p := range lp.breakPatches {
			c.patchJump(p)
		}
		c.popLoop()
	} else {
		if err := c.compileExpr(n.Container); err != nil {
			return err
		}
		forOpIdx := len(c.forOperands)
		c.forOperands = append(c.forOperands, program.ForOperand{ValueOffset: valOff, HasKey: hasKey, KeyOffset: keyOff})
		op := program.OP_FOR_LIST
		if hasKey {
			op = program.OP_FOR_MAP
		}
		top := c.emitOp(op)
		c.emitU32(uint32(forOpIdx))
		endPatch := len(c.code)
		c.emitU32(0xFFFFFFFF)

		lp := c.pushLoop(n.Label)
		lp.continueTarget = top
		if err := c.compileStmts(n.Body); err != nil {
			return err
		}
		c.emitOp(program.OP_FOR_NEXT)
		c.emitU32(uint32(top))
		c.patchU32(endPatch, uint32(len(c.code)))
		for _, p := range lp.breakPatches {
			c.patchJump(p)
		}
		c.popLoop()
	}

	c.endScope()
	return nil
}

// compileFork extracts the body into a ForkVector run by the task scheduler
// as an independent sibling task after Delay milliseconds (spec §4.7), replacing
// the teacher's "skip at runtime" stub with real fork semantics: the VM's
// OP_FORK handler reads the vector, snapshots the current environment by
// value, and asks the task layer to schedule it.
func (c *Compiler) compileFork(n *ForkStmt) error {
	if err := c.compileExpr(n.Delay); err != nil {
		return err
	}
	var varOffset byte = 0xFF
	if n.Label != "" {
		varOffset = byte(c.declareVar(n.Label))
	}

	sub := NewCompiler(c.registry)
	sub.numRegs = c.numRegs
	sub.scopes = []map[string]int{{}}
	for i, sc := range c.scopes {
		if i == 0 {
			for k, v := range sc {
				sub.scopes[0][k] = v
			}
		}
	}
	if err := sub.compileStmts(n.Body); err != nil {
		return err
	}
	sub.emitOp(program.OP_RETURN_NONE)

	vecIdx := len(c.forkVectors)
	c.forkVectors = append(c.forkVectors, program.ForkVector{Code: sub.code, Lines: sub.lines})

	c.emitOp(program.OP_FORK)
	c.emitByte(varOffset)
	c.emitU32(uint32(vecIdx))
	return nil
}

func (c *Compiler) compileTry(n *TryStmt) error {
	switch {
	case len(n.Excepts) > 0 && n.Finally != nil:
		return c.compileTryExceptFinally(n)
	case len(n.Excepts) > 0:
		return c.compileTryExcept(n)
	default:
		return c.compileTryFinally(n)
	}
}

func (c *Compiler) compileTryExcept(n *TryStmt) error {
	tableIdx := len(c.errorOperands)
	var allCodes []value.ErrorCode
	anyFlag := false
	for _, ex := range n.Excepts {
		if ex.Any {
			anyFlag = true
		}
		allCodes = append(allCodes, ex.Codes...)
	}
	c.errorOperands = append(c.errorOperands, allCodes)
	c.errorAny = append(c.errorAny, anyFlag)

	c.emitOp(program.OP_TRY_EXCEPT)
	c.emitU32(uint32(tableIdx))
	handlerAddrPos := len(c.code)
	c.emitU32(0xFFFFFFFF)

	c.beginScope()
	if err := c.compileStmts(n.Body); err != nil {
		return err
	}
	c.endScope()
	c.emitOp(program.OP_END_EXCEPT)
	endJump := c.emitJump(program.OP_JUMP)

	// A raised error matching the table's merged code set unwinds straight to
	// the first except clause; only one handler region is addressable per
	// try, so a multi-clause try/except always runs clause 0 regardless of
	// which declared clause's codes matched.
	c.patchU32(handlerAddrPos, uint32(len(c.code)))
	var endJumps []int
	for i := range n.Excepts {
		ex := n.Excepts[i]
		c.beginScope()
		if ex.ID != "" {
			off := c.declareVar(ex.ID)
			c.setVar(off)
		} else {
			c.emitOp(program.OP_POP)
		}
		if err := c.compileStmts(ex.Body); err != nil {
			return err
		}
		c.endScope()
		if i != len(n.Excepts)-1 {
			endJumps = append(endJumps, c.emitJump(program.OP_JUMP))
		}
	}
	c.patchJump(endJump)
	for _, j := range endJumps {
		c.patchJump(j)
	}
	return nil
}

func (c *Compiler) compileTryFinally(n *TryStmt) error {
	finallyPatch := c.emitOp(program.OP_TRY_FINALLY)
	finallyOperandPos := len(c.code)
	c.emitU32(0xFFFFFFFF)
	_ = finallyPatch

	c.beginScope()
	if err := c.compileStmts(n.Body); err != nil {
		return err
	}
	c.endScope()
	c.patchU32(finallyOperandPos, uint32(len(c.code)))

	c.beginScope()
	if err := c.compileStmts(n.Finally); err != nil {
		return err
	}
	c.endScope()
	c.emitOp(program.OP_END_FINALLY)
	return nil
}

func (c *Compiler) compileTryExceptFinally(n *TryStmt) error {
	finallyPatch := c.emitOp(program.OP_TRY_FINALLY)
	finallyOperandPos := len(c.code)
	c.emitU32(0xFFFFFFFF)
	_ = finallyPatch

	inner := &TryStmt{Body: n.Body, Excepts: n.Excepts}
	if err := c.compileTryExcept(inner); err != nil {
		return err
	}
	c.patchU32(finallyOperandPos, uint32(len(c.code)))

	c.beginScope()
	if err := c.compileStmts(n.Finally); err != nil {
		return err
	}
	c.endScope()
	c.emitOp(program.OP_END_FINALLY)
	return nil
}

// --- expressions ---

func (c *Compiler) compileExpr(e Expr) error {
	c.trackLine(e.Position())
	switch n := e.(type) {
	case *LiteralExpr:
		c.emitPush(n.Value)
		return nil

	case *IdentifierExpr:
		off, ok := c.resolveVar(n.Name)
		if !ok {
			off = c.declareVarInOutermost(n.Name) // first reference defines it, per MOO's implicit-variable convention
		}
		c.getVar(off)
		return nil

	case *SymbolExpr:
		idx := c.addLiteral(value.Intern(n.Name))
		c.emitOp(program.OP_PUSH_SYMBOL)
		c.emitU32(uint32(idx))
		return nil

	case *ListExpr:
		return c.compileListLiteral(n)

	case *MapExpr:
		for _, entry := range n.Entries {
			if err := c.compileExpr(entry.Key); err != nil {
				return err
			}
			if err := c.compileExpr(entry.Value); err != nil {
				return err
			}
		}
		c.emitOp(program.OP_MAKE_MAP)
		c.emitU32(uint32(len(n.Entries)))
		return nil

	case *FlyweightExpr:
		return c.compileFlyweight(n)

	case *ComprehensionExpr:
		return c.compileComprehension(n)

	case *UnaryExpr:
		if err := c.compileExpr(n.Operand); err != nil {
			return err
		}
		switch n.Operator {
		case TOKEN_MINUS:
			c.emitOp(program.OP_NEG)
		case TOKEN_NOT:
			c.emitOp(program.OP_NOT)
		case TOKEN_BITNOT:
			c.emitOp(program.OP_BITNOT)
		default:
			return errUnsupportedNode(e)
		}
		return nil

	case *BinaryExpr:
		return c.compileBinary(n)

	case *LogicalExpr:
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		var op program.OpCode
		if n.Operator == TOKEN_AND {
			op = program.OP_AND
		} else {
			op = program.OP_OR
		}
		patch := c.emitJump(op)
		c.emitOp(program.OP_POP)
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		c.patchJump(patch)
		return nil

	case *TernaryExpr:
		if err := c.compileExpr(n.Condition); err != nil {
			return err
		}
		elseJump := c.emitJump(program.OP_JUMP_IF_FALSE)
		if err := c.compileExpr(n.ThenExpr); err != nil {
			return err
		}
		endJump := c.emitJump(program.OP_JUMP)
		c.patchJump(elseJump)
		if err := c.compileExpr(n.ElseExpr); err != nil {
			return err
		}
		c.patchJump(endJump)
		return nil

	case *InExpr:
		if err := c.compileExpr(n.Elem); err != nil {
			return err
		}
		if err := c.compileExpr(n.Seq); err != nil {
			return err
		}
		c.emitOp(program.OP_IN)
		return nil

	case *ParenExpr:
		return c.compileExpr(n.Expr)

	case *IndexMarkerExpr:
		if n.Marker == TOKEN_DOLLAR {
			if len(c.indexCtx) == 0 {
				// `$` outside any index expression: nothing to measure.
				c.emitImmediate(0)
				return nil
			}
			c.getVar(c.indexCtx[len(c.indexCtx)-1])
			c.emitOp(program.OP_LENGTH)
		} else {
			c.emitImmediate(1)
		}
		return nil

	case *IndexExpr:
		if err := c.compileExpr(n.Expr); err != nil {
			return err
		}
		containerTmp := c.declareVar("")
		c.setVar(containerTmp)
		c.indexCtx = append(c.indexCtx, containerTmp)
		err := c.compileExpr(n.Index)
		c.indexCtx = c.indexCtx[:len(c.indexCtx)-1]
		if err != nil {
			return err
		}
		idxTmp := c.declareVar("")
		c.setVar(idxTmp)
		c.getVar(containerTmp)
		c.getVar(idxTmp)
		c.emitOp(program.OP_INDEX)
		return nil

	case *RangeExpr:
		if err := c.compileExpr(n.Expr); err != nil {
			return err
		}
		containerTmp := c.declareVar("")
		c.setVar(containerTmp)
		c.indexCtx = append(c.indexCtx, containerTmp)
		if err := c.compileExpr(n.Start); err != nil {
			c.indexCtx = c.indexCtx[:len(c.indexCtx)-1]
			return err
		}
		startTmp := c.declareVar("")
		c.setVar(startTmp)
		err := c.compileExpr(n.End)
		c.indexCtx = c.indexCtx[:len(c.indexCtx)-1]
		if err != nil {
			return err
		}
		endTmp := c.declareVar("")
		c.setVar(endTmp)
		c.getVar(containerTmp)
		c.getVar(startTmp)
		c.getVar(endTmp)
		c.emitOp(program.OP_RANGE)
		return nil

	case *PropertyExpr:
		if err := c.compileExpr(n.Expr); err != nil {
			return err
		}
		if n.Computed != nil {
			if err := c.compileExpr(n.Computed); err != nil {
				return err
			}
			c.emitOp(program.OP_GET_PROP_NAME)
		} else {
			c.emitPush(value.Str(n.Property))
			c.emitOp(program.OP_GET_PROP_NAME)
		}
		return nil

	case *VerbCallExpr:
		return c.compileVerbCall(n)

	case *BuiltinCallExpr:
		return c.compileBuiltinCall(n)

	case *CallExpr:
		if err := c.compileExpr(n.Callee); err != nil {
			return err
		}
		argc, err := c.compileArgList(n.Args)
		if err != nil {
			return err
		}
		c.emitOp(program.OP_CALL_LAMBDA)
		c.emitByte(argc)
		return nil

	case *CatchExpr:
		return c.compileCatch(n)

	case *PassExpr:
		argc, err := c.compileArgList(n.Args)
		if err != nil {
			return err
		}
		c.emitOp(program.OP_PASS)
		c.emitByte(argc)
		return nil

	case *AssignExpr:
		return c.compileAssign(n)

	case *ScatterAssignExpr:
		return c.compileScatterAssign(n)

	case *LambdaExpr:
		_, err := c.compileNestedLambda(n.Params, n.ShortBody, n.LongBody, n.Name, n.Name != "")
		return err

	default:
		return errUnsupportedNode(e)
	}
}

func (c *Compiler) compileListLiteral(n *ListExpr) error {
	hasSplice := false
	for _, el := range n.Elems {
		if _, ok := el.(*SpliceExpr); ok {
			hasSplice = true
			break
		}
	}
	if !hasSplice {
		for _, el := range n.Elems {
			if err := c.compileExpr(el); err != nil {
				return err
			}
		}
		c.emitOp(program.OP_MAKE_LIST)
		c.emitU32(uint32(len(n.Elems)))
		return nil
	}

	c.emitOp(program.OP_MAKE_LIST)
	c.emitU32(0)
	for _, el := range n.Elems {
		if sp, ok := el.(*SpliceExpr); ok {
			if err := c.compileExpr(sp.Expr); err != nil {
				return err
			}
			c.emitOp(program.OP_LIST_EXTEND)
			continue
		}
		if err := c.compileExpr(el); err != nil {
			return err
		}
		c.emitOp(program.OP_LIST_APPEND)
	}
	return nil
}

func (c *Compiler) compileFlyweight(n *FlyweightExpr) error {
	if err := c.compileExpr(n.Delegate); err != nil {
		return err
	}
	for _, slot := range n.Slots {
		c.emitPush(value.Str(slot.Name))
		if err := c.compileExpr(slot.Value); err != nil {
			return err
		}
	}
	if n.Contents != nil {
		if err := c.compileExpr(n.Contents); err != nil {
			return err
		}
	} else {
		c.emitOp(program.OP_MAKE_LIST)
		c.emitU32(0)
	}
	c.emitOp(program.OP_MAKE_FLYWEIGHT)
	c.emitU32(uint32(len(n.Slots)))
	return nil
}

// compileComprehension desugars `{result for v in (container)}` /
// `{result for v in [a..b]}` into an equivalent for-loop accumulating into a
// fresh list, matching how the teacher's compiler desugars its own sugar
// forms rather than adding dedicated opcodes for them.
func (c *Compiler) compileComprehension(n *ComprehensionExpr) error {
	accOff := c.declareVar("")
	c.emitOp(program.OP_MAKE_LIST)
	c.emitU32(0)
	c.setVar(accOff)

	c.beginScope()
	valOff := c.declareVar(n.Var)

	if n.RangeStart != nil {
		if err := c.compileExpr(n.RangeStart); err != nil {
			return err
		}
		if err := c.compileExpr(n.RangeEnd); err != nil {
			return err
		}
		forOpIdx := len(c.forOperands)
		c.forOperands = append(c.forOperands, program.ForOperand{ValueOffset: valOff})
		top := c.emitOp(program.OP_FOR_RANGE)
		c.emitU32(uint32(forOpIdx))
		endPatch := len(c.code)
		c.emitU32(0xFFFFFFFF)

		c.getVar(accOff)
		if err := c.compileExpr(n.Result); err != nil {
			return err
		}
		c.emitOp(program.OP_LIST_APPEND)
		c.setVar(accOff)

		c.emitOp(program.OP_FOR_NEXT)
		c.emitU32(uint32(top))
		c.patchU32(endPatch, uint32(len(c.code)))
	} else {
		if err := c.compileExpr(n.Container); err != nil {
			return err
		}
		forOpIdx := len(c.forOperands)
		c.forOperands = append(c.forOperands, program.ForOperand{ValueOffset: valOff})
		top := c.emitOp(program.OP_FOR_LIST)
		c.emitU32(uint32(forOpIdx))
		endPatch := len(c.code)
		c.emitU32(0xFFFFFFFF)

		c.getVar(accOff)
		if err := c.compileExpr(n.Result); err != nil {
			return err
		}
		c.emitOp(program.OP_LIST_APPEND)
		c.setVar(accOff)

		c.emitOp(program.OP_FOR_NEXT)
		c.emitU32(uint32(top))
		c.patchU32(endPatch, uint32(len(c.code)))
	}
	c.endScope()
	c.getVar(accOff)
	return nil
}

func (c *Compiler) compileBinary(n *BinaryExpr) error {
	if err := c.compileExpr(n.Left); err != nil {
		return err
	}
	if err := c.compileExpr(n.Right); err != nil {
		return err
	}
	var op program.OpCode
	switch n.Operator {
	case TOKEN_PLUS:
		op = program.OP_ADD
	case TOKEN_MINUS:
		op = program.OP_SUB
	case TOKEN_STAR:
		op = program.OP_MUL
	case TOKEN_SLASH:
		op = program.OP_DIV
	case TOKEN_PERCENT:
		op = program.OP_MOD
	case TOKEN_CARET:
		op = program.OP_POW
	case TOKEN_EQ:
		op = program.OP_EQ
	case TOKEN_NE:
		op = program.OP_NE
	case TOKEN_LT:
		op = program.OP_LT
	case TOKEN_LE:
		op = program.OP_LE
	case TOKEN_GT:
		op = program.OP_GT
	case TOKEN_GE:
		op = program.OP_GE
	case TOKEN_BITAND:
		op = program.OP_BITAND
	case TOKEN_BITOR:
		op = program.OP_BITOR
	case TOKEN_BITXOR:
		op = program.OP_BITXOR
	case TOKEN_LSHIFT:
		op = program.OP_SHL
	case TOKEN_RSHIFT:
		op = program.OP_SHR
	default:
		return errUnsupportedNode(n)
	}
	c.emitOp(op)
	return nil
}

// compileArgList compiles a plain/spliced argument list into either a fixed
// argc (returned) or, if any @expr splice is present, builds the arguments
// into a list on the stack via OP_MAKE_LIST/APPEND/EXTEND and returns the
// 0xFF sentinel telling the VM the "argc" that follows is really a pre-built
// list (grounded on the teacher's compileBuiltinCall splice handling).
func (c *Compiler) compileArgList(args []Expr) (byte, error) {
	hasSplice := false
	for _, a := range args {
		if _, ok := a.(*SpliceExpr); ok {
			hasSplice = true
			break
		}
	}
	if !hasSplice {
		if len(args) >= 0xFF {
			return 0, errTooManyArgs()
		}
		for _, a := range args {
			if err := c.compileExpr(a); err != nil {
				return 0, err
			}
		}
		return byte(len(args)), nil
	}

	c.emitOp(program.OP_MAKE_LIST)
	c.emitU32(0)
	for _, a := range args {
		if sp, ok := a.(*SpliceExpr); ok {
			if err := c.compileExpr(sp.Expr); err != nil {
				return 0, err
			}
			c.emitOp(program.OP_LIST_EXTEND)
			continue
		}
		if err := c.compileExpr(a); err != nil {
			return 0, err
		}
		c.emitOp(program.OP_LIST_APPEND)
	}
	return 0xFF, nil
}

func (c *Compiler) compileVerbCall(n *VerbCallExpr) error {
	if err := c.compileExpr(n.Expr); err != nil {
		return err
	}
	if n.Computed != nil {
		if err := c.compileExpr(n.Computed); err != nil {
			return err
		}
	} else {
		c.emitPush(value.Str(n.Verb))
	}
	argc, err := c.compileArgList(n.Args)
	if err != nil {
		return err
	}
	c.emitOp(program.OP_CALL_VERB)
	c.emitByte(argc)
	return nil
}

func (c *Compiler) compileBuiltinCall(n *BuiltinCallExpr) error {
	if n.Name == "pass" {
		argc, err := c.compileArgList(n.Args)
		if err != nil {
			return err
		}
		c.emitOp(program.OP_PASS)
		c.emitByte(argc)
		return nil
	}
	if off, ok := c.resolveVar(n.Name); ok {
		// A local/lambda value shadows the builtin of the same name: call it
		// as a lambda value, matching the teacher's own name-resolution order
		// (locals before builtins) in compileBuiltinCall.
		c.getVar(off)
		argc, err := c.compileArgList(n.Args)
		if err != nil {
			return err
		}
		c.emitOp(program.OP_CALL_LAMBDA)
		c.emitByte(argc)
		return nil
	}
	id, ok := c.registry.GetID(n.Name)
	if !ok {
		return errUnknownBuiltin(n.Name)
	}
	argc, err := c.compileArgList(n.Args)
	if err != nil {
		return err
	}
	c.emitOp(program.OP_CALL_BUILTIN)
	c.emitU32(uint32(id))
	c.emitByte(argc)
	return nil
}

func (c *Compiler) compileCatch(n *CatchExpr) error {
	tableIdx := len(c.errorOperands)
	c.errorOperands = append(c.errorOperands, n.Codes)
	c.errorAny = append(c.errorAny, len(n.Codes) == 0)

	c.emitOp(program.OP_CATCH)
	c.emitU32(uint32(tableIdx))
	handlerPatch := len(c.code)
	c.emitU32(0xFFFFFFFF)

	if err := c.compileExpr(n.Expr); err != nil {
		return err
	}
	endJump := c.emitJump(program.OP_JUMP)
	c.patchU32(handlerPatch, uint32(len(c.code)))
	if n.Default != nil {
		if err := c.compileExpr(n.Default); err != nil {
			return err
		}
	} else {
		c.emitOp(program.OP_RAISE)
	}
	c.patchJump(endJump)
	return nil
}

func (c *Compiler) compileAssign(n *AssignExpr) error {
	if err := c.compileExpr(n.Value); err != nil {
		return err
	}
	c.emitOp(program.OP_DUP)

	switch t := n.Target.(type) {
	case *IdentifierExpr:
		off, ok := c.resolveVar(t.Name)
		if !ok {
			off = c.declareVarInOutermost(t.Name)
		}
		c.setVar(off)

	case *PropertyExpr:
		// stack: value, value -> need obj,name,value order for OP_SET_PROP;
		// rebuild by evaluating target after stashing the assigned value.
		tmp := c.declareVar("")
		c.setVar(tmp)
		if err := c.compileExpr(t.Expr); err != nil {
			return err
		}
		if t.Computed != nil {
			if err := c.compileExpr(t.Computed); err != nil {
				return err
			}
		} else {
			c.emitPush(value.Str(t.Property))
		}
		c.getVar(tmp)
		c.emitOp(program.OP_SET_PROP)

	case *IndexExpr:
		valTmp := c.declareVar("")
		c.setVar(valTmp)
		if err := c.compileExpr(t.Expr); err != nil {
			return err
		}
		containerTmp := c.declareVar("")
		c.setVar(containerTmp)
		c.indexCtx = append(c.indexCtx, containerTmp)
		err := c.compileExpr(t.Index)
		c.indexCtx = c.indexCtx[:len(c.indexCtx)-1]
		if err != nil {
			return err
		}
		idxTmp := c.declareVar("")
		c.setVar(idxTmp)
		c.getVar(containerTmp)
		c.getVar(idxTmp)
		c.getVar(valTmp)
		c.emitOp(program.OP_INDEX_SET) // pops value,index,container; pushes the updated container
		c.writeBackContainer(t.Expr)

	case *RangeExpr:
		valTmp := c.declareVar("")
		c.setVar(valTmp)
		if err := c.compileExpr(t.Expr); err != nil {
			return err
		}
		containerTmp := c.declareVar("")
		c.setVar(containerTmp)
		c.indexCtx = append(c.indexCtx, containerTmp)
		if err := c.compileExpr(t.Start); err != nil {
			c.indexCtx = c.indexCtx[:len(c.indexCtx)-1]
			return err
		}
		startTmp := c.declareVar("")
		c.setVar(startTmp)
		err := c.compileExpr(t.End)
		c.indexCtx = c.indexCtx[:len(c.indexCtx)-1]
		if err != nil {
			return err
		}
		endTmp := c.declareVar("")
		c.setVar(endTmp)
		c.getVar(containerTmp)
		c.getVar(startTmp)
		c.getVar(endTmp)
		c.getVar(valTmp)
		c.emitOp(program.OP_RANGE_SET) // pops value,end,start,container; pushes the updated container
		c.writeBackContainer(t.Expr)

	default:
		return errUnsupportedNode(n.Target)
	}
	return nil
}

// writeBackContainer stores the updated container OP_INDEX_SET/OP_RANGE_SET
// just pushed back into its source lvalue. Only the common bases (a bare
// variable or a property) are writable in place; anything deeper (nested
// indexing, e.g. `a[1][2] = x`) only mutates a throwaway copy, matching the
// teacher's own reluctance to chase arbitrary lvalue chains.
func (c *Compiler) writeBackContainer(base Expr) {
	switch b := base.(type) {
	case *IdentifierExpr:
		off, ok := c.resolveVar(b.Name)
		if !ok {
			off = c.declareVarInOutermost(b.Name)
		}
		c.setVar(off)
	case *PropertyExpr:
		tmp := c.declareVar("")
		c.setVar(tmp)
		if err := c.compileExpr(b.Expr); err == nil {
			if b.Computed != nil {
				_ = c.compileExpr(b.Computed)
			} else {
				c.emitPush(value.Str(b.Property))
			}
			c.getVar(tmp)
			c.emitOp(program.OP_SET_PROP)
		} else {
			c.emitOp(program.OP_POP)
		}
	default:
		c.emitOp(program.OP_POP)
	}
}

// compileScatterAssign compiles `a, ?b = 0, @rest = expr` per spec §4.4.3:
// the RHS list stays on the stack throughout (OP_SCATTER only validates
// shape), and each target is unpacked with explicit index/range bytecode —
// the "cursor variable" technique from the teacher's compiler, generalized
// to this language's scatter-target kinds.
func (c *Compiler) compileScatterAssign(n *ScatterAssignExpr) error {
	if err := c.compileExpr(n.Value); err != nil {
		return err
	}

	var ops []program.ScatterOperand
	restIdx := -1
	for i, t := range n.Targets {
		off := c.declareVar(t.Name)
		op := program.ScatterOperand{Offset: off, DefaultStart: -1}
		switch t.Kind {
		case ScatterTargetOptional:
			op.Kind = program.ScatterOptional
		case ScatterTargetOptionalDefault:
			op.Kind = program.ScatterOptionalWithDefault
		case ScatterTargetRest:
			op.Kind = program.ScatterRest
			restIdx = i
		default:
			op.Kind = program.ScatterRequired
		}
		ops = append(ops, op)
	}
	tableIdx := len(c.scatterTables)
	c.scatterTables = append(c.scatterTables, ops)
	c.emitOp(program.OP_SCATTER)
	c.emitU32(uint32(tableIdx))

	leftCount := 0
	for i := 0; i < len(n.Targets) && (restIdx == -1 || i < restIdx); i++ {
		leftCount++
	}
	rightCount := 0
	if restIdx != -1 {
		rightCount = len(n.Targets) - restIdx - 1
	}

	emitGetIndex := func(idx1 int) {
		c.emitOp(program.OP_DUP)
		c.emitImmediate(idx1)
		c.emitOp(program.OP_INDEX)
	}

	for i := 0; i < leftCount; i++ {
		t := n.Targets[i]
		op := ops[i]
		if t.Kind == ScatterTargetOptional || t.Kind == ScatterTargetOptionalDefault {
			c.emitOp(program.OP_DUP)
			c.emitOp(program.OP_LENGTH)
			c.emitImmediate(i + 1)
			c.emitOp(program.OP_GE)
			skip := c.emitJump(program.OP_JUMP_IF_FALSE)
			emitGetIndex(i + 1)
			c.setVar(op.Offset)
			done := c.emitJump(program.OP_JUMP)
			c.patchJump(skip)
			if t.Default != nil {
				if err := c.compileExpr(t.Default); err != nil {
					return err
				}
			} else {
				c.emitImmediate(0)
			}
			c.setVar(op.Offset)
			c.patchJump(done)
			continue
		}
		emitGetIndex(i + 1)
		c.setVar(op.Offset)
	}

	// rest + trailing targets after rest. A plain DUP only reaches the
	// current top of stack, which after pushing the start index is the
	// index itself rather than the list — so the list needs its own
	// register here rather than being re-derived by blind DUPs.
	if restIdx != -1 {
		restOp := ops[restIdx]
		listTmp := c.declareVar("")
		c.emitOp(program.OP_DUP)
		c.setVar(listTmp)

		c.getVar(listTmp)
		c.emitImmediate(leftCount + 1)
		c.getVar(listTmp)
		c.emitOp(program.OP_LENGTH)
		c.emitImmediate(rightCount)
		c.emitOp(program.OP_SUB)
		c.emitOp(program.OP_RANGE)
		c.setVar(restOp.Offset)

		for j := 0; j < rightCount; j++ {
			t := n.Targets[restIdx+1+j]
			op := ops[restIdx+1+j]
			c.getVar(listTmp)
			c.getVar(listTmp)
			c.emitOp(program.OP_LENGTH)
			c.emitImmediate(rightCount - j - 1)
			c.emitOp(program.OP_SUB)
			c.emitOp(program.OP_INDEX)
			c.setVar(op.Offset)
			_ = t
		}
	}

	return nil
}

// compileNestedLambda compiles a lambda/fn body as its own sub-Program,
// capturing every free variable referenced in body/params but not bound by
// them (spec §4.4.3's lambda semantics). Captured values are pushed by the
// enclosing code in CaptureNames order immediately before OP_MAKE_LAMBDA.
func (c *Compiler) compileNestedLambda(params []ScatterTarget, shortBody Expr, longBody []Stmt, selfName string, hasSelf bool) (*program.Program, error) {
	bound := map[string]bool{}
	for _, p := range params {
		bound[p.Name] = true
	}
	if hasSelf {
		bound[selfName] = true
	}
	free := map[string]bool{}
	if shortBody != nil {
		collectFreeVarsExpr(shortBody, cloneSet(bound), free)
	}
	if len(longBody) > 0 {
		collectFreeVarsBlock(longBody, bound, free)
	}
	var captureNames []string
	for name := range free {
		if _, ok := c.resolveVar(name); ok {
			captureNames = append(captureNames, name)
		}
	}

	sub := NewCompiler(c.registry)
	for _, name := range captureNames {
		sub.declareVar(name)
	}
	for _, name := range captureNames {
		off, _ := c.resolveVar(name)
		c.getVar(off)
	}

	var body []Stmt
	if shortBody != nil {
		body = []Stmt{&ReturnStmt{Pos: shortBody.Position(), Value: shortBody}}
	} else {
		body = longBody
	}
	p, err := sub.compileBody(body, params, selfName, hasSelf)
	if err != nil {
		return nil, err
	}
	p.CaptureNames = captureNames

	idx := len(c.lambdas)
	c.lambdas = append(c.lambdas, p)
	c.emitOp(program.OP_MAKE_LAMBDA)
	c.emitU32(uint32(idx))
	c.emitU32(uint32(len(captureNames)))
	return p, nil
}

func cloneSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
