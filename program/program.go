package program

import "loom/value"

// VarName records one compiled variable's source name and its (offset,
// depth) slot in the activation frame's scope stack (spec §4.5.2).
type VarName struct {
	Name   string
	Offset int
	Depth  int
}

// ScatterOperand is one target of a scatter-assignment pattern: `a`, `?b`,
// `?c = default`, or `@rest`.
type ScatterKind byte

const (
	ScatterRequired ScatterKind = iota
	ScatterOptional
	ScatterOptionalWithDefault
	ScatterRest
)

type ScatterOperand struct {
	Kind         ScatterKind
	Offset       int
	Depth        int
	DefaultStart int // code offset of the default-value expression, -1 if none
}

// ForOperand describes one for-loop/comprehension's bound variables.
type ForOperand struct {
	ValueOffset, ValueDepth int
	KeyOffset, KeyDepth     int // only used by for..in map and indexed list loops
	HasKey                  bool
}

// LineEntry maps a code offset to a source line, for tracebacks.
type LineEntry struct {
	CodeOffset int
	Line       int
}

// ForkVector is the extracted bytecode body of one `fork` statement, run as
// a sibling task after the given tick delay expression is evaluated.
type ForkVector struct {
	Code  []byte
	Lines []LineEntry
}

// Program is one compiled verb/lambda body: an opcode stream plus every side
// table the VM's dispatch loop needs (spec §4.5.2).
type Program struct {
	ID int64

	Code    []byte
	Lines   []LineEntry
	Literals []value.Value
	VarNames []VarName

	ScatterTables  [][]ScatterOperand
	ForOperands    []ForOperand
	ErrorOperands  [][]value.ErrorCode // OP_TRY_EXCEPT handler code lists
	ErrorAny       []bool              // parallel to ErrorOperands: true if any clause in that try was `ANY`
	ForkVectors    []ForkVector
	Lambdas        []*Program // nested lambda sub-programs, by MAKE_LAMBDA index

	NumRegisters int // size of the flat register file backing the scope stack
	Source       []string
	FeatureFlags uint32

	// ParamScatter is the compiled parameter pattern for a verb/lambda
	// Program (nil for a fork vector, which takes no parameters). Its
	// targets' Offset/Depth name the same register file as VarNames.
	// Each ScatterOptionalWithDefault entry's DefaultStart indexes into
	// Code before BodyStart: the VM's activation setup jumps there (only
	// for an argument the caller omitted), runs the default expression
	// through its trailing OP_SET_VAR, then resumes normal dispatch at
	// BodyStart — that prologue region is never reached by ordinary PC
	// fallthrough.
	ParamScatter []ScatterOperand
	// BodyStart is the code offset where normal dispatch begins, after the
	// parameter-default prologue (0 if there is no prologue).
	BodyStart int
	// CaptureNames lists a lambda Program's free variables, in the order
	// the enclosing MAKE_LAMBDA instruction pushes their captured values;
	// CaptureNames[i] occupies register i in this Program's own table.
	CaptureNames []string
	SelfName     string // non-empty for a named `fn name(...) ... endfn` lambda
	HasSelf      bool
}

// ImplicitOffset returns the register offset the compiler reserved for one
// of a verb/eval Program's automatically-bound identifiers (player, this,
// caller, verb, args, dobj, dobjstr, prepstr, iobj, iobjstr), or false if
// this Program never declared it (a fork vector snapshot or a lambda body
// that didn't capture it). Scans front-to-back so a parameter that shadows
// an implicit name still resolves to the original reserved slot here, even
// though ordinary identifier lookups inside the body see the shadow.
func (p *Program) ImplicitOffset(name string) (int, bool) {
	for _, vn := range p.VarNames {
		if vn.Name == name {
			return vn.Offset, true
		}
	}
	return 0, false
}

// ProgramID implements value.CompiledBody, letting a value.Lambda reference
// a compiled body without the value package importing program (mirrors the
// teacher's db.Verb.BytecodeCache any anti-cycle trick).
func (p *Program) ProgramID() int64 { return p.ID }

var _ value.CompiledBody = (*Program)(nil)
