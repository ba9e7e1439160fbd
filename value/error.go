package value

// ErrorCode is the closed, numbered enumeration of runtime error kinds (spec §6.3).
type ErrorCode int

const (
	E_NONE ErrorCode = iota
	E_TYPE
	E_DIV
	E_PERM
	E_PROPNF
	E_VERBNF
	E_VARNF
	E_INVIND
	E_RECMOVE
	E_MAXREC
	E_RANGE
	E_ARGS
	E_NACC
	E_INVARG
	E_QUOTA
	E_FLOAT
)

func (e ErrorCode) String() string {
	switch e {
	case E_NONE:
		return "E_NONE"
	case E_TYPE:
		return "E_TYPE"
	case E_DIV:
		return "E_DIV"
	case E_PERM:
		return "E_PERM"
	case E_PROPNF:
		return "E_PROPNF"
	case E_VERBNF:
		return "E_VERBNF"
	case E_VARNF:
		return "E_VARNF"
	case E_INVIND:
		return "E_INVIND"
	case E_RECMOVE:
		return "E_RECMOVE"
	case E_MAXREC:
		return "E_MAXREC"
	case E_RANGE:
		return "E_RANGE"
	case E_ARGS:
		return "E_ARGS"
	case E_NACC:
		return "E_NACC"
	case E_INVARG:
		return "E_INVARG"
	case E_QUOTA:
		return "E_QUOTA"
	case E_FLOAT:
		return "E_FLOAT"
	default:
		return "E_UNKNOWN"
	}
}

// Message returns the default human-readable message for an error kind.
func (e ErrorCode) Message() string {
	switch e {
	case E_NONE:
		return "No error"
	case E_TYPE:
		return "Type mismatch"
	case E_DIV:
		return "Division by zero"
	case E_PERM:
		return "Permission denied"
	case E_PROPNF:
		return "Property not found"
	case E_VERBNF:
		return "Verb not found"
	case E_VARNF:
		return "Variable not found"
	case E_INVIND:
		return "Invalid indirection"
	case E_RECMOVE:
		return "Recursive move"
	case E_MAXREC:
		return "Too many verb calls"
	case E_RANGE:
		return "Range error"
	case E_ARGS:
		return "Incorrect number of arguments"
	case E_NACC:
		return "Move refused by destination"
	case E_INVARG:
		return "Invalid argument"
	case E_QUOTA:
		return "Resource limit exceeded"
	case E_FLOAT:
		return "Floating-point arithmetic error"
	default:
		return "Unknown error"
	}
}

// ErrorFromName parses a surface-syntax identifier like "E_PERM".
func ErrorFromName(s string) (ErrorCode, bool) {
	for c := E_NONE; c <= E_FLOAT; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return E_NONE, false
}

// Error is a first-class error value: a kind plus an optional user message.
type Error struct {
	Code    ErrorCode
	Message string
	HasMsg  bool
}

func NewError(code ErrorCode) Error              { return Error{Code: code} }
func NewErrorMsg(code ErrorCode, msg string) Error { return Error{Code: code, Message: msg, HasMsg: true} }

func (e Error) Type() TypeCode { return TYPE_ERR }

func (e Error) String() string {
	if e.HasMsg {
		return e.Code.String() + " (\"" + e.Message + "\")"
	}
	return e.Code.String()
}

func (e Error) Truthy() bool { return true }

func (e Error) Equal(other Value) bool {
	o, ok := other.(Error)
	if !ok {
		return false
	}
	return e.Code == o.Code
}

func (e Error) Less(other Value) bool {
	o, ok := other.(Error)
	if !ok {
		return false
	}
	return e.Code < o.Code
}

// DefaultMessage returns Message if set, else the code's default text.
func (e Error) DefaultMessage() string {
	if e.HasMsg {
		return e.Message
	}
	return e.Code.Message()
}
