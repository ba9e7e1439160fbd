package value

// TypeCode identifies the dynamic type of a Value.
type TypeCode int

const (
	TYPE_INT TypeCode = iota
	TYPE_OBJ
	TYPE_STR
	TYPE_ERR
	TYPE_LIST
	TYPE_FLOAT
	TYPE_MAP
	TYPE_FLYWEIGHT
	TYPE_BOOL
	TYPE_SYMBOL
	TYPE_BINARY
	TYPE_LAMBDA
	TYPE_ANON
)

func (t TypeCode) String() string {
	switch t {
	case TYPE_INT:
		return "INT"
	case TYPE_OBJ:
		return "OBJ"
	case TYPE_STR:
		return "STR"
	case TYPE_ERR:
		return "ERR"
	case TYPE_LIST:
		return "LIST"
	case TYPE_FLOAT:
		return "FLOAT"
	case TYPE_MAP:
		return "MAP"
	case TYPE_FLYWEIGHT:
		return "FLYWEIGHT"
	case TYPE_BOOL:
		return "BOOL"
	case TYPE_SYMBOL:
		return "SYM"
	case TYPE_BINARY:
		return "BINARY"
	case TYPE_LAMBDA:
		return "LAMBDA"
	case TYPE_ANON:
		return "ANON"
	default:
		return "UNKNOWN"
	}
}

// Value is the interface every scalar/aggregate type in the language implements.
type Value interface {
	Type() TypeCode
	String() string
	Equal(Value) bool
	Truthy() bool
}

// Ordered is implemented by values that support a total order within their own type.
type Ordered interface {
	Value
	Less(Value) bool
}
