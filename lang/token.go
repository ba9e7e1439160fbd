// Package lang implements the compiler (spec §4.4/§4.5): lexer, parser,
// AST, and codegen to program.Program bytecode; it has no unparser. Adapted from
// the teacher's tree-walking parser/lexer, generalized to a bytecode
// compiler and extended with lambdas, flyweights, comprehensions, scatter
// assignment, symbols, and lexical-block statements.
package lang

// TokenType identifies one lexical token kind.
type TokenType int

const (
	TOKEN_EOF TokenType = iota
	TOKEN_ERROR
	TOKEN_ILLEGAL

	TOKEN_INT
	TOKEN_FLOAT
	TOKEN_STRING
	TOKEN_OBJECT
	TOKEN_ERROR_LIT
	TOKEN_SYMBOL_LIT // 'name

	TOKEN_IF
	TOKEN_ELSEIF
	TOKEN_ELSE
	TOKEN_ENDIF
	TOKEN_FOR
	TOKEN_ENDFOR
	TOKEN_WHILE
	TOKEN_ENDWHILE
	TOKEN_RETURN
	TOKEN_BREAK
	TOKEN_CONTINUE
	TOKEN_FORK
	TOKEN_ENDFORK
	TOKEN_TRY
	TOKEN_EXCEPT
	TOKEN_FINALLY
	TOKEN_ENDTRY
	TOKEN_ANY
	TOKEN_TRUE
	TOKEN_FALSE
	TOKEN_IN
	TOKEN_LET
	TOKEN_CONST
	TOKEN_GLOBAL
	TOKEN_FN
	TOKEN_ENDFN
	TOKEN_BEGIN
	TOKEN_END

	TOKEN_IDENTIFIER

	TOKEN_PLUS
	TOKEN_MINUS
	TOKEN_STAR
	TOKEN_SLASH
	TOKEN_PERCENT
	TOKEN_CARET

	TOKEN_EQ
	TOKEN_NE
	TOKEN_LT
	TOKEN_GT
	TOKEN_LE
	TOKEN_GE

	TOKEN_AND
	TOKEN_OR
	TOKEN_NOT

	TOKEN_BITAND
	TOKEN_BITOR
	TOKEN_BITXOR
	TOKEN_BITNOT
	TOKEN_LSHIFT
	TOKEN_RSHIFT

	TOKEN_ASSIGN
	TOKEN_QUESTION
	TOKEN_PIPE
	TOKEN_ARROW
	TOKEN_RANGE
	TOKEN_FATARROW
	TOKEN_BACKTICK
	TOKEN_SQUOTE

	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_LBRACE
	TOKEN_RBRACE
	TOKEN_LBRACKET
	TOKEN_RBRACKET
	TOKEN_LANGLE   // <  reused contextually for flyweight literals <delegate, ...>
	TOKEN_RANGLE
	TOKEN_COMMA
	TOKEN_SEMICOLON
	TOKEN_DOT
	TOKEN_COLON
	TOKEN_COLONCOLON
	TOKEN_AT
	TOKEN_DOLLAR
	TOKEN_BANG
)

type Position struct {
	Line, Column, Offset int
}

type Token struct {
	Type     TokenType
	Value    string
	Literal  string
	Position Position
}

var keywords = map[string]TokenType{
	"if": TOKEN_IF, "elseif": TOKEN_ELSEIF, "else": TOKEN_ELSE, "endif": TOKEN_ENDIF,
	"for": TOKEN_FOR, "endfor": TOKEN_ENDFOR,
	"while": TOKEN_WHILE, "endwhile": TOKEN_ENDWHILE,
	"return": TOKEN_RETURN, "break": TOKEN_BREAK, "continue": TOKEN_CONTINUE,
	"fork": TOKEN_FORK, "endfork": TOKEN_ENDFORK,
	"try": TOKEN_TRY, "except": TOKEN_EXCEPT, "finally": TOKEN_FINALLY, "endtry": TOKEN_ENDTRY,
	"any": TOKEN_ANY, "true": TOKEN_TRUE, "false": TOKEN_FALSE, "in": TOKEN_IN,
	"let": TOKEN_LET, "const": TOKEN_CONST, "global": TOKEN_GLOBAL,
	"fn": TOKEN_FN, "endfn": TOKEN_ENDFN,
	"begin": TOKEN_BEGIN, "end": TOKEN_END,
}

func LookupKeyword(ident string) TokenType {
	if t, ok := keywords[ident]; ok {
		return t
	}
	return TOKEN_IDENTIFIER
}
