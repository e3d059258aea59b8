// Package token defines the lexical tokens produced by pkg/lexer and
// consumed by pkg/parser.
package token

import "fmt"

// Kind identifies the lexical class of a Token.
type Kind int

const (
	// Special
	EOF Kind = iota
	Illegal
	Comment

	// Literals and names
	Ident
	IntLit
	FloatLit

	// Keywords
	Class
	Super
	True
	False
	Native
	While
	If
	Else
	Return
	Import
	New
	Extends
	Null

	// Operators
	Plus
	Minus
	UnaryMinus // disambiguated by the lexer, spec 4.1
	Star
	Slash
	Percent
	Lt
	LtEq
	Gt
	GtEq
	EqEq
	NotEq
	AndAnd
	OrOr
	Bang
	Assign

	// Punctuation
	Dot
	Comma
	Semi
	LParen
	RParen
	LBrace
	RBrace
)

var names = map[Kind]string{
	EOF: "EOF", Illegal: "ILLEGAL", Comment: "COMMENT",
	Ident: "IDENT", IntLit: "INT", FloatLit: "FLOAT",
	Class: "class", Super: "super", True: "true", False: "false",
	Native: "native", While: "while", If: "if", Else: "else",
	Return: "return", Import: "import", New: "new", Extends: "extends",
	Null: "null",
	Plus: "+", Minus: "-", UnaryMinus: "-", Star: "*", Slash: "/", Percent: "%",
	Lt: "<", LtEq: "<=", Gt: ">", GtEq: ">=", EqEq: "==", NotEq: "!=",
	AndAnd: "&&", OrOr: "||", Bang: "!", Assign: "=",
	Dot: ".", Comma: ",", Semi: ";", LParen: "(", RParen: ")",
	LBrace: "{", RBrace: "}",
}

// String returns the canonical spelling (or name) of the token kind.
func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Keywords maps reserved identifiers to their keyword kind.
var Keywords = map[string]Kind{
	"class": Class, "super": Super, "true": True, "false": False,
	"native": Native, "while": While, "if": If, "else": Else,
	"return": Return, "import": Import, "new": New, "extends": Extends,
	"null": Null,
}

// Lookup returns the keyword Kind for ident, or Ident if it is not a
// reserved word.
func Lookup(ident string) Kind {
	if k, ok := Keywords[ident]; ok {
		return k
	}
	return Ident
}

// Token is a single lexical unit: its kind, its exact source spelling,
// and its 1-based source position.
type Token struct {
	Kind    Kind
	Lit     string
	Line    int
	Col     int
}

// String renders the token for diagnostics.
func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Kind, t.Lit, t.Line, t.Col)
}

// IsValuePosition reports whether a token kind, when it was the
// previously emitted token, leaves the lexer in "expression value"
// position — i.e. a following '-' is itself a value (Minus) rather
// than the start of a new expression (UnaryMinus). Spec 4.1.
func IsValuePosition(prev Kind) bool {
	switch prev {
	case Ident, IntLit, FloatLit, True, False, Null, RParen:
		return true
	default:
		return false
	}
}
