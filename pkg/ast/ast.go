// Package ast defines the abstract syntax tree produced by pkg/parser
// and consumed by pkg/decl and pkg/compiler.
//
// A parsed source file is a single ClassSrc: the grammar (spec 6) only
// ever declares one class per file, with a run of imports in front of
// it. Expressions are kept in the postfix (reverse-Polish) form the
// shunting-yard parser naturally produces (spec 4.2): an ExprSrc is an
// ordered list of ExprItem entries that is either a value/operator
// token or a nested CallSrc — never a conventional operator tree. This
// lets the compiler walk expressions with a single pass and a parallel
// type stack instead of a recursive visitor.
package ast

import "github.com/kristofer/classvm/pkg/token"

// DataDeclSrc is a single "TypeName name" declaration: a field, a
// parameter, or (inside LocalDecl) a local variable's type+name pair.
type DataDeclSrc struct {
	TypeName string
	Name     string
	Line     int
}

// LocalDecl is a method-body-leading local variable declaration, with
// an optional initializer expression (spec 4.2's Local production).
type LocalDecl struct {
	TypeName string
	Name     string
	Init     *ExprSrc // nil if the local has no initializer
	Line     int
}

// CallKind identifies which of the call forms spec 4.2/4.4 describes
// a CallSrc represents.
type CallKind int

const (
	CallSelf      CallKind = iota // name(args)              -> CALLF_SELF_G
	CallSuper                     // super.name(args)        -> CALLF_SUPER_G
	CallPushed                    // recv.name(args)          -> CALLF_PUSHED_G
	CallSuperCtor                 // super(args)              -> CALLC_SELF_SUPER
	CallNew                       // new ClassName(args)      -> NEW + CALLC_PUSHED_G
)

// ChainedCall is one link of a flattened a.b().c().d() chain: each
// subsequent call's receiver is implicitly the previous call's pushed
// result (spec 9's "receiver-threading convention").
type ChainedCall struct {
	Name string
	Args []*ExprSrc
	Line int
}

// CallSrc is a single call expression, possibly the head of a chain.
type CallSrc struct {
	Kind      CallKind
	Receiver  *ExprSrc // CallPushed's explicit receiver; nil otherwise
	ClassName string   // CallNew's target class
	Name      string   // method or constructor name; unused for CallNew/CallSuperCtor
	Args      []*ExprSrc
	Chain     []*ChainedCall
	Line      int
}

// ExprItem is one entry of a postfix expression list: a value token,
// an operator token, or a nested call.
type ExprItem struct {
	// Tok is set for value and operator entries (IntLit, FloatLit,
	// True, False, Null, Ident, or one of the arithmetic/comparison/
	// logical/unary operator kinds). Zero value when Call != nil.
	Tok token.Kind
	Lit string // spelling for Ident/IntLit/FloatLit; unused otherwise
	Call *CallSrc
	Line int
}

// ExprSrc is a parsed expression in postfix order.
type ExprSrc struct {
	Items []ExprItem
}

// Stmt is implemented by every statement node.
type Stmt interface{ stmtNode() }

type BlockStmt struct {
	Stmts []Stmt
}

type IfStmt struct {
	Cond *ExprSrc
	Then Stmt
	Else Stmt // nil if there is no else branch
	Line int
}

type WhileStmt struct {
	Cond *ExprSrc
	Body Stmt
	Line int
}

type ReturnStmt struct {
	Value *ExprSrc // nil for a bare "return;" in a void function
	Line  int
}

type AssignStmt struct {
	Name  string
	Value *ExprSrc
	Line  int
}

// CallStmt is a call expression used for its side effect; the
// compiler discards its pushed return value with a POP.
type CallStmt struct {
	Call *CallSrc
	Line int
}

func (*BlockStmt) stmtNode()  {}
func (*IfStmt) stmtNode()     {}
func (*WhileStmt) stmtNode()  {}
func (*ReturnStmt) stmtNode() {}
func (*AssignStmt) stmtNode() {}
func (*CallStmt) stmtNode()   {}

// MethodSrc is a method or constructor declaration. IsCtor
// distinguishes the two; a constructor's ReturnType is always "void"
// and it alone may carry a BaseCall.
type MethodSrc struct {
	Name       string
	ReturnType string
	Params     []DataDeclSrc
	Locals     []LocalDecl
	BaseCall   *CallSrc // constructors on a derived class only
	Body       []Stmt
	IsCtor     bool
	IsNative   bool // native classes declare some methods with ';' bodies
	Line       int
	Doc        string // leading comment text, spec 4.1
}

// ClassSrc is the parsed contents of a single source file.
type ClassSrc struct {
	Name     string
	Super    string // "" if the class has no superclass
	IsNative bool
	Imports  []string
	Fields   []DataDeclSrc
	Methods  []MethodSrc // IsCtor == false, source order
	Ctors    []MethodSrc // IsCtor == true, source order
	Doc      string
}
