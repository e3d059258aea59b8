// Package parser implements a recursive-descent parser over pkg/lexer
// tokens, producing a single ast.ClassSrc per source file (spec 4.2).
//
// Member disambiguation (field vs. method vs. constructor) and the
// local-declaration-vs-statement lookahead inside a method body both
// follow the same rule: scan forward over the buffered token stream
// until the shape is unambiguous, never backtrack past a token already
// consumed. Expressions are parsed by precedence climbing but emitted
// in postfix (reverse-Polish) order directly into ast.ExprSrc, giving
// the same flat, stack-shaped representation a literal shunting-yard
// parser would produce without the separate operator-stack machinery.
//
// The parser performs no error recovery: the first malformed
// construct panics with an *errs.CompileError, which Parse recovers
// into a normal returned error. This mirrors spec 7's "first error
// aborts the build" policy without threading an error return through
// every one of the dozens of parse* methods below.
package parser

import (
	"github.com/kristofer/classvm/pkg/ast"
	"github.com/kristofer/classvm/pkg/errs"
	"github.com/kristofer/classvm/pkg/lexer"
	"github.com/kristofer/classvm/pkg/token"
)

type parser struct {
	lex       *lexer.Lexer
	buf       []token.Token
	pendingDoc string
	className string // enclosing class name, set once seen, used for ctor detection and diagnostics
}

// Parse parses a single source file's text into its ClassSrc.
func Parse(src string) (cs *ast.ClassSrc, err error) {
	p := &parser{lex: lexer.New(src)}
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*errs.CompileError); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()
	cs = p.parseClassSrc()
	return cs, nil
}

// --- token buffer -----------------------------------------------------

func (p *parser) fill(n int) {
	for len(p.buf) < n {
		t := p.lex.NextToken()
		for t.Kind == token.Comment {
			if p.pendingDoc != "" {
				p.pendingDoc += "\n"
			}
			p.pendingDoc += t.Lit
			t = p.lex.NextToken()
		}
		if t.Kind == token.Illegal {
			p.fail(errs.Parse, "illegal token %q", t.Lit)
		}
		p.buf = append(p.buf, t)
	}
}

func (p *parser) peekAt(i int) token.Token {
	p.fill(i + 1)
	return p.buf[i]
}

func (p *parser) cur() token.Token  { return p.peekAt(0) }
func (p *parser) peek() token.Token { return p.peekAt(1) }

func (p *parser) advance() token.Token {
	p.fill(1)
	t := p.buf[0]
	p.buf = p.buf[1:]
	return t
}

func (p *parser) takeDoc() string {
	d := p.pendingDoc
	p.pendingDoc = ""
	return d
}

func (p *parser) fail(kind errs.Kind, format string, args ...interface{}) {
	panic(errs.New(kind, p.className, p.cur().Line, format, args...))
}

func (p *parser) expect(k token.Kind) token.Token {
	if p.cur().Kind != k {
		p.fail(errs.Parse, "expected %s, got %s %q", k, p.cur().Kind, p.cur().Lit)
	}
	return p.advance()
}

func (p *parser) expectIdent() string {
	if p.cur().Kind != token.Ident {
		p.fail(errs.Parse, "expected identifier, got %s %q", p.cur().Kind, p.cur().Lit)
	}
	return p.advance().Lit
}

// parseClassName consumes a dotted identifier chain: Ident ('.' Ident)*.
func (p *parser) parseClassName() string {
	name := p.expectIdent()
	for p.cur().Kind == token.Dot {
		p.advance()
		name += "." + p.expectIdent()
	}
	return name
}

// --- top level ---------------------------------------------------------

func (p *parser) parseClassSrc() *ast.ClassSrc {
	var imports []string
	for p.cur().Kind == token.Import {
		p.advance()
		name := p.parseClassName()
		p.expect(token.Semi)
		imports = append(imports, name)
	}

	doc := p.takeDoc()
	isNative := false
	if p.cur().Kind == token.Native {
		isNative = true
		p.advance()
	}
	p.expect(token.Class)
	name := p.expectIdent()
	p.className = name

	super := ""
	if p.cur().Kind == token.Extends {
		p.advance()
		super = p.parseClassName()
	}

	cs := &ast.ClassSrc{Name: name, Super: super, IsNative: isNative, Imports: imports, Doc: doc}

	p.expect(token.LBrace)
	for p.cur().Kind != token.RBrace {
		p.parseMember(cs)
	}
	p.expect(token.RBrace)
	if p.cur().Kind != token.EOF {
		p.fail(errs.Parse, "unexpected trailing content after class body")
	}
	return cs
}

// parseMember disambiguates a field, a method, or a constructor by
// scanning to the first ';' or '(' after the member's leading type
// name (spec 4.2): a constructor's "return type" identifier equals the
// enclosing class name and is immediately followed by '('.
func (p *parser) parseMember(cs *ast.ClassSrc) {
	doc := p.takeDoc()
	line := p.cur().Line
	typeName := p.parseClassName()

	if p.cur().Kind == token.LParen {
		if typeName != cs.Name {
			p.fail(errs.Parse, "constructor head %q does not match enclosing class %q", typeName, cs.Name)
		}
		cs.Ctors = append(cs.Ctors, p.parseCtorTail(cs, line, doc))
		return
	}

	name := p.expectIdent()
	switch p.cur().Kind {
	case token.Semi:
		p.advance()
		cs.Fields = append(cs.Fields, ast.DataDeclSrc{TypeName: typeName, Name: name, Line: line})
	case token.LParen:
		cs.Methods = append(cs.Methods, p.parseMethodTail(cs, typeName, name, line, doc))
	default:
		p.fail(errs.Parse, "expected ';' or '(' after member name %q", name)
	}
}

func (p *parser) parseCtorTail(cs *ast.ClassSrc, line int, doc string) ast.MethodSrc {
	p.expect(token.LParen)
	params := p.parseParams()
	p.expect(token.RParen)
	m := ast.MethodSrc{Name: cs.Name, ReturnType: "void", Params: params, IsCtor: true, Line: line, Doc: doc}
	if p.cur().Kind == token.Semi {
		if !cs.IsNative {
			p.fail(errs.Parse, "only a native class may declare a bodyless constructor")
		}
		p.advance()
		m.IsNative = true
		return m
	}
	p.parseBody(&m)
	return m
}

func (p *parser) parseMethodTail(cs *ast.ClassSrc, returnType, name string, line int, doc string) ast.MethodSrc {
	p.expect(token.LParen)
	params := p.parseParams()
	p.expect(token.RParen)
	m := ast.MethodSrc{Name: name, ReturnType: returnType, Params: params, Line: line, Doc: doc}
	if p.cur().Kind == token.Semi {
		if !cs.IsNative {
			p.fail(errs.Parse, "only a native class may declare a bodyless method")
		}
		p.advance()
		m.IsNative = true
		return m
	}
	p.parseBody(&m)
	return m
}

func (p *parser) parseParams() []ast.DataDeclSrc {
	var params []ast.DataDeclSrc
	if p.cur().Kind == token.RParen {
		return params
	}
	for {
		line := p.cur().Line
		tn := p.parseClassName()
		name := p.expectIdent()
		params = append(params, ast.DataDeclSrc{TypeName: tn, Name: name, Line: line})
		if p.cur().Kind == token.Comma {
			p.advance()
			continue
		}
		break
	}
	return params
}

// parseBody parses "{" Local* [BaseCall] Stmt* "}". BaseCall (an
// explicit super(...) call) is only legal as the first thing in a
// derived class's constructor.
func (p *parser) parseBody(m *ast.MethodSrc) {
	p.expect(token.LBrace)
	for p.isLocalDeclAhead() {
		m.Locals = append(m.Locals, p.parseLocalDecl())
	}
	if m.IsCtor && p.cur().Kind == token.Super && p.peek().Kind == token.LParen {
		m.BaseCall = p.parseSuperCtorCall()
	}
	for p.cur().Kind != token.RBrace {
		m.Body = append(m.Body, p.parseStmt())
	}
	p.expect(token.RBrace)
}

// isLocalDeclAhead reports whether the token stream starting at the
// current position matches "TypeName Ident", the prefix that can only
// begin a local declaration — never a statement. TypeName itself may
// be dotted (a native class reference), so the scan walks the maximal
// run of ('.' Ident) pairs before checking for the trailing variable
// name (spec 4.2).
func (p *parser) isLocalDeclAhead() bool {
	if p.peekAt(0).Kind != token.Ident {
		return false
	}
	i := 1
	for p.peekAt(i).Kind == token.Dot && p.peekAt(i+1).Kind == token.Ident {
		i += 2
	}
	return p.peekAt(i).Kind == token.Ident
}

func (p *parser) parseLocalDecl() ast.LocalDecl {
	line := p.cur().Line
	tn := p.parseClassName()
	name := p.expectIdent()
	var init *ast.ExprSrc
	if p.cur().Kind == token.Assign {
		p.advance()
		init = p.parseExpr()
	}
	p.expect(token.Semi)
	return ast.LocalDecl{TypeName: tn, Name: name, Init: init, Line: line}
}

func (p *parser) parseSuperCtorCall() *ast.CallSrc {
	line := p.cur().Line
	p.expect(token.Super)
	p.expect(token.LParen)
	args := p.parseArgs()
	p.expect(token.RParen)
	p.expect(token.Semi)
	return &ast.CallSrc{Kind: ast.CallSuperCtor, Args: args, Line: line}
}

func (p *parser) parseArgs() []*ast.ExprSrc {
	var args []*ast.ExprSrc
	if p.cur().Kind == token.RParen {
		return args
	}
	for {
		args = append(args, p.parseExpr())
		if p.cur().Kind == token.Comma {
			p.advance()
			continue
		}
		break
	}
	return args
}

// --- statements ----------------------------------------------------

func (p *parser) parseStmt() ast.Stmt {
	switch p.cur().Kind {
	case token.LBrace:
		return p.parseBlockStmt()
	case token.If:
		return p.parseIfStmt()
	case token.While:
		return p.parseWhileStmt()
	case token.Return:
		return p.parseReturnStmt()
	case token.New:
		line := p.cur().Line
		call := p.parseNewCall()
		p.expect(token.Semi)
		return &ast.CallStmt{Call: call, Line: line}
	case token.Super:
		line := p.cur().Line
		call := p.parseSuperExprCall()
		p.expect(token.Semi)
		return &ast.CallStmt{Call: call, Line: line}
	case token.Ident:
		return p.parseIdentStmt()
	default:
		p.fail(errs.Parse, "unexpected token %s at start of statement", p.cur().Kind)
		return nil
	}
}

func (p *parser) parseBlockStmt() *ast.BlockStmt {
	p.expect(token.LBrace)
	var stmts []ast.Stmt
	for p.cur().Kind != token.RBrace {
		stmts = append(stmts, p.parseStmt())
	}
	p.expect(token.RBrace)
	return &ast.BlockStmt{Stmts: stmts}
}

func (p *parser) parseIfStmt() *ast.IfStmt {
	line := p.cur().Line
	p.expect(token.If)
	p.expect(token.LParen)
	cond := p.parseExpr()
	p.expect(token.RParen)
	then := p.parseStmt()
	var els ast.Stmt
	if p.cur().Kind == token.Else {
		p.advance()
		els = p.parseStmt()
	}
	return &ast.IfStmt{Cond: cond, Then: then, Else: els, Line: line}
}

func (p *parser) parseWhileStmt() *ast.WhileStmt {
	line := p.cur().Line
	p.expect(token.While)
	p.expect(token.LParen)
	cond := p.parseExpr()
	p.expect(token.RParen)
	body := p.parseStmt()
	return &ast.WhileStmt{Cond: cond, Body: body, Line: line}
}

func (p *parser) parseReturnStmt() *ast.ReturnStmt {
	line := p.cur().Line
	p.expect(token.Return)
	var val *ast.ExprSrc
	if p.cur().Kind != token.Semi {
		val = p.parseExpr()
	}
	p.expect(token.Semi)
	return &ast.ReturnStmt{Value: val, Line: line}
}

// parseIdentStmt handles the two statement shapes that start with a
// bare identifier: an assignment ("name = expr;") and a call used for
// its side effect ("name(...)...;" or "name.method(...)...;").
func (p *parser) parseIdentStmt() ast.Stmt {
	line := p.cur().Line
	name := p.expectIdent()
	if p.cur().Kind == token.Assign {
		p.advance()
		val := p.parseExpr()
		p.expect(token.Semi)
		return &ast.AssignStmt{Name: name, Value: val, Line: line}
	}
	call := p.parseCallChainFromIdent(name, line)
	p.expect(token.Semi)
	return &ast.CallStmt{Call: call, Line: line}
}

// --- calls -----------------------------------------------------------

// parseCallChainFromIdent parses a call whose head is the
// already-consumed identifier name: either a self-call ("name(...)")
// or a pushed-receiver call ("name.method(...)"), followed by any
// number of chained ".method(...)" links (spec 9).
func (p *parser) parseCallChainFromIdent(name string, line int) *ast.CallSrc {
	var call *ast.CallSrc
	switch p.cur().Kind {
	case token.LParen:
		p.advance()
		args := p.parseArgs()
		p.expect(token.RParen)
		call = &ast.CallSrc{Kind: ast.CallSelf, Name: name, Args: args, Line: line}
	case token.Dot:
		p.advance()
		methodName := p.expectIdent()
		p.expect(token.LParen)
		args := p.parseArgs()
		p.expect(token.RParen)
		recv := &ast.ExprSrc{Items: []ast.ExprItem{{Tok: token.Ident, Lit: name, Line: line}}}
		call = &ast.CallSrc{Kind: ast.CallPushed, Receiver: recv, Name: methodName, Args: args, Line: line}
	default:
		p.fail(errs.Parse, "expected '(' or '.' after %q in call position", name)
	}
	p.parseChainTail(call)
	return call
}

func (p *parser) parseNewCall() *ast.CallSrc {
	line := p.cur().Line
	p.expect(token.New)
	className := p.parseClassName()
	p.expect(token.LParen)
	args := p.parseArgs()
	p.expect(token.RParen)
	call := &ast.CallSrc{Kind: ast.CallNew, ClassName: className, Args: args, Line: line}
	p.parseChainTail(call)
	return call
}

func (p *parser) parseSuperExprCall() *ast.CallSrc {
	line := p.cur().Line
	p.expect(token.Super)
	p.expect(token.Dot)
	name := p.expectIdent()
	p.expect(token.LParen)
	args := p.parseArgs()
	p.expect(token.RParen)
	call := &ast.CallSrc{Kind: ast.CallSuper, Name: name, Args: args, Line: line}
	p.parseChainTail(call)
	return call
}

func (p *parser) parseChainTail(call *ast.CallSrc) {
	for p.cur().Kind == token.Dot {
		line := p.cur().Line
		p.advance()
		name := p.expectIdent()
		p.expect(token.LParen)
		args := p.parseArgs()
		p.expect(token.RParen)
		call.Chain = append(call.Chain, &ast.ChainedCall{Name: name, Args: args, Line: line})
	}
}

// --- expressions -------------------------------------------------------

// parseExpr parses one expression, emitting its tokens in postfix
// order into the returned ExprSrc.
func (p *parser) parseExpr() *ast.ExprSrc {
	e := &ast.ExprSrc{}
	p.parseBinary(e, 1)
	return e
}

// precedence returns the binding power of a binary operator token, or
// false if k is not a binary operator (spec 4.2's precedence table,
// loosest to tightest: ||, &&, <, <=, >, >=, ==, !=, +, -, %, *, /).
// Every operator gets its own distinct level — relational operators
// bind looser than equality, and +, -, %, *, / are five separate
// tiers, not two.
func precedence(k token.Kind) (int, bool) {
	switch k {
	case token.OrOr:
		return 1, true
	case token.AndAnd:
		return 2, true
	case token.Lt:
		return 3, true
	case token.LtEq:
		return 4, true
	case token.Gt:
		return 5, true
	case token.GtEq:
		return 6, true
	case token.EqEq:
		return 7, true
	case token.NotEq:
		return 8, true
	case token.Plus:
		return 9, true
	case token.Minus:
		return 10, true
	case token.Percent:
		return 11, true
	case token.Star:
		return 12, true
	case token.Slash:
		return 13, true
	default:
		return 0, false
	}
}

func (p *parser) parseBinary(e *ast.ExprSrc, minPrec int) {
	p.parseUnary(e)
	for {
		lvl, ok := precedence(p.cur().Kind)
		if !ok || lvl < minPrec {
			return
		}
		opTok := p.advance()
		p.parseBinary(e, lvl+1)
		e.Items = append(e.Items, ast.ExprItem{Tok: opTok.Kind, Line: opTok.Line})
	}
}

func (p *parser) parseUnary(e *ast.ExprSrc) {
	if p.cur().Kind == token.Bang || p.cur().Kind == token.UnaryMinus {
		opTok := p.advance()
		p.parseUnary(e)
		e.Items = append(e.Items, ast.ExprItem{Tok: opTok.Kind, Line: opTok.Line})
		return
	}
	p.parsePrimary(e)
}

func (p *parser) parsePrimary(e *ast.ExprSrc) {
	t := p.cur()
	switch t.Kind {
	case token.IntLit, token.FloatLit, token.True, token.False, token.Null:
		p.advance()
		e.Items = append(e.Items, ast.ExprItem{Tok: t.Kind, Lit: t.Lit, Line: t.Line})
	case token.LParen:
		p.advance()
		p.parseBinary(e, 1)
		p.expect(token.RParen)
	case token.New:
		call := p.parseNewCall()
		e.Items = append(e.Items, ast.ExprItem{Call: call, Line: call.Line})
	case token.Super:
		call := p.parseSuperExprCall()
		e.Items = append(e.Items, ast.ExprItem{Call: call, Line: call.Line})
	case token.Ident:
		name := p.advance().Lit
		if p.cur().Kind == token.LParen || p.cur().Kind == token.Dot {
			call := p.parseCallChainFromIdent(name, t.Line)
			e.Items = append(e.Items, ast.ExprItem{Call: call, Line: call.Line})
		} else {
			e.Items = append(e.Items, ast.ExprItem{Tok: token.Ident, Lit: name, Line: t.Line})
		}
	default:
		p.fail(errs.Parse, "unexpected token %s in expression", t.Kind)
	}
}
