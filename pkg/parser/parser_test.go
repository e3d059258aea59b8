package parser

import (
	"testing"

	"github.com/kristofer/classvm/pkg/ast"
	"github.com/kristofer/classvm/pkg/token"
)

func TestParseFieldsAndMethods(t *testing.T) {
	src := `
class Counter {
	int value;
	Counter() {
		value = 0;
	}
	int get() {
		return value;
	}
	void add(int n) {
		value = value + n;
	}
}
`
	cs, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Name != "Counter" || cs.Super != "" || cs.IsNative {
		t.Fatalf("unexpected class header: %+v", cs)
	}
	if len(cs.Fields) != 1 || cs.Fields[0].Name != "value" || cs.Fields[0].TypeName != "int" {
		t.Fatalf("unexpected fields: %+v", cs.Fields)
	}
	if len(cs.Ctors) != 1 {
		t.Fatalf("want 1 ctor, got %d", len(cs.Ctors))
	}
	if len(cs.Methods) != 2 {
		t.Fatalf("want 2 methods, got %d: %+v", len(cs.Methods), cs.Methods)
	}
}

func TestParseExtendsAndSuperCtor(t *testing.T) {
	src := `
class Base {
	int x;
	Base(int x) {
		x = x;
	}
}
`
	_, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	src2 := `
class Derived extends Base {
	Derived(int x, int y) {
		super(x);
	}
}
`
	cs, err := Parse(src2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Super != "Base" {
		t.Fatalf("want super Base, got %q", cs.Super)
	}
	if cs.Ctors[0].BaseCall == nil || cs.Ctors[0].BaseCall.Kind != ast.CallSuperCtor {
		t.Fatalf("expected a base-class constructor call")
	}
}

func TestNativeBodylessMembers(t *testing.T) {
	src := `
native class Widget {
	Widget(int id);
	int id();
	void paint();
}
`
	cs, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cs.IsNative {
		t.Fatalf("expected native class")
	}
	if !cs.Ctors[0].IsNative {
		t.Fatalf("expected native constructor")
	}
	for _, m := range cs.Methods {
		if !m.IsNative {
			t.Fatalf("expected native method %q", m.Name)
		}
	}
}

func TestNonNativeBodylessMemberIsError(t *testing.T) {
	src := `
class Widget {
	void paint();
}
`
	if _, err := Parse(src); err == nil {
		t.Fatalf("expected an error for a bodyless method on a non-native class")
	}
}

func TestLocalDeclVsStatementDisambiguation(t *testing.T) {
	src := `
class M {
	void run() {
		int x;
		int y = 1;
		x = y;
		foo();
		y.bar();
	}
	void foo() {}
	int bar() { return 0; }
}
`
	cs, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	run := cs.Methods[0]
	if len(run.Locals) != 2 {
		t.Fatalf("want 2 locals, got %d: %+v", len(run.Locals), run.Locals)
	}
	if run.Locals[0].Name != "x" || run.Locals[0].Init != nil {
		t.Fatalf("unexpected first local: %+v", run.Locals[0])
	}
	if run.Locals[1].Name != "y" || run.Locals[1].Init == nil {
		t.Fatalf("unexpected second local: %+v", run.Locals[1])
	}
	if len(run.Body) != 3 {
		t.Fatalf("want 3 remaining statements, got %d", len(run.Body))
	}
	if _, ok := run.Body[0].(*ast.AssignStmt); !ok {
		t.Fatalf("want AssignStmt, got %T", run.Body[0])
	}
	callStmt, ok := run.Body[1].(*ast.CallStmt)
	if !ok || callStmt.Call.Kind != ast.CallSelf {
		t.Fatalf("want self CallStmt, got %T", run.Body[1])
	}
	pushedStmt, ok := run.Body[2].(*ast.CallStmt)
	if !ok || pushedStmt.Call.Kind != ast.CallPushed {
		t.Fatalf("want pushed CallStmt, got %T", run.Body[2])
	}
}

func TestDottedNativeLocalDecl(t *testing.T) {
	src := `
class M {
	void run() {
		gfx.Widget w;
	}
}
`
	cs, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	locals := cs.Methods[0].Locals
	if len(locals) != 1 || locals[0].TypeName != "gfx.Widget" || locals[0].Name != "w" {
		t.Fatalf("unexpected locals: %+v", locals)
	}
}

func TestExpressionPostfixOrderAndPrecedence(t *testing.T) {
	src := `
class M {
	int calc() {
		return 1 + 2 * 3;
	}
}
`
	cs, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ret, ok := cs.Methods[0].Body[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("want ReturnStmt, got %T", cs.Methods[0].Body[0])
	}
	items := ret.Value.Items
	want := []string{"1", "2", "3", "*", "+"}
	if len(items) != len(want) {
		t.Fatalf("want %d items, got %d: %+v", len(want), len(items), items)
	}
	for i, w := range want {
		got := items[i].Lit
		if got == "" {
			got = items[i].Tok.String()
		}
		if got != w {
			t.Fatalf("item %d: want %q, got %q", i, w, got)
		}
	}
}

// spec 4.2's operator precedence table gives % a tighter binding than
// + and - but a looser one than * and /, each getting its own
// distinct level: 7 % 4 * 2 groups as 7 % (4 * 2), not (7 % 4) * 2.
func TestModuloBindsLooserThanMultiply(t *testing.T) {
	src := `
class M {
	int calc() {
		return 7 % 4 * 2;
	}
}
`
	cs, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ret := cs.Methods[0].Body[0].(*ast.ReturnStmt)
	items := ret.Value.Items
	want := []string{"7", "4", "2", "*", "%"}
	if len(items) != len(want) {
		t.Fatalf("want %d items, got %d: %+v", len(want), len(items), items)
	}
	for i, w := range want {
		got := items[i].Lit
		if got == "" {
			got = items[i].Tok.String()
		}
		if got != w {
			t.Fatalf("item %d: want %q, got %q", i, w, got)
		}
	}
}

// Equality binds tighter than the relational operators (spec 4.2:
// < < <= < > < >= < == < !=), so a < b == c < d groups as
// a < (b == c) < d, i.e. the two == operands are b and c, not the
// whole left/right relational expressions.
func TestEqualityBindsTighterThanRelational(t *testing.T) {
	src := `
class M {
	bool calc(int a, int b, int c) {
		return a < b == c;
	}
}
`
	cs, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ret := cs.Methods[0].Body[0].(*ast.ReturnStmt)
	items := ret.Value.Items
	want := []string{"a", "b", "c", "==", "<"}
	if len(items) != len(want) {
		t.Fatalf("want %d items, got %d: %+v", len(want), len(items), items)
	}
	for i, w := range want {
		got := items[i].Lit
		if got == "" {
			got = items[i].Tok.String()
		}
		if got != w {
			t.Fatalf("item %d: want %q, got %q", i, w, got)
		}
	}
}

func TestChainedCallsAndNewExpression(t *testing.T) {
	src := `
class M {
	void run() {
		new Widget(1).init().show();
	}
}
`
	cs, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stmt, ok := cs.Methods[0].Body[0].(*ast.CallStmt)
	if !ok {
		t.Fatalf("want CallStmt, got %T", cs.Methods[0].Body[0])
	}
	if stmt.Call.Kind != ast.CallNew || stmt.Call.ClassName != "Widget" {
		t.Fatalf("unexpected head call: %+v", stmt.Call)
	}
	if len(stmt.Call.Chain) != 2 || stmt.Call.Chain[0].Name != "init" || stmt.Call.Chain[1].Name != "show" {
		t.Fatalf("unexpected chain: %+v", stmt.Call.Chain)
	}
}

func TestAmbiguousLeadingMinusIsUnaryNotBinary(t *testing.T) {
	src := `
class M {
	int neg() {
		return -1 + 2;
	}
}
`
	cs, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := cs.Methods[0].Body[0].(*ast.ReturnStmt).Value.Items
	if items[0].Tok != token.IntLit || items[0].Lit != "1" {
		t.Fatalf("want literal 1 first, got %+v", items[0])
	}
	if items[1].Tok != token.UnaryMinus {
		t.Fatalf("want UnaryMinus applied to 1, got %+v", items[1])
	}
}

func TestImportsAreCollected(t *testing.T) {
	src := `
import gfx.Widget;
import sys.io.Stream;
class M {
}
`
	cs, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cs.Imports) != 2 || cs.Imports[0] != "gfx.Widget" || cs.Imports[1] != "sys.io.Stream" {
		t.Fatalf("unexpected imports: %+v", cs.Imports)
	}
}

func TestDuplicateConstructorsParseFine(t *testing.T) {
	// Ambiguity between these two constructors is a pkg/decl concern
	// (spec 3's AmbiguousConstructor rule), not a parse error.
	src := `
class Pair {
	Pair(int a) {}
	Pair(int b) {}
}
`
	cs, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cs.Ctors) != 2 {
		t.Fatalf("want 2 ctors, got %d", len(cs.Ctors))
	}
}

func TestConstructorNameMismatchIsParseError(t *testing.T) {
	src := `
class Foo {
	Bar(int x) {}
}
`
	if _, err := Parse(src); err == nil {
		t.Fatalf("expected a parse error for a mismatched constructor head")
	}
}

func TestUnexpectedTokenAbortsWithFirstError(t *testing.T) {
	src := `
class M {
	void run() {
		1 2 3;
	}
}
`
	if _, err := Parse(src); err == nil {
		t.Fatalf("expected a parse error")
	}
}
