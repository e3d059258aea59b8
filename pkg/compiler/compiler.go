// Package compiler implements type-directed codegen: given a
// pkg/decl.Program (already declaration-resolved, with every class's
// data layout and vtable final), it fills in each Unit's
// ir.FunctionImpl.Code — the typed bytecode stream spec 3/6 define —
// by walking the method's postfix expression lists and statement
// tree with a parallel compile-time type stack.
//
// Like pkg/parser, a single malformed construct panics with an
// *errs.CompileError and CompileProgram recovers it into a normal
// returned error; the first failure aborts the whole build (spec 7).
package compiler

import (
	"github.com/kristofer/classvm/pkg/ast"
	"github.com/kristofer/classvm/pkg/bytecode"
	"github.com/kristofer/classvm/pkg/decl"
	"github.com/kristofer/classvm/pkg/errs"
	"github.com/kristofer/classvm/pkg/ir"
	"github.com/kristofer/classvm/pkg/registry"
	"github.com/kristofer/classvm/pkg/types"
)

// CompileProgram compiles every unit of prog in place, filling in
// each unit's ir.FunctionImpl.Code/MaxStack/Locals/NewClassNames.
// Native units (Impl.IsNative) are skipped — their Code stays empty
// by contract (ir.FunctionImpl's doc comment).
func CompileProgram(prog *decl.Program) error {
	for _, u := range prog.Units {
		if u.Impl.IsNative {
			continue
		}
		if err := compileUnit(u, prog.Registry); err != nil {
			return err
		}
	}
	return nil
}

func compileUnit(u *decl.Unit, reg *registry.ClassRegistry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*errs.CompileError); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()

	fc := &fnCompiler{
		class:      u.Class,
		classSrc:   u.ClassSrc,
		reg:        reg,
		sig:        u.Impl.Sig,
		isCtor:     u.Src.IsCtor,
		paramIndex: make(map[string]int, len(u.Impl.Sig.Params)),
		localIndex: make(map[string]int),
		newIndex:   make(map[string]int),
	}
	for i, p := range u.Impl.Sig.Params {
		fc.paramIndex[p.Name] = i
	}

	if u.Src.BaseCall != nil {
		fc.compileBaseCall(u.Src.BaseCall)
	}
	for _, l := range u.Src.Locals {
		fc.compileLocalDecl(l)
	}
	if !fc.isCtor && !fc.sig.Return.IsVoid() && !definitelyReturns(u.Src.Body) {
		fc.fail(errs.MissingReturn, "%s does not return a value on every path", fc.sig)
	}
	for _, s := range u.Src.Body {
		fc.compileStmt(s)
	}
	fc.emit(bytecode.RET, 0)

	u.Impl.Code = fc.code
	u.Impl.MaxStack = fc.maxStack
	u.Impl.Locals = fc.locals
	u.Impl.NewClassNames = fc.newClassNames
	return nil
}

// fnCompiler holds the state needed to compile a single method or
// constructor body: the class it belongs to (for self-field and
// vtable/ctor lookups), the parameter/local name tables, the
// compile-time type stack mirroring what the VM stack will hold at
// run time, and the emitted instruction stream so far.
type fnCompiler struct {
	class    *ir.ClassIR
	classSrc *ast.ClassSrc
	reg      *registry.ClassRegistry
	sig      types.FunctionSig
	isCtor   bool

	paramIndex map[string]int
	localIndex map[string]int
	locals     []types.DataDecl

	code       []uint32
	stackDepth int
	maxStack   int

	newClassNames []string
	newIndex      map[string]int
}

func (fc *fnCompiler) fail(kind errs.Kind, format string, args ...interface{}) {
	panic(errs.New(kind, fc.classSrc.Name, 0, format, args...))
}

func (fc *fnCompiler) adjust(delta int) {
	fc.stackDepth += delta
	if fc.stackDepth > fc.maxStack {
		fc.maxStack = fc.stackDepth
	}
}

func (fc *fnCompiler) emit(op bytecode.Opcode, operand uint32) int {
	idx := len(fc.code)
	fc.code = append(fc.code, bytecode.EncodeWord(op, operand))
	return idx
}

func (fc *fnCompiler) emitData(op bytecode.Opcode, operand, data uint32) int {
	idx := fc.emit(op, operand)
	fc.code = append(fc.code, data)
	return idx
}

// patch rewrites the operand of the instruction word at idx to
// target, for forward-jump backpatching (if/while, spec 3).
func (fc *fnCompiler) patch(idx int, target int) {
	op, _ := bytecode.DecodeWord(fc.code[idx])
	fc.code[idx] = bytecode.EncodeWord(op, uint32(target))
}

func (fc *fnCompiler) here() int { return len(fc.code) }

// internClassName returns the NEW operand for className, adding it to
// this function's interned table on first use (spec 3).
func (fc *fnCompiler) internClassName(className string) uint32 {
	if idx, ok := fc.newIndex[className]; ok {
		return uint32(idx)
	}
	idx := len(fc.newClassNames)
	fc.newClassNames = append(fc.newClassNames, className)
	fc.newIndex[className] = idx
	return uint32(idx)
}

// --- local declarations / base call --------------------------------

func (fc *fnCompiler) compileLocalDecl(l ast.LocalDecl) {
	declType := types.FromTypeName(l.TypeName)
	if declType.IsNative() {
		if _, ok := fc.reg.Lookup(declType.ClassName); !ok {
			fc.fail(errs.UnknownType, "unknown type %q", l.TypeName)
		}
	}
	idx := len(fc.locals)
	fc.locals = append(fc.locals, types.DataDecl{Name: l.Name, Type: declType, Line: l.Line})
	fc.localIndex[l.Name] = idx

	if l.Init == nil {
		return
	}
	initType := fc.compileExpr(l.Init)
	if !assignable(declType, initType, fc.reg.IsA) {
		fc.fail(errs.TypeMismatch, "cannot initialize %q of type %s with %s", l.Name, declType, initType)
	}
	fc.emit(storeOpcode(locLocal, declType.Cat), uint32(idx))
	fc.adjust(-1)
}

// compileBaseCall compiles a derived constructor's mandatory leading
// super(...) call (spec 4.2's BaseCall), resolving the matching
// superclass constructor overload by argument types.
func (fc *fnCompiler) compileBaseCall(call *ast.CallSrc) {
	super := fc.class.Super
	argTypes := fc.compileArgs(call.Args)
	idx, _ := resolveCtor(super, argTypes, fc.reg.IsA)
	if idx < 0 {
		fc.fail(errs.UnknownFunction, "no matching constructor %s.%s", super.Name, types.FunctionSig{Name: super.Name, Params: paramsFromTypes(argTypes)})
	}
	fc.emitData(bytecode.CALLC_SELF_SUPER, uint32(idx), uint32(len(call.Args)))
	fc.adjust(-len(call.Args))
}

// --- variable resolution ---------------------------------------------

type varLoc int

const (
	locLocal varLoc = iota
	locParam
	locSelf
)

// resolveVar resolves name against locals, then parameters, then self
// fields, in that shadowing order (spec 4.2). compileAssign adjusts
// this order for assignment targets.
func (fc *fnCompiler) resolveVar(name string) (varLoc, int, types.PrimitiveType, bool) {
	if idx, ok := fc.localIndex[name]; ok {
		return locLocal, idx, fc.locals[idx].Type, true
	}
	if idx, ok := fc.paramIndex[name]; ok {
		return locParam, idx, fc.sig.Params[idx].Type, true
	}
	if idx, typ, ok := fc.class.DataSlot(name); ok {
		return locSelf, idx, typ, true
	}
	return 0, 0, types.PrimitiveType{}, false
}

// --- statements --------------------------------------------------------

func (fc *fnCompiler) compileStmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.BlockStmt:
		for _, inner := range st.Stmts {
			fc.compileStmt(inner)
		}
	case *ast.IfStmt:
		fc.compileIf(st)
	case *ast.WhileStmt:
		fc.compileWhile(st)
	case *ast.ReturnStmt:
		fc.compileReturn(st)
	case *ast.AssignStmt:
		fc.compileAssign(st)
	case *ast.CallStmt:
		fc.compileCallStmt(st)
	default:
		fc.fail(errs.Parse, "unknown statement node %T", s)
	}
}

func (fc *fnCompiler) compileIf(st *ast.IfStmt) {
	condType := fc.compileExpr(st.Cond)
	if condType.Cat != types.Bool {
		fc.fail(errs.BadOperandTypes, "if condition must be bool, got %s", condType)
	}
	jz := fc.emit(bytecode.JZ, 0)
	fc.adjust(-1)
	fc.compileStmt(st.Then)
	if st.Else == nil {
		fc.patch(jz, fc.here())
		return
	}
	jmp := fc.emit(bytecode.JMP, 0)
	fc.patch(jz, fc.here())
	fc.compileStmt(st.Else)
	fc.patch(jmp, fc.here())
}

func (fc *fnCompiler) compileWhile(st *ast.WhileStmt) {
	loopStart := fc.here()
	condType := fc.compileExpr(st.Cond)
	if condType.Cat != types.Bool {
		fc.fail(errs.BadOperandTypes, "while condition must be bool, got %s", condType)
	}
	jz := fc.emit(bytecode.JZ, 0)
	fc.adjust(-1)
	fc.compileStmt(st.Body)
	fc.emit(bytecode.JMP, uint32(loopStart))
	fc.patch(jz, fc.here())
}

func (fc *fnCompiler) compileReturn(st *ast.ReturnStmt) {
	if st.Value == nil {
		if !fc.sig.Return.IsVoid() {
			fc.fail(errs.MissingReturn, "bare return in a function declared to return %s", fc.sig.Return)
		}
		fc.emit(bytecode.RET, 0)
		return
	}
	valType := fc.compileExpr(st.Value)
	if fc.sig.Return.IsVoid() {
		fc.fail(errs.TypeMismatch, "void function must not return a value")
	}
	if !assignable(fc.sig.Return, valType, fc.reg.IsA) {
		fc.fail(errs.TypeMismatch, "return type %s does not match %s", valType, fc.sig.Return)
	}
	fc.emit(bytecode.RET, 0)
	fc.adjust(-1)
}

// compileAssign resolves its target as resolveVar does, except that a
// self field takes precedence over a parameter of the same name, so
// `x = x;` in a constructor stores parameter x into field x.
func (fc *fnCompiler) compileAssign(st *ast.AssignStmt) {
	loc, idx, declType, ok := fc.resolveVar(st.Name)
	if !ok {
		fc.fail(errs.UnknownVariable, "undeclared variable %q", st.Name)
	}
	if loc == locParam {
		if fidx, ftyp, isField := fc.class.DataSlot(st.Name); isField {
			loc, idx, declType = locSelf, fidx, ftyp
		}
	}
	valType := fc.compileExpr(st.Value)
	if !assignable(declType, valType, fc.reg.IsA) {
		fc.fail(errs.TypeMismatch, "cannot assign %s to %q of type %s", valType, st.Name, declType)
	}
	fc.emit(storeOpcode(loc, declType.Cat), uint32(idx))
	fc.adjust(-1)
}

func (fc *fnCompiler) compileCallStmt(st *ast.CallStmt) {
	resultType := fc.compileCall(st.Call)
	if !resultType.IsVoid() {
		fc.emit(bytecode.POP, 0)
		fc.adjust(-1)
	}
}

// assignable reports whether a value of type from may be stored into
// a location of type to: exact identity for Bool/Int/Float, and
// either-direction-subtype compatibility (or the null sentinel, an
// empty-ClassName Native) for native references.
func assignable(to, from types.PrimitiveType, isA types.IsA) bool {
	if to.Cat != types.Native {
		return types.Equal(to, from)
	}
	if from.Cat != types.Native {
		return false
	}
	if from.ClassName == "" { // null literal
		return true
	}
	return types.CompatibleNativeParam(from.ClassName, to.ClassName, isA)
}

func paramsFromTypes(types_ []types.PrimitiveType) []types.DataDecl {
	out := make([]types.DataDecl, len(types_))
	for i, t := range types_ {
		out[i] = types.DataDecl{Type: t}
	}
	return out
}

// definitelyReturns is a conservative, syntactic check that every
// control path through stmts ends in a return: true only for a
// trailing return, or a trailing if/else whose both arms definitely
// return. It does not reason about loop bodies that always execute,
// so some provably-correct programs are rejected — the same
// conservative tradeoff spec 7's MissingReturn implies.
func definitelyReturns(stmts []ast.Stmt) bool {
	if len(stmts) == 0 {
		return false
	}
	return stmtDefinitelyReturns(stmts[len(stmts)-1])
}

func stmtDefinitelyReturns(s ast.Stmt) bool {
	switch st := s.(type) {
	case *ast.ReturnStmt:
		return true
	case *ast.BlockStmt:
		return definitelyReturns(st.Stmts)
	case *ast.IfStmt:
		return st.Else != nil && stmtDefinitelyReturns(st.Then) && stmtDefinitelyReturns(st.Else)
	default:
		return false
	}
}
