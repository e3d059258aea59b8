package compiler

import (
	"math"
	"strconv"

	"github.com/kristofer/classvm/pkg/ast"
	"github.com/kristofer/classvm/pkg/bytecode"
	"github.com/kristofer/classvm/pkg/errs"
	"github.com/kristofer/classvm/pkg/ir"
	"github.com/kristofer/classvm/pkg/token"
	"github.com/kristofer/classvm/pkg/types"
)

// compileExpr walks a postfix ExprSrc left to right, emitting
// bytecode and maintaining a parallel compile-time type stack so each
// operator can pick its correctly-typed opcode (spec 6's typed
// arithmetic/comparison families). It returns the type of the single
// value the expression leaves on the stack.
func (fc *fnCompiler) compileExpr(e *ast.ExprSrc) types.PrimitiveType {
	var stack []types.PrimitiveType
	push := func(t types.PrimitiveType) { stack = append(stack, t) }
	pop := func() types.PrimitiveType {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return t
	}

	for _, item := range e.Items {
		if item.Call != nil {
			t := fc.compileCall(item.Call)
			if t.IsVoid() {
				fc.fail(errs.BadOperandTypes, "a void call cannot be used as a value")
			}
			push(t)
			continue
		}

		switch item.Tok {
		case token.IntLit:
			v, err := strconv.ParseInt(item.Lit, 10, 32)
			if err != nil {
				fc.fail(errs.Parse, "invalid integer literal %q", item.Lit)
			}
			fc.emitData(bytecode.PUSHI, 0, uint32(int32(v)))
			fc.adjust(1)
			push(types.PrimitiveType{Cat: types.Int})

		case token.FloatLit:
			v, err := strconv.ParseFloat(item.Lit, 32)
			if err != nil {
				fc.fail(errs.Parse, "invalid float literal %q", item.Lit)
			}
			fc.emitData(bytecode.PUSHF, 0, math.Float32bits(float32(v)))
			fc.adjust(1)
			push(types.PrimitiveType{Cat: types.Float})

		case token.True, token.False:
			var operand uint32
			if item.Tok == token.True {
				operand = 1
			}
			fc.emit(bytecode.PUSHB, operand)
			fc.adjust(1)
			push(types.PrimitiveType{Cat: types.Bool})

		case token.Null:
			fc.emitData(bytecode.PUSHI, 0, 0)
			fc.adjust(1)
			push(types.PrimitiveType{Cat: types.Native}) // empty ClassName: the null sentinel

		case token.Ident:
			loc, idx, typ, ok := fc.resolveVar(item.Lit)
			if !ok {
				fc.fail(errs.UnknownVariable, "undeclared variable %q", item.Lit)
			}
			fc.emit(fetchOpcode(loc, typ.Cat), uint32(idx))
			fc.adjust(1)
			push(typ)

		case token.Plus, token.Minus, token.Star, token.Slash, token.Percent:
			b := pop()
			a := pop()
			push(fc.compileArith(item.Tok, a, b))

		case token.Lt, token.LtEq, token.Gt, token.GtEq:
			b := pop()
			a := pop()
			push(fc.compileCompare(item.Tok, a, b))

		case token.EqEq, token.NotEq:
			b := pop()
			a := pop()
			push(fc.compileEquality(item.Tok, a, b))

		case token.AndAnd, token.OrOr:
			b := pop()
			a := pop()
			if a.Cat != types.Bool || b.Cat != types.Bool {
				fc.fail(errs.BadOperandTypes, "%s requires bool operands, got %s and %s", item.Tok, a, b)
			}
			op := bytecode.AND
			if item.Tok == token.OrOr {
				op = bytecode.OR
			}
			fc.emit(op, 0)
			fc.adjust(-1)
			push(types.PrimitiveType{Cat: types.Bool})

		case token.UnaryMinus:
			a := pop()
			if !a.IsNumeric() {
				fc.fail(errs.BadOperandTypes, "unary - requires a numeric operand, got %s", a)
			}
			op := bytecode.NEGI
			if a.Cat == types.Float {
				op = bytecode.NEGF
			}
			fc.emit(op, 0)
			push(a)

		case token.Bang:
			a := pop()
			if a.Cat != types.Bool {
				fc.fail(errs.BadOperandTypes, "! requires a bool operand, got %s", a)
			}
			fc.emit(bytecode.NOT, 0)
			push(a)

		default:
			fc.fail(errs.Parse, "unsupported expression token %s", item.Tok)
		}
	}

	if len(stack) != 1 {
		fc.fail(errs.Parse, "expression does not reduce to a single value")
	}
	return stack[0]
}

func (fc *fnCompiler) compileArith(tok token.Kind, a, b types.PrimitiveType) types.PrimitiveType {
	if tok == token.Percent {
		if a.Cat != types.Int || b.Cat != types.Int {
			fc.fail(errs.BadOperandTypes, "%% requires int operands, got %s and %s", a, b)
		}
		fc.emit(bytecode.MOD, 0)
		fc.adjust(-1)
		return types.PrimitiveType{Cat: types.Int}
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		fc.fail(errs.BadOperandTypes, "%s requires numeric operands, got %s and %s", tok, a, b)
	}
	var ii, ff, fi, ifx bytecode.Opcode
	switch tok {
	case token.Plus:
		ii, ff, fi, ifx = bytecode.ADDII, bytecode.ADDFF, bytecode.ADDFI, bytecode.ADDIF
	case token.Minus:
		ii, ff, fi, ifx = bytecode.SUBII, bytecode.SUBFF, bytecode.SUBFI, bytecode.SUBIF
	case token.Star:
		ii, ff, fi, ifx = bytecode.MULII, bytecode.MULFF, bytecode.MULFI, bytecode.MULIF
	case token.Slash:
		ii, ff, fi, ifx = bytecode.DIVII, bytecode.DIVFF, bytecode.DIVFI, bytecode.DIVIF
	}
	fc.emit(pickByCat(a.Cat, b.Cat, ii, ff, fi, ifx), 0)
	fc.adjust(-1)
	result := types.Int
	if a.Cat == types.Float || b.Cat == types.Float {
		result = types.Float
	}
	return types.PrimitiveType{Cat: result}
}

func (fc *fnCompiler) compileCompare(tok token.Kind, a, b types.PrimitiveType) types.PrimitiveType {
	if !a.IsNumeric() || !b.IsNumeric() {
		fc.fail(errs.BadOperandTypes, "%s requires numeric operands, got %s and %s", tok, a, b)
	}
	var ii, ff, fi, ifx bytecode.Opcode
	switch tok {
	case token.Lt:
		ii, ff, fi, ifx = bytecode.LTII, bytecode.LTFF, bytecode.LTFI, bytecode.LTIF
	case token.LtEq:
		ii, ff, fi, ifx = bytecode.LTEQII, bytecode.LTEQFF, bytecode.LTEQFI, bytecode.LTEQIF
	case token.Gt:
		ii, ff, fi, ifx = bytecode.GTII, bytecode.GTFF, bytecode.GTFI, bytecode.GTIF
	case token.GtEq:
		ii, ff, fi, ifx = bytecode.GTEQII, bytecode.GTEQFF, bytecode.GTEQFI, bytecode.GTEQIF
	}
	fc.emit(pickByCat(a.Cat, b.Cat, ii, ff, fi, ifx), 0)
	fc.adjust(-1)
	return types.PrimitiveType{Cat: types.Bool}
}

// compileEquality handles == directly; != is compiled as the matching
// == family opcode followed by NOT (an explicit Open Question
// decision: the source represents "not equal" exactly this way rather
// than adding a dedicated NEQ* opcode family).
func (fc *fnCompiler) compileEquality(tok token.Kind, a, b types.PrimitiveType) types.PrimitiveType {
	var op bytecode.Opcode
	switch {
	case a.Cat == types.Bool && b.Cat == types.Bool:
		op = bytecode.EQBB
	case a.IsNumeric() && b.IsNumeric():
		op = pickByCat(a.Cat, b.Cat, bytecode.EQII, bytecode.EQFF, bytecode.EQFI, bytecode.EQIF)
	default:
		fc.fail(errs.BadOperandTypes, "== requires two bools or two numbers, got %s and %s", a, b)
	}
	fc.emit(op, 0)
	fc.adjust(-1)
	if tok == token.NotEq {
		fc.emit(bytecode.NOT, 0)
	}
	return types.PrimitiveType{Cat: types.Bool}
}

func pickByCat(a, b types.Category, ii, ff, fi, ifx bytecode.Opcode) bytecode.Opcode {
	switch {
	case a == types.Int && b == types.Int:
		return ii
	case a == types.Float && b == types.Float:
		return ff
	case a == types.Float && b == types.Int:
		return fi
	case a == types.Int && b == types.Float:
		return ifx
	default:
		return bytecode.INVALID
	}
}

func fetchOpcode(loc varLoc, cat types.Category) bytecode.Opcode {
	switch loc {
	case locSelf:
		return pickByLoc(cat, bytecode.FETCH_SF, bytecode.FETCH_SI, bytecode.FETCH_SB, bytecode.FETCH_SN)
	case locLocal:
		return pickByLoc(cat, bytecode.FETCH_LF, bytecode.FETCH_LI, bytecode.FETCH_LB, bytecode.FETCH_LN)
	default:
		return pickByLoc(cat, bytecode.FETCH_PF, bytecode.FETCH_PI, bytecode.FETCH_PB, bytecode.FETCH_PN)
	}
}

func storeOpcode(loc varLoc, cat types.Category) bytecode.Opcode {
	switch loc {
	case locSelf:
		return pickByLoc(cat, bytecode.STORE_SF, bytecode.STORE_SI, bytecode.STORE_SB, bytecode.STORE_SN)
	case locLocal:
		return pickByLoc(cat, bytecode.STORE_LF, bytecode.STORE_LI, bytecode.STORE_LB, bytecode.STORE_LN)
	default:
		return pickByLoc(cat, bytecode.STORE_PF, bytecode.STORE_PI, bytecode.STORE_PB, bytecode.STORE_PN)
	}
}

func pickByLoc(cat types.Category, f, i, b, n bytecode.Opcode) bytecode.Opcode {
	switch cat {
	case types.Float:
		return f
	case types.Int:
		return i
	case types.Bool:
		return b
	default:
		return n
	}
}

// --- calls -------------------------------------------------------------

// compileCall compiles any call expression, including its chained
// links, and returns the type left on the stack by the last link (or
// by the head call, if there is no chain).
func (fc *fnCompiler) compileCall(call *ast.CallSrc) types.PrimitiveType {
	var result types.PrimitiveType
	switch call.Kind {
	case ast.CallSelf:
		idx, ok := fc.class.VTableIndex(call.Name)
		if !ok {
			fc.fail(errs.UnknownFunction, "unknown method %q", call.Name)
		}
		sig := fc.class.MethodByIndex(idx).Sig
		argTypes := fc.compileArgs(call.Args)
		fc.checkArgs(sig.Params, argTypes)
		fc.emitData(bytecode.CALLF_SELF_G, uint32(idx), uint32(len(call.Args)))
		fc.adjust(-len(call.Args) + pushCount(sig.Return))
		result = sig.Return

	case ast.CallSuper:
		if fc.class.Super == nil {
			fc.fail(errs.UnknownFunction, "%q has no superclass to call super.%s on", fc.classSrc.Name, call.Name)
		}
		idx, ok := fc.class.Super.VTableIndex(call.Name)
		if !ok {
			fc.fail(errs.UnknownFunction, "unknown method %q on superclass %q", call.Name, fc.class.Super.Name)
		}
		sig := fc.class.Super.MethodByIndex(idx).Sig
		argTypes := fc.compileArgs(call.Args)
		fc.checkArgs(sig.Params, argTypes)
		fc.emitData(bytecode.CALLF_SUPER_G, uint32(idx), uint32(len(call.Args)))
		fc.adjust(-len(call.Args) + pushCount(sig.Return))
		result = sig.Return

	case ast.CallPushed:
		recvType := fc.compileExpr(call.Receiver)
		sig, idx := fc.resolveOn(recvType, call.Name)
		argTypes := fc.compileArgs(call.Args)
		fc.checkArgs(sig.Params, argTypes)
		fc.emitData(bytecode.CALLF_PUSHED_G, uint32(idx), uint32(len(call.Args)))
		fc.adjust(-(len(call.Args) + 1) + pushCount(sig.Return))
		result = sig.Return

	case ast.CallNew:
		classIR, ok := fc.reg.Lookup(call.ClassName)
		if !ok {
			fc.fail(errs.UnknownType, "unknown class %q", call.ClassName)
		}
		fc.emit(bytecode.NEW, fc.internClassName(call.ClassName))
		fc.adjust(1)
		argTypes := fc.compileArgs(call.Args)
		ctorIdx, _ := resolveCtor(classIR, argTypes, fc.reg.IsA)
		if ctorIdx < 0 {
			fc.fail(errs.UnknownFunction, "no constructor on %q matches the given arguments", call.ClassName)
		}
		fc.emitData(bytecode.CALLC_PUSHED_G, uint32(ctorIdx), uint32(len(call.Args)))
		fc.adjust(-len(call.Args))
		result = types.PrimitiveType{Cat: types.Native, ClassName: call.ClassName}

	default:
		fc.fail(errs.Parse, "a super(...) base call is only valid as a constructor's leading statement")
	}

	for _, link := range call.Chain {
		result = fc.compileChainLink(result, link)
	}
	return result
}

func (fc *fnCompiler) compileChainLink(recvType types.PrimitiveType, link *ast.ChainedCall) types.PrimitiveType {
	sig, idx := fc.resolveOn(recvType, link.Name)
	argTypes := fc.compileArgs(link.Args)
	fc.checkArgs(sig.Params, argTypes)
	fc.emitData(bytecode.CALLF_PUSHED_G, uint32(idx), uint32(len(link.Args)))
	fc.adjust(-(len(link.Args) + 1) + pushCount(sig.Return))
	return sig.Return
}

// resolveOn looks up a method by name on the class a Native-typed
// value statically refers to — the common lookup both a pushed-
// receiver call and a chain link need.
func (fc *fnCompiler) resolveOn(recvType types.PrimitiveType, name string) (types.FunctionSig, int) {
	if recvType.Cat != types.Native || recvType.ClassName == "" {
		fc.fail(errs.BadOperandTypes, "cannot call %q on a non-object value", name)
	}
	class, ok := fc.reg.Lookup(recvType.ClassName)
	if !ok {
		fc.fail(errs.UnknownType, "unknown class %q", recvType.ClassName)
	}
	idx, ok := class.VTableIndex(name)
	if !ok {
		fc.fail(errs.UnknownFunction, "unknown method %q on class %q", name, recvType.ClassName)
	}
	return class.MethodByIndex(idx).Sig, idx
}

func (fc *fnCompiler) compileArgs(args []*ast.ExprSrc) []types.PrimitiveType {
	out := make([]types.PrimitiveType, len(args))
	for i, a := range args {
		out[i] = fc.compileExpr(a)
	}
	return out
}

func (fc *fnCompiler) checkArgs(params []types.DataDecl, argTypes []types.PrimitiveType) {
	if len(params) != len(argTypes) {
		fc.fail(errs.ArityMismatch, "want %d argument(s), got %d", len(params), len(argTypes))
	}
	for i, p := range params {
		if !assignable(p.Type, argTypes[i], fc.reg.IsA) {
			fc.fail(errs.TypeMismatch, "argument %d: want %s, got %s", i+1, p.Type, argTypes[i])
		}
	}
}

func pushCount(ret types.PrimitiveType) int {
	if ret.IsVoid() {
		return 0
	}
	return 1
}

// resolveCtor picks the constructor on class whose parameters accept
// argTypes, by the same either-direction-subtype compatibility rule
// spec 3 applies when checking for ambiguity (pkg/decl has already
// ensured at most one constructor can match a given call). Returns -1
// if none matches.
func resolveCtor(class *ir.ClassIR, argTypes []types.PrimitiveType, isA types.IsA) (int, types.FunctionSig) {
	for i, ctor := range class.Ctors() {
		if len(ctor.Sig.Params) != len(argTypes) {
			continue
		}
		match := true
		for j, p := range ctor.Sig.Params {
			if !assignable(p.Type, argTypes[j], isA) {
				match = false
				break
			}
		}
		if match {
			return i, ctor.Sig
		}
	}
	return -1, types.FunctionSig{}
}
