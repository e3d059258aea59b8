// Package vm is the stack-based interpreter that executes compiled
// FunctionImpl bodies (spec 6, spec 9): a Frame-per-call dispatch loop,
// opcode-by-opcode switch over bytecode.Opcode, with no shared global
// stack.
package vm

import (
	"math"

	"github.com/kristofer/classvm/pkg/bytecode"
	"github.com/kristofer/classvm/pkg/errs"
	"github.com/kristofer/classvm/pkg/ir"
	"github.com/kristofer/classvm/pkg/registry"
	"github.com/kristofer/classvm/pkg/types"
)

// VM wires together the tables a running program needs: the loaded
// classes, the host's native bindings, and the live-instance table.
type VM struct {
	Registry  *registry.ClassRegistry
	Natives   registry.NativeRegistry
	Instances *InstanceRegistry
}

// New returns a VM ready to construct instances and invoke methods
// against reg. natives may be nil if the program has no native
// classes.
func New(reg *registry.ClassRegistry, natives registry.NativeRegistry) *VM {
	return &VM{Registry: reg, Natives: natives, Instances: NewInstanceRegistry()}
}

// NewWithAllocator is New, but backs every allocated instance's data
// slots with a custom Allocator (spec 12's pool swap point).
func NewWithAllocator(reg *registry.ClassRegistry, natives registry.NativeRegistry, alloc Allocator) *VM {
	return &VM{Registry: reg, Natives: natives, Instances: NewInstanceRegistryWithAllocator(alloc)}
}

// New constructs an instance of className by running the constructor
// at ctorIdx (the index pkg/compiler resolved at the call site this
// mirrors, or one an embedder picked directly by reading the class's
// Ctors()). The returned handle holds one reference owned by the
// caller; Release it when done.
func (vm *VM) New(className string, ctorIdx int, args []int32) (h Handle, err error) {
	class, ok := vm.Registry.Lookup(className)
	if !ok {
		return 0, &errs.RuntimeFault{Kind: errs.BadOpcode, Class: className, Method: "<ctor>", Msg: "unknown class"}
	}
	defer func() {
		if r := recover(); r != nil {
			h = 0
			err = faultOf(r)
		}
	}()
	h = vm.Instances.Alloc(class)
	if f := class.Factory(); f != nil {
		if ferr := f(class); ferr != nil {
			vm.Instances.Release(h)
			return 0, ferr
		}
	}
	ctor := class.CtorByIndex(ctorIdx)
	if ctor == nil {
		vm.Instances.Release(h)
		return 0, &errs.RuntimeFault{Kind: errs.BadOpcode, Class: className, Method: "<ctor>", Msg: "no such constructor index"}
	}
	if _, err := vm.invoke(ctor, class, ctorIdx, true, h, args); err != nil {
		vm.Instances.Release(h)
		return 0, err
	}
	return h, nil
}

// Invoke virtually dispatches methodName on h's actual runtime class
// and runs it to completion, returning its result (0 for void).
func (vm *VM) Invoke(h Handle, methodName string, args []int32) (result int32, err error) {
	inst, ok := vm.Instances.Get(h)
	if !ok {
		return 0, &errs.RuntimeFault{Kind: errs.NullReceiver, Method: methodName, Msg: "invoke on null or released handle"}
	}
	idx, ok := inst.Class.VTableIndex(methodName)
	if !ok {
		return 0, &errs.RuntimeFault{Kind: errs.BadOpcode, Class: inst.Class.Name, Method: methodName, Msg: "unknown method"}
	}
	defer func() {
		if r := recover(); r != nil {
			result = 0
			err = faultOf(r)
		}
	}()
	impl := inst.Class.MethodByIndex(idx)
	return vm.invoke(impl, inst.Class, idx, false, h, args)
}

func faultOf(r interface{}) error {
	if rf, ok := r.(*errs.RuntimeFault); ok {
		return rf
	}
	panic(r)
}

// invoke runs impl (native or compiled) as either a method or a
// constructor call, and returns its result (0/unused for void methods
// and for constructors, which are always void).
func (vm *VM) invoke(impl *ir.FunctionImpl, owner *ir.ClassIR, idx int, isCtor bool, self Handle, args []int32) (int32, error) {
	if impl.IsNative {
		var fn ir.NativeFunc
		var ok bool
		if isCtor {
			fn, ok = vm.Natives.Constructor(owner.Name, idx)
		} else if vm.Natives != nil {
			fn, ok = vm.Natives.Method(owner.Name, idx)
		}
		if !ok {
			errs.Fault(errs.BadOpcode, owner.Name, "<native>", 0, "no native binding for index %d", idx)
		}
		return fn(int32(self), args)
	}
	frame := newFrame(impl, impl.OwnerClass, self, args)
	return vm.run(frame)
}

// run executes one frame's bytecode to its RET and returns the value
// it leaves on the stack (0 if the stack is empty — a void return).
func (vm *VM) run(f *Frame) (int32, error) {
	for {
		if f.PC < 0 || f.PC >= len(f.Impl.Code) {
			errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "program counter ran off the end of the function")
		}
		word := f.Impl.Code[f.PC]
		op, operand := bytecode.DecodeWord(word)
		f.PC++

		var data uint32
		if bytecode.HasDataWord(op) {
			if f.PC >= len(f.Impl.Code) {
				errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "missing data word")
			}
			data = f.Impl.Code[f.PC]
			f.PC++
		}

		switch op {
		case bytecode.NOP:

		case bytecode.JMP:
			f.PC = int(operand)

		case bytecode.JZ:
			if f.pop() == 0 {
				f.PC = int(operand)
			}

		case bytecode.RET:
			if len(f.Stack) == 0 {
				return 0, nil
			}
			result := f.pop()
			if len(f.Stack) != 0 {
				errs.Fault(errs.NonEmptyResidualStack, f.className(), f.name(), f.PC, "stack has %d leftover value(s) at return", len(f.Stack))
			}
			return result, nil

		case bytecode.CALLF_SELF_G:
			args := f.popArgs(data)
			inst, ok := vm.Instances.Get(f.Self)
			if !ok {
				errs.Fault(errs.NullReceiver, f.className(), f.name(), f.PC, "self is null")
			}
			impl := inst.Class.MethodByIndex(int(operand))
			if impl == nil {
				errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "no vtable slot %d", operand)
			}
			ret, err := vm.invoke(impl, inst.Class, int(operand), false, f.Self, args)
			if err != nil {
				return 0, err
			}
			if !impl.Sig.Return.IsVoid() {
				f.push(ret)
			}

		case bytecode.CALLF_SUPER_G:
			super := f.DeclClass.Super
			if super == nil {
				errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "no superclass")
			}
			args := f.popArgs(data)
			impl := super.MethodByIndex(int(operand))
			if impl == nil {
				errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "no vtable slot %d on superclass", operand)
			}
			ret, err := vm.invoke(impl, super, int(operand), false, f.Self, args)
			if err != nil {
				return 0, err
			}
			if !impl.Sig.Return.IsVoid() {
				f.push(ret)
			}

		case bytecode.CALLF_PUSHED_G:
			args := f.popArgs(data)
			recv := Handle(f.pop())
			inst, ok := vm.Instances.Get(recv)
			if !ok {
				errs.Fault(errs.NullReceiver, f.className(), f.name(), f.PC, "receiver is null")
			}
			impl := inst.Class.MethodByIndex(int(operand))
			if impl == nil {
				errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "no vtable slot %d", operand)
			}
			ret, err := vm.invoke(impl, inst.Class, int(operand), false, recv, args)
			if err != nil {
				return 0, err
			}
			if !impl.Sig.Return.IsVoid() {
				f.push(ret)
			}

		case bytecode.CALLC_PUSHED_G:
			args := f.popArgs(data)
			recv := Handle(f.peek())
			inst, ok := vm.Instances.Get(recv)
			if !ok {
				errs.Fault(errs.NullReceiver, f.className(), f.name(), f.PC, "constructed receiver is null")
			}
			impl := inst.Class.CtorByIndex(int(operand))
			if impl == nil {
				errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "no constructor index %d", operand)
			}
			if _, err := vm.invoke(impl, inst.Class, int(operand), true, recv, args); err != nil {
				return 0, err
			}

		case bytecode.CALLC_SELF_SUPER:
			super := f.DeclClass.Super
			if super == nil {
				errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "no superclass to call super(...) on")
			}
			args := f.popArgs(data)
			impl := super.CtorByIndex(int(operand))
			if impl == nil {
				errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "no constructor index %d on superclass", operand)
			}
			if _, err := vm.invoke(impl, super, int(operand), true, f.Self, args); err != nil {
				return 0, err
			}

		case bytecode.NEW:
			if int(operand) >= len(f.Impl.NewClassNames) {
				errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "no interned class name %d", operand)
			}
			className := f.Impl.NewClassNames[operand]
			class, ok := vm.Registry.Lookup(className)
			if !ok {
				errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "unknown class %q", className)
			}
			h := vm.Instances.Alloc(class)
			if factory := class.Factory(); factory != nil {
				if err := factory(class); err != nil {
					return 0, err
				}
			}
			f.push(int32(h))

		case bytecode.STORE_SF, bytecode.STORE_SI, bytecode.STORE_SB:
			v := f.pop()
			inst := vm.selfInstance(f)
			inst.Data[operand] = v

		case bytecode.STORE_SN:
			v := f.pop()
			inst := vm.selfInstance(f)
			declType := inst.Class.EffectiveData()[operand].Type
			vm.storeNativeSlot(f, declType, inst.Data[operand], v)
			inst.Data[operand] = v

		case bytecode.STORE_LF, bytecode.STORE_LI, bytecode.STORE_LB:
			f.Locals[operand] = f.pop()

		case bytecode.STORE_LN:
			v := f.pop()
			declType := f.Impl.Locals[operand].Type
			vm.storeNativeSlot(f, declType, f.Locals[operand], v)
			f.Locals[operand] = v

		case bytecode.STORE_PF, bytecode.STORE_PI, bytecode.STORE_PB:
			f.Params[operand] = f.pop()

		case bytecode.STORE_PN:
			v := f.pop()
			declType := f.Impl.Sig.Params[operand].Type
			vm.storeNativeSlot(f, declType, f.Params[operand], v)
			f.Params[operand] = v

		case bytecode.FETCH_SF, bytecode.FETCH_SI, bytecode.FETCH_SB, bytecode.FETCH_SN:
			inst := vm.selfInstance(f)
			f.push(inst.Data[operand])

		case bytecode.FETCH_LF, bytecode.FETCH_LI, bytecode.FETCH_LB, bytecode.FETCH_LN:
			f.push(f.Locals[operand])

		case bytecode.FETCH_PF, bytecode.FETCH_PI, bytecode.FETCH_PB, bytecode.FETCH_PN:
			f.push(f.Params[operand])

		case bytecode.PUSHF, bytecode.PUSHI:
			f.push(int32(data))

		case bytecode.PUSHB:
			f.push(int32(operand))

		case bytecode.POP:
			f.pop()

		case bytecode.NEGF:
			f.push(fromFloat(-asFloat(f.pop())))

		case bytecode.NEGI:
			f.push(-f.pop())

		case bytecode.NOT:
			if f.pop() == 0 {
				f.push(1)
			} else {
				f.push(0)
			}

		case bytecode.ADDII, bytecode.ADDFF, bytecode.ADDFI, bytecode.ADDIF,
			bytecode.SUBII, bytecode.SUBFF, bytecode.SUBFI, bytecode.SUBIF,
			bytecode.MULII, bytecode.MULFF, bytecode.MULFI, bytecode.MULIF,
			bytecode.DIVII, bytecode.DIVFF, bytecode.DIVFI, bytecode.DIVIF:
			b := f.pop()
			a := f.pop()
			f.push(arith(op, a, b, f))

		case bytecode.MOD:
			b := f.pop()
			a := f.pop()
			if b == 0 {
				errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "modulo by zero")
			}
			f.push(a % b)

		case bytecode.EQII, bytecode.EQFF, bytecode.EQFI, bytecode.EQIF, bytecode.EQBB,
			bytecode.LTII, bytecode.LTFF, bytecode.LTFI, bytecode.LTIF,
			bytecode.LTEQII, bytecode.LTEQFF, bytecode.LTEQFI, bytecode.LTEQIF,
			bytecode.GTII, bytecode.GTFF, bytecode.GTFI, bytecode.GTIF,
			bytecode.GTEQII, bytecode.GTEQFF, bytecode.GTEQFI, bytecode.GTEQIF:
			b := f.pop()
			a := f.pop()
			f.push(boolToInt(compare(op, a, b)))

		case bytecode.AND:
			b := f.pop()
			a := f.pop()
			f.push(boolToInt(a != 0 && b != 0))

		case bytecode.OR:
			b := f.pop()
			a := f.pop()
			f.push(boolToInt(a != 0 || b != 0))

		default:
			errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "unrecognized opcode %s", op)
		}
	}
}

func (vm *VM) selfInstance(f *Frame) *Instance {
	inst, ok := vm.Instances.Get(f.Self)
	if !ok {
		errs.Fault(errs.NullReceiver, f.className(), f.name(), f.PC, "self is null")
	}
	return inst
}

// storeNativeSlot applies spec 9's native-store discipline: the
// runtime subtype check a permissive either-direction compile-time
// check can't fully rule out, and CountedPtr-style refcounting of the
// persistent slot being overwritten.
func (vm *VM) storeNativeSlot(f *Frame, declType types.PrimitiveType, old, newVal int32) {
	newH := Handle(newVal)
	if newH != 0 && declType.ClassName != "" {
		inst, ok := vm.Instances.Get(newH)
		if !ok {
			errs.Fault(errs.NullReceiver, f.className(), f.name(), f.PC, "stored handle does not refer to a live instance")
		}
		if !inst.Class.IsA(declType.ClassName) {
			errs.Fault(errs.NativeStoreTypeMismatch, f.className(), f.name(), f.PC,
				"cannot store a %s where %s was declared", inst.Class.Name, declType.ClassName)
		}
	}
	if newH != 0 {
		vm.Instances.Retain(newH)
	}
	if oldH := Handle(old); oldH != 0 {
		vm.Instances.Release(oldH)
	}
}

func asFloat(v int32) float32   { return math.Float32frombits(uint32(v)) }
func fromFloat(v float32) int32 { return int32(math.Float32bits(v)) }

func boolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func arith(op bytecode.Opcode, a, b int32, f *Frame) int32 {
	switch op {
	case bytecode.ADDII:
		return a + b
	case bytecode.ADDFF:
		return fromFloat(asFloat(a) + asFloat(b))
	case bytecode.ADDFI:
		return fromFloat(asFloat(a) + float32(b))
	case bytecode.ADDIF:
		return fromFloat(float32(a) + asFloat(b))
	case bytecode.SUBII:
		return a - b
	case bytecode.SUBFF:
		return fromFloat(asFloat(a) - asFloat(b))
	case bytecode.SUBFI:
		return fromFloat(asFloat(a) - float32(b))
	case bytecode.SUBIF:
		return fromFloat(float32(a) - asFloat(b))
	case bytecode.MULII:
		return a * b
	case bytecode.MULFF:
		return fromFloat(asFloat(a) * asFloat(b))
	case bytecode.MULFI:
		return fromFloat(asFloat(a) * float32(b))
	case bytecode.MULIF:
		return fromFloat(float32(a) * asFloat(b))
	case bytecode.DIVII:
		if b == 0 {
			errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "integer division by zero")
		}
		return a / b
	case bytecode.DIVFF:
		return fromFloat(asFloat(a) / asFloat(b))
	case bytecode.DIVFI:
		return fromFloat(asFloat(a) / float32(b))
	case bytecode.DIVIF:
		return fromFloat(float32(a) / asFloat(b))
	default:
		errs.Fault(errs.BadOpcode, f.className(), f.name(), f.PC, "not an arithmetic opcode: %s", op)
		return 0
	}
}

func compare(op bytecode.Opcode, a, b int32) bool {
	switch op {
	case bytecode.EQII:
		return a == b
	case bytecode.EQFF:
		return asFloat(a) == asFloat(b)
	case bytecode.EQFI:
		return asFloat(a) == float32(b)
	case bytecode.EQIF:
		return float32(a) == asFloat(b)
	case bytecode.EQBB:
		return a == b
	case bytecode.LTII:
		return a < b
	case bytecode.LTFF:
		return asFloat(a) < asFloat(b)
	case bytecode.LTFI:
		return asFloat(a) < float32(b)
	case bytecode.LTIF:
		return float32(a) < asFloat(b)
	case bytecode.LTEQII:
		return a <= b
	case bytecode.LTEQFF:
		return asFloat(a) <= asFloat(b)
	case bytecode.LTEQFI:
		return asFloat(a) <= float32(b)
	case bytecode.LTEQIF:
		return float32(a) <= asFloat(b)
	case bytecode.GTII:
		return a > b
	case bytecode.GTFF:
		return asFloat(a) > asFloat(b)
	case bytecode.GTFI:
		return asFloat(a) > float32(b)
	case bytecode.GTIF:
		return float32(a) > asFloat(b)
	case bytecode.GTEQII:
		return a >= b
	case bytecode.GTEQFF:
		return asFloat(a) >= asFloat(b)
	case bytecode.GTEQFI:
		return asFloat(a) >= float32(b)
	case bytecode.GTEQIF:
		return float32(a) >= asFloat(b)
	default:
		return false
	}
}
