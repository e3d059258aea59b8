package vm

import (
	"strings"
	"testing"

	"github.com/kristofer/classvm/pkg/bytecode"
	"github.com/kristofer/classvm/pkg/compiler"
	"github.com/kristofer/classvm/pkg/decl"
	"github.com/kristofer/classvm/pkg/errs"
	"github.com/kristofer/classvm/pkg/ir"
	"github.com/kristofer/classvm/pkg/source"
	"github.com/kristofer/classvm/pkg/vm/pool"
)

func build(t *testing.T, srcs map[string]string, entry string) *decl.Program {
	t.Helper()
	prog, err := decl.Resolve(source.MapLoader(srcs), []string{entry})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := compiler.CompileProgram(prog); err != nil {
		t.Fatalf("compile: %v", err)
	}
	return prog
}

// S1: typed arithmetic, exact-match assignment, no implicit promotion
// outside the fused opcodes.
func TestVMArithmetic(t *testing.T) {
	prog := build(t, map[string]string{
		"Calc": `
class Calc {
	Calc() {}
	int add(int a, int b) {
		int total;
		total = a + b * 2;
		return total;
	}
}
`,
	}, "Calc")

	v := New(prog.Registry, nil)
	h, err := v.New("Calc", 0, nil)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	result, err := v.Invoke(h, "add", []int32{3, 4})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result != 11 {
		t.Fatalf("want 11, got %d", result)
	}
}

// S2: control flow — if/while with backpatched jumps.
func TestVMControlFlow(t *testing.T) {
	prog := build(t, map[string]string{
		"Loop": `
class Loop {
	Loop() {}
	int sumTo(int n) {
		int total;
		int i;
		total = 0;
		i = 0;
		while (i < n) {
			if (i == 3) {
				i = i + 1;
			} else {
				total = total + i;
				i = i + 1;
			}
		}
		return total;
	}
}
`,
	}, "Loop")

	v := New(prog.Registry, nil)
	h, err := v.New("Loop", 0, nil)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	result, err := v.Invoke(h, "sumTo", []int32{5})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	// i=0..4, skipping the +=i step exactly when i==3: 0+1+2+4 = 7.
	if result != 7 {
		t.Fatalf("want 7, got %d", result)
	}
}

// S3 + S4: override-in-place virtual dispatch, and an overriding
// method calling its superclass implementation via super.
func TestVMOverrideAndSuperCall(t *testing.T) {
	prog := build(t, map[string]string{
		"Base": `
class Base {
	Base() {}
	int speak() { return 1; }
}
`,
		"Derived": `
class Derived extends Base {
	Derived() { super(); }
	int speak() { return super.speak() + 1; }
}
`,
	}, "Derived")

	v := New(prog.Registry, nil)
	h, err := v.New("Derived", 0, nil)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	result, err := v.Invoke(h, "speak", nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result != 2 {
		t.Fatalf("want 2, got %d", result)
	}
}

// S5: constructor chaining through super(...), with inherited and own
// fields sharing one flattened data layout.
func TestVMConstructorChaining(t *testing.T) {
	prog := build(t, map[string]string{
		"Point": `
class Point {
	int x;
	Point(int x) { x = x; }
	int getX() { return x; }
}
`,
		"Point3D": `
class Point3D extends Point {
	int z;
	Point3D(int x, int z) { super(x); z = z; }
	int getZ() { return z; }
}
`,
	}, "Point3D")

	v := New(prog.Registry, nil)
	h, err := v.New("Point3D", 0, []int32{5, 9})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	x, err := v.Invoke(h, "getX", nil)
	if err != nil {
		t.Fatalf("getX: %v", err)
	}
	if x != 5 {
		t.Fatalf("want x=5, got %d", x)
	}
	z, err := v.Invoke(h, "getZ", nil)
	if err != nil {
		t.Fatalf("getZ: %v", err)
	}
	if z != 9 {
		t.Fatalf("want z=9, got %d", z)
	}
}

// new ClassName(args) as an expression: the constructed handle is the
// expression's value, then a chained .method() call runs against it.
func TestVMNewExpressionAndChainedCall(t *testing.T) {
	prog := build(t, map[string]string{
		"Point": `
class Point {
	int x;
	Point(int x) { x = x; }
	int getX() { return x; }
}
`,
		"App": `
import Point;
class App {
	App() {}
	int run() {
		return new Point(41).getX();
	}
}
`,
	}, "App")

	v := New(prog.Registry, nil)
	h, err := v.New("App", 0, nil)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	result, err := v.Invoke(h, "run", nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result != 41 {
		t.Fatalf("want 41, got %d", result)
	}
}

// Calling a method on a never-initialized (null) native field is a
// RuntimeFault, not a Go panic escaping the VM.
func TestVMNullReceiverFault(t *testing.T) {
	prog := build(t, map[string]string{
		"Box": `
class Box {
	Box() {}
	int getX() { return 1; }
}
`,
		"Caller": `
import Box;
class Caller {
	Box b;
	Caller() {}
	int call() { return b.getX(); }
}
`,
	}, "Caller")

	v := New(prog.Registry, nil)
	h, err := v.New("Caller", 0, nil)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	_, err = v.Invoke(h, "call", nil)
	if err == nil {
		t.Fatalf("expected a fault calling a method on a null receiver")
	}
	rf, ok := err.(*errs.RuntimeFault)
	if !ok || rf.Kind != errs.NullReceiver {
		t.Fatalf("want a NullReceiver RuntimeFault, got %v", err)
	}
}

// A permissive, either-direction-compatible compile-time assignment
// can still smuggle the wrong concrete subtype through; the VM catches
// it at store time rather than corrupting the field.
func TestVMNativeStoreSubtypeMismatchFault(t *testing.T) {
	prog := build(t, map[string]string{
		"Animal": `
class Animal {
	Animal() {}
}
`,
		"Dog": `
class Dog extends Animal {
	Dog() { super(); }
}
`,
		"Cat": `
class Cat extends Animal {
	Cat() { super(); }
}
`,
		"Kennel": `
import Animal;
import Dog;
import Cat;
class Kennel {
	Dog d;
	Kennel() {}
	void put(Animal a) { d = a; }
}
`,
	}, "Kennel")

	v := New(prog.Registry, nil)
	kennel, err := v.New("Kennel", 0, nil)
	if err != nil {
		t.Fatalf("construct Kennel: %v", err)
	}
	cat, err := v.New("Cat", 0, nil)
	if err != nil {
		t.Fatalf("construct Cat: %v", err)
	}
	_, err = v.Invoke(kennel, "put", []int32{int32(cat)})
	if err == nil {
		t.Fatalf("expected a NativeStoreTypeMismatch fault storing a Cat into a Dog field")
	}
	rf, ok := err.(*errs.RuntimeFault)
	if !ok || rf.Kind != errs.NativeStoreTypeMismatch {
		t.Fatalf("want NativeStoreTypeMismatch, got %v", err)
	}
}

func TestInstanceRegistryRefcounting(t *testing.T) {
	reg := NewInstanceRegistry()
	class := ir.New("Thing", false, nil)
	class.Build()

	h := reg.Alloc(class)
	if reg.Live() != 1 {
		t.Fatalf("want 1 live instance, got %d", reg.Live())
	}
	reg.Retain(h)
	reg.Release(h)
	if _, ok := reg.Get(h); !ok {
		t.Fatalf("instance should survive a retain/release pair")
	}
	reg.Release(h)
	if _, ok := reg.Get(h); ok {
		t.Fatalf("instance should be freed once its refcount reaches zero")
	}
	if reg.Live() != 0 {
		t.Fatalf("want 0 live instances after release, got %d", reg.Live())
	}
}

func TestInstanceRegistryNullHandleIsNoop(t *testing.T) {
	reg := NewInstanceRegistry()
	reg.Retain(0)
	reg.Release(0)
	if _, ok := reg.Get(0); ok {
		t.Fatalf("the null handle should never resolve to an instance")
	}
}

func TestVMUnknownMethodIsFault(t *testing.T) {
	prog := build(t, map[string]string{
		"Empty": `
class Empty {
	Empty() {}
}
`,
	}, "Empty")

	v := New(prog.Registry, nil)
	h, err := v.New("Empty", 0, nil)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	_, err = v.Invoke(h, "nope", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown method") {
		t.Fatalf("want an unknown-method error, got %v", err)
	}
}

// NOP, PUSHF, PUSHB, and POP never appear in the compiler-generated
// code the tests above run (none of them has a float or bool literal
// or a call statement whose result is discarded, and the compiler
// never emits NOP), so this hand-assembles a frame directly to
// exercise those stack primitives, together with PUSHI, from spec §6.
func TestVMStackPrimitivesDirect(t *testing.T) {
	impl := &ir.FunctionImpl{
		Code: []uint32{
			bytecode.EncodeWord(bytecode.NOP, 0),
			bytecode.EncodeWord(bytecode.PUSHI, 0), 42,
			bytecode.EncodeWord(bytecode.POP, 0),
			bytecode.EncodeWord(bytecode.PUSHB, 1),
			bytecode.EncodeWord(bytecode.POP, 0),
			bytecode.EncodeWord(bytecode.PUSHF, 0), uint32(fromFloat(2.5)),
			bytecode.EncodeWord(bytecode.RET, 0),
		},
		MaxStack: 2,
	}
	f := newFrame(impl, nil, 0, nil)
	v := &VM{}
	result, err := v.run(f)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := asFloat(result); got != 2.5 {
		t.Fatalf("want 2.5, got %v", got)
	}
}

// runExpectFault runs f and requires a panic carrying a *errs.RuntimeFault
// of the given kind — the internal-assertion faults below only ever fire
// against hand-assembled bytecode that a real compiler would never emit,
// so there is no way to reach them through vm.New/vm.Invoke's normal
// recover path in a single call.
func runExpectFault(t *testing.T, f *Frame, want errs.FaultKind) {
	t.Helper()
	v := &VM{}
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected a panic carrying a RuntimeFault, got none")
		}
		rf, ok := r.(*errs.RuntimeFault)
		if !ok || rf.Kind != want {
			t.Fatalf("want fault %s, got %v", want, r)
		}
	}()
	v.run(f)
}

// A stray POP on an empty stack is the internal invariant StackUnderflow
// exists to catch.
func TestVMStackUnderflowFault(t *testing.T) {
	impl := &ir.FunctionImpl{
		Code:     []uint32{bytecode.EncodeWord(bytecode.POP, 0)},
		MaxStack: 1,
	}
	runExpectFault(t, newFrame(impl, nil, 0, nil), errs.StackUnderflow)
}

// Pushing past a function's declared MaxStack is the internal invariant
// StackOverflow exists to catch.
func TestVMStackOverflowFault(t *testing.T) {
	impl := &ir.FunctionImpl{
		Code: []uint32{
			bytecode.EncodeWord(bytecode.PUSHI, 0), 1,
			bytecode.EncodeWord(bytecode.PUSHI, 0), 2,
		},
		MaxStack: 1,
	}
	runExpectFault(t, newFrame(impl, nil, 0, nil), errs.StackOverflow)
}

// An opcode value past the end of the table is BadOpcode.
func TestVMBadOpcodeFault(t *testing.T) {
	impl := &ir.FunctionImpl{
		Code:     []uint32{bytecode.EncodeWord(bytecode.Opcode(255), 0)},
		MaxStack: 1,
	}
	runExpectFault(t, newFrame(impl, nil, 0, nil), errs.BadOpcode)
}

// RET must consume exactly the one value it returns; a body that
// leaves extra values behind trips NonEmptyResidualStack.
func TestVMNonEmptyResidualStackFault(t *testing.T) {
	impl := &ir.FunctionImpl{
		Code: []uint32{
			bytecode.EncodeWord(bytecode.PUSHI, 0), 1,
			bytecode.EncodeWord(bytecode.PUSHI, 0), 2,
			bytecode.EncodeWord(bytecode.RET, 0),
		},
		MaxStack: 2,
	}
	runExpectFault(t, newFrame(impl, nil, 0, nil), errs.NonEmptyResidualStack)
}

// NewWithAllocator lets an embedder back every instance's field slots
// with pkg/vm/pool's mmap-backed arena instead of a discrete Go slice
// per object; behavior must be identical to the default allocator.
func TestVMWithPoolAllocator(t *testing.T) {
	prog := build(t, map[string]string{
		"Point": `
class Point {
	int x;
	int y;
	Point(int x, int y) { x = x; y = y; }
	int sum() { return x + y; }
}
`,
	}, "Point")

	p, err := pool.Open(256)
	if err != nil {
		t.Fatalf("pool.Open: %v", err)
	}
	defer p.Close()

	v := NewWithAllocator(prog.Registry, nil, p)
	h, err := v.New("Point", 0, []int32{3, 4})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	result, err := v.Invoke(h, "sum", nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result != 7 {
		t.Fatalf("want 7, got %d", result)
	}
	if p.Used() == 0 {
		t.Fatalf("want the pool to have carved out Point's field slots")
	}
}
