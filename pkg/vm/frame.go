package vm

import (
	"github.com/kristofer/classvm/pkg/errs"
	"github.com/kristofer/classvm/pkg/ir"
)

// Frame is one activation of a compiled method or constructor body.
// DeclClass is the class that textually owns Impl (ir.FunctionImpl's
// OwnerClass) — distinct from Self's actual runtime class — and is
// what CALLF_SUPER_G/CALLC_SELF_SUPER resolve against, so that super
// always means "the implementation one level above whoever wrote this
// body," regardless of which subclass's instance is executing it.
type Frame struct {
	Impl      *ir.FunctionImpl
	DeclClass *ir.ClassIR
	Self      Handle

	Params []int32
	Locals []int32
	Stack  []int32
	PC     int
}

func newFrame(impl *ir.FunctionImpl, declClass *ir.ClassIR, self Handle, args []int32) *Frame {
	params := make([]int32, len(args))
	copy(params, args)
	return &Frame{
		Impl:      impl,
		DeclClass: declClass,
		Self:      self,
		Params:    params,
		Locals:    make([]int32, len(impl.Locals)),
		Stack:     make([]int32, 0, impl.MaxStack),
	}
}

func (f *Frame) name() string {
	if f.Impl.Sig.Name != "" {
		return f.Impl.Sig.Name
	}
	return "<ctor>"
}

func (f *Frame) className() string {
	if f.DeclClass != nil {
		return f.DeclClass.Name
	}
	return "<unknown>"
}

func (f *Frame) push(v int32) {
	if len(f.Stack) == cap(f.Stack) && cap(f.Stack) > 0 && len(f.Stack) >= f.Impl.MaxStack {
		errs.Fault(errs.StackOverflow, f.className(), f.name(), f.PC, "stack exceeds declared max %d", f.Impl.MaxStack)
	}
	f.Stack = append(f.Stack, v)
}

func (f *Frame) pop() int32 {
	n := len(f.Stack)
	if n == 0 {
		errs.Fault(errs.StackUnderflow, f.className(), f.name(), f.PC, "pop on empty stack")
	}
	v := f.Stack[n-1]
	f.Stack = f.Stack[:n-1]
	return v
}

func (f *Frame) peek() int32 {
	n := len(f.Stack)
	if n == 0 {
		errs.Fault(errs.StackUnderflow, f.className(), f.name(), f.PC, "peek on empty stack")
	}
	return f.Stack[n-1]
}

// popArgs pops count values and returns them in original push order
// (leftmost argument first).
func (f *Frame) popArgs(count uint32) []int32 {
	out := make([]int32, count)
	for i := int(count) - 1; i >= 0; i-- {
		out[i] = f.pop()
	}
	return out
}
