// Package errs defines the compile-time and run-time error types spec
// 7 enumerates: a message plus structured class/method/pc context,
// formatted by an Error() string builder.
package errs

import "fmt"

// Kind enumerates the compile-time error kinds spec 7 lists.
type Kind string

const (
	FileNotFound         Kind = "FileNotFound"
	Parse                Kind = "Parse"
	DuplicateMember      Kind = "DuplicateMember"
	UnknownType          Kind = "UnknownType"
	OverrideMismatch     Kind = "OverrideMismatch"
	AmbiguousConstructor Kind = "AmbiguousConstructor"
	TypeMismatch         Kind = "TypeMismatch"
	UnknownFunction      Kind = "UnknownFunction"
	UnknownVariable      Kind = "UnknownVariable"
	ArityMismatch        Kind = "ArityMismatch"
	BadOperandTypes      Kind = "BadOperandTypes"
	MissingReturn        Kind = "MissingReturn"
	MissingSuperCall     Kind = "MissingSuperCall"
)

// CompileError is a single, precise compile-time failure: which
// class, which source line, what kind, and a human-readable message
// (spec 7). The compiler never swallows a prior error and continues —
// the first CompileError aborts the build, and no partial artifact is
// retained.
type CompileError struct {
	Kind  Kind
	Class string
	Line  int
	Msg   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%d: %s: %s", e.Class, e.Line, e.Kind, e.Msg)
}

// New constructs a CompileError.
func New(kind Kind, class string, line int, format string, args ...interface{}) *CompileError {
	return &CompileError{Kind: kind, Class: class, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// FaultKind enumerates the run-time interpreter-internal fault kinds
// spec 7 lists. These indicate a bug the compiler should have
// prevented; a correctly-compiled script never triggers one.
type FaultKind string

const (
	StackUnderflow          FaultKind = "StackUnderflow"
	StackOverflow           FaultKind = "StackOverflow"
	BadOpcode               FaultKind = "BadOpcode"
	NullReceiver            FaultKind = "NullReceiver"
	NonEmptyResidualStack   FaultKind = "NonEmptyResidualStack"
	NativeStoreTypeMismatch FaultKind = "NativeStoreTypeMismatch"
)

// RuntimeFault carries the frame context spec 7 requires for
// diagnosing an interpreter-internal error: the class/method running,
// and the program counter at the moment of failure. The VM panics
// with a RuntimeFault rather than returning one, since by design these
// can only happen if the compiler already failed to prevent them.
type RuntimeFault struct {
	Kind   FaultKind
	Class  string
	Method string
	PC     int
	Msg    string
}

func (e *RuntimeFault) Error() string {
	return fmt.Sprintf("internal VM fault %s in %s.%s at pc=%d: %s", e.Kind, e.Class, e.Method, e.PC, e.Msg)
}

// Fault panics with a RuntimeFault. Call sites use this instead of a
// bare panic so every internal assertion failure carries the same
// diagnostic shape.
func Fault(kind FaultKind, class, method string, pc int, format string, args ...interface{}) {
	panic(&RuntimeFault{Kind: kind, Class: class, Method: method, PC: pc, Msg: fmt.Sprintf(format, args...)})
}
