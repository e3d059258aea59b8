// Package types implements the class-script type system: the four
// primitive categories plus native class references, data/function
// signatures, and the subtype and ambiguity rules spec 3/4.3 define
// over them.
//
// This package intentionally knows nothing about class hierarchies —
// that lives in pkg/ir, which owns ClassIR and therefore the only
// place that can walk a superclass chain. Subtype-dependent checks
// here (AmbiguousCtor) take an IsA callback instead of importing ir,
// keeping the dependency graph a DAG (ir depends on types, not the
// reverse).
package types

import "fmt"

// Category is one of the four primitive data categories from spec 3,
// plus Void, which is a return-only marker: no value of type Void ever
// reaches the runtime stack.
type Category int

const (
	Bool Category = iota
	Int
	Float
	Void
	Native
)

func (c Category) String() string {
	switch c {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case Void:
		return "void"
	case Native:
		return "native"
	default:
		return "?"
	}
}

// PrimitiveType is the tagged variant spec 3 describes:
// Bool | Int | Float | Void | Native(class_ref). ClassName is only
// meaningful when Cat == Native.
type PrimitiveType struct {
	Cat       Category
	ClassName string
}

func (t PrimitiveType) String() string {
	if t.Cat == Native {
		return t.ClassName
	}
	return t.Cat.String()
}

// IsVoid reports whether t is the return-only Void marker.
func (t PrimitiveType) IsVoid() bool { return t.Cat == Void }

// IsNative reports whether t is a native class reference.
func (t PrimitiveType) IsNative() bool { return t.Cat == Native }

// IsNumeric reports whether t is Int or Float.
func (t PrimitiveType) IsNumeric() bool { return t.Cat == Int || t.Cat == Float }

// FromTypeName maps a source type spelling to a PrimitiveType. The
// fixed tag set is {int, float, bool, void}; anything else defaults to
// Native with the spelling stored verbatim (pass 1 of the resolver,
// spec 4.3), to be validated against loaded classes in pass 2.
func FromTypeName(name string) PrimitiveType {
	switch name {
	case "int":
		return PrimitiveType{Cat: Int}
	case "float":
		return PrimitiveType{Cat: Float}
	case "bool":
		return PrimitiveType{Cat: Bool}
	case "void":
		return PrimitiveType{Cat: Void}
	default:
		return PrimitiveType{Cat: Native, ClassName: name}
	}
}

// Equal reports exact type identity: same category, and for Native,
// the identical class name. It does not consult subtyping.
func Equal(a, b PrimitiveType) bool {
	if a.Cat != b.Cat {
		return false
	}
	if a.Cat == Native {
		return a.ClassName == b.ClassName
	}
	return true
}

// DataDecl is a named, typed declaration: a field, a parameter, or a
// local variable (spec 3). Line is the 1-based source line it was
// declared on, used for diagnostics.
type DataDecl struct {
	Name string
	Type PrimitiveType
	Line int
}

// FunctionSig is a method or constructor signature: name, return
// type, and an ordered parameter list (spec 3).
type FunctionSig struct {
	Name   string
	Return PrimitiveType
	Params []DataDecl
}

func (s FunctionSig) String() string {
	out := s.Name + "("
	for i, p := range s.Params {
		if i > 0 {
			out += ", "
		}
		out += p.Type.String()
	}
	return out + ") " + s.Return.String()
}

// SignaturesMatchExactly reports whether two signatures agree on
// return type and on every parameter type, by exact identity (spec
// 4.3's override rule: "signatures must match exactly").
func SignaturesMatchExactly(a, b FunctionSig) bool {
	if !Equal(a.Return, b.Return) {
		return false
	}
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if !Equal(a.Params[i].Type, b.Params[i].Type) {
			return false
		}
	}
	return true
}

// IsA is the subtype predicate over native class names: IsA(sub, sup)
// reports whether sub is sup or a (transitive) subclass of sup. It is
// supplied by pkg/ir, which owns the class hierarchy.
type IsA func(sub, sup string) bool

// AmbiguousCtor reports whether two constructor signatures are
// ambiguous per spec 3: same arity, and for every parameter position
// either the primitive types are identical, or both are native classes
// where either is a subtype of the other.
func AmbiguousCtor(a, b FunctionSig, isA IsA) bool {
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		pa, pb := a.Params[i].Type, b.Params[i].Type
		if pa.Cat != pb.Cat {
			return false
		}
		if pa.Cat == Native {
			if !(isA(pa.ClassName, pb.ClassName) || isA(pb.ClassName, pa.ClassName)) {
				return false
			}
			continue
		}
		if !Equal(pa, pb) {
			return false
		}
	}
	return true
}

// CompatibleNativeParam reports whether an argument of class
// argClass may be passed to a parameter declared as paramClass.
// Spec 9's open question: the source permits upcasting in either
// direction, which this preserves literally rather than tightening it
// to one direction.
func CompatibleNativeParam(argClass, paramClass string, isA IsA) bool {
	return isA(argClass, paramClass) || isA(paramClass, argClass)
}

// ErrUnknownType reports a type name that did not resolve to a fixed
// primitive or a loaded class (spec 7's UnknownType error kind).
type ErrUnknownType struct {
	Name string
	Line int
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("line %d: unknown type %q", e.Line, e.Name)
}
