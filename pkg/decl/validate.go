package decl

import (
	"github.com/kristofer/classvm/pkg/ast"
	"github.com/kristofer/classvm/pkg/errs"
	"github.com/kristofer/classvm/pkg/ir"
	"github.com/kristofer/classvm/pkg/registry"
	"github.com/kristofer/classvm/pkg/types"
)

// validate is pass 2: everything that needs the whole program loaded
// to check (spec 4.3). It runs over classes in the same
// superclass-before-subclass order pass 1 built them in, though none
// of its checks are order-dependent.
func validate(srcs map[string]*ast.ClassSrc, order []string, classes map[string]*ir.ClassIR, reg *registry.ClassRegistry) error {
	isA := reg.IsA

	for _, name := range order {
		cs := srcs[name]
		class := classes[name]

		if err := checkDuplicateFields(cs, class); err != nil {
			return err
		}
		if err := checkDuplicateMethods(cs, class); err != nil {
			return err
		}
		if err := checkOverrides(cs, class); err != nil {
			return err
		}
		if err := checkCtorAmbiguity(cs, class, isA); err != nil {
			return err
		}
		if err := checkNativeTypes(cs, class, reg); err != nil {
			return err
		}
		if err := checkBaseCallPresence(cs); err != nil {
			return err
		}
	}
	return nil
}

// checkBaseCallPresence enforces spec 4.2's BaseCall rule: a
// constructor on a class that extends something must open with an
// explicit super(...) call; a constructor on a root class must not
// have one. Native constructors are declared bodyless and are exempt
// — there is no body to place a super call in, and base construction
// is the host's responsibility.
func checkBaseCallPresence(cs *ast.ClassSrc) error {
	hasSuper := cs.Super != ""
	for _, m := range cs.Ctors {
		if m.IsNative {
			continue
		}
		switch {
		case hasSuper && m.BaseCall == nil:
			return errs.New(errs.MissingSuperCall, cs.Name, m.Line, "constructor must call super(...) as its first statement")
		case !hasSuper && m.BaseCall != nil:
			return errs.New(errs.Parse, cs.Name, m.Line, "constructor calls super(...) but %q has no superclass", cs.Name)
		}
	}
	return nil
}

func checkDuplicateFields(cs *ast.ClassSrc, class *ir.ClassIR) error {
	seen := make(map[string]bool, len(class.OwnData()))
	for _, f := range cs.Fields {
		if seen[f.Name] {
			return errs.New(errs.DuplicateMember, cs.Name, f.Line, "duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

func checkDuplicateMethods(cs *ast.ClassSrc, class *ir.ClassIR) error {
	seen := make(map[string]int, len(cs.Methods))
	for _, m := range cs.Methods {
		seen[m.Name]++
	}
	for _, m := range cs.Methods {
		if seen[m.Name] > 1 {
			return errs.New(errs.DuplicateMember, cs.Name, m.Line, "duplicate method %q", m.Name)
		}
	}
	return nil
}

// checkOverrides enforces spec 4.3's override rule: a method sharing
// its name with an inherited vtable slot must match that slot's
// signature exactly (return type and every parameter type); a partial
// match (same name, different signature) is an error rather than an
// overload, since this language has none.
func checkOverrides(cs *ast.ClassSrc, class *ir.ClassIR) error {
	if class.Super == nil {
		return nil
	}
	for _, m := range class.OwnMethods() {
		idx, ok := class.Super.VTableIndex(m.Sig.Name)
		if !ok {
			continue
		}
		inherited := class.Super.MethodByIndex(idx)
		if !types.SignaturesMatchExactly(m.Sig, inherited.Sig) {
			return errs.New(errs.OverrideMismatch, cs.Name, 0,
				"method %q does not match inherited signature %s (got %s)", m.Sig.Name, inherited.Sig, m.Sig)
		}
	}
	return nil
}

// checkCtorAmbiguity enforces spec 3's constructor ambiguity rule over
// every pair of a class's own constructors (constructors are never
// inherited, so only own-class pairs can collide).
func checkCtorAmbiguity(cs *ast.ClassSrc, class *ir.ClassIR, isA types.IsA) error {
	ctors := class.Ctors()
	for i := 0; i < len(ctors); i++ {
		for j := i + 1; j < len(ctors); j++ {
			if types.AmbiguousCtor(ctors[i].Sig, ctors[j].Sig, isA) {
				return errs.New(errs.AmbiguousConstructor, cs.Name, cs.Ctors[j].Line,
					"constructors %s and %s are ambiguous", ctors[i].Sig, ctors[j].Sig)
			}
		}
	}
	return nil
}

// checkNativeTypes validates every native-tagged type this class
// mentions — its own fields, and every method/constructor's parameter
// and return types — resolves to a loaded class (spec 7's UnknownType
// error kind).
func checkNativeTypes(cs *ast.ClassSrc, class *ir.ClassIR, reg *registry.ClassRegistry) error {
	check := func(t types.PrimitiveType, line int) error {
		if !t.IsNative() {
			return nil
		}
		if _, ok := reg.Lookup(t.ClassName); !ok {
			return errs.New(errs.UnknownType, cs.Name, line, "unknown type %q", t.ClassName)
		}
		return nil
	}

	for i, f := range class.OwnData() {
		line := cs.Fields[i].Line
		if err := check(f.Type, line); err != nil {
			return err
		}
	}
	for _, m := range class.OwnMethods() {
		if err := check(m.Sig.Return, 0); err != nil {
			return err
		}
		for _, p := range m.Sig.Params {
			if err := check(p.Type, p.Line); err != nil {
				return err
			}
		}
	}
	for _, m := range class.Ctors() {
		for _, p := range m.Sig.Params {
			if err := check(p.Type, p.Line); err != nil {
				return err
			}
		}
	}
	return nil
}
