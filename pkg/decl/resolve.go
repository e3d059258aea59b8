// Package decl implements the two-pass declaration resolver (spec
// 4.3): pass 1 turns each parsed ast.ClassSrc into an ir.ClassIR
// skeleton (data layout and a signature-only vtable, built in
// superclass-before-subclass order); pass 2 validates everything that
// can only be checked once every class in the program is loaded —
// duplicate members, override signature matching, constructor
// ambiguity, and that every native type name actually resolves to a
// loaded class.
//
// The resolver does not compile method bodies; it hands pkg/compiler
// a Unit per method/constructor (its ast.MethodSrc plus the
// ir.FunctionImpl stub already wired into the class's vtable) so
// codegen can fill in the stub's Code in place once every class's
// structure — needed to resolve call targets and field slots — is
// final.
package decl

import (
	"github.com/kristofer/classvm/pkg/ast"
	"github.com/kristofer/classvm/pkg/errs"
	"github.com/kristofer/classvm/pkg/ir"
	"github.com/kristofer/classvm/pkg/parser"
	"github.com/kristofer/classvm/pkg/registry"
	"github.com/kristofer/classvm/pkg/source"
	"github.com/kristofer/classvm/pkg/types"
)

// Unit is one method or constructor awaiting codegen.
type Unit struct {
	Class    *ir.ClassIR
	ClassSrc *ast.ClassSrc
	Impl     *ir.FunctionImpl // stub: Sig and IsNative are set, Code is not
	Src      *ast.MethodSrc   // nil when Impl.IsNative (no body to compile)
}

// Program is the fully-resolved, not-yet-codegenned result of loading
// and declaration-checking a set of entry classes and everything they
// transitively import or extend.
type Program struct {
	Registry *registry.ClassRegistry
	Units    []*Unit
}

// Resolve loads entry and everything it depends on through loader,
// and runs both resolver passes over the result.
func Resolve(loader source.Loader, entry []string) (*Program, error) {
	srcs, order, err := loadAll(loader, entry)
	if err != nil {
		return nil, err
	}

	reg := registry.NewClassRegistry()
	prog := &Program{Registry: reg}
	classes := make(map[string]*ir.ClassIR, len(order))

	// Pass 1: per-class skeletons, superclass before subclass (order
	// is already a valid topological order from loadAll).
	for _, name := range order {
		cs := srcs[name]
		var super *ir.ClassIR
		if cs.Super != "" {
			super = classes[cs.Super]
			if super == nil {
				return nil, errs.New(errs.UnknownType, cs.Name, 0, "superclass %q was not loaded", cs.Super)
			}
		}
		class := ir.New(cs.Name, cs.IsNative, super)

		for _, f := range cs.Fields {
			class.AddOwnData(types.DataDecl{Name: f.Name, Type: types.FromTypeName(f.TypeName), Line: f.Line})
		}
		for i := range cs.Methods {
			m := &cs.Methods[i]
			impl := &ir.FunctionImpl{Sig: buildSig(m), IsNative: m.IsNative}
			class.AddOwnMethod(impl)
			prog.Units = append(prog.Units, &Unit{Class: class, ClassSrc: cs, Impl: impl, Src: methodSrcOrNil(m)})
		}
		for i := range cs.Ctors {
			m := &cs.Ctors[i]
			impl := &ir.FunctionImpl{Sig: buildSig(m), IsNative: m.IsNative}
			class.AddCtor(impl)
			prog.Units = append(prog.Units, &Unit{Class: class, ClassSrc: cs, Impl: impl, Src: methodSrcOrNil(m)})
		}

		class.Build()
		classes[name] = class
		if err := reg.Register(class); err != nil {
			return nil, errs.New(errs.DuplicateMember, cs.Name, 0, "%v", err)
		}
	}

	if err := validate(srcs, order, classes, reg); err != nil {
		return nil, err
	}
	return prog, nil
}

func buildSig(m *ast.MethodSrc) types.FunctionSig {
	params := make([]types.DataDecl, len(m.Params))
	for i, p := range m.Params {
		params[i] = types.DataDecl{Name: p.Name, Type: types.FromTypeName(p.TypeName), Line: p.Line}
	}
	return types.FunctionSig{Name: m.Name, Return: types.FromTypeName(m.ReturnType), Params: params}
}

func methodSrcOrNil(m *ast.MethodSrc) *ast.MethodSrc {
	if m.IsNative {
		return nil
	}
	return m
}

// loadAll recursively loads entry and every class reachable through
// an import or an extends clause, and returns the result in a valid
// superclass-before-subclass, dependency-before-dependent order.
func loadAll(loader source.Loader, entry []string) (map[string]*ast.ClassSrc, []string, error) {
	srcs := make(map[string]*ast.ClassSrc)
	queue := append([]string{}, entry...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, ok := srcs[name]; ok {
			continue
		}
		text, err := loader.Load(name)
		if err != nil {
			return nil, nil, errs.New(errs.FileNotFound, name, 0, "%v", err)
		}
		cs, err := parser.Parse(text)
		if err != nil {
			return nil, nil, err
		}
		if cs.Name != name {
			return nil, nil, errs.New(errs.Parse, name, 0, "source for class %q actually declares class %q", name, cs.Name)
		}
		srcs[name] = cs
		queue = append(queue, cs.Imports...)
		if cs.Super != "" {
			queue = append(queue, cs.Super)
		}
	}

	order, err := topoSort(srcs)
	if err != nil {
		return nil, nil, err
	}
	return srcs, order, nil
}

// topoSort orders classes superclass-first via a DFS over the extends
// relation, failing on an inheritance cycle.
func topoSort(srcs map[string]*ast.ClassSrc) ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(srcs))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return errs.New(errs.Parse, name, 0, "inheritance cycle involving class %q", name)
		}
		state[name] = visiting
		cs, ok := srcs[name]
		if !ok {
			return errs.New(errs.UnknownType, name, 0, "class %q was not loaded", name)
		}
		if cs.Super != "" {
			if err := visit(cs.Super); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for name := range srcs {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
