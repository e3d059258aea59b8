// Package registry holds the process-wide (but explicitly constructed
// and passed around, never global — spec 9) lookup tables a compiled
// program needs at class-load and dispatch time: the set of loaded
// classes, and the host's native method/constructor/factory bindings.
//
// Grounded on original_source/dsr/DSRScriptManager.h/.cpp (the class
// table) and dsr/DSRScriptFactory.h/.cpp (the native factory hook),
// reframed per spec 9 as an explicit context object instead of a
// singleton.
package registry

import (
	"fmt"

	"github.com/kristofer/classvm/pkg/ir"
)

// ClassRegistry is the set of classes loaded and built for one
// compilation/execution context.
type ClassRegistry struct {
	classes map[string]*ir.ClassIR
}

// NewClassRegistry returns an empty registry.
func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{classes: make(map[string]*ir.ClassIR)}
}

// Register adds a built (or about-to-be-built) class. It is an error
// to register the same class name twice.
func (r *ClassRegistry) Register(class *ir.ClassIR) error {
	if _, ok := r.classes[class.Name]; ok {
		return fmt.Errorf("class %q already registered", class.Name)
	}
	r.classes[class.Name] = class
	return nil
}

// Lookup returns the named class, or false if it has not been loaded.
func (r *ClassRegistry) Lookup(name string) (*ir.ClassIR, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// IsA implements types.IsA against this registry's loaded classes: it
// reports whether sub is sup or a transitive subclass of sup. Unknown
// class names are never subtypes of anything (callers are expected to
// have already validated both names resolve).
func (r *ClassRegistry) IsA(sub, sup string) bool {
	if sub == sup {
		return true
	}
	c, ok := r.classes[sub]
	if !ok {
		return false
	}
	return c.IsA(sup)
}

// All returns every registered class, in no particular order.
func (r *ClassRegistry) All() []*ir.ClassIR {
	out := make([]*ir.ClassIR, 0, len(r.classes))
	for _, c := range r.classes {
		out = append(out, c)
	}
	return out
}

// FactoryRegistry holds host-supplied native instance factories,
// keyed by class name (spec 6's "Native registry (host-facing)").
type FactoryRegistry struct {
	factories map[string]ir.Factory
}

// NewFactoryRegistry returns an empty registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]ir.Factory)}
}

// Register installs the factory for a native class.
func (r *FactoryRegistry) Register(className string, f ir.Factory) {
	r.factories[className] = f
}

// Lookup returns the factory for a native class, or false if none was
// registered (the default "just allocate the slot array" behavior
// applies in that case).
func (r *FactoryRegistry) Lookup(className string) (ir.Factory, bool) {
	f, ok := r.factories[className]
	return f, ok
}

// NativeRegistry exposes the host's native method and constructor
// implementations, addressed by class name and vtable/constructor
// index (spec 6). A host embedding this toolchain implements this
// interface once per native class family it supplies.
type NativeRegistry interface {
	// Method returns the native implementation of the method at
	// vtable index methodIdx on className, or false if none is bound.
	Method(className string, methodIdx int) (ir.NativeFunc, bool)
	// Constructor returns the native implementation of the
	// constructor at ctorIdx on className, or false if none is bound.
	Constructor(className string, ctorIdx int) (ir.NativeFunc, bool)
}

// MapNativeRegistry is a NativeRegistry backed by plain maps, the
// straightforward choice for an embedder wiring up a handful of
// native classes (spec 6's reference embedder).
type MapNativeRegistry struct {
	methods      map[string]map[int]ir.NativeFunc
	constructors map[string]map[int]ir.NativeFunc
}

// NewMapNativeRegistry returns an empty MapNativeRegistry.
func NewMapNativeRegistry() *MapNativeRegistry {
	return &MapNativeRegistry{
		methods:      make(map[string]map[int]ir.NativeFunc),
		constructors: make(map[string]map[int]ir.NativeFunc),
	}
}

// BindMethod installs the native implementation of a method.
func (r *MapNativeRegistry) BindMethod(className string, idx int, fn ir.NativeFunc) {
	if r.methods[className] == nil {
		r.methods[className] = make(map[int]ir.NativeFunc)
	}
	r.methods[className][idx] = fn
}

// BindConstructor installs the native implementation of a
// constructor.
func (r *MapNativeRegistry) BindConstructor(className string, idx int, fn ir.NativeFunc) {
	if r.constructors[className] == nil {
		r.constructors[className] = make(map[int]ir.NativeFunc)
	}
	r.constructors[className][idx] = fn
}

func (r *MapNativeRegistry) Method(className string, methodIdx int) (ir.NativeFunc, bool) {
	fn, ok := r.methods[className][methodIdx]
	return fn, ok
}

func (r *MapNativeRegistry) Constructor(className string, ctorIdx int) (ir.NativeFunc, bool) {
	fn, ok := r.constructors[className][ctorIdx]
	return fn, ok
}
