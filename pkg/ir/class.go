// Package ir holds the compiled, inheritance-flattened artifacts the
// VM executes against: ClassIR (data layout, vtable, constructors) and
// FunctionImpl (one per method/constructor body). This is the only
// package that understands the class hierarchy — pkg/types' subtype
// rules are parameterized over an IsA callback precisely so that this
// package can supply it without creating an import cycle.
package ir

import "github.com/kristofer/classvm/pkg/types"

// FunctionImpl is one compiled method or constructor body (spec 3).
// If IsNative, Code is empty and the call is dispatched to a
// host-supplied function instead; otherwise Code's last instruction
// is always RET.
type FunctionImpl struct {
	Sig           types.FunctionSig
	IsNative      bool
	Locals        []types.DataDecl
	Code          []uint32 // instruction + data words, spec 3
	MaxStack      int
	NewClassNames []string // interned `new` target class names, indexed by NEW's operand

	// OwnerClass is the class that textually declares this
	// implementation — set once by AddOwnMethod/AddCtor. A frame
	// executing this function resolves "super" relative to
	// OwnerClass.Super, regardless of which subclass's instance
	// originally received the call (spec 9): override-in-place keeps
	// a method's vtable index stable, but its OwnerClass changes to
	// whichever class supplied the most-derived override.
	OwnerClass *ClassIR
}

// Factory allocates the backing representation for a fresh native
// instance, given the class being constructed. The default (nil)
// means "just allocate the slot array" — scripted classes never need
// more than that.
type Factory func(class *ClassIR) error

// NativeFunc is a host-supplied method or constructor body, addressed
// by vtable/constructor index (spec 6's native registry). self is the
// receiver's handle; for a constructor it is the handle of the
// just-allocated instance. args holds only the call's declared
// arguments, as raw 32-bit slot payloads (int32 bits, float32
// bits, 0/1 for bool, or a handle index for native), in declared
// parameter order.
type NativeFunc func(self int32, args []int32) (int32, error)

// ClassIR is the compiled, per-class artifact produced by pass 3 of
// compilation (spec 2's data flow). Method/data lookups that would
// otherwise walk the superclass chain at every call are all
// pre-flattened here at Build time, so that runtime dispatch is an
// integer index, never a name lookup (spec 9).
type ClassIR struct {
	Name     string
	IsNative bool
	Super    *ClassIR

	ownData    []types.DataDecl
	ownMethods []*FunctionImpl
	ctors      []*FunctionImpl

	effectiveData  []types.DataDecl
	vtable         []*FunctionImpl
	vtableIndex    map[string]int
	built          bool

	factory Factory
}

// New creates an unbuilt ClassIR. Call AddOwnData/AddOwnMethod/AddCtor
// to populate it, then Build once the superclass (if any) is itself
// built.
func New(name string, isNative bool, super *ClassIR) *ClassIR {
	return &ClassIR{Name: name, IsNative: isNative, Super: super}
}

// AddOwnData appends a field declared directly on this class.
func (c *ClassIR) AddOwnData(d types.DataDecl) { c.ownData = append(c.ownData, d) }

// OwnData returns the fields declared directly on this class, not
// including anything inherited (pkg/decl's duplicate-name check).
func (c *ClassIR) OwnData() []types.DataDecl { return c.ownData }

// OwnMethods returns the methods declared directly on this class, in
// source order, not including anything inherited (pkg/decl's
// duplicate-name and override-matching checks).
func (c *ClassIR) OwnMethods() []*FunctionImpl { return c.ownMethods }

// AddOwnMethod appends a method declared directly on this class, in
// source order.
func (c *ClassIR) AddOwnMethod(f *FunctionImpl) {
	f.OwnerClass = c
	c.ownMethods = append(c.ownMethods, f)
}

// AddCtor appends a constructor. Constructors are never inherited and
// never occupy a vtable slot (spec 3).
func (c *ClassIR) AddCtor(f *FunctionImpl) {
	f.OwnerClass = c
	c.ctors = append(c.ctors, f)
}

// SetFactory installs the native-instance allocation hook (spec 6).
func (c *ClassIR) SetFactory(f Factory) { c.factory = f }

// Factory returns the installed native factory, or nil.
func (c *ClassIR) Factory() Factory { return c.factory }

// Build computes the effective data layout and vtable. It must be
// called exactly once, after Super (if any) has itself been built —
// the registry that owns class loading is responsible for building
// classes in superclass-before-subclass order.
func (c *ClassIR) Build() {
	if c.built {
		return
	}
	if c.Super != nil {
		c.Super.Build()
		c.effectiveData = append(append([]types.DataDecl{}, c.Super.effectiveData...), c.ownData...)
		c.vtable = append([]*FunctionImpl{}, c.Super.vtable...)
		c.vtableIndex = make(map[string]int, len(c.Super.vtableIndex)+len(c.ownMethods))
		for name, idx := range c.Super.vtableIndex {
			c.vtableIndex[name] = idx
		}
	} else {
		c.effectiveData = append([]types.DataDecl{}, c.ownData...)
		c.vtable = nil
		c.vtableIndex = make(map[string]int, len(c.ownMethods))
	}

	// Override-in-place, then append new methods (spec 4.5): own
	// methods that share a name with an inherited slot replace that
	// slot's implementation without changing its index; the rest are
	// appended in source order.
	for _, m := range c.ownMethods {
		if idx, ok := c.vtableIndex[m.Sig.Name]; ok {
			c.vtable[idx] = m
			continue
		}
		idx := len(c.vtable)
		c.vtable = append(c.vtable, m)
		c.vtableIndex[m.Sig.Name] = idx
	}
	c.built = true
}

// EffectiveData returns the super-prefixed, flattened field layout.
func (c *ClassIR) EffectiveData() []types.DataDecl { return c.effectiveData }

// DataSlot returns the slot index and declared type of a field by
// name, searching the effective (inherited + own) layout.
func (c *ClassIR) DataSlot(name string) (int, types.PrimitiveType, bool) {
	for i, d := range c.effectiveData {
		if d.Name == name {
			return i, d.Type, true
		}
	}
	return 0, types.PrimitiveType{}, false
}

// VTable returns the effective, override-resolved method table.
func (c *ClassIR) VTable() []*FunctionImpl { return c.vtable }

// VTableIndex returns the slot index of a method by name.
func (c *ClassIR) VTableIndex(name string) (int, bool) {
	idx, ok := c.vtableIndex[name]
	return idx, ok
}

// MethodByIndex returns the vtable entry at idx, or nil if idx is out
// of range.
func (c *ClassIR) MethodByIndex(idx int) *FunctionImpl {
	if idx < 0 || idx >= len(c.vtable) {
		return nil
	}
	return c.vtable[idx]
}

// Ctors returns this class's own constructors (never inherited).
func (c *ClassIR) Ctors() []*FunctionImpl { return c.ctors }

// CtorByIndex returns the constructor at idx, or nil if out of range.
func (c *ClassIR) CtorByIndex(idx int) *FunctionImpl {
	if idx < 0 || idx >= len(c.ctors) {
		return nil
	}
	return c.ctors[idx]
}

// IsA reports whether c is name or a (transitive) subclass of a class
// named name (spec 3's subtyping relation). This is the concrete
// implementation that backs types.IsA once a class is loaded.
func (c *ClassIR) IsA(name string) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur.Name == name {
			return true
		}
	}
	return false
}
