package decl

import (
	"strings"
	"testing"

	"github.com/kristofer/classvm/pkg/source"
)

func TestResolveSimpleInheritance(t *testing.T) {
	loader := source.MapLoader{
		"Base": `
class Base {
	int x;
	Base(int x) { x = x; }
	int getX() { return x; }
}
`,
		"Derived": `
class Derived extends Base {
	int y;
	Derived(int x, int y) { super(x); y = y; }
	int getX() { return x; }
	int getY() { return y; }
}
`,
	}
	prog, err := Resolve(loader, []string{"Derived"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	base, ok := prog.Registry.Lookup("Base")
	if !ok {
		t.Fatalf("Base not registered")
	}
	derived, ok := prog.Registry.Lookup("Derived")
	if !ok {
		t.Fatalf("Derived not registered")
	}
	if len(derived.EffectiveData()) != 2 {
		t.Fatalf("want 2 effective fields (x, y), got %d", len(derived.EffectiveData()))
	}
	if !derived.IsA("Base") {
		t.Fatalf("Derived should be a Base")
	}
	// getX overrides Base.getX in place: same vtable index.
	baseIdx, _ := base.VTableIndex("getX")
	derivedIdx, _ := derived.VTableIndex("getX")
	if baseIdx != derivedIdx {
		t.Fatalf("override should keep vtable index stable: base=%d derived=%d", baseIdx, derivedIdx)
	}
	// getY is new, appended after the inherited slots.
	if _, ok := base.VTableIndex("getY"); ok {
		t.Fatalf("Base should not have getY")
	}
	if len(prog.Units) == 0 {
		t.Fatalf("expected codegen units")
	}
}

func TestResolveOverrideMismatchIsError(t *testing.T) {
	loader := source.MapLoader{
		"Base": `
class Base {
	int get() { return 1; }
}
`,
		"Derived": `
class Derived extends Base {
	float get() { return 1.0; }
}
`,
	}
	_, err := Resolve(loader, []string{"Derived"})
	if err == nil || !strings.Contains(err.Error(), "OverrideMismatch") {
		t.Fatalf("want OverrideMismatch, got %v", err)
	}
}

func TestResolveDuplicateFieldIsError(t *testing.T) {
	loader := source.MapLoader{
		"Dup": `
class Dup {
	int x;
	int x;
}
`,
	}
	_, err := Resolve(loader, []string{"Dup"})
	if err == nil || !strings.Contains(err.Error(), "DuplicateMember") {
		t.Fatalf("want DuplicateMember, got %v", err)
	}
}

func TestResolveAmbiguousConstructorIsError(t *testing.T) {
	loader := source.MapLoader{
		"Pair": `
class Pair {
	Pair(int a) {}
	Pair(int b) {}
}
`,
	}
	_, err := Resolve(loader, []string{"Pair"})
	if err == nil || !strings.Contains(err.Error(), "AmbiguousConstructor") {
		t.Fatalf("want AmbiguousConstructor, got %v", err)
	}
	// The diagnostic must cite the second constructor's own line (here
	// line 4), not a placeholder 0 — spec 8's S6 names this explicitly.
	if !strings.Contains(err.Error(), "Pair:4:") {
		t.Fatalf("want the colliding constructor's line (4) in the error, got %v", err)
	}
}

func TestResolveAmbiguousConstructorAcrossNativeSubtypes(t *testing.T) {
	loader := source.MapLoader{
		"Animal": `native class Animal { Animal(); }`,
		"Dog":    `native class Dog extends Animal { Dog(); }`,
		"Holder": `
import Animal;
import Dog;
class Holder {
	Holder(Animal a) {}
	Holder(Dog d) {}
}
`,
	}
	_, err := Resolve(loader, []string{"Holder"})
	if err == nil || !strings.Contains(err.Error(), "AmbiguousConstructor") {
		t.Fatalf("want AmbiguousConstructor for either-direction-subtype params, got %v", err)
	}
}

func TestResolveUnknownTypeIsError(t *testing.T) {
	loader := source.MapLoader{
		"Widget": `
class Widget {
	Ghost g;
}
`,
	}
	_, err := Resolve(loader, []string{"Widget"})
	if err == nil || !strings.Contains(err.Error(), "UnknownType") {
		t.Fatalf("want UnknownType, got %v", err)
	}
}

func TestResolveInheritanceCycleIsError(t *testing.T) {
	loader := source.MapLoader{
		"A": `class A extends B {}`,
		"B": `class B extends A {}`,
	}
	_, err := Resolve(loader, []string{"A"})
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("want a cycle error, got %v", err)
	}
}

func TestResolveMissingClassIsFileNotFound(t *testing.T) {
	loader := source.MapLoader{}
	_, err := Resolve(loader, []string{"Nope"})
	if err == nil || !strings.Contains(err.Error(), "FileNotFound") {
		t.Fatalf("want FileNotFound, got %v", err)
	}
}

func TestResolveMissingSuperCallIsError(t *testing.T) {
	loader := source.MapLoader{
		"Base": `
class Base {
	Base() {}
}
`,
		"Derived": `
class Derived extends Base {
	Derived() {}
}
`,
	}
	_, err := Resolve(loader, []string{"Derived"})
	if err == nil || !strings.Contains(err.Error(), "MissingSuperCall") {
		t.Fatalf("want MissingSuperCall, got %v", err)
	}
}

func TestResolveNonNativeBodylessMethodFailsAtParse(t *testing.T) {
	loader := source.MapLoader{
		"Widget": `
class Widget {
	void paint();
}
`,
	}
	if _, err := Resolve(loader, []string{"Widget"}); err == nil {
		t.Fatalf("expected a parse error for a bodyless method on a non-native class")
	}
}
