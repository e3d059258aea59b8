// Package source locates and loads class-script source files (spec 6).
//
// A dotted class name maps to a file path by replacing '.' with the
// platform path separator and appending ".ds"; a Loader searches an
// ordered list of root directories and the first match wins. Finding
// the same class under more than one root is an ambiguity error
// rather than a silent pick, since a compiler that silently shadowed
// one root with another would make builds root-order-sensitive in a
// way nothing else in the toolchain is.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loader maps a dotted class name to its source text. The compiler's
// class loading walks imports by calling Load recursively.
type Loader interface {
	Load(className string) (string, error)
}

// PathForClass converts a dotted class name into its ".ds" relative
// file path: a class named Foo.Bar lives at <root>/Foo/Bar.ds.
func PathForClass(className string) string {
	return strings.ReplaceAll(className, ".", string(filepath.Separator)) + ".ds"
}

// FileLoader resolves classes against an ordered list of root
// directories on disk.
type FileLoader struct {
	Roots []string
}

// NewFileLoader returns a FileLoader searching roots in order.
func NewFileLoader(roots ...string) *FileLoader {
	return &FileLoader{Roots: roots}
}

// Load implements Loader. It is an error if no root contains the
// class, or if more than one does.
func (l *FileLoader) Load(className string) (string, error) {
	rel := PathForClass(className)
	var found []string
	for _, root := range l.Roots {
		full := filepath.Join(root, rel)
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			found = append(found, full)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("class %q not found (searched %d root(s) for %s)", className, len(l.Roots), rel)
	case 1:
		data, err := os.ReadFile(found[0])
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", found[0], err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("class %q is ambiguous: found under %d roots (%v)", className, len(found), found)
	}
}

// MapLoader is an in-memory Loader, useful for tests and for
// embedding pre-baked sources without touching the filesystem.
type MapLoader map[string]string

func (m MapLoader) Load(className string) (string, error) {
	src, ok := m[className]
	if !ok {
		return "", fmt.Errorf("class %q not found", className)
	}
	return src, nil
}
