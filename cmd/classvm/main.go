// Command classvm is the reference embedder for the class-script
// toolchain (spec 6): it loads one entry class from a set of source
// roots, resolves and compiles them, then either prints
// the compiled bytecode or constructs an instance and invokes a
// method on it.
//
// A class-script program has no implicit top-level statement list —
// "running" it means constructing some entry class and invoking a
// method on it, so `run` takes an explicit class/constructor/method
// triple instead of just a file.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/kristofer/classvm/cmd/classvm/repl"
	"github.com/kristofer/classvm/pkg/bytecode"
	"github.com/kristofer/classvm/pkg/compiler"
	"github.com/kristofer/classvm/pkg/decl"
	"github.com/kristofer/classvm/pkg/source"
	"github.com/kristofer/classvm/pkg/vm"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		repl.Run(repl.Options{})
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("classvm version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		repl.Run(parseREPLOptions(os.Args[2:]))
	case "run":
		runCommand(os.Args[2:])
	case "compile", "disassemble", "disasm":
		compileCommand(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("classvm - a class-based scripting language toolchain")
	fmt.Println("\nUsage:")
	fmt.Println("  classvm                                    Start the interactive REPL")
	fmt.Println("  classvm repl [--root dir]...               Start the interactive REPL")
	fmt.Println("  classvm compile <Class> [--root dir]...    Resolve, compile, print bytecode")
	fmt.Println("  classvm run <Class> [opts]                 Compile, construct, invoke")
	fmt.Println("  classvm version                            Show version")
	fmt.Println("  classvm help                               Show this help")
	fmt.Println("\nrun options:")
	fmt.Println("  --root dir       source root to search (repeatable, default \".\")")
	fmt.Println("  --ctor N         constructor index to invoke (default 0)")
	fmt.Println("  --ctor-args a,b  comma-separated int32 constructor arguments")
	fmt.Println("  --invoke name    method to call on the constructed instance (required)")
	fmt.Println("  --args a,b       comma-separated int32 arguments to --invoke")
	fmt.Println("\nFile layout:")
	fmt.Println("  A class named Foo.Bar resolves to <root>/Foo/Bar.ds")
}

type runOpts struct {
	roots    []string
	ctorIdx  int
	ctorArgs []int32
	invoke   string
	callArgs []int32
}

func parseFlags(args []string) (*runOpts, string, error) {
	o := &runOpts{roots: nil}
	var className string
	i := 0
	for i < len(args) {
		a := args[i]
		switch a {
		case "--root":
			i++
			if i >= len(args) {
				return nil, "", fmt.Errorf("--root needs a value")
			}
			o.roots = append(o.roots, args[i])
		case "--ctor":
			i++
			if i >= len(args) {
				return nil, "", fmt.Errorf("--ctor needs a value")
			}
			n, err := strconv.Atoi(args[i])
			if err != nil {
				return nil, "", fmt.Errorf("--ctor: %w", err)
			}
			o.ctorIdx = n
		case "--ctor-args":
			i++
			if i >= len(args) {
				return nil, "", fmt.Errorf("--ctor-args needs a value")
			}
			vs, err := parseInt32List(args[i])
			if err != nil {
				return nil, "", err
			}
			o.ctorArgs = vs
		case "--invoke":
			i++
			if i >= len(args) {
				return nil, "", fmt.Errorf("--invoke needs a value")
			}
			o.invoke = args[i]
		case "--args":
			i++
			if i >= len(args) {
				return nil, "", fmt.Errorf("--args needs a value")
			}
			vs, err := parseInt32List(args[i])
			if err != nil {
				return nil, "", err
			}
			o.callArgs = vs
		default:
			if strings.HasPrefix(a, "--") {
				return nil, "", fmt.Errorf("unknown flag %q", a)
			}
			if className != "" {
				return nil, "", fmt.Errorf("unexpected argument %q", a)
			}
			className = a
		}
		i++
	}
	if len(o.roots) == 0 {
		o.roots = []string{"."}
	}
	return o, className, nil
}

func parseInt32List(s string) ([]int32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int32, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad integer %q: %w", p, err)
		}
		out = append(out, int32(n))
	}
	return out, nil
}

func runCommand(args []string) {
	o, className, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if className == "" {
		fmt.Fprintln(os.Stderr, "run: no class specified")
		os.Exit(1)
	}
	if o.invoke == "" {
		fmt.Fprintln(os.Stderr, "run: --invoke is required (a class-script program has no implicit entry statement)")
		os.Exit(1)
	}

	loader := source.NewFileLoader(o.roots...)
	prog, err := decl.Resolve(loader, []string{className})
	if err != nil {
		slog.Error("resolve failed", "err", err)
		os.Exit(1)
	}
	if err := compiler.CompileProgram(prog); err != nil {
		slog.Error("compile failed", "err", err)
		os.Exit(1)
	}

	machine := vm.New(prog.Registry, nil)
	h, err := machine.New(className, o.ctorIdx, o.ctorArgs)
	if err != nil {
		slog.Error("construction failed", "class", className, "ctor", o.ctorIdx, "err", err)
		os.Exit(1)
	}
	result, err := machine.Invoke(h, o.invoke, o.callArgs)
	if err != nil {
		slog.Error("invocation failed", "class", className, "method", o.invoke, "err", err)
		os.Exit(1)
	}
	fmt.Printf("%d\n", result)
}

func compileCommand(args []string) {
	o, className, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if className == "" {
		fmt.Fprintln(os.Stderr, "compile: no class specified")
		os.Exit(1)
	}

	loader := source.NewFileLoader(o.roots...)
	prog, err := decl.Resolve(loader, []string{className})
	if err != nil {
		slog.Error("resolve failed", "err", err)
		os.Exit(1)
	}
	if err := compiler.CompileProgram(prog); err != nil {
		slog.Error("compile failed", "err", err)
		os.Exit(1)
	}

	for _, class := range prog.Registry.All() {
		fmt.Printf("=== %s ===\n", class.Name)
		for i, ctor := range class.Ctors() {
			fmt.Printf("ctor[%d] %s\n", i, ctor.Sig)
			fmt.Print(bytecode.Disassemble(ctor.Code, ctor.NewClassNames))
		}
		for i, m := range class.VTable() {
			fmt.Printf("method[%d] %s\n", i, m.Sig)
			if m.IsNative {
				fmt.Println("  (native)")
				continue
			}
			fmt.Print(bytecode.Disassemble(m.Code, m.NewClassNames))
		}
		fmt.Println()
	}
}

func parseREPLOptions(args []string) repl.Options {
	var o repl.Options
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--root":
			i++
			if i < len(args) {
				o.Roots = append(o.Roots, args[i])
			}
		case "--no-color":
			o.NoColor = true
		case "--debug":
			o.Debug = true
		}
	}
	return o
}
