// Package bytecode — human-readable disassembly.
//
// Disassemble renders a code stream of instruction (and, where
// HasDataWord says so, data) words as one line per instruction,
// resolving the handful of operands that index into the caller's
// side tables (a function's interned new_class_names table, in
// particular) rather than just printing raw numbers. This mirrors the
// table-driven disassembler shape used for the bytecode VMs in this
// toolchain's reference material (an Opcode -> mnemonic table walked
// linearly over a flat instruction stream), adapted to this project's
// fixed-width word encoding instead of a LEB128 variable-length one.
package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders words (as produced by a compiled function's
// bytecode) into one text line per instruction. newClassNames
// resolves NEW's operand to a class name; pass nil to print the raw
// index instead.
func Disassemble(words []uint32, newClassNames []string) string {
	var b strings.Builder
	i := 0
	for i < len(words) {
		addr := i
		op, operand := DecodeWord(words[i])
		i++
		switch {
		case HasDataWord(op):
			var data uint32
			if i < len(words) {
				data = words[i]
				i++
			}
			fmt.Fprintf(&b, "%04d  %-18s %d\n", addr, op, data)
		case op == NEW:
			name := fmt.Sprintf("#%d", operand)
			if newClassNames != nil && int(operand) < len(newClassNames) {
				name = newClassNames[operand]
			}
			fmt.Fprintf(&b, "%04d  %-18s %s\n", addr, op, name)
		case op == PUSHB:
			fmt.Fprintf(&b, "%04d  %-18s %t\n", addr, op, operand != 0)
		case op == NOP, op == RET, op == POP,
			op == NEGF, op == NEGI, op == NOT,
			op == ADDII, op == ADDFF, op == ADDFI, op == ADDIF,
			op == SUBII, op == SUBFF, op == SUBFI, op == SUBIF,
			op == MULII, op == MULFF, op == MULFI, op == MULIF,
			op == DIVII, op == DIVFF, op == DIVFI, op == DIVIF, op == MOD,
			op == EQII, op == EQFF, op == EQFI, op == EQIF, op == EQBB,
			op == LTII, op == LTFF, op == LTFI, op == LTIF,
			op == LTEQII, op == LTEQFF, op == LTEQFI, op == LTEQIF,
			op == GTII, op == GTFF, op == GTFI, op == GTIF,
			op == GTEQII, op == GTEQFF, op == GTEQFI, op == GTEQIF,
			op == AND, op == OR:
			fmt.Fprintf(&b, "%04d  %s\n", addr, op)
		default:
			fmt.Fprintf(&b, "%04d  %-18s %d\n", addr, op, operand)
		}
	}
	return b.String()
}
