package compiler

import (
	"fmt"
	"strings"
)

// Disassemble renders a compiled Function and, recursively, every nested
// Function it closes over, as human-readable text. It walks Definition the
// same way Assemble does, so it never drifts from the opcode table.
func Disassemble(fn *Function) string {
	var b strings.Builder
	disassembleFunction(&b, fn, "")
	return b.String()
}

func disassembleFunction(b *strings.Builder, fn *Function, indent string) {
	name := fn.Name
	if name == "" {
		name = "<script>"
	}
	fmt.Fprintf(b, "%sدالة %s (arity=%d)\n", indent, name, fn.Arity)

	ins := fn.Chunk.Instructions
	var nested []*Function
	var lastLoaded any
	offset := 0
	for offset < len(ins) {
		op := Opcode(ins[offset])
		def, err := Get(op)
		if err != nil {
			fmt.Fprintf(b, "%s  %04d ERROR: %v\n", indent, offset, err)
			offset++
			continue
		}

		switch op {
		case OpClosure:
			count := int(ins[offset+1])
			fmt.Fprintf(b, "%s  %04d %-16s upvalues=%d\n", indent, offset, def.Name, count)
			offset += 2
			for i := 0; i < count; i++ {
				isLocal := ins[offset] != 0
				idx := int(ins[offset+1])
				fmt.Fprintf(b, "%s        | %v %d\n", indent, isLocal, idx)
				offset += 2
			}
			if nestedFn, ok := lastLoaded.(*Function); ok {
				nested = append(nested, nestedFn)
			}
			continue
		case OpConstant8, OpConstant16:
			var idx int
			if op == OpConstant8 {
				idx = int(ReadUint8(ins, offset+1))
			} else {
				idx = int(ReadUint16(ins, offset+1))
			}
			var cv any
			if idx < len(fn.Chunk.Constants) {
				cv = fn.Chunk.Constants[idx]
			}
			fmt.Fprintf(b, "%s  %04d %-16s %4d (%v)\n", indent, offset, def.Name, idx, cv)
			lastLoaded = cv
		default:
			fmt.Fprintf(b, "%s  %04d %-16s", indent, offset, def.Name)
			pos := offset + 1
			for _, w := range def.OperandWidths {
				switch w {
				case 1:
					fmt.Fprintf(b, " %d", ReadUint8(ins, pos))
				case 2:
					fmt.Fprintf(b, " %d", ReadUint16(ins, pos))
				}
				pos += w
			}
			b.WriteString("\n")
		}

		offset++
		for _, w := range def.OperandWidths {
			offset += w
		}
	}

	for _, n := range nested {
		disassembleFunction(b, n, indent+"  ")
	}
}
