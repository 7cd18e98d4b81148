package compiler

import (
	"encoding/binary"
	"fmt"
)

// Bytecode is what the compiler produces and the vm package executes: a flat
// instruction stream, the constant pool it indexes into, and a parallel
// per-instruction token list used to report runtime errors at a source
// line/column.
type Bytecode struct {
	Instructions Instructions
	Constants    []any
	Tokens       []Positioned
}

// Positioned is the minimal slice of a token.Token the vm needs to report a
// runtime error: its line and column. Kept separate from the token package
// so compiler/vm don't need to import token just for diagnostics.
type Positioned struct {
	Line   int32
	Column int
}

type Opcode byte

type Instructions []byte

// Opcode inventory, grounded on original_source/src/vm.rs's instruction set
// and spelled out by name in spec.md §4.2.
const (
	OpPop Opcode = iota
	OpConstant8
	OpConstant16
	OpNegate
	OpNot
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpRemainder
	OpEqual
	OpGreater
	OpGreaterEqual
	OpLess
	OpLessEqual
	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpLoop
	OpDefineGlobal
	OpSetGlobal
	OpGetGlobal
	OpGetLocal
	OpSetLocal
	OpBuildList
	OpBuildObject
	OpGet
	OpSet
	OpClosure
	OpCall
	OpReturn
	OpGetUpValue
	OpSetUpValue
	OpCloseUpValue
	OpAppendHandler
	OpPopHandler
	OpThrow
)

// Definition describes an opcode's name and the width, in bytes, of each of
// its fixed operands. Closure is the one opcode whose total size also
// depends on a value read at runtime (the upvalue count) — definitions only
// cover the fixed prefix (the count byte itself). Assemble emits only that
// prefix and the compiler appends the (is_local, index) pairs itself;
// Disassemble reads the tail specially.
type Definition struct {
	Name          string
	OperandWidths []int
}

var definitions = map[Opcode]*Definition{
	OpPop:           {"OpPop", nil},
	OpConstant8:     {"OpConstant8", []int{1}},
	OpConstant16:    {"OpConstant16", []int{2}},
	OpNegate:        {"OpNegate", nil},
	OpNot:           {"OpNot", nil},
	OpAdd:           {"OpAdd", nil},
	OpSubtract:      {"OpSubtract", nil},
	OpMultiply:      {"OpMultiply", nil},
	OpDivide:        {"OpDivide", nil},
	OpRemainder:     {"OpRemainder", nil},
	OpEqual:         {"OpEqual", nil},
	OpGreater:       {"OpGreater", nil},
	OpGreaterEqual:  {"OpGreaterEqual", nil},
	OpLess:          {"OpLess", nil},
	OpLessEqual:     {"OpLessEqual", nil},
	OpJump:          {"OpJump", []int{2}},
	OpJumpIfFalse:   {"OpJumpIfFalse", []int{2}},
	OpJumpIfTrue:    {"OpJumpIfTrue", []int{2}},
	OpLoop:          {"OpLoop", []int{2}},
	OpDefineGlobal:  {"OpDefineGlobal", nil},
	OpSetGlobal:     {"OpSetGlobal", nil},
	OpGetGlobal:     {"OpGetGlobal", nil},
	OpGetLocal:      {"OpGetLocal", []int{1}},
	OpSetLocal:      {"OpSetLocal", []int{1}},
	OpBuildList:     {"OpBuildList", []int{1}},
	OpBuildObject:   {"OpBuildObject", []int{1}},
	OpGet:           {"OpGet", nil},
	OpSet:           {"OpSet", nil},
	OpClosure:       {"OpClosure", []int{1}},
	OpCall:          {"OpCall", []int{1}},
	OpReturn:        {"OpReturn", nil},
	OpGetUpValue:    {"OpGetUpValue", []int{1}},
	OpSetUpValue:    {"OpSetUpValue", []int{1}},
	OpCloseUpValue:  {"OpCloseUpValue", nil},
	OpAppendHandler: {"OpAppendHandler", []int{2}},
	OpPopHandler:    {"OpPopHandler", nil},
	OpThrow:         {"OpThrow", nil},
}

func Get(op Opcode) (*Definition, error) {
	def, ok := definitions[op]
	if !ok {
		return nil, fmt.Errorf("opcode %d undefined", op)
	}
	return def, nil
}

// Assemble encodes an opcode and its fixed operands into a byte instruction.
// Two-byte operands are little-endian, per spec.md §4.2. Closure's upvalue
// pairs (is_local, index) are not fixed operands of this opcode and are
// appended by the caller after Assemble returns the 2-byte header
// (opcode + count).
func Assemble(op Opcode, operands ...int) []byte {
	def, err := Get(op)
	if err != nil {
		return nil
	}

	size := 1
	for _, w := range def.OperandWidths {
		size += w
	}
	instruction := make([]byte, size)
	instruction[0] = byte(op)

	offset := 1
	for i, operand := range operands {
		width := def.OperandWidths[i]
		switch width {
		case 1:
			instruction[offset] = byte(operand)
		case 2:
			binary.LittleEndian.PutUint16(instruction[offset:], uint16(operand))
		}
		offset += width
	}
	return instruction
}

func ReadUint16(ins Instructions, offset int) uint16 {
	return binary.LittleEndian.Uint16(ins[offset:])
}

func ReadUint8(ins Instructions, offset int) uint8 {
	return uint8(ins[offset])
}
