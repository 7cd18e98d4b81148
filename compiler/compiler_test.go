package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nilan/lexer"
	"nilan/parser"
)

func compileSource(t *testing.T, source string) *Function {
	t.Helper()
	tokens, err := lexer.New(source).Scan()
	require.NoError(t, err)
	stmts, err := parser.New(tokens).Parse()
	require.NoError(t, err)
	fn, err := New().Compile(stmts)
	require.NoError(t, err)
	return fn
}

func TestCompileEmitsTrailingReturn(t *testing.T) {
	fn := compileSource(t, "1")
	ins := fn.Chunk.Instructions
	require.NotEmpty(t, ins)
	assert.Equal(t, OpReturn, Opcode(ins[len(ins)-1]))
}

func TestCompileExpressionStatementPops(t *testing.T) {
	fn := compileSource(t, "1 + 1")
	ins := fn.Chunk.Instructions
	assert.Contains(t, disassembleOpcodes(ins), OpPop)
}

func TestCompileFunctionReservesSelfSlot(t *testing.T) {
	fn := compileSource(t, "دالة س(أ) { أرجع أ }")
	// slot 0 is reserved for the closure itself, so a single declared
	// parameter must live at local slot 1.
	nested := firstFunctionConstant(t, fn)
	assert.Equal(t, 1, nested.Arity)
	ins := nested.Chunk.Instructions
	require.GreaterOrEqual(t, len(ins), 2)
	assert.Equal(t, OpGetLocal, Opcode(ins[0]))
	assert.Equal(t, byte(1), ins[1])
}

func TestCompileVarDeclDoesNotEmitExtraSetLocal(t *testing.T) {
	fn := compileSource(t, "دالة س() { متغير أ = 1 \n أرجع أ }")
	nested := firstFunctionConstant(t, fn)
	opcodes := disassembleOpcodes(nested.Chunk.Instructions)
	setLocals := 0
	for _, op := range opcodes {
		if op == OpSetLocal {
			setLocals++
		}
	}
	// declaring "أ" pushes its initializer value directly into its slot;
	// no separate OpSetLocal is needed for a declaration.
	assert.Equal(t, 0, setLocals)
}

func TestCompileClosureCapturesLocal(t *testing.T) {
	fn := compileSource(t, `
دالة خارجية() {
	متغير س = 1
	أرجع || { س }
}`)
	outer := firstFunctionConstant(t, fn)
	opcodes := disassembleOpcodes(outer.Chunk.Instructions)
	assert.Contains(t, opcodes, OpClosure)
	// "س" is the outer function's local slot 1 (slot 0 is its own closure).
	inner := firstFunctionConstant(t, outer)
	assert.Equal(t, []UpvalueRef{{IsLocal: true, Index: 1}}, inner.Upvalues)
}

func TestCompileForInUsesSizeNative(t *testing.T) {
	fn := compileSource(t, "متغير قائمتي = []\nلكل (ع في قائمتي) { ع }")
	constants := fn.Chunk.Constants
	found := false
	for _, c := range constants {
		if s, ok := c.(string); ok && s == "حجم" {
			found = true
		}
	}
	assert.True(t, found, "for-in must reference the size native by name")
}

func TestCompileUndefinedVariableIsSemanticError(t *testing.T) {
	tokens, err := lexer.New("غير_موجود").Scan()
	require.NoError(t, err)
	stmts, err := parser.New(tokens).Parse()
	require.NoError(t, err)
	_, cerr := New().Compile(stmts)
	assert.Error(t, cerr)
}

func firstFunctionConstant(t *testing.T, fn *Function) *Function {
	t.Helper()
	for _, c := range fn.Chunk.Constants {
		if nested, ok := c.(*Function); ok {
			return nested
		}
	}
	t.Fatal("no nested function constant found")
	return nil
}

func disassembleOpcodes(ins Instructions) []Opcode {
	var ops []Opcode
	offset := 0
	for offset < len(ins) {
		op := Opcode(ins[offset])
		ops = append(ops, op)
		def, err := Get(op)
		if err != nil {
			break
		}
		size := 1
		for _, w := range def.OperandWidths {
			size += w
		}
		if op == OpClosure && offset+1 < len(ins) {
			count := int(ins[offset+1])
			size += count * 2
		}
		offset += size
	}
	return ops
}
