package vm

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nilan/compiler"
	"nilan/lexer"
	"nilan/natives"
	"nilan/parser"
)

func run(t *testing.T, source string) (any, error) {
	t.Helper()
	tokens, err := lexer.New(source).Scan()
	require.NoError(t, err)
	stmts, err := parser.New(tokens).Parse()
	require.NoError(t, err)
	fn, err := compiler.New().Compile(stmts)
	require.NoError(t, err)

	machine := New()
	natives.Register(machine, time.Now())
	return machine.Run(fn)
}

func TestRunArithmetic(t *testing.T) {
	v, err := run(t, "أرجع 1 + 2 * 3")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
}

func TestRunStringConcatenation(t *testing.T) {
	v, err := run(t, `أرجع "أ" + "ب"`)
	require.NoError(t, err)
	assert.Equal(t, "أب", v)
}

func TestRunDivisionByZeroYieldsInf(t *testing.T) {
	v, err := run(t, "أرجع 1 / 0")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v.(float64), 1))
}

func TestRunRemainderUsesFloatModulo(t *testing.T) {
	v, err := run(t, "أرجع 5.5 % 2")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)
}

func TestRunComparisonAndLogic(t *testing.T) {
	v, err := run(t, "أرجع 1 < 2 و 3 > 2")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestRunFunctionCallAndClosure(t *testing.T) {
	v, err := run(t, `
دالة اصنع_عداد() {
	متغير ن = 0
	أرجع || {
		ن = ن + 1
		أرجع ن
	}
}
متغير عد = اصنع_عداد()
عد()
عد()
أرجع عد()
`)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestRunListIndexing(t *testing.T) {
	v, err := run(t, "متغير ل = [10، 20، 30]\nأرجع ل[1]")
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)
}

func TestRunListIndexMustBeIntegerValued(t *testing.T) {
	_, err := run(t, "متغير ل = [1، 2، 3]\nأرجع ل[0.5]")
	require.Error(t, err)
}

func TestRunListIndexOutOfBoundsRaises(t *testing.T) {
	_, err := run(t, "متغير ل = [1]\nأرجع ل[5]")
	require.Error(t, err)
}

func TestRunNegativeListIndexWrapsFromEnd(t *testing.T) {
	v, err := run(t, `
متغير ل = [10، 20، 30]
ل[-1] = 99
أرجع ل[2]
`)
	require.NoError(t, err)
	assert.Equal(t, 99.0, v)
}

func TestRunNegativeListIndexOutOfRangeRaises(t *testing.T) {
	_, err := run(t, "متغير ل = [1، 2، 3]\nأرجع ل[-4]")
	require.Error(t, err)
}

func TestRunStringIndexing(t *testing.T) {
	v, err := run(t, `أرجع "أبجد"[1]`)
	require.NoError(t, err)
	assert.Equal(t, "ب", v)
}

func TestRunNegativeStringIndexWrapsFromEnd(t *testing.T) {
	v, err := run(t, `أرجع "أبجد"[-1]`)
	require.NoError(t, err)
	assert.Equal(t, "د", v)
}

func TestRunObjectGetSet(t *testing.T) {
	v, err := run(t, `
متغير ك = {س: 1}
ك.س = 2
أرجع ك.س
`)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
}

func TestRunObjectGetMissingKeyRaises(t *testing.T) {
	_, err := run(t, "متغير ك = {س: 1}\nأرجع ك.غير_موجود")
	require.Error(t, err)
}

func TestRunTryCatchCatchesThrow(t *testing.T) {
	v, err := run(t, `
حاول {
	ارم "فشل"
} امسك (خ) {
	أرجع خ
}
`)
	require.NoError(t, err)
	assert.Equal(t, "فشل", v)
}

func TestRunUncaughtThrowReportsBacktrace(t *testing.T) {
	_, err := run(t, `
دالة تفجر() {
	ارم "فشل"
}
تفجر()
`)
	require.Error(t, err)
	var rerr RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.NotEmpty(t, rerr.Frames)
}

func TestRunForInUsesSizeNative(t *testing.T) {
	v, err := run(t, `
متغير مجموع = 0
متغير ل = [1، 2، 3]
لكل (ع في ل) {
	مجموع = مجموع + ع
}
أرجع مجموع
`)
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)
}

func TestRunWhileAndBreakContinue(t *testing.T) {
	v, err := run(t, `
متغير ن = 0
متغير مجموع = 0
طالما (ن < 10) {
	ن = ن + 1
	إذا (ن == 5) {
		استمر
	}
	إذا (ن == 8) {
		اكسر
	}
	مجموع = مجموع + ن
}
أرجع مجموع
`)
	require.NoError(t, err)
	assert.Equal(t, 1.0+2+3+4+6+7, v)
}
