package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nilan/ast"
	"nilan/lexer"
	"nilan/token"
)

func parse(t *testing.T, source string) []ast.Stmt {
	t.Helper()
	tokens, err := lexer.New(source).Scan()
	require.NoError(t, err)
	stmts, err := New(tokens).Parse()
	require.NoError(t, err)
	return stmts
}

func TestParseBinaryPrecedence(t *testing.T) {
	stmts := parse(t, "1 + 2 * 3")
	require.Len(t, stmts, 1)
	expr := stmts[0].(ast.ExpressionStmt).Expression
	bin := expr.(ast.Binary)
	assert.Equal(t, token.ADD, bin.Operator.TokenType)
	assert.IsType(t, ast.Binary{}, bin.Right)
	assert.IsType(t, ast.Literal{}, bin.Left)
}

func TestParseAssignIsRightAssociative(t *testing.T) {
	stmts := parse(t, "س = آخر = 1")
	assign := stmts[0].(ast.ExpressionStmt).Expression.(ast.Assign)
	assert.Equal(t, "س", assign.Name.Lexeme)
	inner := assign.Value.(ast.Assign)
	assert.Equal(t, "آخر", inner.Name.Lexeme)
}

func TestParseInvalidAssignTargetErrors(t *testing.T) {
	tokens, err := lexer.New("1 + 1 = 2").Scan()
	require.NoError(t, err)
	_, err = New(tokens).Parse()
	assert.Error(t, err)
}

func TestParseCallExpression(t *testing.T) {
	stmts := parse(t, "اطبع(1، 2)")
	call := stmts[0].(ast.ExpressionStmt).Expression.(ast.Call)
	assert.Len(t, call.Args, 2)
}

func TestParseGetAndSet(t *testing.T) {
	stmts := parse(t, "س.ص = 1")
	set := stmts[0].(ast.ExpressionStmt).Expression.(ast.Set)
	assert.Equal(t, "ص", set.Key.(ast.Literal).Value)

	stmts = parse(t, "س[0]")
	get := stmts[0].(ast.ExpressionStmt).Expression.(ast.Get)
	assert.IsType(t, ast.Variable{}, get.Target)
}

func TestParseVarDeclWithoutInitializer(t *testing.T) {
	stmts := parse(t, "متغير س")
	v := stmts[0].(ast.VarStmt)
	assert.Equal(t, "س", v.Name.Lexeme)
	assert.False(t, v.Const)
	assert.Nil(t, v.Initializer)
}

func TestParseIfElifElse(t *testing.T) {
	stmts := parse(t, `
إذا (صحيح) {
	1
} إلا_إذا (صحيح) {
	2
} وإلا {
	3
}`)
	ifStmt := stmts[0].(ast.IfStmt)
	assert.Len(t, ifStmt.Elifs, 1)
	assert.NotNil(t, ifStmt.Else)
}

func TestParseFunctionDecl(t *testing.T) {
	stmts := parse(t, "دالة جمع(أ، ب) { أرجع أ + ب }")
	fn := stmts[0].(ast.FunctionDecl)
	assert.Equal(t, "جمع", fn.Name.Lexeme)
	assert.Len(t, fn.Params, 2)
}

func TestParseLambdaEmptyParams(t *testing.T) {
	stmts := parse(t, "|| { 1 }")
	lambda := stmts[0].(ast.ExpressionStmt).Expression.(ast.Lambda)
	assert.Nil(t, lambda.Params)
}

func TestParseForIn(t *testing.T) {
	stmts := parse(t, "لكل (ع في قائمتي) { 1 }")
	forIn := stmts[0].(ast.ForInStmt)
	assert.Equal(t, "ع", forIn.Elem.Lexeme)
}

func TestParseTryCatch(t *testing.T) {
	stmts := parse(t, `
حاول {
	1
} امسك (خ) {
	2
}`)
	tc := stmts[0].(ast.TryCatchStmt)
	assert.Equal(t, "خ", tc.Binding.Lexeme)
}

func TestParseRecoversAfterErrorAndReportsMultiple(t *testing.T) {
	tokens, err := lexer.New("1 = 1\nمتغير\n2 = 2").Scan()
	require.NoError(t, err)
	_, perr := New(tokens).Parse()
	require.Error(t, perr)
	errs := parseErrorList(perr)
	assert.GreaterOrEqual(t, len(errs), 2)
}

func parseErrorList(err error) []error {
	type multi interface{ WrappedErrors() []error }
	if m, ok := err.(multi); ok {
		return m.WrappedErrors()
	}
	return []error{err}
}
