package parser

import (
	"fmt"
	"strings"

	"nilan/token"
)

// SyntaxError is every diagnostic the parser can raise. Message already
// carries the fully formatted, Arabic-facing text; Line/Column locate it in
// the source for tooling that wants structured access.
type SyntaxError struct {
	Line    int32
	Column  int
	Message string
}

func CreateSyntaxError(line int32, column int, message string) SyntaxError {
	return SyntaxError{Line: line, Column: column, Message: message}
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("💥 خطأ في الصياغة:\nline:%d, column:%d - %s", e.Line, e.Column, e.Message)
}

// expectedInstead reports a required token that never arrived.
func expectedInstead(got token.Token, want ...token.TokenType) SyntaxError {
	names := make([]string, len(want))
	for i, w := range want {
		names[i] = fmt.Sprintf("'%s'", w)
	}
	msg := fmt.Sprintf("توقعت %s ولكن حصلت على '%s'", strings.Join(names, " أو "), got.TokenType)
	return CreateSyntaxError(got.Line, got.Column, msg)
}

// expectedExpr reports a token that cannot start an expression.
func expectedExpr(got token.Token) SyntaxError {
	return CreateSyntaxError(got.Line, got.Column, fmt.Sprintf("توقعت عبارة ولكن حصلت على '%s'", got.TokenType))
}

// invalidRhs reports an assignment whose left side is not a valid lvalue.
func invalidRhs(eq token.Token) SyntaxError {
	return CreateSyntaxError(eq.Line, eq.Column, "الجانب الأيمن لعلامة التساوي غير صحيح")
}
