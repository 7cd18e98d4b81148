package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nilan/token"
)

func scan(t *testing.T, source string) []token.Token {
	t.Helper()
	tokens, err := New(source).Scan()
	assert.NoError(t, err)
	return tokens
}

func tokenTypes(tokens []token.Token) []token.TokenType {
	types := make([]token.TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.TokenType
	}
	return types
}

func TestScanArabicIdentifier(t *testing.T) {
	tokens := scan(t, "اسم")
	assert.Equal(t, []token.TokenType{token.IDENTIFIER, token.EOF}, tokenTypes(tokens))
	assert.Equal(t, "اسم", tokens[0].Lexeme)
}

func TestScanKeywordNotIdentifier(t *testing.T) {
	tokens := scan(t, "إذا")
	assert.Equal(t, token.IF, tokens[0].TokenType)
}

func TestScanNumberLiteral(t *testing.T) {
	tokens := scan(t, "3.14")
	assert.Equal(t, token.NUMBER, tokens[0].TokenType)
	assert.Equal(t, 3.14, tokens[0].Literal)
	assert.Equal(t, "3.14", tokens[0].Lexeme)
}

func TestScanIntegerLiteral(t *testing.T) {
	tokens := scan(t, "42")
	assert.Equal(t, 42.0, tokens[0].Literal)
}

func TestScanNumberWithTwoDecimalPointsErrors(t *testing.T) {
	_, err := New("1.2.3").Scan()
	assert.Error(t, err)
}

func TestScanStringLiteral(t *testing.T) {
	tokens := scan(t, `"مرحبا"`)
	assert.Equal(t, token.STRING, tokens[0].TokenType)
	assert.Equal(t, "مرحبا", tokens[0].Literal)
}

func TestScanUnclosedStringErrors(t *testing.T) {
	_, err := New(`"مرحبا`).Scan()
	assert.Error(t, err)
}

func TestScanComment(t *testing.T) {
	tokens := scan(t, "متغير # هذا تعليق\nآخر")
	// the comment's words must not surface as extra identifiers: the "متغير"
	// keyword, a newline, one identifier and an EOF, nothing more.
	assert.Equal(t, []token.TokenType{token.VAR, token.NEWLINE, token.IDENTIFIER, token.EOF}, tokenTypes(tokens))
}

func TestScanTwoCharOperators(t *testing.T) {
	cases := map[string]token.TokenType{
		"==": token.EQUAL_EQUAL,
		"!=": token.NOT_EQUAL,
		"<=": token.LESS_EQUAL,
		">=": token.LARGER_EQUAL,
		"||": token.DPIPE,
	}
	for src, want := range cases {
		tokens := scan(t, src)
		assert.Equal(t, want, tokens[0].TokenType, "source %q", src)
		assert.Equal(t, 1, countNonEOF(tokens), "source %q should scan to a single token", src)
	}
}

func TestScanSingleCharFallsBackWhenNoSecondChar(t *testing.T) {
	tokens := scan(t, "=")
	assert.Equal(t, token.ASSIGN, tokens[0].TokenType)

	tokens = scan(t, "!")
	assert.Equal(t, token.BANG, tokens[0].TokenType)
}

func TestScanArabicComma(t *testing.T) {
	tokens := scan(t, "،")
	assert.Equal(t, token.COMMA, tokens[0].TokenType)
}

func TestScanNewlineTracksLineAndColumn(t *testing.T) {
	tokens := scan(t, "أ\nب")
	assert.Equal(t, token.NEWLINE, tokens[1].TokenType)
	assert.EqualValues(t, 0, tokens[0].Line)
	assert.EqualValues(t, 1, tokens[2].Line)
	assert.Equal(t, 1, tokens[0].Column)
	assert.Equal(t, 1, tokens[2].Column)
}

func TestScanUnexpectedCharacterErrors(t *testing.T) {
	_, err := New("$").Scan()
	assert.Error(t, err)
}

func TestScanEndsWithEOF(t *testing.T) {
	tokens := scan(t, "")
	assert.Len(t, tokens, 1)
	assert.Equal(t, token.EOF, tokens[0].TokenType)
}

func countNonEOF(tokens []token.Token) int {
	n := 0
	for _, tok := range tokens {
		if tok.TokenType != token.EOF {
			n++
		}
	}
	return n
}
