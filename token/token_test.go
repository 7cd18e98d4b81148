package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateToken(t *testing.T) {
	tok := CreateToken(ASSIGN, "=", 3, 7)
	assert.Equal(t, ASSIGN, tok.TokenType)
	assert.Equal(t, "=", tok.Lexeme)
	assert.Nil(t, tok.Literal)
	assert.EqualValues(t, 3, tok.Line)
	assert.Equal(t, 7, tok.Column)
}

func TestCreateLiteralToken(t *testing.T) {
	tok := CreateLiteralToken(NUMBER, 42.0, "42", 1, 0)
	assert.Equal(t, NUMBER, tok.TokenType)
	assert.Equal(t, 42.0, tok.Literal)
}

func TestSingleCharTokenType(t *testing.T) {
	tt, ok := SingleCharTokenType('،')
	assert.True(t, ok)
	assert.Equal(t, COMMA, tt)

	_, ok = SingleCharTokenType('ا')
	assert.False(t, ok)
}

func TestKeyWordsCoversControlFlow(t *testing.T) {
	for lexeme, want := range map[string]TokenType{
		"إذا":  IF,
		"وإلا": ELSE,
		"طالما": WHILE,
		"حاول": TRY,
		"امسك": CATCH,
	} {
		assert.Equal(t, want, KeyWords[lexeme])
	}
}

func TestPrecedenceDirectionSmallerBindsTighter(t *testing.T) {
	// src/operators.rs's convention, inverted from the usual Pratt-parser
	// scale: postfix application binds tightest and gets the smallest number.
	assert.Less(t, Operators[LPA].Postfix, Operators[MULT].Infix)
	assert.Less(t, Operators[MULT].Infix, Operators[ADD].Infix)
	assert.Less(t, Operators[ADD].Infix, Operators[EQUAL_EQUAL].Infix)
	assert.Less(t, Operators[AND].Infix, Operators[OR].Infix)
	assert.Less(t, Operators[OR].Infix, Operators[ASSIGN].Infix)
}

func TestAssignIsRightAssociative(t *testing.T) {
	assert.Equal(t, Right, Operators[ASSIGN].Associativity)
	assert.Equal(t, Left, Operators[ADD].Associativity)
}
