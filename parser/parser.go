// Package parser turns a token stream into the ast package's statement
// tree. Expressions are parsed with a precedence-climbing (Pratt) loop
// driven by token.Operators; statements are a straightforward
// recursive-descent grammar on top of it.
//
// The algorithm is grounded on original_source's Rust parser: expr(min_precedence,
// can_assign) walks a prefix production, then repeatedly folds in infix and
// postfix operators whose precedence clears min_precedence, threading
// can_assign through the walk so that only a genuine lvalue chain
// ("a", "a.b", "a[b]") is accepted on the left of "=".
package parser

import (
	"errors"

	"github.com/hashicorp/go-multierror"

	"nilan/ast"
	"nilan/token"
)

// errParse is returned by every parse method once a diagnostic has already
// been recorded via fail; callers only need to propagate it upward.
var errParse = errors.New("parse error")

// Parser walks a flat token slice with one token of lookahead.
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	errs     *multierror.Error
}

// New constructs a Parser over a complete token stream (as produced by
// lexer.Scan, terminated by an EOF token).
func New(tokens []token.Token) *Parser {
	if len(tokens) == 0 {
		tokens = []token.Token{token.CreateToken(token.EOF, "", 0, 0)}
	}
	p := &Parser{tokens: tokens}
	p.current = p.fetch()
	return p
}

func (p *Parser) fetch() token.Token {
	if p.pos < len(p.tokens)-1 {
		t := p.tokens[p.pos]
		p.pos++
		return t
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) fail(e SyntaxError) error {
	p.errs = multierror.Append(p.errs, e)
	return errParse
}

// advance skips any pending newlines, then shifts current into previous and
// pulls a fresh lookahead token. Newlines are otherwise transparent to
// consumption; they only matter to check, which can test for one without
// skipping past it.
func (p *Parser) advance() {
	for p.current.TokenType == token.NEWLINE {
		p.current = p.fetch()
	}
	p.previous = p.current
	p.current = p.fetch()
}

func (p *Parser) next() token.Token {
	p.advance()
	return p.previous
}

// peek returns the current lookahead token, optionally skipping past
// newlines first (used when scanning for a trailing infix/postfix operator).
func (p *Parser) peek(ignoreNewlines bool) token.Token {
	for ignoreNewlines && p.current.TokenType == token.NEWLINE {
		p.current = p.fetch()
	}
	return p.current
}

func (p *Parser) check(typ token.TokenType) bool {
	ignoreNewlines := typ != token.NEWLINE
	return p.peek(ignoreNewlines).TokenType == typ
}

func (p *Parser) checkConsume(typ token.TokenType) bool {
	if p.check(typ) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consume(typ token.TokenType) error {
	if p.checkConsume(typ) {
		return nil
	}
	return p.fail(expectedInstead(p.current, typ))
}

func (p *Parser) atEnd() bool {
	return p.check(token.EOF)
}

func isAssignable(typ token.TokenType) bool {
	return typ == token.ASSIGN
}

// boundaries is the set of token kinds sync() treats as a safe restart point
// after a parse error: the start of a declaration/statement, or a closing
// brace. sync() looks past newlines with peek(true), so the NEWLINE entry
// never ends a resync.
var boundaries = map[token.TokenType]bool{
	token.FUNC: true, token.VAR: true, token.CONST: true, token.IF: true,
	token.WHILE: true, token.LOOP: true, token.FOR: true, token.RETURN: true,
	token.THROW: true, token.TRY: true, token.IMPORT: true, token.EXPORT: true,
	token.BREAK: true, token.CONTINUE: true, token.NEWLINE: true, token.RCUR: true,
}

func (p *Parser) sync() {
	for !p.atEnd() {
		if boundaries[p.peek(true).TokenType] {
			return
		}
		p.advance()
	}
}

// --- expression grammar -----------------------------------------------

func (p *Parser) identifier() (token.Token, error) {
	if err := p.consume(token.IDENTIFIER); err != nil {
		return token.Token{}, err
	}
	return p.previous, nil
}

func (p *Parser) exprs(closing token.TokenType) ([]ast.Expression, error) {
	if p.checkConsume(closing) {
		return nil, nil
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	items := []ast.Expression{first}
	for p.checkConsume(token.COMMA) {
		if p.checkConsume(closing) {
			return items, nil
		}
		next, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, next)
	}
	if err := p.consume(closing); err != nil {
		return nil, err
	}
	return items, nil
}

func (p *Parser) list(bracket token.Token) (ast.Expression, error) {
	items, err := p.exprs(token.RBRACKET)
	if err != nil {
		return nil, err
	}
	return ast.ListLiteral{Bracket: bracket, Items: items}, nil
}

func (p *Parser) prop() (ast.ObjectProperty, error) {
	name, err := p.identifier()
	if err != nil {
		return ast.ObjectProperty{}, err
	}
	var value ast.Expression
	if p.checkConsume(token.COLON) {
		value, err = p.parseExpr()
		if err != nil {
			return ast.ObjectProperty{}, err
		}
	}
	return ast.ObjectProperty{Name: name, Value: value}, nil
}

func (p *Parser) props() ([]ast.ObjectProperty, error) {
	if p.checkConsume(token.RCUR) {
		return nil, nil
	}
	first, err := p.prop()
	if err != nil {
		return nil, err
	}
	items := []ast.ObjectProperty{first}
	for p.checkConsume(token.COMMA) {
		if p.checkConsume(token.RCUR) {
			return items, nil
		}
		next, err := p.prop()
		if err != nil {
			return nil, err
		}
		items = append(items, next)
	}
	if err := p.consume(token.RCUR); err != nil {
		return nil, err
	}
	return items, nil
}

func (p *Parser) object(brace token.Token) (ast.Expression, error) {
	props, err := p.props()
	if err != nil {
		return nil, err
	}
	return ast.ObjectLiteral{Brace: brace, Properties: props}, nil
}

func (p *Parser) literal(tok token.Token) (ast.Expression, error) {
	switch tok.TokenType {
	case token.IDENTIFIER:
		return ast.Variable{Name: tok}, nil
	case token.NUMBER, token.STRING:
		return ast.Literal{Value: tok.Literal}, nil
	case token.TRUE:
		return ast.Literal{Value: true}, nil
	case token.FALSE:
		return ast.Literal{Value: false}, nil
	case token.NULL:
		return ast.Literal{Value: nil}, nil
	case token.LBRACKET:
		return p.list(tok)
	case token.LCUR:
		return p.object(tok)
	default:
		panic("parser: literal called on non-literal token " + string(tok.TokenType))
	}
}

func (p *Parser) unary(op token.Token) (ast.Expression, error) {
	rule := token.Operators[op.TokenType]
	right, err := p.expr(rule.Prefix, false)
	if err != nil {
		return nil, err
	}
	return ast.Unary{Operator: op, Right: right}, nil
}

func (p *Parser) group() (ast.Expression, error) {
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.consume(token.RPA); err != nil {
		return nil, err
	}
	return ast.Grouping{Expression: e}, nil
}

func (p *Parser) params(closing token.TokenType) ([]token.Token, error) {
	if p.checkConsume(closing) {
		return nil, nil
	}
	first, err := p.identifier()
	if err != nil {
		return nil, err
	}
	items := []token.Token{first}
	for p.checkConsume(token.COMMA) {
		if p.checkConsume(closing) {
			return items, nil
		}
		next, err := p.identifier()
		if err != nil {
			return nil, err
		}
		items = append(items, next)
	}
	if err := p.consume(closing); err != nil {
		return nil, err
	}
	return items, nil
}

// lambda parses "|params| { body }" or the empty-parameter shorthand
// "|| { body }" (lexed as a single DPIPE token).
func (p *Parser) lambda(pipe token.Token) (ast.Expression, error) {
	var params []token.Token
	var err error
	if pipe.TokenType != token.DPIPE {
		params, err = p.params(token.PIPE)
		if err != nil {
			return nil, err
		}
	}
	if err := p.consume(token.LCUR); err != nil {
		return nil, err
	}
	body, err := p.blockStatements()
	if err != nil {
		return nil, err
	}
	return ast.Lambda{Pipe: pipe, Params: params, Body: body}, nil
}

// expr parses any expression binding at least as tightly as min_precedence,
// tracking whether the expression built so far is a valid assignment target.
func (p *Parser) expr(minPrecedence int, canAssign bool) (ast.Expression, error) {
	tok := p.next()

	var left ast.Expression
	var err error
	switch tok.TokenType {
	case token.IDENTIFIER, token.NUMBER, token.STRING, token.TRUE, token.FALSE, token.NULL,
		token.LBRACKET, token.LCUR:
		left, err = p.literal(tok)
	case token.SUB, token.BANG:
		left, err = p.unary(tok)
	case token.LPA:
		canAssign = false
		left, err = p.group()
	case token.PIPE, token.DPIPE:
		canAssign = false
		left, err = p.lambda(tok)
	default:
		return nil, p.fail(expectedExpr(tok))
	}
	if err != nil {
		return nil, err
	}

	for !p.check(token.NEWLINE) && !p.atEnd() {
		opTok := p.peek(true)
		rule, ok := token.Operators[opTok.TokenType]
		if !ok {
			break
		}

		if rule.HasInfix {
			if minPrecedence < rule.Infix {
				break
			}
			if opTok.TokenType != token.ASSIGN {
				canAssign = false
			}
			p.advance()
			if opTok.TokenType == token.ASSIGN && !canAssign {
				return nil, p.fail(invalidRhs(opTok))
			}

			nextMin := rule.Infix
			if rule.Associativity == token.Left {
				nextMin = rule.Infix - 1
			}
			right, err := p.expr(nextMin, canAssign)
			if err != nil {
				return nil, err
			}

			switch {
			case opTok.TokenType == token.ASSIGN:
				name, ok := left.(ast.Variable)
				if !ok {
					return nil, p.fail(invalidRhs(opTok))
				}
				left = ast.Assign{Name: name.Name, Value: right}
			case opTok.TokenType == token.AND || opTok.TokenType == token.OR:
				left = ast.Logical{Left: left, Operator: opTok, Right: right}
			default:
				left = ast.Binary{Left: left, Operator: opTok, Right: right}
			}
			continue
		}

		if rule.HasPostfix {
			if minPrecedence < rule.Postfix {
				break
			}
			p.advance()

			switch opTok.TokenType {
			case token.LPA:
				args, err := p.exprs(token.RPA)
				if err != nil {
					return nil, err
				}
				left = ast.Call{Paren: opTok, Callee: left, Args: args}
			case token.DOT:
				name, err := p.identifier()
				if err != nil {
					return nil, err
				}
				key := ast.Literal{Value: name.Lexeme}
				if isAssignable(p.peek(true).TokenType) {
					eq := p.next()
					if !canAssign {
						return nil, p.fail(invalidRhs(eq))
					}
					value, err := p.expr(token.PrecAssignment, true)
					if err != nil {
						return nil, err
					}
					left = ast.Set{Operator: eq, Target: left, Key: key, Value: value}
				} else {
					left = ast.Get{Operator: opTok, Target: left, Key: key}
				}
			case token.LBRACKET:
				key, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if err := p.consume(token.RBRACKET); err != nil {
					return nil, err
				}
				if isAssignable(p.peek(true).TokenType) {
					eq := p.next()
					if !canAssign {
						return nil, p.fail(invalidRhs(eq))
					}
					value, err := p.expr(token.PrecAssignment, true)
					if err != nil {
						return nil, err
					}
					left = ast.Set{Operator: eq, Target: left, Key: key, Value: value}
				} else {
					left = ast.Get{Operator: opTok, Target: left, Key: key}
				}
			default:
				panic("parser: unhandled postfix token " + string(opTok.TokenType))
			}
			continue
		}

		break
	}

	return left, nil
}

func (p *Parser) parseExpr() (ast.Expression, error) {
	return p.expr(token.PrecAssignment, true)
}

// --- statement grammar --------------------------------------------------

func (p *Parser) blockStatements() ([]ast.Stmt, error) {
	var stmts []ast.Stmt
	for !p.atEnd() && !p.check(token.RCUR) {
		s, err := p.decl()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	if err := p.consume(token.RCUR); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *Parser) block() (ast.Stmt, error) {
	stmts, err := p.blockStatements()
	if err != nil {
		return nil, err
	}
	return ast.BlockStmt{Statements: stmts}, nil
}

func (p *Parser) varDecl(isConst bool) (ast.Stmt, error) {
	kw := p.previous
	name, err := p.identifier()
	if err != nil {
		return nil, err
	}
	var init ast.Expression
	if p.checkConsume(token.ASSIGN) {
		init, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return ast.VarStmt{Keyword: kw, Name: name, Const: isConst, Initializer: init}, nil
}

func (p *Parser) functionDecl() (ast.Stmt, error) {
	name, err := p.identifier()
	if err != nil {
		return nil, err
	}
	if err := p.consume(token.LPA); err != nil {
		return nil, err
	}
	params, err := p.params(token.RPA)
	if err != nil {
		return nil, err
	}
	if err := p.consume(token.LCUR); err != nil {
		return nil, err
	}
	body, err := p.blockStatements()
	if err != nil {
		return nil, err
	}
	return ast.FunctionDecl{Name: name, Params: params, Body: body}, nil
}

func (p *Parser) ifElseStmt() (ast.Stmt, error) {
	cond, thenStmt, err := p.parenCondAndBlock()
	if err != nil {
		return nil, err
	}

	var elifs []ast.ElifBranch
	for p.checkConsume(token.ELIF) {
		c, b, err := p.parenCondAndBlock()
		if err != nil {
			return nil, err
		}
		elifs = append(elifs, ast.ElifBranch{Condition: c, Then: b})
	}

	var elseStmt ast.Stmt
	if p.checkConsume(token.ELSE) {
		if err := p.consume(token.LCUR); err != nil {
			return nil, err
		}
		elseStmt, err = p.block()
		if err != nil {
			return nil, err
		}
	}
	return ast.IfStmt{Condition: cond, Then: thenStmt, Elifs: elifs, Else: elseStmt}, nil
}

// parenCondAndBlock parses "(condition) { block }", the shape shared by if,
// elif and while.
func (p *Parser) parenCondAndBlock() (ast.Expression, ast.Stmt, error) {
	if err := p.consume(token.LPA); err != nil {
		return nil, nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	if err := p.consume(token.RPA); err != nil {
		return nil, nil, err
	}
	if err := p.consume(token.LCUR); err != nil {
		return nil, nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, nil, err
	}
	return cond, body, nil
}

func (p *Parser) whileStmt() (ast.Stmt, error) {
	cond, body, err := p.parenCondAndBlock()
	if err != nil {
		return nil, err
	}
	return ast.WhileStmt{Condition: cond, Body: body}, nil
}

func (p *Parser) loopStmt() (ast.Stmt, error) {
	if err := p.consume(token.LCUR); err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return ast.LoopStmt{Body: body}, nil
}

func (p *Parser) forInStmt() (ast.Stmt, error) {
	kw := p.previous
	if err := p.consume(token.LPA); err != nil {
		return nil, err
	}
	elem, err := p.identifier()
	if err != nil {
		return nil, err
	}
	if err := p.consume(token.IN); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.consume(token.RPA); err != nil {
		return nil, err
	}
	if err := p.consume(token.LCUR); err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return ast.ForInStmt{Keyword: kw, Elem: elem, Iter: iter, Body: body}, nil
}

func (p *Parser) breakStmt() (ast.Stmt, error) {
	return ast.BreakStmt{Keyword: p.previous}, nil
}

func (p *Parser) continueStmt() (ast.Stmt, error) {
	return ast.ContinueStmt{Keyword: p.previous}, nil
}

func (p *Parser) returnStmt() (ast.Stmt, error) {
	kw := p.previous
	if p.check(token.NEWLINE) || p.atEnd() {
		return ast.ReturnStmt{Keyword: kw}, nil
	}
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return ast.ReturnStmt{Keyword: kw, Value: v}, nil
}

func (p *Parser) throwStmt() (ast.Stmt, error) {
	kw := p.previous
	if p.check(token.NEWLINE) || p.atEnd() {
		return ast.ThrowStmt{Keyword: kw}, nil
	}
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return ast.ThrowStmt{Keyword: kw, Value: v}, nil
}

func (p *Parser) tryCatchStmt() (ast.Stmt, error) {
	if err := p.consume(token.LCUR); err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	if err := p.consume(token.CATCH); err != nil {
		return nil, err
	}
	if err := p.consume(token.LPA); err != nil {
		return nil, err
	}
	binding, err := p.identifier()
	if err != nil {
		return nil, err
	}
	if err := p.consume(token.RPA); err != nil {
		return nil, err
	}
	if err := p.consume(token.LCUR); err != nil {
		return nil, err
	}
	handler, err := p.block()
	if err != nil {
		return nil, err
	}
	return ast.TryCatchStmt{Body: body, Binding: binding, Handler: handler}, nil
}

func (p *Parser) importDecl() (ast.Stmt, error) {
	kw := p.previous
	name, err := p.identifier()
	if err != nil {
		return nil, err
	}
	if err := p.consume(token.FROM); err != nil {
		return nil, err
	}
	if err := p.consume(token.STRING); err != nil {
		return nil, err
	}
	return ast.ImportStmt{Keyword: kw, Name: name, Path: p.previous}, nil
}

func (p *Parser) exportDecl() (ast.Stmt, error) {
	kw := p.previous
	switch {
	case p.checkConsume(token.FUNC):
		inner, err := p.functionDecl()
		if err != nil {
			return nil, err
		}
		return ast.ExportStmt{Keyword: kw, Inner: inner}, nil
	case p.checkConsume(token.VAR):
		inner, err := p.varDecl(false)
		if err != nil {
			return nil, err
		}
		return ast.ExportStmt{Keyword: kw, Inner: inner}, nil
	case p.checkConsume(token.CONST):
		inner, err := p.varDecl(true)
		if err != nil {
			return nil, err
		}
		return ast.ExportStmt{Keyword: kw, Inner: inner}, nil
	default:
		return nil, p.fail(expectedInstead(p.current, token.FUNC, token.VAR, token.CONST))
	}
}

func (p *Parser) exprStmt() (ast.Stmt, error) {
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return ast.ExpressionStmt{Expression: e}, nil
}

func (p *Parser) stmt() (ast.Stmt, error) {
	switch {
	case p.checkConsume(token.WHILE):
		return p.whileStmt()
	case p.checkConsume(token.LOOP):
		return p.loopStmt()
	case p.checkConsume(token.IF):
		return p.ifElseStmt()
	case p.checkConsume(token.TRY):
		return p.tryCatchStmt()
	case p.checkConsume(token.LCUR):
		return p.block()
	case p.checkConsume(token.BREAK):
		return p.breakStmt()
	case p.checkConsume(token.CONTINUE):
		return p.continueStmt()
	case p.checkConsume(token.RETURN):
		return p.returnStmt()
	case p.checkConsume(token.THROW):
		return p.throwStmt()
	case p.checkConsume(token.FOR):
		return p.forInStmt()
	default:
		return p.exprStmt()
	}
}

func (p *Parser) decl() (ast.Stmt, error) {
	switch {
	case p.checkConsume(token.FUNC):
		return p.functionDecl()
	case p.checkConsume(token.VAR):
		return p.varDecl(false)
	case p.checkConsume(token.CONST):
		return p.varDecl(true)
	case p.checkConsume(token.EXPORT):
		return p.exportDecl()
	case p.checkConsume(token.IMPORT):
		return p.importDecl()
	default:
		return p.stmt()
	}
}

// Parse consumes the whole token stream and returns every top-level
// declaration. Parse errors do not stop the pass: the parser resynchronizes
// at the next statement boundary and keeps going so a single run can report
// more than one mistake; all of them are joined into the returned error.
func (p *Parser) Parse() ([]ast.Stmt, error) {
	var decls []ast.Stmt
	for !p.atEnd() {
		d, err := p.decl()
		if err != nil {
			p.sync()
			continue
		}
		decls = append(decls, d)
	}
	if p.errs != nil {
		return decls, p.errs.ErrorOrNil()
	}
	return decls, nil
}
