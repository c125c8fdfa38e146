// Package parser implements a recursive descent parser for Lox. It consumes
// a token slice produced by the lexer and builds an AST, recovering at
// statement boundaries so that one malformed statement does not hide the
// errors or the valid statements that follow it.
package parser

import (
	"fmt"

	"github.com/holla2040/loxr/internal/script/ast"
	"github.com/holla2040/loxr/internal/script/token"
)

// maxArgs is the largest argument count a call expression may have.
const maxArgs = 255

// ---------------------------------------------------------------------------
// ParseError
// ---------------------------------------------------------------------------

// ParseError records a single error encountered during parsing.
type ParseError struct {
	Line     int
	Column   int
	Lexeme   string // offending token text, empty at end of input
	Severity string // "error" or "warning"
	Message  string
}

// Error implements the error interface.
func (e ParseError) Error() string {
	where := "at end"
	if e.Lexeme != "" {
		where = fmt.Sprintf("at '%s'", e.Lexeme)
	}
	return fmt.Sprintf("line %d, column %d: %s %s: %s", e.Line, e.Column, e.Severity, where, e.Message)
}

// bailout unwinds the parser to the enclosing declaration after an error.
type bailout struct{}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// Parser converts a token stream into an AST.
type Parser struct {
	tokens    []token.Token
	pos       int
	loopDepth int
	errors    []ParseError
}

// New creates a Parser for the given token slice (must end with TOKEN_EOF).
func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse runs the parser and returns the resulting program AST together with
// any errors that were encountered. Statements that parsed cleanly are
// returned even when errors occurred elsewhere.
func (p *Parser) Parse() (*ast.Program, []ParseError) {
	prog := &ast.Program{}
	if len(p.tokens) > 0 {
		prog.Position = p.tokens[0].Pos
	}

	for !p.atEnd() {
		if stmt := p.parseDeclaration(); stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
	}

	return prog, p.errors
}

// ---------------------------------------------------------------------------
// Token navigation
// ---------------------------------------------------------------------------

func (p *Parser) peek() token.Token {
	if p.pos >= len(p.tokens) {
		return token.Token{Type: token.TOKEN_EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekType() token.TokenType {
	return p.peek().Type
}

func (p *Parser) previous() token.Token {
	if p.pos == 0 {
		return token.Token{Type: token.TOKEN_EOF}
	}
	return p.tokens[p.pos-1]
}

func (p *Parser) advance() token.Token {
	tok := p.peek()
	if tok.Type != token.TOKEN_EOF {
		p.pos++
	}
	return tok
}

// expect consumes a token of type tt or fails with msg.
func (p *Parser) expect(tt token.TokenType, msg string) token.Token {
	if p.peekType() == tt {
		return p.advance()
	}
	p.fail(p.peek(), msg)
	return token.Token{}
}

func (p *Parser) match(types ...token.TokenType) bool {
	for _, tt := range types {
		if p.peekType() == tt {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) atEnd() bool {
	return p.peekType() == token.TOKEN_EOF
}

// ---------------------------------------------------------------------------
// Errors and recovery
// ---------------------------------------------------------------------------

// report records an error at tok without interrupting the parse.
func (p *Parser) report(tok token.Token, msg string) {
	p.errors = append(p.errors, ParseError{
		Line:     tok.Pos.Line,
		Column:   tok.Pos.Column,
		Lexeme:   tok.Lexeme,
		Severity: "error",
		Message:  msg,
	})
}

// fail records an error at tok and abandons the current declaration.
func (p *Parser) fail(tok token.Token, msg string) {
	p.report(tok, msg)
	panic(bailout{})
}

// synchronize skips tokens until just past a ';' or up to a token that
// starts a statement, so parsing can resume on a clean boundary.
func (p *Parser) synchronize() {
	p.advance()
	for !p.atEnd() {
		if p.previous().Type == token.TOKEN_SEMICOLON {
			return
		}
		if isStatementStart(p.peekType()) {
			return
		}
		p.advance()
	}
}

// isStatementStart returns true if tt could begin a statement.
func isStatementStart(tt token.TokenType) bool {
	switch tt {
	case token.TOKEN_VAR, token.TOKEN_PRINT, token.TOKEN_IF, token.TOKEN_WHILE,
		token.TOKEN_BREAK, token.TOKEN_LBRACE,
		token.TOKEN_CLASS, token.TOKEN_FUN, token.TOKEN_FOR, token.TOKEN_RETURN:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Declarations and statements
// ---------------------------------------------------------------------------

func (p *Parser) parseDeclaration() (stmt ast.Statement) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			p.synchronize()
			stmt = nil
		}
	}()

	if p.peekType() == token.TOKEN_VAR {
		return p.parseVarDecl()
	}
	return p.parseStatement()
}

func (p *Parser) parseVarDecl() *ast.VarStmt {
	kw := p.advance() // consume 'var'
	name := p.expect(token.TOKEN_IDENT, "expected variable name")

	stmt := &ast.VarStmt{Name: name, Position: kw.Pos}
	if p.match(token.TOKEN_EQUAL) {
		stmt.Initializer = p.parseExpression()
	}
	p.expect(token.TOKEN_SEMICOLON, "expected ';' after variable declaration")
	return stmt
}

func (p *Parser) parseStatement() ast.Statement {
	tok := p.peek()
	switch tok.Type {
	case token.TOKEN_PRINT:
		return p.parsePrintStmt()
	case token.TOKEN_LBRACE:
		return p.parseBlock()
	case token.TOKEN_IF:
		return p.parseIfStmt()
	case token.TOKEN_WHILE:
		return p.parseWhileStmt()
	case token.TOKEN_BREAK:
		return p.parseBreakStmt()
	}
	if token.IsReserved(tok.Type) {
		p.fail(tok, fmt.Sprintf("'%s' is a reserved word", tok.Lexeme))
	}
	return p.parseExpressionStmt()
}

func (p *Parser) parsePrintStmt() *ast.PrintStmt {
	kw := p.advance() // consume 'print'
	expr := p.parseExpression()
	p.expect(token.TOKEN_SEMICOLON, "expected ';' after value")
	return &ast.PrintStmt{Expr: expr, Position: kw.Pos}
}

func (p *Parser) parseExpressionStmt() *ast.ExpressionStmt {
	start := p.peek().Pos
	expr := p.parseExpression()
	p.expect(token.TOKEN_SEMICOLON, "expected ';' after expression")
	return &ast.ExpressionStmt{Expr: expr, Position: start}
}

func (p *Parser) parseBlock() *ast.BlockStmt {
	open := p.advance() // consume '{'
	block := &ast.BlockStmt{Position: open.Pos}
	for p.peekType() != token.TOKEN_RBRACE && !p.atEnd() {
		if stmt := p.parseDeclaration(); stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
	}
	p.expect(token.TOKEN_RBRACE, "expected '}' after block")
	return block
}

// parseIfStmt attaches an else to the nearest if, which resolves the
// dangling-else ambiguity by construction.
func (p *Parser) parseIfStmt() *ast.IfStmt {
	kw := p.advance() // consume 'if'
	p.expect(token.TOKEN_LPAREN, "expected '(' after 'if'")
	cond := p.parseExpression()
	p.expect(token.TOKEN_RPAREN, "expected ')' after if condition")

	stmt := &ast.IfStmt{Condition: cond, Position: kw.Pos}
	stmt.Then = p.parseStatement()
	if p.match(token.TOKEN_ELSE) {
		stmt.Else = p.parseStatement()
	}
	return stmt
}

func (p *Parser) parseWhileStmt() *ast.WhileStmt {
	kw := p.advance() // consume 'while'
	p.expect(token.TOKEN_LPAREN, "expected '(' after 'while'")
	cond := p.parseExpression()
	p.expect(token.TOKEN_RPAREN, "expected ')' after condition")

	p.loopDepth++
	defer func() { p.loopDepth-- }()
	body := p.parseStatement()
	return &ast.WhileStmt{Condition: cond, Body: body, Position: kw.Pos}
}

func (p *Parser) parseBreakStmt() *ast.BreakStmt {
	kw := p.advance() // consume 'break'
	if p.loopDepth == 0 {
		p.report(kw, "'break' outside of a loop")
	}
	p.expect(token.TOKEN_SEMICOLON, "expected ';' after 'break'")
	return &ast.BreakStmt{Keyword: kw, Position: kw.Pos}
}

// ---------------------------------------------------------------------------
// Expressions (lowest to highest precedence)
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression() ast.Expression {
	return p.parseComma()
}

// parseComma: ternary ("," ternary)*
func (p *Parser) parseComma() ast.Expression {
	start := p.peek().Pos
	first := p.parseTernary()
	if p.peekType() != token.TOKEN_COMMA {
		return first
	}

	exprs := []ast.Expression{first}
	for p.match(token.TOKEN_COMMA) {
		exprs = append(exprs, p.parseTernary())
	}
	return &ast.Comma{Exprs: exprs, Position: start}
}

// parseTernary: assignment ("?" ternary ":" ternary)?
func (p *Parser) parseTernary() ast.Expression {
	start := p.peek().Pos
	cond := p.parseAssignment()
	if !p.match(token.TOKEN_QUESTION) {
		return cond
	}

	then := p.parseTernary()
	p.expect(token.TOKEN_COLON, "expected ':' in conditional expression")
	els := p.parseTernary()
	return &ast.Ternary{Condition: cond, Then: then, Else: els, Position: start}
}

// parseAssignment: IDENTIFIER "=" ternary | logic_or
func (p *Parser) parseAssignment() ast.Expression {
	start := p.peek().Pos
	expr := p.parseOr()

	if p.peekType() == token.TOKEN_EQUAL {
		equals := p.advance()
		value := p.parseTernary()
		if v, ok := expr.(*ast.Variable); ok {
			return &ast.Assign{Name: v.Name, Value: value, Position: start}
		}
		p.report(equals, "invalid assignment target")
	}
	return expr
}

func (p *Parser) parseOr() ast.Expression {
	left := p.parseAnd()

	for p.peekType() == token.TOKEN_OR {
		opTok := p.advance()
		right := p.parseAnd()
		left = &ast.Logical{Left: left, Op: opTok, Right: right, Position: opTok.Pos}
	}

	return left
}

func (p *Parser) parseAnd() ast.Expression {
	left := p.parseEquality()

	for p.peekType() == token.TOKEN_AND {
		opTok := p.advance()
		right := p.parseEquality()
		left = &ast.Logical{Left: left, Op: opTok, Right: right, Position: opTok.Pos}
	}

	return left
}

// parseBinary parses a left-associative run of operators from ops, with
// operands produced by next.
func (p *Parser) parseBinary(next func() ast.Expression, ops ...token.TokenType) ast.Expression {
	left := next()

	for p.match(ops...) {
		opTok := p.previous()
		right := next()
		left = &ast.Binary{Left: left, Op: opTok, Right: right, Position: opTok.Pos}
	}

	return left
}

func (p *Parser) parseEquality() ast.Expression {
	return p.parseBinary(p.parseComparison, token.TOKEN_EQUAL_EQUAL, token.TOKEN_BANG_EQUAL)
}

func (p *Parser) parseComparison() ast.Expression {
	return p.parseBinary(p.parseTerm,
		token.TOKEN_LESS, token.TOKEN_LESS_EQUAL, token.TOKEN_GREATER, token.TOKEN_GREATER_EQUAL)
}

func (p *Parser) parseTerm() ast.Expression {
	return p.parseBinary(p.parseFactor, token.TOKEN_PLUS, token.TOKEN_MINUS)
}

func (p *Parser) parseFactor() ast.Expression {
	return p.parseBinary(p.parseUnary, token.TOKEN_STAR, token.TOKEN_SLASH, token.TOKEN_PERCENT)
}

func (p *Parser) parseUnary() ast.Expression {
	if p.peekType() == token.TOKEN_MINUS || p.peekType() == token.TOKEN_BANG {
		opTok := p.advance()
		operand := p.parseUnary()
		return &ast.Unary{Op: opTok, Right: operand, Position: opTok.Pos}
	}
	return p.parseCall()
}

// parseCall: primary ( "(" arguments? ")" )*
func (p *Parser) parseCall() ast.Expression {
	start := p.peek().Pos
	expr := p.parsePrimary()

	for p.match(token.TOKEN_LPAREN) {
		var args []ast.Expression
		if p.peekType() != token.TOKEN_RPAREN {
			for {
				if len(args) >= maxArgs {
					p.report(p.peek(), fmt.Sprintf("can't have more than %d arguments", maxArgs))
				}
				// Arguments sit above the comma operator so ',' separates them.
				args = append(args, p.parseTernary())
				if !p.match(token.TOKEN_COMMA) {
					break
				}
			}
		}
		paren := p.expect(token.TOKEN_RPAREN, "expected ')' after arguments")
		expr = &ast.Call{Callee: expr, Paren: paren, Args: args, Position: start}
	}

	return expr
}

func (p *Parser) parsePrimary() ast.Expression {
	tok := p.peek()

	switch tok.Type {
	case token.TOKEN_NUMBER, token.TOKEN_STRING:
		p.advance()
		return &ast.Literal{Value: tok.Literal, Position: tok.Pos}
	case token.TOKEN_TRUE:
		p.advance()
		return &ast.Literal{Value: true, Position: tok.Pos}
	case token.TOKEN_FALSE:
		p.advance()
		return &ast.Literal{Value: false, Position: tok.Pos}
	case token.TOKEN_NIL:
		p.advance()
		return &ast.Literal{Value: nil, Position: tok.Pos}
	case token.TOKEN_IDENT:
		p.advance()
		return &ast.Variable{Name: tok, Position: tok.Pos}
	case token.TOKEN_LPAREN:
		p.advance()
		inner := p.parseExpression()
		p.expect(token.TOKEN_RPAREN, "expected ')' after expression")
		return &ast.Grouping{Inner: inner, Position: tok.Pos}
	}

	if token.IsReserved(tok.Type) {
		p.fail(tok, fmt.Sprintf("'%s' is a reserved word", tok.Lexeme))
	}
	p.fail(tok, "expected expression")
	return nil
}
