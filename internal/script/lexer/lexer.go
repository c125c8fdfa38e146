// Package lexer turns Lox source text into a token stream. Errors are
// collected rather than returned early so a single pass reports every
// malformed token in the input.
package lexer

import (
	"fmt"
	"strconv"

	"github.com/holla2040/loxr/internal/script/token"
)

// LexError records a lexing error at a specific position.
type LexError struct {
	Line    int
	Column  int
	Lexeme  string
	Message string
}

// Error implements the error interface.
func (e LexError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// Lexer scans source text into tokens.
type Lexer struct {
	source []rune
	start  int // first rune of the token being scanned
	pos    int // current position in source (index into rune slice)
	line   int // current line number (1-based)
	col    int // current column number (1-based)
	tokens []token.Token
	errors []LexError
}

// New creates a Lexer for the given source string.
func New(source string) *Lexer {
	return &Lexer{
		source: []rune(source),
		line:   1,
		col:    1,
	}
}

// Tokenize scans the entire source and returns the resulting tokens and any
// lexing errors. The token slice always ends with TOKEN_EOF.
func (l *Lexer) Tokenize() ([]token.Token, []LexError) {
	for {
		l.skipWhitespaceAndComments()

		if l.atEnd() {
			l.tokens = append(l.tokens, token.Token{Type: token.TOKEN_EOF, Pos: l.savePos()})
			break
		}

		pos := l.savePos()
		l.start = l.pos
		ch := l.peek()

		switch {
		case isIdentStart(ch):
			l.scanIdentifier(pos)
		case isDigit(ch):
			l.scanNumber(pos)
		case ch == '"':
			l.scanString(pos)
		default:
			l.scanOperator(pos)
		}
	}

	return l.tokens, l.errors
}

// ---------------------------------------------------------------------------
// Character helpers
// ---------------------------------------------------------------------------

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.source)
}

func (l *Lexer) peek() rune {
	if l.atEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekAt(offset int) rune {
	idx := l.pos + offset
	if idx >= len(l.source) {
		return 0
	}
	return l.source[idx]
}

// advance consumes one rune and updates position tracking.
func (l *Lexer) advance() rune {
	ch := l.source[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

// match consumes the next rune if it equals want.
func (l *Lexer) match(want rune) bool {
	if l.atEnd() || l.source[l.pos] != want {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) lexeme() string {
	return string(l.source[l.start:l.pos])
}

// emitAt appends a token whose lexeme runs from l.start to the current position.
func (l *Lexer) emitAt(tt token.TokenType, literal any, pos token.Position) {
	l.tokens = append(l.tokens, token.Token{
		Type:    tt,
		Lexeme:  l.lexeme(),
		Literal: literal,
		Pos:     pos,
	})
}

// addError records a lex error.
func (l *Lexer) addError(pos token.Position, lexeme, msg string) {
	l.errors = append(l.errors, LexError{Line: pos.Line, Column: pos.Column, Lexeme: lexeme, Message: msg})
}

// savePos captures the current position for a token that is about to be scanned.
func (l *Lexer) savePos() token.Position {
	return token.Position{Line: l.line, Column: l.col, Offset: l.pos}
}

// ---------------------------------------------------------------------------
// Whitespace & comments
// ---------------------------------------------------------------------------

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEnd() {
		switch ch := l.peek(); {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			l.advance()
		case ch == '/' && l.peekAt(1) == '/':
			for !l.atEnd() && l.peek() != '\n' {
				l.advance()
			}
		case ch == '/' && l.peekAt(1) == '*':
			l.skipBlockComment()
		default:
			return
		}
	}
}

// skipBlockComment consumes a /* ... */ comment, which may span lines.
func (l *Lexer) skipBlockComment() {
	pos := l.savePos()
	l.advance() // '/'
	l.advance() // '*'
	for !l.atEnd() {
		if l.peek() == '*' && l.peekAt(1) == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	l.addError(pos, "/*", "unterminated comment")
}

// ---------------------------------------------------------------------------
// Identifiers and keywords
// ---------------------------------------------------------------------------

func isIdentStart(ch rune) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func (l *Lexer) scanIdentifier(pos token.Position) {
	for !l.atEnd() && isIdentPart(l.peek()) {
		l.advance()
	}
	l.emitAt(token.Lookup(l.lexeme()), nil, pos)
}

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

// scanNumber reads an integer or decimal literal. A dot only belongs to the
// number when a digit follows it, so "1." is NUMBER then DOT.
func (l *Lexer) scanNumber(pos token.Position) {
	for !l.atEnd() && isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		l.advance() // consume '.'
		for !l.atEnd() && isDigit(l.peek()) {
			l.advance()
		}
	}

	f, err := strconv.ParseFloat(l.lexeme(), 64)
	if err != nil {
		l.addError(pos, l.lexeme(), fmt.Sprintf("invalid number literal %s", l.lexeme()))
		return
	}
	l.emitAt(token.TOKEN_NUMBER, f, pos)
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// scanString reads a double-quoted string on a single line. When the line
// ends first, the error is recorded and scanning resumes on the next line.
func (l *Lexer) scanString(pos token.Position) {
	l.advance() // consume opening '"'
	var buf []rune

	for {
		if l.atEnd() {
			l.addError(pos, l.lexeme(), "unterminated string")
			return
		}
		ch := l.peek()
		if ch == '\n' {
			l.addError(pos, l.lexeme(), "unterminated string")
			l.advance()
			return
		}
		if ch == '"' {
			l.advance() // consume closing '"'
			l.emitAt(token.TOKEN_STRING, string(buf), pos)
			return
		}
		if ch == '\\' && l.peekAt(1) != '\n' && l.peekAt(1) != 0 {
			l.advance() // consume backslash
			switch esc := l.advance(); esc {
			case '"':
				buf = append(buf, '"')
			case '\\':
				buf = append(buf, '\\')
			case 'n':
				buf = append(buf, '\n')
			case 't':
				buf = append(buf, '\t')
			default:
				buf = append(buf, '\\', esc)
			}
			continue
		}
		buf = append(buf, l.advance())
	}
}

// ---------------------------------------------------------------------------
// Operators and punctuation
// ---------------------------------------------------------------------------

var singles = map[rune]token.TokenType{
	'(': token.TOKEN_LPAREN,
	')': token.TOKEN_RPAREN,
	'{': token.TOKEN_LBRACE,
	'}': token.TOKEN_RBRACE,
	',': token.TOKEN_COMMA,
	'.': token.TOKEN_DOT,
	';': token.TOKEN_SEMICOLON,
	':': token.TOKEN_COLON,
	'?': token.TOKEN_QUESTION,
	'-': token.TOKEN_MINUS,
	'+': token.TOKEN_PLUS,
	'/': token.TOKEN_SLASH,
	'*': token.TOKEN_STAR,
	'%': token.TOKEN_PERCENT,
}

// pairs holds the operators that may be followed by '=' to form a
// two-character operator: the single form and the '=' form.
var pairs = map[rune][2]token.TokenType{
	'!': {token.TOKEN_BANG, token.TOKEN_BANG_EQUAL},
	'=': {token.TOKEN_EQUAL, token.TOKEN_EQUAL_EQUAL},
	'>': {token.TOKEN_GREATER, token.TOKEN_GREATER_EQUAL},
	'<': {token.TOKEN_LESS, token.TOKEN_LESS_EQUAL},
}

func (l *Lexer) scanOperator(pos token.Position) {
	ch := l.advance()

	if pair, ok := pairs[ch]; ok {
		if l.match('=') {
			l.emitAt(pair[1], nil, pos)
		} else {
			l.emitAt(pair[0], nil, pos)
		}
		return
	}
	if tt, ok := singles[ch]; ok {
		l.emitAt(tt, nil, pos)
		return
	}
	l.addError(pos, string(ch), fmt.Sprintf("unexpected character '%c'", ch))
}
