package lexer

import (
	"strings"
	"testing"

	"github.com/holla2040/loxr/internal/script/token"
)

// helper to assert no lex errors were produced.
func requireNoErrors(t *testing.T, errs []LexError) {
	t.Helper()
	if len(errs) > 0 {
		for _, e := range errs {
			t.Errorf("unexpected lex error: %s", e.Error())
		}
		t.FailNow()
	}
}

// helper to assert token types match expectations (ignoring positions/literals).
func requireTypes(t *testing.T, tokens []token.Token, expected []token.TokenType) {
	t.Helper()
	if len(tokens) != len(expected) {
		t.Fatalf("token count mismatch: got %d, want %d\ngot:  %s\nwant: %s",
			len(tokens), len(expected), fmtTypes(tokens), fmtExpected(expected))
	}
	for i, tt := range expected {
		if tokens[i].Type != tt {
			t.Errorf("token[%d]: got %s (%q), want %s",
				i, tokens[i].Type, tokens[i].Lexeme, tt)
		}
	}
}

func fmtTypes(tokens []token.Token) string {
	names := make([]string, len(tokens))
	for i, t := range tokens {
		names[i] = t.Type.String()
	}
	return strings.Join(names, ", ")
}

func fmtExpected(types []token.TokenType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestEmptyInput(t *testing.T) {
	tokens, errs := New("").Tokenize()
	requireNoErrors(t, errs)
	requireTypes(t, tokens, []token.TokenType{token.TOKEN_EOF})
}

func TestWhitespaceAndCommentsOnly(t *testing.T) {
	tokens, errs := New("  \t\r\n // a comment\n/* block\ncomment */  ").Tokenize()
	requireNoErrors(t, errs)
	requireTypes(t, tokens, []token.TokenType{token.TOKEN_EOF})
}

func TestKeywords(t *testing.T) {
	cases := []struct {
		input string
		want  token.TokenType
	}{
		{"and", token.TOKEN_AND},
		{"break", token.TOKEN_BREAK},
		{"else", token.TOKEN_ELSE},
		{"false", token.TOKEN_FALSE},
		{"if", token.TOKEN_IF},
		{"nil", token.TOKEN_NIL},
		{"or", token.TOKEN_OR},
		{"print", token.TOKEN_PRINT},
		{"true", token.TOKEN_TRUE},
		{"var", token.TOKEN_VAR},
		{"while", token.TOKEN_WHILE},
		{"fun", token.TOKEN_FUN},
		{"Print", token.TOKEN_IDENT},
		{"variable", token.TOKEN_IDENT},
		{"_tmp1", token.TOKEN_IDENT},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			tokens, errs := New(tc.input).Tokenize()
			requireNoErrors(t, errs)
			requireTypes(t, tokens, []token.TokenType{tc.want, token.TOKEN_EOF})
			if tokens[0].Lexeme != tc.input {
				t.Errorf("lexeme: got %q, want %q", tokens[0].Lexeme, tc.input)
			}
		})
	}
}

func TestOperatorsAndPunctuation(t *testing.T) {
	tokens, errs := New("( ) { } , . ; : ? - + / * % ! != = == > >= < <=").Tokenize()
	requireNoErrors(t, errs)
	requireTypes(t, tokens, []token.TokenType{
		token.TOKEN_LPAREN, token.TOKEN_RPAREN, token.TOKEN_LBRACE, token.TOKEN_RBRACE,
		token.TOKEN_COMMA, token.TOKEN_DOT, token.TOKEN_SEMICOLON, token.TOKEN_COLON,
		token.TOKEN_QUESTION, token.TOKEN_MINUS, token.TOKEN_PLUS, token.TOKEN_SLASH,
		token.TOKEN_STAR, token.TOKEN_PERCENT, token.TOKEN_BANG, token.TOKEN_BANG_EQUAL,
		token.TOKEN_EQUAL, token.TOKEN_EQUAL_EQUAL, token.TOKEN_GREATER, token.TOKEN_GREATER_EQUAL,
		token.TOKEN_LESS, token.TOKEN_LESS_EQUAL, token.TOKEN_EOF,
	})
}

func TestAdjacentOperatorsWithoutSpaces(t *testing.T) {
	tokens, errs := New("a!=b==!c").Tokenize()
	requireNoErrors(t, errs)
	requireTypes(t, tokens, []token.TokenType{
		token.TOKEN_IDENT, token.TOKEN_BANG_EQUAL, token.TOKEN_IDENT,
		token.TOKEN_EQUAL_EQUAL, token.TOKEN_BANG, token.TOKEN_IDENT, token.TOKEN_EOF,
	})
}

func TestNumberLiterals(t *testing.T) {
	cases := []struct {
		input string
		want  float64
	}{
		{"0", 0},
		{"42", 42},
		{"3.14", 3.14},
		{"10.50", 10.5},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			tokens, errs := New(tc.input).Tokenize()
			requireNoErrors(t, errs)
			requireTypes(t, tokens, []token.TokenType{token.TOKEN_NUMBER, token.TOKEN_EOF})
			got, ok := tokens[0].Literal.(float64)
			if !ok || got != tc.want {
				t.Errorf("literal: got %v, want %v", tokens[0].Literal, tc.want)
			}
		})
	}
}

func TestNoLeadingOrTrailingDot(t *testing.T) {
	tokens, errs := New("1. .5").Tokenize()
	requireNoErrors(t, errs)
	requireTypes(t, tokens, []token.TokenType{
		token.TOKEN_NUMBER, token.TOKEN_DOT, token.TOKEN_DOT, token.TOKEN_NUMBER, token.TOKEN_EOF,
	})
}

func TestStringLiteral(t *testing.T) {
	tokens, errs := New(`"hello world"`).Tokenize()
	requireNoErrors(t, errs)
	requireTypes(t, tokens, []token.TokenType{token.TOKEN_STRING, token.TOKEN_EOF})
	if tokens[0].Literal != "hello world" {
		t.Errorf("literal: got %q", tokens[0].Literal)
	}
	if tokens[0].Lexeme != `"hello world"` {
		t.Errorf("lexeme: got %q", tokens[0].Lexeme)
	}
}

func TestStringEscapeSequences(t *testing.T) {
	tokens, errs := New(`"a\tb\n\"c\"\\ \q"`).Tokenize()
	requireNoErrors(t, errs)
	want := "a\tb\n\"c\"\\ \\q"
	if tokens[0].Literal != want {
		t.Errorf("literal: got %q, want %q", tokens[0].Literal, want)
	}
}

func TestUnterminatedStringResumesOnNextLine(t *testing.T) {
	tokens, errs := New("\"abc\nvar x;").Tokenize()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
	if errs[0].Line != 1 || !strings.Contains(errs[0].Message, "unterminated string") {
		t.Errorf("unexpected error: %v", errs[0])
	}
	requireTypes(t, tokens, []token.TokenType{
		token.TOKEN_VAR, token.TOKEN_IDENT, token.TOKEN_SEMICOLON, token.TOKEN_EOF,
	})
	if tokens[0].Pos.Line != 2 {
		t.Errorf("var line: got %d, want 2", tokens[0].Pos.Line)
	}
}

func TestUnterminatedBlockComment(t *testing.T) {
	_, errs := New("print 1; /* never closed").Tokenize()
	if len(errs) != 1 || errs[0].Message != "unterminated comment" {
		t.Fatalf("expected unterminated comment error, got %v", errs)
	}
}

func TestUnexpectedCharactersAreCollected(t *testing.T) {
	tokens, errs := New("var @x = 1 # 2;").Tokenize()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Column != 5 || errs[1].Column != 12 {
		t.Errorf("columns: got %d and %d", errs[0].Column, errs[1].Column)
	}
	requireTypes(t, tokens, []token.TokenType{
		token.TOKEN_VAR, token.TOKEN_IDENT, token.TOKEN_EQUAL, token.TOKEN_NUMBER,
		token.TOKEN_NUMBER, token.TOKEN_SEMICOLON, token.TOKEN_EOF,
	})
}

func TestPositions(t *testing.T) {
	tokens, errs := New("var x = 1;\n  print x;").Tokenize()
	requireNoErrors(t, errs)
	cases := []struct {
		idx       int
		line, col int
	}{
		{0, 1, 1}, // var
		{1, 1, 5}, // x
		{3, 1, 9}, // 1
		{5, 2, 3}, // print
		{6, 2, 9}, // x
	}
	for _, tc := range cases {
		pos := tokens[tc.idx].Pos
		if pos.Line != tc.line || pos.Column != tc.col {
			t.Errorf("token[%d] %s: got %d:%d, want %d:%d",
				tc.idx, tokens[tc.idx].Lexeme, pos.Line, pos.Column, tc.line, tc.col)
		}
	}
}

func TestCommentDoesNotSwallowDivision(t *testing.T) {
	tokens, errs := New("a / b // trailing").Tokenize()
	requireNoErrors(t, errs)
	requireTypes(t, tokens, []token.TokenType{
		token.TOKEN_IDENT, token.TOKEN_SLASH, token.TOKEN_IDENT, token.TOKEN_EOF,
	})
}
