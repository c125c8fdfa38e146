package token

import "fmt"

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Special tokens
	TOKEN_EOF TokenType = iota

	// ----- Single-character punctuation -----
	TOKEN_LPAREN    // (
	TOKEN_RPAREN    // )
	TOKEN_LBRACE    // {
	TOKEN_RBRACE    // }
	TOKEN_COMMA     // ,
	TOKEN_DOT       // .
	TOKEN_SEMICOLON // ;
	TOKEN_COLON     // :
	TOKEN_QUESTION  // ?
	TOKEN_MINUS     // -
	TOKEN_PLUS      // +
	TOKEN_SLASH     // /
	TOKEN_STAR      // *
	TOKEN_PERCENT   // %

	// ----- One or two character operators -----
	TOKEN_BANG          // !
	TOKEN_BANG_EQUAL    // !=
	TOKEN_EQUAL         // =
	TOKEN_EQUAL_EQUAL   // ==
	TOKEN_GREATER       // >
	TOKEN_GREATER_EQUAL // >=
	TOKEN_LESS          // <
	TOKEN_LESS_EQUAL    // <=

	// ----- Literals -----
	TOKEN_IDENT
	TOKEN_STRING
	TOKEN_NUMBER

	// ----- Keywords -----
	TOKEN_AND
	TOKEN_BREAK
	TOKEN_CLASS
	TOKEN_ELSE
	TOKEN_FALSE
	TOKEN_FUN
	TOKEN_FOR
	TOKEN_IF
	TOKEN_NIL
	TOKEN_OR
	TOKEN_PRINT
	TOKEN_RETURN
	TOKEN_SUPER
	TOKEN_THIS
	TOKEN_TRUE
	TOKEN_VAR
	TOKEN_WHILE
)

// Position records where a token was found in the source text.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
	Offset int // 0-based rune offset into source
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a single lexical token produced by the lexer. Literal holds the
// decoded value for NUMBER (float64) and STRING (string) tokens and is nil
// for everything else.
type Token struct {
	Type    TokenType
	Lexeme  string
	Literal any
	Pos     Position
}

func (t Token) String() string {
	if t.Type == TOKEN_EOF {
		return "EOF"
	}
	return fmt.Sprintf("%s %q", t.Type, t.Lexeme)
}

// keywords maps reserved words to their token types. Lookup is case-sensitive.
var keywords = map[string]TokenType{
	"and":    TOKEN_AND,
	"break":  TOKEN_BREAK,
	"class":  TOKEN_CLASS,
	"else":   TOKEN_ELSE,
	"false":  TOKEN_FALSE,
	"fun":    TOKEN_FUN,
	"for":    TOKEN_FOR,
	"if":     TOKEN_IF,
	"nil":    TOKEN_NIL,
	"or":     TOKEN_OR,
	"print":  TOKEN_PRINT,
	"return": TOKEN_RETURN,
	"super":  TOKEN_SUPER,
	"this":   TOKEN_THIS,
	"true":   TOKEN_TRUE,
	"var":    TOKEN_VAR,
	"while":  TOKEN_WHILE,
}

// Lookup returns the keyword TokenType for ident, or TOKEN_IDENT if it is
// not a keyword.
func Lookup(ident string) TokenType {
	if tt, ok := keywords[ident]; ok {
		return tt
	}
	return TOKEN_IDENT
}

// Keywords returns the reserved words, for completion in the REPL.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for k := range keywords {
		out = append(out, k)
	}
	return out
}

// IsReserved reports whether tt is a keyword that has no meaning in the
// language yet. The parser rejects these instead of treating them as names.
func IsReserved(tt TokenType) bool {
	switch tt {
	case TOKEN_CLASS, TOKEN_FUN, TOKEN_FOR, TOKEN_RETURN, TOKEN_SUPER, TOKEN_THIS:
		return true
	}
	return false
}

// tokenNames gives a human-readable name for each TokenType.
var tokenNames = map[TokenType]string{
	TOKEN_EOF: "EOF",

	TOKEN_LPAREN:    "(",
	TOKEN_RPAREN:    ")",
	TOKEN_LBRACE:    "{",
	TOKEN_RBRACE:    "}",
	TOKEN_COMMA:     ",",
	TOKEN_DOT:       ".",
	TOKEN_SEMICOLON: ";",
	TOKEN_COLON:     ":",
	TOKEN_QUESTION:  "?",
	TOKEN_MINUS:     "-",
	TOKEN_PLUS:      "+",
	TOKEN_SLASH:     "/",
	TOKEN_STAR:      "*",
	TOKEN_PERCENT:   "%",

	TOKEN_BANG:          "!",
	TOKEN_BANG_EQUAL:    "!=",
	TOKEN_EQUAL:         "=",
	TOKEN_EQUAL_EQUAL:   "==",
	TOKEN_GREATER:       ">",
	TOKEN_GREATER_EQUAL: ">=",
	TOKEN_LESS:          "<",
	TOKEN_LESS_EQUAL:    "<=",

	TOKEN_IDENT:  "IDENT",
	TOKEN_STRING: "STRING",
	TOKEN_NUMBER: "NUMBER",

	TOKEN_AND:    "and",
	TOKEN_BREAK:  "break",
	TOKEN_CLASS:  "class",
	TOKEN_ELSE:   "else",
	TOKEN_FALSE:  "false",
	TOKEN_FUN:    "fun",
	TOKEN_FOR:    "for",
	TOKEN_IF:     "if",
	TOKEN_NIL:    "nil",
	TOKEN_OR:     "or",
	TOKEN_PRINT:  "print",
	TOKEN_RETURN: "return",
	TOKEN_SUPER:  "super",
	TOKEN_THIS:   "this",
	TOKEN_TRUE:   "true",
	TOKEN_VAR:    "var",
	TOKEN_WHILE:  "while",
}

// String returns a human-readable name for the token type.
func (tt TokenType) String() string {
	if name, ok := tokenNames[tt]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}
