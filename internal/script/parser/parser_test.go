package parser

import (
	"strings"
	"testing"

	"github.com/holla2040/loxr/internal/script/ast"
	"github.com/holla2040/loxr/internal/script/lexer"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// parseSource lexes + parses source, failing the test on any error.
func parseSource(t *testing.T, source string) *ast.Program {
	t.Helper()
	tokens, lexErrors := lexer.New(source).Tokenize()
	if len(lexErrors) > 0 {
		t.Fatalf("lex errors: %v", lexErrors)
	}
	prog, parseErrors := New(tokens).Parse()
	if len(parseErrors) > 0 {
		t.Fatalf("parse errors: %v", parseErrors)
	}
	return prog
}

// parseSourceWithErrors lexes + parses source, returning the program and any
// parse errors (does not fail on parse errors).
func parseSourceWithErrors(t *testing.T, source string) (*ast.Program, []ParseError) {
	t.Helper()
	tokens, lexErrors := lexer.New(source).Tokenize()
	if len(lexErrors) > 0 {
		t.Fatalf("lex errors: %v", lexErrors)
	}
	return New(tokens).Parse()
}

// requireStmtCount asserts the number of top-level statements.
func requireStmtCount(t *testing.T, prog *ast.Program, n int) {
	t.Helper()
	if len(prog.Statements) != n {
		t.Fatalf("expected %d statements, got %d", n, len(prog.Statements))
	}
}

// requireErrors asserts the number of parse errors and that the first one
// contains msg.
func requireErrors(t *testing.T, errs []ParseError, n int, msg string) {
	t.Helper()
	if len(errs) != n {
		t.Fatalf("expected %d errors, got %d: %v", n, len(errs), errs)
	}
	if n > 0 && !strings.Contains(errs[0].Message, msg) {
		t.Errorf("error message: got %q, want it to contain %q", errs[0].Message, msg)
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestEmptyProgram(t *testing.T) {
	prog := parseSource(t, "")
	requireStmtCount(t, prog, 0)
}

func TestExpressionPrecedence(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"1 + 2 * 3;", "(+ 1 (* 2 3))"},
		{"1 - 2 - 3;", "(- (- 1 2) 3)"},
		{"7 % 3 * 2;", "(* (% 7 3) 2)"},
		{"-2 * 3;", "(* (- 2) 3)"},
		{"!-x;", "(! (- x))"},
		{"1 < 2 == true;", "(== (< 1 2) true)"},
		{"a or b and c;", "(or a (and b c))"},
		{"a and b or c;", "(or (and a b) c)"},
		{"a = b = 3;", "(= a (= b 3))"},
		{"x = true ? 1 : 2;", "(= x (?: true 1 2))"},
		{"a ? b : c ? d : e;", "(?: a b (?: c d e))"},
		{"a ? b ? 1 : 2 : 3;", "(?: a (?: b 1 2) 3)"},
		{"1, 2, 3;", "(, 1 2 3)"},
		{"a, b = 1;", "(, a (= b 1))"},
		{"(1, 2);", "(group (, 1 2))"},
		{"(1 + 2) * 3;", "(* (group (+ 1 2)) 3)"},
		{`"s" + 1.5;`, `(+ "s" 1.5)`},
		{"nil == false;", "(== nil false)"},
		{"clock();", "(call clock)"},
		{"f(1, 2 + 3)(4);", "(call (call f 1 (+ 2 3)) 4)"},
	}
	for _, tc := range tests {
		t.Run(tc.source, func(t *testing.T) {
			prog := parseSource(t, tc.source)
			requireStmtCount(t, prog, 1)
			stmt, ok := prog.Statements[0].(*ast.ExpressionStmt)
			if !ok {
				t.Fatalf("expected *ast.ExpressionStmt, got %T", prog.Statements[0])
			}
			if got := ast.Print(stmt.Expr); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestVarDeclaration(t *testing.T) {
	prog := parseSource(t, "var a; var b = 1 + 2;")
	requireStmtCount(t, prog, 2)

	a, ok := prog.Statements[0].(*ast.VarStmt)
	if !ok {
		t.Fatalf("expected *ast.VarStmt, got %T", prog.Statements[0])
	}
	if a.Name.Lexeme != "a" || a.Initializer != nil {
		t.Errorf("var a: got name %q, initializer %v", a.Name.Lexeme, a.Initializer)
	}

	b := prog.Statements[1].(*ast.VarStmt)
	if got := ast.Print(b); got != "(var b (+ 1 2))" {
		t.Errorf("var b: got %s", got)
	}
}

func TestStatements(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"print", "print 1;", "(print 1)"},
		{"block", "{ var x = 1; print x; }", "(block (var x 1) (print x))"},
		{"empty block", "{}", "(block)"},
		{"if", "if (a) print 1;", "(if a (print 1))"},
		{"if else", "if (a) print 1; else print 2;", "(if a (print 1) (print 2))"},
		{"dangling else", "if (a) if (b) print 1; else print 2;", "(if a (if b (print 1) (print 2)))"},
		{"while", "while (x < 3) x = x + 1;", "(while (< x 3) (; (= x (+ x 1))))"},
		{"break in loop", "while (true) { if (x) break; }", "(while true (block (if x (break))))"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prog := parseSource(t, tc.source)
			requireStmtCount(t, prog, 1)
			if got := ast.Print(prog.Statements[0]); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDanglingElseBindsInnermost(t *testing.T) {
	prog := parseSource(t, `if (true) if (false) print "A"; else print "B";`)
	outer := prog.Statements[0].(*ast.IfStmt)
	if outer.Else != nil {
		t.Fatalf("outer if should have no else branch")
	}
	inner, ok := outer.Then.(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected inner *ast.IfStmt, got %T", outer.Then)
	}
	if inner.Else == nil {
		t.Fatalf("inner if should own the else branch")
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	tests := []struct {
		name   string
		source string
		errors int
	}{
		{"top level", "break;", 1},
		{"in block", "{ break; }", 1},
		{"in if", "if (true) break;", 1},
		{"after loop", "while (false) {} break;", 1},
		{"in loop", "while (true) break;", 0},
		{"nested loops", "while (a) { while (b) break; break; }", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, errs := parseSourceWithErrors(t, tc.source)
			requireErrors(t, errs, tc.errors, "'break' outside of a loop")
		})
	}
}

func TestSynchronizationKeepsValidStatements(t *testing.T) {
	prog, errs := parseSourceWithErrors(t, "var = 1; print 2;")
	requireErrors(t, errs, 1, "expected variable name")
	requireStmtCount(t, prog, 1)
	if _, ok := prog.Statements[0].(*ast.PrintStmt); !ok {
		t.Errorf("expected *ast.PrintStmt, got %T", prog.Statements[0])
	}
}

func TestMultipleErrorsAreReported(t *testing.T) {
	prog, errs := parseSourceWithErrors(t, "print ;\nprint 1 + ;\nprint 3;")
	requireErrors(t, errs, 2, "expected expression")
	requireStmtCount(t, prog, 1)
	if errs[0].Line != 1 || errs[1].Line != 2 {
		t.Errorf("error lines: got %d and %d", errs[0].Line, errs[1].Line)
	}
}

func TestErrorInsideBlockRecoversWithinBlock(t *testing.T) {
	prog, errs := parseSourceWithErrors(t, "{ print ; print 2; }")
	requireErrors(t, errs, 1, "expected expression")
	requireStmtCount(t, prog, 1)
	block := prog.Statements[0].(*ast.BlockStmt)
	if len(block.Statements) != 1 {
		t.Errorf("expected 1 statement in block, got %d", len(block.Statements))
	}
}

func TestInvalidAssignmentTarget(t *testing.T) {
	prog, errs := parseSourceWithErrors(t, "1 = 2; (a) = 3;")
	requireErrors(t, errs, 2, "invalid assignment target")
	requireStmtCount(t, prog, 2)
}

func TestMissingClosingBrace(t *testing.T) {
	_, errs := parseSourceWithErrors(t, "{ print 1;")
	requireErrors(t, errs, 1, "expected '}' after block")
	if !strings.Contains(errs[0].Error(), "at end") {
		t.Errorf("error should point at end of input: %s", errs[0].Error())
	}
}

func TestMissingSemicolonPosition(t *testing.T) {
	_, errs := parseSourceWithErrors(t, "print 1\nprint 2;")
	requireErrors(t, errs, 1, "expected ';' after value")
	e := errs[0]
	if e.Line != 2 || e.Column != 1 || e.Lexeme != "print" {
		t.Errorf("got line %d column %d lexeme %q", e.Line, e.Column, e.Lexeme)
	}
	if e.Error() != "line 2, column 1: error at 'print': expected ';' after value" {
		t.Errorf("Error(): got %q", e.Error())
	}
}

func TestReservedWords(t *testing.T) {
	for _, src := range []string{"fun f;", "return 1;", "print this;", "class A;"} {
		t.Run(src, func(t *testing.T) {
			_, errs := parseSourceWithErrors(t, src)
			requireErrors(t, errs, 1, "is a reserved word")
		})
	}
}

func TestUnterminatedTernary(t *testing.T) {
	_, errs := parseSourceWithErrors(t, "print a ? b;")
	requireErrors(t, errs, 1, "expected ':'")
}

func TestParseIsDeterministic(t *testing.T) {
	source := `
var x = 1;
{ var x = 2; print x, x = 3; }
while (x < 10) { if (x % 2 == 0) print x; else { x = x + 1; break; } x = x + 1; }
print x > 3 ? "big" : "small";
`
	tokens, lexErrs := lexer.New(source).Tokenize()
	if len(lexErrs) > 0 {
		t.Fatalf("lex errors: %v", lexErrs)
	}
	first, errs := New(tokens).Parse()
	if len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	second, _ := New(tokens).Parse()
	if ast.PrintProgram(first) != ast.PrintProgram(second) {
		t.Errorf("parses differ:\n%s\n---\n%s", ast.PrintProgram(first), ast.PrintProgram(second))
	}
}

func TestParseErrorType(t *testing.T) {
	_, errs := parseSourceWithErrors(t, "var 1;")
	if len(errs) == 0 {
		t.Fatal("expected an error")
	}
	var err error = errs[0]
	if err.Error() == "" {
		t.Error("expected non-empty error string")
	}
	if errs[0].Severity != "error" {
		t.Errorf("severity: got %q", errs[0].Severity)
	}
}
