package validate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// ValidateSource: valid programs
// ---------------------------------------------------------------------------

func TestValidPrograms(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"declarations", "var x = 5;\nvar y = 10;\nprint x + y;\n"},
		{"control flow", `
var i = 0;
while (i < 3) {
  if (i == 1) print "one"; else print i;
  i = i + 1;
}
`},
		{"break in loop", "while (true) { break; }"},
		{"ternary and comma", "print (1, 2) ? \"a\" : \"b\";"},
		{"block comment", "/* header\n comment */ print 1;"},
		{"native call", "print clock();"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ValidateSource(tc.src)
			if !res.Valid {
				t.Errorf("expected valid, got errors: %+v", res.Errors)
			}
			if len(res.Errors) != 0 {
				t.Errorf("expected 0 errors, got %d", len(res.Errors))
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ValidateSource: lex errors
// ---------------------------------------------------------------------------

func TestLexErrorUnterminatedString(t *testing.T) {
	res := ValidateSource(`var x = "hello`)
	if res.Valid {
		t.Error("expected invalid for unterminated string")
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected at least 1 error")
	}
	first := res.Errors[0]
	if first.Phase != "lex" {
		t.Errorf("phase = %q, want lex", first.Phase)
	}
	if first.Severity != "error" {
		t.Errorf("severity = %q, want %q", first.Severity, "error")
	}
	if first.Line != 1 {
		t.Errorf("line = %d, want 1", first.Line)
	}
	if first.Message != "unterminated string" {
		t.Errorf("message = %q", first.Message)
	}
}

func TestLexErrorUnexpectedCharacter(t *testing.T) {
	res := ValidateSource("print 1 @ 2;")
	if res.Valid {
		t.Fatal("expected invalid")
	}
	var found bool
	for _, e := range res.Errors {
		if e.Phase == "lex" && e.Column == 9 && strings.Contains(e.Message, "'@'") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing lex error for '@' at column 9: %+v", res.Errors)
	}
}

// ---------------------------------------------------------------------------
// ValidateSource: parse errors
// ---------------------------------------------------------------------------

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name    string
		src     string
		message string
	}{
		{"missing semicolon", "print 1", "expected ';' after value"},
		{"missing brace", "{ print 1;", "expected '}' after block"},
		{"break outside loop", "break;", "'break' outside of a loop"},
		{"invalid target", "1 = 2;", "invalid assignment target"},
		{"missing expression", "var x = ;", "expected expression"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ValidateSource(tc.src)
			if res.Valid {
				t.Fatal("expected invalid")
			}
			if len(res.Errors) == 0 {
				t.Fatal("expected at least 1 parse error")
			}
			if res.Errors[0].Phase != "parse" {
				t.Errorf("phase = %q, want parse", res.Errors[0].Phase)
			}
			if !strings.Contains(res.Errors[0].Message, tc.message) {
				t.Errorf("message = %q, want it to contain %q", res.Errors[0].Message, tc.message)
			}
		})
	}
}

func TestErrorsOrderedByPosition(t *testing.T) {
	src := "var a = ;\nprint 1 # 2;\nvar = 3;\n"
	res := ValidateSource(src)
	if len(res.Errors) < 3 {
		t.Fatalf("expected at least 3 errors, got %+v", res.Errors)
	}
	for i := 1; i < len(res.Errors); i++ {
		prev, cur := res.Errors[i-1], res.Errors[i]
		if cur.Line < prev.Line || (cur.Line == prev.Line && cur.Column < prev.Column) {
			t.Errorf("errors out of order at %d: %+v before %+v", i, prev, cur)
		}
	}
}

// ---------------------------------------------------------------------------
// Error position and context
// ---------------------------------------------------------------------------

func TestErrorHasContext(t *testing.T) {
	src := "var ok = 1;\nprint ok +;\n"
	res := ValidateSource(src)
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if got := res.Errors[0].Context; got != "print ok +;" {
		t.Errorf("context = %q, want the offending line", got)
	}
	if res.Errors[0].Line != 2 {
		t.Errorf("line = %d, want 2", res.Errors[0].Line)
	}
}

func TestAnalyzeReturnsProgram(t *testing.T) {
	prog, errs := Analyze("var a = 1; print a;")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if len(prog.Statements) != 2 {
		t.Errorf("expected 2 statements, got %d", len(prog.Statements))
	}
}

func TestResultJSON(t *testing.T) {
	data, err := json.Marshal(ValidateSource("print ;"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw struct {
		Valid  bool             `json:"valid"`
		Errors []map[string]any `json:"errors"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw.Valid || len(raw.Errors) != 1 {
		t.Fatalf("got %s", data)
	}
	for _, key := range []string{"line", "column", "severity", "message", "context"} {
		if _, ok := raw.Errors[0][key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
}

// ---------------------------------------------------------------------------
// ValidateFile
// ---------------------------------------------------------------------------

func TestValidateFileValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.lox")
	if err := os.WriteFile(path, []byte("var x = 5;\n"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ValidateFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid {
		t.Errorf("expected valid, got errors: %+v", res.Errors)
	}
}

func TestValidateFileInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.lox")
	if err := os.WriteFile(path, []byte("var x = \"unterminated\n"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ValidateFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Valid {
		t.Error("expected invalid for unterminated string")
	}
}

func TestValidateFileNotFound(t *testing.T) {
	_, err := ValidateFile("/nonexistent/path/to/program.lox")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

// ---------------------------------------------------------------------------
// Empty source
// ---------------------------------------------------------------------------

func TestValidateEmptySource(t *testing.T) {
	res := ValidateSource("")
	if !res.Valid {
		t.Errorf("empty source should be valid, got errors: %+v", res.Errors)
	}
}

// ---------------------------------------------------------------------------
// contextLine helper
// ---------------------------------------------------------------------------

func TestContextLineInRange(t *testing.T) {
	lines := []string{"first", "second\r", "third"}
	if got := contextLine(lines, 2); got != "second" {
		t.Errorf("contextLine(2) = %q, want %q", got, "second")
	}
}

func TestContextLineOutOfRange(t *testing.T) {
	lines := []string{"first"}
	if got := contextLine(lines, 0); got != "" {
		t.Errorf("contextLine(0) = %q, want empty", got)
	}
	if got := contextLine(lines, 5); got != "" {
		t.Errorf("contextLine(5) = %q, want empty", got)
	}
}
