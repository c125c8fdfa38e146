// Package validate provides parse-only validation for Lox source,
// producing structured JSON-friendly error output.
package validate

import (
	"os"
	"sort"
	"strings"

	"github.com/holla2040/loxr/internal/script/ast"
	"github.com/holla2040/loxr/internal/script/lexer"
	"github.com/holla2040/loxr/internal/script/parser"
)

// ValidationError describes a single error found during validation.
type ValidationError struct {
	Phase    string `json:"phase"` // "lex" or "parse"
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Lexeme   string `json:"lexeme,omitempty"`
	Severity string `json:"severity"` // "error" or "warning"
	Message  string `json:"message"`
	Context  string `json:"context,omitempty"` // source line for reference
}

// ValidationResult is the outcome of validating a program source.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Analyze lexes and parses source, returning the program and every lex and
// parse error ordered by position. The lexer drops characters it cannot
// scan, so parsing always runs and both phases report in a single pass. The
// program must not be executed when any errors are returned.
func Analyze(source string) (*ast.Program, []ValidationError) {
	lines := strings.Split(source, "\n")
	var errs []ValidationError

	tokens, lexErrs := lexer.New(source).Tokenize()
	for _, le := range lexErrs {
		errs = append(errs, ValidationError{
			Phase:    "lex",
			Line:     le.Line,
			Column:   le.Column,
			Lexeme:   le.Lexeme,
			Severity: "error",
			Message:  le.Message,
			Context:  contextLine(lines, le.Line),
		})
	}

	program, parseErrs := parser.New(tokens).Parse()
	for _, pe := range parseErrs {
		errs = append(errs, ValidationError{
			Phase:    "parse",
			Line:     pe.Line,
			Column:   pe.Column,
			Lexeme:   pe.Lexeme,
			Severity: pe.Severity,
			Message:  pe.Message,
			Context:  contextLine(lines, pe.Line),
		})
	}

	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Line != errs[j].Line {
			return errs[i].Line < errs[j].Line
		}
		return errs[i].Column < errs[j].Column
	})
	return program, errs
}

// ValidateSource runs the lexer and parser on source, collecting all errors.
func ValidateSource(source string) *ValidationResult {
	_, errs := Analyze(source)
	return &ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// ValidateFile reads the given file path and validates its contents.
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ValidateSource(string(data)), nil
}

// contextLine returns the source line at the given 1-based line number, or ""
// if out of range.
func contextLine(lines []string, line int) string {
	if line > 0 && line <= len(lines) {
		return strings.TrimRight(lines[line-1], "\r")
	}
	return ""
}
