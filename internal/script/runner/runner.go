// Package runner drives a Lox program through lexing, parsing, and
// execution, and turns the outcome into a result.RunReport with a process
// exit code.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/holla2040/loxr/internal/script/interpreter"
	"github.com/holla2040/loxr/internal/script/result"
	"github.com/holla2040/loxr/internal/script/validate"
	"github.com/holla2040/loxr/internal/script/variable"
)

// Process exit codes, following sysexits.h.
const (
	ExitOK       = 0
	ExitUsage    = 64
	ExitDataErr  = 65
	ExitSoftware = 70
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

type settings struct {
	out     io.Writer
	logger  *log.Logger
	timeout time.Duration
	globals *variable.Environment
	echo    bool
}

// Option configures a run.
type Option func(*settings)

// WithOutput copies printed output to w as it is produced. The report
// always carries the full output regardless.
func WithOutput(w io.Writer) Option {
	return func(s *settings) { s.out = w }
}

// WithLogger sets the logger passed to the interpreter.
func WithLogger(l *log.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithTimeout bounds execution time. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithGlobals runs against an existing global scope.
func WithGlobals(env *variable.Environment) Option {
	return func(s *settings) { s.globals = env }
}

func withEcho() Option {
	return func(s *settings) { s.echo = true }
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// Run scans, parses, and executes source. Execution happens only when there
// were no lex or parse errors.
func Run(ctx context.Context, name, source string, opts ...Option) *result.RunReport {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	collector := result.NewCollector(name)

	program, errs := validate.Analyze(source)
	if len(errs) > 0 {
		for _, ve := range errs {
			collector.RecordDiagnostic(result.Diagnostic{
				Phase:    ve.Phase,
				Line:     ve.Line,
				Column:   ve.Column,
				Lexeme:   ve.Lexeme,
				Severity: ve.Severity,
				Message:  ve.Message,
				Context:  ve.Context,
			})
		}
		return collector.Finish(result.StatusParseError, ExitDataErr)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var out io.Writer = collector
	if s.out != nil {
		out = io.MultiWriter(collector, s.out)
	}
	iopts := []interpreter.Option{interpreter.WithOutput(out)}
	if s.echo {
		iopts = append(iopts, interpreter.WithEcho(out))
	}
	if s.logger != nil {
		iopts = append(iopts, interpreter.WithLogger(s.logger))
	}
	if s.globals != nil {
		iopts = append(iopts, interpreter.WithGlobals(s.globals))
	}

	if err := interpreter.New(ctx, iopts...).Interpret(program); err != nil {
		collector.RecordDiagnostic(runtimeDiagnostic(err, source))
		return collector.Finish(result.StatusRuntimeError, ExitSoftware)
	}
	return collector.Finish(result.StatusOK, ExitOK)
}

func runtimeDiagnostic(err error, source string) result.Diagnostic {
	d := result.Diagnostic{Phase: result.PhaseRuntime, Severity: "error", Message: err.Error()}

	var re *interpreter.RuntimeError
	if errors.As(err, &re) {
		d.Line = re.Token.Pos.Line
		d.Column = re.Token.Pos.Column
		d.Lexeme = re.Token.Lexeme
		d.Message = re.Message
		if lines := strings.Split(source, "\n"); d.Line > 0 && d.Line <= len(lines) {
			d.Context = strings.TrimRight(lines[d.Line-1], "\r")
		}
	}
	return d
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Session evaluates successive chunks of source against one persistent
// global scope, as an interactive prompt does. Non-nil values of expression
// statements are echoed into the output. An error in one chunk leaves
// earlier bindings intact. A Session is safe for concurrent use; chunks are
// evaluated one at a time.
type Session struct {
	mu      sync.Mutex
	name    string
	globals *variable.Environment
	opts    []Option
	count   int
}

// NewSession creates a session. opts apply to every Eval; WithGlobals is
// ignored because the session owns its scope.
func NewSession(name string, opts ...Option) *Session {
	return &Session{name: name, globals: variable.NewGlobal(), opts: opts}
}

// Eval runs one chunk of source in the session.
func (s *Session) Eval(ctx context.Context, source string) *result.RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	opts := append(append([]Option{}, s.opts...), WithGlobals(s.globals), withEcho())
	return Run(ctx, fmt.Sprintf("%s#%d", s.name, s.count), source, opts...)
}

// Vars returns every binding in the session's global scope, natives
// included, keyed by name and rendered as program output would print them.
func (s *Session) Vars() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars := make(map[string]string)
	for _, name := range s.globals.Names() {
		v, _ := s.globals.Get(name)
		vars[name] = variable.Stringify(v)
	}
	return vars
}

// Reset discards every binding made in the session.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals = variable.NewGlobal()
	s.count = 0
}
