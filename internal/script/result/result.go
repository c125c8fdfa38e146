// Package result collects the output and diagnostics of a single Lox run
// and produces a structured report. The interpreter writes to a Collector
// through io.Writer; this package does NOT import the interpreter.
package result

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusOK           = "ok"
	StatusParseError   = "parse_error"
	StatusRuntimeError = "runtime_error"
)

// Diagnostic phases.
const (
	PhaseLex     = "lex"
	PhaseParse   = "parse"
	PhaseRuntime = "runtime"
)

// ---------------------------------------------------------------------------
// Data types
// ---------------------------------------------------------------------------

// Diagnostic is one error or warning attributed to a source location.
type Diagnostic struct {
	Phase    string `json:"phase"`
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
	Lexeme   string `json:"lexeme,omitempty"`
	Severity string `json:"severity"` // "error" or "warning"
	Message  string `json:"message"`
	Context  string `json:"context,omitempty"`
}

// RunReport is the top-level report for one program execution.
type RunReport struct {
	RunID       string       `json:"run_id"`
	Name        string       `json:"name"`
	Status      string       `json:"status"`
	ExitCode    int          `json:"exit_code"`
	Output      string       `json:"output"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time"`
	DurationMs  int64        `json:"duration_ms"`
}

// OK reports whether the run completed with no errors.
func (r *RunReport) OK() bool {
	return r.Status == StatusOK
}

// Lines splits the printed output into lines, without the trailing newline.
func (r *RunReport) Lines() []string {
	if r.Output == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(r.Output, "\n"), "\n")
}

// ---------------------------------------------------------------------------
// Collector
// ---------------------------------------------------------------------------

// Collector accumulates printed output and diagnostics while a program
// runs. It is safe for concurrent use.
type Collector struct {
	mu          sync.Mutex
	runID       string
	name        string
	output      strings.Builder
	diagnostics []Diagnostic
	startTime   time.Time
}

// NewCollector creates a Collector for the named program, assigning a fresh
// run ID and recording the start time immediately.
func NewCollector(name string) *Collector {
	return &Collector{
		runID:     uuid.NewString(),
		name:      name,
		startTime: time.Now(),
	}
}

// RunID returns the identifier the finished report will carry.
func (c *Collector) RunID() string {
	return c.runID
}

// Write implements io.Writer, appending printed program output.
func (c *Collector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output.Write(p)
}

// RecordDiagnostic appends a diagnostic. An empty severity defaults to
// "error".
func (c *Collector) RecordDiagnostic(d Diagnostic) {
	if d.Severity == "" {
		d.Severity = "error"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics = append(c.diagnostics, d)
}

// Diagnostics returns a copy of the diagnostics recorded so far.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Diagnostic(nil), c.diagnostics...)
}

// ---------------------------------------------------------------------------
// Finalize
// ---------------------------------------------------------------------------

// Finish stamps the end time and builds the report. Call after execution
// completes.
func (c *Collector) Finish(status string, exitCode int) *RunReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	return &RunReport{
		RunID:       c.runID,
		Name:        c.name,
		Status:      status,
		ExitCode:    exitCode,
		Output:      c.output.String(),
		Diagnostics: append([]Diagnostic(nil), c.diagnostics...),
		StartTime:   c.startTime,
		EndTime:     now,
		DurationMs:  now.Sub(c.startTime).Milliseconds(),
	}
}
