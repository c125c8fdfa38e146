package result

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// NewCollector
// ---------------------------------------------------------------------------

func TestNewCollector(t *testing.T) {
	c := NewCollector("test.lox")
	if c == nil {
		t.Fatal("NewCollector returned nil")
	}
	if c.name != "test.lox" {
		t.Errorf("name = %q, want %q", c.name, "test.lox")
	}
	if c.startTime.IsZero() {
		t.Error("startTime should not be zero")
	}
	if _, err := uuid.Parse(c.RunID()); err != nil {
		t.Errorf("RunID %q is not a uuid: %v", c.RunID(), err)
	}
}

func TestRunIDsAreUnique(t *testing.T) {
	a, b := NewCollector("a"), NewCollector("b")
	if a.RunID() == b.RunID() {
		t.Errorf("two collectors share run ID %s", a.RunID())
	}
}

// ---------------------------------------------------------------------------
// Output capture
// ---------------------------------------------------------------------------

func TestWriteCapturesOutput(t *testing.T) {
	c := NewCollector("out.lox")
	fmt.Fprintln(c, "1")
	fmt.Fprintln(c, "hello")
	report := c.Finish(StatusOK, 0)

	if report.Output != "1\nhello\n" {
		t.Errorf("Output = %q", report.Output)
	}
	if want := []string{"1", "hello"}; !reflect.DeepEqual(report.Lines(), want) {
		t.Errorf("Lines() = %v, want %v", report.Lines(), want)
	}
}

func TestLinesEmpty(t *testing.T) {
	report := NewCollector("empty.lox").Finish(StatusOK, 0)
	if lines := report.Lines(); lines != nil {
		t.Errorf("Lines() = %v, want nil", lines)
	}
}

func TestConcurrentWrites(t *testing.T) {
	c := NewCollector("concurrent.lox")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Fprintln(c, "x")
			c.RecordDiagnostic(Diagnostic{Phase: PhaseRuntime, Message: "m"})
		}()
	}
	wg.Wait()

	report := c.Finish(StatusRuntimeError, 70)
	if len(report.Lines()) != 20 {
		t.Errorf("got %d lines, want 20", len(report.Lines()))
	}
	if len(report.Diagnostics) != 20 {
		t.Errorf("got %d diagnostics, want 20", len(report.Diagnostics))
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestRecordDiagnosticDefaultsSeverity(t *testing.T) {
	c := NewCollector("diag.lox")
	c.RecordDiagnostic(Diagnostic{Phase: PhaseParse, Line: 2, Column: 5, Message: "expected expression"})
	c.RecordDiagnostic(Diagnostic{Phase: PhaseParse, Line: 3, Severity: "warning", Message: "w"})

	diags := c.Diagnostics()
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(diags))
	}
	if diags[0].Severity != "error" {
		t.Errorf("default severity = %q, want error", diags[0].Severity)
	}
	if diags[1].Severity != "warning" {
		t.Errorf("explicit severity = %q, want warning", diags[1].Severity)
	}
}

func TestDiagnosticsReturnsCopy(t *testing.T) {
	c := NewCollector("copy.lox")
	c.RecordDiagnostic(Diagnostic{Message: "original"})
	diags := c.Diagnostics()
	diags[0].Message = "mutated"
	if c.Diagnostics()[0].Message != "original" {
		t.Error("Diagnostics() exposed internal storage")
	}
}

// ---------------------------------------------------------------------------
// Finish
// ---------------------------------------------------------------------------

func TestFinish(t *testing.T) {
	cases := []struct {
		name     string
		status   string
		exitCode int
		ok       bool
	}{
		{"ok", StatusOK, 0, true},
		{"parse error", StatusParseError, 65, false},
		{"runtime error", StatusRuntimeError, 70, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCollector("finish.lox")
			report := c.Finish(tc.status, tc.exitCode)

			if report.RunID != c.RunID() {
				t.Errorf("RunID = %q, want %q", report.RunID, c.RunID())
			}
			if report.Name != "finish.lox" {
				t.Errorf("Name = %q", report.Name)
			}
			if report.Status != tc.status || report.ExitCode != tc.exitCode {
				t.Errorf("status/exit = %s/%d, want %s/%d", report.Status, report.ExitCode, tc.status, tc.exitCode)
			}
			if report.OK() != tc.ok {
				t.Errorf("OK() = %v, want %v", report.OK(), tc.ok)
			}
			if report.EndTime.Before(report.StartTime) {
				t.Error("EndTime before StartTime")
			}
			if report.DurationMs < 0 {
				t.Errorf("DurationMs = %d", report.DurationMs)
			}
		})
	}
}

func TestReportJSONFields(t *testing.T) {
	c := NewCollector("json.lox")
	fmt.Fprint(c, "3\n")
	c.RecordDiagnostic(Diagnostic{Phase: PhaseRuntime, Line: 1, Message: "boom"})
	data, err := json.Marshal(c.Finish(StatusRuntimeError, 70))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"run_id", "name", "status", "exit_code", "output", "diagnostics", "start_time", "end_time", "duration_ms"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing JSON key %q", key)
		}
	}
	if raw["status"] != "runtime_error" {
		t.Errorf("status = %v", raw["status"])
	}
}
