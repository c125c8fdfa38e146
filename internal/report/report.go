// Package report exports run history as CSV, JSON, or a printable PDF.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/holla2040/loxr/internal/script/result"
)

// Formats accepted by Export.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatPDF  = "pdf"
)

var csvHeader = []string{"run_id", "name", "status", "exit_code", "started_at", "duration_ms", "output_lines", "diagnostics", "first_error"}

// Export writes runs to w in the named format.
func Export(w io.Writer, format string, runs []result.RunReport) error {
	switch format {
	case FormatCSV:
		return ExportCSV(w, runs)
	case FormatJSON:
		return ExportJSON(w, runs)
	case FormatPDF:
		return ExportPDF(w, runs)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// ExportCSV writes one row per run to w.
// Headers: run_id,name,status,exit_code,started_at,duration_ms,output_lines,diagnostics,first_error
func ExportCSV(w io.Writer, runs []result.RunReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, r := range runs {
		record := []string{
			r.RunID,
			r.Name,
			r.Status,
			strconv.Itoa(r.ExitCode),
			r.StartTime.UTC().Format(time.RFC3339),
			strconv.FormatInt(r.DurationMs, 10),
			strconv.Itoa(len(r.Lines())),
			strconv.Itoa(len(r.Diagnostics)),
			firstError(r),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportJSON writes runs as an indented JSON array to w.
func ExportJSON(w io.Writer, runs []result.RunReport) error {
	if runs == nil {
		runs = []result.RunReport{}
	}
	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}

// ExportPDF renders a summary table of runs followed by one page per run
// with its output and diagnostics.
func ExportPDF(w io.Writer, runs []result.RunReport) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// --- Page 1: summary ---
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 12, "Run History Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	counts := map[string]int{}
	for _, r := range runs {
		counts[r.Status]++
	}
	info := []struct{ label, value string }{
		{"Generated", time.Now().UTC().Format(time.RFC3339)},
		{"Runs", strconv.Itoa(len(runs))},
		{"Succeeded", strconv.Itoa(counts[result.StatusOK])},
		{"Parse errors", strconv.Itoa(counts[result.StatusParseError])},
		{"Runtime errors", strconv.Itoa(counts[result.StatusRuntimeError])},
	}
	for _, item := range info {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 7, item.label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Runs", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(runs) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 7, "No runs recorded.", "", 1, "L", false, 0, "")
	} else {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(220, 220, 220)
		pdf.CellFormat(50, 7, "Name", "1", 0, "L", true, 0, "")
		pdf.CellFormat(35, 7, "Started", "1", 0, "L", true, 0, "")
		pdf.CellFormat(30, 7, "Status", "1", 0, "C", true, 0, "")
		pdf.CellFormat(15, 7, "Exit", "1", 0, "C", true, 0, "")
		pdf.CellFormat(0, 7, "Duration", "1", 1, "R", true, 0, "")

		pdf.SetFont("Arial", "", 9)
		for _, r := range runs {
			pdf.CellFormat(50, 7, tr(truncate(r.Name, 28)), "1", 0, "L", false, 0, "")
			pdf.CellFormat(35, 7, r.StartTime.UTC().Format("2006-01-02 15:04"), "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 7, r.Status, "1", 0, "C", false, 0, "")
			pdf.CellFormat(15, 7, strconv.Itoa(r.ExitCode), "1", 0, "C", false, 0, "")
			pdf.CellFormat(0, 7, fmt.Sprintf("%dms", r.DurationMs), "1", 1, "R", false, 0, "")
		}
	}

	// --- Per-run details ---
	for i, r := range runs {
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("Run %d: %s", i+1, r.Name)), "", 1, "L", false, 0, "")

		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, fmt.Sprintf("ID: %s", r.RunID), "", 1, "L", false, 0, "")
		pdf.CellFormat(0, 7, fmt.Sprintf("Status: %s    Exit code: %d", r.Status, r.ExitCode), "", 1, "L", false, 0, "")
		pdf.CellFormat(0, 7, fmt.Sprintf("Started: %s    Duration: %dms", r.StartTime.UTC().Format(time.RFC3339), r.DurationMs), "", 1, "L", false, 0, "")
		pdf.Ln(4)

		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, "Output", "", 1, "L", false, 0, "")
		if r.Output == "" {
			pdf.SetFont("Arial", "I", 9)
			pdf.CellFormat(0, 6, "(no output)", "", 1, "L", false, 0, "")
		} else {
			pdf.SetFont("Courier", "", 8)
			pdf.MultiCell(0, 4, tr(strings.TrimSuffix(r.Output, "\n")), "1", "L", false)
		}
		pdf.Ln(4)

		if len(r.Diagnostics) > 0 {
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 7, "Diagnostics", "", 1, "L", false, 0, "")

			pdf.SetFont("Arial", "B", 8)
			pdf.SetFillColor(220, 220, 220)
			pdf.CellFormat(20, 6, "Phase", "1", 0, "L", true, 0, "")
			pdf.CellFormat(20, 6, "Position", "1", 0, "L", true, 0, "")
			pdf.CellFormat(0, 6, "Message", "1", 1, "L", true, 0, "")

			pdf.SetFont("Arial", "", 8)
			for _, d := range r.Diagnostics {
				pdf.CellFormat(20, 6, d.Phase, "1", 0, "L", false, 0, "")
				pdf.CellFormat(20, 6, fmt.Sprintf("%d:%d", d.Line, d.Column), "1", 0, "L", false, 0, "")
				pdf.CellFormat(0, 6, tr(truncate(d.Message, 90)), "1", 1, "L", false, 0, "")
			}
		}
	}

	return pdf.Output(w)
}

func firstError(r result.RunReport) string {
	for _, d := range r.Diagnostics {
		if d.Severity == "error" {
			return fmt.Sprintf("%d:%d %s", d.Line, d.Column, d.Message)
		}
	}
	return ""
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
