// Package diag renders run diagnostics for a terminal, in the form
// "Syntax Error: message at line L, column C" with the offending source
// line and a caret beneath it.
package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/holla2040/loxr/internal/script/result"
	"github.com/muesli/termenv"
)

var (
	syntaxColor   = lipgloss.Color("#EF4444")
	runtimeColor  = lipgloss.Color("#F87171")
	locationColor = lipgloss.Color("#F59E0B")
	mutedColor    = lipgloss.Color("#6B7280")
)

// Printer writes diagnostics to w, colored or plain.
type Printer struct {
	w io.Writer

	syntaxStyle   lipgloss.Style
	runtimeStyle  lipgloss.Style
	locationStyle lipgloss.Style
	contextStyle  lipgloss.Style
}

// New returns a Printer writing to w. When color is false every style
// renders as plain text.
func New(w io.Writer, color bool) *Printer {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Printer{
		w:             w,
		syntaxStyle:   r.NewStyle().Foreground(syntaxColor).Bold(true),
		runtimeStyle:  r.NewStyle().Foreground(runtimeColor).Bold(true),
		locationStyle: r.NewStyle().Foreground(locationColor),
		contextStyle:  r.NewStyle().Foreground(mutedColor),
	}
}

// Label names the kind of error a diagnostic reports.
func Label(d result.Diagnostic) string {
	if d.Phase == result.PhaseRuntime {
		return "Runtime Error"
	}
	return "Syntax Error"
}

// Format renders d without a trailing newline.
func (p *Printer) Format(d result.Diagnostic) string {
	label := p.syntaxStyle.Render(Label(d))
	if d.Phase == result.PhaseRuntime {
		label = p.runtimeStyle.Render(Label(d))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", label, d.Message)
	if d.Line > 0 {
		fmt.Fprintf(&b, " at %s, %s",
			p.locationStyle.Render(fmt.Sprintf("line %d", d.Line)),
			p.locationStyle.Render(fmt.Sprintf("column %d", d.Column)))
	}
	if d.Context != "" {
		b.WriteString("\n    " + p.contextStyle.Render(d.Context))
		if d.Column > 0 {
			b.WriteString("\n    " + caret(d.Context, d.Column))
		}
	}
	return b.String()
}

// Print writes each diagnostic on its own line.
func (p *Printer) Print(diags []result.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintln(p.w, p.Format(d))
	}
}

// caret points at a 1-based column, keeping tabs so the marker lines up
// under the source line.
func caret(line string, column int) string {
	var b strings.Builder
	for i, r := range []rune(line) {
		if i >= column-1 {
			break
		}
		if r == '\t' {
			b.WriteRune('\t')
		} else {
			b.WriteRune(' ')
		}
	}
	b.WriteRune('^')
	return b.String()
}
