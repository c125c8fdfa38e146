package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/holla2040/loxr/internal/diag"
	"github.com/holla2040/loxr/internal/script/runner"
	"github.com/holla2040/loxr/internal/script/token"
)

var (
	accentColor    = lipgloss.Color("#3B82F6")
	successColor   = lipgloss.Color("#10B981")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	highlightColor = lipgloss.Color("#F59E0B")

	promptStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(successColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	headerStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			Padding(0, 1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(highlightColor)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)
)

// historyStore persists entered lines across sessions. *store.Store
// satisfies it.
type historyStore interface {
	AppendHistory(line string) error
	History(limit int) ([]string, error)
	TrimHistory(keep int) error
}

type transcriptEntry struct {
	input  string
	output string
	errors string
}

type replModel struct {
	textInput    textinput.Model
	session      *runner.Session
	store        historyStore
	historyLimit int
	transcript   []transcriptEntry
	cmdHistory   []string
	historyIdx   int
	width        int
	height       int
	showHelp     bool
	showVars     bool
	quitting     bool
	initialized  bool
}

type keyMap struct {
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding
	CtrlC key.Binding
	CtrlD key.Binding
	CtrlL key.Binding
	Tab   key.Binding
	CtrlV key.Binding
	CtrlK key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "previous line"),
	),
	Down: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "next line"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "evaluate"),
	),
	CtrlC: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
	CtrlD: key.NewBinding(
		key.WithKeys("ctrl+d"),
		key.WithHelp("ctrl+d", "quit"),
	),
	CtrlL: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "clear"),
	),
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "complete"),
	),
	CtrlV: key.NewBinding(
		key.WithKeys("ctrl+v"),
		key.WithHelp("ctrl+v", "toggle vars"),
	),
	CtrlK: key.NewBinding(
		key.WithKeys("ctrl+k"),
		key.WithHelp("ctrl+k", "toggle help"),
	),
}

// newREPLModel builds the interactive prompt. store may be nil, in which
// case history lasts only for the session. Each entered chunk is stopped
// with a runtime error after timeout; zero means no limit.
func newREPLModel(prompt string, store historyStore, historyLimit int, timeout time.Duration) replModel {
	ti := textinput.New()
	ti.Placeholder = "enter a statement..."
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 60
	ti.PromptStyle = promptStyle
	ti.Prompt = prompt

	m := replModel{
		textInput:    ti,
		session:      runner.NewSession("repl", runner.WithTimeout(timeout)),
		store:        store,
		historyLimit: historyLimit,
		cmdHistory:   make([]string, 0),
		historyIdx:   -1,
	}
	if store != nil {
		if lines, err := store.History(historyLimit); err == nil {
			m.cmdHistory = append(m.cmdHistory, lines...)
		}
	}
	return m
}

func (m replModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tea.EnterAltScreen)
}

func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textInput.Width = msg.Width - 10
		m.initialized = true
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.CtrlC), key.Matches(msg, keys.CtrlD):
			return m.quit()

		case key.Matches(msg, keys.CtrlL):
			m.transcript = nil
			return m, nil

		case key.Matches(msg, keys.CtrlV):
			m.showVars = !m.showVars
			return m, nil

		case key.Matches(msg, keys.CtrlK):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, keys.Up):
			if len(m.cmdHistory) > 0 {
				if m.historyIdx == -1 {
					m.historyIdx = len(m.cmdHistory) - 1
				} else if m.historyIdx > 0 {
					m.historyIdx--
				}
				m.textInput.SetValue(m.cmdHistory[m.historyIdx])
				m.textInput.CursorEnd()
			}
			return m, nil

		case key.Matches(msg, keys.Down):
			if m.historyIdx != -1 {
				if m.historyIdx < len(m.cmdHistory)-1 {
					m.historyIdx++
					m.textInput.SetValue(m.cmdHistory[m.historyIdx])
				} else {
					m.historyIdx = -1
					m.textInput.SetValue("")
				}
				m.textInput.CursorEnd()
			}
			return m, nil

		case key.Matches(msg, keys.Tab):
			return m.complete(), nil

		case key.Matches(msg, keys.Enter):
			input := strings.TrimSpace(m.textInput.Value())
			m.textInput.SetValue("")
			m.historyIdx = -1
			if input == "" {
				return m, nil
			}
			if input == "exit" || input == "quit" {
				return m.quit()
			}
			if strings.HasPrefix(input, ":") {
				return m.handleCommand(input)
			}

			m.transcript = append(m.transcript, m.evaluate(input))
			m.cmdHistory = append(m.cmdHistory, input)
			if m.store != nil {
				m.store.AppendHistory(input)
			}
			return m, nil
		}
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m replModel) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if m.store != nil && m.historyLimit > 0 {
		m.store.TrimHistory(m.historyLimit)
	}
	return m, tea.Quit
}

func (m replModel) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.Fields(input)[0]

	switch cmd {
	case ":help", ":h":
		m.showHelp = !m.showHelp
	case ":clear", ":c":
		m.transcript = nil
	case ":vars", ":v":
		m.showVars = !m.showVars
	case ":reset", ":r":
		m.session.Reset()
		m.transcript = append(m.transcript, transcriptEntry{input: input, output: "Environment reset"})
	case ":quit", ":q":
		return m.quit()
	default:
		m.transcript = append(m.transcript, transcriptEntry{
			input:  input,
			errors: fmt.Sprintf("Unknown command: %s", cmd),
		})
	}
	return m, nil
}

// complete finishes the last word of the input from keywords and bound
// names, or lists the candidates when there is more than one.
func (m replModel) complete() replModel {
	input := m.textInput.Value()
	words := strings.Fields(input)
	if len(words) == 0 {
		return m
	}
	lastWord := words[len(words)-1]

	seen := make(map[string]bool)
	var completions []string
	add := func(name string) {
		if strings.HasPrefix(name, lastWord) && !seen[name] {
			seen[name] = true
			completions = append(completions, name)
		}
	}
	for _, kw := range token.Keywords() {
		add(kw)
	}
	for name := range m.session.Vars() {
		add(name)
	}
	sort.Strings(completions)

	if len(completions) == 1 {
		m.textInput.SetValue(strings.TrimSuffix(input, lastWord) + completions[0])
		m.textInput.CursorEnd()
	} else if len(completions) > 1 {
		m.transcript = append(m.transcript, transcriptEntry{
			output: "Completions: " + strings.Join(completions, ", "),
		})
	}
	return m
}

func (m replModel) evaluate(input string) transcriptEntry {
	rep := m.session.Eval(context.Background(), input)
	entry := transcriptEntry{input: input, output: strings.TrimSuffix(rep.Output, "\n")}
	if len(rep.Diagnostics) > 0 {
		var buf bytes.Buffer
		diag.New(&buf, false).Print(rep.Diagnostics)
		entry.errors = strings.TrimSuffix(buf.String(), "\n")
	}
	return entry
}

func (m replModel) View() string {
	if !m.initialized {
		return "Loading..."
	}

	if m.quitting {
		return mutedStyle.Render("Goodbye!\n")
	}

	var b strings.Builder

	header := headerStyle.Render("Lox REPL")
	b.WriteString(header + " " + mutedStyle.Render("v"+version) + "\n")
	b.WriteString(mutedStyle.Render(strings.Repeat("─", max(0, min(m.width-2, 60)))) + "\n\n")

	reservedLines := 8
	if m.showHelp {
		reservedLines += 11
	}
	vars := m.session.Vars()
	if m.showVars {
		reservedLines += len(vars) + 3
	}
	availableHeight := max(m.height-reservedLines, 0)

	start := 0
	if len(m.transcript) > availableHeight {
		start = len(m.transcript) - availableHeight
	}

	for _, entry := range m.transcript[start:] {
		if entry.input != "" {
			b.WriteString(mutedStyle.Render("  › ") + entry.input + "\n")
		}
		if entry.output != "" {
			for _, line := range strings.Split(entry.output, "\n") {
				b.WriteString("  " + resultStyle.Render(line) + "\n")
			}
		}
		if entry.errors != "" {
			for _, line := range strings.Split(entry.errors, "\n") {
				b.WriteString("  " + errorStyle.Render(line) + "\n")
			}
		}
		b.WriteString("\n")
	}

	if m.showVars {
		b.WriteString(renderVarsPanel(vars))
		b.WriteString("\n")
	}

	if m.showHelp {
		b.WriteString(renderHelpPanel())
		b.WriteString("\n")
	}

	b.WriteString(m.textInput.View() + "\n\n")

	footer := helpKeyStyle.Render("ctrl+k") + helpDescStyle.Render(" help  ") +
		helpKeyStyle.Render("ctrl+v") + helpDescStyle.Render(" vars  ") +
		helpKeyStyle.Render("ctrl+l") + helpDescStyle.Render(" clear  ") +
		helpKeyStyle.Render("ctrl+c") + helpDescStyle.Render(" quit")
	b.WriteString(footer)

	return b.String()
}

func renderVarsPanel(vars map[string]string) string {
	if len(vars) == 0 {
		return borderStyle.Render(mutedStyle.Render("No variables defined"))
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Variables")}
	varNameStyle := lipgloss.NewStyle().Foreground(highlightColor)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("  %s = %s", varNameStyle.Render(name), vars[name]))
	}
	return borderStyle.Render(strings.Join(lines, "\n"))
}

func renderHelpPanel() string {
	help := []struct {
		key  string
		desc string
	}{
		{"↑/↓", "Navigate line history"},
		{"Tab", "Complete keywords and names"},
		{"Enter", "Evaluate the line"},
		{":help", "Toggle this help"},
		{":vars", "Toggle variables panel"},
		{":clear", "Clear the transcript"},
		{":reset", "Discard all bindings"},
		{":quit", "Exit (also exit or quit)"},
	}

	lines := []string{lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Help")}
	for _, h := range help {
		lines = append(lines, fmt.Sprintf("  %s  %s",
			helpKeyStyle.Render(fmt.Sprintf("%-8s", h.key)),
			helpDescStyle.Render(h.desc)))
	}
	return borderStyle.Render(strings.Join(lines, "\n"))
}

// ---------------------------------------------------------------------------
// repl command
// ---------------------------------------------------------------------------

func (c *cli) repl(args []string) int {
	fs := c.newFlagSet("repl", "")
	plain := fs.Bool("plain", c.cfg.REPL.Plain, "line-oriented prompt without the full-screen interface")
	if err := fs.Parse(args); err != nil {
		return runner.ExitUsage
	}
	if fs.NArg() != 0 {
		fs.Usage()
		return runner.ExitUsage
	}

	in, ok := c.stdin.(*os.File)
	if *plain || !ok || !isTerminal(in) || !isTerminal(c.stdout) {
		return c.plainREPL()
	}

	var hs historyStore
	db, err := c.openStore()
	if err != nil {
		log.New(c.stderr, "[repl] ", 0).Printf("history disabled: %v", err)
	} else {
		defer db.Close()
		hs = db
	}

	p := tea.NewProgram(newREPLModel(c.cfg.REPL.Prompt, hs, c.cfg.REPL.HistoryLimit, c.cfg.REPL.Timeout), tea.WithAltScreen(), tea.WithContext(c.ctx))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(c.stderr, "loxr: %v\n", err)
		return runner.ExitSoftware
	}
	return runner.ExitOK
}

// plainREPL reads one line at a time, printing output to stdout and
// diagnostics to stderr, until EOF or exit.
func (c *cli) plainREPL() int {
	session := runner.NewSession("repl", runner.WithOutput(c.stdout), runner.WithTimeout(c.cfg.REPL.Timeout))
	scanner := bufio.NewScanner(c.stdin)

	for {
		fmt.Fprint(c.stdout, c.cfg.REPL.Prompt)
		if !scanner.Scan() {
			fmt.Fprintln(c.stdout)
			return runner.ExitOK
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit", ":quit", ":q":
			return runner.ExitOK
		case ":reset":
			session.Reset()
			continue
		case ":vars":
			vars := session.Vars()
			names := make([]string, 0, len(vars))
			for name := range vars {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(c.stdout, "%s = %s\n", name, vars[name])
			}
			continue
		}

		if c.ctx.Err() != nil {
			return runner.ExitOK
		}
		rep := session.Eval(c.ctx, line)
		c.diag.Print(rep.Diagnostics)
	}
}
