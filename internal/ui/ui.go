// Package ui renders command-line feedback: a spinner while a link is being
// resolved and a styled summary of the outcome. Output degrades to plain
// lines when stdout/stderr is not a terminal.
package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"postfetch/internal/resolve"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	spinStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Work is the job run behind the spinner. status replaces the line shown
// next to the spinner.
type Work func(ctx context.Context, status func(string)) error

type statusMsg string

type doneMsg struct{}

type spinModel struct {
	spinner spinner.Model
	title   string
	status  string
	done    bool
}

func newSpinModel(title string) spinModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinStyle
	return spinModel{spinner: s, title: title}
}

func (m spinModel) Init() tea.Cmd { return m.spinner.Tick }

func (m spinModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.status = string(msg)
		return m, nil
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinModel) View() string {
	if m.done {
		return ""
	}
	line := m.spinner.View() + " " + m.title
	if m.status != "" {
		line += " " + labelStyle.Render(m.status)
	}
	return line + "\n"
}

// Spin runs work while animating a spinner on out. When out is not a
// terminal the title is printed once and work runs without animation.
func Spin(ctx context.Context, out *os.File, title string, work Work) error {
	if !IsTerminal(out) {
		fmt.Fprintln(out, title)
		return work(ctx, func(string) {})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newSpinModel(title),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithContext(ctx),
	)

	result := make(chan error, 1)
	go func() {
		err := work(ctx, func(s string) { p.Send(statusMsg(s)) })
		result <- err
		p.Send(doneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		// Interrupted or ctx ended: stop the work and report its outcome.
		cancel()
	}
	return <-result
}

// FormatProgress renders a byte counter such as "1.2 MB / 3.4 MB".
func FormatProgress(written, total int64) string {
	if total <= 0 {
		return humanize.Bytes(uint64(written))
	}
	return humanize.Bytes(uint64(written)) + " / " + humanize.Bytes(uint64(total))
}

// RenderResult formats a resolution outcome for the terminal. verbose adds
// one line per strategy attempt.
func RenderResult(res *resolve.Result, verbose bool) string {
	var b strings.Builder
	if res.Success {
		b.WriteString(okStyle.Render("✓ Saved " + res.Kind.String()))
		b.WriteString("\n")
		writeField(&b, "platform", res.Platform.DisplayName())
		writeField(&b, "file", res.FilePath)
		writeField(&b, "size", humanize.Bytes(uint64(res.SizeBytes)))
		writeField(&b, "strategy", res.Strategy)
		if res.Caption != "" {
			writeField(&b, "caption", res.Caption)
		}
	} else {
		b.WriteString(errStyle.Render("✗ " + res.Message))
		b.WriteString("\n")
		writeField(&b, "code", string(res.Code))
	}

	if verbose {
		for _, a := range res.Attempts {
			switch {
			case a.Skipped:
				writeField(&b, a.Strategy, "skipped")
			case a.Err != nil:
				writeField(&b, a.Strategy, fmt.Sprintf("%s after %s", a.Code, a.Elapsed.Round(time.Millisecond)))
			case res.Success && a.Strategy == res.Strategy:
				writeField(&b, a.Strategy, fmt.Sprintf("found media in %s", a.Elapsed.Round(time.Millisecond)))
			default:
				writeField(&b, a.Strategy, fmt.Sprintf("no media after %s", a.Elapsed.Round(time.Millisecond)))
			}
		}
	}
	return b.String()
}

func writeField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(label+":"), value)
}
