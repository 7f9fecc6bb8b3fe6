// Package console is the operator's terminal: the live status line, line
// input, the optional hardware button, and printed reports.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sweeney/roast-timer/internal/logic"
)

const eraseLine = "\r\x1b[2K"

// Styles are the text styles used on one output.
type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
	Muted lipgloss.Style
	Alert lipgloss.Style
	Good  lipgloss.Style
}

// NewStyles binds the styles to w's renderer, so output that is not a
// terminal gets plain text.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Title: r.NewStyle().Foreground(lipgloss.Color("229")).Bold(true),
		Label: r.NewStyle().Foreground(lipgloss.Color("245")),
		Value: r.NewStyle().Foreground(lipgloss.Color("252")),
		Muted: r.NewStyle().Foreground(lipgloss.Color("240")),
		Alert: r.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
		Good:  r.NewStyle().Foreground(lipgloss.Color("114")),
	}
}

// Line is the shared terminal line. The live display rewrites it in place;
// permanent output first erases whatever the live display left there.
type Line struct {
	mu     sync.Mutex
	w      io.Writer
	dirty  bool
	styles Styles
}

// NewLine creates a Line writing to w.
func NewLine(w io.Writer) *Line {
	return &Line{w: w, styles: NewStyles(w)}
}

// Styles returns the styles bound to the line's output.
func (l *Line) Styles() Styles {
	return l.styles
}

// Show replaces the live line.
func (l *Line) Show(elapsed time.Duration, label, message string) {
	var b strings.Builder
	b.WriteString(eraseLine)
	b.WriteString(l.styles.Label.Render("Elapsed:"))
	b.WriteString(" ")
	b.WriteString(l.styles.Value.Render(logic.FormatElapsed(elapsed)))
	if label != "" {
		b.WriteString(l.styles.Muted.Render(" | "))
		b.WriteString(l.styles.Value.Render(label))
	}
	if message != "" {
		b.WriteString("  ")
		b.WriteString(l.styles.Alert.Render(">> " + message))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.w, b.String())
	l.dirty = true
}

// Clear erases the live line if anything is on it.
func (l *Line) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearLocked()
}

func (l *Line) clearLocked() {
	if l.dirty {
		io.WriteString(l.w, eraseLine)
		l.dirty = false
	}
}

// Write prints permanent output below any live text.
func (l *Line) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearLocked()
	return l.w.Write(p)
}

// Printf prints permanent output.
func (l *Line) Printf(format string, args ...interface{}) {
	fmt.Fprintf(l, format, args...)
}

// Bell returns a writer for control characters that must not disturb the
// live line.
func (l *Line) Bell() io.Writer {
	return bellWriter{l}
}

type bellWriter struct{ l *Line }

func (b bellWriter) Write(p []byte) (int, error) {
	b.l.mu.Lock()
	defer b.l.mu.Unlock()
	return b.l.w.Write(p)
}
