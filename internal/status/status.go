// Package status prints pipeline events as styled terminal lines.
package status

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/debemdeboas/coursesync/internal/events"
)

const barWidth = 20

type Printer struct {
	mu sync.Mutex
	w  io.Writer

	key        lipgloss.Style
	start      lipgloss.Style
	progress   lipgloss.Style
	processing lipgloss.Style
	success    lipgloss.Style
	failure    lipgloss.Style
	dim        lipgloss.Style
}

// New returns a printer writing to w. Colours are used only when w is a
// terminal that supports them.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:          w,
		key:        r.NewStyle().Bold(true),
		start:      r.NewStyle().Foreground(lipgloss.Color("63")).Bold(true),
		progress:   r.NewStyle().Foreground(lipgloss.Color("212")),
		processing: r.NewStyle().Foreground(lipgloss.Color("214")),
		success:    r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		failure:    r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		dim:        r.NewStyle().Faint(true),
	}
}

// Attach prints every event published on b until the returned func is called.
func (p *Printer) Attach(b *events.Bus) func() {
	return b.SubscribeAll(p.Handle)
}

func (p *Printer) Handle(e events.Event) {
	line := p.Line(e)
	if line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, line)
}

// Line formats e without a trailing newline.
func (p *Printer) Line(e events.Event) string {
	prefix := p.key.Render("[" + e.DraftKey() + "]")

	switch ev := e.(type) {
	case events.StartEvent:
		return prefix + " " + p.start.Render("submitting")
	case events.ProgressEvent:
		return fmt.Sprintf("%s %s %s %s %s",
			prefix,
			p.progress.Render(ev.File),
			p.dim.Render(fmt.Sprintf("(file %d/%d)", ev.FileIndex+1, ev.TotalFiles)),
			Bar(ev.Completed, ev.Total, barWidth),
			p.dim.Render(fmt.Sprintf("%d/%d chunks", ev.Completed, ev.Total)))
	case events.ProcessingEvent:
		return prefix + " " + p.processing.Render("saving course")
	case events.SuccessEvent:
		msg := "saved"
		if ev.Response != nil && ev.Response.Slug != "" {
			msg = fmt.Sprintf("saved as %s (id %d)", ev.Response.Slug, ev.Response.ID)
		}
		return prefix + " " + p.success.Render(msg)
	case events.ErrorEvent:
		return fmt.Sprintf("%s %s %s", prefix, p.failure.Render(string(ev.ErrorType)), ev.Message)
	default:
		return ""
	}
}

// Bar draws a fixed-width progress bar for completed out of total.
func Bar(completed, total, width int) string {
	filled := width
	if total > 0 {
		filled = min(width, max(0, completed*width/total))
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
