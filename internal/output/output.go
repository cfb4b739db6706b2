// Package output prints one-line CLI status messages, styled with the ui
// palette when the destination is a terminal.
package output

import (
	"fmt"
	"io"

	"github.com/dillonfkhanna/multi-search/internal/ui"
)

// Writer prints status messages.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer for cfg.Output.
func New(cfg ui.Config) *Writer {
	return &Writer{out: cfg.Output, styles: ui.GetStyles(cfg.NoColor)}
}

// Status prints msg after icon, or indented when icon is empty.
// Write errors are ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Info prints an indented detail line.
func (w *Writer) Info(msg string) {
	w.Status("", w.styles.Label.Render(msg))
}

// Infof prints a formatted detail line.
func (w *Writer) Infof(format string, args ...any) {
	w.Info(fmt.Sprintf(format, args...))
}
