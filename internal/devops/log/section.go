package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// SectionWriter provides structured terminal output with color-coded sections.
type SectionWriter struct {
	mu  sync.Mutex
	w   io.Writer
	err io.Writer

	header  *color.Color
	info    *color.Color
	success *color.Color
	warn    *color.Color
	fail    *color.Color
}

// NewSectionWriter creates a new SectionWriter. Errors go to stderr when w is
// stdout, otherwise to w.
func NewSectionWriter(w io.Writer, colors bool) *SectionWriter {
	errW := io.Writer(os.Stderr)
	if w == nil {
		w = os.Stdout
	} else if w != os.Stdout {
		errW = w
	}
	s := &SectionWriter{
		w:       w,
		err:     errW,
		header:  color.New(color.FgCyan),
		info:    color.New(color.FgBlue),
		success: color.New(color.FgGreen),
		warn:    color.New(color.FgYellow, color.Bold),
		fail:    color.New(color.FgRed),
	}
	for _, c := range []*color.Color{s.header, s.info, s.success, s.warn, s.fail} {
		if colors {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Section prints a section header.
func (s *SectionWriter) Section(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "\n%s\n", s.header.Sprintf("── %s ──", name))
}

// Info prints an info message.
func (s *SectionWriter) Info(format string, args ...any) {
	s.line(s.w, s.info, "▸", format, args...)
}

// Success prints a success message.
func (s *SectionWriter) Success(format string, args ...any) {
	s.line(s.w, s.success, "✓", format, args...)
}

// Warn prints a warning message.
func (s *SectionWriter) Warn(format string, args ...any) {
	s.line(s.w, s.warn, "⚠", format, args...)
}

// Error prints an error message to the error stream.
func (s *SectionWriter) Error(format string, args ...any) {
	s.line(s.err, s.fail, "✗", format, args...)
}

func (s *SectionWriter) line(w io.Writer, c *color.Color, marker, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(w, "%s %s\n", c.Sprint(marker), msg)
}
