// Package output serializes everything the shell prints to the console.
//
// Signal handlers and the read-eval loop write concurrently, so each message
// is formatted into a fixed-size buffer and handed to the underlying writer in
// a single Write call under a mutex. Nothing is buffered across calls: when the
// destination is an *os.File every message is one write(2), and ordering
// relative to child-process output on the same descriptor is preserved.
package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// MaxLine bounds a single message. Longer messages are truncated.
const MaxLine = 1024

type Writer struct {
	mu       sync.Mutex
	w        io.Writer
	buf      [MaxLine]byte
	errColor *color.Color
}

// New wraps w. Error lines are painted with attrs (red when none are given)
// if useColor is set.
func New(w io.Writer, useColor bool, attrs ...color.Attribute) *Writer {
	if len(attrs) == 0 {
		attrs = []color.Attribute{color.FgRed}
	}

	c := color.New(attrs...)
	if useColor {
		c.EnableColor()
	} else {
		c.DisableColor()
	}

	return &Writer{
		w:        w,
		errColor: c,
	}
}

// Printf formats and writes one message.
func (o *Writer) Printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.emit(fmt.Appendf(o.buf[:0], format, args...))
}

// Print writes s as one message.
func (o *Writer) Print(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.emit(append(o.buf[:0], s...))
}

// Errorf writes a user-facing error line, colored when enabled.
func (o *Writer) Errorf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	msg := o.errColor.Sprintf(format, args...)
	o.emit(append(append(o.buf[:0], msg...), '\n'))
}

// Write implements io.Writer so loggers can share the same serialization.
func (o *Writer) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.w.Write(p)
}

func (o *Writer) emit(p []byte) {
	if len(p) > MaxLine {
		p = p[:MaxLine]
	}
	// Console write errors have nowhere better to go.
	_, _ = o.w.Write(p)
}
