package record

import (
	"bufio"
	"io"
)

// Writer emits records as delimiter-joined lines.
//
// Fields are written verbatim: no quoting, no escaping. Fields that came from
// a Scanner still carry their quote characters, so they round-trip.
type Writer struct {
	w     *bufio.Writer
	delim rune
	err   error
}

// NewWriter returns a Writer that buffers output to w.
func NewWriter(w io.Writer, delim rune) *Writer {
	return &Writer{
		w:     bufio.NewWriter(w),
		delim: delim,
	}
}

// Write writes one record terminated by '\n'. After the first error every
// later call returns that error.
func (w *Writer) Write(fields []string) error {
	if w.err != nil {
		return w.err
	}
	for i, f := range fields {
		if i > 0 {
			if _, w.err = w.w.WriteRune(w.delim); w.err != nil {
				return w.err
			}
		}
		if _, w.err = w.w.WriteString(f); w.err != nil {
			return w.err
		}
	}
	w.err = w.w.WriteByte('\n')
	return w.err
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}
