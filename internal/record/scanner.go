// Package record tokenizes delimited text into logical records.
//
// A record is one or more physical lines: a field that opens a double quote
// and does not close it on the same line continues on the next one, and the
// line break is rebuilt inside the field using the configured line ending.
//
// Quotes are kept verbatim. The scanner does not unescape doubled quotes and
// does not strip the surrounding quote characters, so a field written back
// out with Writer is byte-identical to what was read (apart from the line
// ending inside multiline fields and whitespace trimmed at line edges).
package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"unicode/utf8"
)

// ErrUnexpectedEOF is returned when the input ends inside a quoted field, or
// when a record was required but the input held none.
var ErrUnexpectedEOF = errors.New("unexpected end of input")

// DefaultDelimiter separates fields when no delimiter option is given.
const DefaultDelimiter = ','

// NativeLineEnding is the line terminator of the platform the binary was
// built for. It is the default used to rebuild line breaks inside multiline
// quoted fields.
var NativeLineEnding = nativeLineEnding()

func nativeLineEnding() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// ParseError reports a malformed record and the physical line where the
// scanner gave up.
type ParseError struct {
	StartLine int // physical line where the record began (1-based)
	Line      int // physical line where the error was detected (1-based)
	Err       error
}

func (e *ParseError) Error() string {
	if e.StartLine != e.Line {
		return fmt.Sprintf("record starting on line %d, line %d: %v", e.StartLine, e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// state is the quoting state of the line scanner.
type state int

const (
	unquoted state = iota
	quoted
)

// ParseLine splits one physical line into fields.
//
// The line is trimmed of leading and trailing whitespace before scanning, so
// whitespace at the outer edges of an unquoted first or last field is lost.
// inQuotes is the quoting state carried over from the previous physical line;
// the returned bool is the state at the end of this line.
//
// Every '"' is appended to the current field and flips the state, wherever it
// appears. A stray quote in the middle of an unquoted field therefore opens a
// quoted region; this is not RFC 4180 behavior. Apart from the trimmed line
// edges, field bytes are copied unchanged, including bytes that are not
// valid UTF-8.
func ParseLine(line string, delim rune, inQuotes bool) ([]string, bool) {
	line = strings.TrimSpace(line)

	st := unquoted
	if inQuotes {
		st = quoted
	}

	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); {
		c, size := utf8.DecodeRuneInString(line[i:])
		switch {
		case c == '"':
			cur.WriteByte('"')
			if st == quoted {
				st = unquoted
			} else {
				st = quoted
			}
		case c == delim && st == unquoted:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteString(line[i : i+size])
		}
		i += size
	}
	// end of line closes the current field, even when empty
	fields = append(fields, cur.String())

	return fields, st == quoted
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithDelimiter sets the field delimiter.
func WithDelimiter(delim rune) Option {
	return func(s *Scanner) {
		s.delim = delim
	}
}

// WithLineEnding sets the string used to join the physical lines of a
// multiline quoted field.
func WithLineEnding(eol string) Option {
	return func(s *Scanner) {
		s.lineEnding = eol
	}
}

// Scanner reads logical records from a stream of physical lines.
type Scanner struct {
	r          *bufio.Reader
	delim      rune
	lineEnding string
	line       int
	done       bool
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader, opts ...Option) *Scanner {
	s := &Scanner{
		r:          bufio.NewReader(r),
		delim:      DefaultDelimiter,
		lineEnding: NativeLineEnding,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Line returns the number of physical lines consumed so far.
func (s *Scanner) Line() int {
	return s.line
}

// Next returns the next logical record.
//
// It returns io.EOF when the input is exhausted before a record starts, and a
// *ParseError wrapping ErrUnexpectedEOF when the input ends inside a quoted
// field. Read errors from the underlying reader are returned as-is.
func (s *Scanner) Next() ([]string, error) {
	first, err := s.readLine()
	if err != nil {
		return nil, err
	}
	start := s.line

	fields, inQuotes := ParseLine(first, s.delim, false)
	for inQuotes {
		next, err := s.readLine()
		if err == io.EOF {
			return nil, &ParseError{StartLine: start, Line: s.line, Err: ErrUnexpectedEOF}
		}
		if err != nil {
			return nil, err
		}

		var more []string
		more, inQuotes = ParseLine(next, s.delim, true)

		last := len(fields) - 1
		fields[last] = fields[last] + s.lineEnding + more[0]
		fields = append(fields, more[1:]...)
	}

	return fields, nil
}

// readLine returns the next physical line without its terminator. A final
// line with no terminator is still a line; io.EOF is only returned once no
// bytes remain.
func (s *Scanner) readLine() (string, error) {
	if s.done {
		return "", io.EOF
	}

	line, err := s.r.ReadString('\n')
	if err == io.EOF {
		s.done = true
		if line == "" {
			return "", io.EOF
		}
	} else if err != nil {
		return "", err
	}

	s.line++
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}
