package core

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/csvcombine/internal/record"
)

// Policy selects how rows sharing a key tuple are reconciled.
type Policy int

const (
	// PolicyKeepAll writes every row in arrival order.
	PolicyKeepAll Policy = iota
	// PolicyRemoveDuplicates keeps the first row for each key tuple and
	// drops the rest.
	PolicyRemoveDuplicates
	// PolicyMergeDuplicates folds rows with the same key tuple into one,
	// filling placeholder cells from later rows.
	PolicyMergeDuplicates
)

func (p Policy) String() string {
	switch p {
	case PolicyKeepAll:
		return "keep"
	case PolicyRemoveDuplicates:
		return "remove"
	case PolicyMergeDuplicates:
		return "merge"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts "keep", "remove" or "merge" (case-insensitive) to a
// Policy. An empty string means PolicyKeepAll.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep", "none":
		return PolicyKeepAll, nil
	case "remove", "remove-duplicates":
		return PolicyRemoveDuplicates, nil
	case "merge", "merge-duplicates":
		return PolicyMergeDuplicates, nil
	default:
		return PolicyKeepAll, fmt.Errorf("%w %q (want keep, remove or merge)", ErrUnknownPolicy, s)
	}
}

// PolicyFromFlags maps the two command-line switches to a Policy.
// Both switches together is a configuration conflict.
func PolicyFromFlags(removeDuplicates, mergeDuplicates bool) (Policy, error) {
	switch {
	case removeDuplicates && mergeDuplicates:
		return PolicyKeepAll, ErrConflictingPolicies
	case removeDuplicates:
		return PolicyRemoveDuplicates, nil
	case mergeDuplicates:
		return PolicyMergeDuplicates, nil
	default:
		return PolicyKeepAll, nil
	}
}

// Source is one input table. Open is called once per pass over the data, so
// it must return a fresh reader positioned at the start every time.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// FileSource reads a table from a file on disk.
type FileSource string

// Name returns the file path.
func (f FileSource) Name() string { return string(f) }

// Open opens the file for reading.
func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// BytesSource is an in-memory table, used for uploaded files and tests.
type BytesSource struct {
	Label string
	Data  []byte
}

// Name returns the label.
func (b BytesSource) Name() string { return b.Label }

// Open returns a reader over the data.
func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

// FileSources wraps each path as a FileSource, preserving order.
func FileSources(paths []string) []Source {
	sources := make([]Source, len(paths))
	for i, p := range paths {
		sources[i] = FileSource(p)
	}
	return sources
}

// Options configures one combining run.
type Options struct {
	Sources []Source

	// Keys are the key column names. Nil derives them from the first
	// source's header (every column, in header order).
	Keys []string

	Delimiter  rune   // field delimiter, defaults to ','
	EmptyValue string // placeholder for cells a row does not supply
	LineEnding string // joins lines of multiline fields, defaults to record.NativeLineEnding
	Policy     Policy

	// StripBOM drops a leading UTF-8 byte-order mark from every source.
	// Off by default: the mark is otherwise kept as part of the first
	// column name.
	StripBOM bool
}

// withDefaults returns a copy with zero values replaced by defaults.
func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = record.DefaultDelimiter
	}
	if o.LineEnding == "" {
		o.LineEnding = record.NativeLineEnding
	}
	return o
}

// Validate checks the options before any source is opened.
func (o Options) Validate() error {
	if len(o.Sources) == 0 {
		return ErrNoInputs
	}
	if o.Policy != PolicyKeepAll && o.Policy != PolicyRemoveDuplicates && o.Policy != PolicyMergeDuplicates {
		return fmt.Errorf("invalid duplicate policy %d", int(o.Policy))
	}
	if o.Delimiter == '"' || o.Delimiter == '\n' || o.Delimiter == '\r' || o.Delimiter == utf8.RuneError {
		return fmt.Errorf("%w: %q", ErrInvalidDelimiter, o.Delimiter)
	}
	seen := make(map[string]bool, len(o.Keys))
	for _, k := range o.Keys {
		if seen[k] {
			return fmt.Errorf("%w: %q", ErrDuplicateKeyColumn, k)
		}
		seen[k] = true
	}
	return nil
}

// Schema is the unified output layout for a set of sources.
type Schema struct {
	// Keys are the key column names, always Header[:len(Keys)].
	Keys []string

	// Header is the unified output header.
	Header []string

	// IndexMaps holds, per source, the output position of each input column.
	IndexMaps [][]int
}

// Result summarizes a completed run.
type Result struct {
	Header       []string
	Files        int
	RowsRead     int           // data records read across all sources
	RowsWritten  int           // data records written, header excluded
	Duplicates   int           // rows dropped by PolicyRemoveDuplicates
	Merged       int           // rows folded into an earlier row by PolicyMergeDuplicates
	DistinctKeys int           // distinct key tuples under PolicyRemoveDuplicates or PolicyMergeDuplicates
	Overflow     int           // rows with more fields than their header; extras are dropped
	BytesRead    int64         // bytes consumed during the row pass
	Duration     time.Duration
}

// SourceNames returns the display names of the sources.
func SourceNames(sources []Source) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = filepath.ToSlash(s.Name())
	}
	return names
}
