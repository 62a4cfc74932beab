package core

import (
	"strconv"
	"strings"
)

// tupleKey encodes a key tuple as a map key. Each field is length-prefixed,
// so ("a,b") and ("a", "b") never collide whatever the delimiter.
func tupleKey(fields []string) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
	}
	return b.String()
}

// seenKeys records the key tuples already written under
// PolicyRemoveDuplicates.
type seenKeys map[string]struct{}

// add records the tuple and reports whether it was new.
func (s seenKeys) add(tuple []string) bool {
	k := tupleKey(tuple)
	if _, dup := s[k]; dup {
		return false
	}
	s[k] = struct{}{}
	return true
}

// mergedRow is one buffered output row under PolicyMergeDuplicates.
type mergedRow struct {
	key    []string
	values []string
}

// mergeBuffer accumulates rows by key tuple and remembers first-seen order.
type mergeBuffer struct {
	empty string
	index map[string]int
	rows  []*mergedRow
}

func newMergeBuffer(empty string) *mergeBuffer {
	return &mergeBuffer{
		empty: empty,
		index: make(map[string]int),
	}
}

// add folds an output row into the buffer. The row is split at keyLen into
// key tuple and values. A new tuple is buffered as-is. For a known tuple,
// each buffered value still equal to the placeholder takes the new value;
// values already filled are never overwritten. It reports whether the row was
// folded into an earlier one.
func (m *mergeBuffer) add(row []string, keyLen int) bool {
	key := row[:keyLen]
	values := row[keyLen:]

	k := tupleKey(key)
	if i, ok := m.index[k]; ok {
		existing := m.rows[i].values
		for j, v := range values {
			if existing[j] == m.empty {
				existing[j] = v
			}
		}
		return true
	}

	m.index[k] = len(m.rows)
	m.rows = append(m.rows, &mergedRow{key: key, values: values})
	return false
}

// each calls fn for every buffered row in first-seen order, with key and
// values concatenated. It stops at the first error.
func (m *mergeBuffer) each(fn func(row []string) error) error {
	for _, r := range m.rows {
		row := make([]string, 0, len(r.key)+len(r.values))
		row = append(row, r.key...)
		row = append(row, r.values...)
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

// len returns the number of distinct key tuples.
func (m *mergeBuffer) len() int {
	return len(m.rows)
}
