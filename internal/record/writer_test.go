package record

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, ';')

	if err := w.Write([]string{"id", "name", ""}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Write([]string{"1", `"a;b"`, "x"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	want := "id;name;\n1;\"a;b\";x\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestWriter_RoundTripMultiline(t *testing.T) {
	input := "id,note\n1,\"line1\nline2\"\n"

	s := NewScanner(strings.NewReader(input), WithLineEnding("\r\n"))
	records, err := readAll(s)
	if err != nil {
		t.Fatalf("readAll() error = %v", err)
	}

	var buf bytes.Buffer
	w := NewWriter(&buf, ',')
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	want := "id,note\n1,\"line1\r\nline2\"\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}

	// parsing the output again yields the same records
	again, err := readAll(NewScanner(&buf, WithLineEnding("\r\n")))
	if err != nil {
		t.Fatalf("re-read error = %v", err)
	}
	if !reflect.DeepEqual(again, records) {
		t.Errorf("re-read = %q, want %q", again, records)
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestWriter_StickyError(t *testing.T) {
	boom := errors.New("disk full")
	w := NewWriter(failingWriter{err: boom}, ',')

	// buffered, so the failure surfaces at Flush
	if err := w.Write([]string{"a"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Flush(); !errors.Is(err, boom) {
		t.Fatalf("Flush() error = %v, want %v", err, boom)
	}
	if err := w.Write([]string{"b"}); !errors.Is(err, boom) {
		t.Errorf("Write() after failure = %v, want %v", err, boom)
	}
}
