package core

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("id,name")...),
			expected: "id,name",
		},
		{
			name:     "file without BOM",
			input:    []byte("id,name"),
			expected: "id,name",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
		{
			name:     "shorter than a BOM",
			input:    []byte("a"),
			expected: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := newBOMSkippingReader(bytes.NewReader(tt.input))
			result, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestBOMSkippingReader_OneByteReads(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("x,y\n1,2\n")...)
	reader := newBOMSkippingReader(iotest.OneByteReader(bytes.NewReader(input)))

	result, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != "x,y\n1,2\n" {
		t.Errorf("got %q", result)
	}
}

func TestBOMSkippingReader_Error(t *testing.T) {
	boom := errors.New("boom")
	reader := newBOMSkippingReader(iotest.ErrReader(boom))
	if _, err := io.ReadAll(reader); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestWrapSource_Counts(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello")...)

	stripped := wrapSource(bytes.NewReader(input), true)
	if _, err := io.Copy(io.Discard, stripped); err != nil {
		t.Fatal(err)
	}
	if stripped.n != 5 {
		t.Errorf("stripped count = %d, want 5", stripped.n)
	}

	raw := wrapSource(bytes.NewReader(input), false)
	if _, err := io.Copy(io.Discard, raw); err != nil {
		t.Fatal(err)
	}
	if raw.n != 8 {
		t.Errorf("raw count = %d, want 8", raw.n)
	}
}
