package record

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		inQuotes   bool
		wantFields []string
		wantQuoted bool
	}{
		{
			name:       "simple fields",
			line:       "1,Ann,Eng",
			wantFields: []string{"1", "Ann", "Eng"},
		},
		{
			name:       "empty trailing field is kept",
			line:       "1,Ann,",
			wantFields: []string{"1", "Ann", ""},
		},
		{
			name:       "empty line is one empty field",
			line:       "",
			wantFields: []string{""},
		},
		{
			name:       "quoted delimiter stays in field",
			line:       `1,"Smith, Ann",Eng`,
			wantFields: []string{"1", `"Smith, Ann"`, "Eng"},
		},
		{
			name:       "line edges are trimmed",
			line:       "  1,Ann , Eng  \t",
			wantFields: []string{"1", "Ann ", " Eng"},
		},
		{
			name:       "unterminated quote reports quoted state",
			line:       `1,"first line`,
			wantFields: []string{"1", `"first line`},
			wantQuoted: true,
		},
		{
			name:       "continuation closes quote",
			line:       `second line",Eng`,
			inQuotes:   true,
			wantFields: []string{`second line"`, "Eng"},
		},
		{
			name:       "continuation still open",
			line:       "middle, part",
			inQuotes:   true,
			wantFields: []string{"middle, part"},
			wantQuoted: true,
		},
		{
			name:       "stray quote flips state",
			line:       `1,O"Brien,Eng`,
			wantFields: []string{"1", `O"Brien,Eng`},
			wantQuoted: true,
		},
		{
			name:       "doubled quotes pass through",
			line:       `"say ""hi""",x`,
			wantFields: []string{`"say ""hi"""`, "x"},
		},
		{
			name:       "latin-1 bytes kept",
			line:       "1,Jos\xe9,M\xfcller",
			wantFields: []string{"1", "Jos\xe9", "M\xfcller"},
		},
		{
			name:       "invalid byte inside quotes",
			line:       "\"caf\xe9, bar\",\xff",
			wantFields: []string{"\"caf\xe9, bar\"", "\xff"},
		},
		{
			name:       "replacement character kept as is",
			line:       "a\uFFFD,b",
			wantFields: []string{"a\uFFFD", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, quoted := ParseLine(tt.line, ',', tt.inQuotes)
			if !reflect.DeepEqual(fields, tt.wantFields) {
				t.Errorf("fields = %q, want %q", fields, tt.wantFields)
			}
			if quoted != tt.wantQuoted {
				t.Errorf("quoted = %v, want %v", quoted, tt.wantQuoted)
			}
		})
	}
}

// readAll drains s.
func readAll(s *Scanner) ([][]string, error) {
	var records [][]string
	for {
		rec, err := s.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

func TestParseLine_MultibyteDelimiter(t *testing.T) {
	fields, _ := ParseLine("a§\xe9§\"x§y\"", '§', false)
	want := []string{"a", "\xe9", "\"x§y\""}
	if !reflect.DeepEqual(fields, want) {
		t.Errorf("fields = %q, want %q", fields, want)
	}
}

func TestScanner_NonUTF8Bytes(t *testing.T) {
	input := "id,name\n1,Jos\xe9\n2,\"Ren\xe9e\nM\xfcller\"\n"

	got, err := readAll(NewScanner(strings.NewReader(input), WithLineEnding("\n")))
	if err != nil {
		t.Fatalf("readAll() error = %v", err)
	}
	want := [][]string{
		{"id", "name"},
		{"1", "Jos\xe9"},
		{"2", "\"Ren\xe9e\nM\xfcller\""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("records = %q, want %q", got, want)
	}
}

func TestParseLine_CustomDelimiter(t *testing.T) {
	fields, quoted := ParseLine(`a;"b;c";d,e`, ';', false)
	want := []string{"a", `"b;c"`, "d,e"}
	if !reflect.DeepEqual(fields, want) {
		t.Errorf("fields = %q, want %q", fields, want)
	}
	if quoted {
		t.Error("quoted = true, want false")
	}
}

func TestScanner_Records(t *testing.T) {
	input := "id,name,notes\n" +
		"1,Ann,plain\n" +
		"2,Bob,\"line one\n" +
		"line two\",\n" +
		"3,Cy,\"a\n" +
		"b\n" +
		"c\"\n"

	s := NewScanner(strings.NewReader(input), WithLineEnding("\n"))
	got, err := readAll(s)
	if err != nil {
		t.Fatalf("readAll() error = %v", err)
	}

	want := [][]string{
		{"id", "name", "notes"},
		{"1", "Ann", "plain"},
		{"2", "Bob", "\"line one\nline two\"", ""},
		{"3", "Cy", "\"a\nb\nc\""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("records = %q, want %q", got, want)
	}
	if s.Line() != 7 {
		t.Errorf("Line() = %d, want 7", s.Line())
	}
}

func TestScanner_LineEnding(t *testing.T) {
	tests := []struct {
		name  string
		input string
		eol   string
		want  string
	}{
		{"lf input rebuilt as crlf", "\"a\nb\"\n", "\r\n", "\"a\r\nb\""},
		{"crlf input rebuilt as lf", "\"a\r\nb\"\r\n", "\n", "\"a\nb\""},
		{"crlf input rebuilt as crlf", "\"a\r\nb\"\r\n", "\r\n", "\"a\r\nb\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScanner(strings.NewReader(tt.input), WithLineEnding(tt.eol))
			rec, err := s.Next()
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			if len(rec) != 1 || rec[0] != tt.want {
				t.Errorf("record = %q, want [%q]", rec, tt.want)
			}
		})
	}
}

func TestScanner_DefaultLineEndingIsNative(t *testing.T) {
	s := NewScanner(strings.NewReader("\"x\ny\""))
	rec, err := s.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	want := "\"x" + NativeLineEnding + "y\""
	if rec[0] != want {
		t.Errorf("field = %q, want %q", rec[0], want)
	}
}

func TestScanner_NoTrailingNewline(t *testing.T) {
	s := NewScanner(strings.NewReader("a,b\n1,2"))
	got, err := readAll(s)
	if err != nil {
		t.Fatalf("readAll() error = %v", err)
	}
	want := [][]string{{"a", "b"}, {"1", "2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("records = %q, want %q", got, want)
	}
}

func TestScanner_EmptyInput(t *testing.T) {
	s := NewScanner(strings.NewReader(""))
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("Next() error = %v, want io.EOF", err)
	}
	// stays at EOF
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("second Next() error = %v, want io.EOF", err)
	}
}

func TestScanner_UnterminatedQuote(t *testing.T) {
	s := NewScanner(strings.NewReader("id,note\n1,\"never\nclosed\n"))
	if _, err := s.Next(); err != nil {
		t.Fatalf("header Next() error = %v", err)
	}

	_, err := s.Next()
	if !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("Next() error = %v, want ErrUnexpectedEOF", err)
	}

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error %T is not *ParseError", err)
	}
	if perr.StartLine != 2 || perr.Line != 3 {
		t.Errorf("ParseError lines = (%d, %d), want (2, 3)", perr.StartLine, perr.Line)
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestScanner_ReadError(t *testing.T) {
	boom := errors.New("disk gone")
	s := NewScanner(failingReader{err: boom})
	if _, err := s.Next(); !errors.Is(err, boom) {
		t.Fatalf("Next() error = %v, want %v", err, boom)
	}
}
