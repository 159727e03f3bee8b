package resp

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

// ============================================================
// ReadCommand - array framing
// ============================================================

func TestReadCommand_Array(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{
			name:  "simple PING command",
			input: "*1\r\n$4\r\nPING\r\n",
			want:  []string{"PING"},
		},
		{
			name:  "GET command",
			input: "*2\r\n$3\r\nGET\r\n$6\r\nmykey1\r\n",
			want:  []string{"GET", "mykey1"},
		},
		{
			name:  "SET command with value",
			input: "*3\r\n$3\r\nSET\r\n$5\r\nmykey\r\n$7\r\nmyvalue\r\n",
			want:  []string{"SET", "mykey", "myvalue"},
		},
		{
			name:  "empty bulk argument",
			input: "*2\r\n$4\r\nECHO\r\n$0\r\n\r\n",
			want:  []string{"ECHO", ""},
		},
		{
			name:  "empty array",
			input: "*0\r\n",
			want:  nil,
		},
		{
			name:  "null array",
			input: "*-1\r\n",
			want:  nil,
		},
		{
			name:    "bad bulk header",
			input:   "*1\r\n%4\r\nPING\r\n",
			wantErr: true,
		},
		{
			name:    "bad array length",
			input:   "*x\r\n",
			wantErr: true,
		},
		{
			name:    "missing bulk terminator",
			input:   "*1\r\n$4\r\nPINGxx",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tt.input))
			got, err := ReadCommand(r)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d args, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if string(got[i]) != tt.want[i] {
					t.Errorf("arg %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestReadCommand_Inline(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("SET foo bar\r\n"))
	got, err := ReadCommand(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"SET", "foo", "bar"}
	if len(got) != len(want) {
		t.Fatalf("got %d args, want %d", len(got), len(want))
	}
	for i := range got {
		if string(got[i]) != want[i] {
			t.Errorf("arg %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadCommand_InlineBlank(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("   \r\nPING\r\n"))
	got, err := ReadCommand(r)
	if err != nil || got != nil {
		t.Fatalf("blank line: got %v, %v; want nil, nil", got, err)
	}
	got, err = ReadCommand(r)
	if err != nil || len(got) != 1 || string(got[0]) != "PING" {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestReadCommand_LimitExceeded(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("*1\r\n$999999999999\r\nx\r\n"))
	_, err := ReadCommand(r)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("err = %v, want ErrLimitExceeded", err)
	}
}

// ============================================================
// Writer rendering
// ============================================================

func render(t *testing.T, proto int, r Reply) string {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(bufio.NewWriter(&buf), proto)
	if err := w.Write(r); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	return buf.String()
}

func TestWriterRESP2(t *testing.T) {
	tests := []struct {
		name  string
		reply Reply
		want  string
	}{
		{"simple", OK, "+OK\r\n"},
		{"error", Error("ERR boom"), "-ERR boom\r\n"},
		{"integer", Integer(42), ":42\r\n"},
		{"bulk", BulkString("hi"), "$2\r\nhi\r\n"},
		{"nil bulk", Bulk(nil), "$-1\r\n"},
		{"null", Null{}, "$-1\r\n"},
		{"null array", NullArray{}, "*-1\r\n"},
		{"array", Array{Integer(1), BulkString("a")}, "*2\r\n:1\r\n$1\r\na\r\n"},
		{"map flattens", Map{BulkString("k"), Integer(1)}, "*2\r\n$1\r\nk\r\n:1\r\n"},
		{"set flattens", Set{BulkString("a")}, "*1\r\n$1\r\na\r\n"},
		{"push flattens", Push{BulkString("message")}, "*1\r\n$7\r\nmessage\r\n"},
		{"double as bulk", Double(1.5), "$3\r\n1.5\r\n"},
		{"double integral", Double(3), "$1\r\n3\r\n"},
		{"bool as int", Boolean(true), ":1\r\n"},
		{"bignum as bulk", BigNumber("12345678901234567890"), "$20\r\n12345678901234567890\r\n"},
		{"verbatim as bulk", Verbatim{Format: "txt", Text: "hi"}, "$2\r\nhi\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, 2, tt.reply); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriterRESP3(t *testing.T) {
	tests := []struct {
		name  string
		reply Reply
		want  string
	}{
		{"null", Null{}, "_\r\n"},
		{"null array", NullArray{}, "_\r\n"},
		{"map", Map{BulkString("k"), Integer(1)}, "%1\r\n$1\r\nk\r\n:1\r\n"},
		{"set", Set{BulkString("a")}, "~1\r\n$1\r\na\r\n"},
		{"push", Push{BulkString("message")}, ">1\r\n$7\r\nmessage\r\n"},
		{"double", Double(1.5), ",1.5\r\n"},
		{"bool true", Boolean(true), "#t\r\n"},
		{"bool false", Boolean(false), "#f\r\n"},
		{"bignum", BigNumber("123"), "(123\r\n"},
		{"verbatim", Verbatim{Format: "txt", Text: "hi"}, "=6\r\ntxt:hi\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, 3, tt.reply); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDouble(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1"},
		{1.5, "1.5"},
		{-0.25, "-0.25"},
		{10.5, "10.5"},
		{3.0e3, "3000"},
	}
	for _, tt := range tests {
		if got := FormatDouble(tt.in); got != tt.want {
			t.Errorf("FormatDouble(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
