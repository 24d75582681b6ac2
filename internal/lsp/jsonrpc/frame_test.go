package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/sourcegraph/jsonrpc2"
)

func TestRoundTripByteIdentical(t *testing.T) {
	req, err := NewRequest(jsonrpc2.ID{Num: 7}, "rust-analyzer/expandMacro", map[string]interface{}{
		"textDocument": map[string]string{"uri": "file:///src/main.rs"},
		"position":     map[string]int{"line": 3, "character": 12},
	})
	if err != nil {
		t.Fatal(err)
	}
	var c Codec
	var first bytes.Buffer
	if err := c.WriteObject(&first, req); err != nil {
		t.Fatal(err)
	}

	payload, err := c.ReadFrame(bufio.NewReader(bytes.NewReader(first.Bytes())))
	if err != nil {
		t.Fatal(err)
	}
	msg, err := Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := msg.Kind(), KindRequest; got != want {
		t.Fatalf("decoded kind %v; want %v", got, want)
	}

	var second bytes.Buffer
	if err := c.WriteObject(&second, msg.Request); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Errorf("re-encoded frame differs:\n%q\n%q", first.Bytes(), second.Bytes())
	}
}

func TestReadFramePartialReads(t *testing.T) {
	var c Codec
	var buf bytes.Buffer
	payloads := []string{`{"jsonrpc":"2.0","method":"a"}`, `{"jsonrpc":"2.0","id":1,"result":null}`}
	for _, p := range payloads {
		if err := c.WriteFrame(&buf, []byte(p)); err != nil {
			t.Fatal(err)
		}
	}
	// A small buffer over a one-byte reader forces every frame to span
	// many underlying reads.
	r := bufio.NewReaderSize(iotest.OneByteReader(&buf), 32)
	var got []string
	for {
		p, err := c.ReadFrame(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		got = append(got, string(p))
	}
	if !cmp.Equal(got, payloads) {
		t.Errorf("frames differ: %v", cmp.Diff(payloads, got))
	}
}

func TestReadFrameHeaders(t *testing.T) {
	for _, tc := range []struct {
		name, input, want string
	}{
		{"lf only", "Content-Length: 2\n\n{}", "{}"},
		{"lower case", "content-length: 2\r\n\r\n{}", "{}"},
		{"content type", "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\nContent-Length: 2\r\n\r\n{}", "{}"},
		{"no space", "Content-Length:2\r\n\r\n{}", "{}"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Codec{}.ReadFrame(bufio.NewReader(strings.NewReader(tc.input)))
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if string(p) != tc.want {
				t.Errorf("payload is %q; want %q", p, tc.want)
			}
		})
	}
}

func TestReadFrameErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", io.EOF},
		{"truncated header", "Content-Length: 5\r\n", io.ErrUnexpectedEOF},
		{"truncated payload", "Content-Length: 5\r\n\r\n{}", io.ErrUnexpectedEOF},
		{"no colon", "Content-Length 5\r\n\r\n", ErrFrameCorrupt},
		{"bad length", "Content-Length: five\r\n\r\n", ErrFrameCorrupt},
		{"negative length", "Content-Length: -1\r\n\r\n", ErrFrameCorrupt},
		{"missing length", "Content-Type: x\r\n\r\n{}", ErrFrameCorrupt},
		{"long header", "X-Padding: " + strings.Repeat("x", 8192) + "\r\n\r\n", ErrFrameCorrupt},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tc.input))
			_, err := Codec{}.ReadFrame(r)
			if !errors.Is(err, tc.want) {
				t.Errorf("ReadFrame error is %v; want %v", err, tc.want)
			}
		})
	}
}

func TestReadFrameTooLargeKeepsAlignment(t *testing.T) {
	big := strings.Repeat("x", 100)
	input := "Content-Length: 100\r\n\r\n" + big +
		"Content-Length: 2\r\n\r\n{}"
	c := Codec{MaxSize: 10}
	r := bufio.NewReader(strings.NewReader(input))

	_, err := c.ReadFrame(r)
	var tooLarge *FrameTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("first ReadFrame error is %v; want *FrameTooLargeError", err)
	}
	if tooLarge.Length != 100 || tooLarge.Max != 10 {
		t.Errorf("got %+v; want length 100, max 10", tooLarge)
	}
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("error %v does not match ErrFrameTooLarge", err)
	}

	p, err := c.ReadFrame(r)
	if err != nil {
		t.Fatalf("second ReadFrame: %v", err)
	}
	if string(p) != "{}" {
		t.Errorf("second payload is %q; want %q", p, "{}")
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	c := Codec{MaxSize: 4}
	err := c.WriteFrame(&buf, []byte(`{"x":1}`))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("WriteFrame error is %v; want ErrFrameTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes for a rejected frame", buf.Len())
	}
	if err := c.WriteFrame(&buf, []byte(`{}`)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if got, want := buf.String(), "Content-Length: 2\r\n\r\n{}"; got != want {
		t.Errorf("frame is %q; want %q", got, want)
	}
}

type countingWriter struct {
	writes int
	bytes.Buffer
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}

func TestWriteFrameSingleWrite(t *testing.T) {
	var w countingWriter
	if err := (Codec{}).WriteFrame(&w, []byte(`{"jsonrpc":"2.0","method":"exit"}`)); err != nil {
		t.Fatal(err)
	}
	if w.writes != 1 {
		t.Errorf("WriteFrame issued %d writes; want 1", w.writes)
	}
}

func TestObjectCodec(t *testing.T) {
	var buf bytes.Buffer
	c := Codec{}
	in := map[string]interface{}{"jsonrpc": "2.0", "method": "initialized", "params": map[string]interface{}{}}
	if err := c.WriteObject(&buf, in); err != nil {
		t.Fatal(err)
	}
	var out map[string]interface{}
	if err := c.ReadObject(bufio.NewReader(&buf), &out); err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(in, out) {
		t.Errorf("objects differ: %v", cmp.Diff(in, out))
	}

	var raw json.RawMessage
	if err := c.ReadObject(bufio.NewReader(&buf), &raw); err != io.EOF {
		t.Errorf("ReadObject on empty stream returned %v; want io.EOF", err)
	}
}
