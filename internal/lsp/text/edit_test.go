package text

import (
	"runtime"
	"strings"
	"testing"

	"github.com/fhs/go-lsp-internal/lsp/protocol"
)

func TestToURI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("TODO: failing on windows due to file path issues")
	}

	for _, tc := range []struct {
		name string
		uri  protocol.DocumentURI
	}{
		{"/home/gopher/hello.go", "file:///home/gopher/hello.go"},
		{"/home/タロ/src/hello.go", "file:///home/%E3%82%BF%E3%83%AD/src/hello.go"},
		{"/usr/include/c++/v1/deque", "file:///usr/include/c++/v1/deque"},
	} {
		uri := ToURI(tc.name)
		if uri != tc.uri {
			t.Errorf("ToURI(%q) is %q; expected %q", tc.name, uri, tc.uri)
		}
	}
}

func TestToPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("TODO: failing on windows due to file path issues")
	}

	for _, tc := range []struct {
		name string
		uri  protocol.DocumentURI
	}{
		{"/home/gopher/hello.go", "/home/gopher/hello.go"},
		{"/home/gopher/hello.go", "file:///home/gopher/hello.go"},
		{"/home/タロ/src/hello.go", "file:///home/%E3%82%BF%E3%83%AD/src/hello.go"},
		{"/usr/include/c++/v1/deque", "file:///usr/include/c%2B%2B/v1/deque"},
	} {
		name := ToPath(tc.uri)
		if name != tc.name {
			t.Errorf("ToPath(%q) is %q; expected %q", tc.uri, name, tc.name)
		}
	}
}

func TestEdit(t *testing.T) {
	pos := func(line, char uint32) protocol.Position {
		return protocol.Position{Line: line, Character: char}
	}
	for _, tc := range []struct {
		name  string
		text  string
		edits []protocol.TextEdit
		want  string
	}{
		{
			name: "insert",
			text: "fn main() {}\n",
			edits: []protocol.TextEdit{
				{Range: protocol.Range{Start: pos(0, 11), End: pos(0, 11)}, NewText: "\n    todo!();\n"},
			},
			want: "fn main() {\n    todo!();\n}\n",
		},
		{
			name: "join lines",
			text: "let x =\n    1;\n",
			edits: []protocol.TextEdit{
				{Range: protocol.Range{Start: pos(0, 7), End: pos(1, 4)}, NewText: " "},
			},
			want: "let x = 1;\n",
		},
		{
			name: "several out of order",
			text: "a b c\n",
			edits: []protocol.TextEdit{
				{Range: protocol.Range{Start: pos(0, 0), End: pos(0, 1)}, NewText: "alpha"},
				{Range: protocol.Range{Start: pos(0, 4), End: pos(0, 5)}, NewText: "gamma"},
				{Range: protocol.Range{Start: pos(0, 2), End: pos(0, 3)}, NewText: "beta"},
			},
			want: "alpha beta gamma\n",
		},
		{
			name: "utf-16 columns",
			text: "let s = \"🦀\"; x\n",
			edits: []protocol.TextEdit{
				// The crab is two UTF-16 code units wide.
				{Range: protocol.Range{Start: pos(0, 14), End: pos(0, 15)}, NewText: "y"},
			},
			want: "let s = \"🦀\"; y\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := BytesFile(tc.text)
			if err := Edit(&f, tc.edits); err != nil {
				t.Fatalf("Edit failed: %v", err)
			}
			if got := string(f); got != tc.want {
				t.Errorf("bad edit result:\n%s\nexpected:\n%s", got, tc.want)
			}
		})
	}
}

func TestEditInvalidRange(t *testing.T) {
	f := BytesFile("abc\n")
	err := Edit(&f, []protocol.TextEdit{{
		Range: protocol.Range{
			Start: protocol.Position{Line: 0, Character: 2},
			End:   protocol.Position{Line: 0, Character: 1},
		},
	}})
	if err == nil || !strings.Contains(err.Error(), "invalid edit range") {
		t.Errorf("Edit returned %v; want invalid range error", err)
	}
}
