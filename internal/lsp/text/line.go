package text

import (
	"io"
	"unicode/utf16"
)

// NLOffsets maps between rune offsets within a file and LSP positions.
// LSP columns count UTF-16 code units, so a rune outside the Basic
// Multilingual Plane takes two columns.
type NLOffsets struct {
	text []rune
	nl   []int // rune offset of the start of each line
}

func GetNewlineOffsets(r io.Reader) (*NLOffsets, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := []rune(string(b))
	nl := []int{0}
	for i, c := range text {
		if c == '\n' {
			nl = append(nl, i+1)
		}
	}
	return &NLOffsets{text: text, nl: nl}, nil
}

func (off *NLOffsets) eof() int { return len(off.text) }

// LineToOffset returns the rune offset within the file given the line
// number and UTF-16 column within the line. Positions past the end of a
// line clamp to its newline, and lines past the end of the file clamp
// to the end of the file.
func (off *NLOffsets) LineToOffset(line, col int) int {
	if line >= len(off.nl) {
		// beyond EOF, so just return the highest offset
		return off.eof()
	}
	o := off.nl[line]
	for n := 0; n < col && o < off.eof() && off.text[o] != '\n'; o++ {
		n += utf16.RuneLen(off.text[o])
	}
	return o
}

// OffsetToLine returns the line number and UTF-16 column within the
// line given rune offset within the file.
func (off *NLOffsets) OffsetToLine(offset int) (line, col int) {
	if offset > off.eof() {
		offset = off.eof()
	}
	line = len(off.nl) - 1
	for i, o := range off.nl {
		if o > offset {
			line = i - 1
			break
		}
	}
	for _, c := range off.text[off.nl[line]:offset] {
		col += utf16.RuneLen(c)
	}
	return line, col
}
