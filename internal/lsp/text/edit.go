package text

import (
	"bytes"
	"io"
	"sort"

	"github.com/fhs/go-lsp-internal/lsp/protocol"
	"github.com/pkg/errors"
)

// File represents an open file in the text editor.
type File interface {
	// Reader returns a reader for the entire file text.
	Reader() (io.Reader, error)

	// WriteAt replaces the text in rune range [q0, q1) with bytes b.
	WriteAt(q0, q1 int, b []byte) (int, error)
}

// Edit applies edits to file f. The edits must not overlap.
func Edit(f File, edits []protocol.TextEdit) error {
	if len(edits) == 0 {
		return nil
	}
	reader, err := f.Reader()
	if err != nil {
		return err
	}
	off, err := GetNewlineOffsets(reader)
	if err != nil {
		return errors.Wrapf(err, "failed to compute file offsets")
	}

	// Apply from the end of the file so earlier offsets stay valid.
	sorted := append([]protocol.TextEdit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi := sorted[i].Range.Start
		pj := sorted[j].Range.Start
		if pi.Line == pj.Line {
			return pi.Character > pj.Character
		}
		return pi.Line > pj.Line
	})
	for _, e := range sorted {
		q0 := off.LineToOffset(int(e.Range.Start.Line), int(e.Range.Start.Character))
		q1 := off.LineToOffset(int(e.Range.End.Line), int(e.Range.End.Character))
		if q1 < q0 {
			return errors.Errorf("invalid edit range %v-%v", e.Range.Start, e.Range.End)
		}
		if _, err := f.WriteAt(q0, q1, []byte(e.NewText)); err != nil {
			return errors.Wrapf(err, "failed to write edit at #%d,#%d", q0, q1)
		}
	}
	return nil
}

var _ = File((*BytesFile)(nil))

// BytesFile is a File held in memory.
type BytesFile []byte

func (f *BytesFile) Reader() (io.Reader, error) {
	return bytes.NewReader(*f), nil
}

func (f *BytesFile) WriteAt(q0, q1 int, b []byte) (int, error) {
	r := []rune(string(*f))
	if q0 < 0 || q1 > len(r) || q0 > q1 {
		return 0, errors.Errorf("range #%d,#%d out of bounds", q0, q1)
	}

	rr := make([]rune, 0, len(r)+len(b))
	rr = append(rr, r[:q0]...)
	rr = append(rr, []rune(string(b))...)
	rr = append(rr, r[q1:]...)
	*f = []byte(string(rr))
	return len(b), nil
}
