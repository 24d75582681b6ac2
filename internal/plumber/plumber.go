// Package plumber presents locations reported by the language server,
// either as text links or by sending them to the plumber.
package plumber

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fhs/9fans-go/plumb"
	"github.com/fhs/go-lsp-internal/lsp/protocol"
	"github.com/fhs/ra-lsp/internal/lsp/text"
	"github.com/pkg/errors"
)

// LocationLink formats l as file:line.col,line.col with one-based
// lines and columns. The file name is made relative to basedir if that
// makes it shorter.
func LocationLink(l *protocol.Location, basedir string) string {
	p := text.ToPath(l.URI)
	if basedir != "" {
		rel, err := filepath.Rel(basedir, p)
		if err == nil && len(rel) < len(p) {
			p = rel
		}
	}
	return fmt.Sprintf("%s:%v.%v,%v.%v", p,
		l.Range.Start.Line+1, l.Range.Start.Character+1,
		l.Range.End.Line+1, l.Range.End.Character+1)
}

// PlumbLocations sends the locations to the plumber.
func PlumbLocations(locations []protocol.Location) error {
	p, err := openSend()
	if err != nil {
		return errors.Wrap(err, "failed to open plumber")
	}
	defer p.Close()
	return sendLocations(p, locations)
}

func sendLocations(w io.Writer, locations []protocol.Location) error {
	for i := range locations {
		if err := Message(&locations[i]).Send(w); err != nil {
			return errors.Wrap(err, "failed to plumb location")
		}
	}
	return nil
}

// Message returns the plumb message opening loc in an editor.
func Message(loc *protocol.Location) *plumb.Message {
	// LSP uses zero-based offsets.
	// Place the cursor *before* the location range.
	pos := loc.Range.Start
	attr := &plumb.Attribute{
		Name:  "addr",
		Value: fmt.Sprintf("%v-#0+#%v", pos.Line+1, pos.Character),
	}
	return &plumb.Message{
		Src:  "ra-lsp",
		Dst:  "edit",
		Dir:  "/",
		Type: "text",
		Attr: attr,
		Data: []byte(text.ToPath(loc.URI)),
	}
}

// Sink prints locations, one link per line, and optionally plumbs them.
type Sink struct {
	W       io.Writer
	BaseDir string
	Plumb   bool
}

// ShowLocations implements rustanalyzer.LocationSink.
func (s *Sink) ShowLocations(locs []protocol.Location) error {
	for i := range locs {
		if _, err := fmt.Fprintln(s.W, LocationLink(&locs[i], s.BaseDir)); err != nil {
			return err
		}
	}
	if s.Plumb && len(locs) > 0 {
		return PlumbLocations(locs)
	}
	return nil
}
