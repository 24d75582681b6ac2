package rustanalyzer

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fhs/go-lsp-internal/lsp/protocol"
	"github.com/fhs/ra-lsp/internal/lsp/session"
)

// HoverParams are textDocument/hover parameters. With the hoverRange
// extension, Position holds either a protocol.Position or a
// protocol.Range.
type HoverParams struct {
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	Position     interface{}                     `json:"position"`
}

// NewHoverParams builds hover parameters for pos. If the server supports
// range hover and the selection contains pos, the selection is hovered
// instead.
func NewHoverParams(caps *session.Capabilities, uri protocol.DocumentURI, pos protocol.Position, sel *protocol.Range) *HoverParams {
	p := &HoverParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}
	if sel != nil && caps.Enabled("experimental.hoverRange") && rangeContains(sel, pos) {
		p.Position = *sel
	}
	return p
}

func positionLess(a, b protocol.Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Character < b.Character
}

// rangeContains reports whether pos is within r, end inclusive.
func rangeContains(r *protocol.Range, pos protocol.Position) bool {
	return !positionLess(pos, r.Start) && !positionLess(r.End, pos)
}

// Hover is the result of a hover request.
type Hover struct {
	Contents HoverContents   `json:"contents"`
	Range    *protocol.Range `json:"range,omitempty"`
}

// HoverContents is MarkupContent that also accepts the deprecated
// MarkedString forms some servers still send.
type HoverContents protocol.MarkupContent

func (m *HoverContents) UnmarshalJSON(data []byte) error {
	d := strings.TrimSpace(string(data))
	if len(d) == 0 {
		return nil
	}
	switch d[0] {
	case '"': // string
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		m.Kind = protocol.PlainText
		m.Value = s
		return nil

	case '[': // []MarkedString
		var list []HoverContents
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		var b strings.Builder
		for i, ms := range list {
			if i > 0 {
				b.WriteRune('\n')
			}
			b.WriteString(ms.Value)
		}
		m.Kind = protocol.PlainText
		m.Value = b.String()
		return nil
	}

	// MarkedString {language, value} has no kind.
	m.Kind = protocol.PlainText
	return json.Unmarshal(data, (*protocol.MarkupContent)(m))
}

// HoverAt requests hover information. It returns nil if there is none.
func HoverAt(ctx context.Context, c Client, params *HoverParams) (*Hover, error) {
	var h *Hover
	if err := c.Call(ctx, "textDocument/hover", params, &h); err != nil {
		return nil, err
	}
	return h, nil
}
