// Package rustanalyzer implements the rust-analyzer extensions to the
// Language Server Protocol on top of a session: typed extension
// requests, runnables, client-side commands and a Cargo manifest
// watcher.
package rustanalyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fhs/go-lsp-internal/lsp/protocol"
	"github.com/fhs/ra-lsp/internal/lsp/session"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ErrUnsupported is returned for an extension the server did not
// advertise during initialization.
var ErrUnsupported = errors.New("not supported by the language server")

// Client is the part of a session used by the extension requests.
// *session.Session implements it.
type Client interface {
	Call(ctx context.Context, method string, params, result interface{}) error
	Capabilities() *session.Capabilities
}

// require checks that the experimental capability name is enabled.
func require(c Client, name string) error {
	if !c.Capabilities().Enabled("experimental." + name) {
		return errors.Wrapf(ErrUnsupported, "experimental/%v", name)
	}
	return nil
}

// PositionParams returns the parameters identifying pos within uri.
func PositionParams(uri protocol.DocumentURI, pos protocol.Position) *protocol.TextDocumentPositionParams {
	return &protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{
			URI: uri,
		},
		Position: pos,
	}
}

// ExpandedMacro is the result of rust-analyzer/expandMacro.
type ExpandedMacro struct {
	Name      string `json:"name"`
	Expansion string `json:"expansion"`
}

// String renders the expansion as a Rust source buffer.
func (m *ExpandedMacro) String() string {
	header := fmt.Sprintf("Recursive expansion of %v! macro", m.Name)
	return fmt.Sprintf("// %v\n// %v\n\n%v", header, strings.Repeat("=", len(header)+1), m.Expansion)
}

// ExpandMacro expands the macro call at pos. It returns nil if there is
// no macro call there.
func ExpandMacro(ctx context.Context, c Client, pos *protocol.TextDocumentPositionParams) (*ExpandedMacro, error) {
	var m *ExpandedMacro
	if err := c.Call(ctx, "rust-analyzer/expandMacro", pos, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SyntaxTreeParams selects the document, and optionally the range
// within it, whose syntax tree is dumped.
type SyntaxTreeParams struct {
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	Range        *protocol.Range                 `json:"range,omitempty"`
}

// SyntaxTree returns a textual dump of the syntax tree.
func SyntaxTree(ctx context.Context, c Client, params *SyntaxTreeParams) (string, error) {
	var s *string
	if err := c.Call(ctx, "rust-analyzer/syntaxTree", params, &s); err != nil {
		return "", err
	}
	if s == nil {
		return "", nil
	}
	return *s, nil
}

// ViewItemTree returns the item tree of a document.
func ViewItemTree(ctx context.Context, c Client, uri protocol.DocumentURI) (string, error) {
	params := struct {
		TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	}{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}
	var s *string
	if err := c.Call(ctx, "rust-analyzer/viewItemTree", &params, &s); err != nil {
		return "", err
	}
	if s == nil {
		return "", nil
	}
	return *s, nil
}

// MemoryUsage returns the server's per-query memory report. The server
// clears its database while producing it.
func MemoryUsage(ctx context.Context, c Client) (string, error) {
	var s string
	if err := c.Call(ctx, "rust-analyzer/memoryUsage", nil, &s); err != nil {
		return "", err
	}
	return s, nil
}

// ReloadWorkspace asks the server to reload Cargo metadata.
func ReloadWorkspace(ctx context.Context, c Client) error {
	return c.Call(ctx, "rust-analyzer/reloadWorkspace", nil, nil)
}

// Runnables lists what can be run at pos. A nil position lists the
// runnables of the whole document.
func Runnables(ctx context.Context, c Client, uri protocol.DocumentURI, pos *protocol.Position) ([]Runnable, error) {
	if err := require(c, "runnables"); err != nil {
		return nil, err
	}
	params := struct {
		TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
		Position     *protocol.Position              `json:"position,omitempty"`
	}{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}
	var rs []Runnable
	if err := c.Call(ctx, "experimental/runnables", &params, &rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// OpenCargoToml returns the location of the manifest of the crate
// containing uri, or nil.
func OpenCargoToml(ctx context.Context, c Client, uri protocol.DocumentURI) (*protocol.Location, error) {
	if err := require(c, "openCargoToml"); err != nil {
		return nil, err
	}
	params := struct {
		TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	}{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}
	var loc *protocol.Location
	if err := c.Call(ctx, "experimental/openCargoToml", &params, &loc); err != nil {
		return nil, err
	}
	return loc, nil
}

// ExternalDocLinks are the documentation links for a symbol. Older
// servers only send Web.
type ExternalDocLinks struct {
	Web   string
	Local string
}

// ExternalDocs returns links to the documentation of the symbol at pos,
// or nil if there are none.
func ExternalDocs(ctx context.Context, c Client, pos *protocol.TextDocumentPositionParams) (*ExternalDocLinks, error) {
	if err := require(c, "externalDocs"); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.Call(ctx, "experimental/externalDocs", pos, &raw); err != nil {
		return nil, err
	}
	return parseExternalDocs(raw)
}

func parseExternalDocs(raw json.RawMessage) (*ExternalDocLinks, error) {
	r := gjson.ParseBytes(raw)
	switch {
	case r.Type == gjson.Null:
		return nil, nil
	case r.Type == gjson.String:
		return &ExternalDocLinks{Web: r.String()}, nil
	case r.IsObject():
		links := &ExternalDocLinks{
			Web:   r.Get("web").String(),
			Local: r.Get("local").String(),
		}
		if links.Web == "" && links.Local == "" {
			return nil, nil
		}
		return links, nil
	}
	return nil, errors.Errorf("unexpected externalDocs result %.100s", raw)
}

// JoinLines returns the edits joining the lines in each of ranges.
func JoinLines(ctx context.Context, c Client, uri protocol.DocumentURI, ranges []protocol.Range) ([]protocol.TextEdit, error) {
	if err := require(c, "joinLines"); err != nil {
		return nil, err
	}
	params := struct {
		TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
		Ranges       []protocol.Range                `json:"ranges"`
	}{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Ranges:       ranges,
	}
	var edits []protocol.TextEdit
	if err := c.Call(ctx, "experimental/joinLines", &params, &edits); err != nil {
		return nil, err
	}
	return edits, nil
}
