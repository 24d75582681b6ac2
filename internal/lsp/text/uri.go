// Package text converts between file names and document URIs, between
// LSP positions and character offsets, and applies text edits.
package text

import (
	"net/url"
	"path/filepath"

	"github.com/fhs/go-lsp-internal/lsp/protocol"
)

// ToURI converts filename to URI.
func ToURI(filename string) protocol.DocumentURI {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(filename),
	}
	return protocol.DocumentURI(u.String())
}

// ToPath converts URI to filename. A URI without a scheme is returned
// unchanged.
func ToPath(uri protocol.DocumentURI) string {
	u, err := url.Parse(string(uri))
	if err != nil || (u.Scheme != "" && u.Scheme != "file") {
		return string(uri)
	}
	return filepath.FromSlash(u.Path)
}
