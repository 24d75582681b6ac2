package session

import (
	"github.com/fhs/go-lsp-internal/lsp/protocol"
	"github.com/pkg/errors"
)

// DidOpen starts tracking uri at version 1 and notifies the server.
func (s *Session) DidOpen(uri protocol.DocumentURI, languageID, text string) error {
	if st := s.State(); st != Ready {
		return errors.Wrapf(ErrNotReady, "didOpen in state %v", st)
	}
	s.docMu.Lock()
	defer s.docMu.Unlock()

	if _, ok := s.docs[uri]; ok {
		return errors.Errorf("document %v is already open", uri)
	}
	err := s.SendNotification("textDocument/didOpen", &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: languageID,
			Version:    1,
			Text:       text,
		},
	})
	if err != nil {
		return err
	}
	s.docs[uri] = 1
	return nil
}

// DidChange records a local edit: the document's version is incremented
// and its full new text sent to the server. It returns the new version.
func (s *Session) DidChange(uri protocol.DocumentURI, text string) (int32, error) {
	s.docMu.Lock()
	defer s.docMu.Unlock()

	v, ok := s.docs[uri]
	if !ok {
		return 0, errors.Wrapf(ErrDocumentNotOpen, "%v", uri)
	}
	v++
	s.docs[uri] = v
	err := s.SendNotification("textDocument/didChange", &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			Version: v,
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{
				URI: uri,
			},
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{
			{
				Text: text,
			},
		},
	})
	return v, err
}

// DidClose stops tracking uri and notifies the server.
func (s *Session) DidClose(uri protocol.DocumentURI) error {
	s.docMu.Lock()
	defer s.docMu.Unlock()

	if _, ok := s.docs[uri]; !ok {
		return errors.Wrapf(ErrDocumentNotOpen, "%v", uri)
	}
	delete(s.docs, uri)
	return s.SendNotification("textDocument/didClose", &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{
			URI: uri,
		},
	})
}

// Version returns the current version of an open document.
func (s *Session) Version(uri protocol.DocumentURI) (int32, bool) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	v, ok := s.docs[uri]
	return v, ok
}

// ApplyIfCurrent calls apply with edits computed against version of
// uri, but only if that is still the document's current version.
// Otherwise the edits are dropped and the error matches ErrStaleEdit.
// No local edit can be recorded while apply runs. Applying does not
// change the version.
func (s *Session) ApplyIfCurrent(uri protocol.DocumentURI, version int32, edits []protocol.TextEdit, apply func([]protocol.TextEdit) error) error {
	s.docMu.Lock()
	defer s.docMu.Unlock()

	cur, ok := s.docs[uri]
	if !ok {
		return errors.Wrapf(ErrDocumentNotOpen, "%v", uri)
	}
	if version != cur {
		return errors.Wrapf(ErrStaleEdit, "%v: edits for version %d, document is at %d", uri, version, cur)
	}
	return apply(edits)
}
