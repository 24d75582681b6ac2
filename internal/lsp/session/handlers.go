package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fhs/go-lsp-internal/lsp/protocol"
	"github.com/sourcegraph/jsonrpc2"
)

// UnmarshalParams decodes the params of a server-initiated message. The
// error, if any, is suitable as a handler's reply.
func UnmarshalParams(req *jsonrpc2.Request, v interface{}) error {
	if req.Params == nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: fmt.Sprintf("%v: missing params", req.Method)}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: fmt.Sprintf("%v: %v", req.Method, err)}
	}
	return nil
}

func (s *Session) handleBuiltins() {
	s.Handle("window/logMessage", s.logMessage)
	s.Handle("window/showMessage", s.showMessage)
	s.Handle("workspace/configuration", s.configuration)
	s.Handle("client/registerCapability", nullHandler)
	s.Handle("client/unregisterCapability", nullHandler)
	s.Handle("window/workDoneProgress/create", nullHandler)
	s.Handle("$/progress", nullHandler)
	s.Handle("textDocument/publishDiagnostics", nullHandler)
}

func nullHandler(context.Context, *jsonrpc2.Request) (interface{}, error) {
	return nil, nil
}

func (s *Session) logMessage(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	var params protocol.LogMessageParams
	if err := UnmarshalParams(req, &params); err != nil {
		return nil, err
	}
	if params.Type == protocol.Error || params.Type == protocol.Warning || s.opts.Verbose {
		s.printf("log: LSP %v: %v", params.Type, params.Message)
	}
	return nil, nil
}

func (s *Session) showMessage(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	var params protocol.ShowMessageParams
	if err := UnmarshalParams(req, &params); err != nil {
		return nil, err
	}
	s.printf("LSP %v: %v", params.Type, params.Message)
	return nil, nil
}

// configuration answers every requested item with Options.Settings.
func (s *Session) configuration(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	var params struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := UnmarshalParams(req, &params); err != nil {
		return nil, err
	}
	result := make([]interface{}, len(params.Items))
	for i := range result {
		result[i] = s.opts.Settings
	}
	return result, nil
}
