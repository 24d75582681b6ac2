package rustanalyzer

import (
	"os"
	"path/filepath"

	"github.com/fhs/go-lsp-internal/lsp/protocol"
	"github.com/fhs/ra-lsp/internal/lsp/text"
)

// ClientInfo identifies the client to the server.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams are the parameters of the initialize request.
type InitializeParams struct {
	ProcessID             int                        `json:"processId"`
	ClientInfo            *ClientInfo                `json:"clientInfo,omitempty"`
	RootURI               protocol.DocumentURI       `json:"rootUri"`
	Capabilities          map[string]interface{}     `json:"capabilities"`
	InitializationOptions interface{}                `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []protocol.WorkspaceFolder `json:"workspaceFolders"`
}

// NewInitializeParams returns initialize parameters for the workspace
// at root. The options are rust-analyzer settings, passed as is.
func NewInitializeParams(root string, options interface{}) (*InitializeParams, error) {
	d, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	uri := text.ToURI(d)
	return &InitializeParams{
		ProcessID: os.Getpid(),
		ClientInfo: &ClientInfo{
			Name: "ra-lsp",
		},
		RootURI:               uri,
		Capabilities:          clientCapabilities(),
		InitializationOptions: options,
		WorkspaceFolders: []protocol.WorkspaceFolder{
			{
				URI:  string(uri),
				Name: filepath.Base(d),
			},
		},
	}, nil
}

type object = map[string]interface{}

func clientCapabilities() object {
	return object{
		"workspace": object{
			"workspaceFolders": true,
			"configuration":    true,
			"executeCommand":   object{},
		},
		"textDocument": object{
			"synchronization": object{
				"didSave": true,
			},
			"hover": object{
				"contentFormat": []string{"markdown", "plaintext"},
			},
			"publishDiagnostics": object{},
		},
		"window": object{
			"workDoneProgress": true,
		},
		"experimental": object{
			"hoverRange": true,
			"localDocs":  true,
			"commands": object{
				"commands": []string{
					RunSingleCommand,
					RunDebugCommand,
					ShowReferencesCommand,
					TriggerParameterHintsCommand,
				},
			},
		},
	}
}
