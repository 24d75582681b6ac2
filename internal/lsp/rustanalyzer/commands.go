package rustanalyzer

import (
	"context"
	"encoding/json"

	"github.com/fhs/go-lsp-internal/lsp/protocol"
	"github.com/pkg/errors"
)

// Commands the server expects the client to execute, typically found in
// code lenses.
const (
	RunSingleCommand             = "rust-analyzer.runSingle"
	RunDebugCommand              = "rust-analyzer.runDebug"
	ShowReferencesCommand        = "rust-analyzer.showReferences"
	TriggerParameterHintsCommand = "rust-analyzer.triggerParameterHints"
)

// LocationSink presents a list of locations to the user.
type LocationSink interface {
	ShowLocations(locs []protocol.Location) error
}

// Commands executes rust-analyzer client-side commands.
type Commands struct {
	Runner    Runner       // default &ExecRunner{}
	Locations LocationSink // required by showReferences
}

// Execute runs the command name with the given arguments. It reports
// whether the command is one handled on the client side; unhandled
// commands should be sent to the server with workspace/executeCommand.
func (c *Commands) Execute(ctx context.Context, name string, args []json.RawMessage) (bool, error) {
	switch name {
	case RunSingleCommand, RunDebugCommand:
		return true, c.run(ctx, args)
	case ShowReferencesCommand:
		return true, c.showReferences(args)
	case TriggerParameterHintsCommand:
		return true, nil
	}
	return false, nil
}

func (c *Commands) run(ctx context.Context, args []json.RawMessage) error {
	runner := c.Runner
	if runner == nil {
		runner = &ExecRunner{}
	}
	for i, arg := range args {
		var r Runnable
		if err := json.Unmarshal(arg, &r); err != nil {
			return errors.Wrapf(err, "bad runnable in argument %d", i)
		}
		if !r.IsCargo() {
			continue
		}
		if err := runner.Run(ctx, &r); err != nil {
			return err
		}
	}
	return nil
}

// showReferences takes the arguments uri, position and locations.
func (c *Commands) showReferences(args []json.RawMessage) error {
	if len(args) < 3 {
		return errors.Errorf("%v: expected 3 arguments, got %d", ShowReferencesCommand, len(args))
	}
	var locs []protocol.Location
	if err := json.Unmarshal(args[2], &locs); err != nil {
		return errors.Wrapf(err, "%v: bad locations", ShowReferencesCommand)
	}
	if c.Locations == nil {
		return errors.Errorf("%v: no location sink", ShowReferencesCommand)
	}
	return c.Locations.ShowLocations(locs)
}
