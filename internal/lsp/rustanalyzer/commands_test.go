package rustanalyzer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fhs/go-lsp-internal/lsp/protocol"
	"github.com/google/go-cmp/cmp"
)

type recordRunner struct {
	labels []string
}

func (rr *recordRunner) Run(ctx context.Context, r *Runnable) error {
	rr.labels = append(rr.labels, r.Label)
	return nil
}

type recordSink struct {
	locs []protocol.Location
}

func (rs *recordSink) ShowLocations(locs []protocol.Location) error {
	rs.locs = locs
	return nil
}

func rawArgs(t *testing.T, args ...string) []json.RawMessage {
	t.Helper()
	var raw []json.RawMessage
	for _, a := range args {
		if !json.Valid([]byte(a)) {
			t.Fatalf("invalid JSON argument %v", a)
		}
		raw = append(raw, json.RawMessage(a))
	}
	return raw
}

func TestCommandsRun(t *testing.T) {
	for _, name := range []string{RunSingleCommand, RunDebugCommand} {
		runner := &recordRunner{}
		cmds := &Commands{Runner: runner}
		args := rawArgs(t,
			`{"label": "run hello", "kind": "cargo", "args": {"cargoArgs": ["run"]}}`,
			`{"label": "debug hello", "kind": "lldb", "args": {"cargoArgs": []}}`,
		)
		handled, err := cmds.Execute(context.Background(), name, args)
		if err != nil {
			t.Fatalf("%v failed: %v", name, err)
		}
		if !handled {
			t.Errorf("%v not handled", name)
		}
		if diff := cmp.Diff([]string{"run hello"}, runner.labels); diff != "" {
			t.Errorf("%v ran wrong runnables (-want +got):\n%s", name, diff)
		}
	}
}

func TestCommandsShowReferences(t *testing.T) {
	sink := &recordSink{}
	cmds := &Commands{Locations: sink}
	args := rawArgs(t,
		`"file:///src/main.rs"`,
		`{"line": 1, "character": 3}`,
		`[{"uri": "file:///src/lib.rs", "range": {"start": {"line": 7, "character": 4}, "end": {"line": 7, "character": 9}}}]`,
	)
	handled, err := cmds.Execute(context.Background(), ShowReferencesCommand, args)
	if err != nil {
		t.Fatalf("showReferences failed: %v", err)
	}
	if !handled {
		t.Errorf("showReferences not handled")
	}
	want := []protocol.Location{
		{
			URI: "file:///src/lib.rs",
			Range: protocol.Range{
				Start: protocol.Position{Line: 7, Character: 4},
				End:   protocol.Position{Line: 7, Character: 9},
			},
		},
	}
	if diff := cmp.Diff(want, sink.locs); diff != "" {
		t.Errorf("locations mismatch (-want +got):\n%s", diff)
	}

	if _, err := cmds.Execute(context.Background(), ShowReferencesCommand, args[:2]); err == nil {
		t.Errorf("showReferences accepted two arguments")
	}
}

func TestCommandsOther(t *testing.T) {
	cmds := &Commands{}
	handled, err := cmds.Execute(context.Background(), TriggerParameterHintsCommand, nil)
	if !handled || err != nil {
		t.Errorf("triggerParameterHints: handled=%v err=%v", handled, err)
	}
	handled, err = cmds.Execute(context.Background(), "rust-analyzer.applySourceChange", nil)
	if handled || err != nil {
		t.Errorf("unknown command: handled=%v err=%v", handled, err)
	}
}
