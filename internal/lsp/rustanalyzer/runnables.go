package rustanalyzer

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/fhs/go-lsp-internal/lsp/protocol"
	"github.com/pkg/errors"
)

// Runnable is something the server knows how to run, such as a test,
// a binary or a benchmark.
type Runnable struct {
	Label    string                 `json:"label"`
	Kind     string                 `json:"kind"`
	Location *protocol.LocationLink `json:"location,omitempty"`
	Args     RunnableArgs           `json:"args"`
}

// RunnableArgs are the arguments of a cargo runnable.
type RunnableArgs struct {
	WorkspaceRoot  string   `json:"workspaceRoot,omitempty"`
	Cwd            string   `json:"cwd,omitempty"`
	OverrideCargo  string   `json:"overrideCargo,omitempty"`
	CargoArgs      []string `json:"cargoArgs"`
	CargoExtraArgs []string `json:"cargoExtraArgs,omitempty"`
	ExecutableArgs []string `json:"executableArgs,omitempty"`
}

// IsCargo reports whether r can be run with CargoCommand.
func (r *Runnable) IsCargo() bool {
	return r.Kind == "cargo"
}

// CargoCommand returns the command line running r.
func CargoCommand(r *Runnable) []string {
	cargo := r.Args.OverrideCargo
	if cargo == "" {
		cargo = "cargo"
	}
	argv := []string{cargo}
	argv = append(argv, r.Args.CargoArgs...)
	argv = append(argv, r.Args.CargoExtraArgs...)
	if len(r.Args.ExecutableArgs) > 0 {
		argv = append(argv, "--")
		argv = append(argv, r.Args.ExecutableArgs...)
	}
	return argv
}

// Dir returns the directory r runs in.
func (r *Runnable) Dir() string {
	if r.Args.Cwd != "" {
		return r.Args.Cwd
	}
	return r.Args.WorkspaceRoot
}

// Select returns the cargo runnables whose label starts with prefix.
func Select(runnables []Runnable, prefix string) []Runnable {
	var rs []Runnable
	for _, r := range runnables {
		if r.IsCargo() && strings.HasPrefix(r.Label, prefix) {
			rs = append(rs, r)
		}
	}
	return rs
}

// Runner runs a cargo runnable.
type Runner interface {
	Run(ctx context.Context, r *Runnable) error
}

// ExecRunner runs runnables as child processes.
type ExecRunner struct {
	Stdout, Stderr io.Writer // default os.Stdout and os.Stderr
}

var _ = Runner(&ExecRunner{})

func (er *ExecRunner) Run(ctx context.Context, r *Runnable) error {
	if !r.IsCargo() {
		return errors.Errorf("cannot run %q: unsupported runnable kind %q", r.Label, r.Kind)
	}
	argv := CargoCommand(r)
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return errors.Wrapf(err, "cannot run executable %q; ensure that it is in PATH", argv[0])
	}
	cmd := exec.CommandContext(ctx, path, argv[1:]...)
	cmd.Dir = r.Dir()
	cmd.Stdout = er.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = er.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "%v", r.Label)
	}
	return nil
}
