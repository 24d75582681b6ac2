package rustanalyzer

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCargoCommand(t *testing.T) {
	for _, tc := range []struct {
		name string
		args RunnableArgs
		want []string
	}{
		{
			"plain",
			RunnableArgs{CargoArgs: []string{"run", "--bin", "hello"}},
			[]string{"cargo", "run", "--bin", "hello"},
		},
		{
			"override",
			RunnableArgs{
				OverrideCargo: "/opt/cargo-wrapper",
				CargoArgs:     []string{"test"},
			},
			[]string{"/opt/cargo-wrapper", "test"},
		},
		{
			"extra and executable args",
			RunnableArgs{
				CargoArgs:      []string{"test", "--package", "hello"},
				CargoExtraArgs: []string{"--release"},
				ExecutableArgs: []string{"tests::it_works", "--exact"},
			},
			[]string{"cargo", "test", "--package", "hello", "--release", "--", "tests::it_works", "--exact"},
		},
		{
			"empty executable args",
			RunnableArgs{
				CargoArgs:      []string{"bench"},
				ExecutableArgs: []string{},
			},
			[]string{"cargo", "bench"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := CargoCommand(&Runnable{Kind: "cargo", Args: tc.args})
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("command mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	rs := []Runnable{
		{Label: "run hello", Kind: "cargo"},
		{Label: "test tests::a", Kind: "cargo"},
		{Label: "test tests::b", Kind: "cargo"},
		{Label: "test tests::c", Kind: "shell"},
	}
	var got []string
	for _, r := range Select(rs, "test ") {
		got = append(got, r.Label)
	}
	want := []string{"test tests::a", "test tests::b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}
	if got := Select(rs, "doctest"); len(got) != 0 {
		t.Errorf("selected %v for unmatched prefix", got)
	}
}

func TestRunnableDir(t *testing.T) {
	r := Runnable{Args: RunnableArgs{WorkspaceRoot: "/src/hello"}}
	if got := r.Dir(); got != "/src/hello" {
		t.Errorf("Dir is %q", got)
	}
	r.Args.Cwd = "/src/hello/crates/a"
	if got := r.Dir(); got != "/src/hello/crates/a" {
		t.Errorf("Dir is %q", got)
	}
}

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no sh in PATH")
	}
	var stdout bytes.Buffer
	er := &ExecRunner{Stdout: &stdout}
	r := &Runnable{
		Label: "echo",
		Kind:  "cargo",
		Args: RunnableArgs{
			WorkspaceRoot:  t.TempDir(),
			OverrideCargo:  sh,
			CargoArgs:      []string{"-c", "echo \"$@\"", "sh"},
			ExecutableArgs: []string{"a", "b"},
		},
	}
	if err := er.Run(context.Background(), r); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got, want := strings.TrimSpace(stdout.String()), "-- a b"; got != want {
		t.Errorf("output is %q; want %q", got, want)
	}
}

func TestExecRunnerNotFound(t *testing.T) {
	er := &ExecRunner{}
	r := &Runnable{
		Label: "missing",
		Kind:  "cargo",
		Args: RunnableArgs{
			OverrideCargo: "ra-lsp-no-such-cargo",
		},
	}
	err := er.Run(context.Background(), r)
	if err == nil || !strings.Contains(err.Error(), "ra-lsp-no-such-cargo") {
		t.Errorf("got error %v; want not found", err)
	}

	r.Kind = "shell"
	if err := er.Run(context.Background(), r); err == nil {
		t.Errorf("ran a non-cargo runnable")
	}
}
