package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/fhs/ra-lsp/internal/config"
	"github.com/pkg/errors"
)

const mainDoc = `The program ra-lsp is a command line client for rust-analyzer, the
Rust language server.

It starts rust-analyzer for the Cargo workspace in the root directory,
runs one sub-command and exits. Unless a server command is configured,
the rust-analyzer release is downloaded into the install directory the
first time it is needed.

Positions are given as FILE:LINE:COL, with one-based lines and columns.

	Usage: ra-lsp [flags] <sub-command> [args...]

List of sub-commands:

	install
		Download and install the configured rust-analyzer release.

	version
		Print the configured and installed rust-analyzer versions.

	syntax-tree FILE
		Print the syntax tree of FILE.

	view-item-tree FILE
		Print the item tree of FILE.

	expand-macro FILE:LINE:COL
		Print the recursive expansion of the macro call at the position.

	hover FILE:LINE:COL[,LINE:COL]
		Print hover information. If a second position is given, the
		range between the two is hovered, which shows the type of an
		expression.

	refs FILE:LINE:COL
		List locations where the identifier at the position is used.

	memory-usage
		Print the server's per-query memory usage. This clears the
		server's database.

	reload
		Reload the Cargo workspace.

	runnables FILE:LINE:COL
		List tests, binaries and benchmarks that can be run at the
		position, with their cargo command lines.

	run FILE:LINE:COL LABEL-PREFIX
		Run the runnables at the position whose label starts with
		LABEL-PREFIX.

	open-cargo-toml FILE
		Print the location of the Cargo.toml of the crate containing
		FILE.

	docs FILE:LINE:COL
		Print links to the documentation of the symbol at the position.

	diagnostics FILE
		Print the diagnostics the server reports for FILE.

	join-lines FILE:LINE:COL
		Join the line at the position with the next one, rewriting
		FILE in place.

	watch
		Reload the workspace whenever a Cargo.toml or Cargo.lock
		file changes, until interrupted.
`

func usage() {
	os.Stderr.Write([]byte(mainDoc))
	fmt.Fprintf(os.Stderr, "\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	log.SetFlags(0)
	log.SetPrefix("ra-lsp: ")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	plumb := flag.Bool("plumb", false, "send locations to the plumber")
	if err := cfg.ParseFlags(flag.CommandLine, os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}
	if cfg.ShowConfig {
		config.Write(os.Stdout, cfg)
		return
	}
	if flag.NArg() < 1 {
		usage()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{
		cfg:    cfg,
		stdout: os.Stdout,
		plumb:  *plumb,
	}
	err = a.run(ctx, flag.Args())
	if errors.Is(err, errUsage) {
		log.Printf("%v", err)
		usage()
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}
