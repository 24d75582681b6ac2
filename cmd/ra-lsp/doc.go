/*
The program ra-lsp is a command line client for rust-analyzer, the
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

Configuration is read from ra-lsp/config.toml in the user configuration
directory (run ra-lsp -showconfig to see its location and current
values). The environment variables RA_LSP_SERVER, RA_LSP_ROOT,
RA_LSP_TRACE and RA_LSP_INSTALL_DIR override the file.
*/
package main
