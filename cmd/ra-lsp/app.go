package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fhs/go-lsp-internal/lsp/protocol"
	"github.com/fhs/ra-lsp/internal/cargo"
	"github.com/fhs/ra-lsp/internal/config"
	"github.com/fhs/ra-lsp/internal/lsp/rustanalyzer"
	"github.com/fhs/ra-lsp/internal/lsp/session"
	"github.com/fhs/ra-lsp/internal/lsp/text"
	"github.com/fhs/ra-lsp/internal/lsp/transport"
	"github.com/fhs/ra-lsp/internal/plumber"
	"github.com/pkg/errors"
	"github.com/sourcegraph/jsonrpc2"
	"golang.org/x/sync/errgroup"
)

var errUsage = errors.New("bad usage")

type app struct {
	cfg    *config.Config
	stdout io.Writer
	plumb  bool

	s      *session.Session
	stderr io.Closer
}

// commands that talk to a running server.
var commands = map[string]func(*app, context.Context, []string) error{
	"syntax-tree":     (*app).syntaxTree,
	"view-item-tree":  (*app).viewItemTree,
	"expand-macro":    (*app).expandMacro,
	"hover":           (*app).hover,
	"refs":            (*app).references,
	"memory-usage":    (*app).memoryUsage,
	"reload":          (*app).reload,
	"runnables":       (*app).runnables,
	"run":             (*app).runRunnables,
	"open-cargo-toml": (*app).openCargoToml,
	"docs":            (*app).docs,
	"diagnostics":     (*app).diagnostics,
	"join-lines":      (*app).joinLines,
	"watch":           (*app).watch,
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	name, args := args[0], args[1:]

	switch name {
	case "install":
		return a.install(ctx)
	case "version":
		return a.version()
	}
	cmd, ok := commands[name]
	if !ok {
		return errors.Wrapf(errUsage, "unknown command %q", name)
	}
	if err := a.start(ctx); err != nil {
		return err
	}
	defer a.close()
	return cmd(a, ctx, args)
}

func (a *app) install(ctx context.Context) error {
	in := a.cfg.Installer()
	if err := in.Install(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%v\n", in.BinaryPath())
	return nil
}

func (a *app) version() error {
	in := a.cfg.Installer()
	fmt.Fprintf(a.stdout, "configured: %v\n", a.cfg.ServerTag)
	v, err := in.InstalledVersion()
	if err != nil {
		fmt.Fprintf(a.stdout, "installed: none\n")
		return nil
	}
	fmt.Fprintf(a.stdout, "installed: %v (%v)\n", v, in.BinaryPath())
	return nil
}

// serverCommand returns the command line of the language server,
// installing rust-analyzer first if needed.
func (a *app) serverCommand(ctx context.Context) ([]string, error) {
	if len(a.cfg.Command) > 0 {
		return a.cfg.Command, nil
	}
	in := a.cfg.Installer()
	if in.NeedsInstall() {
		log.Printf("installing rust-analyzer %v into %v", a.cfg.ServerTag, a.cfg.InstallDirectory)
		if err := in.Install(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to install rust-analyzer")
		}
	}
	return []string{in.BinaryPath()}, nil
}

func (a *app) start(ctx context.Context) error {
	if a.cfg.RootDirectory == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		a.cfg.RootDirectory = cargo.RootDir(wd)
		if a.cfg.Verbose {
			log.Printf("workspace root is %v", a.cfg.RootDirectory)
		}
	}
	cmd, err := a.serverCommand(ctx)
	if err != nil {
		return err
	}
	var stderr io.Writer
	if a.cfg.StderrFile != "" {
		f, err := os.OpenFile(a.cfg.StderrFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, "could not open server stderr file")
		}
		a.stderr = f
		stderr = f
	} else if a.cfg.Verbose {
		stderr = os.Stderr
	}
	t, err := transport.Start(cmd[0], cmd[1:], &transport.Options{
		MaxFrameSize: a.cfg.MaxFrameSize,
		Stderr:       stderr,
		Dir:          a.cfg.RootDirectory,
	})
	if err != nil {
		a.closeStderr()
		return err
	}
	a.s = session.New(t, a.cfg.SessionOptions())

	params, err := rustanalyzer.NewInitializeParams(a.cfg.RootDirectory, a.cfg.InitializationOptions)
	if err != nil {
		a.close()
		return err
	}
	if _, err := a.s.Initialize(ctx, params); err != nil {
		a.close()
		return err
	}
	return nil
}

func (a *app) close() {
	if a.s != nil {
		if err := a.s.Shutdown(context.Background()); err != nil && a.cfg.Verbose {
			log.Printf("shutdown: %v", err)
		}
	}
	a.closeStderr()
}

func (a *app) closeStderr() {
	if a.stderr != nil {
		a.stderr.Close()
		a.stderr = nil
	}
}

// document is a source file opened in the session.
type document struct {
	uri  protocol.DocumentURI
	path string
	text []byte
	off  *text.NLOffsets
}

func (a *app) open(filename string) (*document, error) {
	p, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	off, err := text.GetNewlineOffsets(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	d := &document{
		uri:  text.ToURI(p),
		path: p,
		text: b,
		off:  off,
	}
	if err := a.s.DidOpen(d.uri, "rust", string(b)); err != nil {
		return nil, err
	}
	return d, nil
}

// position converts a one-based line and character column into an
// LSP position.
func (d *document) position(addr address) protocol.Position {
	o := d.off.LineToOffset(addr.line-1, 0) + addr.col - 1
	line, col := d.off.OffsetToLine(o)
	return protocol.Position{
		Line:      uint32(line),
		Character: uint32(col),
	}
}

type address struct {
	line, col int
}

func parseAddress(s string) (address, error) {
	f := strings.Split(s, ":")
	if len(f) != 2 {
		return address{}, errors.Wrapf(errUsage, "bad address %q", s)
	}
	line, err := strconv.Atoi(f[0])
	if err != nil || line < 1 {
		return address{}, errors.Wrapf(errUsage, "bad line number in %q", s)
	}
	col, err := strconv.Atoi(f[1])
	if err != nil || col < 1 {
		return address{}, errors.Wrapf(errUsage, "bad column number in %q", s)
	}
	return address{line, col}, nil
}

// parseLocation parses FILE:LINE:COL. The file name may itself
// contain colons.
func parseLocation(arg string) (string, address, error) {
	i := strings.LastIndex(arg, ":")
	if i < 0 {
		return "", address{}, errors.Wrapf(errUsage, "bad location %q", arg)
	}
	j := strings.LastIndex(arg[:i], ":")
	if j <= 0 {
		return "", address{}, errors.Wrapf(errUsage, "bad location %q", arg)
	}
	addr, err := parseAddress(arg[j+1:])
	if err != nil {
		return "", address{}, err
	}
	return arg[:j], addr, nil
}

// parseRange parses FILE:LINE:COL with an optional ,LINE:COL suffix.
func parseRange(arg string) (string, address, *address, error) {
	if i := strings.LastIndex(arg, ","); i >= 0 {
		if end, err := parseAddress(arg[i+1:]); err == nil {
			file, start, err := parseLocation(arg[:i])
			return file, start, &end, err
		}
	}
	file, start, err := parseLocation(arg)
	return file, start, nil, err
}

func (a *app) openAt(args []string) (*document, protocol.Position, error) {
	if len(args) < 1 {
		return nil, protocol.Position{}, errors.Wrap(errUsage, "missing FILE:LINE:COL argument")
	}
	file, addr, err := parseLocation(args[0])
	if err != nil {
		return nil, protocol.Position{}, err
	}
	d, err := a.open(file)
	if err != nil {
		return nil, protocol.Position{}, err
	}
	return d, d.position(addr), nil
}

func (a *app) openFile(args []string) (*document, error) {
	if len(args) < 1 {
		return nil, errors.Wrap(errUsage, "missing FILE argument")
	}
	return a.open(args[0])
}

func (a *app) syntaxTree(ctx context.Context, args []string) error {
	d, err := a.openFile(args)
	if err != nil {
		return err
	}
	tree, err := rustanalyzer.SyntaxTree(ctx, a.s, &rustanalyzer.SyntaxTreeParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: d.uri},
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%v\n", tree)
	return nil
}

func (a *app) viewItemTree(ctx context.Context, args []string) error {
	d, err := a.openFile(args)
	if err != nil {
		return err
	}
	tree, err := rustanalyzer.ViewItemTree(ctx, a.s, d.uri)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%v\n", tree)
	return nil
}

func (a *app) expandMacro(ctx context.Context, args []string) error {
	d, pos, err := a.openAt(args)
	if err != nil {
		return err
	}
	m, err := rustanalyzer.ExpandMacro(ctx, a.s, rustanalyzer.PositionParams(d.uri, pos))
	if err != nil {
		return err
	}
	if m == nil {
		fmt.Fprintf(os.Stderr, "No macro found at position.\n")
		return nil
	}
	fmt.Fprintf(a.stdout, "%v\n", m)
	return nil
}

func (a *app) hover(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.Wrap(errUsage, "missing FILE:LINE:COL argument")
	}
	file, start, end, err := parseRange(args[0])
	if err != nil {
		return err
	}
	d, err := a.open(file)
	if err != nil {
		return err
	}
	pos := d.position(start)
	var sel *protocol.Range
	if end != nil {
		sel = &protocol.Range{Start: pos, End: d.position(*end)}
	}
	h, err := rustanalyzer.HoverAt(ctx, a.s, rustanalyzer.NewHoverParams(a.s.Capabilities(), d.uri, pos, sel))
	if err != nil {
		return err
	}
	if h == nil {
		fmt.Fprintf(os.Stderr, "No hover help.\n")
		return nil
	}
	fmt.Fprintf(a.stdout, "%v\n", h.Contents.Value)
	return nil
}

func (a *app) sink() *plumber.Sink {
	return &plumber.Sink{
		W:       a.stdout,
		BaseDir: a.cfg.RootDirectory,
		Plumb:   a.plumb,
	}
}

func (a *app) references(ctx context.Context, args []string) error {
	d, pos, err := a.openAt(args)
	if err != nil {
		return err
	}
	var locs []protocol.Location
	err = a.s.Call(ctx, "textDocument/references", &protocol.ReferenceParams{
		TextDocumentPositionParams: *rustanalyzer.PositionParams(d.uri, pos),
		Context: protocol.ReferenceContext{
			IncludeDeclaration: true,
		},
	}, &locs)
	if err != nil {
		return err
	}
	if len(locs) == 0 {
		fmt.Fprintf(os.Stderr, "No references found.\n")
		return nil
	}
	sort.Slice(locs, func(i, j int) bool {
		x, y := locs[i], locs[j]
		if x.URI != y.URI {
			return x.URI < y.URI
		}
		if x.Range.Start.Line != y.Range.Start.Line {
			return x.Range.Start.Line < y.Range.Start.Line
		}
		return x.Range.Start.Character < y.Range.Start.Character
	})
	return a.sink().ShowLocations(locs)
}

func (a *app) memoryUsage(ctx context.Context, _ []string) error {
	usage, err := rustanalyzer.MemoryUsage(ctx, a.s)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Per-query memory usage:\n%v\n(note: database has been cleared)\n", usage)
	return nil
}

func (a *app) runnables(ctx context.Context, args []string) error {
	d, pos, err := a.openAt(args)
	if err != nil {
		return err
	}
	rr, err := rustanalyzer.Runnables(ctx, a.s, d.uri, &pos)
	if err != nil {
		return err
	}
	for i := range rr {
		r := &rr[i]
		if !r.IsCargo() {
			continue
		}
		fmt.Fprintf(a.stdout, "%v\t%v\n", r.Label, strings.Join(rustanalyzer.CargoCommand(r), " "))
	}
	return nil
}

func (a *app) runRunnables(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.Wrap(errUsage, "run needs FILE:LINE:COL and LABEL-PREFIX arguments")
	}
	d, pos, err := a.openAt(args)
	if err != nil {
		return err
	}
	rr, err := rustanalyzer.Runnables(ctx, a.s, d.uri, &pos)
	if err != nil {
		return err
	}
	rr = rustanalyzer.Select(rr, args[1])
	if len(rr) == 0 {
		return errors.Errorf("no runnable with label prefix %q", args[1])
	}
	raw := make([]json.RawMessage, 0, len(rr))
	for i := range rr {
		b, err := json.Marshal(&rr[i])
		if err != nil {
			return err
		}
		raw = append(raw, b)
	}
	c := &rustanalyzer.Commands{
		Runner:    &rustanalyzer.ExecRunner{Stdout: a.stdout},
		Locations: a.sink(),
	}
	_, err = c.Execute(ctx, rustanalyzer.RunSingleCommand, raw)
	return err
}

func (a *app) openCargoToml(ctx context.Context, args []string) error {
	d, err := a.openFile(args)
	if err != nil {
		return err
	}
	loc, err := rustanalyzer.OpenCargoToml(ctx, a.s, d.uri)
	if err != nil {
		return err
	}
	if loc == nil {
		return errors.Errorf("no Cargo.toml found for %v", d.path)
	}
	return a.sink().ShowLocations([]protocol.Location{*loc})
}

func (a *app) docs(ctx context.Context, args []string) error {
	d, pos, err := a.openAt(args)
	if err != nil {
		return err
	}
	links, err := rustanalyzer.ExternalDocs(ctx, a.s, rustanalyzer.PositionParams(d.uri, pos))
	if err != nil {
		return err
	}
	if links == nil {
		fmt.Fprintf(os.Stderr, "No documentation found.\n")
		return nil
	}
	if links.Web != "" {
		fmt.Fprintf(a.stdout, "%v\n", links.Web)
	}
	if links.Local != "" {
		fmt.Fprintf(a.stdout, "%v\n", links.Local)
	}
	return nil
}

// diagnosticsSettle is how long the server must stay quiet about a
// file before its diagnostics are considered complete.
var diagnosticsSettle = time.Second

func (a *app) diagnostics(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.Wrap(errUsage, "missing FILE argument")
	}
	p, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	uri := text.ToURI(p)

	var (
		mu     sync.Mutex
		diags  []protocol.Diagnostic
		seen   bool
		update = make(chan struct{}, 1)
	)
	a.s.Handle("textDocument/publishDiagnostics", func(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
		var params protocol.PublishDiagnosticsParams
		if err := session.UnmarshalParams(req, &params); err != nil {
			return nil, err
		}
		if params.URI != uri {
			return nil, nil
		}
		mu.Lock()
		diags = params.Diagnostics
		seen = true
		mu.Unlock()
		select {
		case update <- struct{}{}:
		default:
		}
		return nil, nil
	})
	if _, err := a.open(p); err != nil {
		return err
	}

	timeout := time.Duration(a.cfg.RequestTimeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var quiet <-chan time.Time
	for {
		select {
		case <-update:
			quiet = time.After(diagnosticsSettle)
			continue
		case <-quiet:
		case <-a.s.Done():
			return session.ErrServerExited
		case <-ctx.Done():
			mu.Lock()
			ok := seen
			mu.Unlock()
			if !ok {
				return errors.Wrapf(ctx.Err(), "no diagnostics received for %v", args[0])
			}
		}
		break
	}

	mu.Lock()
	defer mu.Unlock()
	sort.SliceStable(diags, func(i, j int) bool {
		x, y := diags[i].Range.Start, diags[j].Range.Start
		if x.Line != y.Line {
			return x.Line < y.Line
		}
		return x.Character < y.Character
	})
	for _, diag := range diags {
		loc := &protocol.Location{
			URI:   uri,
			Range: diag.Range,
		}
		fmt.Fprintf(a.stdout, "%v: %v\n", plumber.LocationLink(loc, a.cfg.RootDirectory), diag.Message)
	}
	return nil
}

func (a *app) joinLines(ctx context.Context, args []string) error {
	d, pos, err := a.openAt(args)
	if err != nil {
		return err
	}
	version, ok := a.s.Version(d.uri)
	if !ok {
		return errors.Wrapf(session.ErrDocumentNotOpen, "%v", d.uri)
	}
	edits, err := rustanalyzer.JoinLines(ctx, a.s, d.uri, []protocol.Range{{Start: pos, End: pos}})
	if err != nil {
		return err
	}
	f := text.BytesFile(append([]byte(nil), d.text...))
	err = a.s.ApplyIfCurrent(d.uri, version, edits, func(edits []protocol.TextEdit) error {
		if err := text.Edit(&f, edits); err != nil {
			return err
		}
		return os.WriteFile(d.path, f, 0644)
	})
	if err != nil {
		return err
	}
	_, err = a.s.DidChange(d.uri, string(f))
	return err
}

func (a *app) reload(ctx context.Context, _ []string) error {
	return rustanalyzer.ReloadWorkspace(ctx, a.s)
}

func (a *app) watch(ctx context.Context, _ []string) error {
	mw, err := rustanalyzer.NewManifestWatcher(a.cfg.RootDirectory, time.Duration(a.cfg.WatchDebounce), func(ctx context.Context) error {
		log.Printf("reloading workspace")
		return rustanalyzer.ReloadWorkspace(ctx, a.s)
	})
	if err != nil {
		return err
	}
	defer mw.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mw.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-a.s.Done():
			if err := a.s.Err(); err != nil {
				return err
			}
			return session.ErrServerExited
		case <-gctx.Done():
			return nil
		}
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
