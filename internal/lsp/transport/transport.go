// Package transport runs a language server as a child process and
// exchanges base protocol frames with it over the child's standard input
// and output.
package transport

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fhs/ra-lsp/internal/lsp/jsonrpc"
	"github.com/pkg/errors"
)

// DefaultShutdownTimeout is how long Shutdown waits for the server to
// exit before killing it.
const DefaultShutdownTimeout = 5 * time.Second

// ErrClosed is returned by Send after Shutdown.
var ErrClosed = errors.New("transport: closed")

// LaunchError reports a server executable that could not be found or started.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to execute language server %q: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Options configures a Transport. The zero value is usable.
type Options struct {
	// MaxFrameSize bounds frame payloads in both directions.
	// Zero means jsonrpc.DefaultMaxFrameSize.
	MaxFrameSize int64

	// Stderr receives the server's standard error. Nil discards it.
	Stderr io.Writer

	// Dir is the server's working directory.
	Dir string

	// Env is the server's environment. Nil inherits ours.
	Env []string

	// ShutdownTimeout defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

func (o *Options) shutdownTimeout() time.Duration {
	if o == nil || o.ShutdownTimeout <= 0 {
		return DefaultShutdownTimeout
	}
	return o.ShutdownTimeout
}

func (o *Options) maxFrameSize() int64 {
	if o == nil {
		return 0
	}
	return o.MaxFrameSize
}

// Transport is a framed, bidirectional connection to a language server.
//
// Send may be called from any number of goroutines. Receive must be
// called from a single goroutine.
type Transport struct {
	codec   jsonrpc.Codec
	r       *bufio.Reader
	rc      io.Closer
	w       io.WriteCloser
	wmu     sync.Mutex
	timeout time.Duration

	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error

	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// Start launches command with args and connects to its standard streams.
func Start(command string, args []string, opts *Options) (*Transport, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, &LaunchError{Command: command, Err: err}
	}

	// stdout is our own pipe rather than cmd.StdoutPipe so that frames
	// still buffered in it can be read after the server exits.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Command: command, Err: err}
	}
	cmd := exec.Command(path, args...)
	cmd.Stdout = pw
	if opts != nil {
		cmd.Dir = opts.Dir
		cmd.Env = opts.Env
		cmd.Stderr = opts.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return nil, &LaunchError{Command: command, Err: err}
	}
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, &LaunchError{Command: command, Err: err}
	}
	pw.Close()

	t := newTransport(pr, stdin, opts)
	t.cmd = cmd
	go func() {
		t.waitErr = cmd.Wait()
		close(t.exited)
	}()
	return t, nil
}

// New returns a Transport over an existing stream pair, such as a
// network connection or an in-memory pipe. Shutdown closes r and w if
// they implement io.Closer.
func New(r io.Reader, w io.Writer, opts *Options) *Transport {
	wc, ok := w.(io.WriteCloser)
	if !ok {
		wc = nopCloser{w}
	}
	return newTransport(r, wc, opts)
}

func newTransport(r io.Reader, w io.WriteCloser, opts *Options) *Transport {
	t := &Transport{
		codec:   jsonrpc.Codec{MaxSize: opts.maxFrameSize()},
		r:       bufio.NewReader(r),
		w:       w,
		timeout: opts.shutdownTimeout(),
		exited:  make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		t.rc = c
	}
	return t
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Send writes payload as one frame. Concurrent frames never interleave.
func (t *Transport) Send(payload []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.codec.WriteFrame(t.w, payload)
}

// Receive returns the payload of the next frame. It returns io.EOF once
// the server has exited or closed its output, and after Shutdown.
// An oversized frame is skipped and reported as *jsonrpc.FrameTooLargeError;
// Receive may be called again to get the frame after it.
func (t *Transport) Receive() ([]byte, error) {
	if t.closed.Load() {
		return nil, io.EOF
	}
	p, err := t.codec.ReadFrame(t.r)
	if err != nil && t.closed.Load() {
		return nil, io.EOF
	}
	return p, err
}

// Exited is closed when the server process has exited. For transports
// made by New it is closed by Shutdown.
func (t *Transport) Exited() <-chan struct{} {
	return t.exited
}

// ExitErr returns the result of waiting for the server process.
// It is only meaningful after Exited is closed.
func (t *Transport) ExitErr() error {
	select {
	case <-t.exited:
		return t.waitErr
	default:
		return nil
	}
}

// Pid returns the server's process id, or 0 if there is no process.
func (t *Transport) Pid() int {
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Shutdown closes the server's input and waits for it to exit. If it
// does not exit within the shutdown timeout it is killed. Shutdown is
// idempotent; later calls return the first result.
func (t *Transport) Shutdown() error {
	t.shutdownOnce.Do(func() {
		t.closed.Store(true)
		t.shutdownErr = t.shutdown()
	})
	return t.shutdownErr
}

func (t *Transport) shutdown() error {
	// Not under wmu: closing unblocks a Send stuck on a full pipe.
	werr := t.w.Close()

	if t.cmd == nil {
		close(t.exited)
		if t.rc != nil {
			t.rc.Close()
		}
		return werr
	}

	var err error
	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case <-t.exited:
	case <-timer.C:
		if kerr := t.cmd.Process.Kill(); kerr != nil {
			err = errors.Wrap(kerr, "kill language server")
		} else {
			err = errors.Errorf("language server did not exit within %v; killed", t.timeout)
		}
		<-t.exited
	}
	t.rc.Close()
	return err
}
