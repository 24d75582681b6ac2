// Package session implements the client side of a Language Server
// Protocol connection: the initialize handshake, request/response calls
// with cancellation, notifications, server-initiated messages, and
// document version tracking.
package session

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fhs/go-lsp-internal/lsp/protocol"
	"github.com/fhs/ra-lsp/internal/lsp/jsonrpc"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/tidwall/gjson"
)

const (
	DefaultInitializeTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 2 * time.Second
)

// Conn is a framed connection to a language server.
// *transport.Transport implements it.
type Conn interface {
	Send(payload []byte) error
	Receive() ([]byte, error)
	Shutdown() error
}

// Options configures a Session. The zero value is usable.
type Options struct {
	// Logger receives diagnostics. Nil logs to standard error.
	Logger jsonrpc2.Logger

	// Verbose logs informational server messages and unhandled
	// notifications.
	Verbose bool

	// Trace logs every message exchanged with the server.
	Trace bool

	InitializeTimeout time.Duration // default DefaultInitializeTimeout
	ShutdownTimeout   time.Duration // default DefaultShutdownTimeout

	// RequestTimeout bounds calls whose context has no deadline.
	// Zero means no bound.
	RequestTimeout time.Duration

	// Settings answers workspace/configuration requests.
	Settings interface{}
}

// Session is one client connection to a language server.
type Session struct {
	id     string
	conn   Conn
	disp   *jsonrpc.Dispatcher
	logger jsonrpc2.Logger
	opts   Options
	trace  *rpcTrace

	// ctx is passed to handlers and cancelled when the session ends.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	caps  *Capabilities
	err   error

	docMu sync.Mutex
	docs  map[protocol.DocumentURI]int32

	done     chan struct{}
	readDone chan struct{}
}

// New starts a session over conn. The session reads from conn until it
// is closed; Initialize must be called before any other request.
func New(conn Conn, opts *Options) *Session {
	s := &Session{
		id:       uuid.NewString(),
		conn:     conn,
		docs:     make(map[protocol.DocumentURI]int32),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	if opts != nil {
		s.opts = *opts
	}
	if s.opts.InitializeTimeout <= 0 {
		s.opts.InitializeTimeout = DefaultInitializeTimeout
	}
	if s.opts.ShutdownTimeout <= 0 {
		s.opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	s.logger = s.opts.Logger
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	if s.opts.Trace {
		s.trace = newRPCTrace(s.logger)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.disp = jsonrpc.NewDispatcher(s.reply, prefixLogger{s}, s.opts.Verbose)
	s.handleBuiltins()

	go s.readLoop()
	return s
}

// prefixLogger tags dispatcher diagnostics with the session id.
type prefixLogger struct{ s *Session }

func (l prefixLogger) Printf(format string, v ...interface{}) {
	l.s.printf(format, v...)
}

func (s *Session) printf(format string, v ...interface{}) {
	s.logger.Printf("session %s: "+format, append([]interface{}{s.id[:8]}, v...)...)
}

// ID returns a unique identifier for the session, used in log lines.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session is Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that closed the session. It is nil while the
// session is open and after a clean Shutdown.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Capabilities returns the capabilities negotiated by Initialize, or nil
// before it has succeeded.
func (s *Session) Capabilities() *Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Handle registers h for a server-initiated request or notification,
// replacing any built-in handler for method.
func (s *Session) Handle(method string, h jsonrpc.Handler) {
	s.disp.Handle(method, h)
}

func (s *Session) readLoop() {
	defer close(s.readDone)
	for {
		payload, err := s.conn.Receive()
		if err != nil {
			if err == io.EOF {
				err = ErrServerExited
			} else {
				err = errors.Wrap(err, "read from language server")
			}
			s.fail(err, "read")
			return
		}
		msg, err := jsonrpc.Decode(payload)
		if err != nil {
			s.fail(err, "corrupt")
			return
		}
		s.trace.recv(msg)
		s.disp.Dispatch(s.ctx, msg)
	}
}

// fail closes the session after a fatal error. It does nothing if the
// session is already shutting down or closed.
func (s *Session) fail(err error, reason string) {
	s.mu.Lock()
	if s.state == ShuttingDown || s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.state = Closed
	s.err = err
	s.mu.Unlock()

	s.printf("closing: %v", err)
	s.cancel()
	s.disp.Close(&CancelledError{Cause: err})
	if serr := s.conn.Shutdown(); serr != nil {
		s.printf("shutdown transport: %v", serr)
	}
	recordSessionClosed(reason)
	close(s.done)
}

// Initialize performs the initialize handshake. params is sent as the
// initialize request's params. On success the session is Ready;
// on failure it is Closed and the error matches ErrHandshake.
func (s *Session) Initialize(ctx context.Context, params interface{}) (*Capabilities, error) {
	s.mu.Lock()
	if s.state != Uninitialized {
		st := s.state
		s.mu.Unlock()
		return nil, errors.Wrapf(ErrNotReady, "initialize in state %v", st)
	}
	s.state = Initializing
	s.mu.Unlock()

	caps, err := s.initialize(ctx, params)
	if err != nil {
		herr := &HandshakeError{Err: err}
		s.fail(herr, "handshake")
		return nil, herr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Initializing {
		// Closed or shut down while the handshake was in flight.
		return nil, &HandshakeError{Err: errors.Wrapf(ErrNotReady, "session %v", s.state)}
	}
	s.caps = caps
	s.state = Ready
	return caps, nil
}

func (s *Session) initialize(ctx context.Context, params interface{}) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.InitializeTimeout)
	defer cancel()

	var result json.RawMessage
	call := s.start(ctx, "initialize", params)
	if err := call.Wait(ctx); err != nil {
		return nil, err
	}
	if err := call.Result(&result); err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(result) || !gjson.ParseBytes(result).IsObject() {
		return nil, errors.Errorf("malformed initialize result: %.200s", result)
	}
	caps := gjson.GetBytes(result, "capabilities")
	if !caps.IsObject() {
		return nil, errors.Errorf("initialize result has no capabilities object: %.200s", result)
	}
	if err := s.notify("initialized", &protocol.InitializedParams{}); err != nil {
		return nil, errors.Wrap(err, "initialized failed")
	}
	return NewCapabilities(json.RawMessage(caps.Raw)), nil
}

// SendRequest sends a request and returns the pending call. The call is
// cancelled when ctx is done, or after Options.RequestTimeout if ctx has
// no deadline.
func (s *Session) SendRequest(ctx context.Context, method string, params interface{}) *Call {
	if st := s.State(); st != Ready {
		return failedCall(method, errors.Wrapf(ErrNotReady, "%v in state %v", method, st))
	}
	return s.start(ctx, method, params)
}

// Call sends a request, waits for its response and decodes the result
// into result, which may be nil.
func (s *Session) Call(ctx context.Context, method string, params, result interface{}) error {
	c := s.SendRequest(ctx, method, params)
	if err := c.Wait(ctx); err != nil {
		return err
	}
	return c.Result(result)
}

// start sends a request regardless of state.
func (s *Session) start(ctx context.Context, method string, params interface{}) *Call {
	id := s.disp.NextID()
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return failedCall(method, err)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return failedCall(method, errors.Wrapf(err, "marshal %v request", method))
	}

	var release context.CancelFunc
	if _, ok := ctx.Deadline(); !ok && s.opts.RequestTimeout > 0 {
		ctx, release = context.WithTimeout(ctx, s.opts.RequestTimeout)
	}
	c := s.startCall(ctx, id, method, req, payload)
	if release != nil {
		c.onResolve(release)
	}
	return c
}

func (s *Session) startCall(ctx context.Context, id jsonrpc2.ID, method string, req *jsonrpc2.Request, payload []byte) *Call {
	c := newCall(id, method)
	started := time.Now()
	spanCtx, span := startRequestSpan(ctx, s.id, method)

	err := s.disp.RegisterPending(id, func(result *json.RawMessage, err error) {
		var rpcErr *jsonrpc2.Error
		if errors.As(err, &rpcErr) {
			err = &ServerError{
				Method:  method,
				Code:    rpcErr.Code,
				Message: rpcErr.Message,
				Data:    rpcErr.Data,
			}
		}
		if err != nil {
			s.trace.forget(id)
		}
		endRequestSpan(span, err)
		recordRequestMetrics(spanCtx, method, time.Since(started), err)
		c.resolve(result, err)
	})
	if err != nil {
		if errors.Is(err, jsonrpc.ErrClosed) {
			err = errors.Wrapf(ErrNotReady, "%v: session closed", method)
		}
		endRequestSpan(span, err)
		c.resolve(nil, err)
		return c
	}

	c.mu.Lock()
	c.abandon = func(cause error) {
		if s.disp.Abandon(id, &CancelledError{Cause: cause}) {
			s.cancelRequest(id)
		}
	}
	c.mu.Unlock()

	s.trace.sendRequest(req)
	if err := s.conn.Send(payload); err != nil {
		// An oversized request only fails this call.
		s.disp.Abandon(id, err)
		return c
	}

	stop := context.AfterFunc(ctx, func() {
		c.cancel(context.Cause(ctx))
	})
	c.onResolve(func() { stop() })
	return c
}

// cancelRequest asks the server to stop working on request id.
func (s *Session) cancelRequest(id jsonrpc2.ID) {
	if st := s.State(); st != Ready && st != Initializing {
		return
	}
	s.notify("$/cancelRequest", map[string]interface{}{"id": id.Num})
}

// SendNotification sends a notification. It fails only if the session
// is not Ready; delivery errors are logged.
func (s *Session) SendNotification(method string, params interface{}) error {
	if st := s.State(); st != Ready {
		return errors.Wrapf(ErrNotReady, "%v in state %v", method, st)
	}
	s.notify(method, params)
	return nil
}

// notify sends a notification regardless of state.
func (s *Session) notify(method string, params interface{}) error {
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		s.printf("%v", err)
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		s.printf("marshal %v notification: %v", method, err)
		return err
	}
	s.trace.sendRequest(n)
	if err := s.conn.Send(payload); err != nil {
		s.printf("send %v notification: %v", method, err)
		return err
	}
	return nil
}

// reply answers a server-initiated request.
func (s *Session) reply(resp *jsonrpc2.Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	s.trace.sendResponse(resp)
	return s.conn.Send(payload)
}

// Shutdown ends the session. Pending calls are cancelled with
// ErrShutdown as the cause. A Ready session first sends the shutdown
// request and exit notification. Shutdown returns once the server
// connection is closed; later calls do nothing.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	prev := s.state
	switch prev {
	case ShuttingDown, Closed:
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.state = ShuttingDown
	s.mu.Unlock()

	cause := &CancelledError{Cause: ErrShutdown}
	if n := s.disp.CancelAll(cause); n > 0 && s.opts.Verbose {
		s.printf("cancelled %d pending calls", n)
	}
	if prev == Ready {
		sctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
		if err := s.start(sctx, "shutdown", nil).Wait(sctx); err != nil {
			s.printf("shutdown request: %v", err)
		}
		cancel()
		s.notify("exit", nil)
	}

	err := s.conn.Shutdown()
	s.cancel()
	s.disp.Close(cause)
	<-s.readDone

	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	recordSessionClosed("shutdown")
	close(s.done)
	return err
}
