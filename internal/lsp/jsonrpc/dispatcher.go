package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/jsonrpc2"
)

var (
	// ErrDuplicateID is returned when registering an id that is already pending.
	ErrDuplicateID = errors.New("jsonrpc: duplicate request id")

	// ErrClosed is returned when registering on a closed Dispatcher.
	ErrClosed = errors.New("jsonrpc: dispatcher closed")
)

// Continuation receives the outcome of an outgoing request: the raw
// result, or the *jsonrpc2.Error sent by the peer, or the error the call
// was abandoned with. It is invoked exactly once.
type Continuation func(result *json.RawMessage, err error)

// Handler serves a request or notification initiated by the peer.
// Handlers run on the read loop, in arrival order, and must not block;
// longer work is queued elsewhere. The result is ignored for notifications.
type Handler func(ctx context.Context, req *jsonrpc2.Request) (result interface{}, err error)

// Replier sends the response to a peer-initiated request.
type Replier func(resp *jsonrpc2.Response) error

// Dispatcher correlates outgoing requests with incoming responses and
// routes incoming requests and notifications to handlers.
type Dispatcher struct {
	reply   Replier
	logger  jsonrpc2.Logger
	verbose bool

	nextID atomic.Uint64

	mu       sync.Mutex
	pending  map[jsonrpc2.ID]Continuation
	handlers map[string]Handler
	closed   error
}

// NewDispatcher returns a Dispatcher that answers peer requests through reply.
func NewDispatcher(reply Replier, logger jsonrpc2.Logger, verbose bool) *Dispatcher {
	return &Dispatcher{
		reply:    reply,
		logger:   logger,
		verbose:  verbose,
		pending:  make(map[jsonrpc2.ID]Continuation),
		handlers: make(map[string]Handler),
	}
}

// NextID returns a fresh request id. Ids start at 1 and are never reused.
func (d *Dispatcher) NextID() jsonrpc2.ID {
	return jsonrpc2.ID{Num: d.nextID.Add(1)}
}

// RegisterPending records k as the continuation for id.
func (d *Dispatcher) RegisterPending(id jsonrpc2.ID, k Continuation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed != nil {
		return d.closed
	}
	if _, ok := d.pending[id]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateID, id)
	}
	d.pending[id] = k
	return nil
}

// take removes and returns the continuation for id.
func (d *Dispatcher) take(id jsonrpc2.ID) (Continuation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	return k, ok
}

// Abandon resolves the pending call id with err and forgets it.
// It reports false if id was not pending (already resolved).
func (d *Dispatcher) Abandon(id jsonrpc2.ID, err error) bool {
	k, ok := d.take(id)
	if ok {
		k(nil, err)
	}
	return ok
}

// CancelAll resolves every pending call with err and returns how many
// there were.
func (d *Dispatcher) CancelAll(err error) int {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[jsonrpc2.ID]Continuation)
	d.mu.Unlock()

	for _, k := range pending {
		k(nil, err)
	}
	return len(pending)
}

// Close cancels all pending calls with err and rejects later registrations.
func (d *Dispatcher) Close(err error) {
	d.mu.Lock()
	if d.closed == nil {
		d.closed = ErrClosed
	}
	d.mu.Unlock()
	d.CancelAll(err)
}

// Pending returns the number of outstanding calls.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Handle registers h for method, replacing any previous handler.
// A nil h removes the handler.
func (d *Dispatcher) Handle(method string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.handlers, method)
		return
	}
	d.handlers[method] = h
}

func (d *Dispatcher) handler(method string) Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers[method]
}

func (d *Dispatcher) printf(format string, v ...interface{}) {
	if d.logger != nil {
		d.logger.Printf(format, v...)
	}
}

// Dispatch delivers one incoming message. It must be called from a
// single goroutine so that messages are handled in arrival order.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *Message) {
	switch msg.Kind() {
	case KindResponse:
		d.dispatchResponse(msg.Response)
	case KindRequest, KindNotification:
		d.dispatchRequest(ctx, msg.Request)
	}
}

func (d *Dispatcher) dispatchResponse(resp *jsonrpc2.Response) {
	k, ok := d.take(resp.ID)
	if !ok {
		d.printf("jsonrpc: dropping response for unknown request #%v", resp.ID)
		return
	}
	if resp.Error != nil {
		k(nil, resp.Error)
		return
	}
	result := resp.Result
	if result == nil {
		null := json.RawMessage("null")
		result = &null
	}
	k(result, nil)
}

func (d *Dispatcher) dispatchRequest(ctx context.Context, req *jsonrpc2.Request) {
	h := d.handler(req.Method)
	if h == nil {
		if req.Notif {
			// "$/" notifications may always be ignored.
			if d.verbose && !strings.HasPrefix(req.Method, "$/") {
				d.printf("jsonrpc: no handler for notification %v", req.Method)
			}
			return
		}
		d.send(&jsonrpc2.Response{
			ID: req.ID,
			Error: &jsonrpc2.Error{
				Code:    jsonrpc2.CodeMethodNotFound,
				Message: fmt.Sprintf("method not found: %v", req.Method),
			},
		})
		return
	}
	result, err := h(ctx, req)
	if req.Notif {
		if err != nil {
			d.printf("jsonrpc: notification %v: %v", req.Method, err)
		}
		return
	}
	d.send(NewResponse(req.ID, result, err))
}

func (d *Dispatcher) send(resp *jsonrpc2.Response) {
	if d.reply == nil {
		return
	}
	if err := d.reply(resp); err != nil {
		d.printf("jsonrpc: reply to #%v failed: %v", resp.ID, err)
	}
}
