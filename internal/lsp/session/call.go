package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
)

// Call is an outstanding request. It resolves exactly once, with a
// result or an error.
type Call struct {
	ID     jsonrpc2.ID
	Method string

	done   chan struct{}
	result *json.RawMessage
	err    error

	mu       sync.Mutex
	resolved bool
	cleanup  []func()
	abandon  func(cause error)
}

func newCall(id jsonrpc2.ID, method string) *Call {
	return &Call{
		ID:     id,
		Method: method,
		done:   make(chan struct{}),
	}
}

// failedCall returns a call already resolved with err.
func failedCall(method string, err error) *Call {
	c := newCall(jsonrpc2.ID{}, method)
	c.resolve(nil, err)
	return c
}

func (c *Call) resolve(result *json.RawMessage, err error) {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return
	}
	c.resolved = true
	c.result, c.err = result, err
	cleanup := c.cleanup
	c.cleanup = nil
	c.mu.Unlock()

	close(c.done)
	for _, f := range cleanup {
		f()
	}
}

// onResolve registers f to run after the call resolves.
func (c *Call) onResolve(f func()) {
	c.mu.Lock()
	if !c.resolved {
		c.cleanup = append(c.cleanup, f)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	f()
}

// Done is closed when the call has resolved.
func (c *Call) Done() <-chan struct{} { return c.done }

// Err returns the call's error once it has resolved, and nil before.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Result waits for the call and decodes its result into v.
// A nil v discards the result.
func (c *Call) Result(v interface{}) error {
	<-c.done
	if c.err != nil {
		return c.err
	}
	if v == nil || c.result == nil {
		return nil
	}
	return json.Unmarshal(*c.result, v)
}

// Wait blocks until the call resolves or ctx is done. In the latter case
// the call is cancelled and Wait returns its *CancelledError.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
	case <-ctx.Done():
		c.cancel(context.Cause(ctx))
		<-c.done
	}
	return c.err
}

// Cancel abandons the call. It resolves with a *CancelledError unless it
// has already resolved. The server is asked to stop working on it, but
// may still do so.
func (c *Call) Cancel() {
	c.cancel(context.Canceled)
}

func (c *Call) cancel(cause error) {
	c.mu.Lock()
	abandon := c.abandon
	c.mu.Unlock()
	if abandon != nil {
		abandon(cause)
		return
	}
	c.resolve(nil, &CancelledError{Cause: cause})
}
