package session

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotReady is returned by operations called in the wrong state.
	ErrNotReady = errors.New("session not ready")

	// ErrCancelled is matched by every *CancelledError.
	ErrCancelled = errors.New("request cancelled")

	// ErrStaleEdit is returned by ApplyIfCurrent when the document has
	// changed since the edits were computed.
	ErrStaleEdit = errors.New("stale edit")

	ErrDocumentNotOpen = errors.New("document not open")

	// ErrHandshake is matched by every *HandshakeError.
	ErrHandshake = errors.New("initialize handshake failed")

	// ErrShutdown is the cause of calls cancelled by Shutdown.
	ErrShutdown = errors.New("session shut down")

	// ErrServerExited is the cause of calls cancelled because the
	// server closed its output.
	ErrServerExited = errors.New("language server exited")
)

// CancelledError resolves a call that was cancelled, timed out, or
// outlived its session. Cause says which.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause == nil {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%v: %v", ErrCancelled, e.Cause)
}

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

func (e *CancelledError) Unwrap() error { return e.Cause }

// HandshakeError reports a failed initialize exchange.
type HandshakeError struct {
	Err error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("%v: %v", ErrHandshake, e.Err)
}

func (e *HandshakeError) Is(target error) bool { return target == ErrHandshake }

func (e *HandshakeError) Unwrap() error { return e.Err }

// ServerError is an error response from the server to one request.
type ServerError struct {
	Method  string
	Code    int64
	Message string
	Data    *json.RawMessage
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%v: %v (code %d)", e.Method, e.Message, e.Code)
}
