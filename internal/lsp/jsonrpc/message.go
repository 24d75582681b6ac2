package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/sourcegraph/jsonrpc2"
)

// Kind classifies a decoded message.
type Kind int

const (
	KindRequest Kind = iota + 1
	KindNotification
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	}
	return "unknown"
}

// Message is one JSON-RPC message received from the peer.
// Exactly one of Request and Response is set.
type Message struct {
	Request  *jsonrpc2.Request // request or notification (Request.Notif)
	Response *jsonrpc2.Response
}

// Kind returns the kind of m.
func (m *Message) Kind() Kind {
	switch {
	case m.Response != nil:
		return KindResponse
	case m.Request != nil && m.Request.Notif:
		return KindNotification
	case m.Request != nil:
		return KindRequest
	}
	return 0
}

// Decode parses a frame payload into a Message.
func Decode(payload []byte) (*Message, error) {
	var probe struct {
		Method *string          `json:"method"`
		ID     *json.RawMessage `json:"id"`
		Result json.RawMessage  `json:"result"`
		Error  json.RawMessage  `json:"error"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameCorrupt, err)
	}
	switch {
	case probe.Method != nil:
		var req jsonrpc2.Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: bad request: %v", ErrFrameCorrupt, err)
		}
		return &Message{Request: &req}, nil

	case probe.ID != nil || len(probe.Result) > 0 || len(probe.Error) > 0:
		var resp jsonrpc2.Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			return nil, fmt.Errorf("%w: bad response: %v", ErrFrameCorrupt, err)
		}
		return &Message{Response: &resp}, nil
	}
	return nil, fmt.Errorf("%w: message has neither method nor id", ErrFrameCorrupt)
}

func rawParams(params interface{}) (*json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(b)
	return &raw, nil
}

// NewRequest builds a request with a numeric id.
// A nil params leaves the params member out.
func NewRequest(id jsonrpc2.ID, method string, params interface{}) (*jsonrpc2.Request, error) {
	p, err := rawParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %v params: %w", method, err)
	}
	return &jsonrpc2.Request{
		Method: method,
		Params: p,
		ID:     id,
	}, nil
}

// NewNotification builds a notification.
func NewNotification(method string, params interface{}) (*jsonrpc2.Request, error) {
	p, err := rawParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %v params: %w", method, err)
	}
	return &jsonrpc2.Request{
		Method: method,
		Params: p,
		Notif:  true,
	}, nil
}

// NewResponse builds a reply to a server-initiated request. A non-nil
// err becomes the error member; *jsonrpc2.Error values are sent as is.
func NewResponse(id jsonrpc2.ID, result interface{}, err error) *jsonrpc2.Response {
	resp := &jsonrpc2.Response{ID: id}
	if err != nil {
		rpcErr, ok := err.(*jsonrpc2.Error)
		if !ok {
			rpcErr = &jsonrpc2.Error{
				Code:    jsonrpc2.CodeInternalError,
				Message: err.Error(),
			}
		}
		resp.Error = rpcErr
		return resp
	}
	b, merr := json.Marshal(result)
	if merr != nil {
		resp.Error = &jsonrpc2.Error{
			Code:    jsonrpc2.CodeInternalError,
			Message: fmt.Sprintf("marshal result: %v", merr),
		}
		return resp
	}
	raw := json.RawMessage(b)
	resp.Result = &raw
	return resp
}
