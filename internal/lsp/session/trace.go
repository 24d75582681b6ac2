package session

import (
	"encoding/json"
	"sync"

	"github.com/fhs/ra-lsp/internal/lsp/jsonrpc"
	"github.com/sourcegraph/jsonrpc2"
)

// rpcTrace logs every message sent and received. Messages from the
// server are marked "-->" and messages to it "<--". Responses are shown
// with the method of the request they answer.
type rpcTrace struct {
	logger jsonrpc2.Logger

	mu       sync.Mutex
	sent     map[jsonrpc2.ID]string // our requests awaiting a response
	received map[jsonrpc2.ID]string // server requests awaiting our response
}

func newRPCTrace(logger jsonrpc2.Logger) *rpcTrace {
	return &rpcTrace{
		logger:   logger,
		sent:     make(map[jsonrpc2.ID]string),
		received: make(map[jsonrpc2.ID]string),
	}
}

func rawString(raw *json.RawMessage) string {
	if raw == nil {
		return "null"
	}
	return string(*raw)
}

func (t *rpcTrace) takeMethod(m map[jsonrpc2.ID]string, id jsonrpc2.ID, missing string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	method, ok := m[id]
	if !ok {
		return missing
	}
	delete(m, id)
	return method
}

func (t *rpcTrace) recv(msg *jsonrpc.Message) {
	if t == nil {
		return
	}
	switch msg.Kind() {
	case jsonrpc.KindResponse:
		resp := msg.Response
		method := t.takeMethod(t.sent, resp.ID, "(no matching request)")
		if resp.Error != nil {
			err, _ := json.Marshal(resp.Error)
			t.logger.Printf("jsonrpc2: --> error #%s: %s: %s\n", resp.ID, method, err)
		} else {
			t.logger.Printf("jsonrpc2: --> result #%s: %s: %s\n", resp.ID, method, rawString(resp.Result))
		}

	case jsonrpc.KindNotification:
		req := msg.Request
		t.logger.Printf("jsonrpc2: --> notif: %s: %s\n", req.Method, rawString(req.Params))

	case jsonrpc.KindRequest:
		req := msg.Request
		t.mu.Lock()
		t.received[req.ID] = req.Method
		t.mu.Unlock()
		t.logger.Printf("jsonrpc2: --> request #%s: %s: %s\n", req.ID, req.Method, rawString(req.Params))
	}
}

func (t *rpcTrace) sendRequest(req *jsonrpc2.Request) {
	if t == nil {
		return
	}
	if req.Notif {
		t.logger.Printf("jsonrpc2: <-- notif: %s: %s\n", req.Method, rawString(req.Params))
		return
	}
	t.mu.Lock()
	t.sent[req.ID] = req.Method
	t.mu.Unlock()
	t.logger.Printf("jsonrpc2: <-- request #%s: %s: %s\n", req.ID, req.Method, rawString(req.Params))
}

func (t *rpcTrace) sendResponse(resp *jsonrpc2.Response) {
	if t == nil {
		return
	}
	method := t.takeMethod(t.received, resp.ID, "(no previous request)")
	if resp.Error != nil {
		err, _ := json.Marshal(resp.Error)
		t.logger.Printf("jsonrpc2: <-- error #%s: %s: %s\n", resp.ID, method, err)
	} else {
		t.logger.Printf("jsonrpc2: <-- result #%s: %s: %s\n", resp.ID, method, rawString(resp.Result))
	}
}

// forget drops a request that will never see a response.
func (t *rpcTrace) forget(id jsonrpc2.ID) {
	if t == nil {
		return
	}
	t.takeMethod(t.sent, id, "")
}
