package session

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Capabilities holds the server capabilities negotiated by Initialize.
// It is immutable.
type Capabilities struct {
	raw []byte
}

// NewCapabilities wraps a server capabilities object. Hosts normally
// get one from Initialize.
func NewCapabilities(raw json.RawMessage) *Capabilities {
	return &Capabilities{raw: append([]byte(nil), raw...)}
}

// Raw returns the capabilities object as sent by the server.
func (c *Capabilities) Raw() json.RawMessage {
	if c == nil {
		return nil
	}
	return append(json.RawMessage(nil), c.raw...)
}

// Get looks up a dotted path such as "experimental.hoverRange".
func (c *Capabilities) Get(path string) gjson.Result {
	if c == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(c.raw, path)
}

// Enabled reports whether the capability at path is switched on: either
// true or an options object, as LSP provider capabilities are.
func (c *Capabilities) Enabled(path string) bool {
	r := c.Get(path)
	switch r.Type {
	case gjson.True:
		return true
	case gjson.JSON:
		return r.IsObject()
	}
	return false
}

// Unmarshal decodes the capabilities into v, for example a
// protocol.ServerCapabilities.
func (c *Capabilities) Unmarshal(v interface{}) error {
	return json.Unmarshal(c.raw, v)
}
