// Package jsonrpc implements the JSON-RPC 2.0 plumbing of a Language
// Server Protocol client: base protocol framing, message classification
// and request/response correlation.
//
// Message envelopes are the ones defined by github.com/sourcegraph/jsonrpc2.
package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sourcegraph/jsonrpc2"
)

// DefaultMaxFrameSize is the payload limit used when Codec.MaxSize is zero.
const DefaultMaxFrameSize = 64 << 20

var (
	// ErrFrameCorrupt is returned when a frame header cannot be parsed
	// or a payload is not a JSON-RPC message.
	ErrFrameCorrupt = errors.New("jsonrpc: corrupt frame")

	// ErrFrameTooLarge is matched by every *FrameTooLargeError.
	ErrFrameTooLarge = errors.New("jsonrpc: frame too large")
)

// FrameTooLargeError reports a frame whose payload exceeds the limit.
type FrameTooLargeError struct {
	Length int64 // declared or actual payload length
	Max    int64 // configured limit
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("jsonrpc: frame of %d bytes exceeds limit of %d bytes", e.Length, e.Max)
}

func (e *FrameTooLargeError) Is(target error) bool {
	return target == ErrFrameTooLarge
}

var _ jsonrpc2.ObjectCodec = Codec{}

// Codec reads and writes frames in the LSP base protocol format:
//
//	Content-Length: <n>\r\n
//	\r\n
//	<n bytes of payload>
type Codec struct {
	// MaxSize is the largest accepted payload. Zero means DefaultMaxFrameSize.
	MaxSize int64
}

func (c Codec) limit() int64 {
	if c.MaxSize <= 0 {
		return DefaultMaxFrameSize
	}
	return c.MaxSize
}

// WriteFrame writes payload as one frame using a single Write call.
// Nothing is written if payload is larger than the limit.
func (c Codec) WriteFrame(w io.Writer, payload []byte) error {
	if n := int64(len(payload)); n > c.limit() {
		return &FrameTooLargeError{Length: n, Max: c.limit()}
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + 32)
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(payload))
	buf.Write(payload)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadFrame reads the next frame from r and returns its payload.
//
// A frame declaring more than the limit is skipped without being
// buffered and a *FrameTooLargeError is returned; r is left at the start
// of the following frame.
func (c Codec) ReadFrame(r *bufio.Reader) ([]byte, error) {
	length := int64(-1)
	first := true
	for {
		line, err := r.ReadSlice('\n')
		if err != nil {
			switch {
			case err == bufio.ErrBufferFull:
				return nil, fmt.Errorf("%w: header line too long", ErrFrameCorrupt)
			case err == io.EOF && first && len(line) == 0:
				return nil, io.EOF
			case err == io.EOF:
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		first = false
		s := strings.TrimRight(string(line), "\r\n")
		if s == "" {
			break
		}
		colon := strings.IndexByte(s, ':')
		if colon < 0 {
			return nil, fmt.Errorf("%w: malformed header %q", ErrFrameCorrupt, s)
		}
		name := strings.TrimSpace(s[:colon])
		value := strings.TrimSpace(s[colon+1:])
		if !strings.EqualFold(name, "Content-Length") {
			continue // Content-Type and friends
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid Content-Length %q", ErrFrameCorrupt, value)
		}
		length = n
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: missing Content-Length header", ErrFrameCorrupt)
	}
	if length > c.limit() {
		if _, err := io.CopyN(io.Discard, r, length); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		return nil, &FrameTooLargeError{Length: length, Max: c.limit()}
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// WriteObject implements jsonrpc2.ObjectCodec.
func (c Codec) WriteObject(stream io.Writer, obj interface{}) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return c.WriteFrame(stream, data)
}

// ReadObject implements jsonrpc2.ObjectCodec.
func (c Codec) ReadObject(stream *bufio.Reader, v interface{}) error {
	payload, err := c.ReadFrame(stream)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}
