// Package protocol defines the request/response frames exchanged between
// otsync clients and the server, independent of the transport carrying them.
package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/zeusync/otsync/internal/core/ot"
	"github.com/zeusync/otsync/pkg/generic"
)

// Method names a request kind.
type Method string

const (
	MethodCheckout Method = "checkout"
	MethodFetch    Method = "fetch"
	MethodPush     Method = "push"
)

// Request is sent by a client. Revision is the base revision for fetch and
// push; PushID and Operations are set only for push.
type Request struct {
	ID         string        `json:"id"`
	Method     Method        `json:"method"`
	Document   string        `json:"document"`
	Revision   ot.Revision   `json:"revision,omitempty"`
	PushID     string        `json:"push_id,omitempty"`
	Operations []ot.Envelope `json:"operations,omitempty"`
}

// Response answers the request with the same ID.
type Response struct {
	ID         string        `json:"id"`
	Revision   ot.Revision   `json:"revision,omitempty"`
	Accepted   bool          `json:"accepted,omitempty"`
	Operations []ot.Envelope `json:"operations,omitempty"`
	Error      *ErrorFrame   `json:"error,omitempty"`
}

// ErrorFrame is the wire form of an Error.
type ErrorFrame struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Err converts the frame back into an error, or nil when absent.
func (f *ErrorFrame) Err() error {
	if f == nil {
		return nil
	}
	return NewProtocolError(f.Code, f.Message, nil)
}

// Handler serves one request. Implementations report failures inside the
// response, never by dropping it.
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response { return f(ctx, req) }

// RoundTripper sends a request and waits for its response. Transport
// clients implement it.
type RoundTripper interface {
	RoundTrip(ctx context.Context, req Request) (Response, error)
	Close() error
}

// NewRequest builds a request with a fresh id.
func NewRequest(method Method, document string) Request {
	return Request{ID: uuid.NewString(), Method: method, Document: document}
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if r.ID == "" {
		return NewProtocolError(ErrorCodeInvalidMessage, "missing request id", ErrInvalidMessage)
	}
	if strings.TrimSpace(r.Document) == "" {
		return NewProtocolError(ErrorCodeInvalidDocument, "missing document", ErrInvalidDocument)
	}
	switch r.Method {
	case MethodCheckout:
	case MethodFetch:
		if r.Revision == "" {
			return NewProtocolError(ErrorCodeInvalidMessage, "fetch without revision", ErrInvalidMessage)
		}
	case MethodPush:
		if r.Revision == "" {
			return NewProtocolError(ErrorCodeInvalidPush, "push without revision", ErrInvalidPush)
		}
		if len(r.Operations) > 0 && r.PushID == "" {
			return NewProtocolError(ErrorCodeInvalidPush, "push without push id", ErrInvalidPush)
		}
	default:
		return NewProtocolError(ErrorCodeProtocolViolation, "unknown method "+string(r.Method), ErrInvalidMessage)
	}
	return nil
}

// Failure builds an error response for req.
func Failure(id string, err error) Response {
	code := GetErrorCode(err)
	msg := err.Error()
	var pe *Error
	if errors.As(err, &pe) {
		msg = pe.Message
	}
	return Response{ID: id, Error: &ErrorFrame{Code: code, Message: msg}}
}

// Marshal encodes a frame, enforcing maxSize when positive.
func Marshal(v any, maxSize int) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, NewProtocolError(ErrorCodeSerializationFailed, "encode frame", err)
	}
	data := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if maxSize > 0 && len(data) > maxSize {
		return nil, NewProtocolError(ErrorCodeMessageTooLarge, "frame exceeds limit", ErrMessageTooLarge)
	}
	return bytes.Clone(data), nil
}

// Buffers above this size are not kept for reuse.
const maxPooledBuffer = 64 << 10

var buffers = generic.NewHotPool(
	func() *bytes.Buffer { return new(bytes.Buffer) },
	func(b *bytes.Buffer) bool {
		b.Reset()
		return b.Cap() <= maxPooledBuffer
	},
	16,
)

// UnmarshalRequest decodes a request frame.
func UnmarshalRequest(data []byte, maxSize int) (Request, error) {
	var req Request
	err := unmarshal(data, maxSize, &req)
	return req, err
}

// UnmarshalResponse decodes a response frame.
func UnmarshalResponse(data []byte, maxSize int) (Response, error) {
	var resp Response
	err := unmarshal(data, maxSize, &resp)
	return resp, err
}

func unmarshal(data []byte, maxSize int, v any) error {
	if maxSize > 0 && len(data) > maxSize {
		return NewProtocolError(ErrorCodeMessageTooLarge, "frame exceeds limit", ErrMessageTooLarge)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewProtocolError(ErrorCodeDeserializationFailed, "decode frame", err)
	}
	return nil
}
