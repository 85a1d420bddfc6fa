package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvotenet/dvote-go/pkg/sign"
)

// Body field names with protocol-level meaning. Everything else in a
// MessageBody is an open, method-specific payload.
const (
	methodField    = "method"
	timestampField = "timestamp"
	okField        = "ok"
	requestField   = "request"
	messageField   = "message"
)

// MessageBody is the open request/response payload: a fixed required header
// (method or ok/request, plus timestamp) and arbitrary method-specific
// fields kept as raw JSON until needed. This preserves forward compatibility
// with fields this client does not know about.
type MessageBody map[string]json.RawMessage

// NewBody creates a MessageBody from any JSON-serializable value, typically
// a struct or a map describing one request.
func NewBody(v any) (MessageBody, error) {
	if v == nil {
		return MessageBody{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error marshaling body: %w", err)
	}
	var body MessageBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("error unmarshaling body: %w", err)
	}
	return body, nil
}

// Translate extracts the body fields into the provided value (typically a
// pointer to a struct), with Go's JSON unmarshaling handling type checks.
func (b MessageBody) Translate(v any) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("error marshaling body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error unmarshaling body: %w", err)
	}
	return nil
}

// Set stores a JSON-serializable value under the given field.
func (b MessageBody) Set(field string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("error marshaling field %q: %w", field, err)
	}
	b[field] = raw
	return nil
}

// Method returns the request method, or an empty string if absent or
// not a string.
func (b MessageBody) Method() string {
	var method string
	if raw, ok := b[methodField]; ok {
		_ = json.Unmarshal(raw, &method)
	}
	return method
}

// Timestamp returns the body timestamp in Unix seconds and whether one
// is present.
func (b MessageBody) Timestamp() (int64, bool) {
	raw, ok := b[timestampField]
	if !ok {
		return 0, false
	}
	var ts int64
	if err := json.Unmarshal(raw, &ts); err != nil {
		return 0, false
	}
	return ts, true
}

// ensureTimestamp attaches the current Unix-seconds timestamp when the
// body does not carry one yet.
func (b MessageBody) ensureTimestamp() {
	if _, ok := b[timestampField]; !ok {
		_ = b.Set(timestampField, time.Now().Unix())
	}
}

// OK reports the remote success flag of a response body. A missing or
// malformed flag counts as failure.
func (b MessageBody) OK() bool {
	raw, ok := b[okField]
	if !ok {
		return false
	}
	var flag bool
	if err := json.Unmarshal(raw, &flag); err != nil {
		return false
	}
	return flag
}

// CorrelationID returns the correlation ID echoed in a response body
// (the "request" field).
func (b MessageBody) CorrelationID() string {
	var id string
	if raw, ok := b[requestField]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	return id
}

// Message returns the remote-supplied failure message, if any.
func (b MessageBody) Message() string {
	var msg string
	if raw, ok := b[messageField]; ok {
		_ = json.Unmarshal(raw, &msg)
	}
	return msg
}

// RequestEnvelope is the outgoing wire structure. The signature, when
// present, covers the canonical serialization of the Request body, so it
// stays verifiable independent of field ordering.
type RequestEnvelope struct {
	ID        string         `json:"id"`
	Request   MessageBody    `json:"request"`
	Signature sign.Signature `json:"signature,omitempty"`
}

// NewRequestEnvelope wraps a body under a correlation ID.
func NewRequestEnvelope(id string, body MessageBody) *RequestEnvelope {
	return &RequestEnvelope{ID: id, Request: body}
}

// ResponseEnvelope is the incoming wire structure. Besides the parsed body
// it retains the exact response-body bytes as received, which is what the
// byte-verification path checks for binary payloads.
type ResponseEnvelope struct {
	ID        string
	Response  MessageBody
	Signature sign.Signature

	raw    json.RawMessage // response field bytes exactly as received
	binary bool            // delivered in a binary frame
}

type responseEnvelopeWire struct {
	ID        string          `json:"id"`
	Response  json.RawMessage `json:"response"`
	Signature sign.Signature  `json:"signature,omitempty"`
}

// UnmarshalJSON decodes the envelope, keeping the raw response bytes
// alongside the parsed body.
func (e *ResponseEnvelope) UnmarshalJSON(data []byte) error {
	var wire responseEnvelopeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("malformed response envelope: %w", err)
	}
	if len(wire.Response) == 0 {
		return fmt.Errorf("malformed response envelope: missing response body")
	}
	var body MessageBody
	if err := json.Unmarshal(wire.Response, &body); err != nil {
		return fmt.Errorf("malformed response body: %w", err)
	}

	e.ID = wire.ID
	e.Response = body
	e.Signature = wire.Signature
	e.raw = wire.Response
	return nil
}

// MarshalJSON encodes the envelope in its wire form.
func (e *ResponseEnvelope) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(e.Response)
	if err != nil {
		return nil, err
	}
	return json.Marshal(responseEnvelopeWire{
		ID:        e.ID,
		Response:  body,
		Signature: e.Signature,
	})
}

// RawBody returns the response-body bytes exactly as received.
func (e *ResponseEnvelope) RawBody() []byte { return e.raw }

// Binary reports whether the transport delivered this envelope in a binary
// frame; such responses are verified over their raw bytes instead of the
// canonical JSON form.
func (e *ResponseEnvelope) Binary() bool { return e.binary }
