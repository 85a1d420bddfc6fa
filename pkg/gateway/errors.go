package gateway

import (
	"errors"
	"fmt"
)

// Transport and lifecycle sentinel errors, wrapped with %w where more
// context is available.
var (
	// Connection errors
	ErrNotConnected     = errors.New("not connected to gateway")
	ErrDialingWebsocket = errors.New("error dialing websocket gateway")
	ErrReadingMessage   = errors.New("error reading message")

	// Request/response errors
	ErrNilRequest         = errors.New("nil request")
	ErrMarshalingRequest  = errors.New("error marshaling request")
	ErrSendingRequest     = errors.New("error sending request")
	ErrNoResponse         = errors.New("no response received")
	ErrDuplicateRequestID = errors.New("duplicate request id")

	// Pool errors
	ErrPoolEmpty          = errors.New("gateway pool is empty")
	ErrNoGatewayAvailable = errors.New("no gateway currently available")

	// ErrNoWeb3Client marks an on-chain operation against a voting-only
	// gateway with no paired Web3 provider.
	ErrNoWeb3Client = errors.New("gateway has no web3 provider configured")
)

// ErrorKind classifies a request failure so the pool's retry logic can
// dispatch on the kind instead of matching error message substrings.
type ErrorKind uint8

const (
	// KindCapability: the method is not in the advertised API set of the
	// gateway. Recovered by the pool through rotation.
	KindCapability ErrorKind = iota
	// KindProtocol: malformed envelope, correlation mismatch, or an invalid
	// or missing response signature. Never retried automatically, since it
	// points at a misbehaving or compromised gateway.
	KindProtocol
	// KindTransport: connection refused, reset, or another connectivity
	// failure. Safe to retry on a different gateway.
	KindTransport
	// KindTimeout: the per-request deadline fired. Safe to retry on a
	// different gateway.
	KindTimeout
	// KindLogical: the remote reported ok=false with an optional message.
	// Not retried, except for the replication-lag message class.
	KindLogical
	// KindSequential: a non-idempotent multi-step method failed; the whole
	// flow must be restarted by the caller, never silently replayed on a
	// different gateway.
	KindSequential
	// KindExhausted: no gateway available after bounded rediscovery.
	KindExhausted
)

// String returns a human-readable name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindCapability:
		return "capability"
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindLogical:
		return "logical"
	case KindSequential:
		return "sequential"
	case KindExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Error is the classified request failure carried through the call chain.
// Message holds the remote-supplied text verbatim for logical errors.
type Error struct {
	Kind    ErrorKind
	Method  string
	Message string
	err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s error on %q: %s", e.Kind, e.Method, e.Message)
	case e.err != nil:
		return fmt.Sprintf("%s error on %q: %v", e.Kind, e.Method, e.err)
	default:
		return fmt.Sprintf("%s error on %q", e.Kind, e.Method)
	}
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.err }

// KindOf extracts the classification of err. Unclassified errors report
// false.
func KindOf(err error) (ErrorKind, bool) {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind, true
	}
	return 0, false
}

func newCapabilityError(method string) *Error {
	return &Error{
		Kind:    KindCapability,
		Method:  method,
		Message: fmt.Sprintf("method %q not supported by the gateway", method),
	}
}

func newProtocolError(method string, cause error, message string) *Error {
	return &Error{Kind: KindProtocol, Method: method, Message: message, err: cause}
}

func newTransportError(method string, cause error) *Error {
	return &Error{Kind: KindTransport, Method: method, err: cause}
}

func newTimeoutError(method string, cause error) *Error {
	return &Error{Kind: KindTimeout, Method: method, Message: "request timed out", err: cause}
}

func newLogicalError(method, remoteMessage string) *Error {
	return &Error{Kind: KindLogical, Method: method, Message: remoteMessage}
}

func newSequentialError(method string, cause error) *Error {
	return &Error{
		Kind:    KindSequential,
		Method:  method,
		Message: "the multi-step operation failed and must be restarted",
		err:     cause,
	}
}

func newExhaustedError(cause error) *Error {
	return &Error{Kind: KindExhausted, err: cause, Message: ErrNoGatewayAvailable.Error()}
}
