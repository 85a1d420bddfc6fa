package gateway

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dvotenet/dvote-go/pkg/log"
)

// Transport owns one logical connection to one remote gateway endpoint.
// It moves envelopes; it knows nothing about capability gating, signing
// or retries, which belong to DVoteClient and Pool respectively.
//
// Call registers the request ID in the transport's pending set for the
// duration of the call. At most one in-flight request may use a given ID:
// a second registration fails with ErrDuplicateRequestID and the caller
// regenerates the ID.
type Transport interface {
	// Connect establishes the connection. It is a no-op when already
	// connected. A concurrent connection attempt blocks IsConnected and
	// Call until it settles.
	Connect(ctx context.Context) error
	// Close tears the connection down. Idempotent and safe to call when
	// not connected.
	Close() error
	// IsConnected reports whether the transport currently holds a live
	// connection.
	IsConnected() bool
	// Call transmits the envelope and waits for the response correlated to
	// req.ID, the context deadline, or connection closure, whichever is
	// first. Responses arriving after Call returned are dropped.
	Call(ctx context.Context, req *RequestEnvelope) (*ResponseEnvelope, error)
	// DefaultTimeout is the per-request deadline applied when the caller
	// provides none.
	DefaultTimeout() time.Duration
	// URI returns the remote endpoint URI.
	URI() string
}

// NewTransport builds the Transport matching the URI scheme: ws/wss yields
// a WebsocketTransport, http/https an HTTPTransport.
func NewTransport(uri string, logger log.Logger) (Transport, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway URI %q: %w", uri, err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
		return NewWebsocketTransport(uri, DefaultWebsocketTransportConfig, logger), nil
	case "http", "https":
		return NewHTTPTransport(uri, DefaultHTTPTransportConfig, logger), nil
	default:
		return nil, fmt.Errorf("unsupported gateway URI scheme %q", parsed.Scheme)
	}
}
