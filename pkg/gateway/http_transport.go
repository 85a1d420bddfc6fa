package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dvotenet/dvote-go/pkg/log"
)

// HTTPTransportConfig contains tuning options for the HTTP transport.
type HTTPTransportConfig struct {
	// RequestTimeout is the per-request deadline applied when the caller
	// provides none. HTTP gateways answer within a single round-trip, so
	// the default is tighter than the WebSocket one.
	RequestTimeout time.Duration
	// Client overrides the http.Client used for requests.
	Client *http.Client
}

// DefaultHTTPTransportConfig provides the defaults used by gateways
// reached over http:// or https:// URIs.
var DefaultHTTPTransportConfig = HTTPTransportConfig{
	RequestTimeout: 15 * time.Second,
}

// HTTPTransport implements Transport by POSTing each envelope to the
// gateway URI. There is no persistent socket: Connect only marks the
// transport usable, and correlation degenerates to the single round-trip.
type HTTPTransport struct {
	uri    string
	cfg    HTTPTransportConfig
	client *http.Client
	logger log.Logger

	mu        sync.Mutex
	connected bool
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport for the given http:// or https://
// URI. Zero config fields fall back to the defaults.
func NewHTTPTransport(uri string, cfg HTTPTransportConfig, logger log.Logger) *HTTPTransport {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultHTTPTransportConfig.RequestTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &HTTPTransport{
		uri:    uri,
		cfg:    cfg,
		client: client,
		logger: logger.WithName("http-transport").WithKV("uri", uri),
	}
}

// URI returns the remote endpoint URI.
func (t *HTTPTransport) URI() string { return t.uri }

// DefaultTimeout returns the configured per-request deadline.
func (t *HTTPTransport) DefaultTimeout() time.Duration { return t.cfg.RequestTimeout }

// Connect marks the transport usable. No socket is held open.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

// Close marks the transport unusable. Idempotent.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.client.CloseIdleConnections()
	return nil
}

// IsConnected reports whether Connect has been called without a later Close.
func (t *HTTPTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Call POSTs the envelope and decodes the response body as a
// ResponseEnvelope. Octet-stream replies are flagged as binary so the
// byte-verification path is taken.
func (t *HTTPTransport) Call(ctx context.Context, req *RequestEnvelope) (*ResponseEnvelope, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if !t.IsConnected() {
		return nil, ErrNotConnected
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarshalingRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.uri, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarshalingRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpRes, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w for request %s: %w", ErrNoResponse, req.ID, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrSendingRequest, err)
	}
	defer httpRes.Body.Close()

	if httpRes.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway replied %s", ErrSendingRequest, httpRes.Status)
	}

	resBytes, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadingMessage, err)
	}

	var env ResponseEnvelope
	if err := json.Unmarshal(resBytes, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadingMessage, err)
	}
	env.binary = strings.HasPrefix(httpRes.Header.Get("Content-Type"), "application/octet-stream")
	return &env, nil
}
