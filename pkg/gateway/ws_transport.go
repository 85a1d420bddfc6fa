package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dvotenet/dvote-go/pkg/log"
)

// WebsocketTransportConfig contains tuning options for the WebSocket
// transport.
type WebsocketTransportConfig struct {
	// HandshakeTimeout bounds the WebSocket opening handshake.
	HandshakeTimeout time.Duration
	// RequestTimeout is the per-request deadline applied when the caller
	// provides none.
	RequestTimeout time.Duration
	// KeepaliveInterval is how often a control ping frame is written to
	// keep intermediaries from dropping an idle connection. Zero disables
	// the keepalive loop.
	KeepaliveInterval time.Duration
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
}

// DefaultWebsocketTransportConfig provides the defaults used by gateways
// reached over ws:// or wss:// URIs.
var DefaultWebsocketTransportConfig = WebsocketTransportConfig{
	HandshakeTimeout:  5 * time.Second,
	RequestTimeout:    50 * time.Second,
	KeepaliveInterval: 30 * time.Second,
	WriteTimeout:      5 * time.Second,
}

// WebsocketTransport implements Transport over one gorilla WebSocket
// connection. Many logical requests may be in flight concurrently; incoming
// envelopes are routed to their pending request by correlation ID in O(1).
type WebsocketTransport struct {
	uri    string
	cfg    WebsocketTransportConfig
	logger log.Logger

	// mu guards the connection lifecycle and the pending table. Connect
	// holds it for the whole dial, so IsConnected and Call wait on an
	// outstanding attempt instead of racing it.
	mu         sync.Mutex
	conn       *websocket.Conn
	connCtx    context.Context
	connCancel context.CancelFunc
	pending    map[string]chan *ResponseEnvelope

	// writeMu serializes frame writes; gorilla connections support one
	// concurrent writer only.
	writeMu sync.Mutex
}

var _ Transport = (*WebsocketTransport)(nil)

// NewWebsocketTransport creates a transport for the given ws:// or wss://
// URI. Zero config fields fall back to the defaults.
func NewWebsocketTransport(uri string, cfg WebsocketTransportConfig, logger log.Logger) *WebsocketTransport {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultWebsocketTransportConfig.HandshakeTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultWebsocketTransportConfig.RequestTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWebsocketTransportConfig.WriteTimeout
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &WebsocketTransport{
		uri:     uri,
		cfg:     cfg,
		logger:  logger.WithName("ws-transport").WithKV("uri", uri),
		pending: make(map[string]chan *ResponseEnvelope),
	}
}

// URI returns the remote endpoint URI.
func (t *WebsocketTransport) URI() string { return t.uri }

// DefaultTimeout returns the configured per-request deadline.
func (t *WebsocketTransport) DefaultTimeout() time.Duration { return t.cfg.RequestTimeout }

// Connect dials the gateway and starts the read and keepalive loops.
// Calling Connect on a live transport is a no-op.
func (t *WebsocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connLocked() {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  t.cfg.HandshakeTimeout,
		EnableCompression: true,
	}
	conn, _, err := dialer.DialContext(ctx, t.uri, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDialingWebsocket, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	t.conn = conn
	t.connCtx = connCtx
	t.connCancel = cancel
	t.pending = make(map[string]chan *ResponseEnvelope)

	go t.readMessages(connCtx, conn)
	if t.cfg.KeepaliveInterval > 0 {
		go t.keepalive(connCtx, conn)
	}
	return nil
}

// connLocked reports liveness; the caller must hold mu.
func (t *WebsocketTransport) connLocked() bool {
	return t.conn != nil && t.connCtx.Err() == nil
}

// IsConnected reports whether the transport holds a live connection.
// It waits for any outstanding connection attempt to settle.
func (t *WebsocketTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connLocked()
}

// Close tears down the connection and fails all pending requests.
// Idempotent; safe when not connected.
func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *WebsocketTransport) closeLocked() error {
	if t.conn == nil {
		return nil
	}
	// Canceling connCtx releases every waiting Call with ErrNotConnected.
	// The sinks are left open: closing them would make the canceled context
	// and the closed channel simultaneously ready in Call's select, turning
	// the returned error nondeterministic.
	t.connCancel()
	err := t.conn.Close()
	t.pending = make(map[string]chan *ResponseEnvelope)
	t.conn = nil
	t.connCtx = nil
	t.connCancel = nil
	return err
}

// closeConn tears the transport down only while conn is still the live
// connection. Read and keepalive goroutines outlive Close/Connect cycles
// briefly; scoping their teardown to their own connection keeps a stale
// goroutine from destroying the successor connection.
func (t *WebsocketTransport) closeConn(conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != conn {
		return
	}
	_ = t.closeLocked()
}

// Call transmits the envelope and waits for the correlated response, the
// context deadline, or connection closure. The request ID stays registered
// in the pending table for exactly the duration of the call; a response
// arriving afterwards finds no sink and is dropped.
func (t *WebsocketTransport) Call(ctx context.Context, req *RequestEnvelope) (*ResponseEnvelope, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	// Register the pending request and snapshot the connection atomically.
	t.mu.Lock()
	if !t.connLocked() {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}
	if _, exists := t.pending[req.ID]; exists {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequestID, req.ID)
	}
	conn := t.conn
	connCtx := t.connCtx
	sink := make(chan *ResponseEnvelope, 1) // buffered so the read loop never blocks
	t.pending[req.ID] = sink
	t.mu.Unlock()

	unregister := func() {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		unregister()
		return nil, fmt.Errorf("%w: %w", ErrMarshalingRequest, err)
	}

	t.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, reqJSON)
	t.writeMu.Unlock()
	if err != nil {
		unregister()
		return nil, fmt.Errorf("%w: %w", ErrSendingRequest, err)
	}

	var res *ResponseEnvelope
	var resOK bool
	select {
	case <-ctx.Done():
		unregister()
		return nil, fmt.Errorf("%w for request %s: %w", ErrNoResponse, req.ID, ctx.Err())
	case <-connCtx.Done():
		unregister()
		return nil, fmt.Errorf("%w: connection closed while waiting for request %s", ErrNotConnected, req.ID)
	case res, resOK = <-sink:
	}
	unregister()

	if !resOK || res == nil {
		return nil, fmt.Errorf("%w for request %s", ErrNoResponse, req.ID)
	}
	return res, nil
}

// readMessages reads frames until the connection dies, routing each
// envelope to the pending request registered under its correlation ID.
// Envelopes without a pending sink are dropped.
func (t *WebsocketTransport) readMessages(ctx context.Context, conn *websocket.Conn) {
	for {
		msgType, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				if _, isNetErr := err.(net.Error); isNetErr {
					t.logger.Error("websocket connection lost", "error", err)
				} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					t.logger.Error("websocket closed unexpectedly", "error", err)
				}
				t.closeConn(conn)
			}
			return
		}

		var env ResponseEnvelope
		if err := json.Unmarshal(messageBytes, &env); err != nil {
			t.logger.Warn("malformed message", "error", err)
			continue
		}
		env.binary = msgType == websocket.BinaryMessage

		t.mu.Lock()
		sink, exists := t.pending[env.ID]
		if exists {
			// The sink is buffered and owned by exactly one waiter, so
			// delivering under the lock cannot block.
			sink <- &env
			delete(t.pending, env.ID)
		}
		t.mu.Unlock()

		if !exists {
			// Late or unsolicited response; the requester is gone.
			t.logger.Debug("dropping uncorrelated response", "id", env.ID)
		}
	}
}

// keepalive writes control ping frames at the configured interval.
func (t *WebsocketTransport) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.cfg.WriteTimeout))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Warn("keepalive ping failed", "error", err)
				t.closeConn(conn)
				return
			}
		}
	}
}
