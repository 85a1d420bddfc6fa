package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvotenet/dvote-go/pkg/log"
	"github.com/dvotenet/dvote-go/pkg/sign"
)

// maxRequestIDRetries bounds the correlation-ID regeneration loop. With
// 64-bit random IDs a collision is virtually impossible, so the bound only
// guards against a broken random source.
const maxRequestIDRetries = 5

// EndpointInfo is the immutable descriptor of one voting-protocol endpoint:
// its transport URI, the API categories it is believed to serve, and the
// optional key used to verify its responses. PubKey accepts either a full
// secp256k1 public key or a 20-byte Ethereum address; with an address the
// signer is recovered from each response signature and compared. The
// advertised API set is the only part refreshed after creation, as a side
// effect of a successful capability handshake.
type EndpointInfo struct {
	URI           string        `json:"uri" validate:"required,uri"`
	SupportedAPIs []APICategory `json:"apis,omitempty"`
	PublicKey     string        `json:"pubKey,omitempty"`
}

// GatewayInfo is the validated reply of the capability handshake.
type GatewayInfo struct {
	APIList []string `json:"apiList"`
	Health  int      `json:"health"`
}

// DVoteClient drives one voting-protocol endpoint over one Transport.
// It generates correlation IDs, enforces per-request timeouts, refuses
// methods outside the endpoint's advertised API set without any network
// round-trip, signs outgoing bodies, and verifies response authenticity
// against the endpoint's public key when one is configured.
//
// Many SendRequest calls may be outstanding concurrently; the client never
// parallelizes across endpoints, which is the Pool's job.
type DVoteClient struct {
	transport Transport
	uri       string
	pubHex    string
	pub       sign.PublicKey // nil when no key is configured
	addr      sign.Address   // verification by recovered address; nil when pub is set
	logger    log.Logger

	// mu guards the refreshable endpoint state below.
	mu     sync.RWMutex
	apis   []APICategory
	health int
}

// NewDVoteClient builds a client for the endpoint. The transport is chosen
// from the URI scheme; an endpoint public key, when present, must parse.
func NewDVoteClient(info EndpointInfo, logger log.Logger) (*DVoteClient, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	transport, err := NewTransport(info.URI, logger)
	if err != nil {
		return nil, err
	}

	var pub sign.PublicKey
	var addr sign.Address
	if info.PublicKey != "" {
		if a, addrErr := sign.NewEthereumAddressFromHex(info.PublicKey); addrErr == nil {
			addr = a
		} else {
			parsed, err := sign.NewEthereumPublicKeyFromHex(info.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("invalid gateway public key: %w", err)
			}
			pub = parsed
		}
	}

	return &DVoteClient{
		transport: transport,
		uri:       info.URI,
		pubHex:    info.PublicKey,
		pub:       pub,
		addr:      addr,
		logger:    logger.WithName("dvote").WithKV("uri", info.URI),
		apis:      append([]APICategory(nil), info.SupportedAPIs...),
	}, nil
}

// Connect establishes the underlying transport connection.
func (c *DVoteClient) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Close tears the connection down. Idempotent and safe when not connected.
func (c *DVoteClient) Close() error {
	return c.transport.Close()
}

// IsConnected reports transport liveness, waiting on any outstanding
// connection attempt.
func (c *DVoteClient) IsConnected() bool {
	return c.transport.IsConnected()
}

// URI returns the endpoint URI.
func (c *DVoteClient) URI() string { return c.uri }

// PublicKey returns the configured endpoint public key in hex form, or an
// empty string.
func (c *DVoteClient) PublicKey() string { return c.pubHex }

// Health returns the health score learned from the last successful
// capability handshake.
func (c *DVoteClient) Health() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// SupportedAPIs returns a copy of the advertised API categories.
func (c *DVoteClient) SupportedAPIs() []APICategory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]APICategory(nil), c.apis...)
}

// SupportsMethod reports whether the endpoint advertises the API category
// the method belongs to. The check is purely local. The capability
// handshake method itself always passes: it is how the advertised set is
// learned.
func (c *DVoteClient) SupportsMethod(method string) bool {
	if method == InfoMethod {
		return true
	}
	api, known := APIForMethod(method)
	if !known {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.apis {
		if a == api {
			return true
		}
	}
	return false
}

// SendRequest transmits one signed, correlated request and returns the
// verified response body.
//
// The request flow: refuse unsupported methods locally, attach a timestamp
// if absent, pick a correlation ID unique among the transport's pending
// requests (regenerated on collision), sign the canonical body when a
// signer is given, then await the correlated response within the context
// deadline (or the transport default when the caller set none). The
// response must echo the correlation ID, must verify against the endpoint
// public key when one is configured, and must carry ok=true; a falsy ok
// surfaces the remote message verbatim.
func (c *DVoteClient) SendRequest(ctx context.Context, body MessageBody, signer sign.Signer) (MessageBody, error) {
	if len(body) == 0 {
		return nil, errors.New("empty request body")
	}
	method := body.Method()
	if method == "" {
		return nil, errors.New("request body has no method")
	}
	if !c.SupportsMethod(method) {
		return nil, newCapabilityError(method)
	}

	body.ensureTimestamp()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.transport.DefaultTimeout())
		defer cancel()
	}

	var signature sign.Signature
	if signer != nil {
		var err error
		signature, err = sign.SignJSON(signer, body)
		if err != nil {
			return nil, fmt.Errorf("could not sign request: %w", err)
		}
	}

	var res *ResponseEnvelope
	var env *RequestEnvelope
	for attempt := 0; ; attempt++ {
		env = NewRequestEnvelope(generateRequestID(), body)
		env.Signature = signature

		var err error
		res, err = c.transport.Call(ctx, env)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateRequestID) && attempt < maxRequestIDRetries {
			continue // regenerate, never reject on collision
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newTimeoutError(method, err)
		}
		return nil, newTransportError(method, err)
	}

	if res.ID != env.ID || res.Response.CorrelationID() != env.ID {
		return nil, newProtocolError(method, nil,
			fmt.Sprintf("correlation mismatch: sent %s, received %s", env.ID, res.Response.CorrelationID()))
	}

	if c.pub != nil || c.addr != nil {
		if len(res.Signature) == 0 {
			return nil, newProtocolError(method, nil, "response signature missing")
		}
		var valid bool
		switch {
		case res.Binary() && c.pub != nil:
			valid = sign.VerifyBytes(res.Signature, c.pub, res.RawBody())
		case res.Binary():
			valid = sign.VerifyBytesAddress(res.Signature, c.addr, res.RawBody())
		case c.pub != nil:
			valid = sign.VerifyJSON(res.Signature, c.pub, res.Response)
		default:
			valid = sign.VerifyJSONAddress(res.Signature, c.addr, res.Response)
		}
		if !valid {
			return nil, newProtocolError(method, nil, "response signature verification failed")
		}
	}

	if !res.Response.OK() {
		return nil, newLogicalError(method, res.Response.Message())
	}
	return res.Response, nil
}

// GetInfo issues the capability handshake and validates the reply shape:
// apiList must be an array and health numeric. A malformed reply is a
// handshake failure, not a crash.
func (c *DVoteClient) GetInfo(ctx context.Context) (*GatewayInfo, error) {
	body := MessageBody{}
	if err := body.Set(methodField, InfoMethod); err != nil {
		return nil, err
	}
	res, err := c.SendRequest(ctx, body, nil)
	if err != nil {
		return nil, err
	}

	rawList, ok := res["apiList"]
	if !ok {
		return nil, fmt.Errorf("malformed handshake reply: apiList missing")
	}
	var apiList []string
	if err := json.Unmarshal(rawList, &apiList); err != nil {
		return nil, fmt.Errorf("malformed handshake reply: apiList is not an array: %w", err)
	}

	rawHealth, ok := res["health"]
	if !ok {
		return nil, fmt.Errorf("malformed handshake reply: health missing")
	}
	var health float64
	if err := json.Unmarshal(rawHealth, &health); err != nil {
		return nil, fmt.Errorf("malformed handshake reply: health is not numeric: %w", err)
	}

	return &GatewayInfo{APIList: apiList, Health: int(health)}, nil
}

// UpdateStatus runs the capability handshake and refreshes the endpoint's
// advertised API set and health score.
func (c *DVoteClient) UpdateStatus(ctx context.Context) error {
	info, err := c.GetInfo(ctx)
	if err != nil {
		return err
	}

	apis := make([]APICategory, 0, len(info.APIList))
	for _, name := range info.APIList {
		apis = append(apis, APICategory(name))
	}

	c.mu.Lock()
	c.apis = apis
	c.health = info.Health
	c.mu.Unlock()

	c.logger.Debug("gateway status updated", "apis", info.APIList, "health", info.Health)
	return nil
}

// CheckPing runs the HTTP liveness probe against the endpoint host without
// touching the transport connection.
func (c *DVoteClient) CheckPing(ctx context.Context, timeout time.Duration) error {
	return Ping(ctx, c.uri, timeout)
}

// IsUp checks the gateway bottom-up: the cheap HTTP liveness probe first,
// and only if that passes, the connection and the capability handshake.
// A failed probe means no handshake is attempted.
func (c *DVoteClient) IsUp(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.transport.DefaultTimeout()
	}
	if err := c.CheckPing(ctx, timeout); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.UpdateStatus(ctx)
}

// generateRequestID produces a 16-hex-char correlation ID from UUID
// randomness. Uniqueness among pending requests is enforced by the
// transport; collisions are regenerated by the caller.
func generateRequestID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}
