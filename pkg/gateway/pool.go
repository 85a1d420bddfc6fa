package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/dvotenet/dvote-go/pkg/log"
	"github.com/dvotenet/dvote-go/pkg/sign"
)

// maxPoolRefreshes bounds full rediscovery. Once exceeded, the pool fails
// closed instead of refreshing forever.
const maxPoolRefreshes = 3

// sequentialMethods are multi-step census mutations whose side effects are
// not idempotent. A failure mid-sequence must surface as fatal; silently
// replaying on a different gateway could duplicate or diverge the mutation.
var sequentialMethods = map[string]bool{
	"addClaim":      true,
	"addClaimBulk":  true,
	"publishCensus": true,
}

// skipRetryMethods fail meaningfully rather than transiently. Their errors
// propagate immediately without rotation.
var skipRetryMethods = map[string]bool{
	"getRoot": true,
}

// retryableRemoteMessages lists ok=false messages that indicate replication
// lag rather than a real failure: the resource may already exist on another
// gateway. This is a policy table, not protocol; entries are matched on the
// whole remote message.
var retryableRemoteMessages = map[string]bool{
	"censusId not valid or not found": true,
}

var _ Client = (*Pool)(nil)

// Pool serves requests through a ranked list of gateways with automatic
// failover. The head of the list is the active gateway; transient failures
// rotate it to the tail, and when the whole list looks unhealthy the pool
// rebuilds itself through its Discovery.
type Pool struct {
	discovery Discovery
	params    DiscoveryParams
	logger    log.Logger
	metrics   *Metrics

	// mu makes the gateway list and counters a single-writer structure.
	// The list is mutated from the request-failure path of concurrent
	// callers, never from outside.
	mu           sync.Mutex
	gateways     []*Gateway
	errorCount   int
	refreshCount int
}

// DiscoverPool runs discovery, builds the pool from the ranked result, and
// connects the head. Any failure here is fatal to pool creation.
func DiscoverPool(ctx context.Context, discovery Discovery, params DiscoveryParams, logger log.Logger, metrics *Metrics) (*Pool, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	gateways, err := discovery.Discover(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(gateways) == 0 {
		return nil, ErrPoolEmpty
	}
	if err := gateways[0].Connect(ctx, params.Timeout); err != nil {
		return nil, err
	}

	p := &Pool{
		discovery: discovery,
		params:    params,
		logger:    logger.WithName("pool"),
		metrics:   metrics,
		gateways:  gateways,
	}
	metrics.setPoolSize(len(gateways))
	return p, nil
}

// ActiveGateway returns the pool head. The emptiness check runs on every
// access rather than being cached, since the list shrinks during refresh.
func (p *Pool) ActiveGateway() (*Gateway, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.gateways) == 0 {
		return nil, ErrPoolEmpty
	}
	return p.gateways[0], nil
}

// Size returns the number of gateways currently held.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.gateways)
}

// IsConnected reports whether the active gateway's transport is live.
func (p *Pool) IsConnected() bool {
	gw, err := p.ActiveGateway()
	if err != nil {
		return false
	}
	return gw.IsConnected()
}

// SupportsMethod reports the active gateway's capability for the method.
func (p *Pool) SupportsMethod(method string) bool {
	gw, err := p.ActiveGateway()
	if err != nil {
		return false
	}
	return gw.SupportsMethod(method)
}

// SendRequest sends one logical request with failover.
//
// Each attempt re-reads the active gateway, since rotation may have changed
// it between attempts. An active gateway that does not support the method
// is rotated away without surfacing an error. On failure the error is
// classified against three disjoint policies, in order: skip-listed methods
// propagate immediately, sequential methods propagate as fatal restart
// errors, and transient failures rotate and retry. Everything else
// propagates unchanged.
func (p *Pool) SendRequest(ctx context.Context, body MessageBody, signer sign.Signer) (MessageBody, error) {
	method := body.Method()
	for {
		gw, err := p.ActiveGateway()
		if err != nil {
			p.metrics.observeRequest(method, "empty_pool")
			return nil, err
		}

		if method != "" && !gw.SupportsMethod(method) {
			p.logger.Debug("active gateway lacks method, rotating", "method", method, "uri", gw.DVoteURI())
			if err := p.demote(ctx); err != nil {
				p.metrics.observeRequest(method, "exhausted")
				return nil, err
			}
			continue
		}

		res, err := gw.SendRequest(ctx, body, signer)
		if err == nil {
			p.mu.Lock()
			p.errorCount = 0
			p.mu.Unlock()
			p.metrics.observeRequest(method, "ok")
			return res, nil
		}

		if skipRetryMethods[method] {
			p.metrics.observeRequest(method, "failed")
			return nil, err
		}
		if sequentialMethods[method] {
			p.metrics.observeRequest(method, "sequential_abort")
			return nil, newSequentialError(method, err)
		}
		if isTransient(err) {
			p.logger.Info("transient gateway failure, rotating", "method", method, "uri", gw.DVoteURI(), "error", err)
			if derr := p.demote(ctx); derr != nil {
				p.metrics.observeRequest(method, "exhausted")
				return nil, derr
			}
			continue
		}

		p.metrics.observeRequest(method, "failed")
		return nil, err
	}
}

// Disconnect tears down every gateway and empties the pool.
func (p *Pool) Disconnect() {
	p.mu.Lock()
	gateways := p.gateways
	p.gateways = nil
	p.mu.Unlock()
	for _, gw := range gateways {
		gw.Disconnect()
	}
	p.metrics.setPoolSize(0)
}

// isTransient reports whether the classified failure is safe to replay
// against a different gateway. Capability, connectivity, and timeout
// failures qualify; a logical failure qualifies only when the remote
// message marks replication lag.
func isTransient(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case KindCapability, KindTransport, KindTimeout:
		return true
	case KindLogical:
		var gwErr *Error
		if errors.As(err, &gwErr) {
			return retryableRemoteMessages[gwErr.Message]
		}
	}
	return false
}

// demote counts one failure against the pool and rotates or refreshes.
func (p *Pool) demote(ctx context.Context) error {
	p.mu.Lock()
	p.errorCount++
	p.mu.Unlock()
	return p.shift(ctx)
}

// shift demotes the head to the tail and connects the new head. When the
// accumulated error count exceeds the pool size, the whole pool is judged
// unhealthy and a full refresh runs instead. A new head that fails to
// connect counts as another error and shifts again; the errorCount check
// bounds the recursion.
func (p *Pool) shift(ctx context.Context) error {
	p.mu.Lock()
	if p.errorCount > len(p.gateways) {
		p.mu.Unlock()
		return p.refresh(ctx)
	}
	if len(p.gateways) == 0 {
		p.mu.Unlock()
		return ErrPoolEmpty
	}
	head := p.gateways[0]
	p.gateways = append(p.gateways[1:], head)
	next := p.gateways[0]
	p.mu.Unlock()

	p.metrics.observeRotation()
	// In a single-gateway pool the head rotates onto itself and gets a
	// fresh connection attempt like any other new head.
	head.Disconnect()

	if err := next.Connect(ctx, p.params.Timeout); err != nil {
		p.logger.Warn("new head failed to connect, shifting again", "uri", next.DVoteURI(), "error", err)
		return p.demote(ctx)
	}
	return nil
}

// refresh reruns discovery and replaces the pool contents, resetting the
// error count. After maxPoolRefreshes the pool fails closed.
func (p *Pool) refresh(ctx context.Context) error {
	p.mu.Lock()
	p.refreshCount++
	if p.refreshCount > maxPoolRefreshes {
		p.mu.Unlock()
		return newExhaustedError(ErrNoGatewayAvailable)
	}
	old := p.gateways
	p.gateways = nil
	p.mu.Unlock()

	p.metrics.observeRefresh()
	for _, gw := range old {
		gw.Disconnect()
	}

	gateways, err := p.discovery.Discover(ctx, p.params)
	if err != nil {
		p.metrics.setPoolSize(0)
		return newExhaustedError(err)
	}

	p.mu.Lock()
	p.gateways = gateways
	p.errorCount = 0
	refreshes := p.refreshCount
	p.mu.Unlock()
	p.metrics.setPoolSize(len(gateways))

	p.logger.Info("pool refreshed", "size", len(gateways), "refreshes", refreshes)

	if len(gateways) == 0 {
		return ErrPoolEmpty
	}
	if err := gateways[0].Connect(ctx, p.params.Timeout); err != nil {
		return p.demote(ctx)
	}
	return nil
}
