package gateway

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dvotenet/dvote-go/pkg/log"
	"github.com/dvotenet/dvote-go/pkg/sign"
)

// Client is the request surface shared by a single Gateway and a Pool.
// Callers written against it work unchanged whether they talk to one node
// or to a failover pool.
type Client interface {
	SendRequest(ctx context.Context, body MessageBody, signer sign.Signer) (MessageBody, error)
	IsConnected() bool
	SupportsMethod(method string) bool
}

var _ Client = (*Gateway)(nil)

// Config describes one Gateway: the voting-protocol endpoint and,
// optionally, the Web3 provider believed to belong to the same node. An
// empty Web3URI yields a voting-only gateway with no on-chain surface.
type Config struct {
	DVote       EndpointInfo
	Web3URI     string
	Network     NetworkID
	ENSRegistry string // hex override for test networks, empty for the default
}

// Gateway pairs one DVoteClient with one Web3Client representing one
// redundant network node. It is created by discovery or explicit
// configuration, connected, used, and discarded on pool rotation; it is
// never shared across pools.
type Gateway struct {
	dvote  *DVoteClient
	web3   *Web3Client
	logger log.Logger

	// mu guards the once-per-lifetime resolved registry addresses.
	mu       sync.Mutex
	resolved map[string]common.Address
}

// New builds a Gateway from its configuration. The Web3 side is dialed
// immediately when a URI is given; the voting side connects lazily.
func New(ctx context.Context, cfg Config, logger log.Logger) (*Gateway, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	dvote, err := NewDVoteClient(cfg.DVote, logger)
	if err != nil {
		return nil, err
	}

	var web3 *Web3Client
	if cfg.Web3URI != "" {
		var registry common.Address
		if cfg.ENSRegistry != "" {
			registry = common.HexToAddress(cfg.ENSRegistry)
		}
		web3, err = NewWeb3Client(ctx, cfg.Web3URI, cfg.Network, registry, logger)
		if err != nil {
			return nil, err
		}
	}

	return &Gateway{
		dvote:    dvote,
		web3:     web3,
		logger:   logger.WithName("gateway").WithKV("uri", cfg.DVote.URI),
		resolved: make(map[string]common.Address),
	}, nil
}

// Connect brings the node up, checking the Web3 side before the voting
// side. When the Web3 provider cannot resolve the protocol registries, the
// voting handshake is not attempted at all.
func (g *Gateway) Connect(ctx context.Context, timeout time.Duration) error {
	if g.web3 != nil {
		if err := g.web3.IsUp(ctx, timeout); err != nil {
			return err
		}
	}
	return g.dvote.IsUp(ctx, timeout)
}

// Disconnect tears down both sides. Safe to call repeatedly.
func (g *Gateway) Disconnect() {
	if err := g.dvote.Close(); err != nil {
		g.logger.Debug("dvote close error", "error", err)
	}
	if g.web3 != nil {
		g.web3.Close()
	}
}

// IsConnected reports the voting transport's liveness. The Web3 side is
// stateless between calls and is only validated by Connect.
func (g *Gateway) IsConnected() bool {
	return g.dvote.IsConnected()
}

// SendRequest forwards to the voting client.
func (g *Gateway) SendRequest(ctx context.Context, body MessageBody, signer sign.Signer) (MessageBody, error) {
	return g.dvote.SendRequest(ctx, body, signer)
}

// SupportsMethod forwards to the voting client's local capability check.
func (g *Gateway) SupportsMethod(method string) bool {
	return g.dvote.SupportsMethod(method)
}

// Pass-through accessors.

func (g *Gateway) SupportedAPIs() []APICategory { return g.dvote.SupportedAPIs() }
func (g *Gateway) PublicKey() string            { return g.dvote.PublicKey() }
func (g *Gateway) Health() int                  { return g.dvote.Health() }
func (g *Gateway) DVoteURI() string             { return g.dvote.URI() }

// Web3URI returns the provider URI, or an empty string for voting-only
// gateways.
func (g *Gateway) Web3URI() string {
	if g.web3 == nil {
		return ""
	}
	return g.web3.URI()
}

// ChainID returns the paired provider's chain ID.
func (g *Gateway) ChainID(ctx context.Context) (*big.Int, error) {
	if g.web3 == nil {
		return nil, ErrNoWeb3Client
	}
	return g.web3.ChainID(ctx)
}

// registryAddress resolves a registry domain, caching the result for the
// Gateway's lifetime. Registry contracts do not move while a node is in
// use, so one resolution per domain is enough.
func (g *Gateway) registryAddress(ctx context.Context, domain string) (common.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if addr, ok := g.resolved[domain]; ok {
		return addr, nil
	}
	addr, err := g.web3.ResolveName(ctx, domain)
	if err != nil {
		return common.Address{}, err
	}
	g.resolved[domain] = addr
	return addr, nil
}

// RegistryContract lazily resolves one of the protocol registry domains and
// binds the given ABI at the resolved address. The resolution happens once
// per Gateway lifetime; subsequent calls reuse the cached address.
func (g *Gateway) RegistryContract(ctx context.Context, domain string, contractABI abi.ABI) (*bind.BoundContract, error) {
	if g.web3 == nil {
		return nil, ErrNoWeb3Client
	}
	addr, err := g.registryAddress(ctx, domain)
	if err != nil {
		return nil, err
	}
	return g.web3.Attach(addr, contractABI), nil
}

// EntityRegistry binds the entity registry contract.
func (g *Gateway) EntityRegistry(ctx context.Context, contractABI abi.ABI) (*bind.BoundContract, error) {
	return g.RegistryContract(ctx, EntityRegistryDomain, contractABI)
}

// NamespaceRegistry binds the namespace registry contract.
func (g *Gateway) NamespaceRegistry(ctx context.Context, contractABI abi.ABI) (*bind.BoundContract, error) {
	return g.RegistryContract(ctx, NamespaceRegistryDomain, contractABI)
}

// ProcessRegistry binds the process registry contract.
func (g *Gateway) ProcessRegistry(ctx context.Context, contractABI abi.ABI) (*bind.BoundContract, error) {
	return g.RegistryContract(ctx, ProcessRegistryDomain, contractABI)
}
