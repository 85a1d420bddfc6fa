package gateway

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/dvotenet/dvote-go/pkg/log"
	"github.com/dvotenet/dvote-go/pkg/sign"
)

// defaultWeb3Timeout bounds the registry-resolution liveness check when the
// caller gives no explicit timeout.
const defaultWeb3Timeout = 15 * time.Second

// Web3Client wraps exactly one JSON-RPC Ethereum provider endpoint. It is
// independent of DVoteClient except that a Gateway pairs one of each.
type Web3Client struct {
	uri      string
	network  NetworkID
	registry common.Address
	client   *ethclient.Client
	rpc      *gethrpc.Client
	logger   log.Logger

	mu      sync.Mutex
	chainID *big.Int
}

// NewWeb3Client dials the provider. The ENS registry defaults to the
// network's well-known deployment; a non-zero ensRegistry overrides it for
// test networks.
func NewWeb3Client(ctx context.Context, uri string, network NetworkID, ensRegistry common.Address, logger log.Logger) (*Web3Client, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if ensRegistry == (common.Address{}) {
		var err error
		ensRegistry, err = ENSRegistryForNetwork(network)
		if err != nil {
			return nil, err
		}
	}

	rpcClient, err := gethrpc.DialContext(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("could not dial web3 provider: %w", err)
	}

	return &Web3Client{
		uri:      uri,
		network:  network,
		registry: ensRegistry,
		client:   ethclient.NewClient(rpcClient),
		rpc:      rpcClient,
		logger:   logger.WithName("web3").WithKV("uri", uri),
	}, nil
}

// URI returns the provider endpoint URI.
func (w *Web3Client) URI() string { return w.uri }

// Network returns the network this client was configured for.
func (w *Web3Client) Network() NetworkID { return w.network }

// Close releases the underlying RPC connection.
func (w *Web3Client) Close() {
	w.client.Close()
}

// ChainID returns the provider's chain ID, fetched once and cached.
func (w *Web3Client) ChainID(ctx context.Context) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.chainID != nil {
		return new(big.Int).Set(w.chainID), nil
	}
	id, err := w.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch chain id: %w", err)
	}
	w.chainID = id
	return new(big.Int).Set(id), nil
}

// ResolveName resolves an ENS name through the configured registry.
func (w *Web3Client) ResolveName(ctx context.Context, name string) (common.Address, error) {
	return resolveENS(ctx, w.client, w.registry, name)
}

// IsUp probes the provider by resolving all three protocol registry
// domains. It succeeds only if every one resolves to a non-zero address
// within the timeout; a partial resolution is a failure.
func (w *Web3Client) IsUp(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultWeb3Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, domain := range []string{EntityRegistryDomain, NamespaceRegistryDomain, ProcessRegistryDomain} {
		addr, err := w.ResolveName(ctx, domain)
		if err != nil {
			return fmt.Errorf("web3 provider not ready: %w", err)
		}
		w.logger.Debug("registry resolved", "domain", domain, "address", addr.Hex())
	}
	return nil
}

// Attach binds a contract instance at a known address for read and write
// calls through this provider.
func (w *Web3Client) Attach(address common.Address, contractABI abi.ABI) *bind.BoundContract {
	return bind.NewBoundContract(address, contractABI, w.client, w.client, w.client)
}

// Deploy submits a contract-creation transaction signed by the given key
// and returns the future contract address together with the bound instance.
// It does not wait for the deployment to be mined.
func (w *Web3Client) Deploy(ctx context.Context, contractABI abi.ABI, bytecode []byte, signer *sign.EthereumSigner, params ...any) (common.Address, *bind.BoundContract, error) {
	if signer == nil {
		return common.Address{}, nil, fmt.Errorf("contract deployment requires a signer")
	}
	chainID, err := w.ChainID(ctx)
	if err != nil {
		return common.Address{}, nil, err
	}
	txOpts, err := bind.NewKeyedTransactorWithChainID(signer.ECDSAKey(), chainID)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("could not build transactor: %w", err)
	}
	txOpts.Context = ctx

	address, tx, contract, err := bind.DeployContract(txOpts, contractABI, bytecode, w.client, params...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("contract deployment failed: %w", err)
	}
	w.logger.Info("contract deployment submitted", "address", address.Hex(), "tx", tx.Hash().Hex())
	return address, contract, nil
}
