package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// NetworkID identifies the Ethereum network a Web3 endpoint serves.
type NetworkID string

const (
	NetworkMainnet NetworkID = "mainnet"
	NetworkGoerli  NetworkID = "goerli"
	NetworkGnosis  NetworkID = "xdai"
)

// The voting protocol publishes its registry contracts under fixed ENS
// names so that clients never hardcode contract addresses.
const (
	EntityRegistryDomain    = "entities.voc.eth"
	NamespaceRegistryDomain = "namespaces.voc.eth"
	ProcessRegistryDomain   = "processes.voc.eth"
)

// ensRegistryByNetwork maps each supported network to its ENS registry
// contract. Mainnet and Goerli share the canonical singleton registry;
// Gnosis carries a protocol-operated deployment.
var ensRegistryByNetwork = map[NetworkID]common.Address{
	NetworkMainnet: common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"),
	NetworkGoerli:  common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"),
	NetworkGnosis:  common.HexToAddress("0x25b43F28DDBbC23B4A63F1DA19e37d281895b4c2"),
}

const ensRegistryABI = `[{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"resolver","outputs":[{"name":"","type":"address"}],"payable":false,"stateMutability":"view","type":"function"}]`

const ensResolverABI = `[{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"addr","outputs":[{"name":"","type":"address"}],"payable":false,"stateMutability":"view","type":"function"}]`

var (
	parseABIOnce      sync.Once
	parsedRegistryABI abi.ABI
	parsedResolverABI abi.ABI
	parseABIErr       error
)

func ensABIs() (abi.ABI, abi.ABI, error) {
	parseABIOnce.Do(func() {
		parsedRegistryABI, parseABIErr = abi.JSON(strings.NewReader(ensRegistryABI))
		if parseABIErr != nil {
			return
		}
		parsedResolverABI, parseABIErr = abi.JSON(strings.NewReader(ensResolverABI))
	})
	return parsedRegistryABI, parsedResolverABI, parseABIErr
}

// NameHash computes the EIP-137 hash of an ENS name: the zero node for the
// empty name, otherwise keccak256(nameHash(parent) || keccak256(label))
// applied label by label from the TLD inward.
func NameHash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := ethcrypto.Keccak256([]byte(labels[i]))
		node = common.BytesToHash(ethcrypto.Keccak256(node.Bytes(), labelHash))
	}
	return node
}

// ENSRegistryForNetwork returns the default ENS registry contract for the
// network, or an error for networks the protocol does not operate on.
func ENSRegistryForNetwork(network NetworkID) (common.Address, error) {
	addr, ok := ensRegistryByNetwork[network]
	if !ok {
		return common.Address{}, fmt.Errorf("no ENS registry known for network %q", network)
	}
	return addr, nil
}

// resolveENS resolves an ENS name to an address through the registry:
// registry.resolver(node) then resolver.addr(node). A zero resolver or a
// zero resolved address is an error, never silently returned.
func resolveENS(ctx context.Context, caller bind.ContractCaller, registry common.Address, name string) (common.Address, error) {
	registryABI, resolverABI, err := ensABIs()
	if err != nil {
		return common.Address{}, err
	}
	node := NameHash(name)
	opts := &bind.CallOpts{Context: ctx}

	registryContract := bind.NewBoundContract(registry, registryABI, caller, nil, nil)
	var out []any
	if err := registryContract.Call(opts, &out, "resolver", node); err != nil {
		return common.Address{}, fmt.Errorf("could not query resolver for %s: %w", name, err)
	}
	resolverAddr := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if resolverAddr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no resolver registered for %s", name)
	}

	resolverContract := bind.NewBoundContract(resolverAddr, resolverABI, caller, nil, nil)
	out = out[:0]
	if err := resolverContract.Call(opts, &out, "addr", node); err != nil {
		return common.Address{}, fmt.Errorf("could not resolve %s: %w", name, err)
	}
	resolved := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if resolved == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s resolves to the zero address", name)
	}
	return resolved, nil
}
