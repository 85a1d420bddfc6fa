package gateway_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvotenet/dvote-go/pkg/gateway"
)

func TestNameHash(t *testing.T) {
	t.Parallel()

	// Reference vectors from EIP-137.
	vectors := map[string]string{
		"":        "0x0000000000000000000000000000000000000000000000000000000000000000",
		"eth":     "0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae",
		"foo.eth": "0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f",
	}
	for name, expected := range vectors {
		assert.Equal(t, expected, gateway.NameHash(name).Hex(), "name %q", name)
	}
}

func TestENSRegistryForNetwork(t *testing.T) {
	t.Parallel()

	for _, network := range []gateway.NetworkID{gateway.NetworkMainnet, gateway.NetworkGoerli, gateway.NetworkGnosis} {
		addr, err := gateway.ENSRegistryForNetwork(network)
		require.NoError(t, err)
		assert.NotEqual(t, "0x0000000000000000000000000000000000000000", addr.Hex())
	}

	_, err := gateway.ENSRegistryForNetwork("no-such-network")
	assert.Error(t, err)
}
