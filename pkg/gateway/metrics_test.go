package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvotenet/dvote-go/pkg/gateway"
)

func TestMetrics_PoolInstrumentation(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	metrics := gateway.NewMetrics(registry)

	f1 := newFakeGateway(t)
	f2 := newFakeGateway(t)
	f2.handle("getSize", func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"size": 1}, true
	})

	pool, err := gateway.DiscoverPool(context.Background(), &gateway.StaticDiscovery{Configs: []gateway.Config{
		{DVote: f1.endpoint()},
		{DVote: f2.endpoint()},
	}}, gateway.DiscoveryParams{Timeout: 2 * time.Second}, nil, metrics)
	require.NoError(t, err)
	t.Cleanup(pool.Disconnect)

	f1.srv.Close()
	_, err = pool.SendRequest(context.Background(), newTestBody(t, "getSize"), nil)
	require.NoError(t, err)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["dvote_gateway_requests_total"])
	assert.True(t, names["dvote_gateway_rotations_total"])
	assert.True(t, names["dvote_gateway_pool_size"])
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	f := newFakeGateway(t)
	pool, err := gateway.DiscoverPool(context.Background(), &gateway.StaticDiscovery{Configs: []gateway.Config{
		{DVote: f.endpoint()},
	}}, gateway.DiscoveryParams{Timeout: 2 * time.Second}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Disconnect)

	_, err = pool.SendRequest(context.Background(), newTestBody(t, gateway.InfoMethod), nil)
	assert.NoError(t, err)
}
