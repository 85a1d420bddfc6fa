package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvotenet/dvote-go/pkg/gateway"
)

func newTestPool(t *testing.T, fakes ...*fakeGateway) *gateway.Pool {
	t.Helper()
	configs := make([]gateway.Config, 0, len(fakes))
	for _, f := range fakes {
		configs = append(configs, gateway.Config{DVote: f.endpoint()})
	}
	pool, err := gateway.DiscoverPool(context.Background(), &gateway.StaticDiscovery{Configs: configs},
		gateway.DiscoveryParams{Timeout: 2 * time.Second}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Disconnect)
	return pool
}

func TestPool_SendRequest(t *testing.T) {
	t.Parallel()

	f := newFakeGateway(t)
	f.handle("getBlockHeight", func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"height": 1234}, true
	})
	pool := newTestPool(t, f)

	assert.True(t, pool.IsConnected())
	assert.True(t, pool.SupportsMethod("getBlockHeight"))
	assert.Equal(t, 1, pool.Size())

	res, err := pool.SendRequest(context.Background(), newTestBody(t, "getBlockHeight"), nil)
	require.NoError(t, err)
	assert.True(t, res.OK())
}

func TestPool_RotatesOnTransportFailure(t *testing.T) {
	t.Parallel()

	f1 := newFakeGateway(t)
	f2 := newFakeGateway(t)
	handler := func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"size": 3}, true
	}
	f1.handle("getSize", handler)
	f2.handle("getSize", handler)

	pool := newTestPool(t, f1, f2)
	f1.srv.Close()

	res, err := pool.SendRequest(context.Background(), newTestBody(t, "getSize"), nil)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 1, f2.callCount("getSize"))

	// The gateway that served the retry is now the active one.
	active, err := pool.ActiveGateway()
	require.NoError(t, err)
	assert.Equal(t, f2.wsURI(), active.DVoteURI())
}

func TestPool_RotatesOnMissingCapability(t *testing.T) {
	t.Parallel()

	f1 := newFakeGateway(t)
	// f1 only serves the file API, learned through its handshake.
	f1.handle(gateway.InfoMethod, func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"apiList": []string{"file"}, "health": 80}, true
	})
	f2 := newFakeGateway(t)
	f2.handle("getRoot", func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"root": "0xabc"}, true
	})

	pool := newTestPool(t, f1, f2)

	res, err := pool.SendRequest(context.Background(), newTestBody(t, "getRoot"), nil)
	require.NoError(t, err)
	assert.True(t, res.OK())
	// The unsupported method never reached the first gateway.
	assert.Zero(t, f1.callCount("getRoot"))
	assert.Equal(t, 1, f2.callCount("getRoot"))
}

func TestPool_SequentialMethodNeverRetries(t *testing.T) {
	t.Parallel()

	f1 := newFakeGateway(t)
	f1.handle("addClaimBulk", func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"message": "leaf insertion failed"}, false
	})
	f2 := newFakeGateway(t)

	pool := newTestPool(t, f1, f2)

	_, err := pool.SendRequest(context.Background(), newTestBody(t, "addClaimBulk"), nil)
	requireKind(t, err, gateway.KindSequential)
	assert.Contains(t, err.Error(), "must be restarted")
	assert.Equal(t, 1, f1.callCount("addClaimBulk"))
	assert.Zero(t, f2.callCount("addClaimBulk"))
}

func TestPool_SkipMethodPropagatesImmediately(t *testing.T) {
	t.Parallel()

	f1 := newFakeGateway(t)
	f1.handle("getRoot", func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"message": "root not found"}, false
	})
	f2 := newFakeGateway(t)

	pool := newTestPool(t, f1, f2)

	_, err := pool.SendRequest(context.Background(), newTestBody(t, "getRoot"), nil)
	requireKind(t, err, gateway.KindLogical)
	assert.Equal(t, 1, f1.callCount("getRoot"))
	assert.Zero(t, f2.callCount("getRoot"))
}

func TestPool_RetriesReplicationLag(t *testing.T) {
	t.Parallel()

	f1 := newFakeGateway(t)
	f1.handle("getSize", func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"message": "censusId not valid or not found"}, false
	})
	f2 := newFakeGateway(t)
	f2.handle("getSize", func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"size": 9}, true
	})

	pool := newTestPool(t, f1, f2)

	res, err := pool.SendRequest(context.Background(), newTestBody(t, "getSize"), nil)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 1, f1.callCount("getSize"))
	assert.Equal(t, 1, f2.callCount("getSize"))
}

func TestPool_OtherLogicalErrorsPropagate(t *testing.T) {
	t.Parallel()

	f1 := newFakeGateway(t)
	f1.handle("getSize", func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"message": "internal error"}, false
	})
	f2 := newFakeGateway(t)

	pool := newTestPool(t, f1, f2)

	_, err := pool.SendRequest(context.Background(), newTestBody(t, "getSize"), nil)
	requireKind(t, err, gateway.KindLogical)
	assert.Zero(t, f2.callCount("getSize"))
}

// scriptedDiscovery serves a different configuration set on each call and
// records how many times the pool asked for one. Calls past the last round
// keep serving the final set.
type scriptedDiscovery struct {
	mu     sync.Mutex
	calls  int
	rounds [][]gateway.Config
}

func (d *scriptedDiscovery) Discover(ctx context.Context, params gateway.DiscoveryParams) ([]*gateway.Gateway, error) {
	d.mu.Lock()
	idx := d.calls
	d.calls++
	d.mu.Unlock()
	if idx >= len(d.rounds) {
		idx = len(d.rounds) - 1
	}
	static := &gateway.StaticDiscovery{Configs: d.rounds[idx]}
	return static.Discover(ctx, params)
}

func (d *scriptedDiscovery) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestPool_RefreshReplacesComposition(t *testing.T) {
	t.Parallel()

	f1 := newFakeGateway(t)
	f2 := newFakeGateway(t)
	f2.handle("getSize", func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"size": 5}, true
	})

	disc := &scriptedDiscovery{rounds: [][]gateway.Config{
		{{DVote: f1.endpoint()}},
		{{DVote: f2.endpoint()}},
	}}
	pool, err := gateway.DiscoverPool(context.Background(), disc,
		gateway.DiscoveryParams{Timeout: 2 * time.Second}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Disconnect)
	require.Equal(t, 1, disc.callCount())

	// Kill the only gateway. Rotation cannot recover a one-element pool, so
	// the failure must escalate to rediscovery.
	f1.srv.Close()

	res, err := pool.SendRequest(context.Background(), newTestBody(t, "getSize"), nil)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 2, disc.callCount())
	assert.Equal(t, 1, f2.callCount("getSize"))

	// The rebuilt pool is a different set of gateways, not a permutation of
	// the old one.
	active, err := pool.ActiveGateway()
	require.NoError(t, err)
	assert.Equal(t, f2.wsURI(), active.DVoteURI())
	assert.NotEqual(t, f1.wsURI(), active.DVoteURI())
}

func TestPool_FailsClosedWhenExhausted(t *testing.T) {
	t.Parallel()

	f := newFakeGateway(t)
	pool := newTestPool(t, f)
	f.srv.Close()

	_, err := pool.SendRequest(context.Background(), newTestBody(t, "getSize"), nil)
	requireKind(t, err, gateway.KindExhausted)
	assert.ErrorIs(t, err, gateway.ErrNoGatewayAvailable)
}

func TestPool_ActiveGatewayEmptyPool(t *testing.T) {
	t.Parallel()

	f := newFakeGateway(t)
	pool := newTestPool(t, f)
	pool.Disconnect()

	_, err := pool.ActiveGateway()
	assert.ErrorIs(t, err, gateway.ErrPoolEmpty)
	assert.False(t, pool.IsConnected())

	_, err = pool.SendRequest(context.Background(), newTestBody(t, "getSize"), nil)
	assert.ErrorIs(t, err, gateway.ErrPoolEmpty)
}
