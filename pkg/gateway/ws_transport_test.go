package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvotenet/dvote-go/pkg/gateway"
)

func newTestBody(t *testing.T, method string) gateway.MessageBody {
	t.Helper()
	body := gateway.MessageBody{}
	require.NoError(t, body.Set("method", method))
	return body
}

func connectWS(t *testing.T, f *fakeGateway) *gateway.WebsocketTransport {
	t.Helper()
	transport := gateway.NewWebsocketTransport(f.wsURI(), gateway.WebsocketTransportConfig{}, nil)
	require.NoError(t, transport.Connect(context.Background()))
	t.Cleanup(func() { _ = transport.Close() })
	return transport
}

func TestWebsocketTransport_Call(t *testing.T) {
	t.Parallel()

	f := newFakeGateway(t)
	f.handle("getSize", func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"size": 42}, true
	})
	transport := connectWS(t, f)

	res, err := transport.Call(context.Background(), gateway.NewRequestEnvelope("aabbccdd00112233", newTestBody(t, "getSize")))
	require.NoError(t, err)
	assert.Equal(t, "aabbccdd00112233", res.ID)
	assert.Equal(t, "aabbccdd00112233", res.Response.CorrelationID())
	assert.True(t, res.Response.OK())
	assert.False(t, res.Binary())
	assert.NotEmpty(t, res.RawBody())
}

func TestWebsocketTransport_NotConnected(t *testing.T) {
	t.Parallel()

	f := newFakeGateway(t)
	transport := gateway.NewWebsocketTransport(f.wsURI(), gateway.WebsocketTransportConfig{}, nil)

	_, err := transport.Call(context.Background(), gateway.NewRequestEnvelope("0011223344556677", newTestBody(t, "getSize")))
	assert.ErrorIs(t, err, gateway.ErrNotConnected)
	assert.False(t, transport.IsConnected())
}

func TestWebsocketTransport_ConnectIdempotent(t *testing.T) {
	t.Parallel()

	f := newFakeGateway(t)
	transport := connectWS(t, f)

	require.NoError(t, transport.Connect(context.Background()))
	assert.True(t, transport.IsConnected())

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())
	assert.False(t, transport.IsConnected())
}

func TestWebsocketTransport_DuplicateRequestID(t *testing.T) {
	t.Parallel()

	f := newFakeGateway(t)
	// A method with no handler never gets a reply, keeping the first
	// request pending while the second one collides with its ID.
	transport := connectWS(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	firstErr := make(chan error, 1)
	go func() {
		_, err := transport.Call(ctx, gateway.NewRequestEnvelope("ffffffff00000000", newTestBody(t, "dump")))
		firstErr <- err
	}()

	// Let the first call register its ID before colliding with it.
	time.Sleep(50 * time.Millisecond)
	_, err := transport.Call(context.Background(), gateway.NewRequestEnvelope("ffffffff00000000", newTestBody(t, "dump")))
	assert.ErrorIs(t, err, gateway.ErrDuplicateRequestID)

	cancel()
	assert.Error(t, <-firstErr)
}

func TestWebsocketTransport_Timeout(t *testing.T) {
	t.Parallel()

	f := newFakeGateway(t)
	// No handler for the method: the request stays pending until the
	// context deadline fires.
	transport := connectWS(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := transport.Call(ctx, gateway.NewRequestEnvelope("1122334455667788", newTestBody(t, "dumpPlain")))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebsocketTransport_StaleReaderSparesNewConnection(t *testing.T) {
	t.Parallel()

	f := newFakeGateway(t)
	f.handle("getSize", func(gateway.MessageBody) (map[string]any, bool) {
		return map[string]any{"size": 42}, true
	})
	transport := connectWS(t, f)

	// Kill the server end of the first connection and install a successor
	// right away, racing the dead connection's read loop teardown.
	f.srv.CloseClientConnections()
	require.NoError(t, transport.Close())
	require.NoError(t, transport.Connect(context.Background()))

	// Let the dead connection's read loop observe its error and finish. Its
	// teardown is scoped to its own connection and must not touch this one.
	time.Sleep(100 * time.Millisecond)
	require.True(t, transport.IsConnected())

	res, err := transport.Call(context.Background(), gateway.NewRequestEnvelope("55667788aabbccdd", newTestBody(t, "getSize")))
	require.NoError(t, err)
	assert.True(t, res.Response.OK())
}

func TestWebsocketTransport_CloseFailsPending(t *testing.T) {
	t.Parallel()

	f := newFakeGateway(t)
	transport := connectWS(t, f)

	done := make(chan error, 1)
	go func() {
		_, err := transport.Call(context.Background(), gateway.NewRequestEnvelope("8877665544332211", newTestBody(t, "importDump")))
		done <- err
	}()

	// Give the call a moment to register before tearing down.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, transport.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, gateway.ErrNotConnected)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call did not fail after Close")
	}
}

func TestWebsocketTransport_CloseErrorIsDeterministic(t *testing.T) {
	t.Parallel()

	f := newFakeGateway(t)
	transport := gateway.NewWebsocketTransport(f.wsURI(), gateway.WebsocketTransportConfig{}, nil)
	t.Cleanup(func() { _ = transport.Close() })

	// Every teardown of a pending call surfaces ErrNotConnected, never a
	// coin flip between the canceled connection and a drained sink.
	for i := 0; i < 10; i++ {
		require.NoError(t, transport.Connect(context.Background()))

		done := make(chan error, 1)
		go func() {
			_, err := transport.Call(context.Background(), gateway.NewRequestEnvelope("8877665544332211", newTestBody(t, "importDump")))
			done <- err
		}()

		time.Sleep(20 * time.Millisecond)
		require.NoError(t, transport.Close())

		select {
		case err := <-done:
			require.ErrorIs(t, err, gateway.ErrNotConnected, "iteration %d", i)
		case <-time.After(2 * time.Second):
			t.Fatal("pending call did not fail after Close")
		}
	}
}
