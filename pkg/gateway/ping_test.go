package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvotenet/dvote-go/pkg/gateway"
)

func TestPing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ping" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("pong"))
	}))
	t.Cleanup(srv.Close)

	// The probe only cares about the host part; the scheme may be ws://.
	wsURI := "ws" + strings.TrimPrefix(srv.URL, "http")
	assert.NoError(t, gateway.Ping(context.Background(), wsURI, 2*time.Second))
}

func TestPing_WrongBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	t.Cleanup(srv.Close)

	err := gateway.Ping(context.Background(), srv.URL, 2*time.Second)
	require.Error(t, err)
}

func TestPing_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := gateway.Ping(context.Background(), srv.URL, 1*time.Second)
	require.Error(t, err)
}

func TestPing_InvalidURI(t *testing.T) {
	t.Parallel()

	assert.Error(t, gateway.Ping(context.Background(), "not-a-uri", time.Second))
}
