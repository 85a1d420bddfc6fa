package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultPingTimeout bounds the whole liveness probe, both scheme attempts
// included.
const defaultPingTimeout = 4 * time.Second

// pingPath is the fixed liveness endpoint exposed by every gateway host.
const pingPath = "/ping"

// Ping probes the liveness endpoint of the host behind gatewayURI. HTTPS is
// tried first with a plain-HTTP fallback. Success is exactly HTTP 200 with
// body "pong"; anything else is a failure.
//
// The probe is intentionally cheaper than a connect + capability handshake;
// callers use it to rule a gateway out before paying for the handshake.
func Ping(ctx context.Context, gatewayURI string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	parsed, err := url.Parse(gatewayURI)
	if err != nil {
		return fmt.Errorf("invalid gateway URI %q: %w", gatewayURI, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("gateway URI %q has no host", gatewayURI)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{}
	defer client.CloseIdleConnections()

	httpsErr := pingOnce(ctx, client, "https://"+parsed.Host+pingPath)
	if httpsErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("liveness probe timed out: %w", ctx.Err())
	}
	if httpErr := pingOnce(ctx, client, "http://"+parsed.Host+pingPath); httpErr == nil {
		return nil
	}
	return fmt.Errorf("liveness probe failed: %w", httpsErr)
}

func pingOnce(ctx context.Context, client *http.Client, probeURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", res.Status)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, 16))
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(body)) != "pong" {
		return fmt.Errorf("unexpected ping body %q", string(body))
	}
	return nil
}
