package gateway

import (
	"context"
	"time"

	"github.com/dvotenet/dvote-go/pkg/log"
)

// DiscoveryParams selects which gateways a Discovery should return.
type DiscoveryParams struct {
	Network NetworkID
	// RequiredAPIs filters out gateways that do not advertise every listed
	// category. Empty means any gateway qualifies.
	RequiredAPIs []APICategory
	// Timeout bounds the per-gateway health check, zero meaning the
	// transport default.
	Timeout time.Duration
}

// Discovery produces a ranked list of ready-to-use gateways, best first.
// The pool treats the list as opaque and only relies on its ordering. A
// Discovery is called again whenever the pool exhausts its current list.
type Discovery interface {
	Discover(ctx context.Context, params DiscoveryParams) ([]*Gateway, error)
}

// StaticDiscovery serves a fixed, pre-ranked configuration list. Each
// Discover call builds fresh Gateway instances so that a refreshed pool
// never inherits a previous pool's connection state.
type StaticDiscovery struct {
	Configs []Config
	Logger  log.Logger
}

// Discover pairs every configured endpoint, dropping entries whose
// construction fails and preserving the configured order for the rest.
func (d *StaticDiscovery) Discover(ctx context.Context, params DiscoveryParams) ([]*Gateway, error) {
	logger := d.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	gateways := make([]*Gateway, 0, len(d.Configs))
	for _, cfg := range d.Configs {
		if params.Network != "" && cfg.Network == "" {
			cfg.Network = params.Network
		}
		gw, err := New(ctx, cfg, logger)
		if err != nil {
			logger.Warn("skipping gateway with invalid configuration", "uri", cfg.DVote.URI, "error", err)
			continue
		}
		if !advertisesAll(gw, params.RequiredAPIs) {
			gw.Disconnect()
			continue
		}
		gateways = append(gateways, gw)
	}
	if len(gateways) == 0 {
		return nil, ErrNoGatewayAvailable
	}
	return gateways, nil
}

func advertisesAll(gw *Gateway, required []APICategory) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[APICategory]bool)
	for _, api := range gw.SupportedAPIs() {
		have[api] = true
	}
	for _, api := range required {
		if !have[api] {
			return false
		}
	}
	return true
}
