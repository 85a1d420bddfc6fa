// Command dvote-gw keeps a gateway pool alive against a configured list
// of voting-network gateways, polling their capability endpoint on a fixed
// schedule and exporting pool health as Prometheus metrics. It doubles as a
// smoke test for a gateway deployment.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dvotenet/dvote-go/pkg/gateway"
	"github.com/dvotenet/dvote-go/pkg/log"
	"github.com/dvotenet/dvote-go/pkg/sign"
)

func main() {
	var logConf log.Config
	if err := cleanenv.ReadEnv(&logConf); err != nil {
		logConf = log.Config{}
	}
	logger := log.NewZapLogger(logConf).WithName("probe")

	config, err := LoadConfig(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	var signer sign.Signer
	if config.privateKeyHex != "" {
		ethSigner, err := sign.NewEthereumSigner(config.privateKeyHex)
		if err != nil {
			logger.Fatal("failed to initialise signer", "error", err)
		}
		signer = ethSigner
		logger.Info("request signer initialized", "address", ethSigner.PublicKey().Address().String())
	}

	registry := prometheus.NewRegistry()
	metrics := gateway.NewMetrics(registry)

	discovery := &gateway.StaticDiscovery{
		Configs: config.gateways,
		Logger:  logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := gateway.DiscoverPool(ctx, discovery, gateway.DiscoveryParams{
		Network: config.network,
		Timeout: config.requestTimeout,
	}, logger, metrics)
	if err != nil {
		logger.Fatal("failed to build gateway pool", "error", err)
	}
	defer pool.Disconnect()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:    config.metricsListenAddr,
		Handler: metricsMux,
	}
	go func() {
		logger.Info("Prometheus metrics available", "listenAddr", config.metricsListenAddr, "endpoint", "/metrics")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failure", "error", err)
		}
	}()

	logger.Info("probe loop started", "interval", config.probeInterval)
	ticker := time.NewTicker(config.probeInterval)
	defer ticker.Stop()

	probe(ctx, pool, signer, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shut down metrics server", "error", err)
			}
			logger.Info("shutdown complete")
			return
		case <-ticker.C:
			probe(ctx, pool, signer, logger)
		}
	}
}

// probe issues one capability request through the pool, exercising the full
// failover path when the active gateway is unhealthy.
func probe(ctx context.Context, pool *gateway.Pool, signer sign.Signer, logger log.Logger) {
	body := gateway.MessageBody{}
	if err := body.Set("method", gateway.InfoMethod); err != nil {
		logger.Error("could not build probe request", "error", err)
		return
	}

	res, err := pool.SendRequest(ctx, body, signer)
	if err != nil {
		kind, _ := gateway.KindOf(err)
		logger.Error("probe request failed", "kind", kind.String(), "error", err)
		return
	}
	logger.Info("gateway pool healthy", "size", pool.Size(), "fields", len(res))
}
