package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/dvotenet/dvote-go/pkg/gateway"
	"github.com/dvotenet/dvote-go/pkg/log"
)

const (
	configDirPathEnv     = "DVOTE_CONFIG_DIR_PATH"
	defaultConfigDirPath = "."
)

// envConfig is the raw environment surface, read by cleanenv and checked by
// the validator before any list alignment happens.
type envConfig struct {
	Gateways      string `env:"DVOTE_GATEWAYS" validate:"required"`
	PublicKeys    string `env:"DVOTE_GATEWAY_PUBKEYS"`
	Web3Providers string `env:"DVOTE_WEB3_PROVIDERS"`
	Network       string `env:"DVOTE_NETWORK" env-default:"mainnet"`
	ENSRegistry   string `env:"DVOTE_ENS_REGISTRY"`
	PrivateKeyHex string `env:"DVOTE_SIGNER_PRIVATE_KEY"`

	ProbeInterval  time.Duration `env:"DVOTE_PROBE_INTERVAL" env-default:"30s"`
	RequestTimeout time.Duration `env:"DVOTE_REQUEST_TIMEOUT" env-default:"12s"`

	MetricsListenAddr string `env:"DVOTE_METRICS_LISTEN_ADDR" env-default:":4242"`
}

// Config is the assembled probe configuration: ranked gateway entries plus
// the probe schedule.
type Config struct {
	gateways          []gateway.Config
	network           gateway.NetworkID
	privateKeyHex     string
	probeInterval     time.Duration
	requestTimeout    time.Duration
	metricsListenAddr string
}

// LoadConfig builds configuration from environment variables, reading an
// optional .env file first. The gateway, public-key, and web3 lists are
// comma-separated and aligned by position; the latter two may be shorter
// than the gateway list or empty.
func LoadConfig(logger log.Logger) (*Config, error) {
	logger = logger.WithName("config")

	configDirPath := os.Getenv(configDirPathEnv)
	if configDirPath == "" {
		configDirPath = defaultConfigDirPath
	}

	configDotEnvPath := filepath.Join(configDirPath, ".env")
	if err := godotenv.Load(configDotEnvPath); err != nil {
		logger.Warn(".env file not found", "path", configDotEnvPath)
	}

	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return nil, fmt.Errorf("could not read environment: %w", err)
	}
	if err := validator.New().Struct(&env); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	uris := splitList(env.Gateways)
	if len(uris) == 0 {
		return nil, fmt.Errorf("DVOTE_GATEWAYS is empty")
	}
	pubKeys := splitList(env.PublicKeys)
	web3URIs := splitList(env.Web3Providers)

	gateways := make([]gateway.Config, 0, len(uris))
	for i, uri := range uris {
		cfg := gateway.Config{
			DVote:       gateway.EndpointInfo{URI: uri},
			Network:     gateway.NetworkID(env.Network),
			ENSRegistry: env.ENSRegistry,
		}
		if i < len(pubKeys) {
			cfg.DVote.PublicKey = pubKeys[i]
		}
		if i < len(web3URIs) {
			cfg.Web3URI = web3URIs[i]
		}
		gateways = append(gateways, cfg)
	}
	logger.Info("gateway list loaded", "count", len(gateways), "network", env.Network)

	return &Config{
		gateways:          gateways,
		network:           gateway.NetworkID(env.Network),
		privateKeyHex:     env.PrivateKeyHex,
		probeInterval:     env.ProbeInterval,
		requestTimeout:    env.RequestTimeout,
		metricsListenAddr: env.MetricsListenAddr,
	}, nil
}

// splitList splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
