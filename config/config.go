// Package config loads facilitator configuration from the environment,
// with optional .env support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/omni402/omnitab/chains"
)

// Config holds everything the facilitator process needs.
type Config struct {
	Port     string
	LogLevel string

	// Hub chain (where PaymentSettled is observed).
	HubRPCURL   string
	HubContract string
	HubNetwork  string

	// Listener scheduling.
	PollInterval time.Duration
	Lookback     uint64

	// Per-call RPC timeout for receipt fetches.
	RPCTimeout time.Duration

	// Persistence: "dynamo" or "memory".
	StoreBackend     string
	SettlementsTable string
	AWSRegion        string
}

// Load reads the environment, honoring a .env file when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "3001"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HubRPCURL:   getEnv("HUB_RPC_URL", chains.DefaultHub().RPCURL),
		HubContract: getEnv("HUB_ADDRESS", ""),
		HubNetwork:  getEnv("HUB_NETWORK", chains.DefaultHub().Network),

		PollInterval: getDuration("POLL_INTERVAL", 5*time.Second),
		Lookback:     getUint("POLL_LOOKBACK_BLOCKS", 1000),

		RPCTimeout: getDuration("RPC_TIMEOUT", 15*time.Second),

		StoreBackend:     getEnv("STORE_BACKEND", "memory"),
		SettlementsTable: getEnv("SETTLEMENTS_TABLE", "settlements"),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
	}
}

// SourceChains builds the edge-chain registry, applying per-chain env
// overrides RPC_URL_<chainId> and EDGE_CONTRACT_<chainId> on top of the
// defaults.
func (c *Config) SourceChains() *chains.Registry {
	reg := chains.DefaultRegistry()
	for _, chain := range reg.All() {
		if url := os.Getenv(fmt.Sprintf("RPC_URL_%d", chain.ChainID)); url != "" {
			chain.RPCURL = url
		}
		if addr := os.Getenv(fmt.Sprintf("EDGE_CONTRACT_%d", chain.ChainID)); addr != "" {
			chain.EdgeContract = addr
		}
		reg.Add(chain)
	}
	return reg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
