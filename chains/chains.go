// Package chains holds the static registry of edge chains payments may
// originate from, plus the hub chain the merchant is credited on. Chains not
// present in the registry are rejected before any RPC call is attempted.
package chains

import (
	"sort"

	"github.com/omni402/omnitab/types"
)

// TokenConfig describes one token accepted for payment on an edge chain.
type TokenConfig struct {
	Address  string
	Symbol   string
	Decimals int32
}

// ChainConfig describes one supported edge chain.
type ChainConfig struct {
	ChainID      int64
	Name         string
	RPCURL       string
	EdgeContract string
	Tokens       []TokenConfig
}

// HubConfig describes the settlement network where PaymentSettled events are
// observed and the merchant is ultimately credited.
type HubConfig struct {
	ChainID  int64
	Network  string
	RPCURL   string
	Contract string
}

// Registry maps numeric chain ids to edge chain configuration.
type Registry struct {
	chains map[int64]ChainConfig
}

// NewRegistry builds a registry from the given chain configurations.
func NewRegistry(configs ...ChainConfig) *Registry {
	r := &Registry{chains: make(map[int64]ChainConfig, len(configs))}
	for _, cfg := range configs {
		r.chains[cfg.ChainID] = cfg
	}
	return r
}

// Lookup returns the configuration for a chain id, if supported.
func (r *Registry) Lookup(chainID int64) (ChainConfig, bool) {
	cfg, ok := r.chains[chainID]
	return cfg, ok
}

// Add registers or replaces a chain configuration.
func (r *Registry) Add(cfg ChainConfig) {
	r.chains[cfg.ChainID] = cfg
}

// All returns every registered chain, ordered by chain id.
func (r *Registry) All() []ChainConfig {
	out := make([]ChainConfig, 0, len(r.chains))
	for _, cfg := range r.chains {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// SourceChains returns the registry in the shape advertised by /supported.
func (r *Registry) SourceChains() []types.SourceChainItem {
	all := r.All()
	out := make([]types.SourceChainItem, 0, len(all))
	for _, cfg := range all {
		out = append(out, types.SourceChainItem{ChainID: cfg.ChainID, Name: cfg.Name})
	}
	return out
}

// DefaultRegistry returns the chains supported out of the box. RPC URLs and
// edge contract addresses can be overridden through configuration.
func DefaultRegistry() *Registry {
	return NewRegistry(
		ChainConfig{
			ChainID:      42161,
			Name:         "arbitrum",
			RPCURL:       "https://arb1.arbitrum.io/rpc",
			EdgeContract: "0x0506263eb2Cc3908C7528F8eE3Dc2ad4d92A6a8E",
			Tokens: []TokenConfig{
				{Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Symbol: "USDC", Decimals: 6},
				{Address: "0x912CE59144191C1204E64559FE8253a0e49E6548", Symbol: "ARB", Decimals: 18},
				{Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Symbol: "WETH", Decimals: 18},
			},
		},
		ChainConfig{
			ChainID: 137,
			Name:    "polygon",
			RPCURL:  "https://polygon-rpc.com",
			Tokens: []TokenConfig{
				{Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Symbol: "USDC", Decimals: 6},
				{Address: "0x0000000000000000000000000000000000001010", Symbol: "POL", Decimals: 18},
			},
		},
	)
}

// DefaultHub returns the default hub chain configuration (Base mainnet).
// The contract address must come from configuration.
func DefaultHub() HubConfig {
	return HubConfig{
		ChainID: 8453,
		Network: "base",
		RPCURL:  "https://mainnet.base.org",
	}
}
