// Package omnitab implements an omni402 "pay from any chain" payment
// facilitator: payers settle value on an edge chain, a cross-chain message
// attests to the payment, and this library verifies the attestation against
// edge-chain receipts and records settlement state so a merchant resource
// is released exactly once per payment.
package omnitab

import (
	"context"
	"time"

	"github.com/omni402/omnitab/chains"
	"github.com/omni402/omnitab/clients"
	"github.com/omni402/omnitab/logger"
	"github.com/omni402/omnitab/metrics"
	"github.com/omni402/omnitab/settlement"
	"github.com/omni402/omnitab/store"
	"github.com/omni402/omnitab/types"
	"github.com/omni402/omnitab/verification"
)

// Facilitator bundles the verification and settlement services behind one
// entry point.
type Facilitator struct {
	registry *chains.Registry
	readers  *clients.Registry

	verification *verification.VerificationService
	settlement   *settlement.SettlementService

	hubNetwork string
	timeout    time.Duration
	logger     logger.Logger
	metrics    metrics.Recorder
}

// New creates a Facilitator over the given chain registry and settlement
// store. Source chains still need to be attached with AddSourceChain before
// payments from them verify.
func New(registry *chains.Registry, st store.Store, opts ...Option) *Facilitator {
	f := &Facilitator{
		registry:   registry,
		readers:    clients.NewRegistry(),
		hubNetwork: chains.DefaultHub().Network,
		timeout:    30 * time.Second,
		logger:     logger.NoopLogger{},
		metrics:    metrics.NoopRecorder{},
	}

	for _, opt := range opts {
		opt(f)
	}

	f.verification = verification.NewVerificationService(registry, f.readers, f.timeout, f.logger, f.metrics)
	f.settlement = settlement.NewSettlementService(f.verification, st, f.logger, f.metrics)

	return f
}

// AddSourceChain dials the chain's RPC endpoint and registers a reader for
// it. The chain must already be present in the registry.
func (f *Facilitator) AddSourceChain(cfg chains.ChainConfig) error {
	reader, err := clients.NewEVMReader(cfg, f.timeout)
	if err != nil {
		return err
	}

	f.registry.Add(cfg)
	f.readers.Add(cfg.ChainID, reader)
	return nil
}

// Verify checks a payment payload against a requirement.
func (f *Facilitator) Verify(ctx context.Context, req *types.VerifyRequest) *types.VerifyResponse {
	return f.verification.Verify(ctx, req)
}

// Settle verifies and idempotently records a payment.
func (f *Facilitator) Settle(ctx context.Context, req *types.VerifyRequest) *types.SettleResponse {
	return f.settlement.Settle(ctx, req)
}

// Supported advertises the accepted scheme and the configured source
// chains.
func (f *Facilitator) Supported() *types.SupportedResponse {
	return &types.SupportedResponse{
		Kinds: []types.SupportedItem{
			{Scheme: types.Scheme, Network: f.hubNetwork},
		},
		SourceChains: f.registry.SourceChains(),
	}
}

// Verifier exposes the verification service for HTTP wiring.
func (f *Facilitator) Verifier() verification.Verifier {
	return f.verification
}

// Settler exposes the settlement service for HTTP wiring.
func (f *Facilitator) Settler() settlement.Settler {
	return f.settlement
}

// Close releases all chain connections.
func (f *Facilitator) Close() {
	f.readers.Close()
}
