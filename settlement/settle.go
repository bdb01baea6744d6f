// Package settlement coordinates the verifier and the settlement store to
// implement "verify, then settle" with at-most-once crediting. A settlement
// record is only ever created for a payload that passed verification, and
// the store's uniqueness constraint on the edge transaction hash resolves
// concurrent settles for the same payment to a single record.
package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/omni402/omnitab/logger"
	"github.com/omni402/omnitab/metrics"
	"github.com/omni402/omnitab/store"
	"github.com/omni402/omnitab/types"
	"github.com/omni402/omnitab/verification"
)

// Settler is the contract consumed by the HTTP layer.
type Settler interface {
	Settle(ctx context.Context, req *types.VerifyRequest) *types.SettleResponse
}

// SettlementService orchestrates verification and settlement recording.
type SettlementService struct {
	verifier verification.Verifier
	store    store.Store
	logger   logger.Logger
	metrics  metrics.Recorder
}

var _ Settler = (*SettlementService)(nil)

// NewSettlementService creates a settlement orchestrator. Nil logger or
// recorder fall back to no-ops.
func NewSettlementService(verifier verification.Verifier, st store.Store, log logger.Logger, rec metrics.Recorder) *SettlementService {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &SettlementService{
		verifier: verifier,
		store:    st,
		logger:   log,
		metrics:  rec,
	}
}

// Settle verifies the payment and records it idempotently. Resubmitting the
// same edge transaction returns the already-recorded settlement unchanged;
// no input that fails verification ever reaches the store. Store faults are
// normalized to network_error so the HTTP boundary has one error shape.
func (s *SettlementService) Settle(ctx context.Context, req *types.VerifyRequest) (resp *types.SettleResponse) {
	start := time.Now()
	network := req.PaymentPayload.Network

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("settlement panic recovered", map[string]any{"panic": r})
			resp = &types.SettleResponse{
				Success:     false,
				ErrorReason: types.ReasonNetworkError,
				Network:     network,
			}
		}
		s.recordOutcome(resp, network, time.Since(start))
	}()

	verifyResult := s.verifier.Verify(ctx, req)
	if !verifyResult.IsValid {
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: verifyResult.InvalidReason,
			Transaction: "",
			Network:     network,
			Payer:       verifyResult.Payer,
		}
	}

	payload := req.PaymentPayload.Payload
	edgeTxHash := strings.ToLower(payload.EdgeTxHash)

	existing, err := s.store.FindByEdgeTx(ctx, edgeTxHash)
	if err != nil {
		s.logger.Error("settlement lookup failed", map[string]any{
			"edgeTxHash": edgeTxHash,
			"error":      err.Error(),
		})
		return s.storeFailure(network, verifyResult.Payer)
	}
	if existing != nil {
		return &types.SettleResponse{
			Success:     true,
			Transaction: existing.EdgeTxHash,
			Network:     network,
			Payer:       existing.PayerAddress,
		}
	}

	created, err := s.store.Create(ctx, &types.Settlement{
		InvoiceID:       payload.InvoiceID,
		SourceChain:     payload.SourceChain,
		PayerAddress:    strings.ToLower(verifyResult.Payer),
		MerchantAddress: strings.ToLower(req.PaymentRequirements.PayTo),
		Amount:          req.PaymentRequirements.MaxAmountRequired,
		EdgeTxHash:      edgeTxHash,
		LzMessageID:     payload.LzMessageID,
		Status:          types.SettlementPending,
	})
	if err != nil {
		// A concurrent settle for the same edge transaction won the
		// race; converge on its record.
		if errors.Is(err, store.ErrDuplicateEdgeTx) {
			winner, findErr := s.store.FindByEdgeTx(ctx, edgeTxHash)
			if findErr == nil && winner != nil {
				return &types.SettleResponse{
					Success:     true,
					Transaction: winner.EdgeTxHash,
					Network:     network,
					Payer:       winner.PayerAddress,
				}
			}
			err = findErr
		}
		s.logger.Error("settlement create failed", map[string]any{
			"edgeTxHash": edgeTxHash,
			"error":      errString(err),
		})
		return s.storeFailure(network, verifyResult.Payer)
	}

	s.logger.Info("settlement created", map[string]any{
		"id":       created.ID,
		"merchant": created.MerchantAddress,
		"invoice":  created.InvoiceID,
		"amount":   created.Amount,
	})

	return &types.SettleResponse{
		Success:     true,
		Transaction: created.EdgeTxHash,
		Network:     network,
		Payer:       created.PayerAddress,
	}
}

func (s *SettlementService) storeFailure(network, payer string) *types.SettleResponse {
	return &types.SettleResponse{
		Success:     false,
		ErrorReason: types.ReasonNetworkError,
		Transaction: "",
		Network:     network,
		Payer:       payer,
	}
}

func (s *SettlementService) recordOutcome(resp *types.SettleResponse, network string, elapsed time.Duration) {
	outcome := "success"
	if resp != nil && !resp.Success {
		outcome = resp.ErrorReason.String()
	}
	s.metrics.IncCounter("settle_"+outcome, map[string]string{"network": network})
	s.metrics.ObserveLatency("settle", elapsed, map[string]string{"network": network})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
