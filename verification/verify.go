// Package verification implements the core decision function of the
// facilitator: given a client-asserted payment payload and a merchant's
// payment requirement, replay the on-chain facts through a fixed checklist
// and decide valid or invalid(reason).
package verification

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/omni402/omnitab/chains"
	"github.com/omni402/omnitab/clients"
	"github.com/omni402/omnitab/events"
	"github.com/omni402/omnitab/logger"
	"github.com/omni402/omnitab/metrics"
	"github.com/omni402/omnitab/types"
)

// Verifier is the contract consumed by the settlement orchestrator and the
// HTTP layer.
type Verifier interface {
	Verify(ctx context.Context, req *types.VerifyRequest) *types.VerifyResponse
}

// VerificationService verifies payments against edge-chain receipts. It is
// a pure function of its inputs plus observed chain state: no writes, and
// deterministic for a given receipt content.
type VerificationService struct {
	chains  *chains.Registry
	readers *clients.Registry
	timeout time.Duration
	logger  logger.Logger
	metrics metrics.Recorder
}

var _ Verifier = (*VerificationService)(nil)

// NewVerificationService creates a verification service. Nil logger or
// recorder fall back to no-ops.
func NewVerificationService(reg *chains.Registry, readers *clients.Registry, timeout time.Duration, log logger.Logger, rec metrics.Recorder) *VerificationService {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &VerificationService{
		chains:  reg,
		readers: readers,
		timeout: timeout,
		logger:  log,
		metrics: rec,
	}
}

// Verify runs the verification checklist in a fixed order, short-circuiting
// on the first failure. The ordering is part of the contract: each failure
// reason is distinguishable to the caller.
//
// Any unexpected fault during chain access or decoding is normalized to
// network_error; this method never panics and never returns an error.
func (s *VerificationService) Verify(ctx context.Context, req *types.VerifyRequest) (resp *types.VerifyResponse) {
	start := time.Now()
	network := req.PaymentPayload.Network

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("verification panic recovered", map[string]any{"panic": r})
			resp = &types.VerifyResponse{IsValid: false, InvalidReason: types.ReasonNetworkError}
		}
		s.recordOutcome(resp, network, time.Since(start))
	}()

	payload := req.PaymentPayload.Payload

	// 1. The source chain must be in the supported registry; nothing is
	// attempted against any endpoint otherwise.
	if _, ok := s.chains.Lookup(payload.SourceChain); !ok {
		return invalid(types.ReasonUnsupportedSourceChain, "")
	}
	reader, ok := s.readers.Lookup(payload.SourceChain)
	if !ok {
		return invalid(types.ReasonUnsupportedSourceChain, "")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// 2. Fetch the edge transaction receipt.
	receipt, err := reader.TransactionReceipt(verifyCtx, common.HexToHash(payload.EdgeTxHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return invalid(types.ReasonTransactionNotFound, "")
		}
		s.logger.Warn("receipt fetch failed", map[string]any{
			"chainId": payload.SourceChain,
			"txHash":  payload.EdgeTxHash,
			"error":   err.Error(),
		})
		return invalid(types.ReasonNetworkError, "")
	}
	if receipt == nil {
		return invalid(types.ReasonTransactionNotFound, "")
	}

	// 3. The transaction must have succeeded.
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return invalid(types.ReasonInvalidTransactionState, "")
	}

	// 4. Decode the payment and message events from the receipt logs.
	payment, message := events.DecodeReceiptLogs(receipt.Logs)
	if payment == nil {
		return invalid(types.ReasonInvalidEventData, "")
	}

	// 5. The on-chain paymentId must match the asserted invoice.
	if !strings.EqualFold(payment.PaymentID, payload.InvoiceID) {
		return invalid(types.ReasonInvoiceMismatch, payment.Payer)
	}

	// 6. The on-chain merchant must match the requirement's payTo.
	if !strings.EqualFold(payment.Merchant, req.PaymentRequirements.PayTo) {
		return invalid(types.ReasonRecipientMismatch, payment.Payer)
	}

	// 7. The paid amount must cover the required amount. Arbitrary
	// precision: on-chain quantities exceed 64-bit range.
	required, ok := new(big.Int).SetString(req.PaymentRequirements.MaxAmountRequired, 10)
	if !ok {
		// Schema validation keeps this out of the normal path.
		return invalid(types.ReasonNetworkError, "")
	}
	if payment.Amount.Cmp(required) < 0 {
		return invalid(types.ReasonAmountInsufficient, payment.Payer)
	}

	// 8. A cross-chain message must have been sent.
	if message == nil {
		return invalid(types.ReasonLzMessageNotFound, payment.Payer)
	}

	// 9. Its guid must match the asserted message id.
	if !strings.EqualFold(message.GUID, payload.LzMessageID) {
		return invalid(types.ReasonLzMessageMismatch, payment.Payer)
	}

	// 10. All checks passed.
	return &types.VerifyResponse{IsValid: true, Payer: payment.Payer}
}

func (s *VerificationService) recordOutcome(resp *types.VerifyResponse, network string, elapsed time.Duration) {
	outcome := "valid"
	if resp != nil && !resp.IsValid {
		outcome = resp.InvalidReason.String()
	}
	s.metrics.IncCounter("verify_"+outcome, map[string]string{"network": network})
	s.metrics.ObserveLatency("verify", elapsed, map[string]string{"network": network})
}

func invalid(reason types.Reason, payer string) *types.VerifyResponse {
	return &types.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}
}
