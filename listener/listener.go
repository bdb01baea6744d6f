// Package listener watches the hub chain for PaymentSettled events and
// flips pending settlements to settled. It polls at a fixed interval
// instead of installing a log filter, because public RPC endpoints
// frequently do not support filters. Polls never overlap and poll failures
// never stop the loop.
package listener

import (
	"context"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/omni402/omnitab/events"
	"github.com/omni402/omnitab/logger"
	"github.com/omni402/omnitab/metrics"
)

// LogSource is the hub-chain capability the listener needs. Satisfied by
// *ethclient.Client.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
}

// SettlementMarker is the store capability the listener needs.
type SettlementMarker interface {
	MarkSettled(ctx context.Context, invoiceID, settlementTxHash string) (int, error)
}

// HubListener is the long-running watcher for hub-chain settlement
// confirmations. It runs independently of the request path; the only
// ordering guarantee between a settle call and the listener's pending to
// settled transition is eventual consistency.
type HubListener struct {
	source   LogSource
	store    SettlementMarker
	contract common.Address
	interval time.Duration
	lookback uint64
	logger   logger.Logger
	metrics  metrics.Recorder

	lastBlock uint64
}

// NewHubListener creates a listener polling the given hub contract.
// Interval defaults to 5s and lookback to 1000 blocks when unset. After a
// restart the listener resumes from (head - lookback); events missed during
// longer downtime are not backfilled.
func NewHubListener(source LogSource, st SettlementMarker, contract common.Address, interval time.Duration, lookback uint64, log logger.Logger, rec metrics.Recorder) *HubListener {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if lookback == 0 {
		lookback = 1000
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &HubListener{
		source:   source,
		store:    st,
		contract: contract,
		interval: interval,
		lookback: lookback,
		logger:   log,
		metrics:  rec,
	}
}

// Run polls until the context is cancelled. Polls execute sequentially, so
// at most one is in flight; an in-flight poll finishes before Run returns.
func (l *HubListener) Run(ctx context.Context) {
	l.logger.Info("hub listener started", map[string]any{
		"contract": l.contract.Hex(),
		"interval": l.interval.String(),
	})

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("hub listener stopped", nil)
			return
		case <-ticker.C:
			l.Poll(ctx)
		}
	}
}

// Poll fetches and processes PaymentSettled logs since the last observed
// block. All failures are logged and swallowed; the next tick retries.
func (l *HubListener) Poll(ctx context.Context) {
	head, err := l.source.BlockNumber(ctx)
	if err != nil {
		l.logger.Warn("hub head fetch failed", map[string]any{"error": err.Error()})
		l.metrics.IncCounter("listener_poll_error", nil)
		return
	}

	from := l.lastBlock + 1
	if l.lastBlock == 0 {
		if head > l.lookback {
			from = head - l.lookback
		} else {
			from = 0
		}
	}
	if from > head {
		return
	}

	logs, err := l.source.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{l.contract},
		Topics:    [][]common.Hash{{events.PaymentSettledTopic()}},
	})
	if err != nil {
		l.logger.Warn("hub log filter failed", map[string]any{"error": err.Error()})
		l.metrics.IncCounter("listener_poll_error", nil)
		return
	}

	for _, lg := range logs {
		ev, ok := events.DecodeSettled(lg)
		if !ok {
			l.logger.Warn("undecodable hub log skipped", map[string]any{
				"block":  lg.BlockNumber,
				"txHash": lg.TxHash.Hex(),
			})
			continue
		}

		n, err := l.store.MarkSettled(ctx, ev.PaymentID, lg.TxHash.Hex())
		if err != nil {
			l.logger.Error("settlement update failed", map[string]any{
				"paymentId": ev.PaymentID,
				"error":     err.Error(),
			})
			l.metrics.IncCounter("listener_update_error", nil)
			continue
		}
		if n > 0 {
			l.logger.Info("settlement confirmed", map[string]any{
				"paymentId": ev.PaymentID,
				"txHash":    lg.TxHash.Hex(),
				"updated":   n,
			})
			l.metrics.IncCounter("listener_settled", nil)
		}
	}

	l.lastBlock = head
}
