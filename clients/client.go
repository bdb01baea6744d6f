// Package clients provides read-only RPC access to the supported source
// chains. Readers fetch transaction receipts and nothing else; they hold no
// state and never retry internally, leaving transient failures to the
// caller's error taxonomy.
package clients

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ReceiptFetcher is the capability the verifier needs from a chain: fetch
// the receipt for a transaction hash. A missing receipt surfaces as
// ethereum.NotFound, network faults as any other error.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// Registry maps chain ids to configured readers. Chains without a reader
// are unsupported and must be rejected before any RPC attempt.
type Registry struct {
	readers map[int64]ReceiptFetcher
}

// NewRegistry returns an empty reader registry.
func NewRegistry() *Registry {
	return &Registry{readers: make(map[int64]ReceiptFetcher)}
}

// Add registers a reader for a chain id, replacing any previous one.
func (r *Registry) Add(chainID int64, fetcher ReceiptFetcher) {
	r.readers[chainID] = fetcher
}

// Lookup returns the reader configured for a chain id, if any.
func (r *Registry) Lookup(chainID int64) (ReceiptFetcher, bool) {
	fetcher, ok := r.readers[chainID]
	return fetcher, ok
}

// Close closes every reader that supports closing.
func (r *Registry) Close() {
	for _, fetcher := range r.readers {
		if c, ok := fetcher.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
