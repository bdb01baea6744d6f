// Package store persists settlement records. The store is the only mutable
// shared resource in the facilitator: its uniqueness constraint on the edge
// transaction hash is the serialization point that makes settlement
// at-most-once under concurrent requests.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/omni402/omnitab/types"
)

// ErrDuplicateEdgeTx is returned by Create when a settlement already exists
// for the edge transaction. Callers must treat it as "already exists",
// re-read, and converge on the existing record.
var ErrDuplicateEdgeTx = errors.New("settlement already exists for edge transaction")

// Store is the keyed, idempotent record store of settlements.
type Store interface {
	// FindByEdgeTx returns the settlement recorded for an edge
	// transaction hash, or nil if none exists. Matching is
	// case-insensitive.
	FindByEdgeTx(ctx context.Context, edgeTxHash string) (*types.Settlement, error)

	// Create persists a new settlement. The edge transaction hash is a
	// unique key enforced by the storage layer; concurrent creates for
	// the same hash resolve to exactly one record, the rest observe
	// ErrDuplicateEdgeTx.
	Create(ctx context.Context, s *types.Settlement) (*types.Settlement, error)

	// MarkSettled conditionally flips pending settlements for the
	// invoice to settled, stamping settledAt and the hub transaction
	// hash. Returns the number of records transitioned; calling it again
	// is a no-op.
	MarkSettled(ctx context.Context, invoiceID, settlementTxHash string) (int, error)

	// ListByMerchant returns up to limit settlements for a merchant
	// address, newest first. Matching is case-insensitive.
	ListByMerchant(ctx context.Context, merchant string, limit int) ([]*types.Settlement, error)
}

// normalizeKey lower-cases hex identifiers so that keys differing only in
// letter case collide.
func normalizeKey(s string) string {
	return strings.ToLower(s)
}
