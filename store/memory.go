package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omni402/omnitab/types"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps settlements in process memory. It honors the same
// uniqueness and conditional-update contracts as the DynamoDB store and
// backs local development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	byEdge map[string]*types.Settlement
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEdge: make(map[string]*types.Settlement)}
}

func (m *MemoryStore) FindByEdgeTx(ctx context.Context, edgeTxHash string) (*types.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byEdge[normalizeKey(edgeTxHash)]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Create(ctx context.Context, s *types.Settlement) (*types.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeKey(s.EdgeTxHash)
	if _, exists := m.byEdge[key]; exists {
		return nil, ErrDuplicateEdgeTx
	}

	cp := *s
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.Status == "" {
		cp.Status = types.SettlementPending
	}
	m.byEdge[key] = &cp

	out := cp
	return &out, nil
}

func (m *MemoryStore) MarkSettled(ctx context.Context, invoiceID, settlementTxHash string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	now := time.Now().UTC()
	for _, s := range m.byEdge {
		if normalizeKey(s.InvoiceID) != normalizeKey(invoiceID) {
			continue
		}
		if s.Status != types.SettlementPending {
			continue
		}
		s.Status = types.SettlementSettled
		s.SettledAt = &now
		s.SettlementTxHash = settlementTxHash
		count++
	}
	return count, nil
}

func (m *MemoryStore) ListByMerchant(ctx context.Context, merchant string, limit int) ([]*types.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeKey(merchant)
	out := make([]*types.Settlement, 0)
	for _, s := range m.byEdge {
		if normalizeKey(s.MerchantAddress) == key {
			cp := *s
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
