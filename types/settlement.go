package types

import "time"

// SettlementStatus tracks a settlement through its lifecycle. A settlement
// is created pending and flips to settled at most once, when the hub chain
// confirms the cross-chain credit. Settled is terminal.
type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementSettled SettlementStatus = "settled"
)

// Settlement is the durable record of an accepted payment: the sole source
// of truth for "has this edge transaction already been credited". EdgeTxHash
// is unique across all settlements; payer and merchant addresses are stored
// lower-cased.
type Settlement struct {
	ID               string           `json:"id"`
	InvoiceID        string           `json:"invoiceId"`
	SourceChain      int64            `json:"sourceChain"`
	PayerAddress     string           `json:"payerAddress"`
	MerchantAddress  string           `json:"merchantAddress"`
	Amount           string           `json:"amount"`
	EdgeTxHash       string           `json:"edgeTxHash"`
	LzMessageID      string           `json:"lzMessageId"`
	Status           SettlementStatus `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
	SettledAt        *time.Time       `json:"settledAt,omitempty"`
	SettlementTxHash string           `json:"settlementTxHash,omitempty"`
}
