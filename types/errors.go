package types

// Reason is a machine-readable verification or settlement failure code.
// Reasons cross the service boundary as strings; internal faults are never
// surfaced raw.
type Reason string

const (
	// -----------------------------
	// SOURCE CHAIN / TRANSACTION
	// -----------------------------
	ReasonUnsupportedSourceChain  Reason = "unsupported_source_chain"
	ReasonTransactionNotFound     Reason = "transaction_not_found"
	ReasonInvalidTransactionState Reason = "invalid_transaction_status"

	// -----------------------------
	// EVENT CONTENT
	// -----------------------------
	ReasonInvalidEventData   Reason = "invalid_event_data"
	ReasonInvoiceMismatch    Reason = "invoice_mismatch"
	ReasonRecipientMismatch  Reason = "recipient_mismatch"
	ReasonAmountInsufficient Reason = "amount_insufficient"

	// -----------------------------
	// CROSS-CHAIN MESSAGE
	// -----------------------------
	ReasonLzMessageNotFound Reason = "lz_message_not_found"
	ReasonLzMessageMismatch Reason = "lz_message_mismatch"

	// -----------------------------
	// INPUT / TRANSPORT
	// -----------------------------
	ReasonInvalidPaymentPayload Reason = "invalid_payment_payload"
	ReasonNetworkError          Reason = "network_error"
)

// Retryable reports whether a client may retry the same payment unchanged.
// Every reason other than network_error requires changing something in the
// payment itself.
func (r Reason) Retryable() bool {
	return r == ReasonNetworkError
}

func (r Reason) String() string {
	return string(r)
}
