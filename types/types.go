// Package types defines the wire types of the omni402 payment protocol:
// the payment requirements a merchant issues, the payment payload a payer
// asserts, and the verify/settle request and response shapes exchanged with
// the facilitator.
package types

import (
	"fmt"
	"math/big"

	"github.com/go-playground/validator/v10"
)

// X402Version is the protocol version accepted by this facilitator.
const X402Version = 1

// Scheme is the payment scheme identifier carried by every requirement
// and payload.
const Scheme = "omni402"

var validate = validator.New()

// PaymentRequirements is what a merchant demands for a protected resource.
// Immutable once issued to a given challenge.
type PaymentRequirements struct {
	// Scheme of the payment protocol. Fixed to "omni402".
	Scheme string `json:"scheme" validate:"required"`

	// Network the merchant is credited on (the hub chain, e.g. "base").
	Network string `json:"network" validate:"required"`

	// MaxAmountRequired is the minimum amount the payment must carry,
	// in atomic units of the hub settlement asset. Represented as a
	// string because amounts can exceed uint64 range.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required"`

	// PayTo is the merchant settlement address.
	PayTo string `json:"payTo" validate:"required"`

	// Resource identifies what is being paid for, typically a URL.
	Resource string `json:"resource" validate:"required"`
}

// Validate checks the requirement's shape before it reaches the verifier.
func (pr *PaymentRequirements) Validate() error {
	if err := validate.Struct(pr); err != nil {
		return err
	}

	if pr.Scheme != Scheme {
		return fmt.Errorf("paymentRequirements.scheme must be %q", Scheme)
	}

	if _, ok := new(big.Int).SetString(pr.MaxAmountRequired, 10); !ok {
		return fmt.Errorf("paymentRequirements.maxAmountRequired must be a base-10 integer")
	}

	return nil
}

// EdgePayload references the on-chain facts a payer claims about an
// edge-chain payment. All fields are untrusted until verified against the
// transaction receipt.
type EdgePayload struct {
	// EdgeTxHash is the payment transaction hash on the edge chain.
	EdgeTxHash string `json:"edgeTxHash" validate:"required"`

	// LzMessageID is the cross-chain message identifier (guid) emitted
	// alongside the payment.
	LzMessageID string `json:"lzMessageId" validate:"required"`

	// InvoiceID is the payment identifier the client committed to; it
	// must match the paymentId of the on-chain event.
	InvoiceID string `json:"invoiceId" validate:"required"`

	// SourceChain is the numeric chain id of the edge chain.
	SourceChain int64 `json:"sourceChain" validate:"required"`
}

// PaymentPayload is the client-asserted payment proof submitted via the
// X-PAYMENT header and relayed to the facilitator.
type PaymentPayload struct {
	X402Version int         `json:"x402Version" validate:"required"`
	Scheme      string      `json:"scheme" validate:"required"`
	Network     string      `json:"network" validate:"required"`
	Payload     EdgePayload `json:"payload"`
}

// Validate rejects payloads that do not match the canonical v1 shape.
func (pp *PaymentPayload) Validate() error {
	if err := validate.Struct(pp); err != nil {
		return err
	}

	if pp.X402Version != X402Version {
		return fmt.Errorf("unsupported x402Version %d", pp.X402Version)
	}

	if pp.Scheme != Scheme {
		return fmt.Errorf("paymentPayload.scheme must be %q", Scheme)
	}

	return nil
}

// VerifyRequest is the body of POST /verify and POST /settle.
type VerifyRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// Validate checks the full request. Requests failing here are rejected at
// the HTTP boundary with invalid_payment_payload and never reach the
// verifier.
func (v *VerifyRequest) Validate() error {
	if v.X402Version != X402Version {
		return fmt.Errorf("unsupported x402Version %d", v.X402Version)
	}

	if err := v.PaymentPayload.Validate(); err != nil {
		return err
	}

	return v.PaymentRequirements.Validate()
}

// VerifyResponse is the verifier's decision. Payer is reported whenever the
// on-chain event identified one, even for invalid outcomes, to aid
// diagnostics.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason Reason `json:"invalidReason,omitempty"`
	Payer         string `json:"payer"`
}

// SettleResponse is the orchestrator's result. Transaction carries the edge
// transaction hash of the recorded settlement on success.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason Reason `json:"errorReason,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer"`
}

// SupportedItem advertises one accepted scheme/network pair.
type SupportedItem struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"`
}

// SourceChainItem advertises one edge chain payments may originate from.
type SourceChainItem struct {
	ChainID int64  `json:"chainId"`
	Name    string `json:"name"`
}

// SupportedResponse is the body of GET /supported.
type SupportedResponse struct {
	Kinds        []SupportedItem   `json:"kinds"`
	SourceChains []SourceChainItem `json:"sourceChains"`
}

// PaymentOption describes one token a payer may pay with on an edge chain,
// with an estimated cost in that token's atomic units.
type PaymentOption struct {
	ChainID         int64  `json:"chainId"`
	Token           string `json:"token"`
	Symbol          string `json:"symbol"`
	Decimals        int32  `json:"decimals"`
	EstimatedAmount string `json:"estimatedAmount,omitempty"`
}

// Invoice is the 402 challenge payload a merchant emits when no payment
// header is present.
type Invoice struct {
	X402Version             int                   `json:"x402Version"`
	Accepts                 []PaymentRequirements `json:"accepts"`
	Facilitator             string                `json:"facilitator"`
	AvailablePaymentOptions []PaymentOption       `json:"availablePaymentOptions"`
}
