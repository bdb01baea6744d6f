// Package middleware gates merchant HTTP endpoints behind an omni402
// payment. Requests without an X-PAYMENT header receive a 402 challenge
// carrying the payment requirement and the edge-chain payment options;
// requests with one are verified and settled through the facilitator before
// the protected handler runs. The hook points are explicit (challenge,
// verify, settle, release) rather than any global client mutation.
package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/omni402/omnitab/chains"
	"github.com/omni402/omnitab/logger"
	"github.com/omni402/omnitab/types"
)

// PaymentContextKey is the gin context key under which the settle result is
// stored for the protected handler.
const PaymentContextKey = "omni402_payment"

// defaultFeeBps is the protocol fee charged on top of the required amount
// when estimating payment options.
const defaultFeeBps = 70

// Config drives the merchant middleware.
type Config struct {
	// FacilitatorURL is the base URL of the facilitator service.
	FacilitatorURL string

	// Amount is the price of the resource in atomic units of the hub
	// settlement asset (USDC, 6 decimals).
	Amount string

	// PayTo is the merchant settlement address.
	PayTo string

	// Resource overrides the resource identifier in the challenge;
	// defaults to the request URL.
	Resource string

	// Network is the hub network name; defaults to "base".
	Network string

	// Registry supplies the edge chains advertised as payment options;
	// defaults to chains.DefaultRegistry().
	Registry *chains.Registry

	// FeeBps is the protocol fee in basis points added to estimates.
	FeeBps int64

	// TokenRates maps a token symbol to its estimated units per one unit
	// of the settlement asset, used to quote non-USDC options. Symbols
	// without a rate are advertised without an estimate.
	TokenRates map[string]decimal.Decimal

	// Client overrides the facilitator client; built from FacilitatorURL
	// when nil.
	Client *FacilitatorClient

	Logger logger.Logger
}

// RequirePayment returns a gin middleware enforcing payment for the route.
func RequirePayment(cfg Config) gin.HandlerFunc {
	if cfg.Network == "" {
		cfg.Network = "base"
	}
	if cfg.Registry == nil {
		cfg.Registry = chains.DefaultRegistry()
	}
	if cfg.FeeBps == 0 {
		cfg.FeeBps = defaultFeeBps
	}
	if cfg.Client == nil {
		cfg.Client = NewFacilitatorClient(cfg.FacilitatorURL)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NoopLogger{}
	}

	return func(c *gin.Context) {
		resource := cfg.Resource
		if resource == "" {
			resource = requestURL(c.Request)
		}

		requirement := types.PaymentRequirements{
			Scheme:            types.Scheme,
			Network:           cfg.Network,
			MaxAmountRequired: cfg.Amount,
			PayTo:             cfg.PayTo,
			Resource:          resource,
		}

		header := c.GetHeader("X-PAYMENT")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, buildInvoice(cfg, requirement))
			return
		}

		payload, err := decodePaymentHeader(header)
		if err != nil {
			cfg.Logger.Warn("invalid payment header", map[string]any{"error": err.Error()})
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"x402Version": types.X402Version,
				"error":       types.ReasonInvalidPaymentPayload,
			})
			return
		}

		req := &types.VerifyRequest{
			X402Version:         types.X402Version,
			PaymentPayload:      *payload,
			PaymentRequirements: requirement,
		}

		verifyResult, err := cfg.Client.Verify(c.Request.Context(), req)
		if err != nil {
			cfg.Logger.Error("facilitator verify failed", map[string]any{"error": err.Error()})
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": types.ReasonNetworkError})
			return
		}
		if !verifyResult.IsValid {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":  "payment verification failed",
				"reason": verifyResult.InvalidReason,
			})
			return
		}

		settleResult, err := cfg.Client.Settle(c.Request.Context(), req)
		if err != nil {
			cfg.Logger.Error("facilitator settle failed", map[string]any{"error": err.Error()})
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": types.ReasonNetworkError})
			return
		}
		if !settleResult.Success {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":  "payment settlement failed",
				"reason": settleResult.ErrorReason,
			})
			return
		}

		c.Set(PaymentContextKey, settleResult)
		c.Next()
	}
}

func decodePaymentHeader(header string) (*types.PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, err
	}

	var payload types.PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

// EncodePaymentHeader is the inverse of the header decode, for payer
// clients assembling the retry request.
func EncodePaymentHeader(payload *types.PaymentPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func buildInvoice(cfg Config, requirement types.PaymentRequirements) types.Invoice {
	return types.Invoice{
		X402Version:             types.X402Version,
		Accepts:                 []types.PaymentRequirements{requirement},
		Facilitator:             cfg.FacilitatorURL,
		AvailablePaymentOptions: buildPaymentOptions(cfg),
	}
}

// buildPaymentOptions quotes the accepted edge-chain tokens. The total is
// the required amount plus the protocol fee; non-settlement tokens are
// rescaled to their own decimals through the configured rate.
func buildPaymentOptions(cfg Config) []types.PaymentOption {
	amount, err := decimal.NewFromString(cfg.Amount)
	if err != nil {
		return nil
	}

	fee := amount.Mul(decimal.NewFromInt(cfg.FeeBps)).Div(decimal.NewFromInt(10000))
	total := amount.Add(fee)

	options := make([]types.PaymentOption, 0)
	for _, chain := range cfg.Registry.All() {
		for _, token := range chain.Tokens {
			opt := types.PaymentOption{
				ChainID:  chain.ChainID,
				Token:    token.Address,
				Symbol:   token.Symbol,
				Decimals: token.Decimals,
			}

			if strings.EqualFold(token.Symbol, "USDC") {
				opt.EstimatedAmount = total.Ceil().String()
			} else if rate, ok := cfg.TokenRates[token.Symbol]; ok {
				// Rescale from 6-decimal settlement units to the
				// token's own atomic units before applying the rate.
				estimated := total.Shift(token.Decimals - 6).Mul(rate)
				opt.EstimatedAmount = estimated.Ceil().String()
			}

			options = append(options, opt)
		}
	}
	return options
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
