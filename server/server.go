// Package server exposes the facilitator over HTTP: health and
// supported-chain advertisement, the merchant-scoped settlements read, and
// the verify/settle operations. Input-shape errors are rejected here with
// 400 and never reach the verifier.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omni402/omnitab/chains"
	"github.com/omni402/omnitab/logger"
	"github.com/omni402/omnitab/settlement"
	"github.com/omni402/omnitab/types"
	"github.com/omni402/omnitab/verification"
)

// maxMerchantPayments caps the /payments/:merchant read.
const maxMerchantPayments = 50

// PaymentsLister is the read-side store capability the server needs.
type PaymentsLister interface {
	ListByMerchant(ctx context.Context, merchant string, limit int) ([]*types.Settlement, error)
}

// Handler bundles the facilitator's HTTP dependencies.
type Handler struct {
	verifier   verification.Verifier
	settler    settlement.Settler
	payments   PaymentsLister
	registry   *chains.Registry
	hubNetwork string
	logger     logger.Logger
}

// NewHandler wires the HTTP layer. Nil logger falls back to the no-op.
func NewHandler(verifier verification.Verifier, settler settlement.Settler, payments PaymentsLister, registry *chains.Registry, hubNetwork string, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Handler{
		verifier:   verifier,
		settler:    settler,
		payments:   payments,
		registry:   registry,
		hubNetwork: hubNetwork,
		logger:     log,
	}
}

// Router builds the gin engine with all facilitator routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.handleHealth)
	r.GET("/supported", h.handleSupported)
	r.GET("/payments/:merchant", h.handlePayments)
	r.POST("/verify", h.handleVerify)
	r.POST("/settle", h.handleSettle)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleSupported(c *gin.Context) {
	c.JSON(http.StatusOK, types.SupportedResponse{
		Kinds: []types.SupportedItem{
			{Scheme: types.Scheme, Network: h.hubNetwork},
		},
		SourceChains: h.registry.SourceChains(),
	})
}

func (h *Handler) handlePayments(c *gin.Context) {
	merchant := c.Param("merchant")

	payments, err := h.payments.ListByMerchant(c.Request.Context(), merchant, maxMerchantPayments)
	if err != nil {
		h.logger.Error("payments lookup failed", map[string]any{
			"merchant": merchant,
			"error":    err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": types.ReasonNetworkError})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *Handler) handleVerify(c *gin.Context) {
	var req types.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.ReasonInvalidPaymentPayload,
		})
		return
	}
	if err := req.Validate(); err != nil {
		h.logger.Debug("verify request rejected", map[string]any{"error": err.Error()})
		c.JSON(http.StatusBadRequest, types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.ReasonInvalidPaymentPayload,
		})
		return
	}

	c.JSON(http.StatusOK, h.verifier.Verify(c.Request.Context(), &req))
}

func (h *Handler) handleSettle(c *gin.Context) {
	var req types.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.SettleResponse{
			Success:     false,
			ErrorReason: types.ReasonInvalidPaymentPayload,
		})
		return
	}
	if err := req.Validate(); err != nil {
		h.logger.Debug("settle request rejected", map[string]any{"error": err.Error()})
		c.JSON(http.StatusBadRequest, types.SettleResponse{
			Success:     false,
			ErrorReason: types.ReasonInvalidPaymentPayload,
			Network:     req.PaymentPayload.Network,
		})
		return
	}

	c.JSON(http.StatusOK, h.settler.Settle(c.Request.Context(), &req))
}
