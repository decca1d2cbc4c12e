package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"multichat/internal/middleware"
	"multichat/internal/payments"
)

type depositRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// Balance returns the user's current balance.
func (h *Handler) Balance(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	balance, err := h.Ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to read balance", "DATABASE_ERROR")
		return
	}
	respondOK(c, http.StatusOK, gin.H{"balance": balance})
}

// Transactions returns the user's recent balance movements.
func (h *Handler) Transactions(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	txs, err := h.Ledger.History(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to read transactions", "DATABASE_ERROR")
		return
	}
	respondOK(c, http.StatusOK, txs)
}

// UsageHistory returns the user's recent metered calls.
func (h *Handler) UsageHistory(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	logs, err := h.Ledger.Usage(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to read usage history", "DATABASE_ERROR")
		return
	}
	respondOK(c, http.StatusOK, logs)
}

// UserStats returns aggregated spending and token figures.
func (h *Handler) UserStats(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	s, err := h.Stats.UserStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to compute stats", "DATABASE_ERROR")
		return
	}
	respondOK(c, http.StatusOK, s)
}

// CreateDeposit starts a Stripe Checkout session for a balance top-up.
func (h *Handler) CreateDeposit(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required", "AUTH_REQUIRED")
		return
	}

	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	result, err := h.Payments.CreateDepositSession(c.Request.Context(), user, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrInvalidAmount):
			respondError(c, http.StatusBadRequest, err.Error(), "INVALID_AMOUNT")
		case errors.Is(err, payments.ErrNotConfigured):
			respondError(c, http.StatusServiceUnavailable, "Payments are not available", "PAYMENTS_DISABLED")
		default:
			respondError(c, http.StatusBadGateway, "Failed to create checkout session", "STRIPE_ERROR")
		}
		return
	}
	respondOK(c, http.StatusOK, result)
}

// StripeWebhook receives checkout completion events from Stripe.
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		respondError(c, http.StatusBadRequest, "cannot read payload", "INVALID_REQUEST")
		return
	}

	result, err := h.Payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidWebhook) {
			respondError(c, http.StatusBadRequest, err.Error(), "INVALID_SIGNATURE")
			return
		}
		respondError(c, http.StatusInternalServerError, "Webhook processing failed", "WEBHOOK_FAILED")
		return
	}
	respondOK(c, http.StatusOK, gin.H{"received": true, "deposit": result})
}

// queryLimit parses the optional ?limit= parameter.
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
