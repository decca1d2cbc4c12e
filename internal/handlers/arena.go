package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"multichat/internal/ai"
	"multichat/internal/arbiter"
	"multichat/internal/catalog"
	"multichat/internal/ledger"
	"multichat/internal/middleware"
)

type compareRequest struct {
	Models  []string `json:"models" binding:"required"`
	Prompt  string   `json:"prompt" binding:"required"`
	FileIDs []uint   `json:"file_ids"`
}

type arbitrateRequest struct {
	Prompt     string              `json:"prompt" binding:"required"`
	Candidates []arbiter.Candidate `json:"candidates" binding:"required"`
}

// Compare fans one prompt out to several models side by side.
func (h *Handler) Compare(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	result, err := h.Arena.Compare(c.Request.Context(), userID, req.Models, req.Prompt, req.FileIDs)
	if err != nil {
		var insufficient *ledger.InsufficientFundsError
		var invalid *ai.ErrInvalidRequest
		var unknown *catalog.ErrUnknownModel
		switch {
		case errors.As(err, &insufficient):
			c.JSON(http.StatusPaymentRequired, StandardResponse{
				Success: false,
				Error:   err.Error(),
				Code:    "INSUFFICIENT_FUNDS",
				Data:    result,
			})
		case errors.As(err, &invalid), errors.As(err, &unknown):
			respondError(c, http.StatusBadRequest, err.Error(), "INVALID_COMPARISON")
		default:
			respondError(c, http.StatusInternalServerError, "Comparison failed", "COMPARE_FAILED")
		}
		return
	}
	respondOK(c, http.StatusOK, result)
}

// Arbitrate asks the judge model to rank previously collected answers.
func (h *Handler) Arbitrate(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req arbitrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	result, err := h.Arbiter.Arbitrate(c.Request.Context(), userID, req.Prompt, req.Candidates)
	if err != nil {
		var insufficient *ledger.InsufficientFundsError
		var judge *arbiter.JudgeError
		switch {
		case errors.As(err, &insufficient):
			respondError(c, http.StatusPaymentRequired, err.Error(), "INSUFFICIENT_FUNDS")
		case errors.Is(err, arbiter.ErrTooFewResponses):
			respondError(c, http.StatusBadRequest, err.Error(), "TOO_FEW_RESPONSES")
		case errors.As(err, &judge):
			respondError(c, http.StatusBadGateway, err.Error(), "PROVIDER_ERROR")
		default:
			respondError(c, http.StatusInternalServerError, "Arbitration failed", "ARBITRATION_FAILED")
		}
		return
	}
	respondOK(c, http.StatusOK, result)
}
