package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"multichat/internal/ledger"
	"multichat/pkg/models"
)

type adjustBalanceRequest struct {
	Amount      float64 `json:"amount" binding:"required"`
	Description string  `json:"description"`
}

// AdminOverview returns platform-wide usage and revenue figures.
func (h *Handler) AdminOverview(c *gin.Context) {
	overview, err := h.Stats.AdminOverview(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to compute overview", "DATABASE_ERROR")
		return
	}
	respondOK(c, http.StatusOK, overview)
}

// AdminListUsers returns all accounts.
func (h *Handler) AdminListUsers(c *gin.Context) {
	var users []models.User
	if err := h.DB.WithContext(c.Request.Context()).Order("id").Find(&users).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to list users", "DATABASE_ERROR")
		return
	}

	out := make([]gin.H, 0, len(users))
	for i := range users {
		out = append(out, userView(&users[i]))
	}
	respondOK(c, http.StatusOK, out)
}

// AdminAdjustBalance applies a manual signed correction to a user's
// balance.
func (h *Handler) AdminAdjustBalance(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req adjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	description := req.Description
	if description == "" {
		description = "manual adjustment"
	}

	tx, err := h.Ledger.AdjustBalance(c.Request.Context(), userID, req.Amount, models.TxAdminAdjustment, description)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "User not found", "NOT_FOUND")
			return
		}
		respondError(c, http.StatusInternalServerError, "Adjustment failed", "DATABASE_ERROR")
		return
	}
	respondOK(c, http.StatusOK, tx)
}

// AdminSetActive enables or disables an account.
func (h *Handler) AdminSetActive(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	res := h.DB.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("is_active", *req.IsActive)
	if res.Error != nil {
		respondError(c, http.StatusInternalServerError, "Update failed", "DATABASE_ERROR")
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, http.StatusNotFound, "User not found", "NOT_FOUND")
		return
	}
	respondOK(c, http.StatusOK, gin.H{"is_active": *req.IsActive})
}
