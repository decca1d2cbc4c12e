package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"multichat/internal/auth"
	"multichat/internal/logging"
	"multichat/internal/metrics"
	"multichat/internal/middleware"
	"multichat/pkg/models"
)

// Register creates a new account, credits the signup balance, and
// returns an access token.
func (h *Handler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	user, err := h.Auth.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			respondError(c, http.StatusConflict, "User with this email or username already exists", "USER_EXISTS")
			return
		}
		respondError(c, http.StatusInternalServerError, "Failed to create user", "USER_CREATION_FAILED")
		return
	}

	if h.SignupBalance > 0 {
		if _, err := h.Ledger.AdjustBalance(c.Request.Context(), user.ID, h.SignupBalance, models.TxDeposit, "signup credit"); err != nil {
			// The account still works, it just starts at zero.
			logging.L().Error("Failed to credit signup balance",
				zap.Uint("user_id", user.ID),
				zap.Error(err))
		} else {
			user.Balance = h.SignupBalance
		}
	}

	token, err := h.Auth.GenerateToken(user)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to generate token", "TOKEN_GENERATION_FAILED")
		return
	}

	metrics.Get().SignupsTotal.Inc()
	respondOK(c, http.StatusCreated, gin.H{"user": userView(user), "token": token})
}

// Login authenticates with username and password.
func (h *Handler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	user, token, err := h.Auth.Login(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			respondError(c, http.StatusUnauthorized, "Invalid username or password", "INVALID_CREDENTIALS")
		case errors.Is(err, auth.ErrUserInactive):
			respondError(c, http.StatusForbidden, "Account is deactivated", "ACCOUNT_DISABLED")
		default:
			respondError(c, http.StatusInternalServerError, "Login failed", "LOGIN_FAILED")
		}
		return
	}

	respondOK(c, http.StatusOK, gin.H{"user": userView(user), "token": token})
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required", "AUTH_REQUIRED")
		return
	}
	respondOK(c, http.StatusOK, userView(user))
}

func userView(u *models.User) gin.H {
	return gin.H{
		"id":        u.ID,
		"username":  u.Username,
		"email":     u.Email,
		"balance":   u.Balance,
		"is_admin":  u.IsAdmin,
		"is_active": u.IsActive,
	}
}
