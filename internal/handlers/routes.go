package handlers

import (
	"github.com/gin-gonic/gin"

	"multichat/internal/metrics"
	"multichat/internal/middleware"
)

// RegisterRoutes mounts the full API onto the router.
func (h *Handler) RegisterRoutes(r *gin.Engine, limiter *middleware.ClientRateLimiter) {
	r.GET("/health", h.Health)
	r.GET("/metrics", metrics.PrometheusHandler())

	api := r.Group("/api/v1")
	if limiter != nil {
		api.Use(limiter.Middleware())
	}

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	// Stripe calls this endpoint directly; signature verification
	// replaces bearer auth.
	api.POST("/payments/webhook", h.StripeWebhook)

	authed := api.Group("")
	authed.Use(middleware.RequireAuth(h.Auth))
	{
		authed.GET("/auth/me", h.Me)
		authed.GET("/models", h.ListModels)

		authed.POST("/conversations", h.CreateConversation)
		authed.GET("/conversations", h.ListConversations)
		authed.GET("/conversations/:id", h.GetConversation)
		authed.PATCH("/conversations/:id", h.RenameConversation)
		authed.DELETE("/conversations/:id", h.DeleteConversation)
		authed.POST("/conversations/:id/messages", h.SendMessage)

		authed.POST("/arena/compare", h.Compare)
		authed.POST("/arena/arbitrate", h.Arbitrate)

		authed.POST("/files", h.UploadFile)
		authed.GET("/files", h.ListFiles)
		authed.GET("/files/:id", h.DownloadFile)
		authed.DELETE("/files/:id", h.DeleteFile)

		authed.GET("/billing/balance", h.Balance)
		authed.GET("/billing/transactions", h.Transactions)
		authed.GET("/billing/usage", h.UsageHistory)
		authed.GET("/billing/stats", h.UserStats)
		authed.POST("/payments/deposit", h.CreateDeposit)
	}

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.GET("/overview", h.AdminOverview)
		admin.GET("/users", h.AdminListUsers)
		admin.POST("/users/:id/balance", h.AdminAdjustBalance)
		admin.POST("/users/:id/active", h.AdminSetActive)
	}
}
