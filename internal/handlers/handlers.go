// Package handlers provides the REST API surface over the core
// services.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"multichat/internal/arbiter"
	"multichat/internal/arena"
	"multichat/internal/auth"
	"multichat/internal/catalog"
	"multichat/internal/chat"
	"multichat/internal/files"
	"multichat/internal/ledger"
	"multichat/internal/payments"
	"multichat/internal/stats"
)

// Handler carries the service dependencies for all API handlers.
type Handler struct {
	DB            *gorm.DB
	Auth          *auth.Service
	Catalog       *catalog.Catalog
	Chat          *chat.Service
	Arena         *arena.Service
	Arbiter       *arbiter.Service
	Files         *files.Service
	Ledger        *ledger.Service
	Stats         *stats.Service
	Payments      *payments.Service
	SignupBalance float64
}

// StandardResponse is the envelope for all JSON responses.
type StandardResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, StandardResponse{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, message, code string) {
	c.JSON(status, StandardResponse{Success: false, Error: message, Code: code})
}

// pathID parses a numeric path parameter.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "invalid "+name, "INVALID_ID")
		return 0, false
	}
	return uint(id), true
}

// Health reports service liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
