package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"multichat/internal/catalog"
	"multichat/internal/chat"
	"multichat/internal/ledger"
	"multichat/internal/middleware"
)

type createConversationRequest struct {
	Model string `json:"model" binding:"required"`
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
	FileIDs []uint `json:"file_ids"`
}

type renameRequest struct {
	Title string `json:"title" binding:"required,max=200"`
}

// ListModels returns the models usable with the configured credentials.
func (h *Handler) ListModels(c *gin.Context) {
	descriptors := h.Catalog.ListAvailable()
	out := make([]gin.H, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, gin.H{
			"id":                 d.ID,
			"name":               d.DisplayName,
			"provider":           d.Provider,
			"input_price_per_m":  d.InputPricePerM,
			"output_price_per_m": d.OutputPricePerM,
		})
	}
	respondOK(c, http.StatusOK, out)
}

// CreateConversation starts a new conversation bound to one model.
func (h *Handler) CreateConversation(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	conv, err := h.Chat.CreateConversation(c.Request.Context(), userID, req.Model, req.Title)
	if err != nil {
		var unknown *catalog.ErrUnknownModel
		if errors.As(err, &unknown) {
			respondError(c, http.StatusBadRequest, err.Error(), "UNKNOWN_MODEL")
			return
		}
		respondError(c, http.StatusInternalServerError, "Failed to create conversation", "DATABASE_ERROR")
		return
	}
	respondOK(c, http.StatusCreated, conv)
}

// ListConversations returns the user's conversations, most recent first.
func (h *Handler) ListConversations(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	convs, err := h.Chat.ListConversations(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to list conversations", "DATABASE_ERROR")
		return
	}
	respondOK(c, http.StatusOK, convs)
}

// GetConversation returns one conversation with its messages.
func (h *Handler) GetConversation(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	conv, err := h.Chat.GetConversation(c.Request.Context(), userID, convID)
	if err != nil {
		respondConversationError(c, err)
		return
	}
	messages, err := h.Chat.Messages(c.Request.Context(), userID, convID)
	if err != nil {
		respondConversationError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"conversation": conv, "messages": messages})
}

// RenameConversation updates the conversation title.
func (h *Handler) RenameConversation(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	conv, err := h.Chat.Rename(c.Request.Context(), userID, convID, req.Title)
	if err != nil {
		respondConversationError(c, err)
		return
	}
	respondOK(c, http.StatusOK, conv)
}

// DeleteConversation removes a conversation and its messages.
func (h *Handler) DeleteConversation(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.Chat.Delete(c.Request.Context(), userID, convID); err != nil {
		respondConversationError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": true})
}

// SendMessage sends a user message and returns the model's reply.
func (h *Handler) SendMessage(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	result, err := h.Chat.Send(c.Request.Context(), userID, convID, req.Content, req.FileIDs)
	if err != nil {
		var insufficient *ledger.InsufficientFundsError
		var provider *chat.ProviderError
		switch {
		case errors.As(err, &insufficient):
			// The reply text is returned but was not billed or saved.
			c.JSON(http.StatusPaymentRequired, StandardResponse{
				Success: false,
				Error:   err.Error(),
				Code:    "INSUFFICIENT_FUNDS",
				Data:    result,
			})
		case errors.Is(err, chat.ErrBalanceExhausted):
			respondError(c, http.StatusPaymentRequired, "Insufficient balance", "INSUFFICIENT_FUNDS")
		case errors.As(err, &provider):
			respondError(c, http.StatusBadGateway, err.Error(), "PROVIDER_ERROR")
		case errors.Is(err, chat.ErrEmptyMessage):
			respondError(c, http.StatusBadRequest, err.Error(), "EMPTY_MESSAGE")
		case errors.Is(err, chat.ErrConversationNotFound):
			respondError(c, http.StatusNotFound, "Conversation not found", "NOT_FOUND")
		default:
			respondError(c, http.StatusInternalServerError, "Failed to send message", "SEND_FAILED")
		}
		return
	}
	respondOK(c, http.StatusOK, result)
}

func respondConversationError(c *gin.Context, err error) {
	if errors.Is(err, chat.ErrConversationNotFound) {
		respondError(c, http.StatusNotFound, "Conversation not found", "NOT_FOUND")
		return
	}
	respondError(c, http.StatusInternalServerError, "Conversation operation failed", "DATABASE_ERROR")
}
