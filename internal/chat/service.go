// Package chat manages single-model conversations and bills each
// assistant reply against the user's balance.
package chat

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"go.uber.org/zap"

	"multichat/internal/ai"
	"multichat/internal/catalog"
	"multichat/internal/files"
	"multichat/internal/ledger"
	"multichat/internal/logging"
	"multichat/pkg/models"
)

// ErrConversationNotFound means the conversation does not exist or
// belongs to another user.
var ErrConversationNotFound = errors.New("chat: conversation not found")

// ErrEmptyMessage rejects blank prompts before any provider call.
var ErrEmptyMessage = errors.New("chat: message content is empty")

// ErrBalanceExhausted rejects a send when the balance is not positive.
// Provider tokens cost money, so a drained account never reaches the
// dispatcher.
var ErrBalanceExhausted = errors.New("chat: balance exhausted")

// ProviderError wraps a failed model call. Nothing is billed and no
// assistant message is persisted when it occurs.
type ProviderError struct {
	ModelID string
	Detail  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("chat: model %s failed: %s", e.ModelID, e.Detail)
}

// SendResult is the outcome of one chat turn.
type SendResult struct {
	Message *models.Message `json:"message"`
	Cost    float64         `json:"cost"`

	// Billed is false when settlement was rejected for insufficient
	// funds. The generated text is still returned for transparency but
	// was not persisted or charged.
	Billed bool `json:"billed"`
}

// Service runs the chat flow: persist the user turn, call the model
// with full history, settle the cost, persist the reply.
type Service struct {
	db         *gorm.DB
	catalog    *catalog.Catalog
	dispatcher *ai.Dispatcher
	ledger     *ledger.Service
	files      *files.Service
}

// NewService wires the chat service.
func NewService(db *gorm.DB, c *catalog.Catalog, d *ai.Dispatcher, l *ledger.Service, f *files.Service) *Service {
	return &Service{db: db, catalog: c, dispatcher: d, ledger: l, files: f}
}

// CreateConversation starts a new thread pinned to one model.
func (s *Service) CreateConversation(ctx context.Context, userID uint, modelID, title string) (*models.Conversation, error) {
	model, err := s.catalog.Resolve(modelID)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = model.DisplayName + " Chat"
	}

	conv := &models.Conversation{
		UserID: userID,
		Model:  model.ID,
		Title:  title,
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("chat: failed to create conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns the user's threads, most recently used first.
func (s *Service) ListConversations(ctx context.Context, userID uint) ([]models.Conversation, error) {
	var out []models.Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&out).Error
	return out, err
}

// GetConversation returns one thread owned by the user.
func (s *Service) GetConversation(ctx context.Context, userID, convID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", convID, userID).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Messages returns a conversation's turns in chronological order.
func (s *Service) Messages(ctx context.Context, userID, convID uint) ([]models.Message, error) {
	if _, err := s.GetConversation(ctx, userID, convID); err != nil {
		return nil, err
	}
	var out []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// Rename updates a conversation title.
func (s *Service) Rename(ctx context.Context, userID, convID uint, title string) (*models.Conversation, error) {
	conv, err := s.GetConversation(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	conv.Title = title
	if err := s.db.WithContext(ctx).Save(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

// Delete removes a conversation and its messages.
func (s *Service) Delete(ctx context.Context, userID, convID uint) error {
	conv, err := s.GetConversation(ctx, userID, convID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", convID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(conv).Error
	})
}

// Send appends the user's turn, calls the conversation's model with the
// full history, settles the cost, and persists the reply. Attached file
// text decorates only the outgoing turn; the stored message keeps the
// original content.
func (s *Service) Send(ctx context.Context, userID, convID uint, content string, fileIDs []uint) (*SendResult, error) {
	if content == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := s.GetConversation(ctx, userID, convID)
	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance <= 0 {
		return nil, ErrBalanceExhausted
	}

	fileContext, err := s.files.BuildContext(ctx, userID, fileIDs)
	if err != nil {
		return nil, err
	}

	// Persist the user's turn first, undecorated, so the thread is
	// intact even if the provider call fails.
	userMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           ai.RoleUser,
		Content:        content,
		Model:          conv.Model,
	}
	if err := s.db.WithContext(ctx).Create(userMsg).Error; err != nil {
		return nil, fmt.Errorf("chat: failed to persist message: %w", err)
	}

	history, err := s.Messages(ctx, userID, conv.ID)
	if err != nil {
		return nil, err
	}

	turns := make([]ai.Turn, 0, len(history))
	for i, msg := range history {
		text := msg.Content
		if i == len(history)-1 && fileContext != "" {
			text += fileContext
		}
		turns = append(turns, ai.Turn{Role: msg.Role, Content: text})
	}

	result, err := s.dispatcher.Invoke(ctx, conv.Model, turns)
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		// A failed generation is not billable: no record, no debit.
		return nil, &ProviderError{ModelID: conv.Model, Detail: result.Err}
	}

	cost := s.ledger.Cost(ledger.UsageEntry{
		ModelID:      conv.Model,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	})

	assistantMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           ai.RoleAssistant,
		Content:        result.Text,
		Model:          conv.Model,
		InputTokens:    result.InputTokens,
		OutputTokens:   result.OutputTokens,
		Cost:           cost,
	}

	_, err = s.ledger.Settle(ctx, userID, models.UsageChat, []ledger.UsageEntry{{
		ModelID:      conv.Model,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		Unmetered:    result.Unmetered,
	}})
	if err != nil {
		var insufficient *ledger.InsufficientFundsError
		if errors.As(err, &insufficient) {
			// Already-generated text goes back to the caller flagged
			// unbilled; it is not persisted to the thread.
			logging.L().Warn("chat reply rejected for insufficient funds",
				zap.Uint("user_id", userID),
				zap.Float64("required", insufficient.Required),
				zap.Float64("available", insufficient.Available))
			return &SendResult{Message: assistantMsg, Cost: cost, Billed: false}, err
		}
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(assistantMsg).Error; err != nil {
		return nil, fmt.Errorf("chat: failed to persist reply: %w", err)
	}

	// Bump updated_at so the sidebar orders by recent activity.
	s.db.WithContext(ctx).Model(conv).Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP"))

	return &SendResult{Message: assistantMsg, Cost: cost, Billed: true}, nil
}
