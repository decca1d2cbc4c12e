// Package arena sends one prompt to several models side by side and
// settles the whole comparison as a single batch.
package arena

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"multichat/internal/ai"
	"multichat/internal/files"
	"multichat/internal/ledger"
	"multichat/internal/logging"
	"multichat/pkg/models"
)

// ErrEmptyPrompt rejects blank prompts before any provider call.
var ErrEmptyPrompt = errors.New("arena: prompt is empty")

// ModelResponse is one model's answer inside a comparison.
type ModelResponse struct {
	Model        string  `json:"model"`
	ModelName    string  `json:"model_name"`
	Response     string  `json:"response"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	Error        string  `json:"error,omitempty"`
}

// CompareResult is the outcome of a comparison. Failed models carry an
// error string and contribute nothing to TotalCost.
type CompareResult struct {
	Prompt    string          `json:"prompt"`
	Responses []ModelResponse `json:"responses"`
	TotalCost float64         `json:"total_cost"`

	// Billed is false when settlement was rejected for insufficient
	// funds; the responses are still returned but were not charged.
	Billed bool `json:"billed"`
}

// Service runs arena comparisons.
type Service struct {
	dispatcher *ai.Dispatcher
	ledger     *ledger.Service
	files      *files.Service
}

// NewService wires the arena service.
func NewService(d *ai.Dispatcher, l *ledger.Service, f *files.Service) *Service {
	return &Service{dispatcher: d, ledger: l, files: f}
}

// Compare fans the prompt out to every listed model, prices the
// successful answers, and settles them as one all-or-nothing batch
// tagged "arena". Per-model failures are isolated; they appear in the
// result with an error string and are not billed.
func (s *Service) Compare(ctx context.Context, userID uint, modelIDs []string, prompt string, fileIDs []uint) (*CompareResult, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	fileContext, err := s.files.BuildContext(ctx, userID, fileIDs)
	if err != nil {
		return nil, err
	}

	turns := []ai.Turn{{Role: ai.RoleUser, Content: prompt + fileContext}}
	callResults, err := s.dispatcher.InvokeMany(ctx, modelIDs, turns)
	if err != nil {
		return nil, err
	}

	result := &CompareResult{
		Prompt:    prompt,
		Responses: make([]ModelResponse, len(callResults)),
	}

	var entries []ledger.UsageEntry
	for i, cr := range callResults {
		resp := ModelResponse{
			Model:        cr.ModelID,
			ModelName:    cr.ModelName,
			Response:     cr.Text,
			InputTokens:  cr.InputTokens,
			OutputTokens: cr.OutputTokens,
			Error:        cr.Err,
		}
		if cr.OK() {
			entry := ledger.UsageEntry{
				ModelID:      cr.ModelID,
				InputTokens:  cr.InputTokens,
				OutputTokens: cr.OutputTokens,
				Unmetered:    cr.Unmetered,
			}
			resp.Cost = s.ledger.Cost(entry)
			entries = append(entries, entry)
		}
		result.Responses[i] = resp
		result.TotalCost += resp.Cost
	}

	// Every model failed: nothing to bill, return the errors as-is.
	if len(entries) == 0 {
		return result, nil
	}

	if _, err := s.ledger.Settle(ctx, userID, models.UsageArena, entries); err != nil {
		var insufficient *ledger.InsufficientFundsError
		if errors.As(err, &insufficient) {
			logging.L().Warn("arena comparison rejected for insufficient funds",
				zap.Uint("user_id", userID),
				zap.Float64("required", insufficient.Required),
				zap.Float64("available", insufficient.Available))
			return result, err
		}
		return nil, err
	}

	result.Billed = true
	return result, nil
}
