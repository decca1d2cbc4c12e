// Package arbiter asks one designated judge model to compare arena
// answers and pick a winner.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"multichat/internal/ai"
	"multichat/internal/ledger"
	"multichat/pkg/models"
)

// DefaultArbiterModel is the judge used unless overridden. No fallback
// is attempted if it fails.
const DefaultArbiterModel = "gpt-5.2"

// ErrTooFewResponses rejects arbitration over fewer than 2 candidates.
var ErrTooFewResponses = errors.New("arbiter: need at least 2 responses to arbitrate")

// JudgeError means the judge model itself failed to answer.
type JudgeError struct {
	Detail string
}

func (e *JudgeError) Error() string {
	return fmt.Sprintf("arbiter: judge call failed: %s", e.Detail)
}

// Candidate is one model answer handed to the judge.
type Candidate struct {
	Model     string `json:"model"`
	ModelName string `json:"model_name"`
	Response  string `json:"response"`
}

// Result is the judge's verdict plus what it cost.
type Result struct {
	Summary string  `json:"summary"`
	Cost    float64 `json:"cost"`
}

// Service runs arbitrations.
type Service struct {
	dispatcher *ai.Dispatcher
	ledger     *ledger.Service
	model      string
}

// NewService wires the arbitration service. An empty model selects the
// default judge.
func NewService(d *ai.Dispatcher, l *ledger.Service, model string) *Service {
	if model == "" {
		model = DefaultArbiterModel
	}
	return &Service{dispatcher: d, ledger: l, model: model}
}

// Arbitrate sends the prompt and all candidate answers to the judge
// model, settles one usage entry tagged "arbitration", and returns the
// verdict. A judge failure surfaces as a plain error; nothing is billed.
func (s *Service) Arbitrate(ctx context.Context, userID uint, prompt string, candidates []Candidate) (*Result, error) {
	if len(candidates) < 2 {
		return nil, ErrTooFewResponses
	}

	turns := []ai.Turn{{Role: ai.RoleUser, Content: buildPrompt(prompt, candidates)}}
	call, err := s.dispatcher.Invoke(ctx, s.model, turns)
	if err != nil {
		return nil, err
	}
	if !call.OK() {
		return nil, &JudgeError{Detail: call.Err}
	}

	settle, err := s.ledger.Settle(ctx, userID, models.UsageArbitration, []ledger.UsageEntry{{
		ModelID:      s.model,
		InputTokens:  call.InputTokens,
		OutputTokens: call.OutputTokens,
		Unmetered:    call.Unmetered,
	}})
	if err != nil {
		return nil, err
	}

	return &Result{Summary: call.Text, Cost: settle.Debited}, nil
}

// buildPrompt lays out the original request and every labeled candidate
// answer, then asks the judge for a structured comparison.
func buildPrompt(prompt string, candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("You are an expert at evaluating AI model answers. Analyze the following responses from different models to the same request.\n\n")
	b.WriteString("**Original user request:**\n")
	b.WriteString(prompt)
	b.WriteString("\n\n**Model responses:**\n")

	for i, c := range candidates {
		fmt.Fprintf(&b, "\n--- Model %d: %s (%s) ---\n%s\n", i+1, c.ModelName, c.Model, c.Response)
	}

	b.WriteString(`
**Task:**
1. Compare the quality, accuracy, completeness, and usefulness of each response
2. Point out the strengths and weaknesses of each model
3. Decide which model gave the best answer and why
4. Give the user an overall recommendation

Use this structure:
- **Comparative analysis:** (brief comparison of approaches)
- **Strengths per model:** (for each model)
- **Weaknesses per model:** (for each model)
- **Winner:** (which model is best and why)
- **Recommendation:** (advice for the user)
`)
	return b.String()
}
