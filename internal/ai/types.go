// Package ai fans a conversation out to multiple model providers and
// normalizes their heterogeneous APIs behind one call contract.
package ai

import (
	"context"
	"time"

	"multichat/internal/catalog"
)

// Turn is one entry of a conversation in provider-neutral form.
// Role is system, user, or assistant.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completion is a normalized provider response.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int

	// Unmetered is set when the provider did not report token usage.
	// The text is still returned, but it must not be billed as if the
	// counts were zero by choice.
	Unmetered bool
}

// Adapter translates the neutral call contract into one vendor's API.
type Adapter interface {
	// Complete sends the conversation to the provider and returns the
	// normalized result. Implementations must respect ctx cancellation.
	Complete(ctx context.Context, model catalog.ModelDescriptor, turns []Turn) (*Completion, error)
}

// CallResult is the outcome of one model invocation inside a fan-out.
// Exactly one of Completion or Err is meaningful.
type CallResult struct {
	ModelID      string        `json:"model_id"`
	ModelName    string        `json:"model_name"`
	Text         string        `json:"text,omitempty"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Unmetered    bool          `json:"unmetered,omitempty"`
	Err          string        `json:"error,omitempty"`
	Duration     time.Duration `json:"-"`
}

// OK reports whether the invocation produced a usable completion.
func (r *CallResult) OK() bool {
	return r.Err == ""
}
