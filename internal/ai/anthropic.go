package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"multichat/internal/catalog"
)

// AnthropicClient talks to the Anthropic messages API.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const anthropicMaxTokens = 8192

// NewAnthropicClient creates a client for the Anthropic API.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:  apiKey,
		baseURL: "https://api.anthropic.com/v1/messages",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Complete implements the Adapter interface. Anthropic takes the system
// prompt as a top-level field, so system turns are lifted out of the
// message list; user/assistant turn order is preserved.
func (c *AnthropicClient) Complete(ctx context.Context, model catalog.ModelDescriptor, turns []Turn) (*Completion, error) {
	var system string
	messages := make([]anthropicMessage, 0, len(turns))
	for _, t := range turns {
		if t.Role == RoleSystem {
			system = t.Content
			continue
		}
		messages = append(messages, anthropicMessage{Role: t.Role, Content: t.Content})
	}

	resp, err := c.makeRequest(ctx, &anthropicRequest{
		Model:     model.WireName(),
		MaxTokens: anthropicMaxTokens,
		System:    system,
		Messages:  messages,
	})
	if err != nil {
		return nil, err
	}

	text := ""
	if len(resp.Content) > 0 && resp.Content[0].Type == "text" {
		text = resp.Content[0].Text
	}

	completion := &Completion{Text: text}
	if resp.Usage != nil {
		completion.InputTokens = resp.Usage.InputTokens
		completion.OutputTokens = resp.Usage.OutputTokens
	} else {
		completion.Unmetered = true
	}
	return completion, nil
}

func (c *AnthropicClient) makeRequest(ctx context.Context, req *anthropicRequest) (*anthropicResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case 429:
			return nil, fmt.Errorf("RATE_LIMIT: Anthropic API rate limit exceeded. Please wait before retrying")
		case 403:
			return nil, fmt.Errorf("FORBIDDEN: Anthropic API access denied - check API key permissions")
		case 401:
			return nil, fmt.Errorf("UNAUTHORIZED: Invalid Anthropic API key")
		case 402:
			return nil, fmt.Errorf("QUOTA_EXCEEDED: Anthropic API quota exhausted. Add credits or use another provider")
		case 500, 502, 503, 504, 529:
			return nil, fmt.Errorf("SERVICE_ERROR: Anthropic service temporarily unavailable (status %d)", resp.StatusCode)
		default:
			return nil, fmt.Errorf("API_ERROR: Anthropic request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}

	var aResp anthropicResponse
	if err := json.Unmarshal(body, &aResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if aResp.Error != nil {
		return nil, fmt.Errorf("Anthropic API error: %s", aResp.Error.Message)
	}

	return &aResp, nil
}
