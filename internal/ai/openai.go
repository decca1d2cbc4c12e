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

// OpenAIClient talks to the OpenAI chat completions API. Together
// exposes the same wire format, so TogetherClient reuses it with a
// different base URL.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	vendor     string
	httpClient *http.Client
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a client for the OpenAI API.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1/chat/completions",
		vendor:  "OpenAI",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// NewTogetherClient creates a client for Together's OpenAI-compatible
// API, which serves the open-weight models (DeepSeek, Qwen).
func NewTogetherClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: "https://api.together.xyz/v1/chat/completions",
		vendor:  "Together",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Complete implements the Adapter interface. Turn order passes through
// unchanged; this wire format accepts system turns inline.
func (c *OpenAIClient) Complete(ctx context.Context, model catalog.ModelDescriptor, turns []Turn) (*Completion, error) {
	messages := make([]openAIMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, openAIMessage{Role: t.Role, Content: t.Content})
	}

	resp, err := c.makeRequest(ctx, &openAIRequest{
		Model:    model.WireName(),
		Messages: messages,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", c.vendor)
	}

	completion := &Completion{Text: resp.Choices[0].Message.Content}
	if resp.Usage != nil {
		completion.InputTokens = resp.Usage.PromptTokens
		completion.OutputTokens = resp.Usage.CompletionTokens
	} else {
		completion.Unmetered = true
	}
	return completion, nil
}

func (c *OpenAIClient) makeRequest(ctx context.Context, req *openAIRequest) (*openAIResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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
			return nil, fmt.Errorf("RATE_LIMIT: %s API rate limit exceeded. Please wait before retrying", c.vendor)
		case 403:
			return nil, fmt.Errorf("FORBIDDEN: %s API access denied - check API key permissions", c.vendor)
		case 401:
			return nil, fmt.Errorf("UNAUTHORIZED: Invalid %s API key", c.vendor)
		case 402:
			return nil, fmt.Errorf("QUOTA_EXCEEDED: %s API quota exhausted. Add credits or use another provider", c.vendor)
		case 500, 502, 503, 504:
			return nil, fmt.Errorf("SERVICE_ERROR: %s service temporarily unavailable (status %d)", c.vendor, resp.StatusCode)
		default:
			return nil, fmt.Errorf("API_ERROR: %s request failed with status %d: %s", c.vendor, resp.StatusCode, string(body))
		}
	}

	var oaResp openAIResponse
	if err := json.Unmarshal(body, &oaResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if oaResp.Error != nil {
		return nil, fmt.Errorf("%s API error: %s", c.vendor, oaResp.Error.Message)
	}

	return &oaResp, nil
}
