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

// GoogleClient talks to the Gemini generateContent API.
type GoogleClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type googleRequest struct {
	SystemInstruction *googleContent  `json:"systemInstruction,omitempty"`
	Contents          []googleContent `json:"contents"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleResponse struct {
	Candidates []struct {
		Content struct {
			Parts []googlePart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// NewGoogleClient creates a client for the Gemini API.
func NewGoogleClient(apiKey string) *GoogleClient {
	return &GoogleClient{
		apiKey:  apiKey,
		baseURL: "https://generativelanguage.googleapis.com/v1beta/models",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Complete implements the Adapter interface. Gemini names the assistant
// role "model" and takes the system prompt as a separate instruction
// block; turn order is preserved.
func (c *GoogleClient) Complete(ctx context.Context, model catalog.ModelDescriptor, turns []Turn) (*Completion, error) {
	req := &googleRequest{}
	for _, t := range turns {
		if t.Role == RoleSystem {
			req.SystemInstruction = &googleContent{Parts: []googlePart{{Text: t.Content}}}
			continue
		}
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, googleContent{
			Role:  role,
			Parts: []googlePart{{Text: t.Content}},
		})
	}

	resp, err := c.makeRequest(ctx, model.WireName(), req)
	if err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("Gemini returned no candidates")
	}

	text := ""
	for _, p := range resp.Candidates[0].Content.Parts {
		text += p.Text
	}

	completion := &Completion{Text: text}
	if resp.UsageMetadata != nil {
		completion.InputTokens = resp.UsageMetadata.PromptTokenCount
		completion.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	} else {
		completion.Unmetered = true
	}
	return completion, nil
}

func (c *GoogleClient) makeRequest(ctx context.Context, model string, req *googleRequest) (*googleResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
			return nil, fmt.Errorf("RATE_LIMIT: Gemini API rate limit exceeded. Please wait before retrying")
		case 403:
			return nil, fmt.Errorf("FORBIDDEN: Gemini API access denied - check API key permissions")
		case 401:
			return nil, fmt.Errorf("UNAUTHORIZED: Invalid Gemini API key")
		case 500, 502, 503, 504:
			return nil, fmt.Errorf("SERVICE_ERROR: Gemini service temporarily unavailable (status %d)", resp.StatusCode)
		default:
			return nil, fmt.Errorf("API_ERROR: Gemini request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}

	var gResp googleResponse
	if err := json.Unmarshal(body, &gResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if gResp.Error != nil {
		return nil, fmt.Errorf("Gemini API error: %s", gResp.Error.Message)
	}

	return &gResp, nil
}
