package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/askdb/pkg/schema"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithBaseURL overrides the API base URL (for proxies and compatible servers).
func WithBaseURL(u string) OpenAIOption {
	return func(c *OpenAIClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithModel sets the default model used when a request does not name one.
func WithModel(m string) OpenAIOption {
	return func(c *OpenAIClient) { c.model = m }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *OpenAIClient) { c.client = hc }
}

// NewOpenAIClient creates a client for the chat completions API.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, schema.NewError(schema.ErrCodeLLMClient, "missing API key")
	}
	c := &OpenAIClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one chat completion request and returns the trimmed text.
// All failures (transport, auth, rate limit, malformed response) surface as
// LLM_CLIENT_ERROR.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := chatRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeLLMClient, "marshal request: %s", err.Error()).WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeLLMClient, "build request: %s", err.Error()).WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeLLMClient, "completion request failed: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"error_type": "connection_error"})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeLLMClient, "read response: %s", err.Error()).WithCause(err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", schema.NewError(schema.ErrCodeLLMClient, "rate limit exceeded").
			WithDetails(map[string]any{"error_type": "rate_limit", "status_code": resp.StatusCode})
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("API returned status %d", resp.StatusCode)
		var parsed chatResponse
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", schema.NewError(schema.ErrCodeLLMClient, msg).
			WithDetails(map[string]any{"error_type": "api_error", "status_code": resp.StatusCode})
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeLLMClient, "decode response: %s", err.Error()).WithCause(err)
	}
	if len(parsed.Choices) == 0 {
		return "", schema.NewError(schema.ErrCodeLLMClient, "no choices in response")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", schema.NewError(schema.ErrCodeLLMClient, "empty completion")
	}
	return text, nil
}

var _ Client = (*OpenAIClient)(nil)
