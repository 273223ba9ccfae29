package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chatdeck/chatdeck/internal/telemetry"
)

// maxResponseBody caps how much of an upstream response is read. Chat
// completions are small; anything larger is a misbehaving upstream.
const maxResponseBody = 4 << 20

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the part of an upstream completion the platform returns to
// clients.
type ChatResponse struct {
	Model            string `json:"model"`
	Content          string `json:"content"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// UpstreamError reports a non-2xx response from a provider.
type UpstreamError struct {
	Provider   Provider
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Client calls providers over their OpenAI-compatible chat-completions
// endpoints. One client handles all providers; the key and base URL vary per
// call.
type Client struct {
	httpClient *http.Client
	// baseURL overrides the provider's endpoint when non-empty. Tests use
	// this to point at a local server.
	baseURL string
}

// NewClient creates a Client whose upstream calls are bounded by timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type upstreamErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ChatCompletion sends a conversation to the provider and returns the first
// completion choice.
func (c *Client) ChatCompletion(ctx context.Context, provider Provider, apiKey, model string, messages []Message) (*ChatResponse, error) {
	base := c.baseURL
	if base == "" {
		base = provider.BaseURL()
	}
	if base == "" {
		return nil, fmt.Errorf("no endpoint known for provider %q", provider)
	}

	body, err := json.Marshal(chatCompletionRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	telemetry.UpstreamRequestDuration.WithLabelValues(provider.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ue := &UpstreamError{Provider: provider, StatusCode: resp.StatusCode, Message: "request failed"}
		var eb upstreamErrorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
			ue.Message = eb.Error.Message
		}
		return nil, ue
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", provider, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no completion choices", provider)
	}

	return &ChatResponse{
		Model:            parsed.Model,
		Content:          parsed.Choices[0].Message.Content,
		FinishReason:     parsed.Choices[0].FinishReason,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}
