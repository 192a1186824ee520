package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient talks to an Anthropic-style messages API over plain HTTP.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicClient builds a client for the messages API at baseURL
// (e.g. https://api.anthropic.com). The per-call deadline comes from ctx;
// the transport-level timeout is a backstop for callers without one.
func NewAnthropicClient(apiKey, baseURL string) (*AnthropicClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: api key is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

var _ Client = (*AnthropicClient)(nil)

type anthropicRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicResponse covers the two response shapes seen in the wild:
// a consolidated text field, or a list of typed content blocks.
type anthropicResponse struct {
	Text       string                  `json:"text"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
}

// Complete posts the request and extracts reply text from the variant
// response shape. A non-2xx status or transport failure is an error;
// a well-formed response with no extractable text is not.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	payload := anthropicRequest{
		Model:     req.Model,
		System:    req.System,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("llm: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("llm: failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("llm: completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, fmt.Errorf("llm: completion failed: status %d", resp.StatusCode)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, fmt.Errorf("llm: failed to decode response: %w", err)
	}

	return Response{
		Text:       extractText(parsed),
		StopReason: parsed.StopReason,
	}, nil
}

// extractText prefers the consolidated text field, then concatenates
// text-typed content blocks in order. Returns "" when neither yields text.
func extractText(resp anthropicResponse) string {
	if text := strings.TrimSpace(resp.Text); text != "" {
		return text
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type != "text" {
			continue
		}
		b.WriteString(block.Text)
	}
	return strings.TrimSpace(b.String())
}
