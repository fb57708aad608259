// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm calls OpenAI-compatible chat completion endpoints. Profiles
// select the base URL, model, and pricing per pipeline stage.
// Implements: prd007-config (R2); docs/ARCHITECTURE § Model Access.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pdiddy/paperdex/internal/httputil"
	"github.com/pdiddy/paperdex/pkg/types"
)

// Message is one turn in a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage mirrors the usage block of a chat completion response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the assistant reply plus token accounting.
type Result struct {
	Content string
	Usage   Usage
}

// Invoker is the LLM call surface the pipeline stages depend on. Tests
// substitute deterministic fakes.
type Invoker interface {
	// Complete sends the messages and returns the assistant reply.
	// When jsonMode is set the endpoint is asked for a JSON object
	// response (response_format json_object).
	Complete(ctx context.Context, messages []Message, jsonMode bool) (Result, error)
}

// Client talks to one profile's /chat/completions endpoint.
type Client struct {
	Profile types.LLMProfile
	HTTP    *http.Client
}

// NewClient builds a client for the profile with the given request timeout.
func NewClient(profile types.LLMProfile, timeout time.Duration) *Client {
	return &Client{
		Profile: profile,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// chatRequest is the request body for the chat completions API.
type chatRequest struct {
	Model          string          `json:"model"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the response body from the chat completions API.
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message Message `json:"message"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Complete sends one chat completion request, retrying rate-limited
// attempts with backoff.
func (c *Client) Complete(ctx context.Context, messages []Message, jsonMode bool) (Result, error) {
	maxTokens := c.Profile.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	reqBody := chatRequest{
		Model:     c.Profile.Model,
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.Profile.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Profile.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.Profile.APIKey)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, c.Profile.MaxRetries)
	if err != nil {
		return Result{}, fmt.Errorf("calling %s: %w", c.Profile.Model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("%s returned HTTP %d: %s", c.Profile.Model, resp.StatusCode, string(body))
	}

	var cResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return Result{}, fmt.Errorf("decoding response: %w", err)
	}
	if cResp.Error != nil {
		return Result{}, fmt.Errorf("%s API error: %s", c.Profile.Model, cResp.Error.Message)
	}
	if len(cResp.Choices) == 0 {
		return Result{}, fmt.Errorf("%s returned no choices", c.Profile.Model)
	}

	return Result{
		Content: cResp.Choices[0].Message.Content,
		Usage:   cResp.Usage,
	}, nil
}

// CostUSD converts token usage into dollars using the profile's
// per-1M-token rates (prd004-summaries R4.2).
func CostUSD(profile types.LLMProfile, usage Usage) float64 {
	in := float64(usage.PromptTokens) / 1e6 * profile.Cost.Input
	out := float64(usage.CompletionTokens) / 1e6 * profile.Cost.Output
	return in + out
}
