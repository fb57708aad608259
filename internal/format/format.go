// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package format turns free-form paper lists into structured stubs using
// an LLM. A formatting failure is fatal for the whole task: without
// stubs there is nothing to fan out.
// Implements: prd002-formatting (R1-R3); docs/ARCHITECTURE § Formatting.
package format

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/paperdex/internal/llm"
	"github.com/pdiddy/paperdex/pkg/types"
)

// FormatError reports that the LLM output could not be turned into paper
// stubs. Per prd002-formatting R3.1 it fails the owning task.
type FormatError struct {
	Reason string
	Raw    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("formatting input: %s", e.Reason)
}

// Formatter extracts paper stubs from raw input text.
type Formatter struct {
	LLM llm.Invoker

	// OnUsage, when set, receives the token usage of each call.
	OnUsage func(llm.Usage)
}

// formatResponse is the JSON shape the formatting prompt requests.
type formatResponse struct {
	Papers []types.PaperStub `json:"papers"`
}

// Format asks the model to list the papers mentioned in raw text. The
// returned stubs preserve input order. URLs that are neither arXiv links
// nor direct PDF links are dropped (R2.3).
func (f *Formatter) Format(ctx context.Context, raw string) ([]types.PaperStub, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &FormatError{Reason: "input text is empty"}
	}

	result, err := f.LLM.Complete(ctx, []llm.Message{
		{Role: "system", Content: formatSystemPrompt},
		{Role: "user", Content: raw},
	}, true)
	if err != nil {
		return nil, fmt.Errorf("format call: %w", err)
	}
	if f.OnUsage != nil {
		f.OnUsage(result.Usage)
	}

	stubs, err := parseStubs(result.Content)
	if err != nil {
		return nil, err
	}
	if len(stubs) == 0 {
		return nil, &FormatError{Reason: "no papers found in input", Raw: result.Content}
	}
	return stubs, nil
}

// parseStubs decodes the model reply and sanitizes each stub.
func parseStubs(content string) ([]types.PaperStub, error) {
	var resp formatResponse
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &resp); err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("unparseable model output: %v", err), Raw: content}
	}

	var stubs []types.PaperStub
	for _, stub := range resp.Papers {
		stub.Title = strings.TrimSpace(stub.Title)
		if stub.Title == "" {
			continue
		}
		stub.URL = SanitizeURL(stub.URL)
		stubs = append(stubs, stub)
	}
	return stubs, nil
}

// SanitizeURL keeps arXiv links and direct PDF links; everything else
// becomes empty so resolution falls back to title search (R2.3).
func SanitizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return ""
	}
	lower := strings.ToLower(u)
	if strings.Contains(lower, "arxiv.org/") {
		return u
	}
	if strings.HasSuffix(strings.TrimRight(lower, "/"), ".pdf") {
		return u
	}
	return ""
}

// stripCodeFence removes a surrounding ```json ... ``` fence if the model
// wrapped its reply in one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
