// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package format

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pdiddy/paperdex/internal/llm"
)

// fakeInvoker returns canned replies and records the messages it saw.
type fakeInvoker struct {
	reply    string
	err      error
	messages []llm.Message
}

func (f *fakeInvoker) Complete(_ context.Context, messages []llm.Message, _ bool) (llm.Result, error) {
	f.messages = messages
	if f.err != nil {
		return llm.Result{}, f.err
	}
	return llm.Result{Content: f.reply, Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5}}, nil
}

func TestFormat(t *testing.T) {
	inv := &fakeInvoker{reply: `{"papers": [
		{"title": "Toolformer: Language Models Can Teach Themselves to Use Tools", "url": "https://arxiv.org/abs/2302.04761"},
		{"title": "ReAct: Synergizing Reasoning and Acting", "url": "https://example.com/blog/react"}
	]}`}
	f := &Formatter{LLM: inv}

	stubs, err := f.Format(context.Background(), "- Toolformer\n- ReAct (see blog)")
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}
	if len(stubs) != 2 {
		t.Fatalf("got %d stubs, want 2", len(stubs))
	}
	if stubs[0].URL != "https://arxiv.org/abs/2302.04761" {
		t.Errorf("arXiv URL dropped: %q", stubs[0].URL)
	}
	if stubs[1].URL != "" {
		t.Errorf("non-PDF URL kept: %q", stubs[1].URL)
	}
}

func TestFormatUsageCallback(t *testing.T) {
	inv := &fakeInvoker{reply: `{"papers": [{"title": "A"}]}`}
	var seen llm.Usage
	f := &Formatter{LLM: inv, OnUsage: func(u llm.Usage) { seen = u }}

	if _, err := f.Format(context.Background(), "A"); err != nil {
		t.Fatalf("Format() error: %v", err)
	}
	if seen.PromptTokens != 10 {
		t.Errorf("OnUsage not invoked, got %+v", seen)
	}
}

func TestFormatCodeFencedReply(t *testing.T) {
	inv := &fakeInvoker{reply: "```json\n{\"papers\": [{\"title\": \"Fenced Paper\"}]}\n```"}
	f := &Formatter{LLM: inv}

	stubs, err := f.Format(context.Background(), "Fenced Paper")
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}
	if len(stubs) != 1 || stubs[0].Title != "Fenced Paper" {
		t.Errorf("stubs = %+v", stubs)
	}
}

func TestFormatErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		reply string
	}{
		{name: "empty input", input: "   ", reply: ""},
		{name: "unparseable reply", input: "papers", reply: "sorry, I cannot do that"},
		{name: "empty paper list", input: "papers", reply: `{"papers": []}`},
		{name: "only blank titles", input: "papers", reply: `{"papers": [{"title": "  "}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Formatter{LLM: &fakeInvoker{reply: tt.reply}}
			_, err := f.Format(context.Background(), tt.input)

			var ferr *FormatError
			if !errors.As(err, &ferr) {
				t.Fatalf("error = %v, want *FormatError", err)
			}
		})
	}
}

func TestFormatTransportErrorIsNotFormatError(t *testing.T) {
	f := &Formatter{LLM: &fakeInvoker{err: errors.New("connection refused")}}
	_, err := f.Format(context.Background(), "papers")

	if err == nil {
		t.Fatal("expected error")
	}
	var ferr *FormatError
	if errors.As(err, &ferr) {
		t.Errorf("transport failure classified as FormatError: %v", err)
	}
}

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://arxiv.org/abs/2302.04761", "https://arxiv.org/abs/2302.04761"},
		{"https://arxiv.org/pdf/2302.04761v2", "https://arxiv.org/pdf/2302.04761v2"},
		{"https://proceedings.mlr.press/v162/paper.pdf", "https://proceedings.mlr.press/v162/paper.pdf"},
		{"https://example.com/blog/post", ""},
		{"ftp://arxiv.org/abs/1234.5678", ""},
		{"not a url", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SanitizeURL(tt.in); got != tt.want {
			t.Errorf("SanitizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFindReferencesSection(t *testing.T) {
	doc := "Intro text.\n\nMethods.\n\nReferences\n[1] A. Author. First Paper. 2020.\n[2] B. Author. Second Paper. 2021.\n"
	got := FindReferencesSection(doc)
	if !strings.Contains(got, "First Paper") || strings.Contains(got, "Intro text") {
		t.Errorf("FindReferencesSection() = %q", got)
	}

	// Numbered heading variant.
	doc2 := "Body.\n\n7. References\n[1] Entry.\n"
	if got := FindReferencesSection(doc2); !strings.Contains(got, "[1] Entry.") {
		t.Errorf("numbered heading not matched: %q", got)
	}

	// No heading: fall back to the tail of the document.
	long := strings.Repeat("x", 100)
	got = FindReferencesSection(long)
	if len(got) != 20 {
		t.Errorf("fallback length = %d, want 20", len(got))
	}
}

func TestExtractCitations(t *testing.T) {
	inv := &fakeInvoker{reply: `{"papers": [{"title": "Cited Work"}]}`}
	f := &Formatter{LLM: inv}

	fullText := "Body citing [1].\n\nReferences\n[1] C. Author. Cited Work. 2019.\n"
	stubs, err := f.ExtractCitations(context.Background(), "as shown in [1]", fullText)
	if err != nil {
		t.Fatalf("ExtractCitations() error: %v", err)
	}
	if len(stubs) != 1 || stubs[0].Title != "Cited Work" {
		t.Errorf("stubs = %+v", stubs)
	}

	// The reference list, not the whole paper, goes to the model.
	user := inv.messages[len(inv.messages)-1].Content
	if !strings.Contains(user, "Cited Work. 2019") || strings.Contains(user, "Body citing") {
		t.Errorf("prompt payload = %q", user)
	}
}
