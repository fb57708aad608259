// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package summarize downloads paper PDFs and produces structured Markdown
// summaries with an LLM. Failures are scoped to the paper being
// summarized; sibling papers in the same task are unaffected.
// Implements: prd004-summaries (R1-R5); docs/ARCHITECTURE § Summaries.
package summarize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/paperdex/internal/httputil"
	"github.com/pdiddy/paperdex/internal/llm"
	"github.com/pdiddy/paperdex/pkg/types"
)

// SummaryError reports a failed summary attempt for one paper. Per
// prd004-summaries R5.2 it fails only the owning subtask.
type SummaryError struct {
	Title  string
	Reason string
	Err    error
}

func (e *SummaryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("summarizing %q: %s: %v", e.Title, e.Reason, e.Err)
	}
	return fmt.Sprintf("summarizing %q: %s", e.Title, e.Reason)
}

func (e *SummaryError) Unwrap() error { return e.Err }

// extractText converts PDF bytes to plain text and a page count.
// Package-level var for test substitution.
var extractText = extractPDFText

// Generator produces summaries for resolved papers.
type Generator struct {
	LLM     llm.Invoker
	Profile types.LLMProfile
	Client  *http.Client
	Cfg     types.SummaryConfig

	// OnUsage, when set, receives the token usage of each summary call.
	OnUsage func(llm.Usage)

	// now is overridable for tests.
	now func() time.Time
}

// New builds a generator with an HTTP client sized by the config timeout.
func New(invoker llm.Invoker, profile types.LLMProfile, cfg types.SummaryConfig) *Generator {
	return &Generator{
		LLM:     invoker,
		Profile: profile,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Cfg:     cfg,
		now:     time.Now,
	}
}

// Summarize fetches the paper PDF, validates it, and generates a
// structured Markdown summary (R1.1, R2.1).
func (g *Generator) Summarize(ctx context.Context, key string, paper types.ResolvedPaper) (types.SummaryRecord, error) {
	if paper.PDFURL == "" {
		return types.SummaryRecord{}, &SummaryError{Title: paper.Title, Reason: "no PDF URL"}
	}

	data, err := g.fetchPDF(ctx, paper)
	if err != nil {
		return types.SummaryRecord{}, err
	}

	text, pages, err := extractText(data)
	if err != nil {
		return types.SummaryRecord{}, &SummaryError{Title: paper.Title, Reason: "unreadable PDF", Err: err}
	}
	if pages == 0 || strings.TrimSpace(text) == "" {
		return types.SummaryRecord{}, &SummaryError{Title: paper.Title, Reason: "PDF contains no extractable text"}
	}

	maxChars := g.Cfg.MaxTextChars
	if maxChars <= 0 {
		maxChars = 60000
	}
	if len(text) > maxChars {
		text = text[:maxChars]
	}

	prompt, err := renderSummaryPrompt(paper, text)
	if err != nil {
		return types.SummaryRecord{}, fmt.Errorf("rendering summary prompt: %w", err)
	}

	result, err := g.LLM.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, false)
	if err != nil {
		return types.SummaryRecord{}, &SummaryError{Title: paper.Title, Reason: "summary call failed", Err: err}
	}
	if g.OnUsage != nil {
		g.OnUsage(result.Usage)
	}

	markdown := strings.TrimSpace(result.Content)
	if markdown == "" {
		return types.SummaryRecord{}, &SummaryError{Title: paper.Title, Reason: "model returned empty summary"}
	}

	return types.SummaryRecord{
		PaperKey: key,
		Markdown: markdown,
		Model:    g.Profile.Model,
		Usage: types.TokenUsage{
			Input:  result.Usage.PromptTokens,
			Output: result.Usage.CompletionTokens,
		},
		CostUSD:     llm.CostUSD(g.Profile, result.Usage),
		GeneratedAt: g.timeNow().UTC(),
	}, nil
}

// fetchPDF downloads the paper PDF, enforcing the size ceiling and
// rejecting non-PDF payloads (R1.2, R1.3).
func (g *Generator) fetchPDF(ctx context.Context, paper types.ResolvedPaper) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, paper.PDFURL, nil)
	if err != nil {
		return nil, &SummaryError{Title: paper.Title, Reason: "invalid PDF URL", Err: err}
	}
	req.Header.Set("User-Agent", g.Cfg.UserAgent)

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, &SummaryError{Title: paper.Title, Reason: "PDF download failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SummaryError{Title: paper.Title, Reason: fmt.Sprintf("PDF download returned HTTP %d", resp.StatusCode)}
	}

	maxBytes := g.Cfg.MaxPDFBytes
	if maxBytes <= 0 {
		maxBytes = 5 * 1024 * 1024
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, &SummaryError{Title: paper.Title, Reason: "reading PDF body", Err: err}
	}
	if int64(len(data)) > maxBytes {
		return nil, &SummaryError{Title: paper.Title, Reason: fmt.Sprintf("PDF exceeds %d byte limit", maxBytes)}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "pdf") && !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, &SummaryError{Title: paper.Title, Reason: fmt.Sprintf("not a PDF (content type %q)", contentType)}
	}
	return data, nil
}

// extractPDFText parses the PDF and concatenates the plain text of every
// page. Pages that fail to render are skipped.
func extractPDFText(data []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}

	pages := reader.NumPage()
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), pages, nil
}

func (g *Generator) timeNow() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}
