// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paperdex pipeline.
// Implements: prd001-cache (CacheEntry, SummaryRecord);
//
//	prd002-formatting (PaperStub);
//	prd003-resolution (Candidate, ResolvedPaper);
//	prd005-tasks (Task, PaperSubTask, LogEntry).
//
// See docs/ARCHITECTURE.md § Data Structures.
package types

import (
	"fmt"
	"time"
)

// PaperStub is one paper reference extracted from free-form input text.
// Per prd002-formatting R2.1: a title plus an optional direct URL. URL is
// empty unless the input carried an arXiv abstract/PDF link or a direct
// .pdf link; all other URLs are discarded during formatting (R2.3).
type PaperStub struct {
	// Title is the paper title as it appeared in the input.
	Title string `json:"title" yaml:"title"`

	// URL is a direct arXiv or PDF link, or empty.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Candidate represents one paper returned by an academic API query during
// resolution. Per prd003-resolution R2.2 each candidate carries enough
// metadata for the match-selection step to rank it against the requested
// title.
type Candidate struct {
	// Title is the paper title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// PublicationYear is the year of publication, or 0 if unknown.
	PublicationYear int `json:"publication_year,omitempty" yaml:"publication_year,omitempty"`

	// ArxivID is the bare arXiv identifier (e.g. "2301.07041"), if known.
	ArxivID string `json:"arxiv_id,omitempty" yaml:"arxiv_id,omitempty"`

	// DOI is the bare DOI (no https://doi.org/ prefix), if known.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// PDFURL is a direct link to the paper PDF, if the source provides one.
	PDFURL string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`

	// Source identifies which backend found this candidate (e.g. "arxiv", "openalex").
	Source string `json:"source" yaml:"source"`

	// RelevanceScore is a value between 0.0 and 1.0 from result ordering.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`
}

// ResolvedPaper is the metadata record produced when a stub has been matched
// to a concrete paper. Per prd003-resolution R4.1.
type ResolvedPaper struct {
	// Title is the canonical title from the winning candidate.
	Title string `json:"title" yaml:"title"`

	// SourceTitle is the title as it appeared in the original input.
	SourceTitle string `json:"source_title,omitempty" yaml:"source_title,omitempty"`

	// ArxivID is the bare arXiv identifier, or empty for non-arXiv papers.
	ArxivID string `json:"arxiv_id,omitempty" yaml:"arxiv_id,omitempty"`

	// DOI is the bare DOI, if known.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// PDFURL is the link the summary stage downloads the PDF from.
	PDFURL string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// PublicationYear is the year of publication, or 0 if unknown.
	PublicationYear int `json:"publication_year,omitempty" yaml:"publication_year,omitempty"`

	// Source identifies which backend(s) supplied the metadata.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// ResolvedAt is when resolution completed.
	ResolvedAt time.Time `json:"resolved_at" yaml:"resolved_at"`
}

// TokenUsage counts LLM tokens consumed by one call or one summary.
type TokenUsage struct {
	Input  int `json:"input" yaml:"input"`
	Output int `json:"output" yaml:"output"`
}

// Add accumulates usage from another call.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
}

// SummaryRecord holds a generated paper summary with its generation
// metadata. Per prd004-summaries R3.1-R3.3.
type SummaryRecord struct {
	// PaperKey is the cache key of the paper this summary belongs to.
	PaperKey string `json:"paper_key" yaml:"paper_key"`

	// Markdown is the structured summary body. Never empty for a stored record.
	Markdown string `json:"markdown" yaml:"-"`

	// Model is the model identifier that produced the summary.
	Model string `json:"model" yaml:"model"`

	// Usage is the token consumption of the summary call.
	Usage TokenUsage `json:"usage" yaml:"usage"`

	// CostUSD is the call cost derived from the profile's per-1M-token rates.
	CostUSD float64 `json:"cost_usd" yaml:"cost_usd"`

	// GeneratedAt is when the summary was produced.
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
}

// CacheEntry is one record in the paper cache: resolved metadata plus the
// summary when one has been generated. Per prd001-cache R1.1.
type CacheEntry struct {
	// Key is the primary cache key: normalized arXiv ID when the paper has
	// one, otherwise a title-hash key.
	Key string `json:"key" yaml:"key"`

	// Paper is the resolved metadata.
	Paper ResolvedPaper `json:"paper" yaml:"paper"`

	// Summary is nil until a summary has been generated.
	Summary *SummaryRecord `json:"summary,omitempty" yaml:"summary,omitempty"`

	// CollectedAt is when the entry was first stored.
	CollectedAt time.Time `json:"collected_at" yaml:"collected_at"`
}

// Complete reports whether the entry carries a usable summary. Only
// complete entries appear in paper listings (prd006-api R2.2).
func (e CacheEntry) Complete() bool {
	return e.Summary != nil && e.Summary.Markdown != ""
}

// DisplayTitle renders the listing title: "[arxivID] Title | MM/DD HH:MM".
// Papers without an arXiv ID omit the bracket prefix.
func (e CacheEntry) DisplayTitle() string {
	ts := e.CollectedAt.Format("01/02 15:04")
	if e.Paper.ArxivID != "" {
		return fmt.Sprintf("[%s] %s | %s", e.Paper.ArxivID, e.Paper.Title, ts)
	}
	return fmt.Sprintf("%s | %s", e.Paper.Title, ts)
}
