// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve matches paper stubs to concrete papers. Resolution
// short-circuits on direct URLs and cache hits before touching the
// network; otherwise it fans out to the search backends and asks an LLM
// to pick the matching candidate.
// Implements: prd003-resolution (R1-R5); docs/ARCHITECTURE § Resolution.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/paperdex/internal/cache"
	"github.com/pdiddy/paperdex/internal/llm"
	"github.com/pdiddy/paperdex/internal/search"
	"github.com/pdiddy/paperdex/pkg/types"
)

// NotFoundError reports that no candidate matched the requested paper.
// It fails only the owning subtask (prd003-resolution R4.3).
type NotFoundError struct {
	Title  string
	Reason string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("paper not found: %q: %s", e.Title, e.Reason)
}

// Resolver turns stubs into resolved papers.
type Resolver struct {
	Backends  []search.Backend
	SearchCfg types.SearchConfig
	LLM       llm.Invoker
	Cache     *cache.Store

	// OnUsage, when set, receives the token usage of each selection call.
	OnUsage func(llm.Usage)

	// now is overridable for tests.
	now func() time.Time
}

// New builds a resolver over the given backends and cache.
func New(backends []search.Backend, cfg types.SearchConfig, invoker llm.Invoker, store *cache.Store) *Resolver {
	return &Resolver{
		Backends:  backends,
		SearchCfg: cfg,
		LLM:       invoker,
		Cache:     store,
		now:       time.Now,
	}
}

// Resolve matches one stub to a paper. Order of attack: direct URL,
// cache by title key, backend search plus match selection (R1.1).
func (r *Resolver) Resolve(ctx context.Context, stub types.PaperStub) (types.ResolvedPaper, error) {
	if stub.URL != "" {
		return r.fromURL(stub), nil
	}

	title := strings.TrimSpace(stub.Title)
	if title == "" {
		return types.ResolvedPaper{}, &NotFoundError{Title: stub.Title, Reason: "empty title"}
	}

	if r.Cache != nil {
		if entry, ok := r.Cache.Get(TitleKey(title)); ok {
			return entry.Paper, nil
		}
	}

	out, err := search.Search(ctx, title, r.Backends, r.SearchCfg)
	if err != nil {
		return types.ResolvedPaper{}, fmt.Errorf("searching for %q: %w", title, err)
	}
	if len(out.Candidates) == 0 {
		return types.ResolvedPaper{}, &NotFoundError{Title: title, Reason: "no search results"}
	}

	winner, ok := exactMatch(title, out.Candidates)
	if !ok {
		winner, err = r.selectMatch(ctx, title, out.Candidates)
		if err != nil {
			return types.ResolvedPaper{}, err
		}
	}

	return r.fromCandidate(stub, winner), nil
}

// fromURL builds a resolved paper directly from an input link (R1.2).
// ArXiv links carry their identity in the URL; other PDF links resolve
// to a title-keyed paper.
func (r *Resolver) fromURL(stub types.PaperStub) types.ResolvedPaper {
	p := types.ResolvedPaper{
		Title:       stub.Title,
		SourceTitle: stub.Title,
		Source:      "url",
		ResolvedAt:  r.timeNow(),
	}
	if id := ArxivIDFromURL(stub.URL); id != "" {
		p.ArxivID = NormalizeArxivID(id)
		p.PDFURL = search.ArxivPDFURL(p.ArxivID)
	} else {
		p.PDFURL = stub.URL
	}
	return p
}

// exactMatch implements the fast path: a candidate whose normalized
// title equals the request and that already carries an arXiv ID and a
// PDF link needs no model call (R3.1).
func exactMatch(title string, candidates []types.Candidate) (types.Candidate, bool) {
	want := search.NormalizeTitle(title)
	for _, c := range candidates {
		if search.NormalizeTitle(c.Title) == want && c.ArxivID != "" && c.PDFURL != "" {
			return c, true
		}
	}
	return types.Candidate{}, false
}

// selectResponse is the JSON shape the selection prompt requests.
type selectResponse struct {
	BestMatchIndex int `json:"best_match_index"`
}

// selectMatch asks the model which candidate is the requested paper.
func (r *Resolver) selectMatch(ctx context.Context, title string, candidates []types.Candidate) (types.Candidate, error) {
	prompt, err := renderSelectPrompt(title, search.FormatCandidates(candidates))
	if err != nil {
		return types.Candidate{}, fmt.Errorf("rendering selection prompt: %w", err)
	}

	result, err := r.LLM.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, true)
	if err != nil {
		return types.Candidate{}, fmt.Errorf("match selection call: %w", err)
	}
	if r.OnUsage != nil {
		r.OnUsage(result.Usage)
	}

	var resp selectResponse
	if err := json.Unmarshal([]byte(result.Content), &resp); err != nil {
		return types.Candidate{}, fmt.Errorf("parsing selection response %q: %w", result.Content, err)
	}

	if resp.BestMatchIndex == 0 {
		return types.Candidate{}, &NotFoundError{Title: title, Reason: "no candidate matched"}
	}
	if resp.BestMatchIndex < 0 || resp.BestMatchIndex > len(candidates) {
		return types.Candidate{}, fmt.Errorf("selection index %d out of range 1..%d", resp.BestMatchIndex, len(candidates))
	}
	return candidates[resp.BestMatchIndex-1], nil
}

// fromCandidate converts the winning candidate into a resolved paper.
func (r *Resolver) fromCandidate(stub types.PaperStub, c types.Candidate) types.ResolvedPaper {
	p := types.ResolvedPaper{
		Title:           c.Title,
		SourceTitle:     stub.Title,
		DOI:             c.DOI,
		PDFURL:          c.PDFURL,
		Authors:         c.Authors,
		PublicationYear: c.PublicationYear,
		Source:          c.Source,
		ResolvedAt:      r.timeNow(),
	}
	if c.ArxivID != "" {
		p.ArxivID = NormalizeArxivID(c.ArxivID)
		if p.PDFURL == "" {
			p.PDFURL = search.ArxivPDFURL(p.ArxivID)
		}
	}
	return p
}

func (r *Resolver) timeNow() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}
