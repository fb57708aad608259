// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries academic APIs for papers matching a title and
// returns unified, deduplicated candidates for match selection.
// Implements: prd003-resolution (R2); docs/ARCHITECTURE § Search.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/pdiddy/paperdex/pkg/types"
)

// Backend searches a single academic API. Each backend (arXiv, OpenAlex)
// implements this interface per the Strategy pattern (R2.1).
type Backend interface {
	Name() string
	Search(ctx context.Context, title string, cfg types.SearchConfig) ([]types.Candidate, error)
}

// Output holds the merged candidates and per-backend diagnostics.
type Output struct {
	Candidates    []types.Candidate
	DupsRemoved   int
	BackendErrors []string
}

// Search fans the title query out to all backends concurrently,
// deduplicates the candidates, ranks them, and caps the list at
// cfg.CandidateLimit. A backend failure is recorded, not fatal: as long
// as one backend answered the search succeeds (R2.4).
func Search(ctx context.Context, title string, backends []Backend, cfg types.SearchConfig) (Output, error) {
	if strings.TrimSpace(title) == "" {
		return Output{}, fmt.Errorf("search title is empty")
	}
	if len(backends) == 0 {
		return Output{}, fmt.Errorf("no search backends configured")
	}

	type backendResult struct {
		candidates []types.Candidate
		err        error
		name       string
	}

	ch := make(chan backendResult, len(backends))
	var wg sync.WaitGroup

	for _, b := range backends {
		wg.Add(1)
		go func(b Backend) {
			defer wg.Done()
			candidates, err := b.Search(ctx, title, cfg)
			ch <- backendResult{candidates: candidates, err: err, name: b.Name()}
		}(b)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	var all []types.Candidate
	var backendErrors []string
	failed := 0
	for br := range ch {
		if br.err != nil {
			failed++
			backendErrors = append(backendErrors, fmt.Sprintf("%s: %v", br.name, br.err))
			continue
		}
		all = append(all, br.candidates...)
	}

	if failed == len(backends) {
		return Output{BackendErrors: backendErrors},
			fmt.Errorf("all search backends failed: %s", strings.Join(backendErrors, "; "))
	}

	deduped, removed := deduplicate(all)

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].RelevanceScore > deduped[j].RelevanceScore
	})

	limit := cfg.CandidateLimit
	if limit <= 0 {
		limit = 8
	}
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}

	return Output{
		Candidates:    deduped,
		DupsRemoved:   removed,
		BackendErrors: backendErrors,
	}, nil
}

// deduplicate merges candidates that share an identifier or normalized
// title (R2.3).
func deduplicate(candidates []types.Candidate) ([]types.Candidate, int) {
	seen := make(map[string]int) // dedup key → index in deduped
	var deduped []types.Candidate
	removed := 0

	for _, c := range candidates {
		key := dedupKey(c)
		if idx, ok := seen[key]; key != "" && ok {
			mergeInto(&deduped[idx], c)
			removed++
			continue
		}

		titleKey := "title:" + NormalizeTitle(c.Title)
		if titleKey != "title:" {
			if idx, ok := seen[titleKey]; ok {
				mergeInto(&deduped[idx], c)
				removed++
				continue
			}
		}

		idx := len(deduped)
		deduped = append(deduped, c)
		if key != "" {
			seen[key] = idx
		}
		if titleKey != "title:" {
			seen[titleKey] = idx
		}
	}
	return deduped, removed
}

// dedupKey returns an identifier-based key, preferring the arXiv ID.
func dedupKey(c types.Candidate) string {
	if c.ArxivID != "" {
		return "arxiv:" + c.ArxivID
	}
	if c.DOI != "" {
		return "doi:" + strings.ToLower(c.DOI)
	}
	return ""
}

// mergeInto fills empty fields of dst from src and keeps the higher score.
func mergeInto(dst *types.Candidate, src types.Candidate) {
	if dst.Title == "" && src.Title != "" {
		dst.Title = src.Title
	}
	if len(dst.Authors) == 0 && len(src.Authors) > 0 {
		dst.Authors = src.Authors
	}
	if dst.PublicationYear == 0 && src.PublicationYear != 0 {
		dst.PublicationYear = src.PublicationYear
	}
	if dst.ArxivID == "" && src.ArxivID != "" {
		dst.ArxivID = src.ArxivID
	}
	if dst.DOI == "" && src.DOI != "" {
		dst.DOI = src.DOI
	}
	if dst.PDFURL == "" && src.PDFURL != "" {
		dst.PDFURL = src.PDFURL
	}
	if src.RelevanceScore > dst.RelevanceScore {
		dst.RelevanceScore = src.RelevanceScore
	}
	if dst.Source != src.Source && !strings.Contains(dst.Source, src.Source) {
		dst.Source = dst.Source + "," + src.Source
	}
}

// NormalizeTitle returns a lowercased, punctuation-stripped version of
// the title used for dedup and cache keys (R2.3).
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// FormatCandidates renders the candidate list the way the match-selection
// prompt expects: one numbered line per candidate, 1-based (R3.2).
func FormatCandidates(candidates []types.Candidate) string {
	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s", i+1, c.Title)
		if len(c.Authors) > 0 {
			fmt.Fprintf(&b, " (Authors: %s)", strings.Join(c.Authors, ", "))
		}
		if c.PublicationYear > 0 {
			fmt.Fprintf(&b, " (Year: %d)", c.PublicationYear)
		}
		if c.ArxivID != "" {
			fmt.Fprintf(&b, " (arXiv: %s)", c.ArxivID)
		}
		fmt.Fprintf(&b, " (Source: %s)\n", c.Source)
	}
	return b.String()
}
