// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/paperdex/internal/httputil"
	"github.com/pdiddy/paperdex/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ArxivBackend queries the arXiv API (R2.1).
type ArxivBackend struct {
	Client *http.Client
}

// Name returns the backend identifier.
func (b *ArxivBackend) Name() string { return "arxiv" }

// Search runs an exact-title query first and falls back to a keyword
// query when the phrase match returns nothing (R2.2).
func (b *ArxivBackend) Search(ctx context.Context, title string, cfg types.SearchConfig) ([]types.Candidate, error) {
	results, err := b.query(ctx, fmt.Sprintf("ti:%q", title), cfg)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}

	terms := strings.Fields(title)
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty arXiv query")
	}
	return b.query(ctx, "all:"+strings.Join(terms, "+AND+all:"), cfg)
}

// query performs one arXiv API request with the given search_query value.
func (b *ArxivBackend) query(ctx context.Context, searchQuery string, cfg types.SearchConfig) ([]types.Candidate, error) {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	reqURL := fmt.Sprintf("%s?search_query=%s&start=0&max_results=%d&sortBy=relevance&sortOrder=descending",
		arxivAPIBase, url.QueryEscape(searchQuery), maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	total := len(feed.Entries)
	var candidates []types.Candidate
	for i, entry := range feed.Entries {
		arxivID := extractArxivID(entry.ID)
		if arxivID == "" {
			continue
		}

		c := types.Candidate{
			ArxivID: arxivID,
			Title:   strings.Join(strings.Fields(entry.Title), " "),
			PDFURL:  ArxivPDFURL(arxivID),
			Source:  "arxiv",
		}

		for _, a := range entry.Authors {
			c.Authors = append(c.Authors, strings.TrimSpace(a.Name))
		}

		if len(entry.Published) >= 4 {
			if year, parseErr := strconv.Atoi(entry.Published[:4]); parseErr == nil {
				c.PublicationYear = year
			}
		}

		// Position-based relevance score.
		if total > 1 {
			c.RelevanceScore = 1.0 - float64(i)/float64(total-1)*0.9
		} else {
			c.RelevanceScore = 1.0
		}

		candidates = append(candidates, c)
	}
	return candidates, nil
}

// ArxivPDFURL returns the canonical PDF link for a bare arXiv ID.
func ArxivPDFURL(arxivID string) string {
	return "https://arxiv.org/pdf/" + arxivID
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []arxivAuthor `xml:"author"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
