// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pdiddy/paperdex/internal/httputil"
	"github.com/pdiddy/paperdex/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlexBackend queries the OpenAlex API (R2.1).
type OpenAlexBackend struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email string
}

// Name returns the backend identifier.
func (b *OpenAlexBackend) Name() string { return "openalex" }

// Search queries OpenAlex with a title search and returns candidates.
func (b *OpenAlexBackend) Search(ctx context.Context, title string, cfg types.SearchConfig) ([]types.Candidate, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("empty OpenAlex query")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > 200 {
		maxResults = 200
	}

	params := url.Values{
		"filter":   {"title.search:" + title},
		"per_page": {fmt.Sprintf("%d", maxResults)},
		"page":     {"1"},
	}
	if b.Email != "" {
		params.Set("mailto", b.Email)
	}

	reqURL := openAlexSearchBase + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	total := len(oar.Results)
	var candidates []types.Candidate
	for i, work := range oar.Results {
		c := types.Candidate{
			Title:           work.Title,
			PublicationYear: work.PublicationYear,
			Source:          "openalex",
		}

		for _, authorship := range work.Authorships {
			if authorship.Author.DisplayName != "" {
				c.Authors = append(c.Authors, authorship.Author.DisplayName)
			}
		}

		// Strip the https://doi.org/ prefix to get the bare DOI.
		if work.DOI != "" {
			c.DOI = strings.TrimPrefix(work.DOI, "https://doi.org/")
		}

		c.PDFURL = work.bestPDFURL()
		c.ArxivID = arxivIDFromWork(work)
		if c.ArxivID != "" && c.PDFURL == "" {
			c.PDFURL = ArxivPDFURL(c.ArxivID)
		}

		// Position-based relevance score. OpenAlex returns results
		// sorted by relevance by default.
		if total > 1 {
			c.RelevanceScore = 1.0 - float64(i)/float64(total-1)*0.9
		} else {
			c.RelevanceScore = 1.0
		}

		candidates = append(candidates, c)
	}
	return candidates, nil
}

// openAlexArxivRe matches arXiv identifiers inside OpenAlex location URLs
// (e.g. "https://arxiv.org/abs/2302.04761v1").
var openAlexArxivRe = regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/(\d{4}\.\d{4,5})`)

// arxivIDFromWork recovers a bare arXiv ID from the work's locations.
func arxivIDFromWork(work openAlexWork) string {
	urls := []string{work.OpenAccess.OAURL, work.BestOALocation.PDFURL, work.BestOALocation.LandingPageURL}
	for _, u := range urls {
		if m := openAlexArxivRe.FindStringSubmatch(u); m != nil {
			return m[1]
		}
	}
	return ""
}

// bestPDFURL picks the most direct PDF link the work offers.
func (w openAlexWork) bestPDFURL() string {
	if w.BestOALocation.PDFURL != "" {
		return w.BestOALocation.PDFURL
	}
	if strings.HasSuffix(strings.ToLower(w.OpenAccess.OAURL), ".pdf") {
		return w.OpenAccess.OAURL
	}
	return ""
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Meta    openAlexMeta   `json:"meta"`
	Results []openAlexWork `json:"results"`
}

type openAlexMeta struct {
	Count   int `json:"count"`
	PerPage int `json:"per_page"`
	Page    int `json:"page"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	PublicationDate       string               `json:"publication_date"`
	PublicationYear       int                  `json:"publication_year"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	OpenAccess            openAlexOpenAccess   `json:"open_access"`
	BestOALocation        openAlexLocation     `json:"best_oa_location"`
}

type openAlexAuthorship struct {
	Author openAlexAuthor `json:"author"`
}

type openAlexAuthor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type openAlexOpenAccess struct {
	IsOA     bool   `json:"is_oa"`
	OAStatus string `json:"oa_status"`
	OAURL    string `json:"oa_url"`
}

type openAlexLocation struct {
	PDFURL         string `json:"pdf_url"`
	LandingPageURL string `json:"landing_page_url"`
}
