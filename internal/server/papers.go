// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pdiddy/paperdex/pkg/types"
)

// paperItem is one row in the papers listing.
type paperItem struct {
	Key             string    `json:"key"`
	DisplayTitle    string    `json:"display_title"`
	Title           string    `json:"title"`
	ArxivID         string    `json:"arxiv_id,omitempty"`
	HasSummary      bool      `json:"has_summary"`
	Authors         []string  `json:"authors,omitempty"`
	PublicationYear int       `json:"publication_year,omitempty"`
	Source          string    `json:"source,omitempty"`
	CollectedAt     time.Time `json:"collected_at"`
}

// paperDetail is the full record for one paper, summary body included.
type paperDetail struct {
	paperItem
	Paper   types.ResolvedPaper  `json:"paper"`
	Summary *types.SummaryRecord `json:"summary,omitempty"`
}

func newPaperItem(entry types.CacheEntry) paperItem {
	return paperItem{
		Key:             entry.Key,
		DisplayTitle:    entry.DisplayTitle(),
		Title:           entry.Paper.Title,
		ArxivID:         entry.Paper.ArxivID,
		HasSummary:      entry.Complete(),
		Authors:         entry.Paper.Authors,
		PublicationYear: entry.Paper.PublicationYear,
		Source:          entry.Paper.Source,
		CollectedAt:     entry.CollectedAt,
	}
}

func newPaperDetail(entry types.CacheEntry) paperDetail {
	return paperDetail{
		paperItem: newPaperItem(entry),
		Paper:     entry.Paper,
		Summary:   entry.Summary,
	}
}

// listPapers returns the summarized papers, newest first. Entries still
// waiting for a summary are omitted (R2.2). An optional ?q= filter
// matches case-insensitively against the title.
func (s *Server) listPapers(c *gin.Context) {
	q := strings.ToLower(strings.TrimSpace(c.Query("q")))

	var items []paperItem
	for _, entry := range s.cache.List() {
		if !entry.Complete() {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(entry.Paper.Title), q) {
			continue
		}
		items = append(items, newPaperItem(entry))
	}
	if items == nil {
		items = []paperItem{}
	}

	c.JSON(http.StatusOK, gin.H{"papers": items, "total": len(items)})
}

// paperByTitle looks a paper up by its exact display title, which is
// what list consumers hold on to.
func (s *Server) paperByTitle(c *gin.Context) {
	want := c.Query("display_title")
	if want == "" {
		s.abortError(c, http.StatusBadRequest, "display_title query parameter is required", nil)
		return
	}

	for _, entry := range s.cache.List() {
		if entry.Complete() && entry.DisplayTitle() == want {
			c.JSON(http.StatusOK, newPaperDetail(entry))
			return
		}
	}
	s.abortError(c, http.StatusNotFound, "paper not found", nil)
}

// refreshPapers re-reads the cache file from disk, picking up entries
// written by other processes.
func (s *Server) refreshPapers(c *gin.Context) {
	if err := s.cache.Reload(); err != nil {
		s.abortError(c, http.StatusInternalServerError, "reloading paper cache", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"papers": s.cache.Len()})
}

// getPaper returns one cache entry by key, summary markdown included.
func (s *Server) getPaper(c *gin.Context) {
	entry, ok := s.cache.Get(c.Param("key"))
	if !ok {
		s.abortError(c, http.StatusNotFound, "paper not found", nil)
		return
	}
	c.JSON(http.StatusOK, newPaperDetail(entry))
}
