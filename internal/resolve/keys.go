// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/paperdex/internal/search"
	"github.com/pdiddy/paperdex/pkg/types"
)

// arxivURLRe matches arXiv abstract and PDF links and captures the bare ID.
var arxivURLRe = regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/(\d{4}\.\d{4,5})(v\d+)?`)

// ArxivIDFromURL extracts a bare arXiv ID from an arXiv link, or "".
func ArxivIDFromURL(u string) string {
	if m := arxivURLRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}

// NormalizeArxivID canonicalizes an arXiv identifier: lowercase, no
// "arxiv:" prefix, no version suffix.
func NormalizeArxivID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.TrimPrefix(id, "arxiv:")

	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}

// TitleKey derives a stable cache key from a paper title: "t:" plus the
// first 12 hex chars of the SHA-256 of the normalized title. Used as the
// primary key for papers without an arXiv ID and as an alias otherwise
// (prd001-cache R1.3).
func TitleKey(title string) string {
	normalized := search.NormalizeTitle(title)
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return "t:" + hex.EncodeToString(sum[:])[:12]
}

// PaperKey returns the primary cache key for a resolved paper: the
// normalized arXiv ID when the paper has one, otherwise its title key.
func PaperKey(p types.ResolvedPaper) string {
	if p.ArxivID != "" {
		return NormalizeArxivID(p.ArxivID)
	}
	return TitleKey(p.Title)
}
