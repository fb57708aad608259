// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// citations.go implements the citation extraction mode: given a passage
// that cites other work and the full paper text, recover the cited
// papers as stubs. Per prd002-formatting R4.
package format

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/paperdex/internal/llm"
	"github.com/pdiddy/paperdex/pkg/types"
)

// referencesHeadingRe matches a references/bibliography heading on its
// own line, in English or CJK papers.
var referencesHeadingRe = regexp.MustCompile(`(?im)^\s*(?:#+\s*|\d+\.?\s*)?(references|bibliography|参考文献)\s*$`)

// ExtractCitations resolves the citation markers in snippet against the
// reference entries in fullText and returns one stub per cited paper.
func (f *Formatter) ExtractCitations(ctx context.Context, snippet, fullText string) ([]types.PaperStub, error) {
	if strings.TrimSpace(snippet) == "" {
		return nil, &FormatError{Reason: "citation snippet is empty"}
	}

	refs := FindReferencesSection(fullText)
	if strings.TrimSpace(refs) == "" {
		return nil, &FormatError{Reason: "no references section found in paper text"}
	}

	user := fmt.Sprintf("Passage:\n%s\n\nReference list:\n%s", snippet, refs)
	result, err := f.LLM.Complete(ctx, []llm.Message{
		{Role: "system", Content: citationSystemPrompt},
		{Role: "user", Content: user},
	}, true)
	if err != nil {
		return nil, fmt.Errorf("citation call: %w", err)
	}
	if f.OnUsage != nil {
		f.OnUsage(result.Usage)
	}

	stubs, err := parseStubs(result.Content)
	if err != nil {
		return nil, err
	}
	if len(stubs) == 0 {
		return nil, &FormatError{Reason: "no citations matched the reference list", Raw: result.Content}
	}
	return stubs, nil
}

// FindReferencesSection returns the text from the references heading to
// the end of the document. When no heading is found it falls back to the
// last fifth of the text, which is where reference lists live in
// practice.
func FindReferencesSection(text string) string {
	if loc := referencesHeadingRe.FindStringIndex(text); loc != nil {
		return text[loc[1]:]
	}
	if len(text) == 0 {
		return ""
	}
	return text[len(text)*4/5:]
}
