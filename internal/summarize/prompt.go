// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package summarize

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/pdiddy/paperdex/pkg/types"
)

// summaryPromptTmpl is the structured-summary prompt. The section list
// matches what the API serves to readers. Per prd004-summaries R2.2.
var summaryPromptTmpl = template.Must(template.New("summary").Parse(`You are an expert research assistant. Summarize the following academic paper as Markdown with exactly these sections:

## Overview
Two or three sentences: what problem the paper addresses and what it proposes.

## Method
How the approach works. Name the key techniques and any notable design decisions.

## Results
The main experimental findings, with concrete numbers where the paper reports them.

## Strengths and Limitations
An honest assessment of what the paper demonstrates well and where it falls short.

## Relevance
Who should read this paper and what follow-up work it suggests.

Write in plain prose. Do not invent results that are not in the text. Respond with the Markdown summary only.

Paper title: {{.Title}}
{{- if .Authors}}
Authors: {{.Authors}}
{{- end}}

Paper text:
{{.Text}}
`))

// renderSummaryPrompt executes the summary template for one paper.
func renderSummaryPrompt(paper types.ResolvedPaper, text string) (string, error) {
	var buf bytes.Buffer
	err := summaryPromptTmpl.Execute(&buf, struct {
		Title   string
		Authors string
		Text    string
	}{
		Title:   paper.Title,
		Authors: strings.Join(paper.Authors, ", "),
		Text:    text,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
