// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"bytes"
	"text/template"
)

// selectPromptTmpl asks the model to pick the candidate matching the
// requested title. Indices are 1-based; 0 means nothing matches.
// Per prd003-resolution R3.2.
var selectPromptTmpl = template.Must(template.New("select").Parse(`You are matching a requested academic paper against search results.

Requested paper title:
{{.Title}}

Search results:
{{.Candidates}}
Pick the result that is the same paper as the requested title. Minor differences in punctuation, casing, or subtitle formatting do not matter; a different paper on a similar topic is not a match.

Respond with a JSON object of this exact shape:
{"best_match_index": N}

where N is the 1-based number of the matching result, or 0 if none of the results is the requested paper. Do not include any text outside the JSON object.`))

// renderSelectPrompt executes the selection template.
func renderSelectPrompt(title, candidates string) (string, error) {
	var buf bytes.Buffer
	err := selectPromptTmpl.Execute(&buf, struct{ Title, Candidates string }{Title: title, Candidates: candidates})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
