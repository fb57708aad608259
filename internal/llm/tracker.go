// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/pdiddy/paperdex/pkg/types"
)

// ModelUsage accumulates per-model token counts and cost across a run.
type ModelUsage struct {
	Calls            int
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// UsageTracker aggregates LLM spend across concurrent pipeline stages.
// Per prd004-summaries R4.3. Safe for concurrent use.
type UsageTracker struct {
	mu       sync.Mutex
	perModel map[string]*ModelUsage
}

// NewUsageTracker returns an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{perModel: make(map[string]*ModelUsage)}
}

// Record adds one call's usage under the profile's model, priced at the
// profile's rates.
func (t *UsageTracker) Record(profile types.LLMProfile, usage Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	mu, ok := t.perModel[profile.Model]
	if !ok {
		mu = &ModelUsage{}
		t.perModel[profile.Model] = mu
	}
	mu.Calls++
	mu.PromptTokens += usage.PromptTokens
	mu.CompletionTokens += usage.CompletionTokens
	mu.CostUSD += CostUSD(profile, usage)
}

// Total returns the aggregate cost in USD.
func (t *UsageTracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total float64
	for _, mu := range t.perModel {
		total += mu.CostUSD
	}
	return total
}

// Snapshot returns a copy of the per-model usage map.
func (t *UsageTracker) Snapshot() map[string]ModelUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]ModelUsage, len(t.perModel))
	for model, mu := range t.perModel {
		out[model] = *mu
	}
	return out
}

// Report writes a per-model cost table to w, models sorted alphabetically.
func (t *UsageTracker) Report(w io.Writer) {
	snap := t.Snapshot()
	if len(snap) == 0 {
		fmt.Fprintln(w, "No LLM calls made.")
		return
	}

	models := make([]string, 0, len(snap))
	for m := range snap {
		models = append(models, m)
	}
	sort.Strings(models)

	fmt.Fprintf(w, "%-40s  %5s  %10s  %10s  %10s\n", "Model", "Calls", "In", "Out", "USD")
	var total float64
	for _, m := range models {
		mu := snap[m]
		fmt.Fprintf(w, "%-40s  %5d  %10d  %10d  %10.4f\n",
			m, mu.Calls, mu.PromptTokens, mu.CompletionTokens, mu.CostUSD)
		total += mu.CostUSD
	}
	fmt.Fprintf(w, "Total: $%.4f\n", total)
}
