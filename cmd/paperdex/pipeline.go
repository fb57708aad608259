// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paperdex/internal/cache"
	"github.com/pdiddy/paperdex/internal/format"
	"github.com/pdiddy/paperdex/internal/llm"
	"github.com/pdiddy/paperdex/internal/resolve"
	"github.com/pdiddy/paperdex/internal/search"
	"github.com/pdiddy/paperdex/internal/summarize"
	"github.com/pdiddy/paperdex/pkg/types"
)

// llmTimeout bounds one model call including streaming the reply.
const llmTimeout = 120 * time.Second

// pipeline bundles the three LLM-backed stages plus the usage tracker
// they report into. Shared between serve and run.
type pipeline struct {
	formatter *format.Formatter
	resolver  *resolve.Resolver
	generator *summarize.Generator
	tracker   *llm.UsageTracker
}

// buildPipeline wires the stages from config: one invoker per stage
// profile, search backends per the search config, and a tracker hook on
// every stage.
func buildPipeline(cfg types.Config, paperCache *cache.Store, log *zap.Logger) (*pipeline, error) {
	formatProfile, err := cfg.ProfileFor(cfg.Stages.FormatInput)
	if err != nil {
		return nil, err
	}
	selectProfile, err := cfg.ProfileFor(cfg.Stages.SelectMatch)
	if err != nil {
		return nil, err
	}
	summarizeProfile, err := cfg.ProfileFor(cfg.Stages.Summarize)
	if err != nil {
		return nil, err
	}

	tracker := llm.NewUsageTracker()

	var backends []search.Backend
	httpClient := &http.Client{Timeout: cfg.Search.Timeout}
	if cfg.Search.EnableArxiv {
		backends = append(backends, &search.ArxivBackend{Client: httpClient})
	}
	if cfg.Search.EnableOpenAlex {
		backends = append(backends, &search.OpenAlexBackend{Client: httpClient, Email: cfg.Search.OpenAlexEmail})
	}

	formatter := &format.Formatter{
		LLM:     llm.NewClient(formatProfile, llmTimeout),
		OnUsage: func(u llm.Usage) { tracker.Record(formatProfile, u) },
	}

	resolver := resolve.New(backends, cfg.Search, llm.NewClient(selectProfile, llmTimeout), paperCache)
	resolver.OnUsage = func(u llm.Usage) { tracker.Record(selectProfile, u) }

	generator := summarize.New(llm.NewClient(summarizeProfile, llmTimeout), summarizeProfile, cfg.Summary)
	generator.OnUsage = func(u llm.Usage) { tracker.Record(summarizeProfile, u) }

	log.Info("pipeline configured",
		zap.String("format_model", formatProfile.Model),
		zap.String("select_model", selectProfile.Model),
		zap.String("summarize_model", summarizeProfile.Model),
		zap.Int("search_backends", len(backends)))

	return &pipeline{
		formatter: formatter,
		resolver:  resolver,
		generator: generator,
		tracker:   tracker,
	}, nil
}
