// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/paperdex/internal/cache"
	"github.com/pdiddy/paperdex/internal/logging"
	"github.com/pdiddy/paperdex/internal/resolve"
	"github.com/pdiddy/paperdex/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <input-file>",
	Short: "Process an input file through the full pipeline in one shot",
	Long: `Run reads a free-text paper list from the input file and drives every
paper through formatting, resolution, and summarization synchronously,
reusing the shared cache. With --citations, the input file is treated as
full paper text and the flag's argument as a passage citing other work;
the cited papers become the batch.

Prints a per-paper result list, the cache hit count, and a cost table.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		citationsFile, _ := cmd.Flags().GetString("citations")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		defer log.Sync()

		paperCache, err := cache.Open(cfg.Cache.Path, log)
		if err != nil {
			return fmt.Errorf("opening paper cache: %w", err)
		}

		pipe, err := buildPipeline(cfg, paperCache, log)
		if err != nil {
			return err
		}

		input, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading input file: %w", err)
		}

		ctx := cmd.Context()
		var stubs []types.PaperStub
		if citationsFile != "" {
			snippet, err := os.ReadFile(citationsFile)
			if err != nil {
				return fmt.Errorf("reading citations file: %w", err)
			}
			stubs, err = pipe.formatter.ExtractCitations(ctx, string(snippet), string(input))
			if err != nil {
				return err
			}
		} else {
			stubs, err = pipe.formatter.Format(ctx, string(input))
			if err != nil {
				return err
			}
		}

		fmt.Printf("Processing %d papers\n\n", len(stubs))

		completed, failed, cacheHits := 0, 0, 0
		for _, stub := range stubs {
			hit, err := processPaper(ctx, pipe, paperCache, log, stub)
			switch {
			case err != nil:
				failed++
				fmt.Printf("  FAIL  %s: %v\n", stub.Title, err)
			case hit:
				cacheHits++
				completed++
				fmt.Printf("  CACHE %s\n", stub.Title)
			default:
				completed++
				fmt.Printf("  OK    %s\n", stub.Title)
			}
		}

		fmt.Printf("\nCompleted %d/%d (%d from cache, %d failed)\n\n",
			completed, len(stubs), cacheHits, failed)
		pipe.tracker.Report(os.Stdout)

		if completed == 0 {
			return fmt.Errorf("no papers processed successfully")
		}
		return nil
	},
}

// processPaper runs one stub through resolution and summarization,
// reporting whether the result came entirely from the cache.
func processPaper(ctx context.Context, pipe *pipeline, paperCache *cache.Store, log *zap.Logger, stub types.PaperStub) (bool, error) {
	if entry, ok := paperCache.Get(resolve.TitleKey(stub.Title)); ok && entry.Complete() {
		return true, nil
	}

	paper, err := pipe.resolver.Resolve(ctx, stub)
	if err != nil {
		return false, err
	}

	key := resolve.PaperKey(paper)
	if entry, ok := paperCache.Get(key); ok && entry.Complete() {
		return true, nil
	}

	record, err := pipe.generator.Summarize(ctx, key, paper)
	if err != nil {
		return false, err
	}
	if _, err := pipe.generator.WriteArtifact(paper, record); err != nil {
		log.Warn("writing summary artifact", zap.String("key", key), zap.Error(err))
	}

	entry := types.CacheEntry{Key: key, Paper: paper, Summary: &record, CollectedAt: time.Now().UTC()}
	aliases := []string{resolve.TitleKey(stub.Title), resolve.TitleKey(paper.Title)}
	if err := paperCache.Put(entry, aliases...); err != nil {
		return false, fmt.Errorf("caching summary: %w", err)
	}
	return false, nil
}

func init() {
	runCmd.Flags().String("citations", "", "passage file; cited papers become the batch")

	rootCmd.AddCommand(runCmd)
}
