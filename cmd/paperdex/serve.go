// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/paperdex/internal/cache"
	"github.com/pdiddy/paperdex/internal/logging"
	"github.com/pdiddy/paperdex/internal/scheduler"
	"github.com/pdiddy/paperdex/internal/server"
	"github.com/pdiddy/paperdex/internal/taskstore"
)

// shutdownGrace bounds draining on SIGINT/SIGTERM.
const shutdownGrace = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background task scheduler",
	Long: `Serve starts the HTTP API and the scheduler that drives tasks through
formatting, search, and summarization. Tasks are created over the API and
processed asynchronously; results land in the paper cache and in per-paper
artifact directories.`,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		store, err := taskstore.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("opening task store: %w", err)
		}
		defer store.Close()

		pipe, err := buildPipeline(cfg, paperCache, log)
		if err != nil {
			return err
		}

		sched := scheduler.New(store, paperCache, pipe.formatter, pipe.resolver, pipe.generator, cfg.Scheduler, log)
		if err := sched.Start(cmd.Context()); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}

		srv := server.New(cfg.Server, paperCache, store, log)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		case sig := <-sigCh:
			log.Info("shutting down", zap.String("signal", sig.String()))
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		if err := sched.Stop(ctx); err != nil {
			log.Warn("scheduler shutdown", zap.Error(err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
