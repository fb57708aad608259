// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the paper cache and the task store over HTTP.
// The server is a thin read/create/delete layer: all task state changes
// happen in the scheduler, never in a request handler.
// Implements: prd006-api; docs/ARCHITECTURE § HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pdiddy/paperdex/internal/cache"
	"github.com/pdiddy/paperdex/internal/taskstore"
	"github.com/pdiddy/paperdex/pkg/types"
)

// Server wires the HTTP handlers to their backing stores.
type Server struct {
	cfg   types.ServerConfig
	cache *cache.Store
	store *taskstore.Store
	log   *zap.Logger

	http *http.Server
}

// errorResponse is the JSON body for all non-2xx replies.
type errorResponse struct {
	Error string `json:"error"`
}

// New builds a server. A nil log defaults to a no-op logger.
func New(cfg types.ServerConfig, paperCache *cache.Store, store *taskstore.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, cache: paperCache, store: store, log: log}
}

// Router builds the route table.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/health", s.health)

	papers := r.Group("/api/papers")
	{
		papers.GET("/", s.listPapers)
		papers.GET("/by-title", s.paperByTitle)
		papers.GET("/refresh", s.refreshPapers)
		papers.GET("/:key", s.getPaper)
	}

	tasks := r.Group("/api/tasks")
	{
		tasks.POST("/", s.createTask)
		tasks.GET("/", s.listTasks)
		tasks.GET("/:id", s.getTask)
		tasks.GET("/:id/logs", s.taskLogs)
		tasks.DELETE("/:id", s.deleteTask)
	}

	return r
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{Addr: addr, Handler: s.Router()}
	s.log.Info("http server listening", zap.String("addr", addr))

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "papers": s.cache.Len()})
}

// abortError logs the failure and writes the JSON error reply.
func (s *Server) abortError(c *gin.Context, status int, msg string, err error) {
	if err != nil {
		s.log.Warn(msg, zap.String("path", c.FullPath()), zap.Error(err))
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}
