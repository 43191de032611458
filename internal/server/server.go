// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/chunkstore"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/storage"
)

// Server is the HTTP server for the Kotae API.
type Server struct {
	engine    *chat.Engine
	ingestor  *ingest.Ingestor
	extractor *ingest.Extractor
	storage   storage.Storage
	chunks    chunkstore.Store
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *chat.Engine,
	ingestor *ingest.Ingestor,
	extractor *ingest.Extractor,
	store storage.Storage,
	chunks chunkstore.Store,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:    engine,
		ingestor:  ingestor,
		extractor: extractor,
		storage:   store,
		chunks:    chunks,
		config:    cfg,
		logger:    logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	// No global timeout: /query/stream holds the connection open for the
	// duration of answer generation.

	r.Post("/api/v1/query", s.handleQuery)
	r.Post("/api/v1/query/stream", s.handleQueryStream)
	r.Post("/api/v1/ingest", s.handleIngestFile)
	r.Post("/api/v1/ingest/url", s.handleIngestURL)
	r.Post("/api/v1/conversations", s.handleCreateConversation)
	r.Get("/api/v1/conversations", s.handleListConversations)
	r.Get("/api/v1/conversations/{id}", s.handleGetConversation)
	r.Delete("/api/v1/conversations/{id}", s.handleDeleteConversation)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
