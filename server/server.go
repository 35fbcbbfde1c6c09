// Package server provides the HTTP API: similarity search, document
// ingestion and health.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/pagevec/aggregate"
	"github.com/hupe1980/pagevec/search"
	"github.com/hupe1980/pagevec/session"
	"github.com/hupe1980/pagevec/writer"
)

// Options contains configuration options for the server.
type Options struct {
	// Logger receives request logs. Defaults to slog.Default().
	Logger *slog.Logger

	// RequestTimeout bounds one request end to end, external calls
	// included. Defaults to 60s.
	RequestTimeout time.Duration
}

// Server is the HTTP server for the pagevec API.
type Server struct {
	searcher *search.Service
	writer   *writer.Writer
	sessions *session.Store
	store    *aggregate.Store
	opts     Options
	server   *http.Server
}

// New creates a server with the given dependencies. The aggregate store is
// used to read back a published document index before the session merge.
func New(searcher *search.Service, w *writer.Writer, sessions *session.Store, store *aggregate.Store, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:         slog.Default(),
		RequestTimeout: 60 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{
		searcher: searcher,
		writer:   w,
		sessions: sessions,
		store:    store,
		opts:     opts,
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) func(o *Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Routes builds the HTTP handler. Exposed for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/sessions/{sessionID}/documents", s.handleIngest)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}
	s.opts.Logger.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
