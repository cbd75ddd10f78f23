// Package api serves the internal listener: the durable queue's push
// target, job inspection and health.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/leasehook/internal/auth"
	"github.com/mattjoyce/leasehook/internal/automation"
	"github.com/mattjoyce/leasehook/internal/log"
	"github.com/mattjoyce/leasehook/internal/queue"
)

// DefaultMaxBodyBytes caps a pushed task body.
const DefaultMaxBodyBytes = 4 << 20

// JobReader defines the job queue reads the API needs.
type JobReader interface {
	GetJobByID(ctx context.Context, jobID string) (*queue.Job, error)
	Depth(ctx context.Context) (int, error)
}

// TaskProcessor runs a pushed automation job. *automation.Processor implements it.
type TaskProcessor interface {
	ProcessRaw(ctx context.Context, raw []byte) (automation.Outcome, error)
}

// Config holds API server configuration.
type Config struct {
	Listen          string
	Keys            *auth.Keyring // nil rejects every token
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// Server represents the internal HTTP API server.
type Server struct {
	config    Config
	jobs      JobReader
	processor TaskProcessor
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance.
func New(config Config, jobs JobReader, processor TaskProcessor, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Server{
		config:    config,
		jobs:      jobs,
		processor: processor,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // automation handlers run inside the request
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.require(auth.GrantPush)).Post("/tasks/automation", s.handleAutomationTask)
		r.With(s.require(auth.GrantReadJobs)).Get("/jobs/{jobID}", s.handleGetJob)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"job_id", r.Header.Get("X-Job-Id"),
		)
	})
}
