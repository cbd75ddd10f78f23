package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/leasehook/internal/apperr"
)

// DefaultMaxBodySize applies when ServerConfig.MaxBodyBytes is zero.
const DefaultMaxBodySize = 1 << 20

// ServerConfig holds public listener settings.
type ServerConfig struct {
	Listen          string
	MaxBodyBytes    int64
	Vendors         []string
	ShutdownTimeout time.Duration
}

// Verifier authenticates envelopes. Orchestrator implements it.
type Verifier interface {
	Verify(ctx context.Context, env Envelope) (*VerifiedWebhook, error)
}

// Server represents the public webhook HTTP server.
type Server struct {
	config   ServerConfig
	verifier Verifier
	queue    Enqueuer
	logger   *slog.Logger
	server   *http.Server
	vendors  map[string]bool
}

// NewServer creates a webhook server instance.
func NewServer(config ServerConfig, verifier Verifier, queue Enqueuer, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodySize
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	vendors := make(map[string]bool, len(config.Vendors))
	for _, v := range config.Vendors {
		vendors[v] = true
	}
	return &Server{
		config:   config,
		verifier: verifier,
		queue:    queue,
		logger:   logger,
		vendors:  vendors,
	}
}

// Start starts the webhook HTTP server (blocking until ctx is done).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "vendors", s.config.Vendors)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/webhooks/{vendor}", s.handleWebhook)

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads and headers).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vendor := chi.URLParam(r, "vendor")
	if !s.vendors[vendor] {
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "endpoint not found"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodyBytes+1))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "failed to read request body", Code: apperr.TextBadRequest})
		return
	}
	if int64(len(body)) > s.config.MaxBodyBytes {
		respondJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large"})
		return
	}

	verified, err := s.verifier.Verify(ctx, NewEnvelope(r.Header, body))
	if err != nil {
		respondAppError(w, err)
		return
	}

	jobID, err := s.queue.Enqueue(ctx, verified)
	if err != nil {
		s.logger.Error("failed to enqueue webhook",
			"vendor", vendor,
			"account_id", verified.AccountID(),
			"error", err,
		)
		respondAppError(w, err)
		return
	}

	s.logger.Info("webhook enqueued",
		"vendor", vendor,
		"account_id", verified.AccountID(),
		"scheme", string(verified.Scheme()),
		"job_id", jobID,
	)
	respondJSON(w, http.StatusOK, AcceptedResponse{JobID: jobID})
}

func respondAppError(w http.ResponseWriter, err error) {
	env := apperr.Envelope(err)
	if apperr.Retryable(err) {
		w.Header().Set("Retry-After", "30")
	}
	respondJSON(w, env.Code, ErrorResponse{Error: env.Message, Code: env.TextCode})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
