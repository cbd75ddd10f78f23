package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/leasehook/internal/apperr"
	"github.com/mattjoyce/leasehook/internal/queue"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.jobs.Depth(r.Context())
	if err != nil {
		s.logger.Error("failed to compute queue depth", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute queue depth")
		return
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    depth,
	})
}

// handleAutomationTask is the queue push target. A handler failure is
// still a 200: it is recorded on the outcome and must not be redelivered.
func (s *Server) handleAutomationTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "task body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "failed to read task body")
		return
	}

	outcome, err := s.processor.ProcessRaw(r.Context(), body)
	if err != nil {
		s.logger.Warn("automation task rejected",
			"job_id", r.Header.Get("X-Job-Id"),
			"status", apperr.StatusCode(err),
			"error", err,
		)
		s.writeAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.jobs.GetJobByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("failed to retrieve job", "job_id", jobID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve job")
		return
	}

	respondJSON(w, http.StatusOK, JobStatusResponse{
		JobID:       job.ID,
		Kind:        job.Kind,
		AccountID:   job.AccountID,
		Status:      string(job.Status),
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
		LastError:   job.LastError,
		Result:      job.Result,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		NextRetryAt: job.NextRetryAt,
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	env := apperr.Envelope(err)
	if apperr.Retryable(err) {
		w.Header().Set("Retry-After", "30")
	}
	respondJSON(w, env.Code, ErrorResponse{Error: env.Message, Code: env.TextCode})
}
