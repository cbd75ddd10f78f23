package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/leasehook/internal/apperr"
	"github.com/mattjoyce/leasehook/internal/automation"
	"github.com/mattjoyce/leasehook/internal/enqueue"
	"github.com/mattjoyce/leasehook/internal/log"
	"github.com/mattjoyce/leasehook/internal/queue"
)

const (
	// maxBackoff caps the retry delay.
	maxBackoff = time.Hour

	// pruneEvery is how often job_log retention is enforced.
	pruneEvery = time.Hour

	// maxErrorBytes caps last_error stored on a job.
	maxErrorBytes = 4 * 1024
)

// Jobs is the queue surface the dispatcher drives. *queue.Queue implements it.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Complete(ctx context.Context, jobID string, status queue.Status, lastError *string, result json.RawMessage) error
	Retry(ctx context.Context, jobID string, lastError string, delay time.Duration) error
	RecoverRunning(ctx context.Context) (int64, error)
	PruneJobLogs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Config tunes the dispatch loop. Zero values take defaults.
type Config struct {
	PollInterval    time.Duration
	BackoffBase     time.Duration
	DeliveryTimeout time.Duration
	JobLogRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 2 * time.Minute
	}
	return c
}

// Dispatcher dequeues jobs and delivers them.
type Dispatcher struct {
	jobs      Jobs
	deliverer Deliverer
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	lastPrune time.Time
}

// New creates a new Dispatcher.
func New(jobs Jobs, deliverer Deliverer, cfg Config) *Dispatcher {
	return &Dispatcher{
		jobs:      jobs,
		deliverer: deliverer,
		cfg:       cfg.withDefaults(),
		logger:    log.WithComponent("dispatch"),
		now:       time.Now,
	}
}

// Start recovers interrupted jobs, then polls the queue until ctx is
// cancelled. Each tick drains every due job.
func (d *Dispatcher) Start(ctx context.Context) error {
	if n, err := d.jobs.RecoverRunning(ctx); err != nil {
		return fmt.Errorf("recover running jobs: %w", err)
	} else if n > 0 {
		d.logger.Warn("requeued jobs left running by a previous process", "count", n)
	}

	d.logger.Info("dispatch loop started", "poll_interval", d.cfg.PollInterval)
	defer d.logger.Info("dispatch loop stopped")

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.maybePrune(ctx)
			for {
				processed, err := d.RunOnce(ctx)
				if err != nil {
					d.logger.Error("failed to process job", "error", err)
					break
				}
				if !processed || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// RunOnce claims and delivers at most one job. It reports whether a job
// was claimed.
func (d *Dispatcher) RunOnce(ctx context.Context) (bool, error) {
	job, err := d.jobs.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if job == nil {
		return false, nil
	}
	d.execute(ctx, job)
	return true, nil
}

func (d *Dispatcher) execute(ctx context.Context, job *queue.Job) {
	jobLogger := log.WithAccount(log.WithJob(job.ID), job.AccountID).With("kind", job.Kind)
	jobLogger.Info("delivering job", "attempt", job.Attempt, "max_attempts", job.MaxAttempts)

	if job.Kind != enqueue.JobKind {
		jobLogger.Error("unsupported job kind")
		d.complete(ctx, jobLogger, job.ID, queue.StatusFailed, fmt.Sprintf("unsupported job kind %q", job.Kind), nil)
		return
	}

	dctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	outcome, err := d.deliverer.Deliver(dctx, job)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			jobLogger.Warn("delivery interrupted by shutdown; job will be recovered on restart")
			return
		}
		d.fail(ctx, jobLogger, job, err)
		return
	}

	result, mErr := json.Marshal(outcome)
	if mErr != nil {
		d.complete(ctx, jobLogger, job.ID, queue.StatusFailed, fmt.Sprintf("marshal outcome: %v", mErr), nil)
		return
	}

	if outcome.Status == automation.StatusFailed {
		d.complete(ctx, jobLogger, job.ID, queue.StatusFailed, outcome.Reason, result)
		return
	}
	jobLogger.Info("job completed", "status", string(outcome.Status), "automation", outcome.Automation, "reason", outcome.Reason)
	d.complete(ctx, jobLogger, job.ID, queue.StatusSucceeded, "", result)
}

func (d *Dispatcher) fail(ctx context.Context, logger *slog.Logger, job *queue.Job, err error) {
	msg := truncate(err.Error())

	if apperr.Is(err, apperr.KindBadRequest) || apperr.Is(err, apperr.KindNotFound) {
		logger.Error("job rejected", "error", err)
		d.complete(ctx, logger, job.ID, queue.StatusFailed, msg, nil)
		return
	}

	if job.Attempt >= job.MaxAttempts {
		logger.Error("job exhausted retries", "error", err, "attempt", job.Attempt)
		d.complete(ctx, logger, job.ID, queue.StatusDead, msg, nil)
		return
	}

	delay := Backoff(d.cfg.BackoffBase, job.Attempt)
	logger.Warn("job delivery failed; retrying", "error", err, "attempt", job.Attempt, "retry_in", delay)
	if rErr := d.jobs.Retry(ctx, job.ID, msg, delay); rErr != nil {
		logger.Error("failed to requeue job", "error", rErr)
	}
}

func (d *Dispatcher) complete(ctx context.Context, logger *slog.Logger, jobID string, status queue.Status, lastError string, result json.RawMessage) {
	var errPtr *string
	if lastError != "" {
		msg := truncate(lastError)
		errPtr = &msg
	}
	if err := d.jobs.Complete(ctx, jobID, status, errPtr, result); err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			logger.Error("job vanished before completion")
			return
		}
		logger.Error("failed to complete job", "error", err)
	}
}

func (d *Dispatcher) maybePrune(ctx context.Context) {
	if d.cfg.JobLogRetention <= 0 {
		return
	}
	now := d.now()
	if !d.lastPrune.IsZero() && now.Sub(d.lastPrune) < pruneEvery {
		return
	}
	d.lastPrune = now
	n, err := d.jobs.PruneJobLogs(ctx, d.cfg.JobLogRetention)
	if err != nil {
		d.logger.Error("failed to prune job log", "error", err)
		return
	}
	if n > 0 {
		d.logger.Info("pruned job log", "rows", n)
	}
}

// Backoff returns base·2^(attempt-1), capped at maxBackoff.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return min(delay, maxBackoff)
}

func truncate(s string) string {
	if len(s) > maxErrorBytes {
		return s[:maxErrorBytes]
	}
	return s
}
