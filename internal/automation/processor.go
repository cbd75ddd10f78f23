package automation

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/leasehook/internal/apperr"
	"github.com/mattjoyce/leasehook/internal/enqueue"
	"github.com/mattjoyce/leasehook/internal/log"
	"github.com/mattjoyce/leasehook/internal/webhook"
)

// Processor consumes automation jobs from the queue.
type Processor struct {
	router   *Router
	resolver webhook.Resolver
	logger   *slog.Logger
}

// NewProcessor wires a processor. With a non-nil resolver every job's
// account is re-resolved before routing.
func NewProcessor(router *Router, resolver webhook.Resolver, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = log.Discard()
	}
	return &Processor{router: router, resolver: resolver, logger: logger}
}

// ProcessRaw decodes a job payload and processes it. Undecodable payloads
// are BadRequest.
func (p *Processor) ProcessRaw(ctx context.Context, raw []byte) (Outcome, error) {
	job, err := enqueue.Decode(raw)
	if err != nil {
		return Outcome{}, apperr.BadRequest("invalid automation job", err)
	}
	return p.Process(ctx, job)
}

// Process restores the verified webhook carried by job and routes it.
func (p *Processor) Process(ctx context.Context, job enqueue.AutomationJob) (Outcome, error) {
	v := job.Restore()
	if p.resolver != nil {
		revalidated, err := job.Revalidate(ctx, p.resolver)
		if err != nil {
			log.WithAccount(p.logger, job.AccountID).Warn("automation job revalidation failed", "error", err)
			return Outcome{AccountID: job.AccountID}, err
		}
		v = revalidated
	}
	return p.router.Route(ctx, v)
}
