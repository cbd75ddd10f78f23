package automation

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/leasehook/internal/log"
	"github.com/mattjoyce/leasehook/internal/tenant"
	"github.com/mattjoyce/leasehook/internal/webhook"
)

// BatchEventType marks events synthesised for batch runs.
const BatchEventType = "batch"

// BatchResult is one tenant's entry in a batch run.
type BatchResult struct {
	AccountID string  `json:"account_id"`
	Outcome   Outcome `json:"outcome"`
	Error     string  `json:"error,omitempty"`
}

// RunBatch runs kind for each account outside of any webhook. Category
// gates do not apply; the bootstrap at-most-once gate does. One tenant's
// failure never stops the batch.
func (r *Router) RunBatch(ctx context.Context, kind Kind, resolver webhook.Resolver, accountIDs []string) []BatchResult {
	results := make([]BatchResult, 0, len(accountIDs))
	for _, id := range accountIDs {
		if ctx.Err() != nil {
			results = append(results, BatchResult{AccountID: id, Error: ctx.Err().Error()})
			continue
		}
		out, err := r.runOne(ctx, kind, resolver, id)
		res := BatchResult{AccountID: id, Outcome: out}
		if err != nil {
			res.Error = err.Error()
			log.WithAccount(r.logger, id).Error("batch automation failed",
				slog.String("automation", kind.String()),
				"error", err,
			)
		} else if out.Status == StatusFailed {
			res.Error = out.Reason
		}
		results = append(results, res)
	}
	return results
}

func (r *Router) runOne(ctx context.Context, kind Kind, resolver webhook.Resolver, accountID string) (Outcome, error) {
	acct, err := resolver.Resolve(ctx, accountID)
	if err != nil {
		return Outcome{AccountID: accountID, Automation: kind.String(), Status: StatusFailed, Reason: err.Error(), FinishedAt: r.now().UTC()}, err
	}
	doc, err := r.tenants.Get(ctx, accountID)
	if err != nil {
		return Outcome{AccountID: accountID, Automation: kind.String(), Status: StatusFailed, Reason: err.Error(), FinishedAt: r.now().UTC()}, err
	}

	event := Event{Type: BatchEventType, TaskName: kind.String()}
	if id, _, ok := doc.String(tenant.KeyAutomatedTasksCategoryID); ok {
		event.CategoryID = id
	}
	out := Outcome{AccountID: accountID, Automation: kind.String(), Event: event}
	logger := log.WithAccount(r.logger, accountID).With(slog.String("automation", kind.String()), slog.Bool("batch", true))

	if kind.Bootstrap() {
		if done, _, ok := doc.String(tenant.PathInitiationCompletedAt); ok {
			return r.ignore(logger, out, "automation already completed at "+done), nil
		}
	}
	return r.run(ctx, logger, kind, out, acct.APISecret, doc, event), nil
}
