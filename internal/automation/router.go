package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/mattjoyce/leasehook/internal/apperr"
	"github.com/mattjoyce/leasehook/internal/log"
	"github.com/mattjoyce/leasehook/internal/tenant"
	"github.com/mattjoyce/leasehook/internal/webhook"
)

// Status is the terminal state of one routed event.
type Status string

const (
	StatusIgnored   Status = "ignored"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result is what a handler reports on success.
type Result struct {
	Summary string         `json:"summary"`
	Details map[string]any `json:"details,omitempty"`
}

// Handler runs one automation. headers carries the tenant's outbound
// vendor credentials. Handlers must tolerate duplicate invocation.
type Handler interface {
	Handle(ctx context.Context, tenantID string, headers http.Header, gl GLMapping, event Event) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, tenantID string, headers http.Header, gl GLMapping, event Event) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, tenantID string, headers http.Header, gl GLMapping, event Event) (Result, error) {
	return f(ctx, tenantID, headers, gl, event)
}

// Outcome records how an event was handled.
type Outcome struct {
	AccountID  string    `json:"account_id"`
	Automation string    `json:"automation,omitempty"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Result     *Result   `json:"result,omitempty"`
	Event      Event     `json:"event"`
	FinishedAt time.Time `json:"finished_at"`
}

// TenantReader reads the persisted gate state.
type TenantReader interface {
	Get(ctx context.Context, accountID string) (tenant.Document, error)
}

// Router applies the routing table and gates.
type Router struct {
	tenants  TenantReader
	handlers map[Kind]Handler
	logger   *slog.Logger
	now      func() time.Time
}

// NewRouter builds a router. Gates read tenants, so duplicate deliveries
// see state persisted by earlier runs.
func NewRouter(tenants TenantReader, handlers map[Kind]Handler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = log.Discard()
	}
	return &Router{
		tenants:  tenants,
		handlers: handlers,
		logger:   logger.With(slog.String("component", "automation")),
		now:      time.Now,
	}
}

// Route handles one verified webhook. The error is non-nil only when gate
// state could not be read; handler failures are reported on the Outcome.
func (r *Router) Route(ctx context.Context, v *webhook.VerifiedWebhook) (Outcome, error) {
	event := ExtractEvent(v.ParsedBody())
	out := Outcome{AccountID: v.AccountID(), Event: event}
	logger := log.WithAccount(r.logger, v.AccountID()).With(
		slog.String("event_type", event.Type),
		slog.String("task_name", event.TaskName),
		slog.String("task_id", event.TaskID),
	)

	kind, ok := Lookup(event.Type, event.TaskName)
	if !ok {
		return r.ignore(logger, out, "no automation for event"), nil
	}
	out.Automation = kind.String()
	logger = logger.With(slog.String("automation", kind.String()))

	doc, err := r.tenants.Get(ctx, v.AccountID())
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return out, apperr.NotFound("tenant not found", err)
		}
		return out, apperr.Unavailable("tenant store unavailable", err)
	}

	if kind.Bootstrap() {
		if done, _, ok := doc.String(tenant.PathInitiationCompletedAt); ok {
			return r.ignore(logger, out, "automation already completed at "+done), nil
		}
	} else {
		if Normalize(event.CategoryName) != AutomatedTasksCategory {
			return r.ignore(logger, out, "task is not in the automated tasks category"), nil
		}
		configured, _, ok := doc.String(tenant.KeyAutomatedTasksCategoryID)
		if !ok {
			return r.ignore(logger, out, "tenant has no automated tasks category id"), nil
		}
		if event.CategoryID != configured {
			return r.ignore(logger, out, "task category id does not match tenant"), nil
		}
	}

	return r.run(ctx, logger, kind, out, v.Account().APISecret, doc, event), nil
}

func (r *Router) run(ctx context.Context, logger *slog.Logger, kind Kind, out Outcome, apiSecret string, doc tenant.Document, event Event) Outcome {
	handler, ok := r.handlers[kind]
	if !ok {
		out.Status = StatusFailed
		out.Reason = "no handler registered"
		out.FinishedAt = r.now().UTC()
		logger.Error("automation handler missing")
		return out
	}

	start := r.now()
	result, err := r.invoke(ctx, handler, out.AccountID, APIHeaders(apiSecret), GLMappingFrom(doc), event)
	out.FinishedAt = r.now().UTC()
	if err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
		logger.Error("automation failed",
			"error", err,
			"category_id", event.CategoryID,
			"duration_ms", out.FinishedAt.Sub(start).Milliseconds(),
		)
		return out
	}

	out.Status = StatusCompleted
	out.Result = &result
	logger.Info("automation completed",
		"summary", result.Summary,
		"duration_ms", out.FinishedAt.Sub(start).Milliseconds(),
	)
	return out
}

func (r *Router) invoke(ctx context.Context, h Handler, tenantID string, headers http.Header, gl GLMapping, event Event) (result Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v\n%s", p, debug.Stack())
		}
	}()
	return h.Handle(ctx, tenantID, headers, gl, event)
}

func (r *Router) ignore(logger *slog.Logger, out Outcome, reason string) Outcome {
	out.Status = StatusIgnored
	out.Reason = reason
	out.FinishedAt = r.now().UTC()
	logger.Debug("automation ignored", "reason", reason)
	return out
}
