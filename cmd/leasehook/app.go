package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/leasehook/internal/account"
	"github.com/mattjoyce/leasehook/internal/automation"
	"github.com/mattjoyce/leasehook/internal/config"
	"github.com/mattjoyce/leasehook/internal/dispatch"
	"github.com/mattjoyce/leasehook/internal/log"
	"github.com/mattjoyce/leasehook/internal/n1"
	"github.com/mattjoyce/leasehook/internal/payload"
	"github.com/mattjoyce/leasehook/internal/queue"
	"github.com/mattjoyce/leasehook/internal/secrets"
	"github.com/mattjoyce/leasehook/internal/signature"
	"github.com/mattjoyce/leasehook/internal/storage"
	"github.com/mattjoyce/leasehook/internal/tenant"
	"github.com/mattjoyce/leasehook/internal/upstream"
	"github.com/mattjoyce/leasehook/internal/webhook"
)

// app holds the components shared by start, automation run and payload
// inspect. Everything hangs off one SQLite handle.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	queue    *queue.Queue
	tenants  *tenant.SQLiteStore
	secrets  *secrets.SQLiteStore
	resolver *account.Resolver
	keys     automation.PayloadKeys
	router   *automation.Router
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := storage.OpenSQLite(ctx, cfg.State.Path, storage.Options{AllowNetworkFS: cfg.State.AllowNetworkFS})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.State.Path, err)
	}

	a := &app{
		cfg:     cfg,
		db:      db,
		queue:   queue.New(db),
		tenants: tenant.NewSQLiteStore(db, cfg.State.MaxDocumentBytes),
		secrets: secrets.NewSQLiteStore(db),
	}
	a.resolver = &account.Resolver{
		Tenants:        a.tenants,
		Secrets:        a.secrets,
		ProjectID:      cfg.Secrets.ProjectID,
		DefaultVersion: cfg.Secrets.DefaultVersion,
	}
	a.keys = automation.PayloadKeys{
		Static:   payload.Codec{Secret: cfg.Payload.Secret, KeyVersion: cfg.Payload.KeyVersion},
		Resolver: a.resolver,
	}
	a.router = automation.NewRouter(a.tenants, a.handlers(), log.WithComponent("automation"))
	return a, nil
}

func (a *app) handlers() map[automation.Kind]automation.Handler {
	client := upstream.NewHTTPClient(a.cfg.Vendor.BaseURL, a.cfg.Vendor.RateLimit, a.cfg.Vendor.Burst, a.cfg.Vendor.Timeout)
	return map[automation.Kind]automation.Handler{
		automation.KindInitiation: &automation.InitiationHandler{
			Vendor:       client,
			Tenants:      a.tenants,
			CategoryName: a.cfg.Automation.CategoryName,
		},
		automation.KindN1Prepare: &automation.N1PrepareHandler{
			Vendor:  client,
			Tenants: a.tenants,
			Builder: n1.FlatIncrease{
				Percent:    a.cfg.Automation.N1IncreasePercent,
				NoticeDays: a.cfg.Automation.N1NoticeDays,
			},
			Keys:          a.keys,
			MaxChunkBytes: a.cfg.Payload.MaxChunkBytes,
		},
		automation.KindN1Deliver: &automation.N1DeliverHandler{
			Vendor:      client,
			Tenants:     a.tenants,
			Keys:        a.keys,
			Concurrency: a.cfg.Automation.UploadConcurrency,
		},
	}
}

// processor re-resolves accounts before routing only when revalidation is on.
func (a *app) processor() *automation.Processor {
	var revalidate webhook.Resolver
	if a.cfg.Queue.Revalidate {
		revalidate = a.resolver
	}
	return automation.NewProcessor(a.router, revalidate, log.WithComponent("processor"))
}

func (a *app) orchestrator() *webhook.Orchestrator {
	return webhook.NewOrchestrator(a.resolver, signature.NewVerifier(a.cfg.Verification.Tolerance), log.WithComponent("verify"))
}

func (a *app) deliverer(proc *automation.Processor) dispatch.Deliverer {
	if a.cfg.Queue.Delivery == "http" {
		return dispatch.NewHTTPDeliverer(a.cfg.Queue.PushURL, a.cfg.Queue.PushToken, a.cfg.Queue.DeliveryTimeout)
	}
	return dispatch.InProcessDeliverer{Processor: proc}
}

func (a *app) dispatcher(proc *automation.Processor) *dispatch.Dispatcher {
	return dispatch.New(a.queue, a.deliverer(proc), dispatch.Config{
		PollInterval:    a.cfg.Queue.PollInterval,
		BackoffBase:     a.cfg.Queue.BackoffBase,
		DeliveryTimeout: a.cfg.Queue.DeliveryTimeout,
		JobLogRetention: a.cfg.Queue.JobLogRetention,
	})
}

func (a *app) Close() error {
	return a.db.Close()
}

func logStartup(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration loaded",
		"state", cfg.State.Path,
		"webhooks", cfg.Webhooks.Listen,
		"api_enabled", cfg.API.Enabled,
		"delivery", cfg.Queue.Delivery,
		"vendor", cfg.Vendor.BaseURL != "",
	)
	if cfg.Vendor.BaseURL == "" {
		logger.Warn("vendor.base_url is empty; automations that call the vendor API will fail")
	}
}
