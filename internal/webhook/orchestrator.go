package webhook

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mattjoyce/leasehook/internal/account"
	"github.com/mattjoyce/leasehook/internal/apperr"
	"github.com/mattjoyce/leasehook/internal/log"
	"github.com/mattjoyce/leasehook/internal/signature"
)

// Resolver resolves account contexts. account.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, accountID string) (account.Context, error)
}

// Orchestrator runs the verification steps for one envelope.
type Orchestrator struct {
	resolver Resolver
	verifier *signature.Verifier
	logger   *slog.Logger
}

// NewOrchestrator wires the verification pipeline.
func NewOrchestrator(resolver Resolver, verifier *signature.Verifier, logger *slog.Logger) *Orchestrator {
	if verifier == nil {
		verifier = signature.NewVerifier(signature.DefaultTolerance)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Orchestrator{resolver: resolver, verifier: verifier, logger: logger}
}

// Verify authenticates env. Every failure is an *apperr.Error and is logged
// exactly once here.
func (o *Orchestrator) Verify(ctx context.Context, env Envelope) (*VerifiedWebhook, error) {
	accountID := ExtractAccountID(env)
	if accountID == "" {
		return nil, o.fail(ctx, env, "", "webhook missing account id", apperr.BadRequest("account id is required", nil))
	}

	meta := signature.Extract(env.Headers)
	if meta == nil {
		return nil, o.fail(ctx, env, accountID, "webhook missing signature",
			apperr.Unauthorized("webhook verification failed", signature.ErrMissingSignature))
	}

	acct, err := o.resolver.Resolve(ctx, accountID)
	if err != nil {
		return nil, o.fail(ctx, env, accountID, "webhook account resolution failed", err)
	}

	matched, err := o.verifier.Verify(meta.Scheme, meta.HeaderValue, acct.WebhookSecret, env.RawBody, meta.Timestamp)
	if err != nil {
		if errors.Is(err, signature.ErrMissingSecret) {
			err = apperr.Misconfigured("account is missing a webhook secret", err)
		} else {
			err = apperr.Unauthorized("webhook verification failed", err)
		}
		return nil, o.fail(ctx, env, accountID, "webhook signature rejected", err,
			"signature_header", meta.HeaderName,
			"scheme", string(meta.Scheme),
		)
	}

	return &VerifiedWebhook{
		account:   acct,
		envelope:  env,
		signature: matched,
		scheme:    meta.Scheme,
	}, nil
}

func (o *Orchestrator) fail(ctx context.Context, env Envelope, accountID, msg string, err error, attrs ...any) error {
	level := slog.LevelWarn
	if apperr.StatusCode(err) >= 500 {
		level = slog.LevelError
	}
	attrs = append(attrs,
		"account_id", accountID,
		"status", apperr.StatusCode(err),
		"headers", log.RedactHeaders(env.Headers),
		"error", err,
	)
	o.logger.Log(ctx, level, msg, attrs...)
	return err
}
