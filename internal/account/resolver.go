// Package account resolves a vendor account id into its tenant metadata and
// secrets.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattjoyce/leasehook/internal/apperr"
	"github.com/mattjoyce/leasehook/internal/secrets"
	"github.com/mattjoyce/leasehook/internal/tenant"
)

// Metadata aliases, first match wins.
var (
	APISecretRefKeys = []string{
		"api_secret_ref", "api_secret_name", "api_key_secret", "apiSecretRef", "secret_ref",
	}
	WebhookSecretValueKeys = []string{
		"webhook_secret", "webhook_signing_secret", "signing_secret", "webhookSecret",
	}
	WebhookSecretRefKeys = []string{
		"webhook_secret_ref", "webhook_secret_name", "signing_secret_ref", "webhookSecretRef",
	}
)

// Context is the resolved view of one account. It is rebuilt on every
// verification and never cached.
type Context struct {
	AccountID     string
	Metadata      tenant.Document
	APISecret     string
	WebhookSecret string
}

// Clone returns a copy whose Metadata can be mutated freely.
func (c Context) Clone() Context {
	c.Metadata = c.Metadata.Clone()
	return c
}

// TenantReader is the read side of tenant.Store.
type TenantReader interface {
	Get(ctx context.Context, accountID string) (tenant.Document, error)
}

// Resolver builds a Context from the tenant document and the secret store.
// Resolve blocks on both stores.
type Resolver struct {
	Tenants        TenantReader
	Secrets        secrets.Store
	ProjectID      string
	DefaultVersion string
}

// Resolve loads the tenant and both secrets for accountID.
func (r *Resolver) Resolve(ctx context.Context, accountID string) (Context, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Context{}, apperr.BadRequest("account id is required", nil)
	}

	doc, err := r.Tenants.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return Context{}, apperr.NotFound("unknown account", err)
		}
		return Context{}, apperr.Unavailable("tenant store unavailable", err)
	}

	apiRef, _, ok := doc.String(APISecretRefKeys...)
	if !ok {
		return Context{}, apperr.Misconfigured("account is missing an API secret reference", nil)
	}
	apiSecret, err := r.access(ctx, apiRef)
	if err != nil {
		return Context{}, err
	}

	webhookSecret, _, ok := doc.String(WebhookSecretValueKeys...)
	if !ok {
		if ref, _, hasRef := doc.String(WebhookSecretRefKeys...); hasRef {
			webhookSecret, err = r.access(ctx, ref)
			if err != nil {
				return Context{}, err
			}
		}
	}

	strip := make([]string, 0, len(APISecretRefKeys)+len(WebhookSecretValueKeys)+len(WebhookSecretRefKeys))
	strip = append(strip, APISecretRefKeys...)
	strip = append(strip, WebhookSecretValueKeys...)
	strip = append(strip, WebhookSecretRefKeys...)

	return Context{
		AccountID:     accountID,
		Metadata:      doc.Without(strip...),
		APISecret:     apiSecret,
		WebhookSecret: webhookSecret,
	}, nil
}

func (r *Resolver) access(ctx context.Context, raw string) (string, error) {
	ref, err := secrets.NormalizeRef(raw, r.ProjectID, r.DefaultVersion)
	if err != nil {
		return "", apperr.Misconfigured("account secret reference is malformed", err)
	}
	payload, err := r.Secrets.Access(ctx, ref.String())
	switch {
	case err == nil:
	case errors.Is(err, secrets.ErrNotFound), errors.Is(err, secrets.ErrInvalidRef):
		return "", apperr.Misconfigured("account secret is missing", err)
	default:
		return "", apperr.Unavailable("secret store unavailable", fmt.Errorf("access %s: %w", ref, err))
	}
	return strings.TrimSpace(string(payload)), nil
}
