package automation

import (
	"context"

	"github.com/mattjoyce/leasehook/internal/apperr"
	"github.com/mattjoyce/leasehook/internal/payload"
	"github.com/mattjoyce/leasehook/internal/tenant"
	"github.com/mattjoyce/leasehook/internal/webhook"
)

// TenantStore is the tenant document access handlers need.
type TenantStore interface {
	TenantReader
	ShallowMerge(ctx context.Context, accountID string, updates map[string]any) (tenant.Document, error)
	SetPath(ctx context.Context, accountID, path string, value any) error
}

// CodecSource supplies the payload codec for a tenant.
type CodecSource interface {
	Codec(ctx context.Context, accountID string) (payload.Codec, error)
}

// PayloadKeys uses Static when it has a secret, otherwise the tenant's
// webhook secret resolved through Resolver.
type PayloadKeys struct {
	Static   payload.Codec
	Resolver webhook.Resolver
}

func (k PayloadKeys) Codec(ctx context.Context, accountID string) (payload.Codec, error) {
	if k.Static.Secret != "" {
		return k.Static, nil
	}
	if k.Resolver == nil {
		return payload.Codec{}, apperr.Misconfigured("payload secret is not configured", payload.ErrMissingSecret)
	}
	acct, err := k.Resolver.Resolve(ctx, accountID)
	if err != nil {
		return payload.Codec{}, err
	}
	if acct.WebhookSecret == "" {
		return payload.Codec{}, apperr.Misconfigured("payload secret is not configured", payload.ErrMissingSecret)
	}
	return payload.Codec{Secret: acct.WebhookSecret, KeyVersion: k.Static.KeyVersion}, nil
}
