package account

import (
	"context"
	"errors"
	"testing"

	"github.com/mattjoyce/leasehook/internal/apperr"
	"github.com/mattjoyce/leasehook/internal/secrets"
	"github.com/mattjoyce/leasehook/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTenants struct {
	docs map[string]tenant.Document
	err  error
}

func (f fakeTenants) Get(_ context.Context, id string) (tenant.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return doc.Clone(), nil
}

type fakeSecrets struct {
	values map[string]string
	err    error
	seen   []string
}

func (f *fakeSecrets) Access(_ context.Context, ref string) ([]byte, error) {
	f.seen = append(f.seen, ref)
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[ref]
	if !ok {
		return nil, secrets.ErrNotFound
	}
	return []byte(v), nil
}

func newResolver(docs map[string]tenant.Document, sec *fakeSecrets) *Resolver {
	return &Resolver{Tenants: fakeTenants{docs: docs}, Secrets: sec, ProjectID: "proj"}
}

func TestResolveDirectWebhookSecret(t *testing.T) {
	sec := &fakeSecrets{values: map[string]string{
		"projects/proj/secrets/api/versions/latest": "api-token\n",
	}}
	r := newResolver(map[string]tenant.Document{
		"acct-123": {"secret_ref": "api", "signing_secret": "s3cr3t", "webhook_secret_ref": "unused", "gl_mapping": map[string]any{"rent": "4000"}},
	}, sec)

	got, err := r.Resolve(context.Background(), "acct-123")
	require.NoError(t, err)

	assert.Equal(t, "acct-123", got.AccountID)
	assert.Equal(t, "api-token", got.APISecret)
	assert.Equal(t, "s3cr3t", got.WebhookSecret)
	assert.NotContains(t, got.Metadata, "secret_ref")
	assert.NotContains(t, got.Metadata, "signing_secret")
	assert.NotContains(t, got.Metadata, "webhook_secret_ref")
	assert.Contains(t, got.Metadata, "gl_mapping")
	assert.Equal(t, []string{"projects/proj/secrets/api/versions/latest"}, sec.seen)
}

func TestResolveWebhookSecretRef(t *testing.T) {
	sec := &fakeSecrets{values: map[string]string{
		"projects/other/secrets/api/versions/2":     "api",
		"projects/proj/secrets/hook/versions/latest": "hook-secret",
	}}
	r := newResolver(map[string]tenant.Document{
		"acct-1": {"apiSecretRef": "projects/other/secrets/api/versions/2", "webhookSecretRef": "hook"},
	}, sec)

	got, err := r.Resolve(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "hook-secret", got.WebhookSecret)
}

func TestResolveWithoutWebhookSecretLeavesItEmpty(t *testing.T) {
	sec := &fakeSecrets{values: map[string]string{"projects/proj/secrets/api/versions/latest": "api"}}
	r := newResolver(map[string]tenant.Document{"acct-1": {"api_secret_ref": "api"}}, sec)

	got, err := r.Resolve(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Empty(t, got.WebhookSecret)
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name     string
		resolver *Resolver
		kind     apperr.Kind
	}{
		{
			name:     "unknown tenant",
			resolver: newResolver(nil, &fakeSecrets{}),
			kind:     apperr.KindNotFound,
		},
		{
			name:     "tenant store down",
			resolver: &Resolver{Tenants: fakeTenants{err: errors.New("connection refused")}, Secrets: &fakeSecrets{}},
			kind:     apperr.KindUnavailable,
		},
		{
			name:     "missing api ref",
			resolver: newResolver(map[string]tenant.Document{"acct-1": {"webhook_secret": "x"}}, &fakeSecrets{}),
			kind:     apperr.KindMisconfigured,
		},
		{
			name:     "secret missing",
			resolver: newResolver(map[string]tenant.Document{"acct-1": {"api_secret_ref": "api"}}, &fakeSecrets{}),
			kind:     apperr.KindMisconfigured,
		},
		{
			name: "bare ref without project",
			resolver: &Resolver{
				Tenants: fakeTenants{docs: map[string]tenant.Document{"acct-1": {"api_secret_ref": "api"}}},
				Secrets: &fakeSecrets{},
			},
			kind: apperr.KindMisconfigured,
		},
		{
			name:     "secret store down",
			resolver: newResolver(map[string]tenant.Document{"acct-1": {"api_secret_ref": "api"}}, &fakeSecrets{err: errors.New("timeout")}),
			kind:     apperr.KindUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.resolver.Resolve(context.Background(), "acct-1")
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestContextCloneIsolatesMetadata(t *testing.T) {
	c := Context{Metadata: tenant.Document{"k": "v"}}
	cp := c.Clone()
	cp.Metadata["k"] = "changed"
	assert.Equal(t, "v", c.Metadata["k"])
}
