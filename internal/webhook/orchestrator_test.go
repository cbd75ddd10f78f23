package webhook

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/mattjoyce/leasehook/internal/account"
	"github.com/mattjoyce/leasehook/internal/apperr"
	"github.com/mattjoyce/leasehook/internal/log"
	"github.com/mattjoyce/leasehook/internal/signature"
	"github.com/mattjoyce/leasehook/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1_700_000_000, 0)

type resolverFunc func(ctx context.Context, id string) (account.Context, error)

func (f resolverFunc) Resolve(ctx context.Context, id string) (account.Context, error) {
	return f(ctx, id)
}

func staticResolver(secret string) resolverFunc {
	return func(_ context.Context, id string) (account.Context, error) {
		if id != "acct-123" {
			return account.Context{}, apperr.NotFound("unknown account", tenant.ErrNotFound)
		}
		return account.Context{
			AccountID:     id,
			Metadata:      tenant.Document{"automated_tasks_category_id": "42"},
			APISecret:     "api",
			WebhookSecret: secret,
		}, nil
	}
}

func newTestOrchestrator(r Resolver) *Orchestrator {
	v := &signature.Verifier{Tolerance: signature.DefaultTolerance, Now: func() time.Time { return testNow }}
	return NewOrchestrator(r, v, log.Discard())
}

func TestVerifyHexHeaderExample(t *testing.T) {
	body := []byte(`{"AccountId":"acct-123"}`)
	h := http.Header{}
	h.Set("X-Vendor-Hmac-SHA256", signature.SignHex("s3cr3t", body, ""))

	got, err := newTestOrchestrator(staticResolver("s3cr3t")).Verify(context.Background(), NewEnvelope(h, body))
	require.NoError(t, err)

	assert.Equal(t, "acct-123", got.AccountID())
	assert.Equal(t, signature.SchemeHMAC, got.Scheme())
	assert.Equal(t, body, got.RawBody())
	assert.Equal(t, "acct-123", got.ParsedBody()["AccountId"])
	assert.Equal(t, "api", got.Account().APISecret)
}

func TestVerifyStaleStructuredSignature(t *testing.T) {
	body := []byte(`{"AccountId":"acct-123"}`)
	ts := strconv.FormatInt(testNow.Unix()-400, 10)
	h := http.Header{}
	h.Set("X-Vendor-Signature", "t="+ts+",v1="+signature.SignHex("s3cr3t", body, ts))

	_, err := newTestOrchestrator(staticResolver("s3cr3t")).Verify(context.Background(), NewEnvelope(h, body))
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperr.StatusCode(err))
	assert.ErrorIs(t, err, signature.ErrStaleTimestamp)
}

func TestVerifyAccountIDFromHeaderWins(t *testing.T) {
	body := []byte(`{"AccountId":"someone-else"}`)
	h := http.Header{}
	h.Set("X-Tenant-Id", " acct-123 ")
	h.Set("X-Vendor-Webhook-Token", "tok")

	got, err := newTestOrchestrator(staticResolver("tok")).Verify(context.Background(), NewEnvelope(h, body))
	require.NoError(t, err)
	assert.Equal(t, "acct-123", got.AccountID())
	assert.Equal(t, signature.SchemeToken, got.Scheme())
}

func TestVerifyNestedAccountID(t *testing.T) {
	body := []byte(`{"Account":{"Id":"acct-123"}}`)
	h := http.Header{}
	h.Set("X-Signature", signature.SignHex("s3cr3t", body, ""))

	got, err := newTestOrchestrator(staticResolver("s3cr3t")).Verify(context.Background(), NewEnvelope(h, body))
	require.NoError(t, err)
	assert.Equal(t, "acct-123", got.AccountID())
}

func TestVerifyFailures(t *testing.T) {
	goodBody := []byte(`{"AccountId":"acct-123"}`)
	signed := func(secret string, body []byte) http.Header {
		h := http.Header{}
		h.Set("X-Vendor-Hmac-SHA256", signature.SignHex(secret, body, ""))
		return h
	}

	tests := []struct {
		name     string
		resolver Resolver
		headers  http.Header
		body     []byte
		status   int
	}{
		{name: "no account id", resolver: staticResolver("s"), headers: signed("s", []byte(`{}`)), body: []byte(`{}`), status: http.StatusBadRequest},
		{name: "non-json body without header id", resolver: staticResolver("s"), headers: signed("s", []byte("x")), body: []byte("x"), status: http.StatusBadRequest},
		{name: "no signature", resolver: staticResolver("s"), headers: http.Header{}, body: goodBody, status: http.StatusUnauthorized},
		{name: "unknown tenant", resolver: staticResolver("s"), headers: signed("s", []byte(`{"AccountId":"nope"}`)), body: []byte(`{"AccountId":"nope"}`), status: http.StatusNotFound},
		{name: "store down", resolver: resolverFunc(func(context.Context, string) (account.Context, error) {
			return account.Context{}, apperr.Unavailable("tenant store unavailable", nil)
		}), headers: signed("s", goodBody), body: goodBody, status: http.StatusServiceUnavailable},
		{name: "wrong secret", resolver: staticResolver("s"), headers: signed("other", goodBody), body: goodBody, status: http.StatusUnauthorized},
		{name: "missing webhook secret", resolver: staticResolver(""), headers: signed("s", goodBody), body: goodBody, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestOrchestrator(tt.resolver).Verify(context.Background(), NewEnvelope(tt.headers, tt.body))
			require.Error(t, err)
			assert.Equal(t, tt.status, apperr.StatusCode(err))
		})
	}
}
