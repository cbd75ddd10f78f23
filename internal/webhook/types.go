package webhook

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/mattjoyce/leasehook/internal/account"
	"github.com/mattjoyce/leasehook/internal/signature"
	"github.com/mattjoyce/leasehook/internal/tenant"
)

// Envelope is the raw inbound request.
type Envelope struct {
	Headers http.Header
	RawBody []byte
	// ParsedBody is nil when the body is not a JSON object.
	ParsedBody tenant.Document
}

// NewEnvelope builds an envelope, parsing the body best-effort.
func NewEnvelope(headers http.Header, body []byte) Envelope {
	env := Envelope{Headers: headers.Clone(), RawBody: bytes.Clone(body)}
	if env.Headers == nil {
		env.Headers = http.Header{}
	}
	if doc, err := tenant.Decode(body); err == nil && len(bytes.TrimSpace(body)) > 0 {
		env.ParsedBody = doc
	}
	return env
}

// VerifiedWebhook is an authenticated request bound to its account. It is
// only produced by Orchestrator.Verify or RestoreVerified.
type VerifiedWebhook struct {
	account   account.Context
	envelope  Envelope
	signature string
	scheme    signature.Scheme
}

func (v *VerifiedWebhook) AccountID() string { return v.account.AccountID }

// Account returns a copy of the resolved account context.
func (v *VerifiedWebhook) Account() account.Context { return v.account.Clone() }

func (v *VerifiedWebhook) Headers() http.Header { return v.envelope.Headers.Clone() }

func (v *VerifiedWebhook) RawBody() []byte { return bytes.Clone(v.envelope.RawBody) }

// ParsedBody returns a copy of the decoded body, or nil.
func (v *VerifiedWebhook) ParsedBody() tenant.Document { return v.envelope.ParsedBody.Clone() }

// Signature is the presented signature value that matched.
func (v *VerifiedWebhook) Signature() string { return v.signature }

func (v *VerifiedWebhook) Scheme() signature.Scheme { return v.scheme }

// RestoreVerified rebuilds a VerifiedWebhook from a durable job that was
// created from one. Callers decide whether to re-validate it.
func RestoreVerified(acct account.Context, headers http.Header, body []byte, sig string, scheme signature.Scheme) *VerifiedWebhook {
	return &VerifiedWebhook{
		account:   acct.Clone(),
		envelope:  NewEnvelope(headers, body),
		signature: sig,
		scheme:    scheme,
	}
}

// Enqueuer hands verified webhooks to the durable queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, v *VerifiedWebhook) (string, error)
}

// AcceptedResponse is returned once a webhook is queued.
type AcceptedResponse struct {
	JobID string `json:"job_id"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// accountIDHeaders and accountIDBodyKeys are searched in order.
var (
	accountIDHeaders  = []string{"x-vendor-account-id", "x-account-id", "x-tenant-id"}
	accountIDBodyKeys = []string{"AccountId", "accountId", "account_id", "AccountID", "Account.Id"}
)

// ExtractAccountID returns the account id from headers or body, or "".
func ExtractAccountID(env Envelope) string {
	lower := signature.Lowercase(env.Headers)
	for _, name := range accountIDHeaders {
		if v := strings.TrimSpace(lower[name]); v != "" {
			return v
		}
	}
	if env.ParsedBody != nil {
		if v, _, ok := env.ParsedBody.String(accountIDBodyKeys...); ok {
			return v
		}
	}
	return ""
}
