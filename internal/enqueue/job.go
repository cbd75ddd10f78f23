// Package enqueue serialises verified webhooks into durable queue jobs and
// restores them on the consuming side.
package enqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mattjoyce/leasehook/internal/account"
	"github.com/mattjoyce/leasehook/internal/signature"
	"github.com/mattjoyce/leasehook/internal/tenant"
	"github.com/mattjoyce/leasehook/internal/webhook"
)

const (
	// JobKind is the queue kind for automation jobs.
	JobKind = "automation"
	// JobVersion is bumped on incompatible AutomationJob changes.
	JobVersion = 1
)

// AccountSnapshot is the resolved account context carried with a job so
// the consumer need not re-resolve credentials.
type AccountSnapshot struct {
	ID            string          `json:"id"`
	Metadata      tenant.Document `json:"metadata"`
	APISecret     string          `json:"api_secret"`
	WebhookSecret string          `json:"webhook_secret"`
}

// AutomationJob is the serialised form of a VerifiedWebhook. RawBody is
// base64 in JSON.
type AutomationJob struct {
	Version            int                 `json:"version"`
	AccountID          string              `json:"account_id"`
	Headers            map[string][]string `json:"headers"`
	RawBody            []byte              `json:"raw_body"`
	Signature          string              `json:"signature"`
	VerificationScheme signature.Scheme    `json:"verification_scheme"`
	Account            AccountSnapshot     `json:"account"`
	EnqueuedAt         time.Time           `json:"enqueued_at"`
}

// FromVerified captures v as a job.
func FromVerified(v *webhook.VerifiedWebhook, now time.Time) AutomationJob {
	acct := v.Account()
	return AutomationJob{
		Version:            JobVersion,
		AccountID:          v.AccountID(),
		Headers:            v.Headers(),
		RawBody:            v.RawBody(),
		Signature:          v.Signature(),
		VerificationScheme: v.Scheme(),
		Account: AccountSnapshot{
			ID:            acct.AccountID,
			Metadata:      acct.Metadata,
			APISecret:     acct.APISecret,
			WebhookSecret: acct.WebhookSecret,
		},
		EnqueuedAt: now.UTC(),
	}
}

// Decode parses and validates a job payload.
func Decode(raw []byte) (AutomationJob, error) {
	var job AutomationJob
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&job); err != nil {
		return AutomationJob{}, fmt.Errorf("decode automation job: %w", err)
	}
	if job.Version != JobVersion {
		return AutomationJob{}, fmt.Errorf("unsupported automation job version %d", job.Version)
	}
	if job.AccountID == "" {
		return AutomationJob{}, fmt.Errorf("automation job has no account id")
	}
	if job.Account.ID != "" && job.Account.ID != job.AccountID {
		return AutomationJob{}, fmt.Errorf("automation job account mismatch")
	}
	return job, nil
}

// Restore rebuilds the VerifiedWebhook carried by the job.
func (j AutomationJob) Restore() *webhook.VerifiedWebhook {
	return webhook.RestoreVerified(j.accountContext(), http.Header(j.Headers), j.RawBody, j.Signature, j.VerificationScheme)
}

// Revalidate re-resolves the account so the consumer works with current
// secrets and a tenant that still exists.
func (j AutomationJob) Revalidate(ctx context.Context, resolver webhook.Resolver) (*webhook.VerifiedWebhook, error) {
	acct, err := resolver.Resolve(ctx, j.AccountID)
	if err != nil {
		return nil, err
	}
	return webhook.RestoreVerified(acct, http.Header(j.Headers), j.RawBody, j.Signature, j.VerificationScheme), nil
}

func (j AutomationJob) accountContext() account.Context {
	metadata := j.Account.Metadata
	if metadata == nil {
		metadata = tenant.Document{}
	}
	return account.Context{
		AccountID:     j.AccountID,
		Metadata:      metadata,
		APISecret:     j.Account.APISecret,
		WebhookSecret: j.Account.WebhookSecret,
	}
}
