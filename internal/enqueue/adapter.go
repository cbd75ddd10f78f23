package enqueue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/mattjoyce/leasehook/internal/apperr"
	"github.com/mattjoyce/leasehook/internal/queue"
	"github.com/mattjoyce/leasehook/internal/webhook"
)

//go:generate mockgen -destination=mocks/mock_queuer.go -package=mocks github.com/mattjoyce/leasehook/internal/enqueue Queuer

// Queuer is the durable queue's enqueue side.
type Queuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error)
}

// Adapter turns verified webhooks into queue jobs.
type Adapter struct {
	queue       Queuer
	maxAttempts int
	submittedBy string
	now         func() time.Time
}

// NewAdapter returns an adapter; maxAttempts <= 0 uses the queue default.
func NewAdapter(q Queuer, maxAttempts int, submittedBy string) *Adapter {
	if submittedBy == "" {
		submittedBy = "webhook"
	}
	return &Adapter{queue: q, maxAttempts: maxAttempts, submittedBy: submittedBy, now: time.Now}
}

// Enqueue persists v. Identical redeliveries collapse while the first job
// is still pending. Queue failures are Unavailable (503).
func (a *Adapter) Enqueue(ctx context.Context, v *webhook.VerifiedWebhook) (string, error) {
	job := FromVerified(v, a.now())
	payload, err := json.Marshal(job)
	if err != nil {
		return "", apperr.Processor("failed to serialise job", err)
	}

	key := DedupeKey(v.AccountID(), job.RawBody)
	id, err := a.queue.Enqueue(ctx, queue.EnqueueRequest{
		Kind:        JobKind,
		AccountID:   v.AccountID(),
		Payload:     payload,
		MaxAttempts: a.maxAttempts,
		SubmittedBy: a.submittedBy,
		DedupeKey:   &key,
	})
	if err != nil {
		return "", apperr.Unavailable("queue unavailable", err)
	}
	return id, nil
}

// DedupeKey identifies a delivery by account and body digest.
func DedupeKey(accountID string, body []byte) string {
	sum := sha256.Sum256(body)
	return accountID + ":" + hex.EncodeToString(sum[:])
}
