package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/leasehook/internal/apperr"
	"github.com/mattjoyce/leasehook/internal/automation"
	"github.com/mattjoyce/leasehook/internal/queue"
)

// Deliverer runs one claimed job and reports the automation outcome.
type Deliverer interface {
	Deliver(ctx context.Context, job *queue.Job) (automation.Outcome, error)
}

// Processor is the in-process consumer. *automation.Processor implements it.
type Processor interface {
	ProcessRaw(ctx context.Context, raw []byte) (automation.Outcome, error)
}

// InProcessDeliverer hands the job payload straight to a Processor.
type InProcessDeliverer struct {
	Processor Processor
}

func (d InProcessDeliverer) Deliver(ctx context.Context, job *queue.Job) (automation.Outcome, error) {
	return d.Processor.ProcessRaw(ctx, job.Payload)
}

// HTTPDeliverer pushes the job payload to the internal task endpoint, the
// way a hosted task queue would.
type HTTPDeliverer struct {
	URL    string
	Token  string
	Client *http.Client
}

// NewHTTPDeliverer builds a deliverer with its own client timeout.
func NewHTTPDeliverer(url, token string, timeout time.Duration) *HTTPDeliverer {
	return &HTTPDeliverer{URL: url, Token: token, Client: &http.Client{Timeout: timeout}}
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, job *queue.Job) (automation.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(job.Payload))
	if err != nil {
		return automation.Outcome{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Job-Id", job.ID)
	req.Header.Set("X-Job-Attempt", strconv.Itoa(job.Attempt))
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return automation.Outcome{}, apperr.Unavailable("task endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		cause := fmt.Errorf("task endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		switch {
		case resp.StatusCode == http.StatusBadRequest:
			return automation.Outcome{}, apperr.BadRequest("task rejected", cause)
		case resp.StatusCode == http.StatusNotFound:
			return automation.Outcome{}, apperr.NotFound("task tenant not found", cause)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return automation.Outcome{}, apperr.Misconfigured("task endpoint refused credentials", cause)
		case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests:
			return automation.Outcome{}, apperr.Unavailable("task endpoint unavailable", cause)
		default:
			return automation.Outcome{}, apperr.Processor("task delivery failed", cause)
		}
	}

	var outcome automation.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return automation.Outcome{}, apperr.Processor("decode task outcome", err)
	}
	return outcome, nil
}
