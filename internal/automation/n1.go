package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/leasehook/internal/n1"
	"github.com/mattjoyce/leasehook/internal/payload"
	"github.com/mattjoyce/leasehook/internal/tenant"
	"github.com/mattjoyce/leasehook/internal/upstream"
)

// Keys inside the tenant's n1 block.
const (
	n1TaskID        = "task_id"
	n1Schedules     = "schedules"
	n1PayloadChunks = "payload_chunks"
	n1SummaryFiles  = "summary_files"
	n1PreparedAt    = "prepared_at"
	n1CompletedAt   = "completed_at"
)

// RentGLPurpose is the GL mapping entry used for rent increases.
const RentGLPurpose = "rent"

// ScheduleBuilder plans rent increases. n1.FlatIncrease implements it.
type ScheduleBuilder interface {
	Build(leases []upstream.Lease, glAccountID string, now time.Time) ([]n1.Schedule, error)
}

// N1State is the persisted n1 block.
type N1State struct {
	TaskID      string
	Schedules   int
	Chunks      []payload.Chunk
	PreparedAt  string
	CompletedAt string
}

// ReadN1State decodes the n1 block of doc. A missing block is the zero state.
func ReadN1State(doc tenant.Document) (N1State, error) {
	var st N1State
	raw, ok := doc.Lookup(tenant.KeyN1)
	if !ok {
		return st, nil
	}
	block, ok := raw.(map[string]any)
	if !ok {
		return st, fmt.Errorf("n1 block is not an object")
	}
	b := tenant.Document(block)
	st.TaskID, _, _ = b.String(n1TaskID)
	st.PreparedAt, _, _ = b.String(n1PreparedAt)
	st.CompletedAt, _, _ = b.String(n1CompletedAt)
	if n, _, ok := b.String(n1Schedules); ok {
		st.Schedules, _ = strconv.Atoi(n)
	}
	if chunks, ok := b[n1PayloadChunks]; ok && chunks != nil {
		encoded, err := json.Marshal(chunks)
		if err != nil {
			return st, fmt.Errorf("n1 payload chunks: %w", err)
		}
		if err := json.Unmarshal(encoded, &st.Chunks); err != nil {
			return st, fmt.Errorf("n1 payload chunks: %w", err)
		}
	}
	return st, nil
}

// N1PrepareHandler builds rent-increase schedules for active leases and
// stores them as encoded chunks in the tenant's n1 block.
type N1PrepareHandler struct {
	Vendor        upstream.Client
	Tenants       TenantStore
	Builder       ScheduleBuilder
	Keys          CodecSource
	MaxChunkBytes int
	LeaseStatus   string
	Now           func() time.Time
}

func (h *N1PrepareHandler) Handle(ctx context.Context, tenantID string, headers http.Header, gl GLMapping, event Event) (Result, error) {
	doc, err := h.Tenants.Get(ctx, tenantID)
	if err != nil {
		return Result{}, fmt.Errorf("read tenant: %w", err)
	}
	state, err := ReadN1State(doc)
	if err != nil {
		return Result{}, err
	}
	if event.TaskID != "" && state.TaskID == event.TaskID && state.PreparedAt != "" {
		return Result{Summary: "n1 schedules already prepared for task " + event.TaskID}, nil
	}

	glAccountID, err := h.rentAccount(ctx, headers, gl)
	if err != nil {
		return Result{}, err
	}

	status := h.LeaseStatus
	if status == "" {
		status = "Active"
	}
	leases, err := h.Vendor.ListLeases(ctx, headers, status)
	if err != nil {
		return Result{}, fmt.Errorf("list leases: %w", err)
	}

	ts := now(h.Now)
	schedules, err := h.Builder.Build(leases, glAccountID, ts)
	if err != nil {
		return Result{}, fmt.Errorf("build schedules: %w", err)
	}
	records, err := payload.Records(schedules)
	if err != nil {
		return Result{}, err
	}
	codec, err := h.Keys.Codec(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}
	chunks, err := codec.Encode(records, h.MaxChunkBytes)
	if err != nil {
		return Result{}, fmt.Errorf("encode schedules: %w", err)
	}

	var total float64
	for _, s := range schedules {
		total += s.Increase()
	}
	date := ts.Format("2006-01-02")
	block := map[string]any{
		n1TaskID:        event.TaskID,
		n1Schedules:     len(schedules),
		n1PayloadChunks: chunks,
		n1SummaryFiles: []map[string]any{{
			"file_name":      n1.SummaryFileName(date),
			"schedules":      len(schedules),
			"total_increase": total,
		}},
		n1PreparedAt: ts.Format(time.RFC3339),
	}
	if err := h.Tenants.SetPath(ctx, tenantID, tenant.KeyN1, block); err != nil {
		return Result{}, fmt.Errorf("persist n1 block: %w", err)
	}

	summary := fmt.Sprintf("prepared %d n1 schedules in %d chunks", len(schedules), len(chunks))
	if event.TaskID != "" {
		if err := h.Vendor.UpdateTask(ctx, headers, event.TaskID, upstream.TaskUpdate{Note: summary}); err != nil {
			return Result{}, fmt.Errorf("annotate n1 task: %w", err)
		}
	}
	return Result{
		Summary: summary,
		Details: map[string]any{"schedules": len(schedules), "chunks": len(chunks), "gl_account_id": glAccountID},
	}, nil
}

func (h *N1PrepareHandler) rentAccount(ctx context.Context, headers http.Header, gl GLMapping) (string, error) {
	if id, ok := gl.Account(RentGLPurpose); ok {
		return id, nil
	}
	accounts, err := h.Vendor.ListGLAccounts(ctx, headers)
	if err != nil {
		return "", fmt.Errorf("list gl accounts: %w", err)
	}
	for _, a := range accounts {
		if strings.Contains(Normalize(a.Name), RentGLPurpose) {
			return a.ID, nil
		}
	}
	return "", nil
}

// N1DeliverHandler renders a notice per prepared schedule and uploads it
// to the lease. Uploads run concurrently up to Concurrency.
type N1DeliverHandler struct {
	Vendor      upstream.Client
	Tenants     TenantStore
	Keys        CodecSource
	Concurrency int
	Now         func() time.Time
}

func (h *N1DeliverHandler) Handle(ctx context.Context, tenantID string, headers http.Header, _ GLMapping, event Event) (Result, error) {
	doc, err := h.Tenants.Get(ctx, tenantID)
	if err != nil {
		return Result{}, fmt.Errorf("read tenant: %w", err)
	}
	state, err := ReadN1State(doc)
	if err != nil {
		return Result{}, err
	}
	if state.CompletedAt != "" {
		return Result{Summary: "n1 notices already delivered at " + state.CompletedAt}, nil
	}
	if state.PreparedAt == "" {
		return Result{}, fmt.Errorf("n1 schedules have not been prepared")
	}

	codec, err := h.Keys.Codec(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}
	records, err := codec.DecodeAll(state.Chunks)
	if err != nil {
		return Result{}, fmt.Errorf("decode schedules: %w", err)
	}
	schedules := make([]n1.Schedule, 0, len(records))
	for i, rec := range records {
		var s n1.Schedule
		if err := json.Unmarshal(rec, &s); err != nil {
			return Result{}, fmt.Errorf("schedule %d: %w", i, err)
		}
		schedules = append(schedules, s)
	}

	limit := h.Concurrency
	if limit < 1 {
		limit = 1
	}
	var uploaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, s := range schedules {
		g.Go(func() error {
			notice, err := n1.RenderNotice(s)
			if err != nil {
				return err
			}
			if err := h.Vendor.UploadLeaseDocument(gctx, headers, s.LeaseID, notice); err != nil {
				return fmt.Errorf("upload notice for lease %s: %w", s.LeaseID, err)
			}
			uploaded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("deliver n1 notices (%d uploaded): %w", uploaded.Load(), err)
	}

	completedAt := now(h.Now).Format(time.RFC3339)
	if err := h.Tenants.SetPath(ctx, tenantID, tenant.KeyN1+"."+n1CompletedAt, completedAt); err != nil {
		return Result{}, fmt.Errorf("persist n1 completion: %w", err)
	}

	summary := fmt.Sprintf("delivered %d n1 notices", len(schedules))
	if event.TaskID != "" {
		if err := h.Vendor.UpdateTask(ctx, headers, event.TaskID, upstream.TaskUpdate{Status: "Completed", Note: summary}); err != nil {
			return Result{}, fmt.Errorf("complete n1 task: %w", err)
		}
	}
	return Result{Summary: summary, Details: map[string]any{"notices": len(schedules)}}, nil
}
