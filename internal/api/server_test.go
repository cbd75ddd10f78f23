package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/leasehook/internal/apperr"
	"github.com/mattjoyce/leasehook/internal/auth"
	"github.com/mattjoyce/leasehook/internal/automation"
	"github.com/mattjoyce/leasehook/internal/queue"
)

type fakeJobs struct {
	jobs  map[string]*queue.Job
	depth int
	err   error
}

func (f *fakeJobs) GetJobByID(_ context.Context, id string) (*queue.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	j, ok := f.jobs[id]
	if !ok {
		return nil, queue.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeJobs) Depth(context.Context) (int, error) { return f.depth, f.err }

type fakeProcessor struct {
	outcome automation.Outcome
	err     error
	got     []byte
}

func (f *fakeProcessor) ProcessRaw(_ context.Context, raw []byte) (automation.Outcome, error) {
	f.got = raw
	return f.outcome, f.err
}

func newTestServer(jobs *fakeJobs, proc *fakeProcessor) http.Handler {
	keys, err := auth.NewKeyring("admin", []auth.TokenConfig{
		{Token: "pusher", Scopes: []string{auth.ScopeTasksPush}},
		{Token: "reader", Scopes: []string{auth.ScopeJobsRead}},
	})
	if err != nil {
		panic(err)
	}
	return New(Config{Keys: keys, MaxBodyBytes: 64}, jobs, proc, nil).Handler()
}

func do(h http.Handler, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsPublic(t *testing.T) {
	rec := do(newTestServer(&fakeJobs{depth: 3}, &fakeProcessor{}), http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.QueueDepth)
}

func TestAutomationTaskAuth(t *testing.T) {
	h := newTestServer(&fakeJobs{}, &fakeProcessor{outcome: automation.Outcome{Status: automation.StatusIgnored}})

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/tasks/automation", "", []byte(`{}`)).Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/tasks/automation", "wrong", []byte(`{}`)).Code)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodPost, "/tasks/automation", "reader", []byte(`{}`)).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/tasks/automation", "pusher", []byte(`{}`)).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/tasks/automation", "admin", []byte(`{}`)).Code)
}

func TestAutomationTaskReturnsOutcome(t *testing.T) {
	proc := &fakeProcessor{outcome: automation.Outcome{AccountID: "acct-1", Status: automation.StatusFailed, Reason: "vendor down"}}
	rec := do(newTestServer(&fakeJobs{}, proc), http.MethodPost, "/tasks/automation", "pusher", []byte(`{"version":1}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"version":1}`, string(proc.got))
	var out automation.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, automation.StatusFailed, out.Status)
	assert.Equal(t, "vendor down", out.Reason)
}

func TestAutomationTaskErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		retryAfter bool
	}{
		{"bad job", apperr.BadRequest("invalid automation job", errors.New("eof")), http.StatusBadRequest, apperr.TextBadRequest, false},
		{"gone tenant", apperr.NotFound("tenant not found", nil), http.StatusNotFound, apperr.TextNotFound, false},
		{"store down", apperr.Unavailable("tenant store unavailable", nil), http.StatusServiceUnavailable, apperr.TextUnavailable, true},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, apperr.TextInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestServer(&fakeJobs{}, &fakeProcessor{err: tt.err}), http.MethodPost, "/tasks/automation", "pusher", []byte(`{}`))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotContains(t, resp.Error, "eof")
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After") != "")
		})
	}
}

func TestAutomationTaskBodyLimit(t *testing.T) {
	rec := do(newTestServer(&fakeJobs{}, &fakeProcessor{}), http.MethodPost, "/tasks/automation", "pusher", []byte(strings.Repeat("x", 65)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGetJob(t *testing.T) {
	errMsg := "retry me"
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jobs := &fakeJobs{jobs: map[string]*queue.Job{
		"j1": {
			ID: "j1", Kind: "automation", AccountID: "acct-1", Status: queue.StatusQueued,
			Attempt: 2, MaxAttempts: 4, LastError: &errMsg, StartedAt: &started,
			Result: json.RawMessage(`{"status":"completed"}`),
		},
	}}
	h := newTestServer(jobs, &fakeProcessor{})

	rec := do(h, http.MethodGet, "/jobs/j1", "reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp JobStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, 2, resp.Attempt)
	require.NotNil(t, resp.LastError)
	assert.Equal(t, "retry me", *resp.LastError)
	assert.JSONEq(t, `{"status":"completed"}`, string(resp.Result))

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/jobs/missing", "reader", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/jobs/j1", "pusher", nil).Code)
}

func TestGetJobStoreError(t *testing.T) {
	h := newTestServer(&fakeJobs{err: errors.New("disk")}, &fakeProcessor{})
	assert.Equal(t, http.StatusInternalServerError, do(h, http.MethodGet, "/jobs/j1", "admin", nil).Code)
}
