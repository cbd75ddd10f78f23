// Package upstream is a narrow REST binding to the property-management
// vendor. Automation handlers depend on the Client interface only.
package upstream

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/mattjoyce/leasehook/internal/upstream Client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// TaskCategory is a vendor task category.
type TaskCategory struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// TaskUpdate patches a task. Empty fields are left untouched.
type TaskUpdate struct {
	Status string `json:"Status,omitempty"`
	Note   string `json:"Note,omitempty"`
}

// GLAccount is a general-ledger account.
type GLAccount struct {
	ID     string `json:"Id"`
	Number string `json:"AccountNumber"`
	Name   string `json:"Name"`
}

// Lease is the subset of lease fields the automations read.
type Lease struct {
	ID         string  `json:"Id"`
	PropertyID string  `json:"PropertyId"`
	UnitID     string  `json:"UnitId"`
	TenantName string  `json:"TenantName"`
	Rent       float64 `json:"Rent"`
	StartDate  string  `json:"StartDate"`
	EndDate    string  `json:"EndDate"`
	Status     string  `json:"LeaseStatus"`
}

// Document is a file attached to a lease.
type Document struct {
	Title       string `json:"Title"`
	FileName    string `json:"FileName"`
	ContentType string `json:"ContentType"`
	Content     []byte `json:"Content"`
}

// Client is every vendor operation the automations use. headers carries
// the tenant's outbound credentials.
type Client interface {
	ListTaskCategories(ctx context.Context, headers http.Header) ([]TaskCategory, error)
	CreateTaskCategory(ctx context.Context, headers http.Header, name string) (TaskCategory, error)
	UpdateTask(ctx context.Context, headers http.Header, taskID string, update TaskUpdate) error
	ListGLAccounts(ctx context.Context, headers http.Header) ([]GLAccount, error)
	ListLeases(ctx context.Context, headers http.Header, status string) ([]Lease, error)
	UploadLeaseDocument(ctx context.Context, headers http.Header, leaseID string, doc Document) error
}

// StatusError is returned for non-2xx vendor responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vendor %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Retryable reports whether the vendor asked us to come back later.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPClient implements Client over the vendor REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient creates a client. ratePerSecond <= 0 disables rate limiting.
func NewHTTPClient(baseURL string, ratePerSecond float64, burst int, timeout time.Duration) *HTTPClient {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

func (c *HTTPClient) ListTaskCategories(ctx context.Context, headers http.Header) ([]TaskCategory, error) {
	var out []TaskCategory
	if err := c.do(ctx, http.MethodGet, "/v1/tasks/categories", headers, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) CreateTaskCategory(ctx context.Context, headers http.Header, name string) (TaskCategory, error) {
	var out TaskCategory
	body := map[string]string{"Name": name}
	if err := c.do(ctx, http.MethodPost, "/v1/tasks/categories", headers, body, &out); err != nil {
		return TaskCategory{}, err
	}
	return out, nil
}

func (c *HTTPClient) UpdateTask(ctx context.Context, headers http.Header, taskID string, update TaskUpdate) error {
	return c.do(ctx, http.MethodPatch, "/v1/tasks/"+url.PathEscape(taskID), headers, update, nil)
}

func (c *HTTPClient) ListGLAccounts(ctx context.Context, headers http.Header) ([]GLAccount, error) {
	var out []GLAccount
	if err := c.do(ctx, http.MethodGet, "/v1/glaccounts", headers, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) ListLeases(ctx context.Context, headers http.Header, status string) ([]Lease, error) {
	path := "/v1/leases"
	if status != "" {
		path += "?leasestatuses=" + url.QueryEscape(status)
	}
	var out []Lease
	if err := c.do(ctx, http.MethodGet, path, headers, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) UploadLeaseDocument(ctx context.Context, headers http.Header, leaseID string, doc Document) error {
	return c.do(ctx, http.MethodPost, "/v1/leases/"+url.PathEscape(leaseID)+"/documents", headers, doc, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, headers http.Header, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
