// Package inspect renders a job's delivery history from the queue tables.
package inspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/leasehook/internal/queue"
)

// Report is the structured JSON representation of a job report.
type Report struct {
	JobID       string          `json:"job_id"`
	Kind        string          `json:"kind"`
	AccountID   string          `json:"account_id"`
	Status      string          `json:"status"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	SubmittedBy string          `json:"submitted_by"`
	CreatedAt   string          `json:"created_at"`
	NextRetryAt string          `json:"next_retry_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Attempts    []Attempt       `json:"attempts"`
}

// Attempt is one finished delivery attempt from job_log.
type Attempt struct {
	Attempt     int             `json:"attempt"`
	Status      string          `json:"status"`
	CompletedAt string          `json:"completed_at"`
	LastError   string          `json:"last_error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// BuildReport renders a terminal-friendly report for a job.
func BuildReport(ctx context.Context, db *sql.DB, jobID string) (string, error) {
	report, err := gatherReportData(ctx, db, jobID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Job Report\n")
	fmt.Fprintf(&out, "Job ID      : %s\n", report.JobID)
	fmt.Fprintf(&out, "Kind        : %s\n", report.Kind)
	fmt.Fprintf(&out, "Account     : %s\n", renderUnset(report.AccountID, "<none>"))
	fmt.Fprintf(&out, "Status      : %s\n", report.Status)
	fmt.Fprintf(&out, "Attempt     : %d of %d\n", report.Attempt, report.MaxAttempts)
	fmt.Fprintf(&out, "Submitted by: %s\n", report.SubmittedBy)
	fmt.Fprintf(&out, "Created     : %s\n", report.CreatedAt)
	if report.NextRetryAt != "" {
		fmt.Fprintf(&out, "Next retry  : %s\n", report.NextRetryAt)
	}
	if report.LastError != "" {
		fmt.Fprintf(&out, "Last error  : %s\n", report.LastError)
	}
	fmt.Fprintf(&out, "\n")

	if len(report.Attempts) == 0 {
		fmt.Fprintf(&out, "No finished attempts.\n")
	}
	for _, a := range report.Attempts {
		fmt.Fprintf(&out, "[%d] %s at %s\n", a.Attempt, a.Status, a.CompletedAt)
		if a.LastError != "" {
			fmt.Fprintf(&out, "    error  : %s\n", a.LastError)
		}
		if len(a.Result) > 0 {
			fmt.Fprintf(&out, "    result :\n")
			for _, line := range strings.Split(strings.TrimSpace(prettyJSON(a.Result)), "\n") {
				fmt.Fprintf(&out, "      %s\n", line)
			}
		}
		fmt.Fprintf(&out, "\n")
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable job report.
func BuildJSONReport(ctx context.Context, db *sql.DB, jobID string) (string, error) {
	report, err := gatherReportData(ctx, db, jobID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, db *sql.DB, jobID string) (*Report, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("job_id is required")
	}

	job, err := queue.New(db).GetJobByID(ctx, jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		return nil, fmt.Errorf("job %q not found", jobID)
	}
	if err != nil {
		return nil, err
	}

	report := &Report{
		JobID:       job.ID,
		Kind:        job.Kind,
		AccountID:   job.AccountID,
		Status:      string(job.Status),
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
		SubmittedBy: job.SubmittedBy,
		CreatedAt:   job.CreatedAt.UTC().Format(time.RFC3339),
		Result:      job.Result,
		Attempts:    make([]Attempt, 0),
	}
	if job.NextRetryAt != nil && job.Status == queue.StatusQueued {
		report.NextRetryAt = job.NextRetryAt.UTC().Format(time.RFC3339)
	}
	if job.LastError != nil {
		report.LastError = *job.LastError
	}

	attempts, err := lookupAttempts(ctx, db, jobID)
	if err != nil {
		return nil, err
	}
	report.Attempts = attempts
	return report, nil
}

func lookupAttempts(ctx context.Context, db *sql.DB, jobID string) ([]Attempt, error) {
	rows, err := db.QueryContext(ctx, `
SELECT attempt, status, completed_at, last_error, result
FROM job_log
WHERE job_id = ?
ORDER BY attempt ASC, completed_at ASC;
`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job log %q: %w", jobID, err)
	}
	defer rows.Close()

	attempts := make([]Attempt, 0)
	for rows.Next() {
		var (
			a         Attempt
			lastError sql.NullString
			result    sql.NullString
		)
		if err := rows.Scan(&a.Attempt, &a.Status, &a.CompletedAt, &lastError, &result); err != nil {
			return nil, fmt.Errorf("scan job log: %w", err)
		}
		a.LastError = lastError.String
		if result.Valid {
			a.Result = json.RawMessage(result.String)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
