// Package queue is a durable SQLite job queue with at-least-once delivery.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxAttempts = 4

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const jobColumns = `
  id, kind, account_id, payload, status, attempt, max_attempts, submitted_by, dedupe_key,
  created_at, started_at, completed_at, next_retry_at, last_error, result`

type Queue struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

func (q *Queue) timestamp() string {
	return q.now().UTC().Format(timeLayout)
}

// Enqueue inserts a queued job and returns its id. With a DedupeKey, an
// existing queued or running job with the same key is returned instead.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if req.Kind == "" {
		return "", fmt.Errorf("kind is empty")
	}
	if req.SubmittedBy == "" {
		return "", fmt.Errorf("submitted_by is empty")
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = string(req.Payload)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if req.DedupeKey != nil {
		var existing string
		err := tx.QueryRowContext(ctx, `
SELECT id FROM job_queue
WHERE dedupe_key = ? AND status IN (?, ?)
ORDER BY created_at ASC LIMIT 1;
`, *req.DedupeKey, StatusQueued, StatusRunning).Scan(&existing)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("check dedupe key: %w", err)
		}
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
INSERT INTO job_queue(
  id, kind, account_id, payload, status, attempt, max_attempts, submitted_by, dedupe_key, created_at
)
VALUES(?, ?, ?, ?, ?, 1, ?, ?, ?, ?);
`, id, req.Kind, req.AccountID, payload, StatusQueued, maxAttempts, req.SubmittedBy, req.DedupeKey, q.timestamp())
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// Dequeue claims the oldest due job and marks it running. Returns (nil, nil)
// if nothing is due.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	now := q.timestamp()
	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM job_queue
  WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
  ORDER BY created_at ASC, rowid ASC
  LIMIT 1
)
UPDATE job_queue
SET status = ?, started_at = ?
WHERE id IN (SELECT id FROM next)
RETURNING`+jobColumns+`;
`, StatusQueued, now, StatusRunning, now)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return j, nil
}

// GetJobByID returns a job or ErrJobNotFound.
func (q *Queue) GetJobByID(ctx context.Context, jobID string) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `SELECT`+jobColumns+` FROM job_queue WHERE id = ?;`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// Complete marks a job terminal and appends a row to job_log.
func (q *Queue) Complete(ctx context.Context, jobID string, status Status, lastError *string, result json.RawMessage) error {
	if jobID == "" {
		return fmt.Errorf("jobID is empty")
	}
	if !status.Terminal() {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	completedAt := q.timestamp()
	res, err := tx.ExecContext(ctx, `
UPDATE job_queue
SET status = ?, completed_at = ?, last_error = ?, result = ?, next_retry_at = NULL
WHERE id = ?;
`, status, completedAt, lastError, nullableJSON(result), jobID)
	if err != nil {
		return fmt.Errorf("update job completion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	if err := appendLog(ctx, tx, jobID, status, completedAt, lastError, result); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Retry records a failed attempt and requeues the job after delay.
func (q *Queue) Retry(ctx context.Context, jobID string, lastError string, delay time.Duration) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := q.now().UTC()
	if err := appendLog(ctx, tx, jobID, StatusFailed, now.Format(timeLayout), &lastError, nil); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
UPDATE job_queue
SET status = ?, attempt = attempt + 1, next_retry_at = ?, last_error = ?, started_at = NULL
WHERE id = ?;
`, StatusQueued, now.Add(delay).Format(timeLayout), lastError, jobID)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Depth counts jobs that are queued or running.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_queue WHERE status IN (?, ?);`, StatusQueued, StatusRunning).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// RecoverRunning requeues jobs left running by a previous process.
func (q *Queue) RecoverRunning(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE job_queue SET status = ?, started_at = NULL WHERE status = ?;
`, StatusQueued, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("recover running jobs: %w", err)
	}
	return res.RowsAffected()
}

// PruneJobLogs deletes job_log rows completed before now-olderThan.
func (q *Queue) PruneJobLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := q.now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := q.db.ExecContext(ctx, `DELETE FROM job_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune job_log: %w", err)
	}
	return res.RowsAffected()
}

func appendLog(ctx context.Context, tx *sql.Tx, jobID string, status Status, completedAt string, lastError *string, result json.RawMessage) error {
	var (
		kind, accountID, submittedBy, createdAt string
		attempt                                 int
	)
	err := tx.QueryRowContext(ctx, `
SELECT kind, account_id, attempt, submitted_by, created_at FROM job_queue WHERE id = ?;
`, jobID).Scan(&kind, &accountID, &attempt, &submittedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("load job for log: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO job_log(
  id, job_id, kind, account_id, status, attempt, submitted_by, created_at, completed_at, last_error, result
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;
`, fmt.Sprintf("%s-%d", jobID, attempt), jobID, kind, accountID, status, attempt, submittedBy, createdAt, completedAt, lastError, nullableJSON(result))
	if err != nil {
		return fmt.Errorf("insert job_log: %w", err)
	}
	return nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func scanJob(row *sql.Row) (*Job, error) {
	var (
		j            Job
		payload      sql.NullString
		dedupeKey    sql.NullString
		createdAtS   string
		startedAtS   sql.NullString
		completedAtS sql.NullString
		nextRetryAtS sql.NullString
		lastError    sql.NullString
		result       sql.NullString
		statusS      string
	)
	err := row.Scan(
		&j.ID, &j.Kind, &j.AccountID, &payload, &statusS, &j.Attempt, &j.MaxAttempts, &j.SubmittedBy, &dedupeKey,
		&createdAtS, &startedAtS, &completedAtS, &nextRetryAtS, &lastError, &result,
	)
	if err != nil {
		return nil, err
	}

	j.Status = Status(statusS)
	if payload.Valid {
		j.Payload = []byte(payload.String)
	}
	if result.Valid {
		j.Result = []byte(result.String)
	}
	if dedupeKey.Valid {
		j.DedupeKey = &dedupeKey.String
	}
	if lastError.Valid {
		j.LastError = &lastError.String
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		j.CreatedAt = t
	}
	j.StartedAt = parseNullTime(startedAtS)
	j.CompletedAt = parseNullTime(completedAtS)
	j.NextRetryAt = parseNullTime(nextRetryAtS)
	return &j, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
