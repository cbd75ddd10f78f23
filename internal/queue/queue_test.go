package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/leasehook/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "queue.db"), storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestQueueEnqueueDequeueFIFO(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := openTestQueue(t)

	id1, err := q.Enqueue(ctx, EnqueueRequest{Kind: "automation", AccountID: "a", SubmittedBy: "webhook:vendor"})
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, EnqueueRequest{Kind: "automation", AccountID: "b", SubmittedBy: "webhook:vendor"})
	require.NoError(t, err)

	j1, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, j1)
	assert.Equal(t, id1, j1.ID)
	assert.Equal(t, StatusRunning, j1.Status)
	assert.NotNil(t, j1.StartedAt)
	assert.Equal(t, DefaultMaxAttempts, j1.MaxAttempts)

	j2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, j2)
	assert.Equal(t, id2, j2.ID)

	j3, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, j3)
}

func TestQueueValidation(t *testing.T) {
	t.Parallel()
	q := openTestQueue(t)

	_, err := q.Enqueue(context.Background(), EnqueueRequest{SubmittedBy: "x"})
	assert.Error(t, err)
	_, err = q.Enqueue(context.Background(), EnqueueRequest{Kind: "automation"})
	assert.Error(t, err)
}

func TestQueueDedupeKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := openTestQueue(t)
	key := "acct-1:sig"

	id1, err := q.Enqueue(ctx, EnqueueRequest{Kind: "automation", SubmittedBy: "t", DedupeKey: &key})
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, EnqueueRequest{Kind: "automation", SubmittedBy: "t", DedupeKey: &key})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, j.ID, StatusSucceeded, nil, nil))

	id3, err := q.Enqueue(ctx, EnqueueRequest{Kind: "automation", SubmittedBy: "t", DedupeKey: &key})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestQueueCompleteStoresResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := openTestQueue(t)

	id, err := q.Enqueue(ctx, EnqueueRequest{Kind: "automation", SubmittedBy: "t", Payload: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, id, StatusSucceeded, nil, json.RawMessage(`{"status":"completed"}`)))

	j, err := q.GetJobByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, j.Status)
	assert.JSONEq(t, `{"status":"completed"}`, string(j.Result))
	assert.JSONEq(t, `{"a":1}`, string(j.Payload))
	assert.NotNil(t, j.CompletedAt)

	assert.Error(t, q.Complete(ctx, id, StatusRunning, nil, nil))
	assert.ErrorIs(t, q.Complete(ctx, "missing", StatusFailed, nil, nil), ErrJobNotFound)
}

func TestQueueRetryDelaysRedelivery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := openTestQueue(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	id, err := q.Enqueue(ctx, EnqueueRequest{Kind: "automation", SubmittedBy: "t"})
	require.NoError(t, err)
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Retry(ctx, id, "push target returned 502", time.Minute))

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, j, "job must not be due before its retry time")

	now = now.Add(61 * time.Second)
	j, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, 2, j.Attempt)
	require.NotNil(t, j.LastError)
	assert.Equal(t, "push target returned 502", *j.LastError)
}

func TestQueueRecoverRunning(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := openTestQueue(t)

	id, err := q.Enqueue(ctx, EnqueueRequest{Kind: "automation", SubmittedBy: "t"})
	require.NoError(t, err)
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)

	n, err := q.RecoverRunning(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, id, j.ID)
}

func TestQueuePruneJobLogs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := openTestQueue(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	id, err := q.Enqueue(ctx, EnqueueRequest{Kind: "automation", SubmittedBy: "t"})
	require.NoError(t, err)
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, id, StatusSucceeded, nil, nil))

	now = now.Add(48 * time.Hour)
	n, err := q.PruneJobLogs(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestGetJobByIDMissing(t *testing.T) {
	t.Parallel()
	_, err := openTestQueue(t).GetJobByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueueDepth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := openTestQueue(t)

	n, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = q.Enqueue(ctx, EnqueueRequest{Kind: "automation", AccountID: "a", SubmittedBy: "test"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, EnqueueRequest{Kind: "automation", AccountID: "b", SubmittedBy: "test"})
	require.NoError(t, err)
	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, j.ID, StatusSucceeded, nil, nil))

	n, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
