package queue

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
)

// Terminal reports whether no further attempts will run.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusDead
}

type Job struct {
	ID          string
	Kind        string
	AccountID   string
	Payload     json.RawMessage
	Status      Status
	Attempt     int
	MaxAttempts int
	SubmittedBy string
	DedupeKey   *string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	NextRetryAt *time.Time
	LastError   *string
	Result      json.RawMessage
}

type EnqueueRequest struct {
	Kind        string
	AccountID   string
	Payload     json.RawMessage
	MaxAttempts int
	SubmittedBy string
	// DedupeKey collapses duplicates while an earlier job with the same key
	// is still queued or running.
	DedupeKey *string
}

var ErrJobNotFound = errors.New("job not found")
