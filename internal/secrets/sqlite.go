package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// SQLiteStore keeps versioned secret payloads in the local database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db. Tables come from storage.Bootstrap.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Access returns the payload for a fully-qualified reference.
func (s *SQLiteStore) Access(ctx context.Context, ref string) ([]byte, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}

	var (
		row     *sql.Row
		payload []byte
	)
	if r.Version == LatestVersion {
		row = s.db.QueryRowContext(ctx, `
SELECT payload FROM secret_versions
WHERE project = ? AND secret_id = ?
ORDER BY version DESC LIMIT 1;
`, r.Project, r.SecretID)
	} else {
		version, err := strconv.Atoi(r.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: version %q", ErrInvalidRef, r.Version)
		}
		row = s.db.QueryRowContext(ctx, `
SELECT payload FROM secret_versions
WHERE project = ? AND secret_id = ? AND version = ?;
`, r.Project, r.SecretID, version)
	}

	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, r)
		}
		return nil, fmt.Errorf("access secret: %w", err)
	}
	return payload, nil
}

// Put stores payload as the next version of the secret and returns its reference.
func (s *SQLiteStore) Put(ctx context.Context, project, secretID string, payload []byte) (Ref, error) {
	if _, err := build(project, secretID, LatestVersion, project+"/"+secretID); err != nil {
		return Ref{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Ref{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(version), 0) FROM secret_versions WHERE project = ? AND secret_id = ?;
`, project, secretID).Scan(&current); err != nil {
		return Ref{}, fmt.Errorf("read secret version: %w", err)
	}

	next := current + 1
	if _, err := tx.ExecContext(ctx, `
INSERT INTO secret_versions(project, secret_id, version, payload, created_at)
VALUES(?, ?, ?, ?, ?);
`, project, secretID, next, payload, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return Ref{}, fmt.Errorf("insert secret version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Ref{}, fmt.Errorf("commit: %w", err)
	}
	return Ref{Project: project, SecretID: secretID, Version: strconv.Itoa(next)}, nil
}
