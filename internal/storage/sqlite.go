// Package storage opens the local SQLite database that backs the job queue,
// tenant documents and secret versions.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Options tunes OpenSQLite.
type Options struct {
	// BusyTimeout is applied with PRAGMA busy_timeout. Zero means 5s.
	BusyTimeout time.Duration
	// AllowNetworkFS skips the local filesystem check.
	AllowNetworkFS bool
}

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if !opts.AllowNetworkFS {
		if err := checkLocalFilesystem(path, detectFilesystem); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busy.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(pctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates tables/indexes if missing.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS job_queue (
  id            TEXT PRIMARY KEY,
  kind          TEXT NOT NULL,
  account_id    TEXT NOT NULL DEFAULT '',
  payload       JSON,
  status        TEXT NOT NULL,
  attempt       INTEGER NOT NULL DEFAULT 1,
  max_attempts  INTEGER NOT NULL DEFAULT 4,
  submitted_by  TEXT NOT NULL,
  dedupe_key    TEXT,
  created_at    TEXT NOT NULL,
  started_at    TEXT,
  completed_at  TEXT,
  next_retry_at TEXT,
  last_error    TEXT,
  result        JSON
);`,
		`CREATE TABLE IF NOT EXISTS job_log (
  id           TEXT PRIMARY KEY,
  job_id       TEXT NOT NULL,
  kind         TEXT NOT NULL,
  account_id   TEXT NOT NULL DEFAULT '',
  status       TEXT NOT NULL,
  attempt      INTEGER NOT NULL,
  submitted_by TEXT NOT NULL,
  created_at   TEXT NOT NULL,
  completed_at TEXT NOT NULL,
  last_error   TEXT,
  result       JSON
);`,
		`CREATE TABLE IF NOT EXISTS tenant_documents (
  account_id TEXT PRIMARY KEY,
  document   JSON NOT NULL DEFAULT '{}',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS secret_versions (
  project    TEXT NOT NULL,
  secret_id  TEXT NOT NULL,
  version    INTEGER NOT NULL,
  payload    BLOB NOT NULL,
  created_at TEXT NOT NULL,
  PRIMARY KEY (project, secret_id, version)
);`,
		`CREATE INDEX IF NOT EXISTS job_queue_status_created_at_idx ON job_queue(status, created_at);`,
		`CREATE INDEX IF NOT EXISTS job_queue_dedupe_idx ON job_queue(dedupe_key, status);`,
		`CREATE INDEX IF NOT EXISTS job_log_completed_at_idx ON job_log(completed_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
