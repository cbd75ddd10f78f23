package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxDocumentBytes caps a stored document.
const DefaultMaxDocumentBytes = 1 << 20

var (
	ErrNotFound = errors.New("tenant not found")
	ErrTooLarge = errors.New("tenant document exceeds max size")
)

// Store reads and writes tenant documents. Implementations may block.
type Store interface {
	Get(ctx context.Context, accountID string) (Document, error)
	ShallowMerge(ctx context.Context, accountID string, updates map[string]any) (Document, error)
	SetPath(ctx context.Context, accountID, path string, value any) error
	List(ctx context.Context) ([]string, error)
}

// SQLiteStore keeps tenant documents in the tenant_documents table.
type SQLiteStore struct {
	db       *sql.DB
	maxBytes int
}

// NewSQLiteStore wraps db. maxBytes <= 0 means DefaultMaxDocumentBytes.
func NewSQLiteStore(db *sql.DB, maxBytes int) *SQLiteStore {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	return &SQLiteStore{db: db, maxBytes: maxBytes}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) read(ctx context.Context, q querier, accountID string) (Document, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id is empty")
	}
	var raw string
	err := q.QueryRowContext(ctx, "SELECT document FROM tenant_documents WHERE account_id = ?;", accountID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("read tenant document: %w", err)
	}
	return Decode([]byte(raw))
}

// Get returns the document for accountID or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, accountID string) (Document, error) {
	return s.read(ctx, s.db, accountID)
}

// Put creates or replaces a whole document.
func (s *SQLiteStore) Put(ctx context.Context, accountID string, doc Document) error {
	if accountID == "" {
		return fmt.Errorf("account id is empty")
	}
	if doc == nil {
		doc = Document{}
	}
	raw, err := s.encode(doc)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO tenant_documents(account_id, document, created_at, updated_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(account_id) DO UPDATE SET
  document = excluded.document,
  updated_at = excluded.updated_at;
`, accountID, raw, now, now)
	if err != nil {
		return fmt.Errorf("upsert tenant document: %w", err)
	}
	return nil
}

// ShallowMerge replaces top-level keys and returns the merged document.
func (s *SQLiteStore) ShallowMerge(ctx context.Context, accountID string, updates map[string]any) (Document, error) {
	return s.update(ctx, accountID, func(doc Document) { doc.Merge(updates) })
}

// SetPath assigns value at a dotted path.
func (s *SQLiteStore) SetPath(ctx context.Context, accountID, path string, value any) error {
	if path == "" {
		return fmt.Errorf("document path is empty")
	}
	_, err := s.update(ctx, accountID, func(doc Document) { doc.Set(path, value) })
	return err
}

func (s *SQLiteStore) update(ctx context.Context, accountID string, mutate func(Document)) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	doc, err := s.read(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	mutate(doc)

	raw, err := s.encode(doc)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
UPDATE tenant_documents SET document = ?, updated_at = ? WHERE account_id = ?;
`, raw, time.Now().UTC().Format(time.RFC3339Nano), accountID)
	if err != nil {
		return nil, fmt.Errorf("update tenant document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) encode(doc Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal tenant document: %w", err)
	}
	if len(raw) > s.maxBytes {
		return "", fmt.Errorf("%w (%d > %d bytes)", ErrTooLarge, len(raw), s.maxBytes)
	}
	return string(raw), nil
}

// List returns all account ids in lexical order.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT account_id FROM tenant_documents ORDER BY account_id;")
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
