package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	catalogout "recvault/internal/modules/catalog/port/out"
	apperrors "recvault/internal/platform/errors"

	_ "modernc.org/sqlite"
)

type SQLiteBackend struct {
	db    *sql.DB
	quota int
}

// NewSQLiteBackend opens (or creates) the catalog database. quota caps the
// total stored value bytes; zero means unlimited.
func NewSQLiteBackend(dbPath string, quota int) (catalogout.Backend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	backend := &SQLiteBackend{db: db, quota: quota}
	if err := backend.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return backend, nil
}

func (s *SQLiteBackend) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS kv (
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL,
  updated_at TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set %s: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.quota > 0 {
		var others int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(length(value)), 0) FROM kv WHERE key != ?`, key).Scan(&others); err != nil {
			return fmt.Errorf("measure usage: %w", err)
		}
		if others+int64(len(value)) > int64(s.quota) {
			return fmt.Errorf("set %s (%d bytes, %d in use of %d): %w", key, len(value), others, s.quota, apperrors.ErrQuotaExceeded)
		}
	}

	const stmt = `
INSERT INTO kv (key, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value=excluded.value,
  updated_at=excluded.updated_at;
`
	if _, err := tx.ExecContext(ctx, stmt, key, value, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
