package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteStore keeps records in the secrets table.
type SQLiteStore struct {
	db    *sql.DB
	owned bool
}

// NewSQLiteStore wraps db, which must already be migrated. When owned is set, Close closes db.
func NewSQLiteStore(db *sql.DB, owned bool) *SQLiteStore {
	return &SQLiteStore{db: db, owned: owned}
}

func (s *SQLiteStore) Get(ctx context.Context, name string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM secrets WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %q: %w", name, err)
	}
	return value, nil
}

func (s *SQLiteStore) Put(ctx context.Context, name string, value []byte) error {
	query := `
		INSERT INTO secrets (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, name, value); err != nil {
		return fmt.Errorf("failed to put secret %q: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
