package tokenstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/felixgeelhaar/hangar/internal/errors"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS token_pair (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	access     TEXT NOT NULL DEFAULT '',
	refresh    TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
)`

// SQLite stores the pair in a single-row table. Both columns are written
// in one transaction.
type SQLite struct {
	db    *sql.DB
	attrs Attributes
}

// NewSQLite opens (creating if needed) a SQLite token database at path
func NewSQLite(path string, attrs Attributes) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.NewStoreWriteError("sqlite", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.NewStoreReadError("sqlite", fmt.Errorf("open sqlite: %w", err))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.NewStoreReadError("sqlite", fmt.Errorf("ping sqlite: %w", err))
	}

	// Single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.NewStoreWriteError("sqlite", fmt.Errorf("create token_pair: %w", err))
	}

	if err := os.Chmod(path, 0o600); err != nil {
		db.Close()
		return nil, errors.NewStoreWriteError("sqlite", err)
	}

	return &SQLite{db: db, attrs: attrs}, nil
}

// Get implements Store
func (s *SQLite) Get(ctx context.Context) (Pair, error) {
	var p Pair
	err := s.db.QueryRowContext(ctx, "SELECT access, refresh FROM token_pair WHERE id = 1").Scan(&p.Access, &p.Refresh)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Pair{}, nil
	}
	if err != nil {
		return Pair{}, errors.NewStoreReadError(s.Name(), err)
	}
	return p, nil
}

// Set implements Store
func (s *SQLite) Set(ctx context.Context, p Pair) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO token_pair (id, access, refresh, updated_at)
			VALUES (1, ?, ?, datetime('now'))
			ON CONFLICT(id) DO UPDATE SET
				access=excluded.access, refresh=excluded.refresh, updated_at=excluded.updated_at`,
			p.Access, p.Refresh)
		return err
	})
}

// SetAccess implements Store
func (s *SQLite) SetAccess(ctx context.Context, access string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO token_pair (id, access, updated_at)
			VALUES (1, ?, datetime('now'))
			ON CONFLICT(id) DO UPDATE SET
				access=excluded.access, updated_at=excluded.updated_at`,
			access)
		return err
	})
}

// Clear implements Store
func (s *SQLite) Clear(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM token_pair")
		return err
	})
}

// Attributes implements Store
func (s *SQLite) Attributes() Attributes { return s.attrs }

// Name implements Store
func (s *SQLite) Name() string { return "sqlite" }

// Close implements Store
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreWriteError(s.Name(), fmt.Errorf("begin tx: %w", err))
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return errors.NewStoreWriteError(s.Name(), err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStoreWriteError(s.Name(), fmt.Errorf("commit: %w", err))
	}
	return nil
}
