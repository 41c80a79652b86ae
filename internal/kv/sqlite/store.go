// Package sqlite provides an on-device kv.Store backed by a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/bissquit/inspection-sync/internal/kv"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`

const upsert = `
INSERT INTO kv_entries (key, value) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value,
	updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`

// Store implements kv.Store on SQLite.
// A single connection is used so that writers never interleave.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Get retrieves the value for key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get entry: %w", err)
	}
	return value, true, nil
}

// Set inserts or replaces the value for key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, upsert, key, value); err != nil {
		return fmt.Errorf("set entry: %w", err)
	}
	return nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove entry: %w", err)
	}
	return nil
}

// RemoveMany deletes all keys inside one transaction.
func (s *Store) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, k); err != nil {
			return fmt.Errorf("remove entry %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListKeys returns all keys ordered by name.
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv_entries ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// Update runs fn inside an immediate transaction, which holds the
// database write lock from the first statement.
func (s *Store) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var current string
	found := true
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&current)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("get entry: %w", err)
		}
		found = false
	}

	next, write, err := fn(current, found)
	if err != nil {
		return err
	}
	if !write {
		return nil
	}

	if _, err := tx.ExecContext(ctx, upsert, key, next); err != nil {
		return fmt.Errorf("set entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
