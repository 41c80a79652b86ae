// Package postgres provides a PostgreSQL implementation of kv.Store.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/bissquit/inspection-sync/internal/kv"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrations holds the schema for the kv_entries table.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the files.
const MigrationsDir = "migrations"

// Store implements kv.Store using PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a new PostgreSQL store.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Get retrieves the value for key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM kv_entries WHERE key = $1`

	var value string
	err := s.db.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get entry: %w", err)
	}
	return value, true, nil
}

// Set inserts or replaces the value for key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_entries (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set entry: %w", err)
	}
	return nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	query := `DELETE FROM kv_entries WHERE key = $1`
	if _, err := s.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("remove entry: %w", err)
	}
	return nil
}

// RemoveMany deletes all keys in a single statement.
func (s *Store) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	query := `DELETE FROM kv_entries WHERE key = ANY($1)`
	if _, err := s.db.Exec(ctx, query, keys); err != nil {
		return fmt.Errorf("remove entries: %w", err)
	}
	return nil
}

// ListKeys returns all keys ordered by name.
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	query := `SELECT key FROM kv_entries ORDER BY key`
	rows, err := s.db.Query(ctx, query)
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

// Update runs fn inside a transaction holding an advisory lock on key,
// so concurrent updaters across processes are serialized.
func (s *Store) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("lock key: %w", err)
	}

	var current string
	found := true
	err = tx.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&current)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
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

	upsert := `
		INSERT INTO kv_entries (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, upsert, key, next); err != nil {
		return fmt.Errorf("set entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
