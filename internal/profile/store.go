// Package profile persists per-account key/value profile data backed by
// SQLite, used by the HTTP API's profile endpoints.
package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no value exists for the requested key.
var ErrNotFound = errors.New("profile key not found")

// Entry is one stored profile value.
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is a SQLite-backed key/value store scoped by account.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and ensures the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open profile database: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure profile schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		account_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (account_id, key)
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_account ON profiles(account_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored for (account, key), or ErrNotFound.
func (s *Store) Get(ctx context.Context, account, key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM profiles WHERE account_id = ? AND key = ?`,
		account, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(value), nil
}

// Set inserts or replaces the value for (account, key). The value must be
// valid JSON; callers pass through request bodies unparsed.
func (s *Store) Set(ctx context.Context, account, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return errors.New("profile value must be valid JSON")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (account_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(account_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		account, key, string(value), time.Now().Unix())
	return err
}

// Delete removes the value for (account, key). Deleting a missing key
// returns ErrNotFound so the API can answer 404.
func (s *Store) Delete(ctx context.Context, account, key string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM profiles WHERE account_id = ? AND key = ?`, account, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all entries for an account ordered by key.
func (s *Store) List(ctx context.Context, account string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM profiles WHERE account_id = ? ORDER BY key`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var value string
		var updated int64
		if err := rows.Scan(&e.Key, &value, &updated); err != nil {
			return nil, err
		}
		e.Value = json.RawMessage(value)
		e.UpdatedAt = time.Unix(updated, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
