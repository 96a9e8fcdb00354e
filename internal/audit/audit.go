// Package audit records which rebuild plans were already applied to a
// database, keyed by the plan's content hash, so re-running the engine
// never rebuilds a table twice for the same plan.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TableName is the persisted audit table.
const TableName = "MIGRATION_API_AUDIT"

const createTableSQL = `CREATE TABLE IF NOT EXISTS ` + TableName + ` (
  id integer primary key,
  hash varchar(128) not null unique,
  description text,
  applied_at text not null
)`

// Error wraps a failure to read or write the audit table.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("audit store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Store reads and writes the audit table on one database.
type Store struct {
	db *sql.DB
}

// NewStore returns a store over db. Call EnsureTable before first use.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureTable creates the audit table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return &Error{Op: "create table", Err: err}
	}
	return nil
}

// WasAlreadyApplied reports whether a plan with the given hash was recorded.
func (s *Store) WasAlreadyApplied(ctx context.Context, hash string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+TableName+" WHERE hash = ?", hash)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, &Error{Op: "lookup hash", Err: err}
	}
	return n > 0, nil
}

// RecordApplied inserts the hash with the current UTC timestamp. Recording
// an already-present hash is a no-op.
func (s *Store) RecordApplied(ctx context.Context, hash, description string) error {
	appliedAt := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+TableName+" (hash, description, applied_at) VALUES (?, ?, ?)",
		hash, description, appliedAt)
	if err != nil {
		return &Error{Op: "record hash", Err: err}
	}
	return nil
}
