// Package sqlite implements the repository interfaces on an embedded SQLite
// database using the pure Go modernc.org/sqlite driver (no CGo).
//
// It is the default store for development and the store every repository
// test runs against, using ":memory:" for a fresh database per test.
//
// DATABASE/SQL REFRESHER:
//   - sql.DB   is a connection pool, not a single connection
//   - QueryRowContext + Scan for zero or one row (sql.ErrNoRows when zero)
//   - QueryContext + rows.Next for many rows (always defer rows.Close)
//   - ExecContext + RowsAffected for writes that must report "nothing matched"
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/showdex/internal/apperror"
)

// DB owns the sql.DB connection pool. The two repositories are views over
// the same pool, obtained with Users and Shows.
type DB struct {
	conn *sql.DB
}

// UserDB implements repository.UserRepository.
type UserDB struct {
	conn *sql.DB
}

// ShowDB implements repository.ShowRepository.
type ShowDB struct {
	conn *sql.DB
}

// Users returns the user repository backed by this database.
func (db *DB) Users() *UserDB {
	return &UserDB{conn: db.conn}
}

// Shows returns the show repository backed by this database.
func (db *DB) Shows() *ShowDB {
	return &ShowDB{conn: db.conn}
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/showdex.db" → file-based database
//   - ":memory:"        → in-memory database, gone on Close
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (s *UserDB) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// migrate creates the schema. Statements are idempotent, so it runs on
// every start.
//
// Code expiries are stored as INTEGER unix nanoseconds so the "is there an
// active code" test can be done in SQL with a plain numeric comparison.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                      TEXT PRIMARY KEY,
			login                   TEXT NOT NULL UNIQUE,
			email                   TEXT NOT NULL UNIQUE,
			password_hash           TEXT NOT NULL,
			first_name              TEXT NOT NULL,
			last_name               TEXT NOT NULL,
			is_verified             INTEGER NOT NULL DEFAULT 0,
			verification_code       TEXT,
			verification_expires_at INTEGER,
			reset_token             TEXT,
			reset_expires_at        INTEGER,
			created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// rating_score is NULL for "Not Watched Yet".
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS shows (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			title        TEXT NOT NULL,
			genre        TEXT NOT NULL,
			rating_score REAL,
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, title)
		);
		CREATE INDEX IF NOT EXISTS idx_shows_user_genre ON shows(user_id, genre);
	`)
	if err != nil {
		return fmt.Errorf("creating shows table: %w", err)
	}

	return nil
}

// uniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint
// failure. The returned message names the columns involved, e.g.
// "UNIQUE constraint failed: users.email".
func uniqueViolation(err error) (string, bool) {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return "", false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return sqliteErr.Error(), true
	}
	return "", false
}

// violates reports whether a constraint message mentions column.
func violates(msg, column string) bool {
	return strings.Contains(msg, column)
}

// nanos converts a time to the INTEGER representation used for expiries.
func nanos(t time.Time) int64 {
	return t.UnixNano()
}

// fromNanos is the inverse of nanos. A NULL column yields the zero time.
func fromNanos(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(0, n.Int64).UTC()
}

// notFound keeps the repository's "no such row" errors uniform.
func notFound(resource, id string) error {
	return apperror.NotFound(resource, id)
}
