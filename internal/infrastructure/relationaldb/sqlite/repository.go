// Package sqlite provides a SQLite implementation of the RelationalDB interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/libris/internal/domain/ports"
	"github.com/ersonp/libris/internal/infrastructure/config"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Repository implements ports.RelationalDB using SQLite.
type Repository struct {
	db   *sql.DB
	path string
}

// NewRepository creates a new SQLite repository.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Pragmas and :memory: databases are per connection, so keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys for referential integrity
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Repository{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		isbn INTEGER,
		name TEXT NOT NULL DEFAULT '',
		authors TEXT NOT NULL DEFAULT '',
		year INTEGER,
		publisher TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		grade TEXT NOT NULL DEFAULT '',
		subject_id TEXT REFERENCES subjects(id) ON DELETE RESTRICT
	);
	CREATE INDEX IF NOT EXISTS idx_books_subject ON books(subject_id);

	-- Physical copies, identified by barcode
	CREATE TABLE IF NOT EXISTS book_instances (
		barcode TEXT PRIMARY KEY,
		status INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		book_id TEXT REFERENCES books(id) ON DELETE CASCADE,
		represents_multiple INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_book_instances_book ON book_instances(book_id);

	CREATE TABLE IF NOT EXISTS readers (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL DEFAULT 'ST',
		name TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		group_num INTEGER,
		group_letter TEXT NOT NULL DEFAULT ''
	);

	-- Copies currently held by each reader
	CREATE TABLE IF NOT EXISTS reader_books (
		reader_id TEXT NOT NULL REFERENCES readers(id) ON DELETE CASCADE,
		instance_id TEXT NOT NULL REFERENCES book_instances(barcode) ON DELETE CASCADE,
		PRIMARY KEY (reader_id, instance_id)
	);
	CREATE INDEX IF NOT EXISTS idx_reader_books_instance ON reader_books(instance_id);

	-- Operations log
	CREATE TABLE IF NOT EXISTS log_records (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		operation TEXT NOT NULL,
		actor_id TEXT,
		entity_kind TEXT,
		affected_ids TEXT NOT NULL,
		details TEXT NOT NULL,
		snapshot_ref TEXT,
		reverted_by TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_log_records_created ON log_records(created_at);
	CREATE INDEX IF NOT EXISTS idx_log_records_operation ON log_records(operation);
	CREATE INDEX IF NOT EXISTS idx_log_records_kind ON log_records(entity_kind);
	`

	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// querier is the subset of *sql.DB and *sql.Tx the repository uses.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// conn returns the transaction carried by ctx, or the database.
func (r *Repository) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return r.db
}

// RunInTx runs fn in a transaction. Repository calls made with the context
// passed to fn run on that transaction. A nested call joins the outer one.
func (r *Repository) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// mapError turns driver constraint errors into port errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return fmt.Errorf("%w: %v", ports.ErrForeignKey, err)
	}
	return err
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// normalizeScan converts driver values into the types entities accept.
func normalizeScan(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
