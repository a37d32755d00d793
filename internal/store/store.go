// Package store is the single authoritative persistent database for every
// entity the gateway owns: providers, tool descriptors, the usage log, and
// the per-feature schema slices (memory, tasks, test runs, guides, agents,
// context snapshots, sessions).
//
// It follows the usual embedded sqlite backend shape: a pure-Go driver
// opened once, schema created with idempotent CREATE TABLE IF NOT EXISTS
// statements, and every write wrapped in an explicit transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is the gateway's persistent database handle.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and, if necessary, creates) the database at path and runs the
// schema migrations. path may be ":memory:" for tests.
//
// sqlite does not default foreign keys on, and the pragma is a per-connection
// setting: database/sql is free to open more than one connection against a
// file-backed DSN, and a bare `PRAGMA foreign_keys = ON` issued once through
// db.Exec only binds to whichever single connection happens to run it,
// leaving every other pooled connection's cascades and constraints
// unenforced. _pragma=foreign_keys(1) on the DSN makes modernc.org/sqlite
// apply it to every connection it opens, not just the first.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = ":memory:"
	}

	dsn := path
	if path != ":memory:" {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = path + sep + "_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single shared in-memory database needs exactly one connection, or
	// sqlite hands each caller a distinct empty database; the DSN pragma
	// above doesn't help here since every memory connection is independent,
	// so foreign keys are enabled directly on the sole connection instead.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, logger: logger.With("component", "store")}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle. It is the last resource
// closed during graceful shutdown.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error so that a constraint violation leaves persistent state
// unchanged.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// withReadTx runs fn inside a read-only transaction so long reads never
// block writers.
func (s *Store) withReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback()
	return fn(tx)
}
