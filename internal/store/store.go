// Package store owns all SQL against the license database file.
//
// The store is a single SQLite file with one table per ULS record type plus
// their secondary indexes. The design assumes a single writer process; the
// load path takes an exclusive-lock connection for the duration of a table's
// load, and readers are expected to run only when no load is in progress.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"ulsdb/internal/schema"
)

// deleteChunkSize caps the number of bound parameters per DELETE ... IN (...)
// statement, well under SQLite's default 999-variable limit.
const deleteChunkSize = 500

// Store wraps the SQLite database file.
type Store struct {
	path string
	db   *sql.DB
}

// Exists reports whether a database file is already present at path. Callers
// decide between initial-load and full-refresh semantics based on this before
// opening (opening creates the file).
func Exists(path string) bool {
	if path == ":memory:" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Open opens (creating if absent) the database file at path. The parent
// directory is created when missing. The connection pool is capped at one
// connection: the tool is single-writer and SQLite rewards it.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create db directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	return &Store{path: path, db: db}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for query helpers in this package.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// LoadConn returns a pinned connection tuned for bulk loading: in-memory
// journal, synchronous off, a large page cache, and exclusive locking. The
// caller must Close it to return it to the pool.
func (s *Store) LoadConn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: acquire load connection: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = MEMORY",
		"PRAGMA synchronous = OFF",
		"PRAGMA cache_size = 1000000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA locking_mode = EXCLUSIVE",
		"PRAGMA foreign_keys = OFF",
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	return conn, nil
}

// IsLocked reports whether err is SQLite lock contention, the one transient
// store error the loader retries.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// CreateTables idempotently creates the given tables from the registry DDL.
func (s *Store) CreateTables(ctx context.Context, tableIDs []string) error {
	for _, id := range tableIDs {
		tab, err := schema.Lookup(id)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, tab.CreateDDL()); err != nil {
			return fmt.Errorf("store: create table %s: %w", id, err)
		}
	}
	return nil
}

// CreateIndexes idempotently creates every registered index for the tables.
func (s *Store) CreateIndexes(ctx context.Context, tableIDs []string) error {
	for _, id := range tableIDs {
		tab, err := schema.Lookup(id)
		if err != nil {
			return err
		}
		for _, ddl := range tab.IndexDDL {
			if _, err := s.db.ExecContext(ctx, ddl); err != nil {
				return fmt.Errorf("store: create index for %s: %w", id, err)
			}
		}
	}
	return nil
}

// DisableIndexes drops every registered index for the tables so bulk loads
// skip per-row index maintenance. Index names come from the DDL text, not a
// hardcoded list.
func (s *Store) DisableIndexes(ctx context.Context, tableIDs []string) error {
	total := 0
	for _, id := range tableIDs {
		tab, err := schema.Lookup(id)
		if err != nil {
			return err
		}
		for _, name := range tab.IndexNames() {
			if _, err := s.db.ExecContext(ctx, "DROP INDEX IF EXISTS "+name); err != nil {
				return fmt.Errorf("store: drop index %s: %w", name, err)
			}
			total++
		}
	}
	log.Printf("store: dropped %d indexes across %d tables for load", total, len(tableIDs))
	return nil
}

// Execer covers both *sql.Tx and *sql.Conn so batch inserts run inside the
// loader's per-table transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// InsertBatch inserts records into the table via exec. For identifier-keyed
// tables it first deletes any existing rows whose unique_system_identifier
// appears in the batch (chunked to stay under the bound-parameter limit), so
// re-processing the same source data is idempotent.
//
// Every record must already have length tab.ColumnCount(); the parser
// guarantees that.
func InsertBatch(ctx context.Context, exec Execer, tab *schema.Table, records [][]string) error {
	if len(records) == 0 {
		return nil
	}

	if !tab.NoKeyDedup {
		ids := make([]any, 0, len(records))
		for _, rec := range records {
			if len(rec) > 1 {
				ids = append(ids, rec[1])
			}
		}
		for start := 0; start < len(ids); start += deleteChunkSize {
			end := min(start+deleteChunkSize, len(ids))
			chunk := ids[start:end]
			q := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
				tab.ID, schema.KeyColumn, placeholders(len(chunk)))
			if _, err := exec.ExecContext(ctx, q, chunk...); err != nil {
				return fmt.Errorf("store: dedup delete %s: %w", tab.ID, err)
			}
		}
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tab.ID, strings.Join(tab.ColumnNames(), ", "), placeholders(tab.ColumnCount()))
	stmt, err := exec.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("store: prepare insert %s: %w", tab.ID, err)
	}
	defer stmt.Close()

	args := make([]any, tab.ColumnCount())
	for _, rec := range records {
		for i, v := range rec {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("store: insert %s: %w", tab.ID, err)
		}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// TableRowCount returns the row count, or 0 with the error logged when the
// table is absent or the query fails.
func (s *Store) TableRowCount(ctx context.Context, tableID string) int64 {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableID).Scan(&n)
	if err != nil {
		log.Printf("store: count %s: %v", tableID, err)
		return 0
	}
	return n
}
