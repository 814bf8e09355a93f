// Package sqldb implements dataset.Dataset on a SQL database.
//
// The same schema serves the embedded SQLite database (app data, staging
// copies and therefore the snapshot file that travels between devices) and
// an optional PostgreSQL database hosting the app data on a server.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/atinyakov/BudgetKeeper/internal/dataset"
)

// Dialect selects placeholder style and driver.
type Dialect string

const (
	// SQLite uses the modernc.org/sqlite driver and ? placeholders.
	SQLite Dialect = "sqlite"
	// Postgres uses the lib/pq driver and $n placeholders.
	Postgres Dialect = "postgres"
)

var _ dataset.Dataset = (*Store)(nil)

// Store is a SQL-backed dataset.
//
// mu serializes every command: one connection must never run two commands at
// once. It guards storage only and has nothing to do with the sync lock.
type Store struct {
	mu      sync.Mutex
	dialect Dialect
	dsn     string
	db      *sql.DB
	ready   bool
}

// NewSQLite returns a store for the SQLite database file at path.
// The file is opened and its schema created by Init.
func NewSQLite(path string) *Store {
	return &Store{dialect: SQLite, dsn: path}
}

// NewPostgres returns a store for the PostgreSQL database at dsn.
func NewPostgres(dsn string) *Store {
	return &Store{dialect: Postgres, dsn: dsn}
}

// NewWithDB wraps an already opened handle. Init still creates the schema.
func NewWithDB(db *sql.DB, dialect Dialect) *Store {
	return &Store{dialect: dialect, db: db}
}

// Path returns the DSN or file path the store was created with.
func (s *Store) Path() string { return s.dsn }

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() Dialect { return s.dialect }

// Init opens the database if needed and creates missing tables.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}
	if s.db == nil {
		db, err := open(ctx, s.dialect, s.dsn)
		if err != nil {
			return err
		}
		s.db = db
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	s.ready = true
	return nil
}

func open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	switch dialect {
	case SQLite:
		if dir := filepath.Dir(dsn); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// The snapshot file is copied byte for byte, so keep a single
		// connection and the default rollback journal.
		db.SetMaxOpenConns(1)
		return db, nil
	case Postgres:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.ready = false
	return err
}

// rebind rewrites ? placeholders for the store's dialect.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// table describes how one entity type maps onto its SQL table.
type table[T any] struct {
	name    string
	columns []string
	keys    []string
	args    func(T) []any
	keyArgs func(T) []any
	scan    func(rowScanner) (T, error)
}

func (t table[T]) selectQuery() string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(t.columns, ", "), t.name)
}

func (t table[T]) insertQuery() string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(t.columns, ", "), marks)
}

func (t table[T]) updateQuery() string {
	sets := make([]string, len(t.columns))
	for i, c := range t.columns {
		sets[i] = c + " = ?"
	}
	where := make([]string, len(t.keys))
	for i, k := range t.keys {
		where[i] = k + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", t.name, strings.Join(sets, ", "), strings.Join(where, " AND "))
}

func readAll[T any](ctx context.Context, s *Store, t table[T]) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, dataset.ErrNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(t.selectQuery()))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.name, err)
	}
	return out, nil
}

func insert[T any](ctx context.Context, s *Store, t table[T], v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return dataset.ErrNotInitialized
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(t.insertQuery()), t.args(v)...); err != nil {
		return fmt.Errorf("insert %s: %w", t.name, err)
	}
	return nil
}

func update[T any](ctx context.Context, s *Store, t table[T], v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return dataset.ErrNotInitialized
	}

	args := append(t.args(v), t.keyArgs(v)...)
	res, err := s.db.ExecContext(ctx, s.rebind(t.updateQuery()), args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", t.name, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s: %w", t.name, dataset.ErrNotFound)
	}
	return nil
}
