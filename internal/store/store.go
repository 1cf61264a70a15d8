// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists briefs, papers, brief-paper associations, and
// provider settings. SQLite is the default engine; PostgreSQL is reached
// through pgx's database/sql driver.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// dbtx is the subset of *sql.DB and *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs store operations against the database or an open
// transaction. Queries written with ? placeholders are rebound for
// PostgreSQL.
type Queries struct {
	db     dbtx
	driver types.StoreDriver
	now    func() time.Time
}

// Store owns the database handle. Its read-modify-write methods run in a
// transaction; the same methods on Queries join the caller's transaction.
type Store struct {
	*Queries
	sqlDB  *sql.DB
	logger *zap.Logger
}

// Open connects to the configured database and creates the schema if it
// does not exist.
func Open(ctx context.Context, cfg types.StoreConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = types.DriverSQLite
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case types.DriverSQLite:
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite3", cfg.DSN+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	case types.DriverPostgres:
		db, err = sql.Open("pgx", cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{
		Queries: &Queries{db: db, driver: driver, now: time.Now},
		sqlDB:   db,
		logger:  logger,
	}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	logger.Debug("store opened", zap.String("driver", string(driver)))
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// InTx runs fn in a transaction. The transaction commits when fn returns
// nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{db: tx, driver: s.driver, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS briefs (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			query TEXT NOT NULL DEFAULT '',
			search_queries TEXT NOT NULL DEFAULT '[]',
			date_constraint TEXT NOT NULL DEFAULT '',
			refs TEXT NOT NULL DEFAULT '[]',
			review TEXT NOT NULL DEFAULT '',
			bibtex TEXT NOT NULL DEFAULT '',
			chat_messages TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			opened_at TEXT,
			completed_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			abstract TEXT NOT NULL DEFAULT '',
			authors TEXT NOT NULL DEFAULT '[]',
			year INTEGER NOT NULL DEFAULT 0,
			published TEXT NOT NULL DEFAULT '',
			updated TEXT NOT NULL DEFAULT '',
			links TEXT NOT NULL DEFAULT '{}',
			doi TEXT NOT NULL DEFAULT '',
			journal_ref TEXT NOT NULL DEFAULT '',
			comment TEXT NOT NULL DEFAULT '',
			primary_category TEXT NOT NULL DEFAULT '',
			categories TEXT NOT NULL DEFAULT '[]',
			source TEXT NOT NULL DEFAULT '',
			citation TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS paper_brief_associations (
			brief_id TEXT NOT NULL REFERENCES briefs(id) ON DELETE CASCADE,
			paper_id TEXT NOT NULL REFERENCES papers(id),
			found_by TEXT NOT NULL DEFAULT '[]',
			selected INTEGER NOT NULL DEFAULT 0,
			relevancy TEXT NOT NULL DEFAULT '',
			relevancy_score INTEGER,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (brief_id, paper_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_associations_paper_id ON paper_brief_associations(paper_id)`,
		`CREATE TABLE IF NOT EXISTS provider_settings (
			provider TEXT PRIMARY KEY,
			api_key TEXT NOT NULL DEFAULT '',
			selected_model TEXT NOT NULL DEFAULT '',
			enabled_models TEXT NOT NULL DEFAULT '{}',
			base_url TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.sqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.rebind(query), args...)
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (q *Queries) rebind(query string) string {
	if q.driver != types.DriverPostgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == '?' && !inQuote:
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeJSON leaves v untouched for an empty column.
func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
