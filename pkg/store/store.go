// Package store persists the event journal and ledger snapshots in Postgres
// or, in lite mode, SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// rebind rewrites $n placeholders to ? for SQLite.
func (d Dialect) rebind(query string) string {
	if d != SQLite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// SQLStore implements the journal and snapshot store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Open connects to databaseURL, or to SQLite under dataDir when it is empty,
// and creates the schema.
func Open(ctx context.Context, databaseURL, dataDir string) (*SQLStore, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	if databaseURL == "" {
		if err := os.MkdirAll(dataDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		db, err = sql.Open("sqlite", filepath.Join(dataDir, "pakt.db"))
		dialect = SQLite
	} else {
		db, err = sql.Open("postgres", databaseURL)
		dialect = Postgres
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// One writer keeps SQLite from returning SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach %s: %w", dialect, err)
	}
	s := New(db, dialect)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	sequence BIGINT PRIMARY KEY,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	wallet TEXT NOT NULL,
	event_index INTEGER NOT NULL,
	hash TEXT NOT NULL,
	body TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_events_wallet ON ledger_events (wallet);
CREATE TABLE IF NOT EXISTS ledger_snapshots (
	sequence BIGINT PRIMARY KEY,
	format_version TEXT NOT NULL,
	hash TEXT NOT NULL,
	taken_at TEXT NOT NULL,
	body TEXT NOT NULL
);
`

// Init creates the tables if they are missing.
func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLStore) Close() error { return s.db.Close() }
