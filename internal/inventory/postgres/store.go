// Package postgres stores inventory change records in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// DefaultTable holds change records when no table is configured.
const DefaultTable = "inventory_changes"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for inventory rows.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store writes inventory rows into Postgres.
type Store struct {
	pool  execCloser
	table string
}

// NewStore connects to Postgres and ensures the inventory table exists.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("inventory.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &Store{pool: pool, table: table}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool execCloser, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the inventory table when it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	check_id    TEXT PRIMARY KEY,
	recorded_at TIMESTAMPTZ NOT NULL,
	url         TEXT NOT NULL,
	title       TEXT NOT NULL,
	entries     JSONB NOT NULL,
	signature   TEXT NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create inventory table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Record implements stock.Recorder.
func (s *Store) Record(ctx context.Context, record stock.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("inventory store is not configured")
	}
	if record.CheckID == "" {
		return fmt.Errorf("record check id is required")
	}
	entries := record.Entries
	if entries == nil {
		entries = []stock.Entry{}
	}
	entriesJSON, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	check_id,
	recorded_at,
	url,
	title,
	entries,
	signature
) VALUES (
	$1,$2,$3,$4,$5,$6
)`, s.table)

	args := []any{
		record.CheckID,
		record.Timestamp,
		record.URL,
		record.Title,
		entriesJSON,
		string(record.Signature),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert inventory record: %w", err)
	}
	return nil
}
