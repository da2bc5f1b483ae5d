// Package postgres provides a Postgres-backed IndexStore.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

const defaultTable = "postings"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for postings.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// IndexStore reads and writes postings in a single table keyed by
// (keyword, url).
type IndexStore struct {
	pool  pgxPool
	table string
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*IndexStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("index.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, table string) (*IndexStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &IndexStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the postings table and its lookup index if missing.
func (s *IndexStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	keyword TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	score INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (keyword, url)
);
CREATE INDEX IF NOT EXISTS %[1]s_keyword_score_idx ON %[1]s (keyword, score DESC)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure postings schema: %w", err)
	}
	return nil
}

// Upsert inserts the posting or overwrites title and score of an existing
// (keyword, url) row.
func (s *IndexStore) Upsert(ctx context.Context, posting crawler.Posting) error {
	query := fmt.Sprintf(`
INSERT INTO %s (keyword, url, title, score)
VALUES ($1, $2, $3, $4)
ON CONFLICT (keyword, url) DO UPDATE SET
	title = EXCLUDED.title,
	score = EXCLUDED.score,
	updated_at = now()`, s.table)
	if _, err := s.pool.Exec(ctx, query, posting.Keyword, posting.URL, posting.Title, posting.Score); err != nil {
		return fmt.Errorf("upsert posting: %w", err)
	}
	return nil
}

// QueryByKeyword returns postings for keyword ordered by score desc, url asc.
func (s *IndexStore) QueryByKeyword(ctx context.Context, keyword string) ([]crawler.Posting, error) {
	query := fmt.Sprintf(`
SELECT keyword, url, title, score
FROM %s
WHERE keyword = $1
ORDER BY score DESC, url ASC`, s.table)
	rows, err := s.pool.Query(ctx, query, keyword)
	if err != nil {
		return nil, fmt.Errorf("query postings: %w", err)
	}
	defer rows.Close()

	out := []crawler.Posting{}
	for rows.Next() {
		var p crawler.Posting
		if err := rows.Scan(&p.Keyword, &p.URL, &p.Title, &p.Score); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate postings: %w", err)
	}
	return out, nil
}

// Ping checks that the database answers queries.
func (s *IndexStore) Ping(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *IndexStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var _ crawler.IndexStore = (*IndexStore)(nil)
