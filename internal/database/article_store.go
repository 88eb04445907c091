// Package database provides Postgres-backed persistence for crawled
// articles.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/somonox/findata-crawler/internal/crawl"
	"github.com/somonox/findata-crawler/internal/metrics"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ArticleStoreConfig controls the Postgres connection pool used for article
// rows.
type ArticleStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ArticleStore writes crawl records into Postgres.
type ArticleStore struct {
	pool  execCloser
	table string
}

// NewArticleStore creates a Postgres-backed ArticleStore using the provided
// config.
func NewArticleStore(ctx context.Context, cfg ArticleStoreConfig) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &ArticleStore{pool: pool, table: table}, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewArticleStoreWithPool(pool execCloser, table string) (*ArticleStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ArticleStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreArticle inserts one crawl record. The caller-supplied item metadata
// is persisted as JSON alongside the extracted text.
func (s *ArticleStore) StoreArticle(ctx context.Context, runID string, fetchedAt time.Time, rec crawl.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("article store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	metaJSON, err := json.Marshal(normalizeMeta(rec.Meta))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_uuid,
	url,
	fetched_at,
	status,
	status_code,
	from_cache,
	stale,
	title,
	clean_text,
	clean_len,
	metadata
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`, s.table)

	args := []any{
		runID,
		rec.URL,
		fetchedAt,
		string(rec.Status),
		rec.StatusCode,
		rec.FromCache,
		rec.Stale,
		rec.Title,
		rec.Text,
		rec.TextLength,
		metaJSON,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	metrics.ArticlesStored.Inc()
	return nil
}

func normalizeMeta(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
