// Package postgres persists professors, research interests, universities and runs.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/metrics"
	"github.com/JakeFAU/professor-crawler/internal/professor"
)

// DefaultBatchSize is the number of rows sent per INSERT statement.
const DefaultBatchSize = 250

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	BatchSize       int
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store writes crawl output into Postgres.
type Store struct {
	pool      pool
	batchSize int
	logger    *zap.Logger
}

// NewStore connects to Postgres using cfg.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStoreWithPool(p, cfg.BatchSize, logger)
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool, batchSize int, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, batchSize: batchSize, logger: logger.Named("postgres")}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS universities (
	name TEXT PRIMARY KEY,
	directory JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS professors (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	university TEXT NOT NULL,
	faculty TEXT NOT NULL DEFAULT '',
	department TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	research_interests TEXT[] NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS professors_university_idx ON professors (university)`,
	`CREATE TABLE IF NOT EXISTS research_interests (
	id BIGSERIAL PRIMARY KEY,
	research_interest TEXT NOT NULL,
	prof_id BIGINT NOT NULL REFERENCES professors (id) ON DELETE CASCADE,
	embedding vector(768)
)`,
	`CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	university TEXT NOT NULL,
	request JSONB NOT NULL,
	status TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	error_text TEXT NOT NULL DEFAULT '',
	stats JSONB NOT NULL DEFAULT '{}',
	professors JSONB,
	interests JSONB,
	snapshot_uri TEXT NOT NULL DEFAULT ''
)`,
}

// EnsureSchema creates the tables the crawler writes to.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// insertBatches splits rows into batches and sends one multi-row INSERT per batch.
// A failed batch is logged and recorded; the remaining batches are still attempted.
func (s *Store) insertBatches(ctx context.Context, table string, columns []string, rows [][]any) professor.BatchReport {
	var b professor.BatchReport
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		b.Batches++
		batchNo := b.Batches
		query, args := insertStatement(table, columns, rows[start:end])
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			b.Failed = append(b.Failed, batchNo)
			metrics.ObserveBatch(table, "failed")
			s.logger.Error("batch insert failed",
				zap.String("table", table),
				zap.Int("batch", batchNo),
				zap.Int("rows", end-start),
				zap.Error(err),
			)
			continue
		}
		b.Inserted += end - start
		metrics.ObserveBatch(table, "ok")
		s.logger.Debug("batch inserted",
			zap.String("table", table),
			zap.Int("batch", batchNo),
			zap.Int("rows", end-start),
		)
	}
	return b
}

func insertStatement(table string, columns []string, rows [][]any) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			args = append(args, v)
			fmt.Fprintf(&sb, "$%d", len(args))
		}
		sb.WriteByte(')')
	}
	return sb.String(), args
}
