package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/union-data/internal/config"
)

// DB is the subset of *pgxpool.Pool the stores use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS aggregates (
	kind          TEXT        NOT NULL,
	entity_id     TEXT        NOT NULL,
	blockchain    TEXT        NOT NULL,
	version       BIGINT      NOT NULL,
	multicurrency BOOLEAN     NOT NULL DEFAULT FALSE,
	doc           JSONB       NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (kind, entity_id)
);

CREATE INDEX IF NOT EXISTS aggregates_multicurrency_idx
	ON aggregates (kind, blockchain, entity_id) WHERE multicurrency;

CREATE TABLE IF NOT EXISTS reconcile_marks (
	kind      TEXT        NOT NULL,
	entity_id TEXT        NOT NULL,
	reason    TEXT        NOT NULL,
	attempts  INT         NOT NULL DEFAULT 0,
	marked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, entity_id)
);

CREATE INDEX IF NOT EXISTS reconcile_marks_marked_at_idx ON reconcile_marks (marked_at);
`

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
