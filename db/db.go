package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of *pgxpool.Pool used by the stores.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	maxRetries = 10
	retryDelay = 10 * time.Second
)

func Connect(ctx context.Context, logger *slog.Logger, dbURL string) (*pgxpool.Pool, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DATABASE_URL: %v", err)
	}

	var pool *pgxpool.Pool
	for i := 0; i < maxRetries; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				logger.Info("Successfully connected to the database")
				break
			}
			pool.Close()
		}

		logger.Warn("Failed to connect to the database",
			slog.Int("attempt", i+1),
			slog.Int("max_attempts", maxRetries),
			slog.String("error", err.Error()))
		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database after %d attempts: %v", maxRetries, err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS scripts (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		channel_id TEXT NOT NULL DEFAULT '',
		compile_requested_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS scenes (
		id TEXT PRIMARY KEY,
		script_id TEXT NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
		ordinal INTEGER NOT NULL,
		narration TEXT NOT NULL DEFAULT '',
		visual_prompt TEXT NOT NULL DEFAULT '',
		caption TEXT NOT NULL DEFAULT '',
		duration DOUBLE PRECISION NOT NULL DEFAULT 0,
		effect TEXT NOT NULL DEFAULT '',
		effect_params JSONB,
		image JSONB,
		voice JSONB,
		preview JSONB,
		UNIQUE (script_id, ordinal)
	)`,
	`CREATE TABLE IF NOT EXISTS generation_status (
		scene_id TEXT NOT NULL,
		component TEXT NOT NULL,
		state TEXT NOT NULL,
		error JSONB,
		task_id TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL,
		PRIMARY KEY (scene_id, component)
	)`,
	`CREATE TABLE IF NOT EXISTS compiled_videos (
		id TEXT PRIMARY KEY,
		script_id TEXT NOT NULL UNIQUE REFERENCES scripts(id) ON DELETE CASCADE,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		logo_path TEXT NOT NULL DEFAULT ''
	)`,
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(ctx context.Context, q Querier) error {
	for i, stmt := range migrations {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
