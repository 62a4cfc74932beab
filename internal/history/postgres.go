package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps history in a shared PostgreSQL database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url, verifies the connection and applies
// migrations.
func OpenPostgres(ctx context.Context, url string, maxConns int) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS csvcombine_runs (
			id TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			duration_ns BIGINT NOT NULL DEFAULT 0,
			origin TEXT NOT NULL DEFAULT '',
			inputs TEXT[] NOT NULL DEFAULT '{}',
			output TEXT NOT NULL DEFAULT '',
			policy TEXT NOT NULL DEFAULT 'keep',
			keys TEXT[] NOT NULL DEFAULT '{}',
			rows_read BIGINT NOT NULL DEFAULT 0,
			rows_written BIGINT NOT NULL DEFAULT 0,
			duplicates BIGINT NOT NULL DEFAULT 0,
			merged BIGINT NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_csvcombine_runs_started ON csvcombine_runs(started_at DESC)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Record inserts a run.
func (s *PostgresStore) Record(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO csvcombine_runs (id, started_at, duration_ns, origin, inputs, output, policy, keys,
			rows_read, rows_written, duplicates, merged, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.ID, run.StartedAt, int64(run.Duration), run.Origin,
		nonNil(run.Inputs), run.Output, run.Policy, nonNil(run.Keys),
		run.RowsRead, run.RowsWritten, run.Duplicates, run.Merged, run.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, started_at, duration_ns, origin, inputs, output, policy, keys,
			rows_read, rows_written, duplicates, merged, error
		FROM csvcombine_runs ORDER BY started_at DESC LIMIT $1`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Run, error) {
		var (
			r   Run
			dur int64
		)
		err := row.Scan(&r.ID, &r.StartedAt, &dur, &r.Origin, &r.Inputs, &r.Output, &r.Policy, &r.Keys,
			&r.RowsRead, &r.RowsWritten, &r.Duplicates, &r.Merged, &r.Error)
		r.Duration = time.Duration(dur)
		r.StartedAt = r.StartedAt.UTC()
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan runs: %w", err)
	}
	return runs, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
