package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies
// migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time, otherwise SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			origin TEXT NOT NULL DEFAULT '',
			inputs TEXT NOT NULL DEFAULT '[]',
			output TEXT NOT NULL DEFAULT '',
			policy TEXT NOT NULL DEFAULT 'keep',
			keys TEXT NOT NULL DEFAULT '[]',
			rows_read INTEGER NOT NULL DEFAULT 0,
			rows_written INTEGER NOT NULL DEFAULT 0,
			duplicates INTEGER NOT NULL DEFAULT 0,
			merged INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Record inserts a run.
func (s *SQLiteStore) Record(ctx context.Context, run Run) error {
	inputs, err := json.Marshal(nonNil(run.Inputs))
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	keys, err := json.Marshal(nonNil(run.Keys))
	if err != nil {
		return fmt.Errorf("encode keys: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, duration_ns, origin, inputs, output, policy, keys,
			rows_read, rows_written, duplicates, merged, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), int64(run.Duration), run.Origin,
		string(inputs), run.Output, run.Policy, string(keys),
		run.RowsRead, run.RowsWritten, run.Duplicates, run.Merged, run.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, duration_ns, origin, inputs, output, policy, keys,
			rows_read, rows_written, duplicates, merged, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r            Run
			started, dur int64
			inputs, keys string
		)
		if err := rows.Scan(&r.ID, &started, &dur, &r.Origin, &inputs, &r.Output, &r.Policy, &keys,
			&r.RowsRead, &r.RowsWritten, &r.Duplicates, &r.Merged, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.Duration = time.Duration(dur)
		if err := json.Unmarshal([]byte(inputs), &r.Inputs); err != nil {
			return nil, fmt.Errorf("decode inputs of run %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(keys), &r.Keys); err != nil {
			return nil, fmt.Errorf("decode keys of run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
