// Package history records one row per combining run so past runs can be
// listed from the CLI and the HTTP API.
//
// Two backends exist: a local SQLite file (the default) and PostgreSQL for
// a shared server. Driver "none" disables history entirely.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvcombine/internal/config"
	"github.com/JonMunkholm/csvcombine/internal/core"
	"github.com/JonMunkholm/csvcombine/internal/logging"
)

// DefaultLimit is the number of runs Recent returns when asked for zero or
// fewer.
const DefaultLimit = 20

// Origins of a run.
const (
	OriginCLI   = "cli"
	OriginHTTP  = "http"
	OriginWatch = "watch"
)

// Run is one recorded combining run.
type Run struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	Origin      string        `json:"origin"`
	Inputs      []string      `json:"inputs"`
	Output      string        `json:"output,omitempty"`
	Policy      string        `json:"policy"`
	Keys        []string      `json:"keys,omitempty"`
	RowsRead    int           `json:"rows_read"`
	RowsWritten int           `json:"rows_written"`
	Duplicates  int           `json:"duplicates"`
	Merged      int           `json:"merged"`
	Error       string        `json:"error,omitempty"`
}

// NewRun starts a run record with a fresh ID.
func NewRun(origin string, opts core.Options, output string) Run {
	return Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Origin:    origin,
		Inputs:    core.SourceNames(opts.Sources),
		Output:    output,
		Policy:    opts.Policy.String(),
		Keys:      opts.Keys,
	}
}

// Complete fills in the outcome of the run.
func (r *Run) Complete(res *core.Result, err error) {
	r.Duration = time.Since(r.StartedAt)
	if res != nil {
		r.RowsRead = res.RowsRead
		r.RowsWritten = res.RowsWritten
		r.Duplicates = res.Duplicates
		r.Merged = res.Merged
	}
	if err != nil {
		r.Error = err.Error()
	}
}

// Succeeded reports whether the run finished without error.
func (r Run) Succeeded() bool { return r.Error == "" }

// Store persists runs.
type Store interface {
	Record(ctx context.Context, run Run) error
	Recent(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return Nop{}, nil
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			p, err := DefaultSQLitePath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		s, err := OpenPostgres(ctx, cfg.URL, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
}

// DefaultSQLitePath is history.db under the user cache directory.
func DefaultSQLitePath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache directory: %w", err)
	}
	return filepath.Join(dir, "csvcombine", "history.db"), nil
}

// Save records run with a bounded wait. Failures are logged and swallowed:
// history never fails a run.
func Save(ctx context.Context, s Store, run Run, timeout time.Duration) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.Record(ctx, run); err != nil {
		logging.FromContext(ctx).Warn("failed to record run history",
			"run_id", run.ID,
			"error", err,
		)
	}
}

// Nop discards runs.
type Nop struct{}

func (Nop) Record(context.Context, Run) error { return nil }

func (Nop) Recent(context.Context, int) ([]Run, error) { return nil, nil }

func (Nop) Close() error { return nil }

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
