package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/JonMunkholm/csvcombine/internal/config"
	"github.com/JonMunkholm/csvcombine/internal/core"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		run := Run{
			ID:          name,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			Duration:    1500 * time.Millisecond,
			Origin:      OriginCLI,
			Inputs:      []string{"a.csv", "b.csv"},
			Output:      "out.csv",
			Policy:      "merge",
			Keys:        []string{"id"},
			RowsRead:    10,
			RowsWritten: 7,
			Merged:      3,
		}
		if err := s.Record(ctx, run); err != nil {
			t.Fatalf("Record(%s) error = %v", name, err)
		}
	}

	runs, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Recent(2) returned %d runs", len(runs))
	}
	if runs[0].ID != "third" || runs[1].ID != "second" {
		t.Errorf("order = %s, %s; want third, second", runs[0].ID, runs[1].ID)
	}

	got := runs[0]
	if !got.StartedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("StartedAt = %v", got.StartedAt)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", got.Duration)
	}
	if !reflect.DeepEqual(got.Inputs, []string{"a.csv", "b.csv"}) || !reflect.DeepEqual(got.Keys, []string{"id"}) {
		t.Errorf("Inputs/Keys = %q/%q", got.Inputs, got.Keys)
	}
	if got.RowsRead != 10 || got.RowsWritten != 7 || got.Merged != 3 || got.Policy != "merge" {
		t.Errorf("counts = %+v", got)
	}
	if !got.Succeeded() {
		t.Error("run without error should have succeeded")
	}
}

func TestSQLiteStore_DefaultLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < DefaultLimit+5; i++ {
		run := Run{ID: fmt.Sprintf("run-%d", i), StartedAt: time.Now()}
		if err := s.Record(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != DefaultLimit {
		t.Errorf("Recent(0) returned %d runs, want %d", len(runs), DefaultLimit)
	}
}

func TestSQLiteStore_DuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "same", StartedAt: time.Now()}
	if err := s.Record(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, run); err == nil {
		t.Error("second Record with the same ID should fail")
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Record(context.Background(), Run{ID: "kept", StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	runs, err := s.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "kept" {
		t.Errorf("runs after reopen = %+v", runs)
	}
}

func TestNewRunAndComplete(t *testing.T) {
	opts := core.Options{
		Sources: core.FileSources([]string{"a.csv", "b.csv"}),
		Keys:    []string{"id"},
		Policy:  core.PolicyRemoveDuplicates,
	}
	run := NewRun(OriginHTTP, opts, "")
	if run.ID == "" || run.Origin != OriginHTTP || run.Policy != "remove" {
		t.Errorf("NewRun() = %+v", run)
	}
	if other := NewRun(OriginHTTP, opts, ""); other.ID == run.ID {
		t.Error("run IDs should be unique")
	}

	run.Complete(&core.Result{RowsRead: 4, RowsWritten: 3, Duplicates: 1}, nil)
	if run.RowsWritten != 3 || run.Duplicates != 1 || !run.Succeeded() {
		t.Errorf("Complete() = %+v", run)
	}

	failed := NewRun(OriginCLI, opts, "out.csv")
	failed.Complete(nil, errors.New("boom"))
	if failed.Succeeded() || failed.Error != "boom" {
		t.Errorf("failed run = %+v", failed)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.HistoryConfig{Driver: "none"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(Nop); !ok {
		t.Errorf("driver none returned %T", s)
	}

	s, err = Open(ctx, config.HistoryConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "h.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("driver sqlite returned %T", s)
	}

	if _, err := Open(ctx, config.HistoryConfig{Driver: "oracle"}); err == nil {
		t.Error("unknown driver should fail")
	}
}

type failingStore struct{ Nop }

func (failingStore) Record(context.Context, Run) error { return errors.New("disk full") }

func TestSave_SwallowsErrors(t *testing.T) {
	// must not panic or block
	Save(context.Background(), failingStore{}, Run{ID: "x"}, time.Second)
	Save(context.Background(), nil, Run{ID: "x"}, time.Second)

	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Save(ctx, s, Run{ID: "after-cancel", StartedAt: time.Now()}, time.Second)

	runs, err := s.Recent(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "after-cancel" {
		t.Errorf("run should be saved even after the request context ends: %+v", runs)
	}
}
