package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitCall(t *testing.T, calls <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestRun_InitialAndOnChange(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.csv")
	if err := os.WriteFile(input, []byte("id\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, []string{input}, 20*time.Millisecond, func(context.Context) error {
			calls <- struct{}{}
			return errors.New("failures are logged, not fatal")
		})
	}()

	waitCall(t, calls, "initial run")

	if err := os.WriteFile(input, []byte("id\n1\n2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitCall(t, calls, "run after change")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.csv")
	if err := os.WriteFile(input, []byte("id\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 10)
	go Run(ctx, []string{input}, 10*time.Millisecond, func(context.Context) error {
		calls <- struct{}{}
		return nil
	})
	waitCall(t, calls, "initial run")

	if err := os.WriteFile(filepath.Join(dir, "out.csv"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-calls:
		t.Error("write to an unwatched file triggered a run")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRun_MissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope", "a.csv")
	err := Run(context.Background(), []string{missing}, time.Millisecond, func(context.Context) error {
		t.Error("fn should not run when watching fails")
		return nil
	})
	if err == nil {
		t.Fatal("Run() expected error for a missing directory")
	}
}
