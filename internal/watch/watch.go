// Package watch re-runs a combine whenever one of its input files changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JonMunkholm/csvcombine/internal/logging"
)

// Func is the work repeated on every change.
type Func func(ctx context.Context) error

// Run calls fn once, then again after each write, create or rename of any
// of paths, until ctx is done. Bursts of events closer together than
// debounce trigger a single call. Calls never overlap.
//
// Parent directories are watched rather than the files themselves, so
// editors that save by replacing the file are still seen. Errors from fn are
// logged and watching continues. Run returns nil when ctx is done.
func Run(ctx context.Context, paths []string, debounce time.Duration, fn Func) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	targets := make(map[string]bool, len(paths))
	watchedDirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", p, err)
		}
		targets[abs] = true

		dir := filepath.Dir(abs)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %q: %w", dir, err)
		}
		watchedDirs[dir] = true
	}

	logger := logging.FromContext(ctx)
	logger.Info("watching inputs", "files", len(targets), "dirs", len(watchedDirs))

	call := func(trigger string) {
		if err := fn(ctx); err != nil {
			logger.Error("watched run failed", "trigger", trigger, "error", err)
		}
	}
	call("start")

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		changed string
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !targets[abs] {
				continue
			}
			logger.Debug("input changed", "path", abs, "op", event.Op.String())

			changed = abs
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			call(changed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}
