package core

// scheduler.go provides the background triggers used in serve mode.
//
//   - StartScheduler starts a run on a cron schedule
//   - WatchInput starts a run when the input file is written or replaced
//
// A trigger that finds every run slot taken logs and skips; it never queues.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// WatchDebounce is how long the input must stay quiet before a watch-triggered run.
var WatchDebounce = time.Second

// StartScheduler starts a run at every tick of spec, a standard five-field
// cron expression. The schedule stops when ctx is cancelled.
func (s *Service) StartScheduler(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.trigger(ctx, "cron") }); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()

	slog.Info("run scheduler started", "cron", spec)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		slog.Info("run scheduler stopped")
	}()
	return nil
}

// WatchInput starts a run whenever path is written or recreated. The parent
// directory is watched so editors and tools that replace the file by rename
// are noticed. Bursts of events within WatchDebounce start one run.
func (s *Service) WatchInput(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %q: %w", filepath.Dir(absPath), err)
	}

	slog.Info("input watcher started", "path", absPath)

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				slog.Info("input watcher stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if name, _ := filepath.Abs(event.Name); name != absPath {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(WatchDebounce, func() {
					slog.Info("input changed", "path", absPath)
					s.trigger(ctx, "watch")
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("input watcher error", "error", err)
			}
		}
	}()
	return nil
}

// trigger starts a background run and logs the outcome of the attempt.
func (s *Service) trigger(ctx context.Context, source string) {
	if ctx.Err() != nil {
		return
	}
	id, err := s.Start(ctx, RunRequest{Trigger: source})
	switch {
	case errors.Is(err, ErrTooManyRuns):
		slog.Warn("run skipped, another run is in progress", "trigger", source)
	case err != nil:
		slog.Error("run trigger failed", "trigger", source, "error", err)
	default:
		slog.Info("run triggered", "trigger", source, "run_id", id)
	}
}
