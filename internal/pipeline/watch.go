package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reruns the whole pipeline whenever the workbook is written and
// reports each run to onRun. It blocks until ctx is cancelled. Failed runs
// are reported, not returned, so a half-saved workbook does not stop the
// watcher.
func (p *Pipeline) Watch(ctx context.Context, onRun func(*Report, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Spreadsheet editors replace the file on save, so watch the directory.
	dir := filepath.Dir(p.workbook)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(p.workbook)
	p.logger.Info("watching workbook", slog.String("path", target))

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(p.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				p.logger.Debug("workbook changed, rerunning", slog.String("file", event.Name))
				report, err := p.Run(ctx)
				if err != nil {
					p.logger.Error("etl failed", slog.String("error", err.Error()))
				}
				if onRun != nil {
					onRun(report, err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}
