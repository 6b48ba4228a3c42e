package loader

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/themis/pkg/health"
)

// ReloadFunc receives the result of each rescan triggered by Watch.
type ReloadFunc func(summary *Summary, err error)

// Watch rescans the rule directories whenever a candidate module is created,
// written or renamed. Newly added rules are registered; rules already in the
// catalog keep their first registration. Watch blocks until ctx is done.
func (l *Loader) Watch(ctx context.Context, onReload ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	watched := 0
	for _, category := range health.Categories() {
		dirs, err := l.resolveDirs(category)
		if err != nil {
			return err
		}
		for _, dir := range dirs {
			n, err := watchDirRecursive(watcher, dir)
			if err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			watched += n
		}
	}
	if watched == 0 {
		return fmt.Errorf("no rule directories to watch\nHint: configure rules.dirs in themis.yaml")
	}
	l.logger.Info("watching rule directories", slog.Int("dirs", watched))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// new subdirectories are watched as they appear
			if event.Op&fsnotify.Create != 0 {
				if n, err := watchDirRecursive(watcher, event.Name); err == nil && n > 0 {
					l.logger.Debug("watching new directory", slog.String("dir", event.Name))
				}
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !IsCandidate(event.Name) {
				continue
			}

			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			changed := event.Name
			timer = time.AfterFunc(l.cfg.Debounce, func() {
				if ctx.Err() != nil {
					return
				}
				l.logger.Info("rule module changed", slog.String("path", filepath.Base(changed)))
				summary, err := l.Load(ctx)
				if err != nil {
					l.logger.Error("rule reload failed", slog.String("error", err.Error()))
				}
				if onReload != nil {
					onReload(summary, err)
				}
			})
			timerMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// watchDirRecursive adds dir and its subdirectories to the watcher, skipping hidden
// directories. It returns the number of directories added.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && len(d.Name()) > 0 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
