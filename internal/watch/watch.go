// Package watch re-runs audits when their inputs change or on a cron schedule.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last file event before a run.
const DefaultDebounce = 250 * time.Millisecond

// RunFunc performs one audit. It is never called concurrently with itself.
type RunFunc func(ctx context.Context)

// FileWatcher triggers a RunFunc when any of a fixed set of files changes.
// Parent directories are watched rather than the files themselves so editors
// that save by rename are still noticed.
type FileWatcher struct {
	files    map[string]struct{}
	dirs     []string
	debounce time.Duration
	logger   *slog.Logger
}

func NewFileWatcher(paths []string, debounce time.Duration, logger *slog.Logger) (*FileWatcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("watch: no files to watch")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	w := &FileWatcher{
		files:    make(map[string]struct{}, len(paths)),
		debounce: debounce,
		logger:   logger.With("component", "watch"),
	}
	seenDirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve %q: %w", p, err)
		}
		w.files[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, ok := seenDirs[dir]; !ok {
			seenDirs[dir] = struct{}{}
			w.dirs = append(w.dirs, dir)
		}
	}
	return w, nil
}

// Watch blocks until ctx is cancelled, calling run once after each burst of
// changes to the watched files.
func (w *FileWatcher) Watch(ctx context.Context, run RunFunc) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fsw.Close()

	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch: add %q: %w", dir, err)
		}
	}
	w.logger.Info("watching for changes", "files", len(w.files), "debounce_ms", w.debounce.Milliseconds())

	fire := make(chan struct{}, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-fire:
				run(ctx)
			}
		}
	}()
	defer wg.Wait()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return errors.New("watch: events channel closed")
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("file event", "path", ev.Name, "op", ev.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("watch: errors channel closed")
			}
			w.logger.Error("watcher error", "err", err)
		}
	}
}

func (w *FileWatcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	_, ok := w.files[abs]
	return ok
}
