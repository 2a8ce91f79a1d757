package source

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last change before the
// watch callback runs.
const DefaultDebounce = 100 * time.Millisecond

// Watch calls fn each time the file at path changes, until ctx is done.
// Bursts of events within debounce collapse into one call; debounce <= 0
// uses [DefaultDebounce]. Calls to fn never overlap.
//
// The parent directory is watched rather than the file itself, so editors
// that save by renaming a temporary file over path are seen.
func Watch(ctx context.Context, path string, debounce time.Duration, fn func(context.Context)) error {
	return watch(ctx, []string{path}, debounce, fn, nil)
}

// WatchFiles is [Watch] over several files. A burst touching more than one of
// them still yields a single call.
func WatchFiles(ctx context.Context, paths []string, debounce time.Duration, fn func(context.Context)) error {
	if len(paths) == 0 {
		return fmt.Errorf("no files to watch")
	}
	return watch(ctx, paths, debounce, fn, nil)
}

// WatchSource watches the files behind src. Sources that are not backed by
// local files cannot be watched.
func WatchSource(ctx context.Context, src Source, debounce time.Duration, fn func(context.Context)) error {
	w, ok := src.(Watchable)
	if !ok {
		return fmt.Errorf("%s cannot be watched", src)
	}
	paths, err := w.WatchPaths()
	if err != nil {
		return err
	}
	return WatchFiles(ctx, paths, debounce, fn)
}

func watch(ctx context.Context, paths []string, debounce time.Duration, fn func(context.Context), ready func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	targets := make(map[string]bool, len(paths))
	var dirs []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		targets[abs] = true
		if dir := filepath.Dir(abs); !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	if ready != nil {
		ready()
	}

	logger := log.Default().WithPrefix("watch")
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if name, err := filepath.Abs(ev.Name); err != nil || !targets[name] {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			fn(ctx)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "err", err)
		}
	}
}
