// Package watch signals when a file-backed tier is changed by another
// process, the terminal counterpart of a browser "storage" event.
//
// It carries no data: consumers re-read the account store on each signal.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an atomic tmp+rename write produces.
const DefaultDebounce = 250 * time.Millisecond

// Watcher watches the directories holding a set of files and calls OnChange
// once per debounced burst of changes to any of them.
type Watcher struct {
	files    map[string]bool
	dirs     map[string]bool
	debounce time.Duration
	onChange func(file string)
	logger   *slog.Logger
}

// New returns a watcher for the given files. Empty paths are ignored.
func New(onChange func(file string), files ...string) *Watcher {
	w := &Watcher{
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   slog.With("component", "watch"),
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		f = filepath.Clean(f)
		w.files[f] = true
		w.dirs[filepath.Dir(f)] = true
	}
	return w
}

// SetDebounce overrides the debounce window.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Empty reports whether there is nothing to watch.
func (w *Watcher) Empty() bool {
	return len(w.files) == 0
}

// Run blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for dir := range w.dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
		w.logger.Debug("watching for account changes", "dir", dir)
	}

	var (
		mu            sync.Mutex
		debounceTimer *time.Timer
		lastFile      string
	)

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			mu.Unlock()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Clean(event.Name)
			if !w.files[name] {
				continue
			}
			w.logger.Debug("tier file changed", "file", name, "op", event.Op)

			mu.Lock()
			lastFile = name
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				mu.Lock()
				f := lastFile
				mu.Unlock()
				if ctx.Err() != nil {
					return
				}
				w.onChange(f)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}
