package config

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay is the quiet period after the last write before a reload.
const DefaultReloadDelay = 100 * time.Millisecond

// ChangeListener receives the names of the configuration properties that changed.
type ChangeListener func(properties []string)

// Watcher reloads the repository configuration when its file changes and notifies
// the registered listeners.
type Watcher struct {
	repos     *Repositories
	fsWatcher *fsnotify.Watcher
	delay     time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	timer     *time.Timer
	listeners []ChangeListener
}

// NewWatcher watches the directory holding the configuration file, so editors that
// replace the file through a rename are picked up.
func NewWatcher(repos *Repositories, delay time.Duration, logger *slog.Logger) (*Watcher, error) {
	if repos.Path() == "" {
		return nil, errors.New("repository configuration has no file to watch")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if delay <= 0 {
		delay = DefaultReloadDelay
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(repos.Path())); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		repos:     repos,
		fsWatcher: fsWatcher,
		delay:     delay,
		logger:    logger,
	}, nil
}

// OnChange registers a listener.
func (w *Watcher) OnChange(l ChangeListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// Start processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Start(ctx context.Context) {
	target := filepath.Clean(w.repos.Path())
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// schedule debounces bursts of events into a single reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.reload)
}

func (w *Watcher) reload() {
	changed, err := w.repos.Reload()
	if err != nil {
		w.logger.Warn("Failed to reload repository configuration, keeping previous", "path", w.repos.Path(), "error", err)
		return
	}
	if len(changed) == 0 {
		return
	}
	w.logger.Info("Repository configuration reloaded", "changed", changed, "version", w.repos.Version())

	w.mu.Lock()
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.Unlock()
	for _, l := range listeners {
		l(changed)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsWatcher.Close()
}
