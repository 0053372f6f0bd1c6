package reload

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/stacklok/toolhive-gateway/internal/loader"
)

// Notifier receives raw change signals
type Notifier interface {
	Notify()
}

// Watcher forwards filesystem changes to module manifests as change signals
type Watcher struct {
	dir      string
	notifier Notifier
	ready    chan struct{}
}

// NewWatcher creates a watcher for the manifest directory dir
func NewWatcher(dir string, notifier Notifier) *Watcher {
	return &Watcher{dir: dir, notifier: notifier, ready: make(chan struct{})}
}

// Ready is closed once the directory is being watched
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is done. Errors from the underlying watcher are logged
// and watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch module directory %s: %w", w.dir, err)
	}
	close(w.ready)
	slog.InfoContext(ctx, "Watching module directory for changes", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping module directory watcher")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}

			if filepath.Clean(event.Name) == filepath.Clean(w.dir) {
				if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					slog.WarnContext(ctx, "Module directory removed, re-watching", "dir", w.dir)
					_ = watcher.Add(w.dir)
					w.notifier.Notify()
				}
				continue
			}
			if !loader.IsManifestFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				slog.DebugContext(ctx, "Module manifest changed", "file", event.Name, "op", event.Op.String())
				w.notifier.Notify()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			slog.ErrorContext(ctx, "File watcher error", "error", err)
		}
	}
}
