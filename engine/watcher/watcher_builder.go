package watcher

import (
	"io/fs"
	"log/slog"
)

// WatcherBuilderOption is a functional option used to configure a Watcher during construction.
type WatcherBuilderOption func(*watcher)

// WithLogger sets the structured logger. Defaults to slog.Default().
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - WatcherBuilderOption: a function that sets the logger
func WithLogger(l *slog.Logger) WatcherBuilderOption {
	return func(w *watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithNotify enables OS change notifications for watched directories. Files created after
// AddPathToWatch are then picked up and reported as modified, and deleted files are dropped
// from the watch set. Notifications are queued and only applied by CheckWatchedFiles.
//
// Parameters:
//   - enabled: whether to use change notifications
//
// Returns:
//   - WatcherBuilderOption: a function that toggles change notifications
func WithNotify(enabled bool) WatcherBuilderOption {
	return func(w *watcher) {
		w.notifyEnabled = enabled
	}
}

func withStat(stat func(string) (fs.FileInfo, error)) WatcherBuilderOption {
	return func(w *watcher) {
		w.stat = stat
	}
}
