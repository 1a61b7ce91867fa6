// Package watcher detects on-disk changes to shader sources by polling modification times.
// Polling is driven explicitly by the owner, so every notification is delivered on the
// polling goroutine.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/adria-go/common"
	"github.com/fsnotify/fsnotify"
)

// ErrStatFailure is logged and counted when a known file cannot be stat'ed during a poll.
var ErrStatFailure = errors.New("watcher: stat failure")

// watchRoot is a directory registered with AddPathToWatch.
type watchRoot struct {
	recursive bool
}

// watcher is the implementation of the Watcher interface.
type watcher struct {
	logger *slog.Logger
	stat   func(string) (fs.FileInfo, error)

	mu           sync.Mutex
	files        map[string]time.Time
	roots        map[string]watchRoot
	statFailures int

	fileModified common.Event[string]

	notifyEnabled bool
	notify        *notifier
}

// Watcher tracks the modification time of a set of files and reports the ones that changed
// since the previous poll.
type Watcher interface {
	// AddPathToWatch snapshots the modification time of a file, or of every regular file in
	// a directory.
	//
	// Parameters:
	//   - path: a file or directory
	//   - recursive: whether to descend into subdirectories of a directory
	//
	// Returns:
	//   - error: an error if path does not exist or the directory cannot be walked
	AddPathToWatch(path string, recursive bool) error

	// RemovePath stops watching a file, or every file under a directory.
	//
	// Parameters:
	//   - path: a path previously added, or any file or directory inside one
	RemovePath(path string)

	// CheckWatchedFiles polls every watched file. Each file whose modification time changed
	// is re-snapshotted and FileModified fires for it once, in sorted path order. A file that
	// cannot be stat'ed is skipped for this poll and keeps its snapshot.
	//
	// Returns:
	//   - []string: the changed paths in the order they were reported
	CheckWatchedFiles() []string

	// FileModified returns the event fired for every changed path.
	//
	// Returns:
	//   - *common.Event[string]: the modified-file event
	FileModified() *common.Event[string]

	// WatchedFiles returns the watched paths, sorted.
	WatchedFiles() []string

	// StatFailures returns the number of stat failures seen across all polls.
	StatFailures() int

	// Close releases the change notification backend, if enabled.
	Close() error
}

var _ Watcher = &watcher{}

// NewWatcher creates a Watcher.
//
// Parameters:
//   - opts: optional configuration
//
// Returns:
//   - Watcher: the watcher
//   - error: an error if the notification backend could not be started
func NewWatcher(opts ...WatcherBuilderOption) (Watcher, error) {
	w := &watcher{
		logger: slog.Default(),
		stat:   os.Stat,
		files:  make(map[string]time.Time),
		roots:  make(map[string]watchRoot),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.notifyEnabled {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("watcher: failed to start change notifications: %w", err)
		}
		w.notify = newNotifier(fsw, w.logger)
	}
	return w, nil
}

func (w *watcher) AddPathToWatch(path string, recursive bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watcher: invalid path %q: %w", path, err)
	}
	info, err := w.stat(abs)
	if err != nil {
		return fmt.Errorf("watcher: cannot watch %q: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if info.Mode().IsRegular() {
		w.files[abs] = info.ModTime()
		return nil
	}
	if !info.IsDir() {
		return fmt.Errorf("watcher: %q is neither a file nor a directory", path)
	}

	w.roots[abs] = watchRoot{recursive: recursive}
	return w.scanDir(abs, recursive)
}

// scanDir snapshots every regular file under dir. Callers hold w.mu.
func (w *watcher) scanDir(dir string, recursive bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && !recursive {
				return filepath.SkipDir
			}
			if w.notify != nil {
				if err := w.notify.add(p); err != nil {
					w.logger.Warn("change notifications unavailable for directory", "dir", p, "error", err)
				}
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if _, known := w.files[p]; !known {
			w.files[p] = info.ModTime()
		}
		return nil
	})
}

func (w *watcher) RemovePath(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for p := range w.files {
		if within(p, abs) {
			delete(w.files, p)
		}
	}
	for root := range w.roots {
		if within(root, abs) {
			delete(w.roots, root)
			if w.notify != nil {
				w.notify.remove(root)
			}
		}
	}
}

func (w *watcher) CheckWatchedFiles() []string {
	w.mu.Lock()
	changed := make(map[string]struct{})
	if w.notify != nil {
		for _, ev := range w.notify.drain() {
			w.applyNotification(ev, changed)
		}
	}

	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	for _, p := range paths {
		info, err := w.stat(p)
		if err != nil {
			w.statFailures++
			w.logger.Debug("watched file could not be stat'ed", "path", p, "error", fmt.Errorf("%w: %w", ErrStatFailure, err))
			continue
		}
		if mt := info.ModTime(); !mt.Equal(w.files[p]) {
			w.files[p] = mt
			changed[p] = struct{}{}
		}
	}
	w.mu.Unlock()

	out := make([]string, 0, len(changed))
	for p := range changed {
		out = append(out, p)
	}
	slices.Sort(out)
	for _, p := range out {
		w.logger.Debug("file modified", "path", p)
		w.fileModified.Broadcast(p)
	}
	return out
}

// applyNotification folds one queued change notification into the snapshot. Callers hold w.mu.
func (w *watcher) applyNotification(ev notification, changed map[string]struct{}) {
	if !w.underRoot(ev.path) {
		return
	}
	switch ev.op {
	case opCreated:
		info, err := w.stat(ev.path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if root, ok := w.rootFor(ev.path); ok && root.recursive {
				if err := w.scanDir(ev.path, true); err != nil {
					w.logger.Debug("failed to scan new directory", "dir", ev.path, "error", err)
				}
			}
			return
		}
		if !info.Mode().IsRegular() {
			return
		}
		w.files[ev.path] = info.ModTime()
		changed[ev.path] = struct{}{}
	case opRemoved:
		for p := range w.files {
			if within(p, ev.path) {
				delete(w.files, p)
				delete(changed, p)
			}
		}
	}
}

// underRoot reports whether p is inside a watched directory, honoring non-recursive roots.
func (w *watcher) underRoot(p string) bool {
	_, ok := w.rootFor(p)
	return ok
}

func (w *watcher) rootFor(p string) (watchRoot, bool) {
	for root, cfg := range w.roots {
		if filepath.Dir(p) == root || (cfg.recursive && within(p, root)) {
			return cfg, true
		}
	}
	return watchRoot{}, false
}

func (w *watcher) FileModified() *common.Event[string] {
	return &w.fileModified
}

func (w *watcher) WatchedFiles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func (w *watcher) StatFailures() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.statFailures
}

func (w *watcher) Close() error {
	if w.notify == nil {
		return nil
	}
	return w.notify.close()
}

// within reports whether p is dir or a path below it.
func within(p, dir string) bool {
	if p == dir {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator))
}
