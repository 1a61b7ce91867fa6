package watcher

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type notificationOp int

const (
	opCreated notificationOp = iota
	opRemoved
)

// notification is a queued add or delete reported by the OS.
type notification struct {
	op   notificationOp
	path string
}

// notifier collects fsnotify events on a background goroutine and hands them to the
// polling goroutine through drain. Write events are ignored; modification is detected by
// polling.
type notifier struct {
	fsw    *fsnotify.Watcher
	logger *slog.Logger

	mu    sync.Mutex
	queue []notification

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newNotifier(fsw *fsnotify.Watcher, logger *slog.Logger) *notifier {
	n := &notifier{
		fsw:    fsw,
		logger: logger,
		done:   make(chan struct{}),
	}
	n.wg.Add(1)
	go n.run()
	return n
}

func (n *notifier) run() {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			return
		case ev, ok := <-n.fsw.Events:
			if !ok {
				return
			}
			path := filepath.Clean(ev.Name)
			switch {
			case ev.Has(fsnotify.Create):
				n.push(notification{op: opCreated, path: path})
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				n.push(notification{op: opRemoved, path: path})
			}
		case err, ok := <-n.fsw.Errors:
			if !ok {
				return
			}
			n.logger.Warn("change notification error", "error", err)
		}
	}
}

func (n *notifier) push(ev notification) {
	n.mu.Lock()
	n.queue = append(n.queue, ev)
	n.mu.Unlock()
}

// drain returns and clears the queued notifications in arrival order.
func (n *notifier) drain() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.queue
	n.queue = nil
	return out
}

func (n *notifier) add(dir string) error {
	return n.fsw.Add(dir)
}

func (n *notifier) remove(dir string) {
	_ = n.fsw.Remove(dir)
}

// pending returns the number of queued notifications.
func (n *notifier) pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

func (n *notifier) close() error {
	var err error
	n.once.Do(func() {
		close(n.done)
		err = n.fsw.Close()
		n.wg.Wait()
	})
	return err
}
