package discovery

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/latticeforge/pluginloader/pluginlog"
)

// defaultPollInterval is the bounded wait for the directory-monitor loop.
const defaultPollInterval = 500 * time.Millisecond

// FSWatcher is a concrete Watcher implementation over fsnotify. Shutdown
// is a single channel closed exactly once via sync.Once, never a
// separately read "done" boolean racing the monitor loop.
type FSWatcher struct {
	fsw    *fsnotify.Watcher
	events chan WatchEvent
	done   chan struct{}
	once   sync.Once
	logger *pluginlog.Logger
}

// NewFSWatcher creates an FSWatcher over the given roots. poll bounds how
// promptly the monitor loop notices a closed done channel; zero uses the
// 500ms default.
func NewFSWatcher(roots []string, poll time.Duration, logger *pluginlog.Logger) (*FSWatcher, error) {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if logger == nil {
		logger = pluginlog.Noop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		if err := fsw.Add(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	w := &FSWatcher{
		fsw:    fsw,
		events: make(chan WatchEvent, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
	go w.loop(poll)
	return w, nil
}

func (w *FSWatcher) loop(poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	defer close(w.events)

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			we, ok := translate(ev)
			if !ok {
				continue
			}
			select {
			case w.events <- we:
			case <-w.done:
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("filesystem watch error: %v", err)
		case <-ticker.C:
			// bounded wait so Close is observed promptly even with no
			// filesystem activity
		}
	}
}

func translate(ev fsnotify.Event) (WatchEvent, bool) {
	switch {
	case ev.Op&fsnotify.Create != 0:
		return WatchEvent{Kind: Added, Root: ev.Name}, true
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return WatchEvent{Kind: Removed, Root: ev.Name}, true
	default:
		return WatchEvent{}, false
	}
}

// Events implements Watcher.
func (w *FSWatcher) Events() <-chan WatchEvent { return w.events }

// Close implements Watcher, closing the shutdown channel exactly once.
func (w *FSWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}
