package watch

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// FSWatcher adapts fsnotify to the Watcher capability.
type FSWatcher struct {
	inner  *fsnotify.Watcher
	events chan Event
	done   chan struct{}
}

// NewFSWatcher watches dir for file changes. The directory must exist.
func NewFSWatcher(dir string) (*FSWatcher, error) {
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWatcherInit, err)
	}
	if err := inner.Add(dir); err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("%w: %w", ErrWatcherInit, err)
	}

	w := &FSWatcher{
		inner:  inner,
		events: make(chan Event),
		done:   make(chan struct{}),
	}
	go w.translate()
	return w, nil
}

// translate maps fsnotify ops onto the three ops the store cares about.
// Rename is reported as Remove: the old path no longer holds the file.
func (w *FSWatcher) translate() {
	defer close(w.events)
	for {
		select {
		case ev, ok := <-w.inner.Events:
			if !ok {
				return
			}
			var op Op
			switch {
			case ev.Op.Has(fsnotify.Create):
				op = Create
			case ev.Op.Has(fsnotify.Write):
				op = Modify
			case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
				op = Remove
			default:
				continue // chmod and friends are not content changes
			}
			select {
			case w.events <- Event{Path: ev.Name, Op: op}:
			case <-w.done:
				return
			}
		case <-w.done:
			return
		}
	}
}

// Events returns the translated event stream.
func (w *FSWatcher) Events() <-chan Event { return w.events }

// Errors returns the underlying watcher's error stream.
func (w *FSWatcher) Errors() <-chan error { return w.inner.Errors }

// Close stops the watcher and its translation goroutine.
func (w *FSWatcher) Close() error {
	close(w.done)
	return w.inner.Close()
}
