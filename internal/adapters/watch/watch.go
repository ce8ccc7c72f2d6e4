// Package watch defines the file-change notification capability consumed by
// the event store, plus the production fsnotify implementation. Tests supply
// a synthetic Watcher instead of touching the real filesystem.
package watch

// Op classifies a file-change notification.
type Op int

const (
	// Create reports a new file in the watched directory.
	Create Op = iota
	// Modify reports changed file content.
	Modify
	// Remove reports a deleted or renamed-away file.
	Remove
)

// String returns the op name for logging.
func (o Op) String() string {
	switch o {
	case Create:
		return "create"
	case Modify:
		return "modify"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is one file-change notification.
type Event struct {
	Path string
	Op   Op
}

// Watcher streams create/modify/remove events for files in one directory.
type Watcher interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}
