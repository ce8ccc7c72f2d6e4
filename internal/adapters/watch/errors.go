package watch

import "errors"

// Sentinel kinds for watcher errors.
var (
	ErrWatcherInit = errors.New("watcher init failed")
)
