package store

import (
	"time"

	"github.com/angelosachet/AC-websocket-server/pkg/debounce"
	"github.com/angelosachet/AC-websocket-server/pkg/logger"
)

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithDebounce sets the quiet period before a dirty table is written.
func WithDebounce(d time.Duration) Option {
	return func(s *FileStore) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithWriteRetry bounds disk write retries: max attempts after the first,
// with a constant delay between them.
func WithWriteRetry(max int, delay time.Duration) Option {
	return func(s *FileStore) {
		if max >= 0 {
			s.retryMax = uint64(max)
		}
		if delay > 0 {
			s.retryDelay = delay
		}
	}
}

// WithSelfWriteWindow sets how long the store's own writes suppress watcher
// events for the same file. Longer windows can swallow a genuine operator
// edit landing right after an own write.
func WithSelfWriteWindow(d time.Duration) Option {
	return func(s *FileStore) {
		if d > 0 {
			s.selfWriteWindow = d
		}
	}
}

// WithDebounceSet replaces the timer set. Intended for tests that need
// deterministic firing.
func WithDebounceSet(set *debounce.Set) Option {
	return func(s *FileStore) {
		if set != nil {
			s.pending = set
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(log logger.Logger) Option {
	return func(s *FileStore) {
		if log != nil {
			s.log = log
		}
	}
}
