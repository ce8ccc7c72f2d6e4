// Package debounce implements a keyed schedule-or-replace timer set.
//
// Scheduling a key that already has a pending timer replaces it, so a burst
// of updates to the same key collapses into a single callback after a quiet
// period with no further scheduling. CancelAll supports flush-on-shutdown.
package debounce

import (
	"sync"
	"time"
)

// Set manages at most one pending timer per key.
type Set struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool

	// after builds timers; replaced in tests to control firing.
	after func(d time.Duration, fn func()) *time.Timer
}

// Option applies a configuration option to the Set.
type Option func(*Set)

// WithAfterFunc overrides timer construction. Intended for tests that need
// deterministic firing without waiting on the wall clock.
func WithAfterFunc(after func(d time.Duration, fn func()) *time.Timer) Option {
	return func(s *Set) {
		if after != nil {
			s.after = after
		}
	}
}

// NewSet creates an empty timer set.
func NewSet(opts ...Option) *Set {
	s := &Set{
		pending: make(map[string]*time.Timer),
		after:   time.AfterFunc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule arranges for fn to run after delay, replacing any pending timer
// for key. fn runs on the timer goroutine exactly once unless cancelled or
// replaced first.
func (s *Set) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if t, ok := s.pending[key]; ok {
		t.Stop()
	}
	// Stop above can return false: the old timer already fired and its
	// callback is waiting on the lock. The identity check makes that stale
	// callback a no-op instead of running fn or untracking the replacement.
	var t *time.Timer
	t = s.after(delay, func() {
		s.mu.Lock()
		cur, ok := s.pending[key]
		if !ok || cur != t {
			s.mu.Unlock()
			return
		}
		delete(s.pending, key)
		s.mu.Unlock()
		fn()
	})
	s.pending[key] = t
}

// Cancel stops any pending timer for key. Unknown keys are a no-op.
func (s *Set) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.pending[key]; ok {
		t.Stop()
		delete(s.pending, key)
	}
}

// CancelAll stops every pending timer and returns the keys that were still
// pending. Callers that need the side effects (e.g. flush) run them
// explicitly from the returned keys.
func (s *Set) CancelAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.pending))
	for k, t := range s.pending {
		t.Stop()
		keys = append(keys, k)
	}
	s.pending = make(map[string]*time.Timer)
	return keys
}

// Len returns the number of keys with a pending timer.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close cancels everything and rejects future schedules.
func (s *Set) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, t := range s.pending {
		t.Stop()
		delete(s.pending, k)
	}
	s.closed = true
}
