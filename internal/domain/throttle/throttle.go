// Package throttle tracks recently accepted best-lap candidates so an
// unchanged value repeated by a producer's periodic update loop is not
// re-evaluated against the store on every tick.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Ledger decides whether a candidate for a (event, pilot) pair should be
// evaluated or suppressed. Purely advisory memory; never persisted.
type Ledger interface {
	// ShouldProcess reports whether candidate needs evaluation. A candidate
	// equal to the last recorded one within the window is suppressed; any
	// different candidate, or one arriving after the window, records itself
	// and passes through.
	ShouldProcess(ctx context.Context, event, pilot string, candidate int64) bool

	// Forget drops the entry for a pair, forcing the next candidate through.
	Forget(ctx context.Context, event, pilot string)

	Size() int
}

type key struct {
	event string
	pilot string
}

type entry struct {
	candidate int64
	at        time.Time
}

// inMemoryLedger implements Ledger with a plain map guarded by a mutex.
// Entries are lazily overwritten; a periodic sweep is unnecessary because the
// key space is bounded by pilots actively sending.
type inMemoryLedger struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[key]entry

	// now is replaced in tests to step through the window deterministically.
	now func() time.Time
}

// NewInMemoryLedger creates a ledger with the given suppression window.
func NewInMemoryLedger(window time.Duration, opts ...Option) Ledger {
	l := &inMemoryLedger{
		window: window,
		seen:   make(map[key]entry),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *inMemoryLedger) ShouldProcess(_ context.Context, event, pilot string, candidate int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{event: event, pilot: pilot}
	now := l.now()

	if e, ok := l.seen[k]; ok {
		if e.candidate == candidate && now.Sub(e.at) < l.window {
			return false
		}
	}
	l.seen[k] = entry{candidate: candidate, at: now}
	return true
}

func (l *inMemoryLedger) Forget(_ context.Context, event, pilot string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, key{event: event, pilot: pilot})
}

func (l *inMemoryLedger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
