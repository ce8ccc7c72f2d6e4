package throttle

import "time"

// Option applies a configuration option to the in-memory ledger.
type Option func(*inMemoryLedger)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *inMemoryLedger) {
		if now != nil {
			l.now = now
		}
	}
}
