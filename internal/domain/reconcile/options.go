package reconcile

import (
	"time"

	"github.com/angelosachet/AC-websocket-server/pkg/logger"
)

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithDefaultEvent sets the event name used for samples that carry none.
func WithDefaultEvent(name string) Option {
	return func(r *Reconciler) {
		if name != "" {
			r.defaultEvent = name
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets a custom logger for the reconciler.
func WithLogger(log logger.Logger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}
