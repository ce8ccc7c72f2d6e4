// Package store implements the event store: an in-memory cache of per-event
// best-record tables backed by one JSON file per event, with debounced
// writes, external-edit pickup, and cache invalidation.
package store

import (
	"context"

	"github.com/angelosachet/AC-websocket-server/internal/adapters/watch"
	"github.com/angelosachet/AC-websocket-server/internal/domain/model"
)

// Store provides read/write access to per-event best-record tables.
// The store is the single writer of each on-disk file; external edits are
// only ever read, and the last writer wins entirely for that event.
type Store interface {
	// Get returns the table for event, loading it from disk on first
	// reference. The second return is false when neither cache nor disk
	// holds the event; that is not an error.
	Get(ctx context.Context, event string) (*model.EventTable, bool, error)

	// Put replaces the cached table immediately and schedules a debounced
	// disk write, coalescing rapid successive updates to the same event.
	Put(ctx context.Context, event string, table *model.EventTable)

	// Update applies fn to the event's table under the store lock, creating
	// it on first reference. fn reports whether it changed the table; a
	// change schedules a debounced write. Read-modify-write cycles that must
	// not lose concurrent changes go through Update, never Get+Put.
	Update(ctx context.Context, event string, fn func(*model.EventTable) bool) (bool, error)

	// Flush cancels all pending write timers and writes every resident
	// table to disk now. Used during orderly shutdown.
	Flush(ctx context.Context) error

	// Invalidate evicts one resident entry; the next Get reloads from disk.
	Invalidate(event string)

	// InvalidateAll evicts every resident entry.
	InvalidateAll()

	// ReconcileExternalChange applies one file-change notification: a
	// modification reloads the file into the cache, a removal evicts the
	// matching entry. Malformed content is logged and ignored.
	ReconcileExternalChange(ctx context.Context, path string, op watch.Op)

	// Watch consumes a watcher's event stream until ctx is done or the
	// stream closes.
	Watch(ctx context.Context, w watch.Watcher)

	// Close stops pending timers without writing. Prefer Flush on shutdown.
	Close()
}
