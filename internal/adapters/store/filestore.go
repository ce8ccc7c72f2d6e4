package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/angelosachet/AC-websocket-server/internal/adapters/watch"
	"github.com/angelosachet/AC-websocket-server/internal/domain/model"
	"github.com/angelosachet/AC-websocket-server/pkg/debounce"
	"github.com/angelosachet/AC-websocket-server/pkg/logger"
	"github.com/angelosachet/AC-websocket-server/pkg/metrics"
)

const eventFileExt = ".json"

// defaultSelfWriteWindow is how long the store ignores watcher events for a
// file it just wrote itself. Longer windows risk swallowing a genuine
// operator edit landing right after an own write; shorter windows risk
// reloading the store's own write over newer cached state. One second covers
// the rename-to-notification latency on every platform fsnotify supports.
const defaultSelfWriteWindow = time.Second

// FileStore implements Store over a directory of JSON event files.
type FileStore struct {
	mu    sync.Mutex
	cache map[string]*model.EventTable // event name -> table

	dir        string
	delay      time.Duration
	retryMax   uint64
	retryDelay time.Duration

	pending *debounce.Set

	// selfWrites records slugs the store itself wrote recently, so its own
	// writes coming back through the watcher are not reloaded over newer
	// cached state. Entries older than selfWriteWindow no longer suppress.
	selfWrites      map[string]time.Time
	selfWriteWindow time.Duration

	log logger.Logger
}

// NewFileStore creates a store over dir, creating the directory if needed.
func NewFileStore(ctx context.Context, dir string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataDir, err)
	}

	s := &FileStore{
		cache:           make(map[string]*model.EventTable),
		dir:             dir,
		delay:           5 * time.Second,
		retryMax:        3,
		retryDelay:      200 * time.Millisecond,
		pending:         debounce.NewSet(),
		selfWrites:      make(map[string]time.Time),
		selfWriteWindow: defaultSelfWriteWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("store")
	}
	return s, nil
}

// Get returns the table for event, loading it from disk on first reference.
func (s *FileStore) Get(ctx context.Context, event string) (*model.EventTable, bool, error) {
	s.mu.Lock()
	if t, ok := s.cache[event]; ok {
		s.mu.Unlock()
		return t.Clone(), true, nil
	}
	s.mu.Unlock()

	t, err := s.loadFile(s.filePath(event))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		// A broken file never fabricates data: report absent and leave the
		// durable copy alone until the next accepted improvement rewrites it.
		metrics.RecordStoreLoadError()
		s.log.Warn(ctx, "event file unreadable, treating as absent",
			logger.String("event", event), logger.Error(err))
		return nil, false, nil
	}
	metrics.RecordStoreLoad()

	s.mu.Lock()
	s.cache[event] = t
	metrics.UpdateResidentEvents(len(s.cache))
	s.mu.Unlock()
	return t.Clone(), true, nil
}

// Put replaces the cached table and schedules a debounced write.
func (s *FileStore) Put(ctx context.Context, event string, table *model.EventTable) {
	s.mu.Lock()
	s.cache[event] = table.Clone()
	metrics.UpdateResidentEvents(len(s.cache))
	s.mu.Unlock()

	s.scheduleWrite(event)
}

// Update applies fn to the event's table under the store lock, creating the
// table on first reference. fn reports whether it changed the table; a change
// schedules a debounced write. Concurrent updates to the same event are
// serialized here, so one caller's accepted change can never be erased by
// another caller racing through a read-modify-write of its own.
func (s *FileStore) Update(ctx context.Context, event string, fn func(*model.EventTable) bool) (bool, error) {
	s.mu.Lock()

	t, resident := s.cache[event]
	loaded := false
	if !resident {
		fromDisk, err := s.loadFile(s.filePath(event))
		switch {
		case err == nil:
			metrics.RecordStoreLoad()
			t = fromDisk
			loaded = true
		case errors.Is(err, os.ErrNotExist):
			t = model.NewEventTable(event, time.Now())
		default:
			// A broken file never fabricates data: start fresh and let the
			// next accepted change rewrite the durable copy.
			metrics.RecordStoreLoadError()
			s.log.Warn(ctx, "event file unreadable, starting fresh",
				logger.String("event", event), logger.Error(err))
			t = model.NewEventTable(event, time.Now())
		}
	}

	changed := fn(t)
	if changed || loaded {
		s.cache[event] = t
		metrics.UpdateResidentEvents(len(s.cache))
	}
	s.mu.Unlock()

	if changed {
		s.scheduleWrite(event)
	}
	return changed, nil
}

func (s *FileStore) scheduleWrite(event string) {
	s.pending.Schedule(event, s.delay, func() {
		s.writeEvent(context.Background(), event)
		metrics.UpdatePendingWrites(s.pending.Len())
	})
	metrics.UpdatePendingWrites(s.pending.Len())
}

// Flush cancels all pending timers and writes every resident table now.
func (s *FileStore) Flush(ctx context.Context) error {
	s.pending.CancelAll()
	metrics.UpdatePendingWrites(0)

	s.mu.Lock()
	events := make([]string, 0, len(s.cache))
	for name := range s.cache {
		events = append(events, name)
	}
	s.mu.Unlock()

	var errs []error
	for _, name := range events {
		if err := s.writeEvent(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Invalidate evicts one resident entry.
func (s *FileStore) Invalidate(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, event)
	metrics.UpdateResidentEvents(len(s.cache))
}

// InvalidateAll evicts every resident entry.
func (s *FileStore) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*model.EventTable)
	metrics.UpdateResidentEvents(0)
}

// ReconcileExternalChange applies one file-change notification so operator
// edits to event files take effect without a restart.
func (s *FileStore) ReconcileExternalChange(ctx context.Context, path string, op watch.Op) {
	if !strings.HasSuffix(path, eventFileExt) {
		return
	}
	slug := strings.TrimSuffix(filepath.Base(path), eventFileExt)

	switch op {
	case watch.Remove:
		s.evictBySlug(slug)
		s.log.Info(ctx, "event file removed externally, cache evicted",
			logger.String("file", filepath.Base(path)))

	case watch.Create, watch.Modify:
		if s.isSelfWrite(slug) {
			return
		}
		t, err := s.loadFile(path)
		if err != nil {
			// Previous cached value stays authoritative.
			metrics.RecordStoreLoadError()
			s.log.Warn(ctx, "external change unreadable, keeping cached value",
				logger.String("file", filepath.Base(path)), logger.Error(err))
			return
		}
		name := t.EventName
		if name == "" {
			name = slug
			t.EventName = name
		}

		s.mu.Lock()
		// The file may be cached under a name whose slug matches but whose
		// spelling differs from the content; drop that entry first.
		for cached := range s.cache {
			if cached != name && model.Slug(cached) == slug {
				delete(s.cache, cached)
			}
		}
		s.cache[name] = t
		metrics.UpdateResidentEvents(len(s.cache))
		s.mu.Unlock()

		metrics.RecordExternalReload()
		s.log.Info(ctx, "event reloaded from external change",
			logger.String("event", name), logger.Int("pilots", len(t.Pilots)))
	}
}

// Watch consumes w's streams until ctx is done or the event stream closes.
func (s *FileStore) Watch(ctx context.Context, w watch.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			s.ReconcileExternalChange(ctx, ev.Path, ev.Op)
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			s.log.Warn(ctx, "watcher error", logger.Error(err))
		}
	}
}

// Close stops pending timers without writing.
func (s *FileStore) Close() {
	s.pending.Close()
	metrics.UpdatePendingWrites(0)
}

// ResidentEvents returns the names of events currently cached.
func (s *FileStore) ResidentEvents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.cache))
	for name := range s.cache {
		names = append(names, name)
	}
	return names
}

func (s *FileStore) filePath(event string) string {
	return filepath.Join(s.dir, model.Slug(event)+eventFileExt)
}

func (s *FileStore) loadFile(path string) (*model.EventTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t model.EventTable
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedFile, filepath.Base(path), err)
	}
	if t.Pilots == nil {
		t.Pilots = make(map[string]model.BestRecord)
	}
	return &t, nil
}

// writeEvent persists the current cached table for event. The table is
// snapshotted under the lock; disk I/O happens outside it.
func (s *FileStore) writeEvent(ctx context.Context, event string) error {
	s.mu.Lock()
	t, ok := s.cache[event]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	snapshot := t.Clone()
	s.mu.Unlock()

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		metrics.RecordStoreWriteError()
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, event, err)
	}

	slug := model.Slug(event)
	path := filepath.Join(s.dir, slug+eventFileExt)
	op := func() error {
		return atomicWrite(path, raw)
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), s.retryMax)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		// The cache stays the latest truth; the durable copy is stale until
		// a future write succeeds.
		metrics.RecordStoreWriteError()
		s.log.Error(ctx, "event file write abandoned",
			logger.String("event", event), logger.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, event, err)
	}

	s.markSelfWrite(slug)
	metrics.RecordStoreWrite()
	s.log.Debug(ctx, "event file written",
		logger.String("event", event), logger.Int("pilots", len(snapshot.Pilots)))
	return nil
}

func (s *FileStore) evictBySlug(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.cache {
		if model.Slug(name) == slug {
			delete(s.cache, name)
		}
	}
	metrics.UpdateResidentEvents(len(s.cache))
}

func (s *FileStore) markSelfWrite(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfWrites[slug] = time.Now()
}

func (s *FileStore) isSelfWrite(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.selfWrites[slug]
	if !ok {
		return false
	}
	if time.Since(at) > s.selfWriteWindow {
		delete(s.selfWrites, slug)
		return false
	}
	return true
}

// atomicWrite writes data through a temp file and rename so readers and the
// watcher never observe a half-written file.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
