// Package app provides the core service that wires the relay together:
// transport, broadcast fan-out, reconciliation, and the event store.
package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/angelosachet/AC-websocket-server/internal/adapters/store"
	"github.com/angelosachet/AC-websocket-server/internal/adapters/watch"
	"github.com/angelosachet/AC-websocket-server/internal/adapters/ws"
	"github.com/angelosachet/AC-websocket-server/internal/domain/model"
	"github.com/angelosachet/AC-websocket-server/internal/domain/reconcile"
	"github.com/angelosachet/AC-websocket-server/internal/domain/throttle"
	"github.com/angelosachet/AC-websocket-server/pkg/logger"
)

// Service owns the relay's components. Construct once at startup; multiple
// independent instances (e.g. under test) do not interfere.
type Service struct {
	mu sync.RWMutex

	// Configuration
	dataDir       string
	debounce      time.Duration
	throttleWin   time.Duration
	maxSimID      int
	defaultEvent  string
	writeRetryMax int
	writeRetryDel time.Duration
	readLimit     int64
	pingInterval  time.Duration
	writeTimeout  time.Duration
	watchEnabled  bool

	// Components
	store       *store.FileStore
	ledger      throttle.Ledger
	reconciler  *reconcile.Reconciler
	registry    *ws.Registry
	broadcaster *ws.Broadcaster
	handler     *ws.Handler
	watcher     watch.Watcher
	watchStop   context.CancelFunc

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithDataDir sets the directory holding event files.
func WithDataDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.dataDir = dir
		}
	}
}

// WithDebounce sets the write quiet period.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithThrottleWindow sets the per-pilot reconciliation throttle window.
func WithThrottleWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.throttleWin = d
		}
	}
}

// WithMaxSimID bounds the simulator identifier accepted from producers.
func WithMaxSimID(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSimID = n
		}
	}
}

// WithDefaultEvent sets the event name used for samples that carry none.
func WithDefaultEvent(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.defaultEvent = name
		}
	}
}

// WithWriteRetry bounds disk write retries.
func WithWriteRetry(max int, delay time.Duration) Option {
	return func(s *Service) {
		if max >= 0 {
			s.writeRetryMax = max
		}
		if delay > 0 {
			s.writeRetryDel = delay
		}
	}
}

// WithReadLimit caps the size of one inbound websocket message.
func WithReadLimit(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.readLimit = n
		}
	}
}

// WithPingInterval sets the websocket keepalive period.
func WithPingInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithWriteTimeout sets the websocket control-frame write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithWatchEnabled toggles the external file-change watcher.
func WithWatchEnabled(enabled bool) Option {
	return func(s *Service) {
		s.watchEnabled = enabled
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dataDir:       "./data",
		debounce:      5 * time.Second,
		throttleWin:   5 * time.Second,
		maxSimID:      16,
		defaultEvent:  model.DefaultEventName,
		writeRetryMax: 3,
		writeRetryDel: 200 * time.Millisecond,
		readLimit:     1 << 20,
		pingInterval:  30 * time.Second,
		writeTimeout:  10 * time.Second,
		watchEnabled:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting telemetry relay...")

	st, err := store.NewFileStore(ctx, s.dataDir,
		store.WithDebounce(s.debounce),
		store.WithWriteRetry(s.writeRetryMax, s.writeRetryDel),
	)
	if err != nil {
		return err
	}
	s.store = st

	s.ledger = throttle.NewInMemoryLedger(s.throttleWin)
	s.reconciler = reconcile.New(s.store, s.ledger,
		reconcile.WithDefaultEvent(s.defaultEvent),
	)
	s.registry = ws.NewRegistry(ws.WithWriteTimeout(s.writeTimeout))
	s.broadcaster = ws.NewBroadcaster(s.registry)
	s.handler = ws.NewHandler(s.registry, s,
		ws.WithMaxSimID(s.maxSimID),
		ws.WithReadLimit(s.readLimit),
		ws.WithPingInterval(s.pingInterval),
	)

	if s.watchEnabled {
		w, err := watch.NewFSWatcher(s.dataDir)
		if err != nil {
			// The relay works without the watcher; external edits just
			// need a restart to take effect.
			s.logger.Warn(ctx, "file watcher unavailable", logger.Error(err))
		} else {
			s.watcher = w
			watchCtx, cancel := context.WithCancel(context.Background())
			s.watchStop = cancel
			go s.store.Watch(watchCtx, w)
		}
	}

	s.started = true
	s.logger.Info(ctx, "telemetry relay started",
		logger.String("dataDir", s.dataDir),
		logger.Int64("debounceMs", s.debounce.Milliseconds()),
		logger.Int64("throttleMs", s.throttleWin.Milliseconds()),
		logger.Int("maxSimID", s.maxSimID),
	)
	return nil
}

// Stop gracefully shuts the service down. Pending writes are flushed before
// any connection closes, so no accepted improvement is lost.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping telemetry relay...")

	if err := s.store.Flush(ctx); err != nil {
		s.logger.Error(ctx, "flush on shutdown failed", logger.Error(err))
	}
	if s.watchStop != nil {
		s.watchStop()
	}
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	s.registry.CloseAll()
	s.store.Close()

	s.started = false
	s.logger.Info(ctx, "telemetry relay stopped")
}

// Ingest relays one validated sample: broadcast to consumers first, then
// reconcile the best record. The broadcast result never depends on
// persistence; reconcile errors are logged, not surfaced to the producer.
func (s *Service) Ingest(ctx context.Context, sample *model.TelemetrySample) {
	s.broadcaster.Distribute(ctx, sample)

	if _, err := s.reconciler.Reconcile(ctx, sample); err != nil {
		s.logger.Warn(ctx, "reconcile failed",
			logger.String("pilot", sample.PilotName), logger.Error(err))
	}
}

// RegisterRoutes attaches the websocket upgrade endpoints to mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.handler.Register(mux)
}

// GetStats returns service statistics for monitoring. The shape matches the
// stats message pushed to consumers on connect.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started": s.started,
		"dataDir": s.dataDir,
	}
	if s.started {
		rs := s.registry.Stats()
		stats["producers"] = rs.Producers
		stats["consumers"] = rs.Consumers
		stats["broadcasts"] = rs.Broadcasts
		stats["uptimeSeconds"] = rs.UptimeSeconds
		stats["activeSims"] = rs.ActiveSims
		stats["residentEvents"] = s.store.ResidentEvents()
	}
	return stats
}

// Registry exposes the connection registry for transport wiring and tests.
func (s *Service) Registry() *ws.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}
