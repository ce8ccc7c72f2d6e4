package ws

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/angelosachet/AC-websocket-server/pkg/logger"
	"github.com/angelosachet/AC-websocket-server/pkg/metrics"
)

// Stats is a read-only snapshot of the registry plus the broadcast counter.
type Stats struct {
	Producers     int    `json:"producers"`
	Consumers     int    `json:"consumers"`
	Broadcasts    uint64 `json:"broadcasts"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	ActiveSims    []int  `json:"activeSims"`
}

// Registry tracks every open producer/consumer connection. Operations never
// fail the caller: teardown races (socket error racing socket close) are
// expected and benign.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	startedAt  time.Time
	broadcasts atomic.Uint64

	writeTimeout time.Duration
	log          logger.Logger
}

// RegistryOption applies a configuration option to the Registry.
type RegistryOption func(*Registry)

// WithWriteTimeout sets the per-write deadline applied to control frames.
func WithWriteTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// WithRegistryLogger sets a custom logger for the registry.
func WithRegistryLogger(log logger.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		conns:        make(map[string]*Conn),
		startedAt:    time.Now(),
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Named("registry")
	}
	return r
}

// Register stores a new connection under a fresh id and returns it.
func (r *Registry) Register(sock socket, role Role) *Conn {
	c := &Conn{
		ID:           uuid.NewString(),
		Role:         role,
		CreatedAt:    time.Now(),
		sock:         sock,
		writeTimeout: r.writeTimeout,
	}
	c.Touch()

	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()

	metrics.RecordConnection(string(role))
	r.updateGauges()
	r.log.Info(context.Background(), "connection registered",
		logger.String("id", c.ID), logger.String("role", string(role)))
	return c
}

// Remove closes and deletes a connection. Idempotent; unknown ids and
// close failures are swallowed.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := c.close(); err != nil {
		// The handle may already be closed by the peer.
		r.log.Debug(context.Background(), "close on remove",
			logger.String("id", id), logger.Error(err))
	}
	r.updateGauges()
	r.log.Info(context.Background(), "connection removed",
		logger.String("id", id), logger.String("role", string(c.Role)))
}

// Get returns the connection for id.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// BindSim records which simulator a producer represents. Consumer ids and
// unknown ids are ignored.
func (r *Registry) BindSim(id string, simID int) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()

	if !ok || c.Role != RoleProducer {
		return
	}
	c.BindSim(simID)
}

// Consumers returns a snapshot of consumer connections for fan-out.
func (r *Registry) Consumers() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		if c.Role == RoleConsumer {
			out = append(out, c)
		}
	}
	return out
}

// IncBroadcasts bumps the total broadcast counter. Owned by the fan-out,
// exposed here for reporting.
func (r *Registry) IncBroadcasts() {
	r.broadcasts.Add(1)
}

// Stats returns a read-only snapshot.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Broadcasts:    r.broadcasts.Load(),
		UptimeSeconds: int64(time.Since(r.startedAt).Seconds()),
		ActiveSims:    []int{},
	}
	sims := make(map[int]struct{})
	for _, c := range r.conns {
		switch c.Role {
		case RoleProducer:
			s.Producers++
			if id := c.SimID(); id > 0 {
				sims[id] = struct{}{}
			}
		case RoleConsumer:
			s.Consumers++
		}
	}
	for id := range sims {
		s.ActiveSims = append(s.ActiveSims, id)
	}
	sort.Ints(s.ActiveSims)
	return s
}

// CloseAll removes every connection. Used on shutdown after the store has
// been flushed.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Remove(id)
	}
}

func (r *Registry) updateGauges() {
	s := r.Stats()
	metrics.UpdateProducersConnected(s.Producers)
	metrics.UpdateConsumersConnected(s.Consumers)
}
