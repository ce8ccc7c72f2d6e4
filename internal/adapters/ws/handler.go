package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angelosachet/AC-websocket-server/internal/domain/model"
	"github.com/angelosachet/AC-websocket-server/pkg/logger"
	"github.com/angelosachet/AC-websocket-server/pkg/metrics"
)

// Ingestor receives validated telemetry samples. Implemented by the app
// service, which runs the broadcast and reconcile paths.
type Ingestor interface {
	Ingest(ctx context.Context, sample *model.TelemetrySample)
}

// Handler upgrades HTTP requests into producer/consumer connections and
// runs their read loops.
type Handler struct {
	registry *Registry
	ingest   Ingestor

	maxSimID     int
	readLimit    int64
	pingInterval time.Duration

	upgrader websocket.Upgrader
	log      logger.Logger
}

// HandlerOption applies a configuration option to the Handler.
type HandlerOption func(*Handler)

// WithMaxSimID bounds the simulator identifier accepted from producers.
func WithMaxSimID(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxSimID = n
		}
	}
}

// WithReadLimit caps the size of one inbound message.
func WithReadLimit(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithPingInterval sets the keepalive ping period.
func WithPingInterval(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithHandlerLogger sets a custom logger for the handler.
func WithHandlerLogger(log logger.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHandler creates a Handler over registry, feeding valid samples to
// ingest.
func NewHandler(registry *Registry, ingest Ingestor, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry:     registry,
		ingest:       ingest,
		maxSimID:     16,
		readLimit:    1 << 20,
		pingInterval: 30 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.Named("ws")
	}
	return h
}

// Register installs the upgrade routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/producer", h.serve(RoleProducer))
	mux.HandleFunc("/consumer", h.serve(RoleConsumer))
}

func (h *Handler) serve(role Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sock, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn(r.Context(), "upgrade failed",
				logger.String("remote", r.RemoteAddr), logger.Error(err))
			return
		}
		sock.SetReadLimit(h.readLimit)

		conn := h.registry.Register(sock, role)
		defer h.registry.Remove(conn.ID)

		sock.SetPongHandler(func(string) error {
			conn.Touch()
			return nil
		})

		if err := conn.WriteJSON(Ack{Type: MsgConnected, Message: greeting(role, conn.ID)}); err != nil {
			h.log.Warn(r.Context(), "greeting failed", logger.String("id", conn.ID), logger.Error(err))
			return
		}
		if role == RoleConsumer {
			if err := conn.WriteJSON(StatsMessage{Type: MsgStats, Data: h.registry.Stats()}); err != nil {
				h.log.Warn(r.Context(), "stats push failed", logger.String("id", conn.ID), logger.Error(err))
				return
			}
		}

		done := make(chan struct{})
		defer close(done)
		go h.pingLoop(conn, done)

		h.readLoop(r.Context(), conn, sock, role)
	}
}

func (h *Handler) pingLoop(conn *Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				// The read loop observes the dead socket and removes the
				// connection; nothing more to do here.
				return
			}
		case <-done:
			return
		}
	}
}

// readLoop pumps inbound frames until the socket closes or errors. Exit
// triggers the deferred registry removal.
func (h *Handler) readLoop(ctx context.Context, conn *Conn, sock *websocket.Conn, role Role) {
	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				h.log.Debug(ctx, "read loop ended",
					logger.String("id", conn.ID), logger.Error(err))
			}
			return
		}
		conn.Touch()

		if role != RoleProducer {
			// Consumers only receive; inbound frames just count as activity.
			continue
		}
		metrics.RecordMessageReceived()
		h.handleProducerFrame(ctx, conn, raw)
	}
}

// handleProducerFrame validates one producer frame. Protocol errors are
// answered with an error ack to that producer only; the sample is neither
// broadcast nor reconciled.
func (h *Handler) handleProducerFrame(ctx context.Context, conn *Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.reject(ctx, conn, "malformed message: not valid JSON")
		return
	}
	if env.Type != MsgSimulatorUpdate {
		h.reject(ctx, conn, fmt.Sprintf("unsupported message type %q", env.Type))
		return
	}
	if len(env.Data) == 0 {
		h.reject(ctx, conn, "missing data payload")
		return
	}

	var sample model.TelemetrySample
	if err := json.Unmarshal(env.Data, &sample); err != nil {
		h.reject(ctx, conn, "malformed data payload")
		return
	}
	if msg, ok := h.validate(&sample); !ok {
		h.reject(ctx, conn, msg)
		return
	}

	if conn.SimID() == 0 {
		h.registry.BindSim(conn.ID, sample.SimID)
	}
	h.ingest.Ingest(ctx, &sample)
}

func (h *Handler) validate(sample *model.TelemetrySample) (string, bool) {
	switch {
	case sample.SimID < 1 || sample.SimID > h.maxSimID:
		return fmt.Sprintf("simNum must be between 1 and %d", h.maxSimID), false
	case sample.PilotName == "":
		return "pilotName is required", false
	case sample.Car == "":
		return "car is required", false
	case sample.Track == "":
		return "track is required", false
	}
	return "", true
}

func (h *Handler) reject(ctx context.Context, conn *Conn, msg string) {
	metrics.RecordProtocolError()
	h.log.Debug(ctx, "rejected producer message",
		logger.String("id", conn.ID), logger.String("reason", msg))
	if err := conn.WriteJSON(Ack{Type: MsgError, Message: msg}); err != nil {
		h.log.Debug(ctx, "error ack failed", logger.String("id", conn.ID), logger.Error(err))
	}
}

func greeting(role Role, id string) string {
	if role == RoleProducer {
		return "connected as producer " + id
	}
	return "connected as consumer " + id
}
