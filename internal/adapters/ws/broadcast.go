package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angelosachet/AC-websocket-server/internal/domain/model"
	"github.com/angelosachet/AC-websocket-server/pkg/logger"
	"github.com/angelosachet/AC-websocket-server/pkg/metrics"
)

// Broadcaster fans a telemetry sample out to every consumer connection.
// The broadcast path makes no durability promise: a failing consumer is
// skipped and the rest still receive the message.
type Broadcaster struct {
	registry *Registry
	log      logger.Logger

	now func() time.Time
}

// BroadcasterOption applies a configuration option to the Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithBroadcastClock overrides the receipt-time source. Intended for tests.
func WithBroadcastClock(now func() time.Time) BroadcasterOption {
	return func(b *Broadcaster) {
		if now != nil {
			b.now = now
		}
	}
}

// WithBroadcasterLogger sets a custom logger for the broadcaster.
func WithBroadcasterLogger(log logger.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBroadcaster creates a Broadcaster over registry.
func NewBroadcaster(registry *Registry, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		registry: registry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.Named("broadcast")
	}
	return b
}

// Distribute stamps the sample with a receipt time, serializes it once, and
// delivers the identical payload to every consumer. The broadcast counter
// increases exactly once per call regardless of consumer count. Returns the
// number of successful deliveries.
func (b *Broadcaster) Distribute(ctx context.Context, sample *model.TelemetrySample) int {
	frame := OutboundSample{
		Type:      MsgSimulatorUpdate,
		Data:      sample,
		Timestamp: b.now().UTC().Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		// A sample that decoded from JSON always re-encodes; treat anything
		// else as a protocol-level bug and drop the broadcast.
		b.log.Error(ctx, "sample marshal failed", logger.Error(err))
		return 0
	}

	b.registry.IncBroadcasts()
	metrics.RecordBroadcast()

	consumers := b.registry.Consumers()
	if len(consumers) == 0 {
		return 0
	}

	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, raw)
	if err != nil {
		b.log.Error(ctx, "prepared message failed", logger.Error(err))
		return 0
	}

	delivered := 0
	for _, c := range consumers {
		if err := c.WritePrepared(pm); err != nil {
			metrics.RecordTransportError()
			b.log.Warn(ctx, "send to consumer failed, skipping",
				logger.String("id", c.ID), logger.Error(err))
			continue
		}
		metrics.RecordMessageSent()
		delivered++
	}
	return delivered
}
