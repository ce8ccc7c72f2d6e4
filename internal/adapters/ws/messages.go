package ws

import (
	"encoding/json"

	"github.com/angelosachet/AC-websocket-server/internal/domain/model"
)

// Wire message types.
const (
	MsgSimulatorUpdate = "simulator-update"
	MsgError           = "error"
	MsgConnected       = "connected"
	MsgStats           = "stats"
)

// Envelope is the inbound producer frame. Data stays raw until the type is
// known to be simulator-update.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OutboundSample is the broadcast frame: the sample plus the receipt time
// stamped by the fan-out.
type OutboundSample struct {
	Type      string                 `json:"type"`
	Data      *model.TelemetrySample `json:"data"`
	Timestamp string                 `json:"timestamp"`
}

// Ack is sent for registration greetings and protocol errors.
type Ack struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StatsMessage pushes registry statistics to a consumer.
type StatsMessage struct {
	Type string `json:"type"`
	Data Stats  `json:"data"`
}
