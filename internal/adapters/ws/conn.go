// Package ws implements the websocket transport: connection registry,
// broadcast fan-out, and the upgrade handler for producers and consumers.
package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Role distinguishes connections that submit samples from those that
// receive the broadcast stream.
type Role string

const (
	RoleProducer Role = "producer"
	RoleConsumer Role = "consumer"
)

// socket is the slice of *websocket.Conn the registry needs. Tests plug in
// a recording fake.
type socket interface {
	WriteMessage(messageType int, data []byte) error
	WritePreparedMessage(pm *websocket.PreparedMessage) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Conn is one registered connection. Owned exclusively by the Registry;
// destroyed when the underlying socket closes or errors.
type Conn struct {
	ID        string
	Role      Role
	CreatedAt time.Time

	sock         socket
	writeMu      sync.Mutex
	writeTimeout time.Duration

	lastActivity atomic.Int64 // unix seconds
	simID        atomic.Int32 // 0 = unbound
}

// WriteJSON marshals v and writes it as one text message. Safe for
// concurrent use; gorilla allows only one writer at a time.
func (c *Conn) WriteJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteMessage(websocket.TextMessage, raw)
}

// WritePrepared writes a pre-serialized message.
func (c *Conn) WritePrepared(pm *websocket.PreparedMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WritePreparedMessage(pm)
}

// Ping sends a control ping with the configured write deadline.
func (c *Conn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Touch records activity on the connection.
func (c *Conn) Touch() {
	c.lastActivity.Store(time.Now().Unix())
}

// LastActivity returns the time of the last recorded activity.
func (c *Conn) LastActivity() time.Time {
	return time.Unix(c.lastActivity.Load(), 0)
}

// BindSim records which simulator a producer represents.
func (c *Conn) BindSim(simID int) {
	c.simID.Store(int32(simID))
}

// SimID returns the bound simulator id, 0 when unbound.
func (c *Conn) SimID() int {
	return int(c.simID.Load())
}

// close sends a best-effort close frame and closes the socket. Teardown
// races with the peer are expected; errors are returned for logging only.
func (c *Conn) close() error {
	c.writeMu.Lock()
	_ = c.sock.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout),
	)
	c.writeMu.Unlock()
	return c.sock.Close()
}
