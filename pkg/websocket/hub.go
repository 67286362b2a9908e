package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dialwise/dialwise/pkg/events"
	"github.com/dialwise/dialwise/pkg/logger"
)

// Subscriber roles. Events are partitioned by role so operator consoles and
// wallboards see lifecycle traffic while analytics views only receive
// periodic snapshots.
const (
	RoleOperator   = "operator"
	RoleSupervisor = "supervisor"
	RoleWallboard  = "wallboard"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// roleEventTypes maps a role to the event types it receives. Supervisors
// get everything.
var roleEventTypes = map[string]map[string]bool{
	RoleOperator: {
		events.CallStarted:       true,
		events.CallUpdated:       true,
		events.CallEnded:         true,
		events.CallInterrupted:   true,
		events.CallTerminated:    true,
		events.TranscriptUpdated: true,
	},
	RoleWallboard: {
		events.CallStarted:  true,
		events.CallEnded:    true,
		events.SystemHealth: true,
	},
}

// client is one connected dashboard. Outbound events go through a buffered
// channel drained by a single writer goroutine, which preserves per-connection
// FIFO order.
type client struct {
	conn *websocket.Conn
	role string
	send chan []byte
}

// Hub fans events out to connected dashboard clients, partitioned by role.
// Delivery is best-effort, at-most-once: a client whose buffer is full has
// the event dropped, and there is no replay on reconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates the hub and wires it to the global event bus.
func NewHub() *Hub {
	h := &Hub{clients: make(map[*client]struct{})}
	events.GetBus().Subscribe("*", func(ev events.Event) error {
		h.Broadcast(ev)
		return nil
	})
	return h
}

// Register attaches a connection under a role. The snapshot is sent first so
// a reconnecting subscriber starts from fresh state instead of relying on
// missed events. Register starts the writer and reader goroutines and
// returns immediately.
func (h *Hub) Register(conn *websocket.Conn, role string, snapshot interface{}) {
	if _, ok := roleEventTypes[role]; !ok && role != RoleSupervisor {
		role = RoleOperator
	}
	c := &client{conn: conn, role: role, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if snapshot != nil {
		if payload, err := json.Marshal(map[string]interface{}{"type": "snapshot", "data": snapshot}); err == nil {
			c.send <- payload
		}
	}

	go h.writeLoop(c)
	go h.readLoop(c)

	logger.Info("dashboard subscriber connected", zap.String("role", role))
}

// Broadcast queues the event on every client whose role subscribes to the
// event type. Clients with a full buffer lose the event rather than block
// the publisher.
func (h *Hub) Broadcast(ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Warn("broadcast marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !h.wants(c.role, ev.Type) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// slow subscriber, drop the event for this client
		}
	}
}

func (h *Hub) wants(role, eventType string) bool {
	if role == RoleSupervisor {
		return true
	}
	return roleEventTypes[role][eventType]
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) writeLoop(c *client) {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(c)
			return
		}
	}
}

// readLoop discards inbound frames; it exists to detect closed connections.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	close(c.send)
	_ = c.conn.Close()
	logger.Info("dashboard subscriber disconnected", zap.String("role", c.role))
}
