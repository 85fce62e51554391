package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orbo-vision/coreflow/internal/telemetry"
)

// Hub manages WebSocket connections subscribed to the single analysis
// stream's TelemetryBus, adapted from orbo's DetectionHub (which kept a
// map of camera_id -> connection set; this module has one stream, so the
// camera-keyed map collapses to a flat connection set).
type Hub struct {
	conns map[*websocket.Conn]bool
	mu    sync.RWMutex
	log   *log.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{conns: make(map[*websocket.Conn]bool), log: logger}
}

// Register adds a connection.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = true
	h.log.Printf("ws: client registered (total: %d)", len(h.conns))
}

// Unregister removes a connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		h.log.Printf("ws: client unregistered (total: %d)", len(h.conns))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast sends a raw message to every connected client, dropping and
// closing any connection whose write fails.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.log.Printf("ws: write error: %v", err)
			h.Unregister(conn)
			conn.Close()
		}
	}
}

// Pump relays telemetry.Bus events to all connected clients as JSON until
// events is closed or stop fires, grounded on event_bus.go's
// StreamOverlayAdapter (an EventBus subscriber forwarding onto another
// transport).
func (h *Hub) Pump(events <-chan telemetry.Event, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := encodeEvent(ev)
			if err != nil || data == nil {
				continue
			}
			h.Broadcast(data)
		}
	}
}
