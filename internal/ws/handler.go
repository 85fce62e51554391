package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development; production deployments should
		// restrict this to the dashboard's own origin.
		return true
	},
}

// Handler handles WebSocket upgrade requests for the telemetry stream,
// expected at a single route (e.g. /ws/telemetry) rather than orbo's
// per-camera /ws/detections/{camera_id}, since this module analyzes one
// stream at a time.
type Handler struct {
	hub *Hub
}

// NewHandler creates a WebSocket handler bound to hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Printf("ws: upgrade error: %v", err)
		return
	}

	h.hub.log.Printf("ws: new connection from %s", r.RemoteAddr)
	h.hub.Register(conn)

	go h.readPump(conn)
}

// readPump keeps the connection alive and detects client disconnection;
// the telemetry stream is one-directional (server -> client), so inbound
// messages are only read to observe close/ping frames.
func (h *Handler) readPump(conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.hub.log.Printf("ws: read error: %v", err)
			}
			break
		}
	}
}
