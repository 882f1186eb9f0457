// Package panel pushes overlay intents to connected side panel UIs over
// WebSocket. The widget itself never talks to the panel directly; the host
// relays each toggle to every subscriber.
package panel

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"agent-overlay-server/internal/overlay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Frame is one message pushed to panel subscribers.
type Frame struct {
	Source    string `json:"source"`
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp int64  `json:"ts"`
}

// Hub tracks panel subscribers and fans intents out to all of them. It
// implements overlay.IntentSink so it can be handed straight to the
// session manager.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

// HandleWebSocket upgrades the request and keeps the connection registered
// until the client goes away. Inbound frames are discarded; the panel socket
// is push-only.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("panel upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("panel connection error: %v", err)
			}
			return
		}
	}
}

// ToggleSidePanel broadcasts a toggle frame to every subscriber. Connections
// that fail the write are dropped; the client reconnects on its own.
func (h *Hub) ToggleSidePanel(sessionID string) {
	frame := Frame{
		Source:    overlay.SourceWidget,
		Type:      overlay.TypeToggleSidePanel,
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteJSON(frame); err != nil {
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
