package panel

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"agent-overlay-server/internal/overlay"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	router := gin.New()
	router.GET("/v1/panel/ws", hub.HandleWebSocket)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/panel/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers, got %d", want, hub.Subscribers())
}

func TestHubBroadcastsToggle(t *testing.T) {
	hub, srv := newTestServer(t)

	a := dial(t, srv)
	b := dial(t, srv)
	waitSubscribers(t, hub, 2)

	hub.ToggleSidePanel("sess-9")

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if frame.Source != overlay.SourceWidget {
			t.Errorf("source = %q, want %q", frame.Source, overlay.SourceWidget)
		}
		if frame.Type != overlay.TypeToggleSidePanel {
			t.Errorf("type = %q, want %q", frame.Type, overlay.TypeToggleSidePanel)
		}
		if frame.SessionID != "sess-9" {
			t.Errorf("session_id = %q, want sess-9", frame.SessionID)
		}
	}
}

func TestHubDropsDeadSubscribers(t *testing.T) {
	hub, srv := newTestServer(t)

	conn := dial(t, srv)
	waitSubscribers(t, hub, 1)

	conn.Close()
	// The server notices the closed connection on its next write.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.Subscribers() > 0 {
		hub.ToggleSidePanel("sess-1")
		time.Sleep(20 * time.Millisecond)
	}

	if got := hub.Subscribers(); got != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", got)
	}
}

func TestHubToggleWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	hub.ToggleSidePanel("sess-1") // must not panic
}
