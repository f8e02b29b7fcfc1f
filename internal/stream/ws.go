package stream

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// wsSubscriber wraps one WebSocket connection. Writes are serialized and
// deadline-bounded so a stalled peer fails fast and gets pruned instead
// of wedging a broadcast pass.
type wsSubscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSubscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// WSHandler upgrades GET requests to WebSocket live-feed subscriptions.
type WSHandler struct {
	broker   *Broker
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewWSHandler constructs a WebSocket handler.
func NewWSHandler(broker *Broker, logger *log.Logger) *WSHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &WSHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboard clients connect from arbitrary LAN origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP handles GET /ws.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("ws: upgrade error: %v", err)
		return
	}

	sub := &wsSubscriber{conn: conn}
	if err := h.broker.Subscribe(sub); err != nil {
		h.logger.Printf("ws: subscribe error: %v", err)
		_ = conn.Close()
		return
	}

	// The server only pushes; the read loop exists to notice the peer
	// going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.broker.Unsubscribe(sub)
	_ = conn.Close()
}
