// Package realtime pushes saga status changes to websocket subscribers.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"orchard/internal/saga"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub manages WebSocket clients and broadcasts messages to them.
type Hub struct {
	connections map[*websocket.Conn]struct{}
	Register    chan *websocket.Conn
	Unregister  chan *websocket.Conn
	Broadcast   chan []byte
	mu          sync.Mutex
}

// NewHub constructs a Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]struct{}),
		Register:    make(chan *websocket.Conn),
		Unregister:  make(chan *websocket.Conn),
		Broadcast:   make(chan []byte),
	}
}

// Run processes register/unregister/broadcast events.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.Register:
			h.mu.Lock()
			h.connections[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.Unregister:
			h.mu.Lock()
			delete(h.connections, conn)
			h.mu.Unlock()
			conn.Close()
		case msg := <-h.Broadcast:
			h.mu.Lock()
			for conn := range h.connections {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.connections, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// StatusUpdate is the wire form of one saga status change.
type StatusUpdate struct {
	OrderID string    `json:"order_id"`
	State   string    `json:"state"`
	At      time.Time `json:"at"`
}

// StatusFeed forwards orchestrator status changes to the hub.
type StatusFeed struct {
	hub    *Hub
	logger *zap.Logger
	now    func() time.Time
}

// NewStatusFeed constructs a StatusFeed.
func NewStatusFeed(hub *Hub, logger *zap.Logger) *StatusFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusFeed{hub: hub, logger: logger, now: time.Now}
}

// NotifyStatus broadcasts one status change. A stalled hub must not
// block saga processing, so the update is dropped when the hub is not
// draining.
func (f *StatusFeed) NotifyStatus(correlationID uuid.UUID, state saga.State) {
	payload, err := json.Marshal(StatusUpdate{
		OrderID: correlationID.String(),
		State:   string(state),
		At:      f.now().UTC(),
	})
	if err != nil {
		f.logger.Error("encode status update", zap.Error(err))
		return
	}

	select {
	case f.hub.Broadcast <- payload:
	default:
		f.logger.Debug("status update dropped",
			zap.String("order_id", correlationID.String()),
			zap.String("state", string(state)))
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the connection and registers it with the hub. The
// read loop only watches for the peer closing; subscribers are
// broadcast-only.
func ServeWS(hub *Hub, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		hub.Register <- conn

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					hub.Unregister <- conn
					return
				}
			}
		}()
	}
}
