package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messageboard/logger"
	"messageboard/models"
)

// writeWait is how long a client may take to accept one frame before it is
// dropped.
const writeWait = 5 * time.Second

// Hub manages websocket clients and broadcasts messages to them.
// Broadcast must be called from a single goroutine; it is the only writer.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*websocket.Conn]struct{}
	writeWait time.Duration
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{}), writeWait: writeWait}
}

func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
	logger.Info("websocket client connected", logger.FieldKV("remote_addr", conn.RemoteAddr().String()))
}

// Remove closes conn and forgets it. Removing twice is a no-op.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = conn.Close()
	logger.Info("websocket client disconnected", logger.FieldKV("remote_addr", conn.RemoteAddr().String()))
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast writes msg as JSON to every client, drops the ones that fail
// and reports how many received it.
func (h *Hub) Broadcast(msg models.Message) int {
	var failed []*websocket.Conn
	sent := 0
	h.mu.RLock()
	for c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err := c.WriteJSON(msg); err != nil {
			logger.Error("websocket write error", err,
				logger.FieldKV("remote_addr", c.RemoteAddr().String()), logger.FieldKV("message_id", msg.ID))
			failed = append(failed, c)
			continue
		}
		sent++
	}
	h.mu.RUnlock()
	for _, c := range failed {
		h.Remove(c)
	}
	return sent
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(h.writeWait))
		_ = c.Close()
	}
}
